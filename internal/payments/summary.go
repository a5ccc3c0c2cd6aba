package payments

import (
	"github.com/NomadCrew/dojo-portal/pkg/valueobjects"
	"github.com/NomadCrew/dojo-portal/types"
	"github.com/shopspring/decimal"
)

// Summarize totals grouped payment history. Aggregates count once at their
// package price; rejected entries are counted but not totalled.
func Summarize(grouped []types.PaymentRecord, currency valueobjects.Currency) (types.PaymentSummary, error) {
	var verified, pending []decimal.Decimal
	summary := types.PaymentSummary{
		Currency:   string(currency),
		EntryCount: len(grouped),
	}

	for _, rec := range grouped {
		if rec.IsGroupedPackage {
			summary.PackageCount++
		}
		switch rec.Status {
		case types.PaymentStatusVerified:
			verified = append(verified, rec.Amount)
		case types.PaymentStatusForApproval:
			pending = append(pending, rec.Amount)
		case types.PaymentStatusRejected:
			summary.RejectedCount++
		}
	}

	verifiedTotal, err := valueobjects.Sum(currency, verified...)
	if err != nil {
		return types.PaymentSummary{}, err
	}
	pendingTotal, err := valueobjects.Sum(currency, pending...)
	if err != nil {
		return types.PaymentSummary{}, err
	}

	summary.VerifiedTotal = verifiedTotal.StringFixed()
	summary.PendingTotal = pendingTotal.StringFixed()
	return summary, nil
}
