// Package payments shapes a member's raw payment history for display.
//
// Package purchases arrive from the store as one record per session. Group folds
// them into one aggregate per (package type, user) priced at the flat package
// price, and leaves every other record alone.
package payments

import (
	"sort"
	"time"

	"github.com/NomadCrew/dojo-portal/types"
	"github.com/shopspring/decimal"
)

// DefaultPackagePrice is charged for a package whose records carry no price.
var DefaultPackagePrice = decimal.NewFromInt(1600)

// Group returns the aggregates in first-encounter order followed by the
// individual records in input order. Every input record appears exactly once,
// either inside one aggregate's SessionDetails or on its own.
//
// Aggregates are not package-tagged, so running Group on its own output returns
// it unchanged. Callers still group once per raw fetch.
func Group(records []types.PaymentRecord) []types.PaymentRecord {
	var (
		aggregates  []types.PaymentRecord
		individuals []types.PaymentRecord
		index       = make(map[string]int)
	)

	for _, rec := range records {
		if !rec.IsPackagePayment() {
			individuals = append(individuals, rec)
			continue
		}

		key := rec.PackageKey()
		i, ok := index[key]
		if !ok {
			index[key] = len(aggregates)
			aggregates = append(aggregates, seedAggregate(key, rec))
			continue
		}

		agg := &aggregates[i]
		agg.SessionDetails = append(agg.SessionDetails, rec)
		agg.SessionCount++
		if earlier(rec.SubmittedAt, agg.PackageStartDate) {
			agg.PackageStartDate = rec.SubmittedAt
			agg.SubmittedAt = rec.SubmittedAt
		}
	}

	out := make([]types.PaymentRecord, 0, len(aggregates)+len(individuals))
	out = append(out, aggregates...)
	return append(out, individuals...)
}

func seedAggregate(key string, rec types.PaymentRecord) types.PaymentRecord {
	amount := DefaultPackagePrice
	if rec.PackagePrice != nil {
		amount = *rec.PackagePrice
	}

	return types.PaymentRecord{
		ID:               key,
		UserID:           rec.UserID,
		Amount:           amount,
		Date:             rec.Date,
		SubmittedAt:      rec.SubmittedAt,
		Status:           rec.Status,
		ClassName:        rec.ClassName,
		CoachName:        rec.CoachName,
		PackageType:      rec.PackageType,
		PackagePrice:     rec.PackagePrice,
		PackageSessions:  rec.PackageSessions,
		IsGroupedPackage: true,
		SessionCount:     1,
		PackageStartDate: rec.SubmittedAt,
		SessionDetails:   []types.PaymentRecord{rec},
	}
}

// earlier reports whether candidate should replace current as the package
// start. A missing time never replaces a known one; a known time replaces a
// missing one.
func earlier(candidate, current time.Time) bool {
	if candidate.IsZero() {
		return false
	}
	return current.IsZero() || candidate.Before(current)
}

// SortLatestFirst orders records newest first by submission time, falling back
// to the payment date. Records with equal times keep their store order.
func SortLatestFirst(records []types.PaymentRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SortTime().After(records[j].SortTime())
	})
}
