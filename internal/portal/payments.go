package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/types"
)

type paymentHistoryResponse struct {
	Success        bool          `json:"success"`
	PaymentHistory []wirePayment `json:"paymentHistory"`
	Message        string        `json:"message"`
}

type adminPaymentsResponse struct {
	Success  bool          `json:"success"`
	Payments []wirePayment `json:"payments"`
}

// PaymentHistory returns the user's raw payment records in store order.
//
// When the per-user endpoint fails, the admin listing is read once per status
// and filtered to records whose userId matches username with or without a
// leading "@". If the fallback fails too, the original error is returned.
func (c *Client) PaymentHistory(ctx context.Context, username string) ([]types.PaymentRecord, error) {
	records, err := c.userPaymentHistory(ctx, username)
	if err == nil {
		return records, nil
	}

	c.log.Warnw("Payment history endpoint failed, falling back to admin payments",
		"username", username, "error", err)
	c.metrics.fallbacks.Inc()

	fallback, fbErr := c.adminPaymentsFor(ctx, username)
	if fbErr != nil {
		c.log.Errorw("Admin payments fallback failed", "username", username, "error", fbErr)
		return nil, err
	}
	return fallback, nil
}

func (c *Client) userPaymentHistory(ctx context.Context, username string) ([]types.PaymentRecord, error) {
	var resp paymentHistoryResponse
	path := "/api/users/" + pathSegment(username) + "/payment-history"
	if err := c.do(ctx, "payment_history", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apperrors.NewUpstreamError("payment_history",
			fmt.Errorf("store reported failure: %s", resp.Message))
	}
	return canonicalPayments(resp.PaymentHistory), nil
}

// AdminPayments lists every payment with the given status.
func (c *Client) AdminPayments(ctx context.Context, status types.PaymentStatus) ([]types.PaymentRecord, error) {
	query := url.Values{}
	query.Set("status", string(status))

	var resp adminPaymentsResponse
	if err := c.do(ctx, "admin_payments", http.MethodGet, "/api/admin/payments", query, nil, &resp); err != nil {
		return nil, err
	}
	return canonicalPayments(resp.Payments), nil
}

func (c *Client) adminPaymentsFor(ctx context.Context, username string) ([]types.PaymentRecord, error) {
	var out []types.PaymentRecord
	for _, status := range types.AllPaymentStatuses {
		records, err := c.AdminPayments(ctx, status)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if matchesUser(rec.UserID, username) {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// matchesUser compares user ids ignoring a leading "@" on either side.
func matchesUser(recordUserID, username string) bool {
	a := strings.TrimPrefix(strings.TrimSpace(recordUserID), "@")
	b := strings.TrimPrefix(strings.TrimSpace(username), "@")
	return a != "" && a == b
}
