package portal

import (
	"context"
	"fmt"
	"net/http"

	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/types"
)

type classHistoryResponse struct {
	Success      bool        `json:"success"`
	ClassHistory []wireClass `json:"classHistory"`
	Message      string      `json:"message"`
}

// ClassHistory returns the user's class history in store order.
func (c *Client) ClassHistory(ctx context.Context, username string) ([]types.ClassRecord, error) {
	var resp classHistoryResponse
	path := "/api/users/" + pathSegment(username) + "/class-history"
	if err := c.do(ctx, "class_history", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apperrors.NewUpstreamError("class_history",
			fmt.Errorf("store reported failure: %s", resp.Message))
	}

	out := make([]types.ClassRecord, 0, len(resp.ClassHistory))
	for _, w := range resp.ClassHistory {
		out = append(out, w.canonical())
	}
	return out, nil
}

// CoachByID returns the coach document for id.
func (c *Client) CoachByID(ctx context.Context, id string) (*types.CoachDetail, error) {
	var w wireCoach
	if err := c.do(ctx, "coach_by_id", http.MethodGet, "/api/coach-by-id/"+pathSegment(id), nil, nil, &w); err != nil {
		return nil, err
	}
	detail := w.canonical()
	if detail.ID == "" {
		detail.ID = id
	}
	return &detail, nil
}
