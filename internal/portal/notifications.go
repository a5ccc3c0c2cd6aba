package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/NomadCrew/dojo-portal/types"
)

type userDocument struct {
	Username      string             `json:"username"`
	Notifications []wireNotification `json:"notifications"`
	User          *struct {
		Username      string             `json:"username"`
		Notifications []wireNotification `json:"notifications"`
	} `json:"user"`
}

// UserNotifications fetches the whole user document and returns its embedded
// notifications in store order.
func (c *Client) UserNotifications(ctx context.Context, username string) ([]types.Notification, error) {
	var doc userDocument
	if err := c.do(ctx, "get_user", http.MethodGet, "/api/users/"+pathSegment(username), nil, nil, &doc); err != nil {
		return nil, err
	}
	notifications := doc.Notifications
	if len(notifications) == 0 && doc.User != nil {
		notifications = doc.User.Notifications
	}
	return canonicalNotifications(notifications), nil
}

type coachNotificationPage struct {
	Notifications []wireNotification `json:"notifications"`
	Total         json.RawMessage    `json:"total"`
	TotalPages    json.RawMessage    `json:"totalPages"`
}

// CoachNotifications fetches one server-side page of a coach's notifications.
func (c *Client) CoachNotifications(ctx context.Context, coachID string, page, limit int) (types.NotificationPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var resp coachNotificationPage
	path := "/api/coach-by-id/" + pathSegment(coachID) + "/notifications"
	if err := c.do(ctx, "list_coach_notifications", http.MethodGet, path, query, nil, &resp); err != nil {
		return types.NotificationPage{}, err
	}

	items := canonicalNotifications(resp.Notifications)
	total := parseInt(resp.Total)
	if total < len(items) {
		total = len(items)
	}
	totalPages := parseInt(resp.TotalPages)
	if totalPages == 0 && total > 0 && limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return types.NotificationPage{Items: items, Total: total, TotalPages: totalPages}, nil
}

type notifIDsBody struct {
	NotifIDs []string `json:"notifIds"`
}

func actorCollection(actor types.Actor) string {
	if actor.IsCoach() {
		return "/api/coaches/"
	}
	return "/api/users/"
}

// MarkRead marks ids read in the actor's collection.
func (c *Client) MarkRead(ctx context.Context, actor types.Actor, ids []string) error {
	path := actorCollection(actor) + pathSegment(actor.Username) + "/notifications/read"
	return c.do(ctx, "mark_read", http.MethodPut, path, nil, notifIDsBody{NotifIDs: ids}, nil)
}

// DeleteNotifications deletes ids from the actor's collection.
func (c *Client) DeleteNotifications(ctx context.Context, actor types.Actor, ids []string) error {
	path := actorCollection(actor) + pathSegment(actor.Username) + "/notifications"
	return c.do(ctx, "delete_notifications", http.MethodDelete, path, nil, notifIDsBody{NotifIDs: ids}, nil)
}
