package types

import "time"

// Notification is one inbox entry in its canonical shape. Wire variants of the
// read flag and timestamp are normalized before a value of this type is built.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// NotificationPage is one page of an actor's inbox.
type NotificationPage struct {
	Items      []Notification `json:"items"`
	Total      int            `json:"total"`
	TotalPages int            `json:"totalPages"`
}

// NotificationIDs returns the ids of items in order.
func NotificationIDs(items []Notification) []string {
	ids := make([]string, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.ID)
	}
	return ids
}

// UnreadIDs returns the ids of unread items in order.
func UnreadIDs(items []Notification) []string {
	ids := make([]string, 0, len(items))
	for _, n := range items {
		if !n.Read {
			ids = append(ids, n.ID)
		}
	}
	return ids
}
