package inbox

import "time"

type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticePartial NoticeKind = "partial"
)

// Notice is a transient message for the inbox view. It stops being reported
// once ExpiresAt has passed.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

func (n *Notice) activeAt(now time.Time) bool {
	return n != nil && now.Before(n.ExpiresAt)
}

const (
	msgFetchFailed    = "Could not load notifications"
	msgMarkFailed     = "Could not mark notifications as read"
	msgDeleteFailed   = "Could not delete notifications"
	msgMarkPartial    = "Some notifications could not be marked as read"
	msgDeletePartial  = "Some notifications could not be deleted"
	msgNothingToApply = "No notifications selected"
)
