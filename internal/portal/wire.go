package portal

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/NomadCrew/dojo-portal/types"
	"github.com/shopspring/decimal"
)

// wireNotification is a notification as the store serializes it. The store
// has used both "id" and "_id", both "timestamp" and "date", and booleans,
// strings and numbers for "read".
type wireNotification struct {
	ID        json.RawMessage `json:"id"`
	MongoID   json.RawMessage `json:"_id"`
	Message   string          `json:"message"`
	Timestamp json.RawMessage `json:"timestamp"`
	Date      json.RawMessage `json:"date"`
	Read      json.RawMessage `json:"read"`
}

func (w wireNotification) canonical() types.Notification {
	id := rawString(w.ID)
	if id == "" {
		id = rawString(w.MongoID)
	}
	ts := parseTime(w.Timestamp)
	if ts.IsZero() {
		ts = parseTime(w.Date)
	}
	return types.Notification{
		ID:        id,
		Message:   w.Message,
		Timestamp: ts,
		Read:      normalizeRead(w.Read),
	}
}

func canonicalNotifications(in []wireNotification) []types.Notification {
	out := make([]types.Notification, 0, len(in))
	for _, w := range in {
		n := w.canonical()
		if n.ID == "" {
			continue
		}
		out = append(out, n)
	}
	return out
}

// normalizeRead maps every representation of the read flag the store emits to
// a bool. true, "true" (any case, surrounding space ignored) and non-zero
// numbers are read; everything else, including null and absent, is unread.
func normalizeRead(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "true" || s == "1"
	case float64:
		return t != 0
	default:
		return false
	}
}

// normalizeFlag is normalizeRead for other boolean fields such as isPackage.
func normalizeFlag(raw json.RawMessage) bool {
	return normalizeRead(raw)
}

// rawString returns a JSON string or number as text; an ObjectId wrapper
// {"$oid": "..."} yields its hex value.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var oid struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(raw, &oid); err == nil {
		return oid.OID
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts RFC 3339 and a few looser layouts, epoch milliseconds and
// {"$date": ...} wrappers. Anything else is the zero time.
func parseTime(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
		return time.Time{}
	}

	var ms json.Number
	if err := json.Unmarshal(raw, &ms); err == nil {
		if v, err := ms.Int64(); err == nil {
			return time.UnixMilli(v).UTC()
		}
		return time.Time{}
	}

	var wrapped struct {
		Date json.RawMessage `json:"$date"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Date) > 0 {
		return parseTime(wrapped.Date)
	}
	return time.Time{}
}

// parseDecimal accepts JSON numbers and numeric strings. ok is false when the
// field is absent or not numeric.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	s := rawString(raw)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseInt(raw json.RawMessage) int {
	d, ok := parseDecimal(raw)
	if !ok {
		return 0
	}
	return int(d.IntPart())
}

type wirePayment struct {
	ID              json.RawMessage `json:"id"`
	MongoID         json.RawMessage `json:"_id"`
	UserID          json.RawMessage `json:"userId"`
	Amount          json.RawMessage `json:"amount"`
	Date            json.RawMessage `json:"date"`
	SubmittedAt     json.RawMessage `json:"submittedAt"`
	Status          string          `json:"status"`
	ClassName       string          `json:"className"`
	CoachName       string          `json:"coachName"`
	IsPackage       json.RawMessage `json:"isPackage"`
	PackageType     string          `json:"packageType"`
	PackagePrice    json.RawMessage `json:"packagePrice"`
	PackageSessions json.RawMessage `json:"packageSessions"`
}

func (w wirePayment) canonical() types.PaymentRecord {
	id := rawString(w.ID)
	if id == "" {
		id = rawString(w.MongoID)
	}
	amount, _ := parseDecimal(w.Amount)

	rec := types.PaymentRecord{
		ID:              id,
		UserID:          rawString(w.UserID),
		Amount:          amount,
		Date:            parseTime(w.Date),
		SubmittedAt:     parseTime(w.SubmittedAt),
		Status:          types.PaymentStatus(strings.ToLower(strings.TrimSpace(w.Status))),
		ClassName:       w.ClassName,
		CoachName:       w.CoachName,
		IsPackage:       normalizeFlag(w.IsPackage),
		PackageType:     strings.TrimSpace(w.PackageType),
		PackageSessions: parseInt(w.PackageSessions),
	}
	if price, ok := parseDecimal(w.PackagePrice); ok {
		rec.PackagePrice = &price
	}
	return rec
}

func canonicalPayments(in []wirePayment) []types.PaymentRecord {
	out := make([]types.PaymentRecord, 0, len(in))
	for _, w := range in {
		out = append(out, w.canonical())
	}
	return out
}

type wireClass struct {
	ID        json.RawMessage `json:"id"`
	MongoID   json.RawMessage `json:"_id"`
	ClassName string          `json:"className"`
	CoachName string          `json:"coachName"`
	Date      json.RawMessage `json:"date"`
	Status    string          `json:"status"`
}

func (w wireClass) canonical() types.ClassRecord {
	id := rawString(w.ID)
	if id == "" {
		id = rawString(w.MongoID)
	}
	return types.ClassRecord{
		ID:        id,
		ClassName: w.ClassName,
		CoachName: w.CoachName,
		Date:      parseTime(w.Date),
		Status:    w.Status,
	}
}

type wireCoach struct {
	ID             json.RawMessage `json:"id"`
	MongoID        json.RawMessage `json:"_id"`
	Username       string          `json:"username"`
	FirstName      string          `json:"firstname"`
	LastName       string          `json:"lastname"`
	Email          string          `json:"email"`
	Bio            string          `json:"bio"`
	Specialties    json.RawMessage `json:"specialties"`
	ProfilePicture string          `json:"profilePic"`
}

func (w wireCoach) canonical() types.CoachDetail {
	id := rawString(w.ID)
	if id == "" {
		id = rawString(w.MongoID)
	}
	return types.CoachDetail{
		ID:             id,
		Username:       w.Username,
		FirstName:      w.FirstName,
		LastName:       w.LastName,
		Email:          w.Email,
		Bio:            w.Bio,
		Specialties:    parseStringList(w.Specialties),
		ProfilePicture: w.ProfilePicture,
	}
}

// parseStringList accepts ["a","b"] or a comma separated "a, b".
func parseStringList(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
		return nil
	}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	return list
}
