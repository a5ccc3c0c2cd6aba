package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the review state of a submitted payment.
type PaymentStatus string

const (
	PaymentStatusForApproval PaymentStatus = "for approval"
	PaymentStatusVerified    PaymentStatus = "verified"
	PaymentStatusRejected    PaymentStatus = "rejected"
)

// AllPaymentStatuses lists every status in the order the admin listing is queried.
var AllPaymentStatuses = []PaymentStatus{
	PaymentStatusForApproval,
	PaymentStatusVerified,
	PaymentStatusRejected,
}

// PaymentRecord is a single payment as stored, or a grouped package aggregate.
//
// Aggregates carry IsGroupedPackage=true and IsPackage=false so they are never
// regrouped. PackagePrice is a pointer because an absent price is not a zero price.
type PaymentRecord struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	Amount          decimal.Decimal  `json:"amount"`
	Date            time.Time        `json:"date"`
	SubmittedAt     time.Time        `json:"submittedAt"`
	Status          PaymentStatus    `json:"status"`
	ClassName       string           `json:"className,omitempty"`
	CoachName       string           `json:"coachName,omitempty"`
	IsPackage       bool             `json:"isPackage,omitempty"`
	PackageType     string           `json:"packageType,omitempty"`
	PackagePrice    *decimal.Decimal `json:"packagePrice,omitempty"`
	PackageSessions int              `json:"packageSessions,omitempty"`

	IsGroupedPackage bool            `json:"isGroupedPackage,omitempty"`
	SessionCount     int             `json:"sessionCount,omitempty"`
	PackageStartDate time.Time       `json:"packageStartDate,omitempty"`
	SessionDetails   []PaymentRecord `json:"sessionDetails,omitempty"`
}

// IsPackagePayment reports whether the record should be grouped.
func (p PaymentRecord) IsPackagePayment() bool {
	return p.IsPackage && p.PackageType != ""
}

// PackageKey is the grouping key for package records.
func (p PaymentRecord) PackageKey() string {
	return p.PackageType + "_" + p.UserID
}

// SortTime is the timestamp used for latest-first ordering.
func (p PaymentRecord) SortTime() time.Time {
	if !p.SubmittedAt.IsZero() {
		return p.SubmittedAt
	}
	return p.Date
}
