package types

import "time"

// ClassRecord is one attended or booked class in a user's history.
type ClassRecord struct {
	ID        string    `json:"id"`
	ClassName string    `json:"className"`
	CoachName string    `json:"coachName,omitempty"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status,omitempty"`
}

// CoachDetail is the coach-only part of a profile.
type CoachDetail struct {
	ID             string   `json:"id"`
	Username       string   `json:"username"`
	FirstName      string   `json:"firstName,omitempty"`
	LastName       string   `json:"lastName,omitempty"`
	Email          string   `json:"email,omitempty"`
	Bio            string   `json:"bio,omitempty"`
	Specialties    []string `json:"specialties,omitempty"`
	ProfilePicture string   `json:"profilePicture,omitempty"`
}

// PaymentSummary totals a grouped payment history.
type PaymentSummary struct {
	Currency      string `json:"currency"`
	VerifiedTotal string `json:"verifiedTotal"`
	PendingTotal  string `json:"pendingTotal"`
	RejectedCount int    `json:"rejectedCount"`
	PackageCount  int    `json:"packageCount"`
	EntryCount    int    `json:"entryCount"`
}
