package types

import (
	"strings"

	"github.com/NomadCrew/dojo-portal/errors"
)

// ActorKind distinguishes the two kinds of portal accounts.
type ActorKind string

const (
	ActorKindUser  ActorKind = "user"
	ActorKindCoach ActorKind = "coach"
)

// Actor is the account whose notifications, payments and profile are being viewed.
// Users are addressed by username; coaches by both id (reads) and username (writes).
type Actor struct {
	ID       string    `json:"id,omitempty"`
	Username string    `json:"username"`
	Kind     ActorKind `json:"kind"`
}

// Key identifies the actor across sessions and broadcast topics.
func (a Actor) Key() string {
	return string(a.Kind) + ":" + a.Username
}

func (a Actor) IsCoach() bool {
	return a.Kind == ActorKindCoach
}

// ParseActorKind accepts "user" or "coach" in any case. Empty defaults to user.
func ParseActorKind(s string) (ActorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ActorKindUser):
		return ActorKindUser, nil
	case string(ActorKindCoach):
		return ActorKindCoach, nil
	default:
		return "", errors.ValidationFailed("invalid actor kind", s)
	}
}

// Validate checks the identifiers each kind needs.
func (a Actor) Validate() error {
	if a.Username == "" {
		return errors.AuthenticationFailed("not logged in")
	}
	if a.Kind == ActorKindCoach && a.ID == "" {
		return errors.ValidationFailed("invalid actor", "coach actors require an id")
	}
	return nil
}
