package handlers

import (
	"context"

	"github.com/NomadCrew/dojo-portal/internal/inbox"
	"github.com/NomadCrew/dojo-portal/internal/profile"
	"github.com/NomadCrew/dojo-portal/internal/verification"
	"github.com/NomadCrew/dojo-portal/types"
)

// InboxSessions hands out the per-actor inbox session. *inbox.Registry satisfies it.
type InboxSessions interface {
	Session(actor types.Actor) (*inbox.Session, error)
}

// ProfileLoader builds the profile page. *profile.Aggregator satisfies it.
type ProfileLoader interface {
	Load(ctx context.Context, actor types.Actor) *profile.View
	Payments(ctx context.Context, actor types.Actor) profile.Section[profile.Payments]
}

// CodeVerifier issues and checks one-time codes. *verification.Service satisfies it.
type CodeVerifier interface {
	Issue(ctx context.Context, email string) (verification.Issued, error)
	Verify(ctx context.Context, email, code string) error
}

// HealthChecker reports component health. *services.HealthService satisfies it.
type HealthChecker interface {
	CheckHealth(ctx context.Context) types.HealthCheck
	IsReady(ctx context.Context) bool
}
