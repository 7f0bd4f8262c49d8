package domain

import (
	"context"
	"time"
)

// Identity is the caller as asserted by the authentication layer.
type Identity struct {
	UserID      string
	DisplayName string
	IsAnonymous bool
}

// User is a registered user's profile record, stored under users/{id}.
// swagger:model User
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenIssuer issues tokens (e.g. JWT) for an identity.
type TokenIssuer interface {
	Issue(identity Identity, expiry time.Duration) (string, error)
}

// TokenVerifier verifies a token and returns the identity it asserts.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// PurgeReport summarizes what an account purge removed.
// swagger:model PurgeReport
type PurgeReport struct {
	UserID              string   `json:"user_id"`
	DeletedEvents       []string `json:"deleted_events"`
	DeletedAssignments  int      `json:"deleted_assignments"`
	DeletedParticipants int      `json:"deleted_participants"`
	Writes              int      `json:"writes"`
}

// PurgeService removes everything a deleted account owns or claimed.
type PurgeService interface {
	PurgeAccount(ctx context.Context, userID string) (*PurgeReport, error)
}

// EventArchiver keeps a copy of an event before a purge deletes it.
type EventArchiver interface {
	ArchiveEvent(ctx context.Context, event *Event) error
}

// ValidationReport is the outcome of a consistency audit of one event.
// swagger:model ValidationReport
type ValidationReport struct {
	EventID string   `json:"event_id"`
	Valid   bool     `json:"valid"`
	Issues  []string `json:"issues"`
}

// Validator audits stored aggregates against the raw assignment records.
type Validator interface {
	ValidateEvent(ctx context.Context, eventID string) (*ValidationReport, error)
	ValidateAll(ctx context.Context) ([]*ValidationReport, error)
}

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, err error, duration time.Duration)
}
