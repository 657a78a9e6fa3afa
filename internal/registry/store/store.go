// Package store persists agents and validation challenges. Interfaces are
// consumer-defined so services stay testable against the in-memory
// implementations; the PostgreSQL implementations join an ambient transaction
// through pkg/platform/tx.
package store

import (
	"context"
	"time"

	"ansregistry/internal/registry/models"
	id "ansregistry/pkg/domain"
)

// AgentStore persists agent records. Implementations return sentinel errors
// (pkg/platform/sentinel) for infrastructure facts: ErrConflict on an
// ans_name collision, ErrNotFound on unknown IDs, ErrInvalidState when the
// activation precondition fails.
type AgentStore interface {
	Create(ctx context.Context, agent *models.Agent) error
	FindByID(ctx context.Context, agentID id.AgentID) (*models.Agent, error)
	FindByANSName(ctx context.Context, name id.ANSName) (*models.Agent, error)

	// Activate performs the forward transition PENDING_VALIDATION -> ACTIVE
	// and stores the issued certificate. The guard on the previous status is
	// part of the statement so concurrent verifications cannot double-issue.
	Activate(ctx context.Context, agentID id.AgentID, certPEM string, now time.Time) error

	// SearchActive returns active agents whose display name, description, or
	// host contains the query substring (case-insensitive). An empty query
	// matches all active agents. Results are capped at limit.
	SearchActive(ctx context.Context, query string, limit int) ([]*models.Agent, error)
}

// ChallengeStore persists validation challenges.
type ChallengeStore interface {
	Create(ctx context.Context, challenge *models.ValidationChallenge) error

	// FindActive returns the most recent unconsumed, non-expired challenge
	// for the agent, or sentinel.ErrNotFound.
	FindActive(ctx context.Context, agentID id.AgentID) (*models.ValidationChallenge, error)

	// Consume marks the challenge used. Succeeds exactly once; a second call
	// returns sentinel.ErrAlreadyUsed.
	Consume(ctx context.Context, challengeID id.ChallengeID) error
}
