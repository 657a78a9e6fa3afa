// Package domain holds typed identifiers and domain primitives shared across
// modules. Construct values via the ParseXxx functions at trust boundaries;
// direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "ansregistry/pkg/domain-errors"
)

// AgentID uniquely identifies one registered agent. Generated at intake,
// immutable afterwards.
type AgentID uuid.UUID

// NewAgentID returns a fresh random agent ID.
func NewAgentID() AgentID {
	return AgentID(uuid.New())
}

// ParseAgentID constructs an AgentID from external input.
func ParseAgentID(s string) (AgentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AgentID{}, dErrors.New(dErrors.CodeBadRequest, "invalid agent id")
	}
	return AgentID(u), nil
}

// String returns the canonical UUID form.
func (id AgentID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the ID is the zero UUID.
func (id AgentID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// ChallengeID uniquely identifies one validation challenge.
type ChallengeID uuid.UUID

// NewChallengeID returns a fresh random challenge ID.
func NewChallengeID() ChallengeID {
	return ChallengeID(uuid.New())
}

// ParseChallengeID constructs a ChallengeID from external input.
func ParseChallengeID(s string) (ChallengeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ChallengeID{}, dErrors.New(dErrors.CodeBadRequest, "invalid challenge id")
	}
	return ChallengeID(u), nil
}

// String returns the canonical UUID form.
func (id ChallengeID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the ID is the zero UUID.
func (id ChallengeID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}
