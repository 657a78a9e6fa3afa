package models

import (
	"time"

	id "ansregistry/pkg/domain"
)

// ValidationChallenge is a single-use, time-bounded domain-ownership token.
// The agent operator proves control of the host by publishing the token as a
// DNS TXT record at _ans-challenge.{host}.
type ValidationChallenge struct {
	ID        id.ChallengeID
	AgentID   id.AgentID
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Usable reports whether the challenge can still satisfy a verification
// request at the given time.
func (c *ValidationChallenge) Usable(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}
