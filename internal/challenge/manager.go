// Package challenge issues and consumes the single-use, time-bounded
// domain-ownership tokens used for DNS-01 style validation.
package challenge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"ansregistry/internal/registry/models"
	"ansregistry/internal/registry/store"
	id "ansregistry/pkg/domain"
	dErrors "ansregistry/pkg/domain-errors"
	"ansregistry/pkg/platform/sentinel"
	"ansregistry/pkg/requestcontext"
)

const (
	// tokenBytes gives 256 bits of entropy; the floor for a usable token
	// is 128.
	tokenBytes = 32

	defaultTTL = time.Hour
)

// Manager owns the challenge lifecycle.
type Manager struct {
	challenges store.ChallengeStore
	ttl        time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the one-hour validity window (dev and tests only).
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// NewManager constructs a Manager over the given store.
func NewManager(challenges store.ChallengeStore, opts ...Option) *Manager {
	m := &Manager{challenges: challenges, ttl: defaultTTL}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create generates a fresh challenge for the agent: a cryptographically
// random token with a fixed validity window.
func (m *Manager) Create(ctx context.Context, agentID id.AgentID) (*models.ValidationChallenge, error) {
	token, err := newToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate challenge token")
	}
	now := requestcontext.Now(ctx)
	challenge := &models.ValidationChallenge{
		ID:        id.NewChallengeID(),
		AgentID:   agentID,
		Token:     token,
		ExpiresAt: now.Add(m.ttl),
		Used:      false,
		CreatedAt: now,
	}
	if err := m.challenges.Create(ctx, challenge); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist challenge")
	}
	return challenge, nil
}

// FindActive returns the most recent unconsumed, non-expired challenge for
// the agent, or nil when none exists.
func (m *Manager) FindActive(ctx context.Context, agentID id.AgentID) (*models.ValidationChallenge, error) {
	challenge, err := m.challenges.FindActive(ctx, agentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find active challenge")
	}
	return challenge, nil
}

// Consume marks the challenge used. It succeeds exactly once; later calls
// fail so a consumed challenge can never satisfy another verification.
func (m *Manager) Consume(ctx context.Context, challengeID id.ChallengeID) error {
	if err := m.challenges.Consume(ctx, challengeID); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return dErrors.Wrap(err, dErrors.CodeNoChallenge, "challenge already consumed")
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeNoChallenge, "challenge does not exist")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "consume challenge")
	}
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
