// Package models holds the persisted entities of the naming registry.
package models

import (
	"strings"
	"time"

	id "ansregistry/pkg/domain"
	dErrors "ansregistry/pkg/domain-errors"
)

// AgentStatus is the lifecycle state of a registration. The state machine is
// deliberately minimal: PENDING_VALIDATION at creation, one forward
// transition to ACTIVE on successful verification, nothing else.
type AgentStatus string

const (
	StatusPendingValidation AgentStatus = "PENDING_VALIDATION"
	StatusActive            AgentStatus = "ACTIVE"
)

// Agent is one registered agent identity.
//
// Invariants: ANSName is unique across all agents and computed exactly once
// at intake; CertPEM is non-empty if and only if Status is ACTIVE.
type Agent struct {
	ID          id.AgentID
	ANSName     id.ANSName
	DisplayName string
	Description string
	Version     string
	Host        string
	Endpoints   []string
	CSRPEM      string
	CertPEM     string
	Status      AgentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewAgentParams carries caller-supplied intake fields.
type NewAgentParams struct {
	DisplayName string
	Description string
	Version     string
	Host        string
	Endpoints   []string
	CSRPEM      string
}

// NewAgent validates intake fields, derives the ANS name, and returns a
// pending agent. The CSR is opaque here; the certificate authority parses it
// at issuance time.
func NewAgent(agentID id.AgentID, p NewAgentParams, now time.Time) (*Agent, error) {
	if strings.TrimSpace(p.DisplayName) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "agent display name is required")
	}
	if strings.TrimSpace(p.CSRPEM) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "certificate signing request is required")
	}
	name, err := id.DeriveANSName(p.Version, p.Host)
	if err != nil {
		return nil, err
	}
	return &Agent{
		ID:          agentID,
		ANSName:     name,
		DisplayName: strings.TrimSpace(p.DisplayName),
		Description: strings.TrimSpace(p.Description),
		Version:     strings.TrimSpace(p.Version),
		Host:        id.NormalizeHost(p.Host),
		Endpoints:   append([]string(nil), p.Endpoints...),
		CSRPEM:      p.CSRPEM,
		Status:      StatusPendingValidation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanActivate checks the single allowed forward transition.
func (a *Agent) CanActivate() error {
	if a.Status != StatusPendingValidation {
		return dErrors.New(dErrors.CodeInvalidState, "agent is not awaiting validation")
	}
	return nil
}

// ApplyActivation flips the agent to ACTIVE and records the issued leaf
// certificate. Callers must have checked CanActivate under the same lock or
// transaction.
func (a *Agent) ApplyActivation(certPEM string, now time.Time) {
	a.Status = StatusActive
	a.CertPEM = certPEM
	a.UpdatedAt = now
}
