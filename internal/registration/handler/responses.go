package handler

import (
	"time"

	"ansregistry/internal/registration"
	"ansregistry/internal/registry/models"
)

// AgentResponse is the public view of an agent record. Private key material
// never exists server-side; the CSR is omitted because callers already hold
// it.
type AgentResponse struct {
	AgentID     string    `json:"agent_id"`
	ANSName     string    `json:"ans_name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version"`
	Host        string    `json:"host"`
	Endpoints   []string  `json:"endpoints,omitempty"`
	Status      string    `json:"status"`
	CertPEM     string    `json:"certificate_pem,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toAgentResponse(a *models.Agent) AgentResponse {
	return AgentResponse{
		AgentID:     a.ID.String(),
		ANSName:     a.ANSName.String(),
		DisplayName: a.DisplayName,
		Description: a.Description,
		Version:     a.Version,
		Host:        a.Host,
		Endpoints:   a.Endpoints,
		Status:      string(a.Status),
		CertPEM:     a.CertPEM,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// RegisterResponse acknowledges intake and tells the caller exactly which
// DNS TXT record to publish before verification can succeed.
type RegisterResponse struct {
	Agent     AgentResponse     `json:"agent"`
	Challenge ChallengeResponse `json:"challenge"`
}

type ChallengeResponse struct {
	RecordName string    `json:"record_name"`
	RecordType string    `json:"record_type"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// VerifyResponse carries the issued identity plus the log coordinates that
// let the caller audit its own inclusion.
type VerifyResponse struct {
	Agent          AgentResponse `json:"agent"`
	CertificatePEM string        `json:"certificate_pem"`
	CACertPEM      string        `json:"ca_certificate_pem"`
	LogPosition    uint64        `json:"log_position"`
	LogEntryHash   string        `json:"log_entry_hash"`
}

// SearchResponse wraps search results so the shape can grow pagination
// fields without breaking clients.
type SearchResponse struct {
	Agents []AgentResponse `json:"agents"`
}

func toRegisterResponse(res *registration.RegisterResult) RegisterResponse {
	return RegisterResponse{
		Agent: toAgentResponse(res.Agent),
		Challenge: ChallengeResponse{
			RecordName: res.RecordName,
			RecordType: "TXT",
			Token:      res.Challenge.Token,
			ExpiresAt:  res.Challenge.ExpiresAt,
		},
	}
}

func toVerifyResponse(res *registration.VerifyResult) VerifyResponse {
	return VerifyResponse{
		Agent:          toAgentResponse(res.Agent),
		CertificatePEM: res.CertPEM,
		CACertPEM:      res.CACertPEM,
		LogPosition:    res.LogEntry.Position,
		LogEntryHash:   res.LogEntry.EntryHash,
	}
}
