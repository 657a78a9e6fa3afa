// Package registration orchestrates the public agent lifecycle: intake,
// challenge issuance, domain validation, certificate issuance, and the
// transparency log append.
package registration

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"ansregistry/internal/registration/metrics"
	"ansregistry/internal/registry/models"
	"ansregistry/internal/registry/store"
	"ansregistry/internal/translog"
	id "ansregistry/pkg/domain"
	dErrors "ansregistry/pkg/domain-errors"
	"ansregistry/pkg/platform/sentinel"
	"ansregistry/pkg/requestcontext"
)

// ChallengeManager is the challenge lifecycle the coordinator depends on.
type ChallengeManager interface {
	Create(ctx context.Context, agentID id.AgentID) (*models.ValidationChallenge, error)
	FindActive(ctx context.Context, agentID id.AgentID) (*models.ValidationChallenge, error)
	Consume(ctx context.Context, challengeID id.ChallengeID) error
}

// CertificateAuthority is the narrow signing capability the coordinator
// needs; the in-process implementation can be swapped for a hardware-backed
// or remote signer without touching this package.
type CertificateAuthority interface {
	IssueCertificate(ctx context.Context, csrPEM, subjectHost string) (string, error)
	CertificatePEM() string
	Fingerprint() string
}

// DomainValidator proves control of a host.
type DomainValidator interface {
	VerifyTXT(ctx context.Context, recordName, token string) error
}

// TransparencyLog appends issuance events. Append joins the ambient
// transaction so the entry commits with the status change it documents.
type TransparencyLog interface {
	Append(ctx context.Context, p translog.AppendParams) (*translog.Entry, error)
}

// StoreTx runs a function as one transaction; stores invoked with the inner
// context join that transaction.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service is the registration coordinator.
type Service struct {
	agents     store.AgentStore
	challenges ChallengeManager
	ca         CertificateAuthority
	dns        DomainValidator
	log        TransparencyLog
	tx         StoreTx
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Config wires the coordinator's collaborators.
type Config struct {
	Agents     store.AgentStore
	Challenges ChallengeManager
	CA         CertificateAuthority
	DNS        DomainValidator
	Log        TransparencyLog
	Tx         StoreTx
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

func NewService(cfg Config) *Service {
	return &Service{
		agents:     cfg.Agents,
		challenges: cfg.Challenges,
		ca:         cfg.CA,
		dns:        cfg.DNS,
		log:        cfg.Log,
		tx:         cfg.Tx,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// RegisterRequest carries intake fields for a new agent.
type RegisterRequest struct {
	DisplayName string
	Description string
	Version     string
	Host        string
	Endpoints   []string
	CSRPEM      string
}

// RegisterResult is the accepted registration plus the DNS-01 instruction
// the caller must fulfill.
type RegisterResult struct {
	Agent      *models.Agent
	Challenge  *models.ValidationChallenge
	RecordName string
}

// Register validates intake, derives the ANS name, and atomically creates
// the pending agent together with its first validation challenge. A
// duplicate name fails with a conflict and mutates nothing: the store's
// unique constraint is the sole serialization point for that race.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	now := requestcontext.Now(ctx)
	agent, err := models.NewAgent(id.NewAgentID(), models.NewAgentParams{
		DisplayName: req.DisplayName,
		Description: req.Description,
		Version:     req.Version,
		Host:        req.Host,
		Endpoints:   req.Endpoints,
		CSRPEM:      req.CSRPEM,
	}, now)
	if err != nil {
		s.metrics.IncrementRegistration("invalid")
		return nil, err
	}

	var challenge *models.ValidationChallenge
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.agents.Create(txCtx, agent); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "ans name is already registered: "+agent.ANSName.String())
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "create agent")
		}
		c, err := s.challenges.Create(txCtx, agent.ID)
		if err != nil {
			return err
		}
		challenge = c
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.metrics.IncrementRegistration("conflict")
		} else {
			s.metrics.IncrementRegistration("error")
		}
		return nil, err
	}

	s.metrics.IncrementRegistration("accepted")
	s.logger.InfoContext(ctx, "agent registered",
		"request_id", requestcontext.RequestID(ctx),
		"agent_id", agent.ID,
		"ans_name", agent.ANSName,
	)
	return &RegisterResult{
		Agent:      agent,
		Challenge:  challenge,
		RecordName: id.ChallengeRecordName(agent.Host),
	}, nil
}

// VerifyResult is the issued identity.
type VerifyResult struct {
	Agent     *models.Agent
	CertPEM   string
	CACertPEM string
	LogEntry  *translog.Entry
}

// registeredPayload is the opaque event payload recorded in the log.
type registeredPayload struct {
	DisplayName string `json:"display_name"`
}

// VerifyAndIssue checks the pending challenge against the live DNS TXT
// record, signs the stored CSR, and commits the four-effect transition in a
// single transaction: agent active + certificate stored, challenge consumed,
// log entry appended. Any failure before the commit leaves the agent
// PENDING_VALIDATION with the challenge still usable.
func (s *Service) VerifyAndIssue(ctx context.Context, agentID id.AgentID) (*VerifyResult, error) {
	start := time.Now()

	agent, err := s.getAgent(ctx, agentID)
	if err != nil {
		s.metrics.IncrementVerification("rejected")
		return nil, err
	}
	if err := agent.CanActivate(); err != nil {
		s.metrics.IncrementVerification("rejected")
		return nil, err
	}

	challenge, err := s.challenges.FindActive(ctx, agentID)
	if err != nil {
		s.metrics.IncrementVerification("rejected")
		return nil, err
	}
	if challenge == nil {
		s.metrics.IncrementVerification("rejected")
		return nil, dErrors.New(dErrors.CodeNoChallenge, "no unconsumed, non-expired challenge exists for this agent")
	}

	if err := s.dns.VerifyTXT(ctx, id.ChallengeRecordName(agent.Host), challenge.Token); err != nil {
		s.metrics.IncrementDNSValidation("failed")
		s.metrics.IncrementVerification("dns_failed")
		return nil, err
	}
	s.metrics.IncrementDNSValidation("ok")

	certPEM, err := s.ca.IssueCertificate(ctx, agent.CSRPEM, agent.Host)
	if err != nil {
		s.metrics.IncrementVerification("ca_failed")
		s.logger.ErrorContext(ctx, "certificate issuance failed",
			"request_id", requestcontext.RequestID(ctx),
			"agent_id", agent.ID,
			"error", err,
		)
		return nil, err
	}

	payload, err := json.Marshal(registeredPayload{DisplayName: agent.DisplayName})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal log payload")
	}

	now := requestcontext.Now(ctx)
	var entry *translog.Entry
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.agents.Activate(txCtx, agent.ID, certPEM, now); err != nil {
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				return dErrors.New(dErrors.CodeNotFound, "agent does not exist")
			case errors.Is(err, sentinel.ErrInvalidState):
				return dErrors.New(dErrors.CodeInvalidState, "agent is not awaiting validation")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "activate agent")
		}
		if err := s.challenges.Consume(txCtx, challenge.ID); err != nil {
			return err
		}
		e, err := s.log.Append(txCtx, translog.AppendParams{
			EventType:  translog.EventAgentRegistered,
			AgentID:    agent.ID.String(),
			ANSName:    agent.ANSName.String(),
			Data:       payload,
			RecordedAt: now,
		})
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		s.metrics.IncrementVerification("rejected")
		return nil, err
	}

	agent.ApplyActivation(certPEM, now)
	s.metrics.IncrementVerification("issued")
	s.metrics.SetLogTreeSize(entry.Position)
	s.metrics.ObserveIssueLatency(time.Since(start))
	s.logger.InfoContext(ctx, "agent identity issued",
		"request_id", requestcontext.RequestID(ctx),
		"agent_id", agent.ID,
		"ans_name", agent.ANSName,
		"log_position", entry.Position,
	)

	return &VerifyResult{
		Agent:     agent,
		CertPEM:   certPEM,
		CACertPEM: s.ca.CertificatePEM(),
		LogEntry:  entry,
	}, nil
}

// GetAgent returns the full agent record.
func (s *Service) GetAgent(ctx context.Context, agentID id.AgentID) (*models.Agent, error) {
	return s.getAgent(ctx, agentID)
}

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Search returns active agents whose display name, description, or host
// contains the query substring. The limit is clamped to a sane range.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*models.Agent, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	agents, err := s.agents.SearchActive(ctx, query, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "search agents")
	}
	return agents, nil
}

func (s *Service) getAgent(ctx context.Context, agentID id.AgentID) (*models.Agent, error) {
	agent, err := s.agents.FindByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "agent does not exist")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find agent")
	}
	return agent, nil
}
