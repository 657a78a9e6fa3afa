package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ansregistry/internal/registry/models"
	id "ansregistry/pkg/domain"
	"ansregistry/pkg/platform/sentinel"
	txcontext "ansregistry/pkg/platform/tx"
	"ansregistry/pkg/requestcontext"
)

// Schema is the registry DDL, applied by deployment tooling and the
// integration test harness.
//
//go:embed schema.sql
var Schema string

const uniqueViolation = "23505"

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresAgentStore persists agents in PostgreSQL. When the context carries
// a transaction (pkg/platform/tx) all statements join it.
type PostgresAgentStore struct {
	db *sql.DB
}

func NewPostgresAgentStore(db *sql.DB) *PostgresAgentStore {
	return &PostgresAgentStore{db: db}
}

func (s *PostgresAgentStore) q(ctx context.Context) dbtx {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const agentColumns = `id, ans_name, display_name, description, version, host, endpoints, csr_pem, cert_pem, status, created_at, updated_at`

func (s *PostgresAgentStore) Create(ctx context.Context, agent *models.Agent) error {
	query := `
		INSERT INTO agents (` + agentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		uuid.UUID(agent.ID),
		agent.ANSName.String(),
		agent.DisplayName,
		agent.Description,
		agent.Version,
		agent.Host,
		pq.Array(agent.Endpoints),
		agent.CSRPEM,
		agent.CertPEM,
		string(agent.Status),
		agent.CreatedAt,
		agent.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (s *PostgresAgentStore) FindByID(ctx context.Context, agentID id.AgentID) (*models.Agent, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, uuid.UUID(agentID))
	return scanAgent(row)
}

func (s *PostgresAgentStore) FindByANSName(ctx context.Context, name id.ANSName) (*models.Agent, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE ans_name = $1`, name.String())
	return scanAgent(row)
}

func (s *PostgresAgentStore) Activate(ctx context.Context, agentID id.AgentID, certPEM string, now time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE agents
		SET status = $1, cert_pem = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`,
		string(models.StatusActive),
		certPEM,
		now,
		uuid.UUID(agentID),
		string(models.StatusPendingValidation),
	)
	if err != nil {
		return fmt.Errorf("activate agent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate agent: %w", err)
	}
	if rows == 0 {
		// Either unknown or already activated; re-check for the caller.
		if _, err := s.FindByID(ctx, agentID); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresAgentStore) SearchActive(ctx context.Context, query string, limit int) ([]*models.Agent, error) {
	pattern := "%" + query + "%"
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+agentColumns+`
		FROM agents
		WHERE status = $1
		  AND (display_name ILIKE $2 OR description ILIKE $2 OR host ILIKE $2)
		ORDER BY created_at
		LIMIT $3
	`, string(models.StatusActive), pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgentRow(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgentFields(sc rowScanner) (*models.Agent, error) {
	var (
		agent     models.Agent
		agentID   uuid.UUID
		ansName   string
		endpoints pq.StringArray
		status    string
	)
	err := sc.Scan(
		&agentID,
		&ansName,
		&agent.DisplayName,
		&agent.Description,
		&agent.Version,
		&agent.Host,
		&endpoints,
		&agent.CSRPEM,
		&agent.CertPEM,
		&status,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	agent.ID = id.AgentID(agentID)
	agent.ANSName = id.ANSName(ansName)
	agent.Endpoints = []string(endpoints)
	agent.Status = models.AgentStatus(status)
	return &agent, nil
}

func scanAgent(row *sql.Row) (*models.Agent, error) {
	agent, err := scanAgentFields(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	return agent, nil
}

func scanAgentRow(rows *sql.Rows) (*models.Agent, error) {
	agent, err := scanAgentFields(rows)
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	return agent, nil
}

// PostgresChallengeStore persists validation challenges in PostgreSQL.
type PostgresChallengeStore struct {
	db *sql.DB
}

func NewPostgresChallengeStore(db *sql.DB) *PostgresChallengeStore {
	return &PostgresChallengeStore{db: db}
}

func (s *PostgresChallengeStore) q(ctx context.Context) dbtx {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresChallengeStore) Create(ctx context.Context, challenge *models.ValidationChallenge) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO challenges (id, agent_id, token, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.UUID(challenge.ID),
		uuid.UUID(challenge.AgentID),
		challenge.Token,
		challenge.ExpiresAt,
		challenge.Used,
		challenge.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

func (s *PostgresChallengeStore) FindActive(ctx context.Context, agentID id.AgentID) (*models.ValidationChallenge, error) {
	now := requestcontext.Now(ctx)
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, agent_id, token, expires_at, used, created_at
		FROM challenges
		WHERE agent_id = $1 AND used = FALSE AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`, uuid.UUID(agentID), now)

	var (
		challenge   models.ValidationChallenge
		challengeID uuid.UUID
		ownerID     uuid.UUID
	)
	err := row.Scan(&challengeID, &ownerID, &challenge.Token, &challenge.ExpiresAt, &challenge.Used, &challenge.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find active challenge: %w", err)
	}
	challenge.ID = id.ChallengeID(challengeID)
	challenge.AgentID = id.AgentID(ownerID)
	return &challenge, nil
}

func (s *PostgresChallengeStore) Consume(ctx context.Context, challengeID id.ChallengeID) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE challenges SET used = TRUE WHERE id = $1 AND used = FALSE
	`, uuid.UUID(challengeID))
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	if rows == 0 {
		var exists bool
		err := s.q(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM challenges WHERE id = $1)`, uuid.UUID(challengeID)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("consume challenge: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrAlreadyUsed
	}
	return nil
}
