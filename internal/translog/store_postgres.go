package translog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	txcontext "ansregistry/pkg/platform/tx"
)

// PostgresStore persists log entries in PostgreSQL. Appends issued inside the
// activation transaction join it via pkg/platform/tx, so the entry commits or
// rolls back together with the status change it documents.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) dbtx {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	agentID, err := uuid.Parse(entry.AgentID)
	if err != nil {
		return fmt.Errorf("append log entry: bad agent id: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO transparency_log
			(position, event_type, agent_id, ans_name, data, prev_hash, entry_hash, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		int64(entry.Position),
		string(entry.EventType),
		agentID,
		entry.ANSName,
		[]byte(entry.Data),
		entry.PrevHash,
		entry.EntryHash,
		entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

const entryColumns = `position, event_type, agent_id, ans_name, data, prev_hash, entry_hash, recorded_at`

func (s *PostgresStore) Tail(ctx context.Context) (*Entry, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM transparency_log ORDER BY position DESC LIMIT 1`)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func (s *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var count int64
	err := s.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM transparency_log`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count log entries: %w", err)
	}
	return uint64(count), nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Entry, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+entryColumns+` FROM transparency_log ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc rowScanner) (*Entry, error) {
	var (
		entry     Entry
		position  int64
		eventType string
		agentID   uuid.UUID
		data      []byte
	)
	err := sc.Scan(
		&position,
		&eventType,
		&agentID,
		&entry.ANSName,
		&data,
		&entry.PrevHash,
		&entry.EntryHash,
		&entry.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan log entry: %w", err)
	}
	entry.Position = uint64(position)
	entry.EventType = EventType(eventType)
	entry.AgentID = agentID.String()
	entry.Data = data
	entry.RecordedAt = entry.RecordedAt.UTC()
	return &entry, nil
}
