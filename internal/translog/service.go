package translog

import (
	"context"
	"fmt"
	"time"

	dErrors "ansregistry/pkg/domain-errors"
)

// Store persists log entries. Implementations must treat the relation as
// append-only: no updates, no deletes.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Tail(ctx context.Context) (*Entry, error) // nil when the log is empty
	Count(ctx context.Context) (uint64, error)
	List(ctx context.Context) ([]*Entry, error) // ascending by position
}

// Log appends and audits the hash chain. Append must run inside the same
// transaction as the state change it documents; the store picks the
// transaction out of the context.
type Log struct {
	store Store
}

func New(store Store) *Log {
	return &Log{store: store}
}

// Append reads the current tail, chains the new entry to it, assigns the
// next position and persists. RecordedAt is truncated to the precision the
// chain format hashes, so the stored and recomputed hashes always agree.
func (l *Log) Append(ctx context.Context, p AppendParams) (*Entry, error) {
	tail, err := l.store.Tail(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read log tail")
	}

	prevHash := GenesisHash
	var position uint64 = 1
	if tail != nil {
		prevHash = tail.EntryHash
		position = tail.Position + 1
	}

	data := p.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	entry := &Entry{
		Position:   position,
		EventType:  p.EventType,
		AgentID:    p.AgentID,
		ANSName:    p.ANSName,
		Data:       data,
		PrevHash:   prevHash,
		RecordedAt: p.RecordedAt.UTC().Truncate(time.Microsecond),
	}
	entry.EntryHash, err = ComputeEntryHash(prevHash, entry)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "compute entry hash")
	}

	if err := l.store.Append(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "append log entry")
	}
	return entry, nil
}

// Checkpoint returns the tree size and chain head. An empty log reports the
// genesis value and a zero timestamp.
func (l *Log) Checkpoint(ctx context.Context) (*Checkpoint, error) {
	count, err := l.store.Count(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "count log entries")
	}
	cp := &Checkpoint{TreeSize: count, RootHash: GenesisHash}
	if count == 0 {
		return cp, nil
	}
	tail, err := l.store.Tail(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read log tail")
	}
	cp.RootHash = tail.EntryHash
	cp.Timestamp = tail.RecordedAt
	return cp, nil
}

// Verify recomputes the whole chain from the genesis value and checks every
// stored hash and position. A nil return means the log is intact.
func (l *Log) Verify(ctx context.Context) error {
	entries, err := l.store.List(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list log entries")
	}
	prevHash := GenesisHash
	for i, e := range entries {
		wantPos := uint64(i) + 1
		if e.Position != wantPos {
			return fmt.Errorf("log entry at index %d has position %d, want %d", i, e.Position, wantPos)
		}
		if e.PrevHash != prevHash {
			return fmt.Errorf("log entry %d: stored prev_hash does not match chain head", e.Position)
		}
		computed, err := ComputeEntryHash(prevHash, e)
		if err != nil {
			return fmt.Errorf("log entry %d: %w", e.Position, err)
		}
		if computed != e.EntryHash {
			return fmt.Errorf("log entry %d: stored hash does not match recomputed hash", e.Position)
		}
		prevHash = e.EntryHash
	}
	return nil
}
