// Package translog implements the append-only, hash-chained transparency log
// of issuance events. Each entry's hash covers the previous entry's hash plus
// a canonical serialization of its own content, so recomputing the chain from
// position 1 must reproduce every stored hash; any historical edit changes
// the checkpoint root.
package translog

import (
	"encoding/json"
	"time"
)

// EventType classifies log entries. Currently only registration issuance is
// recorded; the type exists so future event kinds extend without a schema
// change.
type EventType string

const (
	EventAgentRegistered EventType = "agent_registered"
)

// GenesisHash is the fixed well-known value the first entry chains from.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one immutable log record. Position is 1-based and equals the tree
// size after the entry was appended.
type Entry struct {
	Position   uint64
	EventType  EventType
	AgentID    string
	ANSName    string
	Data       json.RawMessage
	PrevHash   string
	EntryHash  string
	RecordedAt time.Time
}

// AppendParams carries the caller-controlled fields of a new entry.
type AppendParams struct {
	EventType  EventType
	AgentID    string
	ANSName    string
	Data       json.RawMessage
	RecordedAt time.Time
}

// Checkpoint is a snapshot of the log head for external auditors.
type Checkpoint struct {
	TreeSize  uint64
	RootHash  string
	Timestamp time.Time
}
