package translog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// entryContent is the hashed portion of an entry. Field set and names are
// part of the chain format: changing either invalidates existing chains.
type entryContent struct {
	Position   uint64          `json:"position"`
	EventType  string          `json:"event_type"`
	AgentID    string          `json:"agent_id"`
	ANSName    string          `json:"ans_name"`
	Data       json.RawMessage `json:"data"`
	RecordedAt string          `json:"recorded_at"`
}

// canonicalContent serializes the hashed fields deterministically: marshal,
// round-trip through a generic value so object keys sort, and re-marshal
// compact (RFC 8785 style). Data payloads therefore hash identically no
// matter the key order the producer used.
func canonicalContent(e *Entry) ([]byte, error) {
	content := entryContent{
		Position:   e.Position,
		EventType:  string(e.EventType),
		AgentID:    e.AgentID,
		ANSName:    e.ANSName,
		Data:       e.Data,
		RecordedAt: e.RecordedAt.UTC().Format(timeLayout),
	}
	b, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("canonical content: marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("canonical content: unmarshal: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical content: re-marshal: %w", err)
	}
	return out, nil
}

// timeLayout pins recorded_at to microsecond precision, matching what
// PostgreSQL round-trips, so hashes recompute identically after persistence.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// ComputeEntryHash derives an entry's hash from the previous entry's hash
// (hex) and the entry's canonical content. It is a pure function: the same
// inputs always produce the same hash.
func ComputeEntryHash(prevHash string, e *Entry) (string, error) {
	prev, err := hex.DecodeString(prevHash)
	if err != nil {
		return "", fmt.Errorf("decode previous hash: %w", err)
	}
	content, err := canonicalContent(e)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(prev)
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil)), nil
}
