package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ansregistry/internal/registry/models"
	id "ansregistry/pkg/domain"
	"ansregistry/pkg/platform/sentinel"
	"ansregistry/pkg/requestcontext"
)

// In-memory stores back unit tests and dev mode. They intentionally favor
// clarity over performance.

// InMemoryAgentStore keeps agents in maps guarded by a RWMutex.
type InMemoryAgentStore struct {
	mu     sync.RWMutex
	agents map[id.AgentID]*models.Agent
	byName map[id.ANSName]id.AgentID
}

func NewInMemoryAgentStore() *InMemoryAgentStore {
	return &InMemoryAgentStore{
		agents: make(map[id.AgentID]*models.Agent),
		byName: make(map[id.ANSName]id.AgentID),
	}
}

func (s *InMemoryAgentStore) Create(_ context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[agent.ANSName]; exists {
		return sentinel.ErrConflict
	}
	cp := cloneAgent(agent)
	s.agents[agent.ID] = cp
	s.byName[agent.ANSName] = agent.ID
	return nil
}

func (s *InMemoryAgentStore) FindByID(_ context.Context, agentID id.AgentID) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.agents[agentID]; ok {
		return cloneAgent(a), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryAgentStore) FindByANSName(_ context.Context, name id.ANSName) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if agentID, ok := s.byName[name]; ok {
		return cloneAgent(s.agents[agentID]), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryAgentStore) Activate(_ context.Context, agentID id.AgentID, certPEM string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if a.Status != models.StatusPendingValidation {
		return sentinel.ErrInvalidState
	}
	a.ApplyActivation(certPEM, now)
	return nil
}

func (s *InMemoryAgentStore) SearchActive(_ context.Context, query string, limit int) ([]*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(query))
	var out []*models.Agent
	for _, a := range s.agents {
		if a.Status != models.StatusActive {
			continue
		}
		if q != "" && !agentMatches(a, q) {
			continue
		}
		out = append(out, cloneAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func agentMatches(a *models.Agent, q string) bool {
	return strings.Contains(strings.ToLower(a.DisplayName), q) ||
		strings.Contains(strings.ToLower(a.Description), q) ||
		strings.Contains(strings.ToLower(a.Host), q)
}

func cloneAgent(a *models.Agent) *models.Agent {
	cp := *a
	cp.Endpoints = append([]string(nil), a.Endpoints...)
	return &cp
}

// InMemoryChallengeStore keeps challenges in a map guarded by a RWMutex.
type InMemoryChallengeStore struct {
	mu         sync.RWMutex
	challenges map[id.ChallengeID]*models.ValidationChallenge
}

func NewInMemoryChallengeStore() *InMemoryChallengeStore {
	return &InMemoryChallengeStore{challenges: make(map[id.ChallengeID]*models.ValidationChallenge)}
}

func (s *InMemoryChallengeStore) Create(_ context.Context, challenge *models.ValidationChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *challenge
	s.challenges[challenge.ID] = &cp
	return nil
}

func (s *InMemoryChallengeStore) FindActive(ctx context.Context, agentID id.AgentID) (*models.ValidationChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := requestcontext.Now(ctx)
	var latest *models.ValidationChallenge
	for _, c := range s.challenges {
		if c.AgentID != agentID || !c.Usable(now) {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryChallengeStore) Consume(_ context.Context, challengeID id.ChallengeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.Used {
		return sentinel.ErrAlreadyUsed
	}
	c.Used = true
	return nil
}

// Snapshot/Restore support the in-memory transaction runner below.

func (s *InMemoryAgentStore) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agents := make(map[id.AgentID]*models.Agent, len(s.agents))
	for k, v := range s.agents {
		agents[k] = cloneAgent(v)
	}
	byName := make(map[id.ANSName]id.AgentID, len(s.byName))
	for k, v := range s.byName {
		byName[k] = v
	}
	return &agentSnapshot{agents: agents, byName: byName}
}

func (s *InMemoryAgentStore) Restore(snapshot any) {
	snap := snapshot.(*agentSnapshot)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = snap.agents
	s.byName = snap.byName
}

type agentSnapshot struct {
	agents map[id.AgentID]*models.Agent
	byName map[id.ANSName]id.AgentID
}

func (s *InMemoryChallengeStore) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	challenges := make(map[id.ChallengeID]*models.ValidationChallenge, len(s.challenges))
	for k, v := range s.challenges {
		cp := *v
		challenges[k] = &cp
	}
	return challenges
}

func (s *InMemoryChallengeStore) Restore(snapshot any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges = snapshot.(map[id.ChallengeID]*models.ValidationChallenge)
}

// Snapshotter is implemented by in-memory stores that can capture and roll
// back their full state.
type Snapshotter interface {
	Snapshot() any
	Restore(snapshot any)
}

// MemoryTx runs a function as an all-or-nothing unit over in-memory stores:
// it serializes transactions with a mutex, snapshots every participating
// store up front, and restores the snapshots when the function errors. This
// mirrors the commit/rollback semantics of the SQL runner in cmd/server
// closely enough for the four-effect activation invariant to hold in tests
// and dev mode.
type MemoryTx struct {
	mu     sync.Mutex
	stores []Snapshotter
}

func NewMemoryTx(stores ...Snapshotter) *MemoryTx {
	return &MemoryTx{stores: stores}
}

func (t *MemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshots := make([]any, len(t.stores))
	for i, s := range t.stores {
		snapshots[i] = s.Snapshot()
	}
	if err := fn(ctx); err != nil {
		for i, s := range t.stores {
			s.Restore(snapshots[i])
		}
		return err
	}
	return nil
}
