//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ansregistry/internal/registry/models"
	"ansregistry/internal/registry/store"
	id "ansregistry/pkg/domain"
	"ansregistry/pkg/platform/sentinel"
	"ansregistry/pkg/requestcontext"
	"ansregistry/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres   *containers.PostgresContainer
	agents     *store.PostgresAgentStore
	challenges *store.PostgresChallengeStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.agents = store.NewPostgresAgentStore(s.postgres.DB)
	s.challenges = store.NewPostgresChallengeStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
}

func newTestAgent(t *testing.T, host string) *models.Agent {
	t.Helper()
	agent, err := models.NewAgent(id.NewAgentID(), models.NewAgentParams{
		DisplayName: "Agent " + host,
		Description: "integration fixture",
		Version:     "1.0.0",
		Host:        host,
		Endpoints:   []string{"https://" + host + "/a2a"},
		CSRPEM:      "csr",
	}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return agent
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	agent := newTestAgent(s.T(), "pg.example.com")

	s.Require().NoError(s.agents.Create(ctx, agent))

	found, err := s.agents.FindByID(ctx, agent.ID)
	s.Require().NoError(err)
	s.Equal(agent.ANSName, found.ANSName)
	s.Equal(agent.Endpoints, found.Endpoints)
	s.Equal(models.StatusPendingValidation, found.Status)

	byName, err := s.agents.FindByANSName(ctx, agent.ANSName)
	s.Require().NoError(err)
	s.Equal(agent.ID, byName.ID)
}

func (s *PostgresStoreSuite) TestUniqueNameRace() {
	ctx := context.Background()

	const racers = 8
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.agents.Create(ctx, newTestAgent(s.T(), "race.example.com"))
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case s.ErrorIs(err, sentinel.ErrConflict):
			conflicts++
		default:
			s.FailNowf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, wins, "exactly one racer must win")
	s.Equal(racers-1, conflicts)
}

func (s *PostgresStoreSuite) TestActivateGuard() {
	ctx := context.Background()
	agent := newTestAgent(s.T(), "guard.example.com")
	s.Require().NoError(s.agents.Create(ctx, agent))

	s.Require().NoError(s.agents.Activate(ctx, agent.ID, "cert-pem", time.Now()))

	err := s.agents.Activate(ctx, agent.ID, "other-cert", time.Now())
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)

	found, err := s.agents.FindByID(ctx, agent.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, found.Status)
	s.Equal("cert-pem", found.CertPEM)
}

func (s *PostgresStoreSuite) TestSearchActive() {
	ctx := context.Background()

	pending := newTestAgent(s.T(), "pending.example.com")
	s.Require().NoError(s.agents.Create(ctx, pending))

	active := newTestAgent(s.T(), "finder.example.com")
	active.DisplayName = "Weather Oracle"
	s.Require().NoError(s.agents.Create(ctx, active))
	s.Require().NoError(s.agents.Activate(ctx, active.ID, "cert", time.Now()))

	got, err := s.agents.SearchActive(ctx, "weather", 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(active.ID, got[0].ID)

	got, err = s.agents.SearchActive(ctx, "", 10)
	s.Require().NoError(err)
	s.Len(got, 1, "pending agents stay invisible")
}

func (s *PostgresStoreSuite) TestChallengeLifecycle() {
	ctx := context.Background()
	agent := newTestAgent(s.T(), "chal.example.com")
	s.Require().NoError(s.agents.Create(ctx, agent))

	now := time.Now().UTC()
	lookupCtx := requestcontext.WithTime(ctx, now)

	expired := &models.ValidationChallenge{
		ID:        id.NewChallengeID(),
		AgentID:   agent.ID,
		Token:     "expired-token",
		ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now.Add(-2 * time.Hour),
	}
	s.Require().NoError(s.challenges.Create(ctx, expired))

	_, err := s.challenges.FindActive(lookupCtx, agent.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	live := &models.ValidationChallenge{
		ID:        id.NewChallengeID(),
		AgentID:   agent.ID,
		Token:     "live-token",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	s.Require().NoError(s.challenges.Create(ctx, live))

	found, err := s.challenges.FindActive(lookupCtx, agent.ID)
	s.Require().NoError(err)
	s.Equal(live.ID, found.ID)
	s.Equal("live-token", found.Token)

	s.Require().NoError(s.challenges.Consume(ctx, live.ID))
	s.Require().ErrorIs(s.challenges.Consume(ctx, live.ID), sentinel.ErrAlreadyUsed)

	_, err = s.challenges.FindActive(lookupCtx, agent.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
