package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ansregistry/internal/registration"
	"ansregistry/internal/registry/models"
	"ansregistry/internal/translog"
	id "ansregistry/pkg/domain"
	dErrors "ansregistry/pkg/domain-errors"
)

type stubService struct {
	registerRes *registration.RegisterResult
	registerErr error
	verifyRes   *registration.VerifyResult
	verifyErr   error
	getRes      *models.Agent
	getErr      error
	searchRes   []*models.Agent
	searchErr   error

	gotRegister registration.RegisterRequest
	gotVerifyID id.AgentID
	gotQuery    string
	gotLimit    int
}

func (s *stubService) Register(_ context.Context, req registration.RegisterRequest) (*registration.RegisterResult, error) {
	s.gotRegister = req
	return s.registerRes, s.registerErr
}

func (s *stubService) VerifyAndIssue(_ context.Context, agentID id.AgentID) (*registration.VerifyResult, error) {
	s.gotVerifyID = agentID
	return s.verifyRes, s.verifyErr
}

func (s *stubService) GetAgent(_ context.Context, _ id.AgentID) (*models.Agent, error) {
	return s.getRes, s.getErr
}

func (s *stubService) Search(_ context.Context, query string, limit int) ([]*models.Agent, error) {
	s.gotQuery = query
	s.gotLimit = limit
	return s.searchRes, s.searchErr
}

func newTestRouter(svc Service) http.Handler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return r
}

func testAgent(t *testing.T) *models.Agent {
	t.Helper()
	agent, err := models.NewAgent(id.NewAgentID(), models.NewAgentParams{
		DisplayName: "Translation Bot",
		Version:     "1.0.0",
		Host:        "bot.example.com",
		Endpoints:   []string{"https://bot.example.com/a2a"},
		CSRPEM:      "csr",
	}, time.Now())
	require.NoError(t, err)
	return agent
}

func TestHandleRegister(t *testing.T) {
	agent := testAgent(t)
	svc := &stubService{
		registerRes: &registration.RegisterResult{
			Agent: agent,
			Challenge: &models.ValidationChallenge{
				ID:        id.NewChallengeID(),
				AgentID:   agent.ID,
				Token:     "challenge-token",
				ExpiresAt: time.Now().Add(time.Hour),
			},
			RecordName: "_ans-challenge.bot.example.com",
		},
	}
	router := newTestRouter(svc)

	body := `{
		"display_name": "Translation Bot",
		"version": "1.0.0",
		"host": "bot.example.com",
		"endpoints": ["https://bot.example.com/a2a"],
		"csr_pem": "csr"
	}`
	req := httptest.NewRequest(http.MethodPost, "/agents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ans://v1.0.0.bot.example.com", resp.Agent.ANSName)
	assert.Equal(t, string(models.StatusPendingValidation), resp.Agent.Status)
	assert.Equal(t, "_ans-challenge.bot.example.com", resp.Challenge.RecordName)
	assert.Equal(t, "TXT", resp.Challenge.RecordType)
	assert.Equal(t, "challenge-token", resp.Challenge.Token)
	assert.Empty(t, resp.Agent.CertPEM, "no certificate before verification")

	assert.Equal(t, "bot.example.com", svc.gotRegister.Host)
}

func TestHandleRegisterErrors(t *testing.T) {
	t.Run("malformed JSON", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		req := httptest.NewRequest(http.MethodPost, "/agents", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "bad_request")
	})

	t.Run("missing required fields", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		req := httptest.NewRequest(http.MethodPost, "/agents", strings.NewReader(`{"display_name":"X"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "version")
		assert.Contains(t, rec.Body.String(), "csr_pem")
	})

	t.Run("duplicate name", func(t *testing.T) {
		svc := &stubService{registerErr: dErrors.New(dErrors.CodeConflict, "ans name is already registered")}
		router := newTestRouter(svc)
		body := `{"display_name":"X","version":"1","host":"dup.example.com","csr_pem":"csr"}`
		req := httptest.NewRequest(http.MethodPost, "/agents", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "conflict")
	})
}

func TestHandleVerify(t *testing.T) {
	agent := testAgent(t)
	agent.ApplyActivation("leaf-pem", time.Now())
	svc := &stubService{
		verifyRes: &registration.VerifyResult{
			Agent:     agent,
			CertPEM:   "leaf-pem",
			CACertPEM: "root-pem",
			LogEntry:  &translog.Entry{Position: 7, EntryHash: "deadbeef"},
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/agents/"+agent.ID.String()+"/verify", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(models.StatusActive), resp.Agent.Status)
	assert.Equal(t, "leaf-pem", resp.CertificatePEM)
	assert.Equal(t, "root-pem", resp.CACertPEM)
	assert.Equal(t, uint64(7), resp.LogPosition)
	assert.Equal(t, "deadbeef", resp.LogEntryHash)

	assert.Equal(t, agent.ID, svc.gotVerifyID)
}

func TestHandleVerifyErrors(t *testing.T) {
	agentID := id.NewAgentID().String()

	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"invalid agent id", "/agents/not-a-uuid/verify", nil, http.StatusBadRequest, "bad_request"},
		{"unknown agent", "/agents/" + agentID + "/verify", dErrors.New(dErrors.CodeNotFound, "agent does not exist"), http.StatusNotFound, "not_found"},
		{"already active", "/agents/" + agentID + "/verify", dErrors.New(dErrors.CodeInvalidState, "agent is not awaiting validation"), http.StatusBadRequest, "invalid_state"},
		{"no challenge", "/agents/" + agentID + "/verify", dErrors.New(dErrors.CodeNoChallenge, "no unconsumed challenge"), http.StatusBadRequest, "no_valid_challenge"},
		{"dns failure", "/agents/" + agentID + "/verify", dErrors.New(dErrors.CodeDNSValidation, "record missing"), http.StatusInternalServerError, "dns_validation_failed"},
		{"ca failure", "/agents/" + agentID + "/verify", dErrors.New(dErrors.CodeCA, "signing failed"), http.StatusInternalServerError, "ca_failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubService{verifyErr: tt.err})
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantKind)
		})
	}
}

func TestHandleGet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		agent := testAgent(t)
		router := newTestRouter(&stubService{getRes: agent})
		req := httptest.NewRequest(http.MethodGet, "/agents/"+agent.ID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp AgentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, agent.ID.String(), resp.AgentID)
	})

	t.Run("not found", func(t *testing.T) {
		router := newTestRouter(&stubService{getErr: dErrors.New(dErrors.CodeNotFound, "agent does not exist")})
		req := httptest.NewRequest(http.MethodGet, "/agents/"+id.NewAgentID().String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleSearch(t *testing.T) {
	t.Run("passes query and limit through", func(t *testing.T) {
		svc := &stubService{searchRes: []*models.Agent{testAgent(t)}}
		router := newTestRouter(svc)
		req := httptest.NewRequest(http.MethodGet, "/agents?q=translator&limit=5", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "translator", svc.gotQuery)
		assert.Equal(t, 5, svc.gotLimit)

		var resp SearchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Agents, 1)
	})

	t.Run("empty result is an empty array", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		req := httptest.NewRequest(http.MethodGet, "/agents", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"agents":[]}`, rec.Body.String())
	})

	t.Run("non-numeric limit", func(t *testing.T) {
		router := newTestRouter(&stubService{})
		req := httptest.NewRequest(http.MethodGet, "/agents?limit=lots", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
