// Package handler exposes the registration lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ansregistry/internal/registration"
	"ansregistry/internal/registry/models"
	id "ansregistry/pkg/domain"
	dErrors "ansregistry/pkg/domain-errors"
	"ansregistry/pkg/platform/httputil"
	"ansregistry/pkg/requestcontext"
)

// Service defines the registration operations the handler depends on.
type Service interface {
	Register(ctx context.Context, req registration.RegisterRequest) (*registration.RegisterResult, error)
	VerifyAndIssue(ctx context.Context, agentID id.AgentID) (*registration.VerifyResult, error)
	GetAgent(ctx context.Context, agentID id.AgentID) (*models.Agent, error)
	Search(ctx context.Context, query string, limit int) ([]*models.Agent, error)
}

// Handler handles agent registration endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a new registration Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the agent routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/agents", h.handleRegister)
	r.Get("/agents", h.handleSearch)
	r.Get("/agents/{agentID}", h.handleGet)
	r.Post("/agents/{agentID}/verify", h.handleVerify)
}

// handleRegister accepts a registration and returns the DNS challenge the
// caller must fulfill. 202 signals the identity is not issued yet.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Register(ctx, registration.RegisterRequest{
		DisplayName: req.DisplayName,
		Description: req.Description,
		Version:     req.Version,
		Host:        req.Host,
		Endpoints:   req.Endpoints,
		CSRPEM:      req.CSRPEM,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "registration rejected",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, toRegisterResponse(res))
}

// handleVerify runs domain validation and, on success, returns the issued
// certificate chain and log coordinates.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	agentID, err := id.ParseAgentID(chi.URLParam(r, "agentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.VerifyAndIssue(ctx, agentID)
	if err != nil {
		h.logger.WarnContext(ctx, "verification failed",
			"request_id", requestID,
			"agent_id", agentID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toVerifyResponse(res))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	agentID, err := id.ParseAgentID(chi.URLParam(r, "agentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	agent, err := h.service.GetAgent(r.Context(), agentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAgentResponse(agent))
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer"))
			return
		}
		limit = n
	}

	agents, err := h.service.Search(r.Context(), query, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := SearchResponse{Agents: make([]AgentResponse, 0, len(agents))}
	for _, a := range agents {
		out.Agents = append(out.Agents, toAgentResponse(a))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
