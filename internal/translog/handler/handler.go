// Package handler exposes the transparency log head to external auditors.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ansregistry/internal/translog"
	"ansregistry/pkg/platform/httputil"
	"ansregistry/pkg/requestcontext"
)

// Service defines the log operations the handler depends on.
type Service interface {
	Checkpoint(ctx context.Context) (*translog.Checkpoint, error)
}

// Handler handles transparency log endpoints.
type Handler struct {
	log    Service
	logger *slog.Logger
}

// New creates a new transparency log Handler.
func New(log Service, logger *slog.Logger) *Handler {
	return &Handler{log: log, logger: logger}
}

// Register registers the log routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/log/checkpoint", h.handleCheckpoint)
}

// CheckpointResponse is a signed-nothing, content-addressed head statement:
// tree size plus the hash of the latest entry. An empty log reports the
// genesis hash and a null timestamp.
type CheckpointResponse struct {
	TreeSize  uint64     `json:"tree_size"`
	RootHash  string     `json:"root_hash"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (h *Handler) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cp, err := h.log.Checkpoint(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "checkpoint read failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	resp := CheckpointResponse{TreeSize: cp.TreeSize, RootHash: cp.RootHash}
	if !cp.Timestamp.IsZero() {
		ts := cp.Timestamp
		resp.Timestamp = &ts
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
