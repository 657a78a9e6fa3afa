package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "ansregistry/pkg/domain-errors"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"bad request", dErrors.New(dErrors.CodeBadRequest, "missing field"), http.StatusBadRequest, "bad_request"},
		{"invalid state", dErrors.New(dErrors.CodeInvalidState, "already active"), http.StatusBadRequest, "invalid_state"},
		{"no challenge", dErrors.New(dErrors.CodeNoChallenge, "expired"), http.StatusBadRequest, "no_valid_challenge"},
		{"conflict", dErrors.New(dErrors.CodeConflict, "name taken"), http.StatusConflict, "conflict"},
		{"not found", dErrors.New(dErrors.CodeNotFound, "no such agent"), http.StatusNotFound, "not_found"},
		{"dns failure", dErrors.New(dErrors.CodeDNSValidation, "record missing"), http.StatusInternalServerError, "dns_validation_failed"},
		{"ca failure", dErrors.New(dErrors.CodeCA, "signing failed"), http.StatusInternalServerError, "ca_failure"},
		{"uncoded error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantKind, body["error"])
		})
	}
}

func TestWriteErrorHidesOpaqueDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, dErrors.New(dErrors.CodeCA, "root key unreadable at /var/lib/ca"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "error_description")
}

func TestWriteErrorSurfacesCallerFacingDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, dErrors.New(dErrors.CodeBadRequest, "display_name is required"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "display_name is required", body["error_description"])
}

type fakeRequest struct {
	Name string `json:"name"`
}

func (r *fakeRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeBadRequest, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))

	t.Run("valid body decodes", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"alpha"}`))
		rec := httptest.NewRecorder()

		req, ok := DecodeAndPrepare[fakeRequest](rec, r, logger, r.Context(), "req-1")
		require.True(t, ok)
		assert.Equal(t, "alpha", req.Name)
	})

	t.Run("malformed JSON writes bad_request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		rec := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[fakeRequest](rec, r, logger, r.Context(), "req-2")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("failed validation writes the validation error", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[fakeRequest](rec, r, logger, r.Context(), "req-3")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "name is required")
	})
}
