// Package httputil centralizes the JSON envelope and error translation shared
// by all handlers, so transport concerns stay out of domain services.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "ansregistry/pkg/domain-errors"
)

// Validator is implemented by request types that check their own fields
// after decoding.
type Validator interface {
	Validate() error
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a coded domain error into the JSON error envelope.
// Infrastructure codes (ca_failure, internal_error, timeout) omit the
// description so internals never leak to callers; everything else surfaces
// kind plus a human-readable reason.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if desc := dErrors.MessageOf(err); desc != "" && !isOpaque(code) {
		body["error_description"] = desc
	}
	WriteJSON(w, statusFor(code), body)
}

// DecodeAndPrepare decodes a JSON request body into T and runs its field
// validation. On failure it writes the error response and returns false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "malformed request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed JSON body"))
		return req, false
	}
	if v, ok := any(&req).(Validator); ok {
		if err := v.Validate(); err != nil {
			WriteError(w, err)
			return req, false
		}
	}
	return req, true
}

func isOpaque(code dErrors.Code) bool {
	switch code {
	case dErrors.CodeCA, dErrors.CodeInternal, dErrors.CodeTimeout:
		return true
	}
	return false
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidState, dErrors.CodeNoChallenge:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeDNSValidation, dErrors.CodeCA, dErrors.CodeInternal, dErrors.CodeTimeout:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
