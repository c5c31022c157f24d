// Package httputil centralizes JSON encoding and domain error translation so
// handlers stay thin.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "veristry/pkg/domain-errors"
)

// statusByCode maps the domain error taxonomy onto HTTP statuses.
var statusByCode = map[dErrors.ErrorCode]int{
	dErrors.CodeBadRequest:   http.StatusBadRequest,
	dErrors.CodeUnauthorized: http.StatusUnauthorized,
	dErrors.CodeNotFound:     http.StatusNotFound,
	dErrors.CodeTimeout:      http.StatusGatewayTimeout,
	dErrors.CodeUnavailable:  http.StatusServiceUnavailable,
	dErrors.CodeRateLimited:  http.StatusTooManyRequests,
	dErrors.CodeCircuitOpen:  http.StatusServiceUnavailable,
	dErrors.CodeInternal:     http.StatusInternalServerError,
}

// WriteError translates a domain error into a JSON error response. Internal
// errors omit the description so infrastructure detail never leaks to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := map[string]string{"error": string(code)}
	var de *dErrors.Error
	if code != dErrors.CodeInternal && errors.As(err, &de) {
		body["error_description"] = de.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Decode parses the request body into T, logging and responding on failure.
// Returns false when the caller should stop processing.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "malformed request body", "error", err)
		}
		WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
		return req, false
	}
	return req, true
}
