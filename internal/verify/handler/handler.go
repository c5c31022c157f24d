// Package handler exposes the verification service over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"veristry/internal/verify"
	id "veristry/pkg/domain"
	"veristry/pkg/platform/httputil"
	"veristry/pkg/requestcontext"
)

// Handler serves the verification endpoints.
type Handler struct {
	service verify.Verifier
	logger  *slog.Logger
}

func New(service verify.Verifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the verification routes on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/verify", h.verify)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[verify.Request](w, r, h.logger)
	if !ok {
		return
	}

	ctx := withRequestID(r)

	result, err := h.service.Verify(ctx, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// withRequestID reuses chi's request ID when it parses as a UUID, so the
// verification result and the HTTP access logs share one identifier.
func withRequestID(r *http.Request) context.Context {
	ctx := r.Context()
	if rid, err := id.ParseRequestID(middleware.GetReqID(ctx)); err == nil {
		return requestcontext.WithRequestID(ctx, rid)
	}
	return ctx
}
