package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server for the verification API. requestTimeout is the
// orchestrator's per-request deadline; the write timeout leaves headroom
// above it so slow verifications are cut off by the orchestrator, not the
// transport.
func New(addr string, handler http.Handler, requestTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
