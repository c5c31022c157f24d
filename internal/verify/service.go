package verify

import (
	"context"
	"log/slog"
	"time"

	"veristry/internal/verify/metrics"
	id "veristry/pkg/domain"
	dErrors "veristry/pkg/domain-errors"
	"veristry/pkg/requestcontext"
)

// Verifier is what the transport layer calls.
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Result, error)
}

// Service fronts the orchestrator with request identity, logging, and
// request-level metrics.
type Service struct {
	orch    Verifier
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(orch Verifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orch: orch, metrics: m, logger: logger}
}

func (s *Service) Verify(ctx context.Context, req Request) (*Result, error) {
	requestID := requestcontext.RequestID(ctx)
	if requestID.IsZero() {
		requestID = id.NewRequestID()
		ctx = requestcontext.WithRequestID(ctx, requestID)
	}

	logger := s.logger.With("request_id", requestID, "business", req.BusinessName, "jurisdiction", req.Location.Jurisdiction)
	logger.Info("verification started",
		"tax_check", req.CheckTaxDebt,
		"partnership_claim", req.Partnership != nil,
		"workers", len(req.Workers))

	start := time.Now()
	result, err := s.orch.Verify(ctx, req)
	duration := time.Since(start)

	if err != nil {
		s.observe("rejected", duration)
		logger.Warn("verification rejected", "error", err, "code", dErrors.Code(err), "duration", duration)
		return nil, err
	}

	s.observe("completed", duration)
	logger.Info("verification completed",
		"score", result.Score,
		"level", result.Level,
		"verified", result.Verified,
		"systems", len(result.SystemsChecked),
		"fraud_indicators", len(result.FraudIndicators),
		"errors", len(result.Errors),
		"duration", duration)
	return result, nil
}

func (s *Service) observe(status string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RequestsTotal.WithLabelValues(status).Inc()
	s.metrics.RequestDuration.Observe(duration.Seconds())
}
