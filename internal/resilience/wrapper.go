// Package resilience wraps every outbound call to an external dependency
// with a circuit breaker, a budget-derived deadline, and a retry policy. It
// knows nothing about business semantics; checkers hand it a closure and a
// (dependency, operation) key.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veristry/internal/audit"
	"veristry/internal/platform/config"
	dErrors "veristry/pkg/domain-errors"
	"veristry/pkg/requestcontext"
)

// AuditSink receives the start/terminal record pair for each call.
type AuditSink interface {
	Record(rec audit.Record)
}

// Wrapper applies the resilience policy around a call closure.
type Wrapper struct {
	breakers *BreakerRegistry
	retry    config.RetryConfig
	sink     AuditSink
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewWrapper builds a wrapper sharing one breaker registry across all
// dependencies. sink may be nil in tests.
func NewWrapper(breakers *BreakerRegistry, retry config.RetryConfig, sink AuditSink, logger *slog.Logger) *Wrapper {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = 100 * time.Millisecond
	}
	if retry.MaxInterval <= 0 {
		retry.MaxInterval = 2 * time.Second
	}
	return &Wrapper{
		breakers: breakers,
		retry:    retry,
		sink:     sink,
		logger:   logger,
		tracer:   otel.Tracer("veristry/resilience"),
	}
}

// Call runs fn under the policy for (dependency, operation):
//
//  1. breaker gate: an open breaker fails immediately with CodeCircuitOpen,
//     fn is never invoked;
//  2. the caller's remaining context budget is the deadline; no attempt or
//     backoff wait ever extends past it;
//  3. up to MaxAttempts attempts with randomized exponential backoff, but
//     only for retryable classifications (timeout, unavailable,
//     rate-limited); validation and not-found errors are terminal;
//  4. every attempt outcome feeds the breaker's rolling window; answered
//     requests count as successes even when the answer is an error (a
//     not-found, validation, or auth response proves the dependency is up).
//
// One audit start/terminal pair is emitted per Call, not per attempt.
func (w *Wrapper) Call(ctx context.Context, dependency, operation string, fn func(ctx context.Context) error) error {
	ctx, span := w.tracer.Start(ctx, "resilience.call",
		trace.WithAttributes(
			attribute.String("dependency", dependency),
			attribute.String("operation", operation),
		))
	defer span.End()

	breaker := w.breakers.Get(dependency, operation)
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	w.record(audit.Record{
		RequestID:  requestID,
		Dependency: dependency,
		Operation:  operation,
		Action:     audit.ActionStart,
	})

	err := w.attempt(ctx, breaker, fn)

	terminal := audit.Record{
		RequestID:  requestID,
		Dependency: dependency,
		Operation:  operation,
		Action:     audit.ActionSuccess,
		Duration:   time.Since(start),
	}
	if err != nil {
		terminal.Action = audit.ActionError
		terminal.Outcome = string(dErrors.Code(err))
		span.SetAttributes(attribute.String("outcome", terminal.Outcome))
	}
	w.record(terminal)

	return err
}

func (w *Wrapper) attempt(ctx context.Context, breaker *Breaker, fn func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.retry.InitialInterval
	bo.MaxInterval = w.retry.MaxInterval

	var lastErr error
	for attempt := 1; attempt <= w.retry.MaxAttempts; attempt++ {
		if !breaker.Allow() {
			return dErrors.New(dErrors.CodeCircuitOpen, "circuit breaker open")
		}

		lastErr = classify(fn(ctx))
		if lastErr == nil {
			breaker.RecordSuccess()
			return nil
		}
		if dependencyFailure(lastErr) {
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
		}

		if !dErrors.IsRetryable(lastErr) || attempt == w.retry.MaxAttempts {
			return lastErr
		}

		wait := bo.NextBackOff()
		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(wait).After(deadline) {
			// Not enough budget for another attempt.
			return lastErr
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "budget exhausted during backoff")
		}
	}
	return lastErr
}

// dependencyFailure reports whether err says anything bad about the
// dependency's health. Not-found, validation, and auth errors are
// well-formed answers from a live dependency and must not open its breaker.
func dependencyFailure(err error) bool {
	switch dErrors.Code(err) {
	case dErrors.CodeNotFound, dErrors.CodeBadRequest, dErrors.CodeUnauthorized:
		return false
	}
	return true
}

// classify normalizes context cancellation into the timeout class so callers
// and the scorer see one taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "call deadline exceeded")
	}
	return err
}

func (w *Wrapper) record(rec audit.Record) {
	if w.sink == nil {
		return
	}
	w.sink.Record(rec)
}
