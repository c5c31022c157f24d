package verify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"veristry/internal/audit"
	"veristry/internal/cache"
	"veristry/internal/checker"
	"veristry/internal/consent"
	"veristry/internal/platform/config"
	"veristry/internal/verify/metrics"
	dErrors "veristry/pkg/domain-errors"
	"veristry/pkg/requestcontext"
)

// Resolver is the registry surface the orchestrator depends on.
type Resolver interface {
	Known(code string) bool
	Codes() []string
	Resolve(sub checker.Subject, includeTax bool) ([]checker.Checker, error)
	TaxInfo() checker.Info
}

// ConsentValidator validates a caller-supplied consent token.
type ConsentValidator interface {
	Validate(token string) (*consent.Grant, error)
}

// AuditSink receives the per-checker audit record pairs.
type AuditSink interface {
	Record(rec audit.Record)
}

// OrchestratorParams are the explicit dependencies of an Orchestrator; the
// composition root wires them, nothing is reached through globals.
type OrchestratorParams struct {
	Registry Resolver
	Loader   *cache.Loader
	Consent  ConsentValidator
	Sink     AuditSink
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	Orchestration config.OrchestratorConfig
	CacheTTL      config.CacheConfig

	// MaxFraudDeduction caps the combined fraud deduction fraction;
	// zero means the default.
	MaxFraudDeduction float64
}

// Orchestrator fans one request out to its checkers and aggregates the
// evidence into a VerificationResult.
type Orchestrator struct {
	registry Resolver
	loader   *cache.Loader
	consent  ConsentValidator
	sink     AuditSink
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer

	cfg               config.OrchestratorConfig
	ttl               config.CacheConfig
	maxFraudDeduction float64

	now func() time.Time
}

func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Orchestration.Timeout <= 0 {
		p.Orchestration.Timeout = 10 * time.Second
	}
	if p.MaxFraudDeduction <= 0 {
		p.MaxFraudDeduction = DefaultMaxFraudDeduction
	}
	return &Orchestrator{
		registry:          p.Registry,
		loader:            p.Loader,
		consent:           p.Consent,
		sink:              p.Sink,
		metrics:           p.Metrics,
		logger:            p.Logger,
		tracer:            otel.Tracer("veristry/verify"),
		cfg:               p.Orchestration,
		ttl:               p.CacheTTL,
		maxFraudDeduction: p.MaxFraudDeduction,
	}
}

// Verify runs the full pipeline: validate, resolve, fan out under the
// shared deadline, score, and run the fraud heuristics. Partial checker
// failure never produces an error; the only error returns are request
// validation failures.
func (o *Orchestrator) Verify(ctx context.Context, req Request) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "verify.request")
	defer span.End()

	now := o.clock()

	warnings, err := Validate(req, o.registry, now)
	if err != nil {
		return nil, err
	}
	sub := req.subject()

	includeTax, taxRejection := o.gateTaxCheck(req)

	checkers, err := o.registry.Resolve(sub, includeTax)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("checkers", len(checkers)))

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	outcomes := make([]checker.Outcome, len(checkers))
	var g errgroup.Group
	if o.cfg.MaxInFlight > 0 {
		g.SetLimit(o.cfg.MaxInFlight)
	}
	for i, c := range checkers {
		g.Go(func() error {
			outcomes[i] = o.runChecker(ctx, c, sub)
			return nil
		})
	}
	_ = g.Wait()

	if taxRejection != nil {
		outcomes = append(outcomes, *taxRejection)
	}

	result := o.assemble(ctx, req, checkers, outcomes, warnings, now)
	span.SetAttributes(attribute.Float64("score", result.Score), attribute.Bool("verified", result.Verified))
	return result, nil
}

// gateTaxCheck enforces consent before the tax checker may run. A requested
// tax check without a valid grant becomes an explicit validation-error
// outcome for that sub-check; it is never silently skipped.
func (o *Orchestrator) gateTaxCheck(req Request) (bool, *checker.Outcome) {
	if !req.CheckTaxDebt {
		return false, nil
	}

	info := o.registry.TaxInfo()
	if req.ConsentToken == "" {
		out := checker.Failure(info, dErrors.New(dErrors.CodeBadRequest, "tax debt check requires a consent token"), 0)
		return false, &out
	}
	grant, err := o.consent.Validate(req.ConsentToken)
	if err != nil {
		out := checker.Failure(info, err, 0)
		return false, &out
	}
	if !grant.HasScope(consent.ScopeTaxDebt) {
		out := checker.Failure(info, dErrors.New(dErrors.CodeBadRequest, "consent token does not grant the tax_debt scope"), 0)
		return false, &out
	}
	return true, nil
}

// runChecker consults the cache, dispatches on a miss, and converts a
// deadline cut-off into a transient failure outcome. One audit pair is
// emitted per checker invocation.
func (o *Orchestrator) runChecker(ctx context.Context, c checker.Checker, sub checker.Subject) checker.Outcome {
	info := c.Info()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	o.record(audit.Record{
		RequestID:  requestID,
		Dependency: info.Dependency,
		Operation:  "check",
		Action:     audit.ActionStart,
	})

	done := make(chan checker.Outcome, 1)
	go func() {
		done <- o.checkThroughCache(ctx, c, info, sub)
	}()

	var out checker.Outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = checker.Failure(info,
			dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "verification deadline exceeded"),
			time.Since(start))
	}

	o.observeOutcome(out)
	terminal := audit.Record{
		RequestID:  requestID,
		Dependency: info.Dependency,
		Operation:  "check",
		Action:     audit.ActionSuccess,
		Outcome:    outcomeLabel(out),
		Duration:   time.Since(start),
	}
	if !out.Success {
		terminal.Action = audit.ActionError
	}
	if payload, err := json.Marshal(out); err == nil {
		terminal.EvidenceHash = audit.HashEvidence(payload)
	}
	o.record(terminal)

	return out
}

func (o *Orchestrator) checkThroughCache(ctx context.Context, c checker.Checker, info checker.Info, sub checker.Subject) checker.Outcome {
	key := cache.Key(info.Dependency, subjectKey(sub))

	var fresh checker.Outcome
	raw, fromCache, err := o.loader.GetOrLoad(ctx, key, o.ttlFor(info.Sensitivity), func(ctx context.Context) ([]byte, error) {
		fresh = c.Check(ctx, sub)
		if !fresh.Success {
			return nil, dErrors.New(dErrors.ErrorCode(fresh.ErrorCode), fresh.ErrorMessage)
		}
		return json.Marshal(fresh)
	})
	o.observeCache(fromCache)

	if err != nil {
		if fresh.Domain != "" {
			// This caller ran the failing check and has the full outcome.
			return fresh
		}
		// A single-flight waiter shares only the winner's error.
		return checker.Failure(info, err, 0)
	}
	if fresh.Domain != "" {
		return fresh
	}

	var out checker.Outcome
	if uerr := json.Unmarshal(raw, &out); uerr != nil {
		_ = o.loader.Invalidate(ctx, key)
		return c.Check(ctx, sub)
	}
	out.FromCache = fromCache
	return out
}

func (o *Orchestrator) assemble(ctx context.Context, req Request, checkers []checker.Checker, outcomes []checker.Outcome, warnings []string, now time.Time) *Result {
	score, _ := Score(outcomes)
	indicators := EvaluateFraud(req, outcomes, now)
	final := ApplyFraud(score, indicators, o.maxFraudDeduction)

	result := &Result{
		RequestID:       requestcontext.RequestID(ctx),
		Score:           final,
		Level:           LevelFor(final),
		Details:         make(map[string]checker.Outcome, len(outcomes)),
		Warnings:        warnings,
		FraudIndicators: indicators,
		CreatedAt:       now,
		ExpiresAt:       now.Add(o.resultTTL(checkers)),
	}

	for _, out := range outcomes {
		result.Details[out.Domain] = out
		result.Warnings = append(result.Warnings, out.Warnings...)
		if !out.Success {
			msg := out.ErrorCode
			if out.ErrorMessage != "" {
				msg += ": " + out.ErrorMessage
			}
			result.Errors = append(result.Errors, out.Domain+": "+msg)
		}
	}
	for _, c := range checkers {
		result.SystemsChecked = append(result.SystemsChecked, c.Info().Dependency)
	}

	// The primary jurisdiction checker resolves first; verification stands
	// only on a found registration plus a high-confidence score.
	primaryFound := len(outcomes) > 0 && outcomes[0].Found
	result.Verified = primaryFound && final >= 0.75

	if o.metrics != nil {
		o.metrics.ConfidenceScore.Observe(final)
	}
	return result
}

// resultTTL is the shortest TTL class among the consulted checkers, so the
// cached result never outlives its most sensitive input.
func (o *Orchestrator) resultTTL(checkers []checker.Checker) time.Duration {
	ttl := o.ttlFor(checker.SensitivityRegistration)
	for _, c := range checkers {
		if d := o.ttlFor(c.Info().Sensitivity); d > 0 && d < ttl {
			ttl = d
		}
	}
	return ttl
}

func (o *Orchestrator) ttlFor(s checker.Sensitivity) time.Duration {
	switch s {
	case checker.SensitivityTax:
		return o.ttl.TaxTTL
	case checker.SensitivityCompliance:
		return o.ttl.ComplianceTTL
	}
	return o.ttl.RegistrationTTL
}

func (o *Orchestrator) observeOutcome(out checker.Outcome) {
	if o.metrics == nil {
		return
	}
	o.metrics.CheckerOutcomes.WithLabelValues(out.Dependency, outcomeLabel(out)).Inc()
}

func (o *Orchestrator) observeCache(hit bool) {
	if o.metrics == nil {
		return
	}
	if hit {
		o.metrics.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		o.metrics.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (o *Orchestrator) record(rec audit.Record) {
	if o.sink == nil {
		return
	}
	o.sink.Record(rec)
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

func outcomeLabel(out checker.Outcome) string {
	switch {
	case out.FromCache:
		return "cache_hit"
	case out.Success && out.Partial:
		return "partial"
	case out.Success:
		return "success"
	default:
		return out.ErrorCode
	}
}

// subjectKey identifies the business for cache keying: the registry number
// when present, otherwise the normalized legal name.
func subjectKey(sub checker.Subject) string {
	if sub.BusinessNumber != "" {
		return sub.BusinessNumber
	}
	return strings.ToLower(strings.Join(strings.Fields(sub.LegalName), " "))
}
