package verify

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristry/internal/audit"
	"veristry/internal/cache"
	"veristry/internal/checker"
	"veristry/internal/consent"
	"veristry/internal/platform/config"
	dErrors "veristry/pkg/domain-errors"
)

type stubChecker struct {
	info    checker.Info
	outcome checker.Outcome
	delay   time.Duration
	calls   atomic.Int32
}

func (c *stubChecker) Info() checker.Info { return c.info }

func (c *stubChecker) Check(ctx context.Context, sub checker.Subject) checker.Outcome {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return checker.Failure(c.info, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "cancelled"), 0)
		}
	}
	out := c.outcome
	out.Domain = c.info.Domain
	out.Dependency = c.info.Dependency
	out.Weight = c.info.Weight
	return out
}

var taxCheckerInfo = checker.Info{
	Domain: "tax_debt", Dependency: "tax-authority", Weight: 0.15, Sensitivity: checker.SensitivityTax,
}

type stubRegistry struct {
	checkers []checker.Checker
	tax      checker.Checker
}

func (r *stubRegistry) Known(code string) bool { return strings.EqualFold(code, "on") }

func (r *stubRegistry) Codes() []string { return []string{"on"} }

func (r *stubRegistry) TaxInfo() checker.Info { return taxCheckerInfo }

func (r *stubRegistry) Resolve(sub checker.Subject, includeTax bool) ([]checker.Checker, error) {
	out := append([]checker.Checker(nil), r.checkers...)
	if includeTax && r.tax != nil {
		out = append(out, r.tax)
	}
	return out, nil
}

type recordingSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (s *recordingSink) Record(rec audit.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *recordingSink) all() []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Record(nil), s.records...)
}

const testSigningKey = "test-signing-key"

func registryOutcome(found bool) checker.Outcome {
	out := checker.Outcome{Success: found, Found: found, Quality: 1.0}
	if found {
		out.Registration = &checker.RegistrationDetails{RegistryID: "ON-42", Status: "active", GoodStanding: true}
	} else {
		out.Success = false
		out.ErrorCode = string(dErrors.CodeNotFound)
	}
	return out
}

func registryInfo() checker.Info {
	return checker.Info{Domain: "registry:on", Dependency: "on-registry", Weight: 0.3, Sensitivity: checker.SensitivityRegistration}
}

func newTestOrchestrator(reg Resolver, sink AuditSink) *Orchestrator {
	return NewOrchestrator(OrchestratorParams{
		Registry: reg,
		Loader:   cache.NewLoader(cache.NewMemory(), nil),
		Consent:  consent.NewValidator(testSigningKey),
		Sink:     sink,
		Orchestration: config.OrchestratorConfig{
			Timeout:     time.Second,
			MaxInFlight: 4,
		},
		CacheTTL: config.CacheConfig{
			RegistrationTTL: time.Minute,
			ComplianceTTL:   time.Minute,
			TaxTTL:          time.Minute,
		},
	})
}

func onRequest() Request {
	return Request{
		BusinessName:   "Acme Ltd",
		BusinessNumber: "123456789",
		Location:       Location{Jurisdiction: "on"},
	}
}

func TestOrchestrator_AllCheckersSucceed(t *testing.T) {
	registration := registryOutcome(true)
	registration.Registration.Directors = []string{"Northern Services"}
	reg := &stubRegistry{checkers: []checker.Checker{
		&stubChecker{info: registryInfo(), outcome: registration},
		&stubChecker{
			info: checker.Info{Domain: "partnership", Dependency: "partnership-registry", Weight: 0.2, Sensitivity: checker.SensitivityCompliance},
			outcome: checker.Outcome{Success: true, Found: true, Quality: 1.0,
				Partnership: &checker.PartnershipDetails{Registered: true, VerifiedPercent: 51, BenefitAgreement: true}},
		},
	}}
	orch := newTestOrchestrator(reg, nil)

	req := onRequest()
	req.Partnership = &PartnershipClaim{
		PartnerName:      "Northern Services",
		ClaimedPercent:   51,
		AgreementDate:    time.Now().AddDate(-2, 0, 0),
		BenefitAgreement: "agreement #12",
	}

	result, err := orch.Verify(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.GreaterOrEqual(t, result.Score, 0.9)
	assert.Equal(t, LevelHigh, result.Level)
	assert.Equal(t, []string{"on-registry", "partnership-registry"}, result.SystemsChecked)
	assert.Contains(t, result.Details, "registry:on")
	assert.Contains(t, result.Details, "partnership")
	assert.Empty(t, result.Errors)
	assert.False(t, result.ExpiresAt.Before(result.CreatedAt))
}

func TestOrchestrator_ValidationFailureStopsBeforeDispatch(t *testing.T) {
	c := &stubChecker{info: registryInfo(), outcome: registryOutcome(true)}
	orch := newTestOrchestrator(&stubRegistry{checkers: []checker.Checker{c}}, nil)

	req := onRequest()
	req.BusinessName = ""

	_, err := orch.Verify(context.Background(), req)
	require.Error(t, err)
	assert.True(t, dErrors.IsCode(err, dErrors.CodeBadRequest))
	assert.Zero(t, c.calls.Load(), "validation failures must not reach any checker")
}

func TestOrchestrator_AllNotFoundIsZeroConfidenceNotError(t *testing.T) {
	reg := &stubRegistry{checkers: []checker.Checker{
		&stubChecker{info: registryInfo(), outcome: registryOutcome(false)},
		&stubChecker{
			info:    checker.Info{Domain: "registry:federal", Dependency: "federal-registry", Weight: 0.35, Sensitivity: checker.SensitivityRegistration},
			outcome: checker.Outcome{ErrorCode: string(dErrors.CodeNotFound)},
		},
	}}
	orch := newTestOrchestrator(reg, nil)

	result, err := orch.Verify(context.Background(), onRequest())
	require.NoError(t, err, "total absence is a result, not an error")

	assert.False(t, result.Verified)
	assert.Zero(t, result.Score)
	assert.Equal(t, LevelNone, result.Level)
	assert.Len(t, result.Errors, 2)
}

func TestOrchestrator_DeadlineBoundsWallClock(t *testing.T) {
	slow := &stubChecker{
		info:    checker.Info{Domain: "registry:federal", Dependency: "federal-registry", Weight: 0.35, Sensitivity: checker.SensitivityRegistration},
		outcome: registryOutcome(true),
		delay:   5 * time.Second,
	}
	fast := &stubChecker{info: registryInfo(), outcome: registryOutcome(true)}

	orch := newTestOrchestrator(&stubRegistry{checkers: []checker.Checker{fast, slow}}, nil)
	orch.cfg.Timeout = 100 * time.Millisecond

	start := time.Now()
	result, err := orch.Verify(context.Background(), onRequest())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 600*time.Millisecond, "orchestration must not wait out a slow checker")

	assert.True(t, result.Details["registry:on"].Success, "the fast checker's evidence survives")
	slowOutcome := result.Details["registry:federal"]
	assert.False(t, slowOutcome.Success)
	assert.Equal(t, string(dErrors.CodeTimeout), slowOutcome.ErrorCode)
}

func TestOrchestrator_CacheHitSkipsDispatch(t *testing.T) {
	c := &stubChecker{info: registryInfo(), outcome: registryOutcome(true)}
	orch := newTestOrchestrator(&stubRegistry{checkers: []checker.Checker{c}}, nil)

	first, err := orch.Verify(context.Background(), onRequest())
	require.NoError(t, err)
	second, err := orch.Verify(context.Background(), onRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(1), c.calls.Load(), "second verification must be served from cache")
	assert.Equal(t, first.Score, second.Score)
	assert.True(t, second.Details["registry:on"].FromCache)
}

func TestOrchestrator_FailedOutcomesAreNotCached(t *testing.T) {
	c := &stubChecker{
		info:    registryInfo(),
		outcome: checker.Outcome{ErrorCode: string(dErrors.CodeUnavailable), ErrorMessage: "registry down"},
	}
	orch := newTestOrchestrator(&stubRegistry{checkers: []checker.Checker{c}}, nil)

	_, err := orch.Verify(context.Background(), onRequest())
	require.NoError(t, err)
	_, err = orch.Verify(context.Background(), onRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(2), c.calls.Load(), "failures must be retried on the next request")
}

func TestOrchestrator_TaxCheckWithoutConsent(t *testing.T) {
	registry := &stubChecker{info: registryInfo(), outcome: registryOutcome(true)}
	tax := &stubChecker{info: taxCheckerInfo, outcome: checker.Outcome{Success: true, Found: true, Quality: 1.0}}
	orch := newTestOrchestrator(&stubRegistry{checkers: []checker.Checker{registry}, tax: tax}, nil)

	req := onRequest()
	req.CheckTaxDebt = true

	result, err := orch.Verify(context.Background(), req)
	require.NoError(t, err, "a rejected sub-check does not fail the request")

	assert.Zero(t, tax.calls.Load(), "no remote call without consent")
	assert.Equal(t, int32(1), registry.calls.Load(), "other sub-checks proceed normally")

	rejected, ok := result.Details["tax_debt"]
	require.True(t, ok, "the rejected sub-check is surfaced, not silently skipped")
	assert.Equal(t, string(dErrors.CodeBadRequest), rejected.ErrorCode)
	assert.NotContains(t, result.SystemsChecked, "tax-authority")
}

func TestOrchestrator_TaxCheckWithExpiredConsent(t *testing.T) {
	tax := &stubChecker{info: taxCheckerInfo, outcome: checker.Outcome{Success: true, Found: true, Quality: 1.0}}
	orch := newTestOrchestrator(&stubRegistry{
		checkers: []checker.Checker{&stubChecker{info: registryInfo(), outcome: registryOutcome(true)}},
		tax:      tax,
	}, nil)

	token, err := consent.NewValidator(testSigningKey).Issue("123456789", []string{consent.ScopeTaxDebt}, -time.Minute)
	require.NoError(t, err)

	req := onRequest()
	req.CheckTaxDebt = true
	req.ConsentToken = token

	result, err := orch.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, tax.calls.Load())
	assert.Equal(t, string(dErrors.CodeBadRequest), result.Details["tax_debt"].ErrorCode)
}

func TestOrchestrator_TaxCheckWithValidConsent(t *testing.T) {
	tax := &stubChecker{info: taxCheckerInfo, outcome: checker.Outcome{
		Success: true, Found: true, Quality: 1.0,
		TaxDebt: &checker.TaxDebtDetails{FilingsCurrent: true},
	}}
	orch := newTestOrchestrator(&stubRegistry{
		checkers: []checker.Checker{&stubChecker{info: registryInfo(), outcome: registryOutcome(true)}},
		tax:      tax,
	}, nil)

	token, err := consent.NewValidator(testSigningKey).Issue("123456789", []string{consent.ScopeTaxDebt}, time.Hour)
	require.NoError(t, err)

	req := onRequest()
	req.CheckTaxDebt = true
	req.ConsentToken = token

	result, err := orch.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tax.calls.Load())
	assert.True(t, result.Details["tax_debt"].Success)
	assert.Contains(t, result.SystemsChecked, "tax-authority")
}

func TestOrchestrator_ConsentWithoutTaxScopeRejected(t *testing.T) {
	tax := &stubChecker{info: taxCheckerInfo, outcome: checker.Outcome{Success: true, Found: true, Quality: 1.0}}
	orch := newTestOrchestrator(&stubRegistry{
		checkers: []checker.Checker{&stubChecker{info: registryInfo(), outcome: registryOutcome(true)}},
		tax:      tax,
	}, nil)

	token, err := consent.NewValidator(testSigningKey).Issue("123456789", []string{"profile"}, time.Hour)
	require.NoError(t, err)

	req := onRequest()
	req.CheckTaxDebt = true
	req.ConsentToken = token

	result, err := orch.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, tax.calls.Load())
	assert.Contains(t, result.Details["tax_debt"].ErrorMessage, "tax_debt scope")
}

func TestOrchestrator_BreakerOpenOutcomeDoesNotPoisonOthers(t *testing.T) {
	reg := &stubRegistry{checkers: []checker.Checker{
		&stubChecker{info: registryInfo(), outcome: registryOutcome(true)},
		&stubChecker{
			info:    checker.Info{Domain: "registry:qc", Dependency: "qc-registry", Weight: 0.3, Sensitivity: checker.SensitivityRegistration},
			outcome: checker.Outcome{ErrorCode: string(dErrors.CodeCircuitOpen), ErrorMessage: "circuit breaker open"},
		},
	}}
	orch := newTestOrchestrator(reg, nil)

	result, err := orch.Verify(context.Background(), onRequest())
	require.NoError(t, err)

	assert.True(t, result.Details["registry:on"].Success)
	assert.Equal(t, string(dErrors.CodeCircuitOpen), result.Details["registry:qc"].ErrorCode)
	assert.Greater(t, result.Score, 0.0, "healthy checkers still contribute")
	assert.Less(t, result.Score, 1.0)
}

func TestOrchestrator_FraudIndicatorsDiscountAndSurface(t *testing.T) {
	reg := &stubRegistry{checkers: []checker.Checker{
		&stubChecker{info: registryInfo(), outcome: registryOutcome(true)},
		&stubChecker{
			info: checker.Info{Domain: "partnership", Dependency: "partnership-registry", Weight: 0.2, Sensitivity: checker.SensitivityCompliance},
			outcome: checker.Outcome{Success: true, Found: true, Quality: 1.0,
				Partnership: &checker.PartnershipDetails{Registered: true, VerifiedPercent: 60, BenefitAgreement: true}},
		},
	}}
	orch := newTestOrchestrator(reg, nil)

	req := onRequest()
	req.Partnership = &PartnershipClaim{
		PartnerName:      "Northern Services",
		ClaimedPercent:   95,
		AgreementDate:    time.Now().AddDate(-1, 0, 0),
		BenefitAgreement: "agreement #12",
	}

	result, err := orch.Verify(context.Background(), req)
	require.NoError(t, err)

	names := make([]string, 0, len(result.FraudIndicators))
	for _, ind := range result.FraudIndicators {
		names = append(names, ind.Name)
	}
	assert.Contains(t, names, "ownership_mismatch")
	assert.Less(t, result.Score, 1.0, "indicators discount the score")
	assert.GreaterOrEqual(t, result.Score, 0.5, "capped deduction keeps the floor")
}

func TestOrchestrator_EmitsAuditPairPerChecker(t *testing.T) {
	sink := &recordingSink{}
	reg := &stubRegistry{checkers: []checker.Checker{
		&stubChecker{info: registryInfo(), outcome: registryOutcome(true)},
	}}
	orch := newTestOrchestrator(reg, sink)

	_, err := orch.Verify(context.Background(), onRequest())
	require.NoError(t, err)

	records := sink.all()
	require.Len(t, records, 2)
	assert.Equal(t, audit.ActionStart, records[0].Action)
	assert.Equal(t, audit.ActionSuccess, records[1].Action)
	assert.Equal(t, "on-registry", records[1].Dependency)
	assert.NotEmpty(t, records[1].EvidenceHash)
}
