// Package checker implements the per-jurisdiction and per-domain
// verification capabilities. One data-driven template covers every
// jurisdiction registry; specialized checkers cover partnership and
// tax-debt lookups. Checkers are stateless; all shared state lives in the
// resilience and cache layers.
package checker

import (
	"context"
	"time"

	dErrors "veristry/pkg/domain-errors"
)

// Sensitivity classes select the cache TTL for a checker's data.
type Sensitivity string

const (
	SensitivityRegistration Sensitivity = "registration"
	SensitivityCompliance   Sensitivity = "compliance"
	SensitivityTax          Sensitivity = "tax"
)

// Info identifies a checker and carries its scoring parameters.
type Info struct {
	// Domain tags outcomes, e.g. "registry:on", "partnership", "tax_debt".
	Domain string

	// Dependency is the circuit-breaker and audit key for the remote system.
	Dependency string

	// Weight is this domain's base contribution to the confidence score.
	Weight float64

	Sensitivity Sensitivity
}

// Checker performs the lookups for one jurisdiction or domain.
type Checker interface {
	Info() Info
	Check(ctx context.Context, sub Subject) Outcome
}

// Subject is the immutable view of the business under verification that
// checkers consume.
type Subject struct {
	LegalName      string
	BusinessNumber string
	Jurisdiction   string
	City           string
	Partnership    *PartnershipClaim
	Workers        []Worker
}

// PartnershipClaim is the caller's asserted partnership/ownership record.
type PartnershipClaim struct {
	PartnerName      string
	ClaimedPercent   float64
	AgreementDate    time.Time
	BenefitAgreement string
}

// Worker is one roster entry with trade certifications.
type Worker struct {
	Name           string
	Trades         []string
	Certifications []Certification
}

// Certification is one trade certification record.
type Certification struct {
	Type         string
	Number       string
	Jurisdiction string
	Expiry       time.Time
}

// Outcome is the result of one checker invocation. It is JSON-serializable
// so cache hits round-trip through the cache layer unchanged.
type Outcome struct {
	Domain     string `json:"domain"`
	Dependency string `json:"dependency"`

	// Success means the checker produced usable evidence; Partial marks a
	// success where one or more secondary lookups failed.
	Success bool `json:"success"`
	Partial bool `json:"partial,omitempty"`

	// Found reports whether the subject exists at this source at all.
	Found bool `json:"found"`

	// Weight and Quality feed the confidence scorer: base domain weight
	// times evidence quality in [0,1].
	Weight  float64 `json:"weight"`
	Quality float64 `json:"quality"`

	Registration *RegistrationDetails `json:"registration,omitempty"`
	Safety       *SafetyDetails       `json:"safety,omitempty"`
	TradeCerts   *TradeCertDetails    `json:"trade_certs,omitempty"`
	Partnership  *PartnershipDetails  `json:"partnership,omitempty"`
	TaxDebt      *TaxDebtDetails      `json:"tax_debt,omitempty"`

	Warnings []string `json:"warnings,omitempty"`

	// ErrorCode carries the failure classification when Success is false.
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Latency time.Duration `json:"latency_ns"`

	// FromCache marks outcomes served by the cache layer; never cached itself.
	FromCache bool `json:"-"`
}

// RegistrationDetails is the evidence a business registry returns.
type RegistrationDetails struct {
	RegistryID   string   `json:"registry_id"`
	Status       string   `json:"status"`
	GoodStanding bool     `json:"good_standing"`
	Address      string   `json:"address,omitempty"`
	Directors    []string `json:"directors,omitempty"`
	RegisteredAt string   `json:"registered_at,omitempty"`
}

// SafetyDetails is the safety-board clearance evidence.
type SafetyDetails struct {
	Compliant  bool   `json:"compliant"`
	Standing   string `json:"standing,omitempty"`
	OpenOrders int    `json:"open_orders,omitempty"`
}

// TradeCertDetails summarizes worker certification verification.
type TradeCertDetails struct {
	Checked int      `json:"checked"`
	Valid   int      `json:"valid"`
	Expired int      `json:"expired"`
	Invalid []string `json:"invalid,omitempty"`
}

// PartnershipDetails is the registry-verified view of a partnership claim.
type PartnershipDetails struct {
	Registered         bool    `json:"registered"`
	VerifiedPercent    float64 `json:"verified_percent"`
	BenefitAgreement   bool    `json:"benefit_agreement"`
	RegisteredDate     string  `json:"registered_date,omitempty"`
	CommunityAffiliate string  `json:"community_affiliate,omitempty"`
}

// TaxDebtDetails is the tax authority's consent-gated answer.
type TaxDebtDetails struct {
	FilingsCurrent bool    `json:"filings_current"`
	HasDebt        bool    `json:"has_debt"`
	AmountOwing    float64 `json:"amount_owing,omitempty"`
}

// Failure builds the outcome for a checker whose primary lookup failed.
func Failure(info Info, err error, latency time.Duration) Outcome {
	return Outcome{
		Domain:       info.Domain,
		Dependency:   info.Dependency,
		Weight:       info.Weight,
		ErrorCode:    string(dErrors.Code(err)),
		ErrorMessage: err.Error(),
		Latency:      latency,
	}
}

// NotFound builds the outcome for a subject absent at a source. Absence is
// evidence, not an infrastructure failure, so Found stays false while the
// error classification still reaches the scorer.
func NotFound(info Info, latency time.Duration) Outcome {
	return Outcome{
		Domain:     info.Domain,
		Dependency: info.Dependency,
		Weight:     info.Weight,
		ErrorCode:  string(dErrors.CodeNotFound),
		Latency:    latency,
	}
}
