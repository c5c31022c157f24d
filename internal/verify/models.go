// Package verify is the orchestration core: it fans a verification request
// out to the applicable checkers, scores the combined evidence, and runs
// the fraud heuristics over the aggregate.
package verify

import (
	"time"

	"veristry/internal/checker"
	id "veristry/pkg/domain"
)

// Request is the inbound verification request. Immutable once accepted.
type Request struct {
	BusinessName   string            `json:"business_name"`
	BusinessNumber string            `json:"business_number,omitempty"`
	Location       Location          `json:"location"`
	Partnership    *PartnershipClaim `json:"partnership,omitempty"`
	Workers        []Worker          `json:"workers,omitempty"`
	Project        string            `json:"project,omitempty"`

	// CheckTaxDebt requests the consent-gated tax lookup; ConsentToken must
	// then carry a valid grant with the tax scope.
	CheckTaxDebt bool   `json:"check_tax_debt,omitempty"`
	ConsentToken string `json:"consent_token,omitempty"`
}

// Location is the subject's primary place of registration.
type Location struct {
	Jurisdiction string `json:"jurisdiction"`
	City         string `json:"city,omitempty"`
}

// PartnershipClaim is the caller-asserted partnership/ownership record.
type PartnershipClaim struct {
	PartnerName      string    `json:"partner_name"`
	ClaimedPercent   float64   `json:"claimed_percent"`
	AgreementDate    time.Time `json:"agreement_date"`
	BenefitAgreement string    `json:"benefit_agreement,omitempty"`
}

// Worker is one roster entry.
type Worker struct {
	Name           string          `json:"name"`
	Trades         []string        `json:"trades,omitempty"`
	Certifications []Certification `json:"certifications,omitempty"`
}

// Certification is one trade certification record.
type Certification struct {
	Type         string    `json:"type"`
	Number       string    `json:"number"`
	Jurisdiction string    `json:"jurisdiction"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

// subject maps the request onto the checkers' view of the business.
func (r Request) subject() checker.Subject {
	sub := checker.Subject{
		LegalName:      r.BusinessName,
		BusinessNumber: r.BusinessNumber,
		Jurisdiction:   r.Location.Jurisdiction,
		City:           r.Location.City,
	}
	if r.Partnership != nil {
		sub.Partnership = &checker.PartnershipClaim{
			PartnerName:      r.Partnership.PartnerName,
			ClaimedPercent:   r.Partnership.ClaimedPercent,
			AgreementDate:    r.Partnership.AgreementDate,
			BenefitAgreement: r.Partnership.BenefitAgreement,
		}
	}
	for _, w := range r.Workers {
		worker := checker.Worker{Name: w.Name, Trades: w.Trades}
		for _, c := range w.Certifications {
			worker.Certifications = append(worker.Certifications, checker.Certification{
				Type:         c.Type,
				Number:       c.Number,
				Jurisdiction: c.Jurisdiction,
				Expiry:       c.Expiry,
			})
		}
		sub.Workers = append(sub.Workers, worker)
	}
	return sub
}

// Level is the discrete confidence band derived from the score.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
	LevelNone   Level = "none"
)

// LevelFor maps a clamped score onto its band.
func LevelFor(score float64) Level {
	switch {
	case score >= 0.8:
		return LevelHigh
	case score >= 0.5:
		return LevelMedium
	case score >= 0.2:
		return LevelLow
	}
	return LevelNone
}

// Indicator is one named fraud signal with its score deduction.
type Indicator struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Deduction   float64 `json:"deduction"`
}

// Result is the aggregate verification outcome. Immutable once returned.
type Result struct {
	RequestID id.RequestID `json:"request_id"`

	Score    float64 `json:"score"`
	Level    Level   `json:"level"`
	Verified bool    `json:"verified"`

	// SystemsChecked lists the dependencies actually consulted, in the
	// registry's deterministic resolution order.
	SystemsChecked []string `json:"systems_checked"`

	// Details holds the per-domain evidence keyed by outcome domain.
	Details map[string]checker.Outcome `json:"details"`

	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`

	FraudIndicators []Indicator `json:"fraud_indicators,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
