package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristry/internal/checker"
)

var fraudNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func indicatorNames(indicators []Indicator) []string {
	names := make([]string, len(indicators))
	for i, ind := range indicators {
		names[i] = ind.Name
	}
	return names
}

func partnershipOutcome(details checker.PartnershipDetails) checker.Outcome {
	return checker.Outcome{Domain: "partnership", Success: true, Found: true, Weight: 0.2, Quality: 1.0, Partnership: &details}
}

func TestEvaluateFraud_CleanClaimYieldsNoIndicators(t *testing.T) {
	req := Request{
		BusinessName: "Acme Ltd",
		Partnership: &PartnershipClaim{
			PartnerName:      "Northern Services",
			ClaimedPercent:   51,
			AgreementDate:    fraudNow.AddDate(-2, 0, 0),
			BenefitAgreement: "community benefit agreement #12",
		},
	}
	outcomes := []checker.Outcome{
		partnershipOutcome(checker.PartnershipDetails{Registered: true, VerifiedPercent: 51, BenefitAgreement: true}),
		{Domain: "registry:on", Success: true, Registration: &checker.RegistrationDetails{
			Status: "active", Directors: []string{"Northern Services"},
		}},
	}

	assert.Empty(t, EvaluateFraud(req, outcomes, fraudNow))
}

func TestEvaluateFraud_RecentPartnership(t *testing.T) {
	req := Request{Partnership: &PartnershipClaim{
		PartnerName:    "Northern Services",
		ClaimedPercent: 51,
		AgreementDate:  fraudNow.AddDate(0, 0, -30),
	}}

	indicators := EvaluateFraud(req, nil, fraudNow)
	assert.Contains(t, indicatorNames(indicators), "recent_partnership")
}

func TestEvaluateFraud_TokenOwnership(t *testing.T) {
	req := Request{Partnership: &PartnershipClaim{
		PartnerName:    "Northern Services",
		ClaimedPercent: 8,
		AgreementDate:  fraudNow.AddDate(-1, 0, 0),
	}}

	indicators := EvaluateFraud(req, nil, fraudNow)
	assert.Contains(t, indicatorNames(indicators), "token_ownership")
}

func TestEvaluateFraud_OwnershipMismatch(t *testing.T) {
	req := Request{Partnership: &PartnershipClaim{
		PartnerName:    "Northern Services",
		ClaimedPercent: 95,
		AgreementDate:  fraudNow.AddDate(-1, 0, 0),
	}}
	outcomes := []checker.Outcome{
		partnershipOutcome(checker.PartnershipDetails{Registered: true, VerifiedPercent: 60, BenefitAgreement: true}),
	}

	indicators := EvaluateFraud(req, outcomes, fraudNow)
	names := indicatorNames(indicators)
	assert.Contains(t, names, "ownership_mismatch")
	assert.Contains(t, names, "directors_mismatch", "majority partner absent from directors")
}

func TestEvaluateFraud_SmallOwnershipGapTolerated(t *testing.T) {
	req := Request{Partnership: &PartnershipClaim{
		PartnerName:      "Northern Services",
		ClaimedPercent:   52,
		AgreementDate:    fraudNow.AddDate(-1, 0, 0),
		BenefitAgreement: "agreement on file",
	}}
	outcomes := []checker.Outcome{
		partnershipOutcome(checker.PartnershipDetails{Registered: true, VerifiedPercent: 50, BenefitAgreement: true}),
		{Domain: "registry:on", Success: true, Registration: &checker.RegistrationDetails{Directors: []string{"Northern Services"}}},
	}

	assert.NotContains(t, indicatorNames(EvaluateFraud(req, outcomes, fraudNow)), "ownership_mismatch")
}

func TestEvaluateFraud_MissingBenefitAgreement(t *testing.T) {
	req := Request{Partnership: &PartnershipClaim{
		PartnerName:    "Northern Services",
		ClaimedPercent: 40,
		AgreementDate:  fraudNow.AddDate(-1, 0, 0),
	}}
	outcomes := []checker.Outcome{
		partnershipOutcome(checker.PartnershipDetails{Registered: true, VerifiedPercent: 40, BenefitAgreement: false}),
	}

	assert.Contains(t, indicatorNames(EvaluateFraud(req, outcomes, fraudNow)), "missing_benefit_agreement")
}

func TestEvaluateFraud_CrossRegistryAddressMismatch(t *testing.T) {
	outcomes := []checker.Outcome{
		{Domain: "registry:on", Success: true, Registration: &checker.RegistrationDetails{Status: "active", Address: "1 King St W, Toronto"}},
		{Domain: "registry:federal", Success: true, Registration: &checker.RegistrationDetails{Status: "active", Address: "99 Industrial Rd, Winnipeg"}},
	}

	assert.Contains(t, indicatorNames(EvaluateFraud(Request{}, outcomes, fraudNow)), "address_mismatch")
}

func TestEvaluateFraud_AddressCaseAndSpacingNormalized(t *testing.T) {
	outcomes := []checker.Outcome{
		{Domain: "registry:on", Success: true, Registration: &checker.RegistrationDetails{Address: "1 King St W,  Toronto"}},
		{Domain: "registry:federal", Success: true, Registration: &checker.RegistrationDetails{Address: "1 KING ST W, TORONTO"}},
	}

	assert.NotContains(t, indicatorNames(EvaluateFraud(Request{}, outcomes, fraudNow)), "address_mismatch")
}

func TestEvaluateFraud_StatusConflict(t *testing.T) {
	outcomes := []checker.Outcome{
		{Domain: "registry:on", Success: true, Registration: &checker.RegistrationDetails{Status: "active"}},
		{Domain: "registry:qc", Success: true, Registration: &checker.RegistrationDetails{Status: "dissolved"}},
	}

	assert.Contains(t, indicatorNames(EvaluateFraud(Request{}, outcomes, fraudNow)), "status_conflict")
}

func TestApplyFraud_NoIndicatorsNoChange(t *testing.T) {
	assert.Equal(t, 0.9, ApplyFraud(0.9, nil, DefaultMaxFraudDeduction))
}

func TestApplyFraud_DeductionsAreCapped(t *testing.T) {
	indicators := []Indicator{
		{Name: "a", Deduction: 0.25},
		{Name: "b", Deduction: 0.20},
		{Name: "c", Deduction: 0.20},
		{Name: "d", Deduction: 0.15},
	}

	got := ApplyFraud(0.8, indicators, 0.5)
	assert.InDelta(t, 0.8*0.5, got, 1e-9, "combined deduction is capped at the configured fraction")
}

func TestApplyFraud_NeverBelowFloorFraction(t *testing.T) {
	scores := []float64{0.1, 0.5, 0.8, 1.0}
	indicators := []Indicator{{Name: "a", Deduction: 0.9}, {Name: "b", Deduction: 0.9}}

	for _, score := range scores {
		got := ApplyFraud(score, indicators, 0.5)
		require.GreaterOrEqual(t, got, score*0.5, "score %v", score)
		require.LessOrEqual(t, got, score)
	}
}

func TestApplyFraud_MismatchScenario(t *testing.T) {
	req := Request{Partnership: &PartnershipClaim{
		PartnerName:      "Northern Services",
		ClaimedPercent:   95,
		AgreementDate:    fraudNow.AddDate(-1, 0, 0),
		BenefitAgreement: "agreement on file",
	}}
	outcomes := []checker.Outcome{
		partnershipOutcome(checker.PartnershipDetails{Registered: true, VerifiedPercent: 60, BenefitAgreement: true}),
		{Domain: "registry:on", Success: true, Registration: &checker.RegistrationDetails{Directors: []string{"Northern Services"}}},
	}

	indicators := EvaluateFraud(req, outcomes, fraudNow)
	require.Equal(t, []string{"ownership_mismatch"}, indicatorNames(indicators))

	got := ApplyFraud(0.9, indicators, DefaultMaxFraudDeduction)
	assert.InDelta(t, 0.9*(1-deductionOwnershipMismatch), got, 1e-9)
}
