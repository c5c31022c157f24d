package verify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"veristry/internal/checker"
)

// Fraud rule parameters. Deductions are fractions of the score; the sum is
// capped before being applied, so indicators can pile up without zeroing a
// result on their own.
const (
	recentPartnershipWindow = 90 * 24 * time.Hour
	tokenOwnershipCeiling   = 10.0
	ownershipGapThreshold   = 5.0

	deductionRecentPartnership = 0.15
	deductionTokenOwnership    = 0.20
	deductionOwnershipMismatch = 0.25
	deductionMissingBenefit    = 0.15
	deductionAddressMismatch   = 0.10
	deductionStatusConflict    = 0.20
	deductionDirectorsMismatch = 0.15

	// DefaultMaxFraudDeduction caps the combined deduction at half the score.
	DefaultMaxFraudDeduction = 0.5
)

// EvaluateFraud runs the fixed rule list over the claim and the gathered
// evidence. Each rule yields zero or one indicator. Pure: same inputs, same
// indicators, in rule order.
func EvaluateFraud(req Request, outcomes []checker.Outcome, now time.Time) []Indicator {
	var indicators []Indicator

	if p := req.Partnership; p != nil {
		if age := now.Sub(p.AgreementDate); age >= 0 && age < recentPartnershipWindow {
			indicators = append(indicators, Indicator{
				Name:        "recent_partnership",
				Description: fmt.Sprintf("partnership agreement dated %s, within 90 days of this check", p.AgreementDate.Format("2006-01-02")),
				Deduction:   deductionRecentPartnership,
			})
		}
		if p.ClaimedPercent > 0 && p.ClaimedPercent <= tokenOwnershipCeiling {
			indicators = append(indicators, Indicator{
				Name:        "token_ownership",
				Description: fmt.Sprintf("claimed ownership of %.1f%% is within the token range", p.ClaimedPercent),
				Deduction:   deductionTokenOwnership,
			})
		}

		if verified := partnershipDetails(outcomes); verified != nil {
			if gap := math.Abs(p.ClaimedPercent - verified.VerifiedPercent); gap > ownershipGapThreshold {
				indicators = append(indicators, Indicator{
					Name:        "ownership_mismatch",
					Description: fmt.Sprintf("claimed ownership %.1f%% differs from registry-verified %.1f%%", p.ClaimedPercent, verified.VerifiedPercent),
					Deduction:   deductionOwnershipMismatch,
				})
			}
			if p.BenefitAgreement == "" && !verified.BenefitAgreement {
				indicators = append(indicators, Indicator{
					Name:        "missing_benefit_agreement",
					Description: "no benefit agreement declared or on record for the claimed partnership",
					Deduction:   deductionMissingBenefit,
				})
			}
			if p.ClaimedPercent > 50 && verified.Registered && !partnerAmongDirectors(p.PartnerName, outcomes) {
				indicators = append(indicators, Indicator{
					Name:        "directors_mismatch",
					Description: fmt.Sprintf("majority partner %q does not appear among registered directors", p.PartnerName),
					Deduction:   deductionDirectorsMismatch,
				})
			}
		}
	}

	if addrs := registryAddresses(outcomes); len(addrs) > 1 {
		indicators = append(indicators, Indicator{
			Name:        "address_mismatch",
			Description: fmt.Sprintf("registries disagree on the business address (%s)", strings.Join(addrs, " / ")),
			Deduction:   deductionAddressMismatch,
		})
	}
	if active, inactive := registryStatusSplit(outcomes); active && inactive {
		indicators = append(indicators, Indicator{
			Name:        "status_conflict",
			Description: "business is active in one registry and dissolved or inactive in another",
			Deduction:   deductionStatusConflict,
		})
	}

	return indicators
}

// ApplyFraud discounts a score by the summed indicator deductions, capped at
// maxDeduction. The result never drops below (1 - maxDeduction) of the
// input score.
func ApplyFraud(score float64, indicators []Indicator, maxDeduction float64) float64 {
	if len(indicators) == 0 {
		return score
	}
	if maxDeduction <= 0 || maxDeduction > 1 {
		maxDeduction = DefaultMaxFraudDeduction
	}

	var total float64
	for _, ind := range indicators {
		total += ind.Deduction
	}
	if total > maxDeduction {
		total = maxDeduction
	}
	return clamp01(score * (1 - total))
}

func partnershipDetails(outcomes []checker.Outcome) *checker.PartnershipDetails {
	for _, out := range outcomes {
		if out.Success && out.Partnership != nil {
			return out.Partnership
		}
	}
	return nil
}

func partnerAmongDirectors(partner string, outcomes []checker.Outcome) bool {
	for _, out := range outcomes {
		if out.Registration == nil {
			continue
		}
		for _, d := range out.Registration.Directors {
			if strings.EqualFold(strings.TrimSpace(d), strings.TrimSpace(partner)) {
				return true
			}
		}
	}
	return false
}

// registryAddresses returns the distinct normalized addresses reported by
// registries, in outcome order, when more than one source reported one.
func registryAddresses(outcomes []checker.Outcome) []string {
	seen := make(map[string]struct{})
	var distinct []string
	reporting := 0
	for _, out := range outcomes {
		if out.Registration == nil || out.Registration.Address == "" {
			continue
		}
		reporting++
		norm := strings.ToLower(strings.Join(strings.Fields(out.Registration.Address), " "))
		if _, ok := seen[norm]; !ok {
			seen[norm] = struct{}{}
			distinct = append(distinct, out.Registration.Address)
		}
	}
	if reporting < 2 || len(distinct) < 2 {
		return nil
	}
	return distinct
}

func registryStatusSplit(outcomes []checker.Outcome) (active, inactive bool) {
	for _, out := range outcomes {
		if out.Registration == nil || out.Registration.Status == "" {
			continue
		}
		switch strings.ToLower(out.Registration.Status) {
		case "active", "good standing", "registered":
			active = true
		case "dissolved", "inactive", "cancelled", "revoked":
			inactive = true
		}
	}
	return active, inactive
}
