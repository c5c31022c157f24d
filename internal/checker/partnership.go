package checker

import (
	"context"
	"fmt"
	"time"

	"veristry/internal/checker/remote"
	dErrors "veristry/pkg/domain-errors"
)

// partnershipChecker verifies a claimed indigenous partnership against the
// partnership registry. It runs only when the request carries a claim.
type partnershipChecker struct {
	desc   Descriptor
	client remote.Client
	wrap   Wrapper
}

// NewPartnershipChecker builds the partnership registry checker.
func NewPartnershipChecker(desc Descriptor, client remote.Client, wrap Wrapper) Checker {
	return &partnershipChecker{desc: desc, client: client, wrap: wrap}
}

func (c *partnershipChecker) Info() Info {
	return Info{
		Domain:      "partnership",
		Dependency:  c.desc.Dependency,
		Weight:      c.desc.Weight,
		Sensitivity: SensitivityCompliance,
	}
}

type partnershipPayload struct {
	Registered         bool    `json:"registered"`
	OwnershipPercent   float64 `json:"ownership_percent"`
	BenefitAgreement   bool    `json:"benefit_agreement"`
	RegisteredDate     string  `json:"registered_date"`
	CommunityAffiliate string  `json:"community_affiliate"`
}

func (c *partnershipChecker) Check(ctx context.Context, sub Subject) Outcome {
	info := c.Info()
	start := time.Now()

	if sub.Partnership == nil {
		return Failure(info, dErrors.New(dErrors.CodeBadRequest, "no partnership claim to verify"), time.Since(start))
	}

	var payload partnershipPayload
	err := c.wrap.Call(ctx, c.desc.Dependency, "verify", func(ctx context.Context) error {
		raw, err := c.client.Lookup(ctx, c.desc.URL(c.desc.Endpoints.Verify), map[string]string{
			"business": sub.LegalName,
			"partner":  sub.Partnership.PartnerName,
		})
		if err != nil {
			return err
		}
		payload, err = remote.Decode[partnershipPayload](raw)
		return err
	})
	if err != nil {
		if dErrors.IsCode(err, dErrors.CodeNotFound) {
			return NotFound(info, time.Since(start))
		}
		return Failure(info, err, time.Since(start))
	}

	out := Outcome{
		Domain:     info.Domain,
		Dependency: info.Dependency,
		Weight:     info.Weight,
		Success:    true,
		Found:      payload.Registered,
		Quality:    1.0,
		Partnership: &PartnershipDetails{
			Registered:         payload.Registered,
			VerifiedPercent:    payload.OwnershipPercent,
			BenefitAgreement:   payload.BenefitAgreement,
			RegisteredDate:     payload.RegisteredDate,
			CommunityAffiliate: payload.CommunityAffiliate,
		},
		Latency: time.Since(start),
	}
	if !payload.Registered {
		out.Quality = 0.3
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("partnership with %q is not registered", sub.Partnership.PartnerName))
	}
	return out
}
