package checker

import (
	"context"
	"time"

	"veristry/internal/checker/remote"
	dErrors "veristry/pkg/domain-errors"
)

// taxDebtChecker queries the tax authority's account balance endpoint. The
// orchestrator dispatches it only after validating the consent token; the
// checker itself never sees the token.
type taxDebtChecker struct {
	desc   Descriptor
	client remote.Client
	wrap   Wrapper
}

// NewTaxDebtChecker builds the tax authority checker.
func NewTaxDebtChecker(desc Descriptor, client remote.Client, wrap Wrapper) Checker {
	return &taxDebtChecker{desc: desc, client: client, wrap: wrap}
}

func (c *taxDebtChecker) Info() Info {
	return Info{
		Domain:      "tax_debt",
		Dependency:  c.desc.Dependency,
		Weight:      c.desc.Weight,
		Sensitivity: SensitivityTax,
	}
}

type taxPayload struct {
	FilingsCurrent bool    `json:"filings_current"`
	HasDebt        bool    `json:"has_debt"`
	AmountOwing    float64 `json:"amount_owing"`
}

func (c *taxDebtChecker) Check(ctx context.Context, sub Subject) Outcome {
	info := c.Info()
	start := time.Now()

	var payload taxPayload
	err := c.wrap.Call(ctx, c.desc.Dependency, "balance", func(ctx context.Context) error {
		raw, err := c.client.Lookup(ctx, c.desc.URL(c.desc.Endpoints.Balance), map[string]string{
			"business_number": sub.BusinessNumber,
		})
		if err != nil {
			return err
		}
		payload, err = remote.Decode[taxPayload](raw)
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
		Found:      true,
		Quality:    1.0,
		TaxDebt: &TaxDebtDetails{
			FilingsCurrent: payload.FilingsCurrent,
			HasDebt:        payload.HasDebt,
			AmountOwing:    payload.AmountOwing,
		},
		Latency: time.Since(start),
	}
	if payload.HasDebt {
		out.Quality = 0.5
		out.Warnings = append(out.Warnings, "tax authority reports outstanding debt")
	}
	if !payload.FilingsCurrent {
		out.Quality *= 0.8
		out.Warnings = append(out.Warnings, "tax filings are not current")
	}
	return out
}
