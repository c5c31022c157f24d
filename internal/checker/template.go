package checker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"veristry/internal/checker/remote"
	dErrors "veristry/pkg/domain-errors"
)

// Wrapper is the resilience layer the checkers call through. Every remote
// lookup goes through it independently so one slow lookup cannot hide
// behind another's breaker.
type Wrapper interface {
	Call(ctx context.Context, dependency, operation string, fn func(ctx context.Context) error) error
}

// registryChecker is the generic jurisdiction checker. One instance per
// manifest registry entry; behavior differences between jurisdictions live
// entirely in the descriptor.
type registryChecker struct {
	desc   Descriptor
	client remote.Client
	wrap   Wrapper
	logger *slog.Logger
}

// NewRegistryChecker builds the checker for one jurisdiction descriptor.
func NewRegistryChecker(desc Descriptor, client remote.Client, wrap Wrapper, logger *slog.Logger) Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &registryChecker{desc: desc, client: client, wrap: wrap, logger: logger}
}

func (c *registryChecker) Info() Info {
	return Info{
		Domain:      "registry:" + c.desc.Code,
		Dependency:  c.desc.Dependency,
		Weight:      c.desc.Weight,
		Sensitivity: SensitivityRegistration,
	}
}

// wire shapes for the normalized lookup responses
type (
	registryMatch struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Number string `json:"number"`
	}

	searchPayload struct {
		Matches []registryMatch `json:"matches"`
	}

	detailPayload struct {
		Status       string   `json:"status"`
		GoodStanding bool     `json:"good_standing"`
		Address      string   `json:"address"`
		Directors    []string `json:"directors"`
		RegisteredAt string   `json:"registered_at"`
	}

	safetyPayload struct {
		Compliant  bool   `json:"compliant"`
		Standing   string `json:"standing"`
		OpenOrders int    `json:"open_orders"`
	}

	certsPayload struct {
		Results []struct {
			Number  string `json:"number"`
			Valid   bool   `json:"valid"`
			Expired bool   `json:"expired"`
		} `json:"results"`
	}
)

// Check runs registry search, then detail, then the descriptor's optional
// safety and trade-certification lookups. Secondary lookup failures degrade
// the outcome to a partial success instead of discarding the registration
// evidence already gathered.
func (c *registryChecker) Check(ctx context.Context, sub Subject) Outcome {
	info := c.Info()
	start := time.Now()

	match, err := c.search(ctx, sub)
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
		Quality:    0.55,
		Registration: &RegistrationDetails{
			RegistryID: match.ID,
		},
	}

	detail, err := c.detail(ctx, match.ID)
	if err != nil {
		out.Partial = true
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: detail lookup failed: %s", c.desc.Name, dErrors.Code(err)))
	} else {
		out.Registration.Status = detail.Status
		out.Registration.GoodStanding = detail.GoodStanding
		out.Registration.Address = detail.Address
		out.Registration.Directors = detail.Directors
		out.Registration.RegisteredAt = detail.RegisteredAt
		if detail.GoodStanding {
			out.Quality = 1.0
		} else {
			out.Quality = 0.65
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: registered but not in good standing (%s)", c.desc.Name, detail.Status))
		}
	}

	c.checkSafety(ctx, &out)
	c.checkTradeCerts(ctx, sub, &out)

	out.Latency = time.Since(start)
	return out
}

func (c *registryChecker) search(ctx context.Context, sub Subject) (registryMatch, error) {
	var payload searchPayload
	params := map[string]string{"name": sub.LegalName}
	if sub.BusinessNumber != "" {
		params["number"] = sub.BusinessNumber
	}

	err := c.wrap.Call(ctx, c.desc.Dependency, "search", func(ctx context.Context) error {
		raw, err := c.client.Lookup(ctx, c.desc.URL(c.desc.Endpoints.Search), params)
		if err != nil {
			return err
		}
		payload, err = remote.Decode[searchPayload](raw)
		return err
	})
	if err != nil {
		return registryMatch{}, err
	}
	if len(payload.Matches) == 0 {
		return registryMatch{}, dErrors.New(dErrors.CodeNotFound, "no registry match")
	}
	return payload.Matches[0], nil
}

func (c *registryChecker) detail(ctx context.Context, registryID string) (detailPayload, error) {
	var payload detailPayload
	err := c.wrap.Call(ctx, c.desc.Dependency, "detail", func(ctx context.Context) error {
		raw, err := c.client.Lookup(ctx, c.desc.URL(c.desc.Endpoints.Detail), map[string]string{"id": registryID})
		if err != nil {
			return err
		}
		payload, err = remote.Decode[detailPayload](raw)
		return err
	})
	return payload, err
}

func (c *registryChecker) checkSafety(ctx context.Context, out *Outcome) {
	if c.desc.Endpoints.Safety == "" {
		return
	}

	var payload safetyPayload
	err := c.wrap.Call(ctx, c.desc.Dependency, "safety", func(ctx context.Context) error {
		raw, err := c.client.Lookup(ctx, c.desc.URL(c.desc.Endpoints.Safety), map[string]string{"registry_id": out.Registration.RegistryID})
		if err != nil {
			return err
		}
		payload, err = remote.Decode[safetyPayload](raw)
		return err
	})
	if err != nil {
		out.Partial = true
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: safety clearance lookup failed: %s", c.desc.Name, dErrors.Code(err)))
		return
	}

	out.Safety = &SafetyDetails{
		Compliant:  payload.Compliant,
		Standing:   payload.Standing,
		OpenOrders: payload.OpenOrders,
	}
	if !payload.Compliant {
		out.Quality *= 0.8
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: safety board reports non-compliance", c.desc.Name))
	}
}

func (c *registryChecker) checkTradeCerts(ctx context.Context, sub Subject, out *Outcome) {
	if c.desc.Endpoints.TradeCerts == "" {
		return
	}
	numbers := certNumbersFor(sub, c.desc.Code)
	if len(numbers) == 0 {
		return
	}

	var payload certsPayload
	err := c.wrap.Call(ctx, c.desc.Dependency, "trade_certs", func(ctx context.Context) error {
		raw, err := c.client.Lookup(ctx, c.desc.URL(c.desc.Endpoints.TradeCerts), map[string]string{
			"numbers": strings.Join(numbers, ","),
		})
		if err != nil {
			return err
		}
		payload, err = remote.Decode[certsPayload](raw)
		return err
	})
	if err != nil {
		out.Partial = true
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: trade certification lookup failed: %s", c.desc.Name, dErrors.Code(err)))
		return
	}

	certs := &TradeCertDetails{Checked: len(payload.Results)}
	for _, r := range payload.Results {
		switch {
		case r.Expired:
			certs.Expired++
			certs.Invalid = append(certs.Invalid, r.Number)
		case !r.Valid:
			certs.Invalid = append(certs.Invalid, r.Number)
		default:
			certs.Valid++
		}
	}
	out.TradeCerts = certs
	if len(certs.Invalid) > 0 {
		out.Quality *= 0.9
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %d of %d trade certifications failed verification",
			c.desc.Name, len(certs.Invalid), certs.Checked))
	}
}

// certNumbersFor collects the worker certification numbers issued by the
// given jurisdiction.
func certNumbersFor(sub Subject, jurisdiction string) []string {
	var numbers []string
	for _, w := range sub.Workers {
		for _, cert := range w.Certifications {
			if strings.EqualFold(cert.Jurisdiction, jurisdiction) {
				numbers = append(numbers, cert.Number)
			}
		}
	}
	return numbers
}
