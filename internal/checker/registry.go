package checker

import (
	"log/slog"
	"sort"
	"strings"

	"veristry/internal/checker/remote"
	dErrors "veristry/pkg/domain-errors"
)

// Registry owns one checker per manifest source and selects the subset a
// request must run.
type Registry struct {
	registries  map[string]Checker
	partnership Checker
	tax         Checker
}

// NewRegistry instantiates every checker in the manifest.
func NewRegistry(m *Manifest, client remote.Client, wrap Wrapper, logger *slog.Logger) *Registry {
	r := &Registry{
		registries:  make(map[string]Checker, len(m.Registries)),
		partnership: NewPartnershipChecker(m.Partnership, client, wrap),
		tax:         NewTaxDebtChecker(m.Tax, client, wrap),
	}
	for _, desc := range m.Registries {
		r.registries[strings.ToLower(desc.Code)] = NewRegistryChecker(desc, client, wrap, logger)
	}
	return r
}

// TaxInfo exposes the tax checker's identity so the orchestrator can build
// a rejection outcome for it without dispatching it.
func (r *Registry) TaxInfo() Info {
	return r.tax.Info()
}

// Known reports whether a jurisdiction code has a registry checker.
func (r *Registry) Known(code string) bool {
	_, ok := r.registries[strings.ToLower(code)]
	return ok
}

// Codes lists the supported jurisdiction codes, sorted.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.registries))
	for code := range r.registries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Resolve selects the checkers for a subject: the primary jurisdiction
// always, one per additional jurisdiction referenced by worker
// certifications, the partnership checker when a claim is present, and the
// tax checker when the caller proved consent. The order is deterministic.
func (r *Registry) Resolve(sub Subject, includeTax bool) ([]Checker, error) {
	primary := strings.ToLower(sub.Jurisdiction)
	primaryChecker, ok := r.registries[primary]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unsupported jurisdiction %q", sub.Jurisdiction)
	}

	checkers := []Checker{primaryChecker}

	for _, code := range r.certJurisdictions(sub, primary) {
		checkers = append(checkers, r.registries[code])
	}
	if sub.Partnership != nil {
		checkers = append(checkers, r.partnership)
	}
	if includeTax {
		checkers = append(checkers, r.tax)
	}
	return checkers, nil
}

// certJurisdictions returns the known extra jurisdiction codes referenced
// by worker certifications, deduplicated and sorted. Codes without a
// registry checker are skipped; validation reports them to the caller.
func (r *Registry) certJurisdictions(sub Subject, primary string) []string {
	set := make(map[string]struct{})
	for _, w := range sub.Workers {
		for _, cert := range w.Certifications {
			code := strings.ToLower(cert.Jurisdiction)
			if code == "" || code == primary {
				continue
			}
			if _, ok := r.registries[code]; ok {
				set[code] = struct{}{}
			}
		}
	}
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
