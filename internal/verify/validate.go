package verify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	dErrors "veristry/pkg/domain-errors"
)

// jurisdictions is the slice of the checker registry validation needs.
type jurisdictions interface {
	Known(code string) bool
	Codes() []string
}

var businessNumberRe = regexp.MustCompile(`^\d{9}$`)

const maxNameLength = 300

// Validate checks the request before any dispatch. The error covers terminal
// problems; the returned warnings cover issues that degrade but do not stop
// verification (unknown certification jurisdictions, already-expired
// certifications).
func Validate(req Request, known jurisdictions, now time.Time) ([]string, error) {
	name := strings.TrimSpace(req.BusinessName)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "business_name is required")
	}
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeBadRequest, "business_name exceeds maximum length")
	}

	if req.BusinessNumber != "" && !businessNumberRe.MatchString(req.BusinessNumber) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "business_number must be nine digits")
	}

	if req.Location.Jurisdiction == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "location.jurisdiction is required")
	}
	if !known.Known(req.Location.Jurisdiction) {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unsupported jurisdiction %q (supported: %s)",
			req.Location.Jurisdiction, strings.Join(known.Codes(), ", "))
	}

	if p := req.Partnership; p != nil {
		if strings.TrimSpace(p.PartnerName) == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "partnership.partner_name is required")
		}
		if p.ClaimedPercent < 0 || p.ClaimedPercent > 100 {
			return nil, dErrors.New(dErrors.CodeBadRequest, "partnership.claimed_percent must be between 0 and 100")
		}
		if p.AgreementDate.IsZero() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "partnership.agreement_date is required")
		}
	}

	if req.CheckTaxDebt && req.BusinessNumber == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "business_number is required for a tax debt check")
	}

	var warnings []string
	for _, w := range req.Workers {
		for _, cert := range w.Certifications {
			if cert.Number == "" || cert.Jurisdiction == "" {
				return nil, dErrors.Newf(dErrors.CodeBadRequest, "worker %q has a certification without number or jurisdiction", w.Name)
			}
			if !known.Known(cert.Jurisdiction) {
				warnings = append(warnings, fmt.Sprintf("certification %s: jurisdiction %q is not supported, skipping", cert.Number, cert.Jurisdiction))
			}
			if !cert.Expiry.IsZero() && cert.Expiry.Before(now) {
				warnings = append(warnings, fmt.Sprintf("certification %s expired %s", cert.Number, cert.Expiry.Format("2006-01-02")))
			}
		}
	}
	return warnings, nil
}
