// Package consent validates caller-supplied consent tokens. A consent token
// is a signed JWT proving the subject authorized disclosure of sensitive data
// (tax-debt records). The orchestrator checks it before any sensitive
// dispatch; no remote endpoint is ever contacted without one.
package consent

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "veristry/pkg/domain-errors"
)

// ScopeTaxDebt authorizes tax-debt lookups for the token's subject.
const ScopeTaxDebt = "tax_debt"

// Grant is the validated content of a consent token.
type Grant struct {
	Subject   string
	Scopes    []string
	ExpiresAt time.Time
}

// HasScope reports whether the grant covers the given scope.
func (g *Grant) HasScope(scope string) bool {
	for _, s := range g.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Validator verifies consent token signatures and expiry.
type Validator struct {
	key []byte
}

// NewValidator creates a validator for HS256-signed consent tokens.
func NewValidator(signingKey string) *Validator {
	return &Validator{key: []byte(signingKey)}
}

// Validate parses and verifies a consent token. Expired, unsigned, or
// malformed tokens all surface as CodeBadRequest: the request carried
// consent, it just was not usable.
func (v *Validator) Validate(token string) (*Grant, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "consent token required")
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid consent token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid consent token")
	}

	grant := &Grant{
		Subject: c.Subject,
		Scopes:  c.Scopes,
	}
	if c.ExpiresAt != nil {
		grant.ExpiresAt = c.ExpiresAt.Time
	}
	return grant, nil
}

// Issue signs a consent token. Used by tests and by operators provisioning
// consent out of band; the verification path itself never issues tokens.
func (v *Validator) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.key)
}
