package checker

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor parameterizes the generic registry checker for one
// jurisdiction, or one of the specialized sources. Endpoints left empty are
// lookups that source does not offer.
type Descriptor struct {
	Code       string    `yaml:"code"`
	Name       string    `yaml:"name"`
	Dependency string    `yaml:"dependency"`
	BaseURL    string    `yaml:"base_url"`
	Weight     float64   `yaml:"weight"`
	Endpoints  Endpoints `yaml:"endpoints"`
}

// Endpoints are the paths a source exposes, relative to its base URL.
type Endpoints struct {
	Search     string `yaml:"search"`
	Detail     string `yaml:"detail"`
	Safety     string `yaml:"safety"`
	TradeCerts string `yaml:"trade_certs"`
	Verify     string `yaml:"verify"`
	Balance    string `yaml:"balance"`
}

// URL joins the base URL with an endpoint path.
func (d Descriptor) URL(path string) string {
	return strings.TrimRight(d.BaseURL, "/") + path
}

// Manifest is the full set of sources this deployment can consult.
type Manifest struct {
	Registries  []Descriptor `yaml:"registries"`
	Partnership Descriptor   `yaml:"partnership"`
	Tax         Descriptor   `yaml:"tax"`
}

//go:embed descriptors.yaml
var embeddedManifest []byte

// DefaultManifest parses the manifest shipped with the binary.
func DefaultManifest() (*Manifest, error) {
	return ParseManifest(embeddedManifest)
}

// ParseManifest decodes and validates a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse source manifest: %w", err)
	}

	seen := make(map[string]struct{}, len(m.Registries))
	for _, d := range m.Registries {
		if err := validateDescriptor(d); err != nil {
			return nil, err
		}
		if d.Endpoints.Search == "" || d.Endpoints.Detail == "" {
			return nil, fmt.Errorf("registry %q: search and detail endpoints are required", d.Code)
		}
		if _, dup := seen[d.Code]; dup {
			return nil, fmt.Errorf("registry code %q appears twice", d.Code)
		}
		seen[d.Code] = struct{}{}
	}

	if err := validateDescriptor(m.Partnership); err != nil {
		return nil, err
	}
	if m.Partnership.Endpoints.Verify == "" {
		return nil, fmt.Errorf("partnership source %q: verify endpoint is required", m.Partnership.Code)
	}
	if err := validateDescriptor(m.Tax); err != nil {
		return nil, err
	}
	if m.Tax.Endpoints.Balance == "" {
		return nil, fmt.Errorf("tax source %q: balance endpoint is required", m.Tax.Code)
	}
	return &m, nil
}

func validateDescriptor(d Descriptor) error {
	switch {
	case d.Code == "":
		return fmt.Errorf("source descriptor missing code")
	case d.Dependency == "":
		return fmt.Errorf("source %q: dependency key is required", d.Code)
	case d.BaseURL == "":
		return fmt.Errorf("source %q: base_url is required", d.Code)
	case d.Weight <= 0:
		return fmt.Errorf("source %q: weight must be positive", d.Code)
	}
	return nil
}
