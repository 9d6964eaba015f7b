package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/gatelog/internal/crypto"
	"github.com/davidahmann/gatelog/pkg/types"
)

type Manifest struct {
	RegistryID      string         `yaml:"registry_id"`
	RegistryVersion string         `yaml:"registry_version"`
	Rules           []ManifestRule `yaml:"rules"`
}

type ManifestRule struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Rationale   string         `yaml:"rationale"`
	Category    string         `yaml:"category"`
	Severity    string         `yaml:"severity"`
	Mode        string         `yaml:"mode"`
	AppliesTo   []string       `yaml:"applies_to"`
	Check       string         `yaml:"check"`
	Params      map[string]any `yaml:"params"`
	AutoFix     bool           `yaml:"auto_fix"`
	Guidance    string         `yaml:"guidance"`
	Disabled    bool           `yaml:"disabled"`
}

type LoadedRegistry struct {
	Registry        *Registry
	RegistryID      string
	RegistryVersion string
	Hash            string
}

// LoadManifest loads a YAML rule manifest, binds each rule to a built-in
// check kind and registers it. The manifest hash is computed from raw bytes.
func LoadManifest(path string) (LoadedRegistry, error) {
	// #nosec G304 -- path comes from operator-configured manifest path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedRegistry{}, err
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return LoadedRegistry{}, err
	}

	registry := NewRegistry()
	for _, def := range manifest.Rules {
		rule, err := buildRule(def)
		if err != nil {
			return LoadedRegistry{}, err
		}
		if err := registry.Register(rule); err != nil {
			return LoadedRegistry{}, err
		}
		if def.Disabled {
			if err := registry.Disable(def.ID, "disabled in manifest"); err != nil {
				return LoadedRegistry{}, err
			}
		}
	}

	return LoadedRegistry{
		Registry:        registry,
		RegistryID:      manifest.RegistryID,
		RegistryVersion: manifest.RegistryVersion,
		Hash:            crypto.DigestWithPrefix(data),
	}, nil
}

func buildRule(def ManifestRule) (Rule, error) {
	kind, ok := LookupKind(def.Check)
	if !ok {
		return Rule{}, fmt.Errorf("rule %s: unknown check kind %q", def.ID, def.Check)
	}

	check, err := kind.New(def.Params)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", def.ID, err)
	}

	var fix FixFunc
	if def.AutoFix {
		if kind.NewFix == nil {
			return Rule{}, fmt.Errorf("rule %s: check kind %q has no auto-fix", def.ID, def.Check)
		}
		fix, err = kind.NewFix(def.Params)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: %w", def.ID, err)
		}
	}

	return Rule{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Rationale:   def.Rationale,
		Category:    def.Category,
		Severity:    types.Severity(def.Severity),
		Mode:        EnforcementMode(def.Mode),
		AppliesTo:   def.AppliesTo,
		Check:       check,
		CanAutoFix:  def.AutoFix,
		Fix:         fix,
		Guidance:    def.Guidance,
	}, nil
}
