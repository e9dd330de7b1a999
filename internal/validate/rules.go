package validate

import (
	_ "embed"
	"fmt"

	yaml "gopkg.in/yaml.v2"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rule binds a registered check to a severity, an optional message
// prefix, and check parameters.
type Rule struct {
	Name     string   `yaml:"name"`
	Check    string   `yaml:"check"`
	Severity Severity `yaml:"severity"`
	Message  string   `yaml:"message"`
	Params   Params   `yaml:"params"`
}

type ruleSet struct {
	FileRules    []Rule `yaml:"file_rules"`
	PackageRules []Rule `yaml:"package_rules"`
}

// Registry holds the loaded rule set. Every rule is resolved against
// the check registries at load time, so an unknown check name fails
// here instead of during an export.
type Registry struct {
	fileRules []Rule
	pkgRules  []Rule
}

// DefaultRegistry loads the embedded rules file.
func DefaultRegistry() (*Registry, error) {
	return LoadRules(defaultRulesYAML)
}

// LoadRules parses a YAML rule set and verifies every rule against the
// check registries.
func LoadRules(data []byte) (*Registry, error) {
	var rs ruleSet
	if err := yaml.UnmarshalStrict(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	seen := map[string]bool{}
	for i, r := range rs.FileRules {
		if err := vetRule(r, i, seen); err != nil {
			return nil, err
		}
		if _, ok := fileChecks[r.Check]; !ok {
			return nil, fmt.Errorf("rule %q: unknown file check %q", r.Name, r.Check)
		}
	}
	for i, r := range rs.PackageRules {
		if err := vetRule(r, i, seen); err != nil {
			return nil, err
		}
		if _, ok := packageChecks[r.Check]; !ok {
			return nil, fmt.Errorf("rule %q: unknown package check %q", r.Name, r.Check)
		}
	}

	return &Registry{fileRules: rs.FileRules, pkgRules: rs.PackageRules}, nil
}

func vetRule(r Rule, idx int, seen map[string]bool) error {
	if r.Name == "" {
		return fmt.Errorf("rule %d: missing name", idx)
	}
	if seen[r.Name] {
		return fmt.Errorf("duplicate rule name %q", r.Name)
	}
	seen[r.Name] = true
	if !validSeverity(r.Severity) {
		return fmt.Errorf("rule %q: invalid severity %q", r.Name, r.Severity)
	}
	return nil
}

// FileRules returns the per-file rules in declaration order.
func (r *Registry) FileRules() []Rule { return r.fileRules }

// PackageRules returns the package-level rules in declaration order.
func (r *Registry) PackageRules() []Rule { return r.pkgRules }
