package validate

import (
	"strings"
	"testing"
)

func TestDefaultRegistry_Loads(t *testing.T) {
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	if len(reg.FileRules()) == 0 {
		t.Fatal("no file rules loaded")
	}
	if len(reg.PackageRules()) == 0 {
		t.Fatal("no package rules loaded")
	}
	for _, r := range reg.FileRules() {
		if !validSeverity(r.Severity) {
			t.Errorf("rule %q: bad severity %q", r.Name, r.Severity)
		}
	}
}

func TestLoadRules_UnknownFileCheck(t *testing.T) {
	yaml := `
file_rules:
  - name: bogus
    check: does-not-exist
    severity: ERROR
`
	_, err := LoadRules([]byte(yaml))
	if err == nil {
		t.Fatal("expected load error")
	}
	if !strings.Contains(err.Error(), "unknown file check") {
		t.Errorf("error = %v, want mention of unknown file check", err)
	}
}

func TestLoadRules_UnknownPackageCheck(t *testing.T) {
	yaml := `
package_rules:
  - name: bogus
    check: does-not-exist
    severity: ERROR
`
	_, err := LoadRules([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "unknown package check") {
		t.Errorf("error = %v, want mention of unknown package check", err)
	}
}

func TestLoadRules_InvalidSeverity(t *testing.T) {
	yaml := `
file_rules:
  - name: shouty
    check: file-size
    severity: FATAL
`
	_, err := LoadRules([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "invalid severity") {
		t.Errorf("error = %v, want invalid severity", err)
	}
}

func TestLoadRules_DuplicateName(t *testing.T) {
	yaml := `
file_rules:
  - name: twice
    check: file-size
    severity: ERROR
  - name: twice
    check: file-size
    severity: WARNING
`
	_, err := LoadRules([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "duplicate rule name") {
		t.Errorf("error = %v, want duplicate rule name", err)
	}
}

func TestLoadRules_MissingName(t *testing.T) {
	yaml := `
package_rules:
  - check: study-number
    severity: ERROR
`
	_, err := LoadRules([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "missing name") {
		t.Errorf("error = %v, want missing name", err)
	}
}
