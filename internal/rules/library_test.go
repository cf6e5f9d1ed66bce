package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRuleDir(t *testing.T, critical, concern, safe string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"critical.json": critical,
		"concern.json":  concern,
		"safe.json":     safe,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

const minimalCritical = `[{"id":"arbitration_clause","patterns":["arbitration"],"explanation_en":"Arbitration required."}]`
const minimalConcern = `[{"id":"data_collection","patterns":["collects? personal data"],"explanation_en":"Data is collected."}]`
const minimalSafe = `[{"id":"opt_out","patterns":["opt[- ]out"],"explanation_en":"Opt-out available."}]`

func TestLoad(t *testing.T) {
	dir := writeRuleDir(t, minimalCritical, minimalConcern, minimalSafe)

	lib, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if lib.Len() != 3 {
		t.Errorf("expected 3 rules, got %d", lib.Len())
	}

	critical := lib.Rules("critical")
	if len(critical) != 1 || critical[0].ID != "arbitration_clause" {
		t.Errorf("unexpected critical rules: %+v", critical)
	}
	if len(critical[0].Compiled) != 1 {
		t.Errorf("expected 1 compiled pattern, got %d", len(critical[0].Compiled))
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir, nil); err == nil {
		t.Error("expected error for missing category files")
	}
}

func TestLoadRejectsInvalidSchema(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not an array", `{"id":"x"}`},
		{"missing id", `[{"patterns":["a"],"explanation_en":"x"}]`},
		{"empty patterns", `[{"id":"x","patterns":[],"explanation_en":"x"}]`},
		{"unknown field", `[{"id":"x","patterns":["a"],"explanation_en":"x","severity":9}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeRuleDir(t, tt.body, minimalConcern, minimalSafe)
			if _, err := Load(dir, nil); err == nil {
				t.Error("expected schema validation error")
			}
		})
	}
}

func TestLoadSkipsMalformedPatterns(t *testing.T) {
	critical := `[{"id":"broken","patterns":["(unclosed","arbitration"],"explanation_en":"x"}]`
	dir := writeRuleDir(t, critical, minimalConcern, minimalSafe)

	lib, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	rule := lib.Rules("critical")[0]
	if len(rule.Compiled) != 1 {
		t.Errorf("expected malformed pattern to be skipped, got %d compiled", len(rule.Compiled))
	}
	if !rule.MatchesText("all disputes go to arbitration") {
		t.Error("surviving pattern should still match")
	}
}

func TestPatternsMatchCaseInsensitively(t *testing.T) {
	dir := writeRuleDir(t, minimalCritical, minimalConcern, minimalSafe)
	lib, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	rule := lib.Rules("critical")[0]
	if !rule.MatchesText("BINDING ARBITRATION APPLIES") {
		t.Error("pattern should match regardless of case")
	}
}

func TestStoreReload(t *testing.T) {
	dir := writeRuleDir(t, minimalCritical, minimalConcern, minimalSafe)
	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	before := store.Current()

	updated := `[{"id":"arbitration_clause","patterns":["arbitration"],"explanation_en":"x"},` +
		`{"id":"liability_limitation","patterns":["not liable"],"explanation_en":"y"}]`
	if err := os.WriteFile(filepath.Join(dir, "critical.json"), []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite critical.json: %v", err)
	}

	if err := store.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if store.Current().Len() != 4 {
		t.Errorf("expected 4 rules after reload, got %d", store.Current().Len())
	}
	// The old snapshot is untouched.
	if before.Len() != 3 {
		t.Errorf("prior snapshot mutated: %d rules", before.Len())
	}
}

func TestStoreReloadKeepsPreviousOnError(t *testing.T) {
	dir := writeRuleDir(t, minimalCritical, minimalConcern, minimalSafe)
	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "critical.json"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("corrupt critical.json: %v", err)
	}

	if err := store.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if store.Current().Len() != 3 {
		t.Errorf("previous library should stay active, got %d rules", store.Current().Len())
	}
}

func TestIsRuleFile(t *testing.T) {
	if !IsRuleFile("/some/dir/critical.json") {
		t.Error("critical.json should be a rule file")
	}
	if IsRuleFile("/some/dir/notes.json") {
		t.Error("notes.json should not be a rule file")
	}
}
