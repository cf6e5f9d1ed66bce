package scanner

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/clausecheck/clausecheck/internal/models"
	"github.com/clausecheck/clausecheck/internal/rules"
)

func testStore(t *testing.T) *rules.Store {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"critical.json": `[
			{"id":"arbitration_clause","patterns":["binding arbitration","arbitration"],"explanation_en":"Disputes must go through arbitration.","explanation_hi":"विवाद मध्यस्थता से सुलझाने होंगे।"},
			{"id":"liability_limitation","patterns":["not (be )?liable"],"explanation_en":"The company limits its liability."},
			{"id":"data_sale","patterns":["sell your (personal )?data"],"explanation_en":"Your data may be sold."}
		]`,
		"concern.json": `[
			{"id":"data_collection","patterns":["collect.{0,20}personal (data|information)"],"explanation_en":"Personal data is collected."},
			{"id":"data_sale","patterns":["sell your (personal )?data"],"explanation_en":"Duplicate of the critical rule."}
		]`,
		"safe.json": `[
			{"id":"opt_out_available","patterns":["opt[- ]out"],"explanation_en":"You can opt out of data sharing."}
		]`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	store, err := rules.NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func ids(matches []models.ClauseRule) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out
}

func TestScanSingleCriticalMatch(t *testing.T) {
	s := New(testStore(t))

	matches := s.Scan("All disputes go to arbitration.")

	if got := ids(matches[models.CategoryCritical]); !reflect.DeepEqual(got, []string{"arbitration_clause"}) {
		t.Errorf("critical matches = %v, want [arbitration_clause]", got)
	}
	if len(matches[models.CategoryConcern]) != 0 {
		t.Errorf("expected no concern matches, got %v", ids(matches[models.CategoryConcern]))
	}
	if len(matches[models.CategorySafe]) != 0 {
		t.Errorf("expected no safe matches, got %v", ids(matches[models.CategorySafe]))
	}
}

func TestScanCaseInsensitive(t *testing.T) {
	s := New(testStore(t))

	matches := s.Scan("BINDING ARBITRATION is required")
	if len(matches[models.CategoryCritical]) != 1 {
		t.Errorf("expected match on upper-case text, got %v", matches)
	}
}

func TestScanDedupAcrossCategories(t *testing.T) {
	s := New(testStore(t))

	// data_sale appears in both critical.json and concern.json; the
	// critical entry must win and the concern one must be suppressed.
	matches := s.Scan("We may sell your personal data to partners.")

	if got := ids(matches[models.CategoryCritical]); !reflect.DeepEqual(got, []string{"data_sale"}) {
		t.Errorf("critical matches = %v, want [data_sale]", got)
	}
	for _, m := range matches[models.CategoryConcern] {
		if m.ID == "data_sale" {
			t.Error("data_sale counted twice across categories")
		}
	}
}

func TestScanDeterministic(t *testing.T) {
	s := New(testStore(t))
	text := "We collect your personal data. Disputes go to arbitration. You may opt-out."

	first := s.Scan(text)
	for i := 0; i < 5; i++ {
		if again := s.Scan(text); !reflect.DeepEqual(again, first) {
			t.Fatalf("scan %d differs: %v vs %v", i, again, first)
		}
	}
}

func TestScanNoMatches(t *testing.T) {
	s := New(testStore(t))

	matches := s.Scan("A plain recipe for lentil soup.")
	for _, cat := range models.Categories {
		if matches[cat] == nil {
			t.Errorf("category %s should be an empty slice, not nil", cat)
		}
		if len(matches[cat]) != 0 {
			t.Errorf("unexpected %s matches: %v", cat, ids(matches[cat]))
		}
	}
}

func TestCountMatches(t *testing.T) {
	s := New(testStore(t))

	text := "Arbitration applies. The company shall not be liable. We collect your personal data. You can opt-out."
	counts := CountMatches(s.Scan(text))

	want := models.Counts{Critical: 2, Concern: 1, Safe: 1}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
	if counts.Total() != 4 {
		t.Errorf("total = %d, want 4", counts.Total())
	}
}

func TestBuildSummary(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "arbitration and concerns",
			text: "Binding arbitration applies. We collect your personal data.",
			want: []string{"arbitration and class-action restrictions", "Caution is required"},
		},
		{
			name: "liability only",
			text: "The company shall not be liable for damages.",
			want: []string{"limit its legal responsibility"},
		},
		{
			name: "safe provisions",
			text: "You may opt-out at any time.",
			want: []string{"rights and control over their personal data"},
		},
		{
			name: "nothing matched",
			text: "A plain recipe for lentil soup.",
			want: []string{"No major legal risks"},
		},
	}

	s := New(testStore(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			en, hi := BuildSummary(s.Scan(tt.text))
			for _, frag := range tt.want {
				if !strings.Contains(en, frag) {
					t.Errorf("summary %q missing %q", en, frag)
				}
			}
			if hi == "" {
				t.Error("hindi summary should not be empty")
			}
		})
	}
}

func TestAnswer(t *testing.T) {
	s := New(testStore(t))
	matches := s.Scan("Binding arbitration applies. We collect your personal data.")

	answer, ok := Answer("does this require arbitration", "en", matches)
	if !ok {
		t.Fatal("expected an answer about arbitration")
	}
	if !strings.Contains(answer, "arbitration") {
		t.Errorf("answer %q does not mention arbitration", answer)
	}

	// Stop words shorter than four characters never select a rule.
	if _, ok := Answer("is it ok", "en", matches); ok {
		t.Error("short words alone should not produce an answer")
	}

	if _, ok := Answer("anything about refunds?", "en", matches); ok {
		t.Error("unrelated question should not produce an answer")
	}
}

func TestAnswerHindi(t *testing.T) {
	s := New(testStore(t))
	matches := s.Scan("Binding arbitration applies.")

	answer, ok := Answer("tell me about arbitration", "hi", matches)
	if !ok {
		t.Fatal("expected an answer")
	}
	if answer != "विवाद मध्यस्थता से सुलझाने होंगे।" {
		t.Errorf("expected hindi explanation, got %q", answer)
	}
}
