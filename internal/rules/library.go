// Package rules loads and serves the clause rule library: three static
// JSON category files mapping regular-expression patterns to severity
// categories. The library is validated against an embedded schema at
// load time and can be hot-reloaded when the files change on disk.
package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/clausecheck/clausecheck/internal/models"
)

// Category file names expected under the rules directory.
var categoryFiles = map[models.Category]string{
	models.CategoryCritical: "critical.json",
	models.CategoryConcern:  "concern.json",
	models.CategorySafe:     "safe.json",
}

// ruleFileSchema validates one category file: an array of clause entries.
const ruleFileSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["id", "patterns", "explanation_en"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"patterns": {
				"type": "array",
				"items": {"type": "string", "minLength": 1},
				"minItems": 1
			},
			"explanation_en": {"type": "string", "minLength": 1},
			"explanation_hi": {"type": "string"}
		},
		"additionalProperties": false
	}
}`

// CompiledRule pairs a clause rule with its compiled patterns. Patterns
// that fail to compile are dropped at load; a rule whose patterns all
// fail is kept with no compiled patterns and can never match.
type CompiledRule struct {
	models.ClauseRule
	Compiled []*regexp.Regexp
}

// MatchesText reports whether any of the rule's patterns matches the
// given normalized text. First pattern hit wins.
func (r CompiledRule) MatchesText(text string) bool {
	for _, re := range r.Compiled {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Library is an immutable snapshot of the compiled rule set. Reloads
// produce a new Library; consumers holding an old snapshot are
// unaffected mid-scan.
type Library struct {
	byCategory map[models.Category][]CompiledRule
}

// Rules returns the compiled rules for a category in declaration order.
func (l *Library) Rules(cat models.Category) []CompiledRule {
	if l == nil {
		return nil
	}
	return l.byCategory[cat]
}

// Len returns the total number of rules across all categories.
func (l *Library) Len() int {
	n := 0
	for _, rs := range l.byCategory {
		n += len(rs)
	}
	return n
}

var compiledSchema = jsonschema.MustCompileString("rules.schema.json", ruleFileSchema)

// Load reads, validates and compiles the three category files under dir.
// A missing or invalid category file fails the whole load; an invalid
// regular expression only drops the offending pattern.
func Load(dir string, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}

	byCategory := make(map[models.Category][]CompiledRule, len(categoryFiles))
	for _, cat := range models.Categories {
		path := filepath.Join(dir, categoryFiles[cat])
		entries, err := loadCategoryFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %s rules: %w", cat, err)
		}
		byCategory[cat] = compileRules(entries, cat, logger)
	}

	return &Library{byCategory: byCategory}, nil
}

func loadCategoryFile(path string) ([]models.ClauseRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Schema validation wants the generic decoded form.
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("validate %s: %w", filepath.Base(path), err)
	}

	var entries []models.ClauseRule
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}

func compileRules(entries []models.ClauseRule, cat models.Category, logger *slog.Logger) []CompiledRule {
	compiled := make([]CompiledRule, 0, len(entries))
	for _, entry := range entries {
		cr := CompiledRule{ClauseRule: entry}
		for _, pattern := range entry.Patterns {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				logger.Warn("skipping malformed clause pattern",
					"category", string(cat),
					"rule_id", entry.ID,
					"pattern", pattern,
					"error", err,
				)
				continue
			}
			cr.Compiled = append(cr.Compiled, re)
		}
		compiled = append(compiled, cr)
	}
	return compiled
}

// Store holds the current library snapshot and swaps it atomically on
// reload. Readers always get a complete, consistent snapshot.
type Store struct {
	mu  sync.RWMutex
	dir string
	lib *Library
	log *slog.Logger
}

// NewStore loads the library from dir and returns a store serving it.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lib, err := Load(dir, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("clause library loaded", "dir", dir, "rules", lib.Len())
	return &Store{dir: dir, lib: lib, log: logger}, nil
}

// Current returns the active library snapshot.
func (s *Store) Current() *Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lib
}

// Reload re-reads the rule files and swaps in the new library. On error
// the previous snapshot stays active.
func (s *Store) Reload() error {
	lib, err := Load(s.dir, s.log)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lib = lib
	s.mu.Unlock()
	s.log.Info("clause library reloaded", "rules", lib.Len())
	return nil
}

// IsRuleFile reports whether a path names one of the category files.
func IsRuleFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, name := range categoryFiles {
		if base == name {
			return true
		}
	}
	return false
}
