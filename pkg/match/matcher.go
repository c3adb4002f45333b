// Package match filters document names with doublestar glob patterns.
package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates include and exclude patterns against document names.
//
//   - Include patterns: name must match at least one (no includes accepts all)
//   - Exclude patterns: name must not match any
//
// The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes        []string
	excludes        []string
	includeHidden   bool
	caseInsensitive bool
}

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns that names must match (at least one).
	// Optional: if empty, every name is included.
	Includes []string

	// Excludes are glob patterns that names must not match (any).
	Excludes []string

	// IncludeHidden controls whether names starting with '.' are matched.
	IncludeHidden bool

	// CaseInsensitive folds both pattern and name to lower case.
	CaseInsensitive bool
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a new Matcher from the given configuration.
//
// Blank patterns are ignored. Returns a *PatternError if any pattern is invalid.
func New(cfg Config) (*Matcher, error) {
	includes, err := compile(cfg.Includes, cfg.CaseInsensitive)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(cfg.Excludes, cfg.CaseInsensitive)
	if err != nil {
		return nil, err
	}
	return &Matcher{
		includes:        includes,
		excludes:        excludes,
		includeHidden:   cfg.IncludeHidden,
		caseInsensitive: cfg.CaseInsensitive,
	}, nil
}

// MatchAll returns a Matcher that accepts every non-hidden name.
func MatchAll() *Matcher {
	return &Matcher{}
}

func compile(raw []string, fold bool) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		normalized := NormalizePattern(p)
		if fold {
			normalized = strings.ToLower(normalized)
		}
		if !doublestar.ValidatePattern(normalized) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		out = append(out, normalized)
	}
	return out, nil
}

// Match returns true if the name passes the include/exclude patterns.
func (m *Matcher) Match(name string) bool {
	if !m.includeHidden && IsHidden(name) {
		return false
	}
	if m.caseInsensitive {
		name = strings.ToLower(name)
	}

	if len(m.includes) > 0 {
		matched := false
		for _, inc := range m.includes {
			if matchPattern(inc, name) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, exc := range m.excludes {
		if matchPattern(exc, name) {
			return false
		}
	}
	return true
}

// IncludePatterns returns the normalized include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the normalized exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

// matchPattern matches a name against a doublestar pattern.
func matchPattern(pattern, name string) bool {
	matched, err := doublestar.Match(pattern, name)
	if err != nil {
		// validated at construction
		return false
	}
	return matched
}
