package fs

import (
	"path/filepath"
	"strings"

	"drivesync/internal/sync"
)

// defaultExcludePatterns are always applied regardless of mapping config.
// Editor swap and partial-write artifacts never belong in a drive.
var defaultExcludePatterns = []string{".DS_Store", "*.swp", "*.tmp", "*~"}

// excludePattern is a parsed exclude pattern with its matching strategy.
type excludePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against basename only
}

// ExcludeMatcher checks file paths against a set of exclude patterns.
// Patterns without '/' match against the file's basename only.
// Patterns with '/' match against the full relative path from the mapping root.
type ExcludeMatcher struct {
	patterns []excludePattern
}

// NewExcludeMatcher creates an ExcludeMatcher from raw pattern strings,
// with the default artifact patterns prepended.
// Blank lines and lines starting with '#' are skipped.
func NewExcludeMatcher(rawPatterns []string) *ExcludeMatcher {
	var patterns []excludePattern
	for _, raw := range append(append([]string{}, defaultExcludePatterns...), rawPatterns...) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, excludePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &ExcludeMatcher{patterns: patterns}
}

// Match reports whether the given relative path should be excluded.
// relativePath should use filepath separators and be relative to the mapping root.
func (m *ExcludeMatcher) Match(relativePath string) bool {
	if len(m.patterns) == 0 {
		return false
	}

	// Normalize to forward slashes for consistent matching.
	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		var matched bool
		var err error
		if p.matchPath {
			matched, err = filepath.Match(p.pattern, normalized)
		} else {
			matched, err = filepath.Match(p.pattern, basename)
		}
		if err != nil {
			// Bad pattern, skip rather than crash.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// Compile-time check that ExcludeMatcher implements the sync ExcludeMatcher interface
var _ sync.ExcludeMatcher = (*ExcludeMatcher)(nil)
