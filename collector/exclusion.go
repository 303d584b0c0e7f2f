package collector

import (
	"path"
	"strings"
)

// ExclusionFilter drops URLs matching any of its patterns. A pattern is
// either a glob (path.Match syntax) matched against the whole URL, or a
// plain substring.
type ExclusionFilter struct {
	patterns []string
}

// NewExclusionFilter creates a filter from patterns. Empty patterns are
// ignored.
func NewExclusionFilter(patterns []string) *ExclusionFilter {
	kept := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) != "" {
			kept = append(kept, pattern)
		}
	}
	return &ExclusionFilter{patterns: kept}
}

// Excluded reports whether url matches any pattern.
func (f *ExclusionFilter) Excluded(url string) bool {
	for _, pattern := range f.patterns {
		if matched, err := path.Match(pattern, url); err == nil && matched {
			return true
		}
		if strings.Contains(url, pattern) {
			return true
		}
	}
	return false
}
