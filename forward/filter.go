package forward

import (
	"fmt"

	"github.com/gobwas/glob"
)

// KindFilter filters events by kind using glob patterns
type KindFilter struct {
	kindGlobs []glob.Glob
}

// NewKindFilter creates a new glob-based filter
// Empty patterns match everything
func NewKindFilter(kindPatterns []string) (*KindFilter, error) {
	filter := &KindFilter{
		kindGlobs: make([]glob.Glob, 0, len(kindPatterns)),
	}

	for _, pattern := range kindPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid kind pattern %q: %w", pattern, err)
		}
		filter.kindGlobs = append(filter.kindGlobs, g)
	}

	return filter, nil
}

// Match returns true if the event kind matches the configured patterns
// If no patterns are configured, all events match
func (f *KindFilter) Match(kind string) bool {
	if len(f.kindGlobs) == 0 {
		return true
	}

	for _, g := range f.kindGlobs {
		if g.Match(kind) {
			return true
		}
	}
	return false
}
