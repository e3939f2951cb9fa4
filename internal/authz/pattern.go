package authz

import (
	"fmt"
	"strings"
)

// segmentKind classifies one compiled pattern segment.
type segmentKind int

const (
	// segLiteral matches the segment text exactly.
	segLiteral segmentKind = iota

	// segWildcard matches any single segment.
	segWildcard

	// segTrailing matches one or more remaining segments. Only valid as
	// the final segment of a pattern.
	segTrailing
)

// patternSegment is one compiled segment of a path pattern.
type patternSegment struct {
	kind    segmentKind
	literal string
}

// Pattern is a compiled path pattern. Patterns are a deliberately small
// structured representation instead of regular expressions: each segment
// is a literal or a single-segment wildcard ("*"), with an optional
// trailing wildcard ("**") swallowing the rest of the path.
type Pattern struct {
	raw      string
	segments []patternSegment
}

// CompilePattern compiles a pattern string such as "/admin/routes/*" or
// "/buses/**". Compilation happens once at table construction so rule
// authorship errors surface at startup, not per request.
func CompilePattern(raw string) (*Pattern, error) {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	parts := strings.Split(trimmed, "/")
	segments := make([]patternSegment, 0, len(parts))

	for i, part := range parts {
		switch part {
		case "":
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPattern, raw)
		case "*":
			segments = append(segments, patternSegment{kind: segWildcard})
		case "**":
			if i != len(parts)-1 {
				return nil, fmt.Errorf("%w: %q uses ** before the final segment", ErrInvalidPattern, raw)
			}
			segments = append(segments, patternSegment{kind: segTrailing})
		default:
			if strings.Contains(part, "*") {
				return nil, fmt.Errorf("%w: %q mixes literals and wildcards in one segment", ErrInvalidPattern, raw)
			}
			segments = append(segments, patternSegment{kind: segLiteral, literal: part})
		}
	}

	return &Pattern{raw: raw, segments: segments}, nil
}

// Match reports whether the normalized path matches the pattern.
func (p *Pattern) Match(path string) bool {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return false
	}

	parts := strings.Split(trimmed, "/")

	for i, seg := range p.segments {
		switch seg.kind {
		case segTrailing:
			// At least one segment must remain for ** to consume.
			return len(parts) > i
		case segWildcard:
			if i >= len(parts) {
				return false
			}
		case segLiteral:
			if i >= len(parts) || parts[i] != seg.literal {
				return false
			}
		}
	}

	return len(parts) == len(p.segments)
}

// String returns the source text of the pattern.
func (p *Pattern) String() string {
	return p.raw
}
