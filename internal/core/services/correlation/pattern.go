package correlation

import "strings"

const wildcard = "*"

// Matches reports whether the record pattern applies to platformID.
//
// A pattern applies when it equals the identifier segment by segment, or when
// the pattern truncated at its first "*" segment is a prefix of the identifier's
// segments. A prefix keeps at least one segment. Segments are compared without
// regard to case, and a backslash-escaped colon does not split segments.
func Matches(pattern, platformID string) bool {
	if pattern == "" || platformID == "" {
		return false
	}
	return matchSegments(splitSegments(pattern), splitSegments(platformID))
}

func matchSegments(pattern, target []string) bool {
	if len(pattern) == 0 || len(target) == 0 {
		return false
	}

	if equalSegments(pattern, target) {
		return true
	}

	prefixLen := -1
	for i, seg := range pattern {
		if seg == wildcard {
			prefixLen = i
			break
		}
	}
	if prefixLen < 1 || prefixLen > len(target) {
		return false
	}
	return equalSegments(pattern[:prefixLen], target[:prefixLen])
}

func equalSegments(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// splitSegments splits s on colons that are not escaped with a backslash.
// Escape sequences are kept verbatim inside their segment.
func splitSegments(s string) []string {
	if s == "" {
		return nil
	}

	var segments []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++ // skip the escaped byte
		case ':':
			segments = append(segments, s[start:i])
			start = i + 1
		}
	}
	return append(segments, s[start:])
}
