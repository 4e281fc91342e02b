// Package sanitize scrubs key-value payloads before they are stored or
// broadcast. Keys matching sensitivity patterns are redacted, long
// string values are truncated, and nested maps are bounded in depth.
//
// Sanitization is idempotent: applying it twice yields the same result,
// so values may be re-sanitized at multiple boundaries without damage.
package sanitize

import (
	"strings"
	"unicode/utf8"
)

// Sentinels written into sanitized payloads.
const (
	Redacted        = "[REDACTED]"
	TruncatedSuffix = "… [TRUNCATED]"
	DepthLimit      = "[DEPTH-LIMIT]"
)

// sensitiveKeySubstrings are matched against lowercased keys. Any key
// containing one of these has its value replaced with Redacted
// regardless of the value's type.
var sensitiveKeySubstrings = []string{
	"password",
	"token",
	"secret",
	"apikey",
	"api_key",
	"credential",
	"private_key",
	"auth",
}

// Sanitizer applies the redaction rules. Created once at startup;
// stateless and safe for concurrent use.
type Sanitizer struct {
	maxStringLen int
	maxDepth     int
}

// New creates a Sanitizer. maxStringLen bounds string values, maxDepth
// bounds recursion into nested maps.
func New(maxStringLen, maxDepth int) *Sanitizer {
	return &Sanitizer{maxStringLen: maxStringLen, maxDepth: maxDepth}
}

// Map returns a sanitized copy of m. The input is never mutated. A nil
// input returns nil.
func (s *Sanitizer) Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return s.sanitizeMap(m, 1)
}

// SensitiveKey reports whether key triggers redaction.
func SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sub := range sensitiveKeySubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

func (s *Sanitizer) sanitizeMap(m map[string]any, depth int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if SensitiveKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = s.sanitizeValue(v, depth)
	}
	return out
}

func (s *Sanitizer) sanitizeValue(v any, depth int) any {
	switch val := v.(type) {
	case string:
		return s.truncate(val)
	case map[string]any:
		if depth >= s.maxDepth {
			return DepthLimit
		}
		return s.sanitizeMap(val, depth+1)
	case []any:
		if depth >= s.maxDepth {
			return DepthLimit
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.sanitizeValue(item, depth+1)
		}
		return out
	default:
		// Numbers, bools, nil — opaque scalars pass through.
		return v
	}
}

// truncate bounds a string value. Already-truncated values pass through
// unchanged so sanitization stays idempotent. The cut backs up to a
// rune boundary so valid UTF-8 stays valid.
func (s *Sanitizer) truncate(v string) string {
	if len(v) <= s.maxStringLen {
		return v
	}
	if strings.HasSuffix(v, TruncatedSuffix) && len(v) <= s.maxStringLen+len(TruncatedSuffix) {
		return v
	}
	cut := s.maxStringLen
	for cut > 0 && !utf8.RuneStart(v[cut]) {
		cut--
	}
	return v[:cut] + TruncatedSuffix
}
