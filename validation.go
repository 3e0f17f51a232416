package tangguh

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// maxOperationNameLen bounds sanitized operation names. Names become metric
// label values and registry keys, so they must stay short and printable.
const maxOperationNameLen = 128

// injection-risk characters replaced during sanitization. These are the
// characters that can alter meaning when a name is interpolated into log
// lines, label selectors or shell-adjacent tooling.
const unsafeNameChars = "{}[]<>\"'`;\\|&$"

// SanitizeOperationName normalizes a user-supplied operation name: control
// runes are stripped, injection-risk characters are replaced with '_', the
// result is truncated to a maximum length, and an empty result is rejected.
func SanitizeOperationName(name string) (string, error) {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range name {
		switch {
		case unicode.IsControl(r):
			// dropped
		case strings.ContainsRune(unsafeNameChars, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	sanitized := strings.TrimSpace(b.String())
	if len(sanitized) > maxOperationNameLen {
		// Back up to a rune boundary so a multi-byte rune straddling the
		// limit never produces an invalid UTF-8 label value.
		cut := maxOperationNameLen
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = sanitized[:cut]
	}
	if sanitized == "" {
		return "", ErrEmptyOperationName
	}
	return sanitized, nil
}

// Bounds helpers used by the config validate methods. Each returns a
// problem string ("" when valid) so validation can collect every failure in
// one pass, the same shape the constructors report through ConfigError.

func checkDurationBounds(field string, v, min, max time.Duration) string {
	if v < min || v > max {
		return fmt.Sprintf("%s must be between %v and %v, got %v", field, min, max, v)
	}
	return ""
}

func checkIntBounds(field string, v, min, max int) string {
	if v < min || v > max {
		return fmt.Sprintf("%s must be between %d and %d, got %d", field, min, max, v)
	}
	return ""
}

func checkFloatRange(field string, v, min, max float64, minExclusive bool) string {
	if minExclusive {
		if v <= min || v > max {
			return fmt.Sprintf("%s must be in (%g, %g], got %g", field, min, max, v)
		}
		return ""
	}
	if v < min || v > max {
		return fmt.Sprintf("%s must be in [%g, %g], got %g", field, min, max, v)
	}
	return ""
}

// collectProblems filters empty strings, returning nil when everything passed.
func collectProblems(checks ...string) []string {
	var problems []string
	for _, c := range checks {
		if c != "" {
			problems = append(problems, c)
		}
	}
	return problems
}
