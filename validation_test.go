package tangguh

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSanitizeOperationName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain name unchanged", "user-lookup", "user-lookup"},
		{"dots and colons kept", "svc.users:fetch", "svc.users:fetch"},
		{"control characters stripped", "fetch\x00user\n", "fetchuser"},
		{"injection characters replaced", `api{"x"}drop`, "api__x__drop"},
		{"surrounding whitespace trimmed", "  fetch  ", "fetch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeOperationName(tt.input)
			if err != nil {
				t.Fatalf("SanitizeOperationName(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("SanitizeOperationName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeOperationNameSemicolonReplaced(t *testing.T) {
	got, err := SanitizeOperationName("a;b")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a_b" {
		t.Errorf("SanitizeOperationName(\"a;b\") = %q, want %q", got, "a_b")
	}
}

func TestSanitizeOperationNameTruncates(t *testing.T) {
	long := strings.Repeat("a", 500)
	got, err := SanitizeOperationName(long)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != maxOperationNameLen {
		t.Errorf("len = %d, want %d", len(got), maxOperationNameLen)
	}
}

func TestSanitizeOperationNameTruncatesOnRuneBoundary(t *testing.T) {
	// A two-byte rune straddling the length limit must be dropped whole,
	// never split into a trailing continuation byte.
	got, err := SanitizeOperationName(strings.Repeat("a", maxOperationNameLen-1) + "é")
	if err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("result %q is not valid UTF-8", got)
	}
	if want := strings.Repeat("a", maxOperationNameLen-1); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// A name ending in a multi-byte rune that fits exactly keeps it.
	got, err = SanitizeOperationName(strings.Repeat("a", maxOperationNameLen-2) + "é")
	if err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(got) || len(got) != maxOperationNameLen {
		t.Errorf("got %q (len %d), want full-width valid name", got, len(got))
	}
}

func TestSanitizeOperationNameRejectsEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", "\x00\x01\x02"} {
		if _, err := SanitizeOperationName(input); !errors.Is(err, ErrEmptyOperationName) {
			t.Errorf("SanitizeOperationName(%q) error = %v, want ErrEmptyOperationName", input, err)
		}
	}
}

func TestCheckDurationBounds(t *testing.T) {
	if msg := checkDurationBounds("X", time.Second, time.Millisecond, time.Minute); msg != "" {
		t.Errorf("in-range value flagged: %q", msg)
	}
	if msg := checkDurationBounds("X", time.Hour, time.Millisecond, time.Minute); msg == "" {
		t.Error("out-of-range value not flagged")
	}
}

func TestCheckFloatRangeExclusiveMin(t *testing.T) {
	if msg := checkFloatRange("X", 0, 0, 1, true); msg == "" {
		t.Error("exclusive minimum should reject 0")
	}
	if msg := checkFloatRange("X", 1, 0, 1, true); msg != "" {
		t.Errorf("1 should be accepted: %q", msg)
	}
}

func TestCollectProblems(t *testing.T) {
	if got := collectProblems("", "", ""); got != nil {
		t.Errorf("collectProblems of empties = %v, want nil", got)
	}
	if got := collectProblems("", "bad", ""); len(got) != 1 || got[0] != "bad" {
		t.Errorf("collectProblems = %v, want [bad]", got)
	}
}
