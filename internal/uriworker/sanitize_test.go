package uriworker

import (
	"strings"
	"testing"
)

func TestStripHTML(t *testing.T) {
	in := "<b>Hello</b> <script>evil()</script> world"
	got := stripHTML(in)
	if strings.Contains(got, "<") || strings.Contains(got, "evil()") {
		t.Errorf("stripHTML left markup/script: %q", got)
	}
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "world") {
		t.Errorf("stripHTML dropped text content: %q", got)
	}
}

func TestStripHTMLTruncatesBeforeTokenizing(t *testing.T) {
	long := strings.Repeat("a", maxHTMLScanChars+500)
	got := stripHTML(long)
	if len(got) > maxHTMLScanChars {
		t.Errorf("stripHTML output longer than scan cap: %d", len(got))
	}
}

func TestCapThenMapStrings(t *testing.T) {
	raw := make([]string, maxArrayItems+10)
	for i := range raw {
		raw[i] = "<i>x</i>"
	}
	got := capThenMapStrings(raw)
	if len(got) != maxArrayItems {
		t.Fatalf("capThenMapStrings len = %d, want %d", len(got), maxArrayItems)
	}
	for _, s := range got {
		if strings.Contains(s, "<") {
			t.Errorf("element not sanitized: %q", s)
		}
	}
}

func TestParseStringArrayMalformedReturnsNil(t *testing.T) {
	if got := parseStringArray([]byte(`{"not":"an array"}`)); got != nil {
		t.Errorf("expected nil for malformed array, got %v", got)
	}
	if got := parseStringArray(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}
