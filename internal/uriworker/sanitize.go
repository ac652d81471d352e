package uriworker

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

// maxHTMLScanChars bounds the input to stripHTML before tokenizing it,
// so a pathological multi-megabyte body can't burn CPU in the tokenizer
// (spec.md §4.6: "truncate to 1000 chars first, then strip").
const maxHTMLScanChars = 1000

// stripHTML removes markup and returns the concatenated text nodes,
// dropping the contents of <script> and <style> elements. The
// input is truncated to maxHTMLScanChars before tokenizing, trading a
// small amount of fidelity on very long fields for a bounded CPU cost.
func stripHTML(s string) string {
	if len(s) > maxHTMLScanChars {
		s = s[:maxHTMLScanChars]
	}
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	inRawText := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "script" || string(name) == "style" {
				inRawText = true
			}
		case html.EndTagToken:
			inRawText = false
		case html.TextToken:
			if !inRawText {
				b.Write(tokenizer.Text())
			}
		}
	}
}

// maxArrayItems bounds how many elements of a JSON array field are kept
// (spec.md §4.6: "cap-then-map validation order: never map-then-cap").
const maxArrayItems = 50

// capThenMapStrings truncates raw to at most maxArrayItems entries
// before sanitizing any of them, so the per-item sanitize cost is
// bounded before it runs rather than after.
func capThenMapStrings(raw []string) []string {
	if len(raw) > maxArrayItems {
		raw = raw[:maxArrayItems]
	}
	out := make([]string, len(raw))
	for i, s := range raw {
		out[i] = stripHTML(s)
	}
	return out
}

// parseStringArray decodes a JSON array of strings, tolerating malformed
// or absent input by returning nil rather than an error: a bad metadata
// field should degrade to "field omitted", not fail the whole fetch.
func parseStringArray(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
