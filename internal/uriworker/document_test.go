package uriworker

import "testing"

func TestParseAgentDocument(t *testing.T) {
	raw := []byte(`{
		"name": "<b>Agent</b>",
		"description": "does things",
		"image": "https://example.com/a.png",
		"external_url": "javascript:alert(1)",
		"services": ["a2a", "mcp"],
		"trustModels": ["reputation"]
	}`)

	doc, err := parseAgentDocument(raw)
	if err != nil {
		t.Fatalf("parseAgentDocument: %v", err)
	}
	if doc.Name != "Agent" {
		t.Errorf("Name = %q, want stripped of markup", doc.Name)
	}
	if doc.Image != "https://example.com/a.png" {
		t.Errorf("Image = %q", doc.Image)
	}
	if doc.ExternalURL != "" {
		t.Errorf("ExternalURL should be dropped for disallowed scheme, got %q", doc.ExternalURL)
	}
	if len(doc.Services) != 2 || len(doc.TrustModels) != 1 {
		t.Errorf("array fields not preserved: %+v", doc)
	}
}

func TestParseAgentDocumentInvalidJSON(t *testing.T) {
	if _, err := parseAgentDocument([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid top-level JSON")
	}
}

func TestSanitizeURLFieldRejectsDisallowedSchemes(t *testing.T) {
	cases := map[string]bool{
		"https://a.com":  true,
		"http://a.com":   true,
		"ipfs://cid":     true,
		"ar://tx":        true,
		"javascript:x":   false,
		"data:text/html": false,
		"":                false,
	}
	for in, want := range cases {
		got := sanitizeURLField(in) != ""
		if got != want {
			t.Errorf("sanitizeURLField(%q) kept=%v, want %v", in, got, want)
		}
	}
}
