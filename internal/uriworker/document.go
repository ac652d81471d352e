package uriworker

import "encoding/json"

// agentDocument is the off-chain metadata document an agent's URI is
// expected to resolve to: a small, loosely-typed card plus the
// structured arrays spec.md §4.6 calls out by name (services,
// registrations, trust-mechanism enums).
type agentDocument struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Image         string   `json:"image"`
	ExternalURL   string   `json:"external_url"`
	Services      []string `json:"services"`
	Registrations []string `json:"registrations"`
	TrustModels   []string `json:"trustModels"`
}

// parseAgentDocument decodes raw JSON into the fields this worker
// persists, returning an error only when the top-level document itself
// is not valid JSON (an individual malformed field degrades to empty
// rather than failing the whole fetch).
func parseAgentDocument(raw []byte) (agentDocument, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return agentDocument{}, err
	}
	doc := agentDocument{
		Name:        jsonString(m["name"]),
		Description: jsonString(m["description"]),
		Image:       jsonString(m["image"]),
		ExternalURL: jsonString(m["external_url"]),
	}
	doc.Services = capThenMapStrings(parseStringArray(m["services"]))
	doc.Registrations = capThenMapStrings(parseStringArray(m["registrations"]))
	doc.TrustModels = capThenMapStrings(parseStringArray(m["trustModels"]))
	doc.Name = stripHTML(doc.Name)
	doc.Description = stripHTML(doc.Description)
	doc.Image = sanitizeURLField(doc.Image)
	doc.ExternalURL = sanitizeURLField(doc.ExternalURL)
	return doc, nil
}

func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// sanitizeURLField keeps a URL field only if it uses an allowed scheme;
// anything else (javascript:, data:, malformed) is dropped rather than
// stored, since these values are later surfaced to API consumers.
func sanitizeURLField(raw string) string {
	if raw == "" {
		return ""
	}
	switch {
	case hasPrefixFold(raw, "https://"), hasPrefixFold(raw, "http://"),
		hasPrefixFold(raw, "ipfs://"), hasPrefixFold(raw, "ar://"):
		return raw
	default:
		return ""
	}
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		c, p := s[i], prefix[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != p {
			return false
		}
	}
	return true
}
