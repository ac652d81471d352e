package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLimitDefault(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	if got := parseLimit(r); got != 50 {
		t.Errorf("parseLimit() = %d, want 50", got)
	}
}

func TestParseLimitCapped(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?limit=5000", nil)
	if got := parseLimit(r); got != 200 {
		t.Errorf("parseLimit() = %d, want 200", got)
	}
}

func TestParseLimitInvalidFallsBackToDefault(t *testing.T) {
	for _, v := range []string{"abc", "-5", "0"} {
		r := httptest.NewRequest(http.MethodGet, "/x?limit="+v, nil)
		if got := parseLimit(r); got != 50 {
			t.Errorf("parseLimit(%q) = %d, want 50", v, got)
		}
	}
}

func TestParseLimitValid(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?limit=10", nil)
	if got := parseLimit(r); got != 10 {
		t.Errorf("parseLimit() = %d, want 10", got)
	}
}

func TestWriteJSONSetsStatusAndBody(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() == 0 {
		t.Error("expected a non-empty body")
	}
}

func TestWriteErrorSetsStatusAndMessage(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusNotFound, errNotFound)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not found") {
		t.Errorf("body %q does not mention the error", w.Body.String())
	}
}
