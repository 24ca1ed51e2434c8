package docs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func getSpec(h *Handler, etag string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/docs/openapi.yaml", nil)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	rec := httptest.NewRecorder()
	h.Spec(rec, req)
	return rec
}

func TestSpecListsDeploymentServers(t *testing.T) {
	h := New("https://api.example.com", "http://127.0.0.1:41234")

	rec := getSpec(h, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/yaml")
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "openapi:") {
		t.Error("body should start with 'openapi:'")
	}
	for _, want := range []string{
		"  - url: https://api.example.com\n",
		"  - url: http://127.0.0.1:41234\n",
		"\npaths:\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("spec missing %q", want)
		}
	}
	if strings.Contains(body, "localhost:8080") {
		t.Error("placeholder server should be replaced")
	}
}

func TestSpecDefaultsToRelativeServer(t *testing.T) {
	body := getSpec(New("", ""), "").Body.String()

	if !strings.Contains(body, "servers:\n  - url: /\n    description: Public API\npaths:") {
		t.Errorf("expected a single relative server, got:\n%s", body)
	}
}

func TestSpecConditionalGet(t *testing.T) {
	h := New("https://api.example.com", "")

	first := getSpec(h, "")
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag")
	}

	second := getSpec(h, etag)
	if second.Code != http.StatusNotModified {
		t.Errorf("status = %d, want %d", second.Code, http.StatusNotModified)
	}
	if second.Body.Len() != 0 {
		t.Error("304 should carry no body")
	}

	if other := New("https://other.example.com", "").etag; other == etag {
		t.Error("different deployments should not share an ETag")
	}
}

func TestPage(t *testing.T) {
	rec := httptest.NewRecorder()
	New("", "").Page(rec, httptest.NewRequest(http.MethodGet, "/api/docs", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `id="api-reference"`) {
		t.Error("body should mount the reference viewer")
	}
	if !strings.Contains(body, "ytwatchtime API Reference") {
		t.Error("body should carry the page title")
	}
	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "cdn.jsdelivr.net") {
		t.Errorf("CSP should allow cdn.jsdelivr.net, got %q", csp)
	}
	if !strings.Contains(csp, "frame-ancestors 'none'") {
		t.Errorf("CSP should forbid framing, got %q", csp)
	}
}

func TestSpecContainsAllEndpoints(t *testing.T) {
	spec := string(specYAML)

	endpoints := []string{
		"/api/health",
		"/api/limits",
		"/api/resolve",
		"/api/videos/{id}/watch-time",
		"/api/stats",
		"/save_watch_time",
	}

	for _, ep := range endpoints {
		if !strings.Contains(spec, ep) {
			t.Errorf("spec missing endpoint: %s", ep)
		}
	}
}
