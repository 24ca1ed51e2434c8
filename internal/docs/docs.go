// Package docs publishes the OpenAPI description of both listeners, with the
// server list filled in for the running deployment.
package docs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"net/http"
)

//go:embed openapi.yaml
var specYAML []byte

const pageCSP = "default-src 'self'; " +
	"script-src 'self' https://cdn.jsdelivr.net 'unsafe-inline'; " +
	"style-src 'self' https://cdn.jsdelivr.net 'unsafe-inline'; " +
	"font-src 'self' https://cdn.jsdelivr.net data:; " +
	"img-src 'self' data:; connect-src 'self'; frame-ancestors 'none';"

type Handler struct {
	spec []byte
	etag string
}

// New renders the description once. apiURL is the public API base; an empty
// value keeps requests relative to the page. trackerURL, when set, is listed
// as the watch-time listener.
func New(apiURL, trackerURL string) *Handler {
	spec := withServers(specYAML, apiURL, trackerURL)
	sum := sha256.Sum256(spec)
	return &Handler{
		spec: spec,
		etag: `"` + hex.EncodeToString(sum[:8]) + `"`,
	}
}

func withServers(spec []byte, apiURL, trackerURL string) []byte {
	start := bytes.Index(spec, []byte("\nservers:\n"))
	end := bytes.Index(spec, []byte("\npaths:\n"))
	if start < 0 || end < start {
		return spec
	}
	if apiURL == "" {
		apiURL = "/"
	}

	var b bytes.Buffer
	b.Write(spec[:start])
	b.WriteString("\nservers:\n")
	fmt.Fprintf(&b, "  - url: %s\n    description: Public API\n", apiURL)
	if trackerURL != "" {
		fmt.Fprintf(&b, "  - url: %s\n    description: Watch-time listener\n", trackerURL)
	}
	b.Write(spec[end+1:])
	return b.Bytes()
}

func (h *Handler) Spec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", h.etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == h.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(h.spec)
}

// Page loads its viewer from a CDN, so it swaps the API's CSP for one that
// allows that origin.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Security-Policy", pageCSP)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(pageHTML))
}

const pageHTML = `<!DOCTYPE html>
<html><head>
  <title>ytwatchtime API Reference</title>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
</head><body>
  <script id="api-reference" data-url="/api/docs/openapi.yaml"></script>
  <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body></html>`
