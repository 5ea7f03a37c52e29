package server

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kynews/internal/urlutil"

	"github.com/microcosm-cc/bluemonday"
)

// maxProxyBytes caps how much of an upstream page the proxy will read.
const maxProxyBytes = 2 << 20

// proxyPolicy strips everything that could execute or exfiltrate:
// scripts, event handlers, forms, and iframes all go; article markup
// and images survive.
var proxyPolicy = bluemonday.UGCPolicy()

var proxyClient = &http.Client{
	Timeout: 15 * time.Second,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return http.ErrUseLastResponse
		}
		// Redirects must not escape onto internal addresses.
		if req.URL.Scheme != "https" || urlutil.IsPrivateHost(req.URL.Hostname()) {
			return http.ErrUseLastResponse
		}
		return nil
	},
}

// handleOpenProxy handles GET /api/open-proxy. It fetches a public
// article page, strips executable HTML, and returns the remainder
// wrapped in a minimal framed document so the front end can embed
// third-party content without loading third-party scripts.
func (s *Server) handleOpenProxy(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		s.respondError(w, http.StatusBadRequest, "missing_url", "open-proxy requires a url parameter")
		return
	}

	target, err := url.Parse(raw)
	if err != nil || target.Scheme != "https" || target.Host == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_url", "url must be absolute https")
		return
	}
	if urlutil.IsPrivateHost(target.Hostname()) {
		s.respondError(w, http.StatusBadRequest, "invalid_url", "url resolves to a private host")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_url", "url could not be requested")
		return
	}
	req.Header.Set("User-Agent", s.cfg.Ingest.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := proxyClient.Do(req)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, "bad_gateway", "upstream fetch failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		s.respondError(w, http.StatusBadGateway, "bad_gateway", "upstream returned a non-OK status")
		return
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		s.respondError(w, http.StatusUnsupportedMediaType, "unsupported_media", "upstream did not return HTML")
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBytes))
	if err != nil {
		s.respondError(w, http.StatusBadGateway, "bad_gateway", "upstream read failed")
		return
	}

	// This document is meant to be iframed by our own front end, so
	// relax the global frame denial for this response only.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src https: data:; style-src 'unsafe-inline'; frame-ancestors 'self'")
	w.WriteHeader(http.StatusOK)

	_, _ = fmt.Fprintf(w, proxyFrame,
		html.EscapeString(target.String()),
		proxyPolicy.Sanitize(string(body)),
	)
}

const proxyFrame = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<base href="%s" target="_blank">
</head>
<body>
%s
</body>
</html>
`
