// Package urlutil provides URL canonicalization for article identity and
// host safety checks for the open proxy.
package urlutil

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// trackingParamRe matches query parameters that never affect article
// identity and are dropped during canonicalization. utm_* matches as a
// family; the rest match only the exact parameter name.
var trackingParamRe = regexp.MustCompile(`^(utm_|gclid$|fbclid$|mc_eid$|mkt_tok$|outputType$|output$)`)

// Canonicalize normalizes a URL into the canonical identity form: https
// scheme, no fragment, tracking parameters removed, trailing slashes
// collapsed. Canonicalize is idempotent. Non-http(s) URLs are rejected.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q in URL %q", u.Scheme, rawURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL %q has no host", rawURL)
	}

	u.Scheme = "https"
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)

	// Drop tracking parameters, keep the rest in sorted (Encode) order.
	q := u.Query()
	for key := range q {
		if trackingParamRe.MatchString(key) {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	// Collapse trailing slashes on non-root paths.
	if u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
	}

	return u.String(), nil
}

// IsPrivateHost reports whether the host resolves inside this parse to a
// loopback, link-local, or RFC1918 address, or is a bare internal name.
// Used by the open proxy to refuse server-side request forgery targets.
func IsPrivateHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || host == "localhost" || !strings.Contains(host, ".") {
		return true
	}
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return true
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
	}
	return false
}
