package server

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Rate-limit buckets. Each bucket gets its own per-minute counter so a
// burst of media fetches never starves the JSON read path.
const (
	bucketRead  = "read"
	bucketWrite = "write"
	bucketAdmin = "admin"
)

// securityHeaders adds security headers to all responses
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimit enforces the bucket's per-minute cap per client IP. Without
// a cache backend the limiter is a no-op.
func (s *Server) rateLimit(bucket string, perMin int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.kv == nil || !s.cfg.RateLimit.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			now := time.Now().UTC()
			count, err := s.kv.IncrRate(r.Context(), bucket, ip, now)
			if err != nil {
				// Redis trouble never takes the read path down with it.
				s.log.Warn("rate limiter unavailable", "error", err.Error())
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(perMin) - count
			if remaining < 0 {
				remaining = 0
			}
			resetSec := 60 - now.Second()
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", perMin))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset-Sec", fmt.Sprintf("%d", resetSec))

			if count > int64(perMin) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", resetSec))
				s.respondError(w, http.StatusTooManyRequests, "too_many_requests", "too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// botSignals maps User-Agent substrings to score penalties. The score
// starts at the plainly-human end of the scale and each matching signal
// pulls it toward zero.
var botSignals = map[string]int{
	"bot":             85,
	"crawler":         85,
	"spider":          85,
	"scrapy":          95,
	"python-requests": 90,
	"python-urllib":   90,
	"go-http-client":  90,
	"curl/":           90,
	"wget/":           90,
	"headless":        82,
	"phantomjs":       95,
	"selenium":        95,
}

// botScore rates a request on a 0..99 scale where low means automated,
// the convention the platform bot-score threshold is tuned for. An
// absent User-Agent scores zero.
func botScore(r *http.Request) int {
	ua := strings.ToLower(r.Header.Get("User-Agent"))
	if ua == "" {
		return 0
	}
	score := 99
	for signal, penalty := range botSignals {
		if strings.Contains(ua, signal) {
			score -= penalty
		}
	}
	if r.Header.Get("Accept") == "" {
		score -= 10
	}
	if score < 0 {
		score = 0
	}
	return score
}

// botGuard rejects clients scoring below the threshold on the guarded
// surfaces: admin paths, mutating methods, and the open proxy. An empty
// User-Agent is rejected outright. The threshold comes from
// configuration; zero disables the guard.
func (s *Server) botGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		min := s.cfg.Server.BotScoreMin
		if min <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("User-Agent") == "" {
			s.respondError(w, http.StatusForbidden, "automated_client", "a User-Agent header is required on this endpoint")
			return
		}
		if score := botScore(r); score < min {
			s.log.Debug("bot guard rejected request",
				"ip", clientIP(r),
				"user_agent", r.Header.Get("User-Agent"),
				"score", score,
			)
			s.respondError(w, http.StatusForbidden, "automated_client", "automated clients are not permitted on this endpoint")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin protects the operational admin surface: a Cloudflare
// Access identity on the admin list, or the configured bearer token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return s.requireIdentity(next, s.cfg.Admin.Emails)
}

// requireEditor additionally admits the editor identities; editors work
// the review queue but cannot trigger operational actions.
func (s *Server) requireEditor(next http.Handler) http.Handler {
	emails := make([]string, 0, len(s.cfg.Admin.Emails)+len(s.cfg.Admin.EditorEmails))
	emails = append(emails, s.cfg.Admin.Emails...)
	emails = append(emails, s.cfg.Admin.EditorEmails...)
	return s.requireIdentity(next, emails)
}

// requireIdentity gates a handler behind the allowed email identities,
// falling back to the bearer token. Requests arriving through
// Cloudflare Access carry the authenticated email in a trusted header.
// No token and no emails configured means the surface is disabled.
func (s *Server) requireIdentity(next http.Handler, emails []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if email := strings.ToLower(strings.TrimSpace(r.Header.Get("Cf-Access-Authenticated-User-Email"))); email != "" {
			for _, allowed := range emails {
				if email == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			s.log.Warn("unauthorized admin identity", "ip", clientIP(r))
			s.respondError(w, http.StatusForbidden, "forbidden", "identity is not authorized for this endpoint")
			return
		}

		token := s.cfg.Admin.Token
		if token == "" {
			s.respondError(w, http.StatusForbidden, "admin_disabled", "admin API is disabled; configure an admin token or identity list to enable it")
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			s.respondError(w, http.StatusUnauthorized, "missing_authorization", "missing Authorization header")
			return
		}
		expected := "Bearer " + token
		if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
			s.log.Warn("invalid admin token attempt", "ip", clientIP(r))
			s.respondError(w, http.StatusUnauthorized, "invalid_token", "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, relying on middleware.RealIP
// having already folded in X-Forwarded-For.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
