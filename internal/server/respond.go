package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"kynews/internal/cache"
)

// apiHandler builds the response body for a cacheable GET endpoint. The
// cached wrapper handles serialization, validators, and error mapping.
type apiHandler func(r *http.Request) (interface{}, error)

// httpError carries a client-visible status and machine-readable code.
type httpError struct {
	status  int
	code    string
	message string
}

func (e *httpError) Error() string { return e.message }

func badRequest(code, format string, args ...interface{}) *httpError {
	return &httpError{status: http.StatusBadRequest, code: code, message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) *httpError {
	return &httpError{status: http.StatusNotFound, code: "not_found", message: fmt.Sprintf(format, args...)}
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Status int    `json:"status"`
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes the uniform error body.
func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorBody{Error: message, Code: code, Status: status})
}

// respondHandlerError maps a handler error onto the wire, recording
// unexpected failures in the rolling error log.
func (s *Server) respondHandlerError(w http.ResponseWriter, r *http.Request, err error) {
	if he, ok := err.(*httpError); ok {
		s.respondError(w, he.status, he.code, he.message)
		return
	}
	s.log.Error("request failed", "path", r.URL.Path, "error", err)
	if s.kv != nil {
		_ = s.kv.RecordError(r.Context(), "api", r.URL.Path+": "+err.Error())
	}
	s.respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

// cached wraps a read handler with the content-addressed response
// cache: the serialized payload is stored alongside its ETag, repeat
// requests are served from the cache, and a matching If-None-Match
// short-circuits to 304 whether the entry was cached or freshly built.
// Requests carrying operator credentials never touch the shared cache.
func (s *Server) cached(h apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bypassCache(r) {
			data, err := h(r)
			if err != nil {
				s.respondHandlerError(w, r, err)
				return
			}
			s.respondJSON(w, http.StatusOK, data)
			return
		}

		key := cache.ResponseKey(r.URL.Path, r.URL.Query())

		if s.kv != nil {
			env, err := s.kv.GetResponse(r.Context(), key)
			if err != nil {
				s.log.Warn("response cache read failed", "error", err.Error())
			} else if env != nil {
				s.writeCached(w, r, env.ETag, env.Payload, "HIT")
				return
			}
		}

		data, err := h(r)
		if err != nil {
			s.respondHandlerError(w, r, err)
			return
		}

		payload, err := json.Marshal(data)
		if err != nil {
			s.respondHandlerError(w, r, err)
			return
		}
		etag := cache.ETagFor(payload)

		if s.kv != nil {
			env := &cache.ResponseEnvelope{ETag: etag, Payload: payload, CachedAt: time.Now().UTC()}
			if err := s.kv.SetResponse(r.Context(), key, env, s.envelopeTTL()); err != nil {
				s.log.Warn("response cache write failed", "error", err.Error())
			}
		}
		s.writeCached(w, r, etag, payload, "MISS")
	}
}

// envelopeTTL keeps an entry past its freshness window so the stale
// copy is still available for stale-while-revalidate serving.
func (s *Server) envelopeTTL() time.Duration {
	stale := s.cfg.Cache.StaleWindow
	if stale < time.Minute {
		stale = time.Minute
	}
	return s.cfg.Cache.APITTL + stale
}

// bypassCache reports whether the request carries operator credentials
// (admin bearer or Cloudflare Access identity); those responses are
// neither served from nor written to the shared cache.
func bypassCache(r *http.Request) bool {
	return r.Header.Get("Authorization") != "" ||
		r.Header.Get("Cf-Access-Jwt-Assertion") != "" ||
		r.Header.Get("Cf-Access-Authenticated-User-Email") != ""
}

// writeCached emits a cached-style response: validator headers first,
// then either a 304 or the payload itself.
func (s *Server) writeCached(w http.ResponseWriter, r *http.Request, etag string, payload []byte, cacheState string) {
	ttl := int(s.cfg.Cache.APITTL.Seconds())
	maxAge := ttl
	if maxAge > 60 {
		maxAge = 60
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Cache", cacheState)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, s-maxage=%d, stale-while-revalidate=%d",
		maxAge, ttl, int(s.cfg.Cache.StaleWindow.Seconds())))

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.log.Debug("response write failed", "error", err.Error())
	}
}
