// Package handlers holds the engine's health monitor and the HTTP guards
// the server puts in front of its routes.
package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies mws to h; the first one runs outermost.
func Wrap(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RejectFunc writes an error response in the API's envelope.
type RejectFunc func(w http.ResponseWriter, r *http.Request, status int, code, message string)

func plainReject(w http.ResponseWriter, _ *http.Request, status int, code, message string) {
	http.Error(w, code+": "+message, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE GUARD
// ══════════════════════════════════════════════════════════════════════════════

// WriteGuard admits requests that carry a configured API key, either in the
// key header or as a bearer token. Streak changes, completions, candidate
// registration and presence all sit behind it; reads stay open.
type WriteGuard struct {
	header string
	keys   [][]byte
	reject RejectFunc
}

// NewWriteGuard creates a guard. Empty keys are ignored; a guard without keys
// admits everything.
func NewWriteGuard(header string, keys []string, reject RejectFunc) *WriteGuard {
	if reject == nil {
		reject = plainReject
	}
	g := &WriteGuard{header: header, reject: reject}
	for _, k := range keys {
		if k != "" {
			g.keys = append(g.keys, []byte(k))
		}
	}
	return g
}

// Enabled reports whether any key is configured.
func (g *WriteGuard) Enabled() bool {
	return len(g.keys) > 0
}

// Wrap guards next.
func (g *WriteGuard) Wrap(next http.Handler) http.Handler {
	if !g.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := g.keyFrom(r)
		if key == "" {
			g.reject(w, r, http.StatusUnauthorized, "missing_api_key", "API key is required")
			return
		}
		if !g.admits(key) {
			g.reject(w, r, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *WriteGuard) keyFrom(r *http.Request) string {
	if key := r.Header.Get(g.header); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	return ""
}

func (g *WriteGuard) admits(key string) bool {
	ok := 0
	for _, k := range g.keys {
		ok |= subtle.ConstantTimeCompare(k, []byte(key))
	}
	return ok == 1
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HEADERS AND BODY LIMIT
// ══════════════════════════════════════════════════════════════════════════════

// SecureHeaders sets headers for a JSON-only API.
func SecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// LimitBody refuses declared bodies over maxBytes and caps what handlers can
// read from the rest.
func LimitBody(maxBytes int64, reject RejectFunc) Middleware {
	if reject == nil {
		reject = plainReject
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				reject(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
