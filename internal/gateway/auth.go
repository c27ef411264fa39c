package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/omnihear/internal/security"
)

// authMiddleware validates a Bearer token or Basic credentials in constant
// time. Failed attempts count against the auth rate limit of the client
// address; once it is full the client gets 429 until the window moves.
// auditLogger and rateLimiter may be nil.
func authMiddleware(cfg AuthConfig, auditLogger *security.AuditLogger, rateLimiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if rateLimiter != nil && rateLimiter.Full(security.KindAuth, ip) {
				emitAuthEvent(auditLogger, security.EventRateLimit, r, "too many failed logins")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			if method, ok := checkCredentials(cfg, r); ok {
				emitAuthEvent(auditLogger, security.EventAuthSuccess, r, method)
				next.ServeHTTP(w, r)
				return
			}

			detail := "invalid credentials"
			if r.Header.Get("Authorization") == "" {
				detail = "missing authorization header"
			}
			emitAuthEvent(auditLogger, security.EventAuthFailure, r, detail)
			if rateLimiter != nil {
				_ = rateLimiter.Allow(security.KindAuth, ip)
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="omnihear"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

// checkCredentials returns the auth method that matched.
func checkCredentials(cfg AuthConfig, r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	if cfg.BearerToken != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(token, cfg.BearerToken) {
			return "bearer", true
		}
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
			return "basic", true
		}
	}
	return "", false
}

func emitAuthEvent(logger *security.AuditLogger, eventType security.EventType, r *http.Request, detail string) {
	if logger == nil {
		return
	}
	logger.Log(security.AuditEvent{
		Type:   eventType,
		Detail: detail,
		Metadata: map[string]string{
			"remote_addr": r.RemoteAddr,
			"method":      r.Method,
			"path":        r.URL.Path,
		},
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
