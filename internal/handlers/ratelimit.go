package handlers

import (
	"net"
	"net/http"
	"strings"
)

const msgTooManyAttempts = "Too many attempts. Please wait a moment and try again."

// RateLimiter is the minimal interface required to guard the auth forms.
type RateLimiter interface {
	Allow(key string) bool
}

// allowRequest charges one attempt against the caller's address within scope.
func allowRequest(limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(scope + ":" + clientIP(r))
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
