package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	ipKey contextKey = "client_ip"
	uaKey contextKey = "user_agent"
)

// RequestMeta captures client metadata for audit log entries. RealIP
// middleware has already normalized RemoteAddr upstream.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ipKey, r.RemoteAddr)
		ctx = context.WithValue(ctx, uaKey, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the captured client address, if any.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(ipKey).(string)
	return v
}

// UserAgent returns the captured user agent, if any.
func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(uaKey).(string)
	return v
}
