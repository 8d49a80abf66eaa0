package middleware

import (
	"net"
	"net/http"

	lifehelper "github.com/sengeiou/life-helper-server"
)

// ClientMeta copies the client address and User-Agent into the request
// context so engine rate limits and audit events see them. Mount it behind
// a proxy-aware handler such as chi's RealIP when running behind a load
// balancer.
func ClientMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ip := remoteIP(r.RemoteAddr); ip != "" {
			ctx = lifehelper.WithClientIP(ctx, ip)
		}
		if ua := r.UserAgent(); ua != "" {
			ctx = lifehelper.WithUserAgent(ctx, ua)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func remoteIP(addr string) string {
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// RealIP rewrites RemoteAddr without a port.
		return addr
	}
	return host
}
