package middleware

import (
	"net/http"
	"net/url"

	"github.com/go-chi/cors"
)

// DefaultOrigins are the local dev and preview servers of the web client.
var DefaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:4173",
	"http://localhost:3000",
	"http://127.0.0.1:5173",
	"http://127.0.0.1:4173",
	"http://127.0.0.1:3000",
}

// OriginPolicy decides which browser origins may call the API with credentials.
type OriginPolicy struct {
	allowed map[string]struct{}
}

// NewOriginPolicy allows DefaultOrigins, extra, and any localhost origin.
func NewOriginPolicy(extra []string) *OriginPolicy {
	allowed := make(map[string]struct{}, len(DefaultOrigins)+len(extra))
	for _, origin := range append(append([]string(nil), DefaultOrigins...), extra...) {
		allowed[origin] = struct{}{}
	}
	return &OriginPolicy{allowed: allowed}
}

// Allowed reports whether origin may call the API.
func (p *OriginPolicy) Allowed(origin string) bool {
	if _, ok := p.allowed[origin]; ok {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

// CORS returns the chi CORS middleware for the policy.
func CORS(policy *OriginPolicy) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return policy.Allowed(origin)
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
