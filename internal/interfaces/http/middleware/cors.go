// internal/interfaces/http/middleware/cors.go
package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/your-org/asset-inventory/internal/config"
)

// OriginMatcher decides whether a browser origin may call the API.
// Entries are exact origins ("https://ops.example.com"), subdomain
// wildcards ("*.example.com") or "*".
type OriginMatcher struct {
	any       bool
	exact     map[string]struct{}
	wildcards []string
}

// NewOriginMatcher compiles the configured origin list
func NewOriginMatcher(allowed []string) *OriginMatcher {
	m := &OriginMatcher{exact: make(map[string]struct{}, len(allowed))}
	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case entry == "*":
			m.any = true
		case strings.HasPrefix(entry, "*."):
			m.wildcards = append(m.wildcards, "."+strings.TrimPrefix(entry, "*."))
		default:
			m.exact[strings.TrimSuffix(entry, "/")] = struct{}{}
		}
	}
	return m
}

// Allows reports whether origin matches an entry. Wildcards match on the
// parsed host, so "*.example.com" admits "https://a.example.com" but not
// "https://attacker-example.com" or "https://example.com".
func (m *OriginMatcher) Allows(origin string) bool {
	u, err := url.Parse(strings.ToLower(origin))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if m.any {
		return true
	}
	if _, ok := m.exact[u.Scheme+"://"+u.Host]; ok {
		return true
	}

	host := u.Hostname()
	for _, suffix := range m.wildcards {
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}
	return false
}

// CORS answers preflight requests and sets CORS headers on allowed origins.
// Credentials are only allowed when no "*" entry is configured.
func CORS(cfg *config.Config) gin.HandlerFunc {
	matcher := NewOriginMatcher(cfg.Security.CORSAllowedOrigins)
	handler := cors.New(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return matcher.Allows(origin)
		},
		AllowedMethods:   cfg.Security.CORSAllowedMethods,
		AllowedHeaders:   cfg.Security.CORSAllowedHeaders,
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: !matcher.any,
		MaxAge:           86400,
	})

	return func(c *gin.Context) {
		handler.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(c.Writer, c.Request)

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
