package middleware

import "net/http"

// CORSMiddleware sets Cross-Origin Resource Sharing headers so browser
// consoles on other origins can call the API.
type CORSMiddleware struct {
	allowed map[string]struct{}
}

// NewCORSMiddleware restricts cross-origin access to the given origins.
// With no arguments every origin is allowed.
func NewCORSMiddleware(allowedOrigins ...string) *CORSMiddleware {
	c := &CORSMiddleware{}
	if len(allowedOrigins) > 0 {
		c.allowed = make(map[string]struct{}, len(allowedOrigins))
		for _, origin := range allowedOrigins {
			c.allowed[origin] = struct{}{}
		}
	}
	return c
}

// Wrap adds CORS headers to responses and answers preflight OPTIONS
// requests directly.
func (c *CORSMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && c.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (c *CORSMiddleware) originAllowed(origin string) bool {
	if c.allowed == nil {
		return true
	}
	if _, ok := c.allowed[origin]; ok {
		return true
	}
	_, wildcard := c.allowed["*"]
	return wildcard
}
