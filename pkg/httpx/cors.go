package httpx

import (
	"net/http"

	"github.com/shopscribe/shopscribe/pkg/slogx"
)

// CORSConfig describes the origin policy for browser-facing endpoints.
type CORSConfig struct {
	// AllowedOrigins is an exact-match allow-list. No wildcards.
	AllowedOrigins []string

	// AllowNoOrigin admits requests without an Origin header. Only declared
	// webhook endpoints (server-to-server callers) set this.
	AllowNoOrigin bool
}

// CORS enforces the origin allow-list and answers preflight requests.
// Requests from any origin outside the list are rejected with 403 before
// reaching the rest of the pipeline.
func CORS(cfg CORSConfig) Middleware {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin == "" {
				if cfg.AllowNoOrigin {
					next.ServeHTTP(w, r)
					return
				}
				slogx.FromContext(r.Context()).Warn("request without origin rejected",
					"path", r.URL.Path,
				)
				WriteJSON(w, http.StatusForbidden, map[string]string{
					"error": "origin not allowed",
				})
				return
			}

			if _, ok := allowed[origin]; !ok {
				slogx.FromContext(r.Context()).Warn("origin not in allow-list",
					"origin", origin,
					"path", r.URL.Path,
				)
				WriteJSON(w, http.StatusForbidden, map[string]string{
					"error": "origin not allowed",
				})
				return
			}

			// Echo the allow-listed origin, never "*": credentials are allowed.
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Vary", "Origin")

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
				h.Set("Access-Control-Max-Age", "3600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
