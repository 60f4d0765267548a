package middleware

import (
	"net/http"
	"strings"
)

// defaultOrigins - dev-серверы фронтенда, разрешены всегда
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:5173", // Vite dev server
	"http://127.0.0.1:5173",
}

// CORS настраивает Cross-Origin Resource Sharing для фронтенда
//
// - Разрешенные origins: defaultOrigins плюс ALLOWED_ORIGINS
// - "*" в списке разрешает любой origin
// - Запросы без Origin (curl, API tools) проходят без CORS заголовков
// - Preflight (OPTIONS) отвечает 204 без вызова handler
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(defaultOrigins)+len(origins))
	allowAll := false
	for _, o := range append(append([]string{}, defaultOrigins...), origins...) {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			allowed[o] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
