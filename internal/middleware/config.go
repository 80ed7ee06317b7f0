package middleware

import (
	"net/http"

	"github.com/runboard/runboard/internal/config"
	"github.com/runboard/runboard/internal/ctxkeys"
)

// Config middleware adds the sanitized app configuration to the request context.
func Config(cfg *config.Config) func(http.Handler) http.Handler {
	sanitized := cfg.Sanitized()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ctxkeys.WithConfig(r.Context(), sanitized)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
