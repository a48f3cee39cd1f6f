package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docrag-go/internal/logging"
)

// authMiddleware enforces Bearer token authentication on next. An empty
// apiKey disables it; New logs a warning once at startup in that case.
//
// Protected routes must supply:
//
//	Authorization: Bearer <apiKey>
//
// Missing or wrong tokens get 401 with a WWW-Authenticate challenge. Token
// values are never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docrag"`)
			writeError(w, r, http.StatusUnauthorized, "authorization required")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docrag" error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
