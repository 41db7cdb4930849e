package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reviewpulse/credits-server/internal/util"
)

// SecretAuthMiddleware guards service-to-service routes with a shared-secret
// bearer credential. The cron entry points and the credits API use separate
// instances with separate secrets.
type SecretAuthMiddleware struct {
	secretHash string
	realm      string
}

func NewSecretAuthMiddleware(secret, realm string) *SecretAuthMiddleware {
	return &SecretAuthMiddleware{
		secretHash: util.HashToken(secret),
		realm:      realm,
	}
}

func (m *SecretAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing authentication token",
			})
			return
		}

		if !util.ConstantTimeEqual(util.HashToken(token), m.secretHash) {
			log.Warn().Str("realm", m.realm).Msg("auth middleware: invalid token attempt")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid token",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
