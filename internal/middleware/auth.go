package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"collabedit/internal/auth"
	"collabedit/internal/domain"
	collabSvc "collabedit/internal/domain/services/collab"
	"collabedit/internal/httputil"
)

// publicPaths are served without a token
var publicPaths = map[string]bool{
	"/health": true,
}

// AuthMiddleware verifies the bearer token, provisions the user profile on
// first sight and stores the user ID in the request context.
// Browsers cannot set headers on a WebSocket handshake, so a "token" query
// parameter is accepted as well.
func AuthMiddleware(verifier auth.JWTVerifier, identity collabSvc.IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				logger.Debug("token rejected", "error", err, "path", r.URL.Path)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user, err := identity.EnsureUser(r.Context(), claims.GetUserID(), claims.Username())
			if err != nil {
				if errors.Is(err, domain.ErrValidation) {
					httputil.RespondError(w, http.StatusUnauthorized, "token does not identify a valid user")
					return
				}
				logger.Error("failed to provision user", "user_id", claims.GetUserID(), "error", err)
				httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, user.ID))
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
