package middleware

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/angelmondragon/lms-notifications/api/responses"
	"github.com/angelmondragon/lms-notifications/pkg/auth"
	"github.com/angelmondragon/lms-notifications/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/lms-notifications/pkg/errors"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

// tokenQueryParam carries the access token on websocket upgrades, where
// browsers cannot set an Authorization header.
const tokenQueryParam = "token"

// TokenVerifier turns a raw bearer token into claims.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// Auth admits requests with a valid access token whose session is still live.
func Auth(tokens TokenVerifier, sessions session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := bearerToken(r)
			if raw == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := tokens.Verify(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			id := claims.Identity()
			if id.SessionID == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}

			if sessions != nil {
				live, err := sessions.HasSession(ctx, id.SessionID)
				switch {
				case err != nil:
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				case !live:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			ctx = WithIdentity(ctx, id.UserID, id.Role)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    id.UserID.String(),
					"actor_role": string(id.Role),
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header, falling back to the query
// string only for websocket upgrades.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		if websocket.IsWebSocketUpgrade(r) {
			return strings.TrimSpace(r.URL.Query().Get(tokenQueryParam))
		}
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return header
}
