package middleware

import (
	"net/http"
	"strings"

	"github.com/aidigitalagency/storefront-backend/api/responses"
	pkgAuth "github.com/aidigitalagency/storefront-backend/pkg/auth"
	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

type adminPolicy interface {
	IsAdmin(claims *pkgAuth.AccessTokenClaims) bool
}

// Auth validates a bearer token and seeds the request context with the
// caller identity. The admin role is only granted when policy accepts the
// claims; every other caller is treated as a customer.
func Auth(cfg config.JWTConfig, policy adminPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if strings.TrimSpace(claims.UserID) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing subject"))
				return
			}

			role := enums.UserRoleCustomer
			if policy != nil && policy.IsAdmin(claims) {
				role = enums.UserRoleAdmin
			}

			ctx := WithIdentity(r.Context(), Identity{
				UserID: claims.UserID,
				Email:  strings.TrimSpace(claims.Email),
				Name:   strings.TrimSpace(claims.Name),
				Phone:  strings.TrimSpace(claims.Phone),
				Role:   string(role),
			})

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    claims.UserID,
					"actor_role": string(role),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
