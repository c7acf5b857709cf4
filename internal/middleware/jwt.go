// Package middleware holds the Echo middleware used by the participant routes.
package middleware

import (
    "log/slog"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/easel-entry/internal/logging"
    "github.com/iliyamo/easel-entry/internal/utils"
)

// Context keys set by JWTAuth.
const (
    CtxUserID      = "user_id"
    CtxRole        = "role"
    CtxDisplayName = "display_name"
    CtxAvatarURL   = "avatar_url"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// issued by the identity provider and injects the caller's identity into the
// request context.  secret is the provider's HS256 signing secret.  Handlers
// read the identity with CurrentIdentity.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            claims, err := utils.ParseIdentityToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            c.Set(CtxUserID, claims.Subject)
            c.Set(CtxRole, claims.Role)
            c.Set(CtxDisplayName, claims.DisplayName())
            c.Set(CtxAvatarURL, claims.Avatar())

            // downstream logs carry the caller
            req := c.Request()
            c.SetRequest(req.WithContext(logging.WithAttrs(req.Context(), slog.String("user_id", claims.Subject))))
            return next(c)
        }
    }
}
