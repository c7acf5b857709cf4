package middleware

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/easel-entry/internal/service"
)

// CurrentIdentity returns the caller set by JWTAuth.  ok is false on routes
// that are not behind JWTAuth.
func CurrentIdentity(c echo.Context) (service.Identity, bool) {
    id, _ := c.Get(CtxUserID).(string)
    if id == "" {
        return service.Identity{}, false
    }
    name, _ := c.Get(CtxDisplayName).(string)
    avatar, _ := c.Get(CtxAvatarURL).(string)
    return service.Identity{UserID: id, DisplayName: name, AvatarURL: avatar}, true
}

// userID returns the caller's id, or "guest" when unauthenticated.
func userID(c echo.Context) string {
    if id, ok := c.Get(CtxUserID).(string); ok && id != "" {
        return id
    }
    return "guest"
}
