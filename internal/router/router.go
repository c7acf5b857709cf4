// Package router registers the HTTP routes of the API.
package router

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/easel-entry/internal/handler"
    "github.com/iliyamo/easel-entry/internal/middleware"
    "github.com/iliyamo/easel-entry/internal/utils"
)

// RegisterRoutes registers routes that need no authentication: the health
// check and the metrics endpoint.
func RegisterRoutes(e *echo.Echo, ping func(context.Context) error, metricsHandler http.Handler) {
    e.GET("/healthz", handler.Health(ping))
    if metricsHandler != nil {
        e.GET("/metrics", echo.WrapHandler(metricsHandler))
    }
}

// RegisterWebhooks registers the payment provider's webhook receiver.  It
// sits outside JWT auth and rate limiting; deliveries authenticate with
// their signature.
func RegisterWebhooks(e *echo.Echo, w *handler.WebhookHandler) {
    e.POST("/v1/webhooks/yoco", w.Yoco)
}

// RegisterParticipant registers the participant endpoints under
// /v1/competitions/:competition.  All routes require a valid identity
// provider token of a signed-in user; limit is applied after
// authentication so buckets are keyed by user.
func RegisterParticipant(e *echo.Echo, co *handler.CheckoutHandler, wl *handler.WaitlistHandler, jwtSecret string, limit echo.MiddlewareFunc) {
    if limit == nil {
        limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    g := e.Group(
        "/v1/competitions/:competition",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(utils.RoleAuthenticated),
    )
    g.GET("/me", wl.Me)
    g.POST("/checkout", co.Create, limit)
    g.POST("/waitlist", wl.Join, limit)
    g.DELETE("/waitlist", wl.Leave, limit)
}
