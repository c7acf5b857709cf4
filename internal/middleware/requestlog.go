package middleware

import (
    "log/slog"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"

    "github.com/iliyamo/easel-entry/internal/logging"
)

// RequestID assigns every request a UUID (or keeps the caller's
// X-Request-Id) and attaches it to the request context so all logs written
// while serving the request carry it.
func RequestID() echo.MiddlewareFunc {
    return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
        Generator: uuid.NewString,
        RequestIDHandler: func(c echo.Context, id string) {
            req := c.Request()
            c.SetRequest(req.WithContext(logging.WithAttrs(req.Context(), slog.String("request_id", id))))
        },
    })
}

// RequestLogger writes one structured line per request.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:   true,
        LogURIPath:  true,
        LogStatus:   true,
        LogLatency:  true,
        LogRemoteIP: true,
        LogError:    true,
        HandleError: true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            attrs := []slog.Attr{
                slog.String("method", v.Method),
                slog.String("path", v.URIPath),
                slog.Int("status", v.Status),
                slog.Duration("latency", v.Latency),
                slog.String("remote_ip", v.RemoteIP),
            }
            level := slog.LevelInfo
            if v.Error != nil {
                attrs = append(attrs, slog.String("error", v.Error.Error()))
            }
            if v.Status >= 500 {
                level = slog.LevelError
            }
            logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
            return nil
        },
    })
}
