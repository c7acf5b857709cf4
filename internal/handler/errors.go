package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/easel-entry/internal/service"
)

// errorStatus maps service errors to an HTTP status and a client-facing
// message.  Unknown errors are internal; their details stay in the logs.
func errorStatus(err error) (int, string) {
    switch {
    case errors.Is(err, service.ErrInvalidAmount):
        return http.StatusBadRequest, "amount must be positive"
    case errors.Is(err, service.ErrMissingMetadata):
        return http.StatusBadRequest, "invalid payload"
    case errors.Is(err, service.ErrUnknownCompetition):
        return http.StatusNotFound, "competition not found"
    case errors.Is(err, service.ErrParticipantNotFound):
        return http.StatusNotFound, "participant not found"
    case errors.Is(err, service.ErrAlreadyEntered):
        return http.StatusConflict, "already entered"
    case errors.Is(err, service.ErrCapacityExceeded):
        return http.StatusConflict, "capacity exceeded"
    case errors.Is(err, service.ErrUpstreamUnavailable):
        return http.StatusBadGateway, "payment provider unavailable"
    }
    return http.StatusInternalServerError, "internal error"
}

func fail(c echo.Context, status int, msg string) error {
    return c.JSON(status, echo.Map{"error": msg})
}

func failWith(c echo.Context, err error) error {
    status, msg := errorStatus(err)
    return fail(c, status, msg)
}
