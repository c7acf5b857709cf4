package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/easel-entry/internal/middleware"
    "github.com/iliyamo/easel-entry/internal/service"
)

// WaitlistHandler exposes joining, leaving and the caller's own status.
type WaitlistHandler struct {
    waitlist *service.WaitlistService
}

// NewWaitlistHandler returns a WaitlistHandler.
func NewWaitlistHandler(waitlist *service.WaitlistService) *WaitlistHandler {
    if waitlist == nil {
        panic("nil service passed to NewWaitlistHandler")
    }
    return &WaitlistHandler{waitlist: waitlist}
}

// Join handles POST /v1/competitions/:competition/waitlist.
func (h *WaitlistHandler) Join(c echo.Context) error {
    who, ok := middleware.CurrentIdentity(c)
    if !ok {
        return fail(c, http.StatusUnauthorized, "unauthorized")
    }
    p, err := h.waitlist.Join(c.Request().Context(), c.Param("competition"), who)
    if err != nil {
        return failWith(c, err)
    }
    return c.JSON(http.StatusOK, p)
}

// Leave handles DELETE /v1/competitions/:competition/waitlist.  An entered
// participant gives up its slot.
func (h *WaitlistHandler) Leave(c echo.Context) error {
    who, ok := middleware.CurrentIdentity(c)
    if !ok {
        return fail(c, http.StatusUnauthorized, "unauthorized")
    }
    if err := h.waitlist.Leave(c.Request().Context(), c.Param("competition"), who.UserID); err != nil {
        return failWith(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// Me handles GET /v1/competitions/:competition/me.
func (h *WaitlistHandler) Me(c echo.Context) error {
    who, ok := middleware.CurrentIdentity(c)
    if !ok {
        return fail(c, http.StatusUnauthorized, "unauthorized")
    }
    p, err := h.waitlist.Status(c.Request().Context(), c.Param("competition"), who.UserID)
    if err != nil {
        return failWith(c, err)
    }
    return c.JSON(http.StatusOK, p)
}
