package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/easel-entry/internal/middleware"
    "github.com/iliyamo/easel-entry/internal/service"
)

// CheckoutHandler starts payments for authenticated participants.
type CheckoutHandler struct {
    checkout *service.CheckoutService
}

// NewCheckoutHandler returns a CheckoutHandler.
func NewCheckoutHandler(checkout *service.CheckoutService) *CheckoutHandler {
    if checkout == nil {
        panic("nil service passed to NewCheckoutHandler")
    }
    return &CheckoutHandler{checkout: checkout}
}

type checkoutRequest struct {
    Amount *int64 `json:"amount"`
}

type checkoutResponse struct {
    ID          string `json:"id"`
    RedirectURL string `json:"redirect_url"`
    Amount      int64  `json:"amount"`
    Currency    string `json:"currency"`
    Status      string `json:"status"`
}

// Create handles POST /v1/competitions/:competition/checkout.  The body is
// optional; {"amount": n} overrides the default entry fee (minor units).
// Returns 201 with the redirect URL the client must follow to pay.
func (h *CheckoutHandler) Create(c echo.Context) error {
    who, ok := middleware.CurrentIdentity(c)
    if !ok {
        return fail(c, http.StatusUnauthorized, "unauthorized")
    }
    var body checkoutRequest
    if err := c.Bind(&body); err != nil {
        return fail(c, http.StatusBadRequest, "invalid request body")
    }

    s, err := h.checkout.Create(c.Request().Context(), c.Param("competition"), who, body.Amount)
    if err != nil {
        return failWith(c, err)
    }
    return c.JSON(http.StatusCreated, checkoutResponse{
        ID:          s.ID,
        RedirectURL: s.RedirectURL,
        Amount:      s.AmountCents,
        Currency:    s.Currency,
        Status:      s.Status,
    })
}
