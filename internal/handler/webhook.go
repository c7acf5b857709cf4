package handler

import (
    "errors"
    "io"
    "log/slog"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/easel-entry/internal/metrics"
    "github.com/iliyamo/easel-entry/internal/service"
    "github.com/iliyamo/easel-entry/internal/webhook"
)

// maxWebhookBody bounds the raw body read before verification.
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment provider deliveries.  It never consults
// an end-user session: the signature is the only authentication.
type WebhookHandler struct {
    verifier *webhook.Verifier
    entries  *service.EntryService
    logger   *slog.Logger
}

// NewWebhookHandler returns a WebhookHandler.
func NewWebhookHandler(verifier *webhook.Verifier, entries *service.EntryService, logger *slog.Logger) *WebhookHandler {
    if verifier == nil || entries == nil {
        panic("nil dependency passed to NewWebhookHandler")
    }
    if logger == nil {
        logger = slog.Default()
    }
    return &WebhookHandler{verifier: verifier, entries: entries, logger: logger}
}

// Yoco handles POST /v1/webhooks/yoco.  The signature is checked over the
// body bytes exactly as received, before anything is parsed.  Responses:
// 200 {"received": true} for processed, duplicate and ignored events; 400
// for empty or malformed bodies; 401 when verification fails; 404 for an
// unknown competition or participant; 409 when the competition is full;
// 500 when persistence failed and the delivery should be retried.
func (h *WebhookHandler) Yoco(c echo.Context) error {
    ctx := c.Request().Context()

    raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
    if err != nil || len(raw) == 0 || len(raw) > maxWebhookBody {
        metrics.WebhookResult("bad_request")
        return fail(c, http.StatusBadRequest, "invalid request")
    }

    hdr := webhook.HeadersFrom(c.Request().Header)
    if err := h.verifier.Verify(hdr, raw); err != nil {
        metrics.WebhookResult("unauthorized")
        h.logger.WarnContext(ctx, "webhook signature rejected",
            "reason", err.Error(), "webhook_id", hdr.ID, "remote_ip", c.RealIP())
        return fail(c, http.StatusUnauthorized, "unauthorized")
    }

    ev, err := webhook.Parse(raw)
    if err != nil {
        metrics.WebhookResult("bad_payload")
        h.logger.WarnContext(ctx, "webhook payload rejected", "error", err, "webhook_id", hdr.ID)
        return fail(c, http.StatusBadRequest, "invalid payload")
    }

    res, err := h.entries.HandleEvent(ctx, ev, raw, hdr)
    if err != nil {
        status, msg := errorStatus(err)
        metrics.WebhookResult(resultLabel(err))
        if status >= http.StatusInternalServerError {
            h.logger.ErrorContext(ctx, "webhook processing failed", "event_id", ev.ID, "error", err)
        } else {
            h.logger.WarnContext(ctx, "webhook not applied", "event_id", ev.ID, "error", err)
        }
        return fail(c, status, msg)
    }

    metrics.WebhookResult(string(res.Outcome))
    return c.JSON(http.StatusOK, echo.Map{"received": true})
}

func resultLabel(err error) string {
    switch {
    case errors.Is(err, service.ErrMissingMetadata):
        return "bad_payload"
    case errors.Is(err, service.ErrParticipantNotFound), errors.Is(err, service.ErrUnknownCompetition):
        return "not_found"
    case errors.Is(err, service.ErrCapacityExceeded):
        return "capacity_exceeded"
    }
    return "error"
}
