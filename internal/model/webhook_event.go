package model

import "time"

// WebhookEvent records one verified provider delivery.  EventID is the
// provider's event id and is unique; replays of the same event map to the
// same row.  DeliveryID, Timestamp and Signature are the raw webhook-id,
// webhook-timestamp and webhook-signature headers, kept so a stored body can
// be verified again later.
type WebhookEvent struct {
    EventID     string
    Type        string
    DeliveryID  string
    Timestamp   string
    Signature   string
    Body        []byte
    ReceivedAt  time.Time
    ProcessedAt *time.Time
}
