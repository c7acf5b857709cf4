package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TypePaymentSucceeded is the only event type that changes state.
const TypePaymentSucceeded = "payment.succeeded"

// Metadata keys embedded at checkout creation and echoed back by the
// provider.  MetaCheckoutID is added by the provider itself.
const (
	MetaUserID        = "userId"
	MetaCompetitionID = "competitionId"
	MetaName          = "name"
	MetaAvatar        = "avatar"
	MetaCheckoutID    = "checkoutId"
)

var ErrInvalidPayload = errors.New("webhook: invalid payload")

// Event is a decoded provider delivery.
type Event struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	CreatedDate string  `json:"createdDate"`
	Payload     Payment `json:"payload"`
}

// Payment is the payload of payment events.
type Payment struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Mode        string            `json:"mode"`
	AmountCents int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

// Parse decodes a delivery body.  It only checks structure common to all
// event types; payment specific fields are validated by the consumer.
func Parse(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ev.ID == "" || ev.Type == "" {
		return Event{}, fmt.Errorf("%w: id and type are required", ErrInvalidPayload)
	}
	return ev, nil
}

// Meta returns a metadata value or "".
func (e Event) Meta(key string) string {
	if e.Payload.Metadata == nil {
		return ""
	}
	return e.Payload.Metadata[key]
}
