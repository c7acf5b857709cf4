// Package queue carries entry events over RabbitMQ: the publisher used by
// the payment webhook and the background consumer that keeps the entry log.
package queue

import (
    "time"

    "github.com/iliyamo/easel-entry/internal/model"
)

// EnteredQueue is the durable queue entry events are routed to.
const EnteredQueue = "participant.entered"

// ParticipantEnteredEvent is published once a participant's payment has been
// confirmed and a slot assigned.  It carries everything the easel board needs
// so consumers never query the primary database.
type ParticipantEnteredEvent struct {
    CompetitionID string `json:"competition_id"`
    UserID        string `json:"user_id"`
    DisplayName   string `json:"display_name"`
    AvatarURL     string `json:"avatar_url,omitempty"`
    SlotNumber    int    `json:"slot_number"`
    EnteredAt     string `json:"entered_at"`
}

// NewParticipantEnteredEvent builds the event for an entered participant.
func NewParticipantEnteredEvent(p model.Participant) ParticipantEnteredEvent {
    ev := ParticipantEnteredEvent{
        CompetitionID: p.CompetitionID,
        UserID:        p.UserID,
        DisplayName:   p.DisplayName,
        AvatarURL:     p.AvatarURL,
        EnteredAt:     p.UpdatedAt.UTC().Format(time.RFC3339),
    }
    if p.UpdatedAt.IsZero() {
        ev.EnteredAt = time.Now().UTC().Format(time.RFC3339)
    }
    if p.SlotNumber != nil {
        ev.SlotNumber = *p.SlotNumber
    }
    return ev
}
