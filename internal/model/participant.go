package model

import "time"

// Status is a participant's position in the entry lifecycle.
type Status string

const (
    StatusWaiting Status = "waiting" // joined, not paying yet
    StatusPending Status = "pending" // checkout created, payment unconfirmed
    StatusEntered Status = "entered" // payment confirmed, slot assigned
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
    switch s {
    case StatusWaiting, StatusPending, StatusEntered:
        return true
    }
    return false
}

// CanTransition reports whether a participant in status from may move to
// status to.  Entered is terminal; leaving the competition deletes the
// participant instead of transitioning it.  waiting → entered is allowed
// because a payment can be confirmed after the pending sweeper has reset a
// stale checkout.
func CanTransition(from, to Status) bool {
    switch from {
    case StatusWaiting:
        return to == StatusPending || to == StatusEntered
    case StatusPending:
        return to == StatusPending || to == StatusWaiting || to == StatusEntered
    }
    return false
}

// Participant is a user's entry in one competition.
//
// Fields:
//  CompetitionID – competition the entry belongs to.
//  UserID        – opaque identity-provider subject, unique per competition.
//  DisplayName   – name shown on the easel board.
//  AvatarURL     – avatar reference from the identity provider.
//  Status        – waiting, pending or entered.
//  CheckoutID    – provider checkout id while pending; empty otherwise.
//  SlotNumber    – 1..N when entered, nil otherwise.
//  Paid          – true once the payment webhook has been applied.
//  Position      – place in the queue among non-entered participants, in
//                  join order; only filled by status reads.
type Participant struct {
    CompetitionID string    `json:"competition_id"`
    UserID        string    `json:"user_id"`
    DisplayName   string    `json:"display_name"`
    AvatarURL     string    `json:"avatar_url,omitempty"`
    Status        Status    `json:"status"`
    CheckoutID    string    `json:"checkout_id,omitempty"`
    SlotNumber    *int      `json:"slot_number"`
    Paid          bool      `json:"paid"`
    Position      int       `json:"position,omitempty"`
    CreatedAt     time.Time `json:"created_at"`
    UpdatedAt     time.Time `json:"updated_at"`
}

// Entered reports whether the participant already occupies a slot.
func (p Participant) Entered() bool {
    return p.Status == StatusEntered
}
