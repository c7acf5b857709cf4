package model

import "time"

// Slot is one numbered easel position.  Slots 1..N are seeded for every
// competition, so the set is dense and capacity is known before the first
// allocation.  ParticipantID is empty while the slot is free.
type Slot struct {
    CompetitionID string     `json:"competition_id"`
    Number        int        `json:"number"`
    ParticipantID string     `json:"participant_id,omitempty"`
    ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
}

// Free reports whether nobody occupies the slot.
func (s Slot) Free() bool { return s.ParticipantID == "" }
