package service

import (
	"context"
	"time"

	"github.com/iliyamo/easel-entry/internal/model"
)

// ParticipantStore persists participants.  Implementations return
// repository.ErrNotFound for missing rows and repository.ErrConflict when a
// conditional write lost against a concurrent one.
type ParticipantStore interface {
	Get(ctx context.Context, competitionID, userID string) (model.Participant, error)
	Join(ctx context.Context, p model.Participant) (model.Participant, error)
	MarkPending(ctx context.Context, p model.Participant, checkoutID string) error
	MarkEntered(ctx context.Context, competitionID, userID string, slot int) error
	Delete(ctx context.Context, competitionID, userID string) error
	Position(ctx context.Context, competitionID, userID string) (int, error)
	ResetStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

// SlotStore persists slot occupancy.  Claim must be a conditional write that
// only succeeds while the slot is free, and must return
// repository.ErrSlotHeld when the participant already occupies a slot.
type SlotStore interface {
	Ensure(ctx context.Context, competitionID string, capacity int) error
	Free(ctx context.Context, competitionID string) ([]int, error)
	HeldBy(ctx context.Context, competitionID, userID string) (int, error)
	Claim(ctx context.Context, competitionID string, number int, userID string) (bool, error)
	Release(ctx context.Context, competitionID string, number int, userID string) error
}

// EventStore records webhook deliveries.
type EventStore interface {
	Record(ctx context.Context, ev model.WebhookEvent) (processed bool, err error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// EntryPublisher announces participants that entered a competition.
type EntryPublisher interface {
	PublishEntered(ctx context.Context, p model.Participant) error
}
