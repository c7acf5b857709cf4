package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iliyamo/easel-entry/internal/metrics"
	"github.com/iliyamo/easel-entry/internal/repository"
)

// Allocator assigns the lowest free easel slot to a participant.  It holds
// no locks: exclusivity comes from the store's conditional Claim, so any
// number of server instances may allocate concurrently.
type Allocator struct {
	slots  SlotStore
	logger *slog.Logger
}

// NewAllocator returns an Allocator backed by slots.
func NewAllocator(slots SlotStore, logger *slog.Logger) *Allocator {
	if slots == nil {
		panic("nil slot store passed to NewAllocator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{slots: slots, logger: logger}
}

// Allocate returns the slot exclusively held by userID in the competition.
// A participant that already holds a slot gets it back unchanged.  Otherwise
// the free slots are tried lowest first; a claim that loses a race moves on
// to the next candidate.  ErrCapacityExceeded is returned once every
// candidate is taken.
func (a *Allocator) Allocate(ctx context.Context, competitionID, userID string) (int, error) {
	if n, err := a.slots.HeldBy(ctx, competitionID, userID); err == nil {
		return n, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return 0, fmt.Errorf("look up held slot: %w", err)
	}

	free, err := a.slots.Free(ctx, competitionID)
	if err != nil {
		return 0, fmt.Errorf("read free slots: %w", err)
	}

	conflicts := 0
	for _, n := range free {
		ok, err := a.slots.Claim(ctx, competitionID, n, userID)
		if errors.Is(err, repository.ErrSlotHeld) {
			// a concurrent delivery for the same participant won
			held, herr := a.slots.HeldBy(ctx, competitionID, userID)
			if herr != nil {
				return 0, fmt.Errorf("look up held slot: %w", herr)
			}
			return held, nil
		}
		if err != nil {
			return 0, err
		}
		if ok {
			metrics.SlotAllocated(competitionID, conflicts)
			a.logger.InfoContext(ctx, "slot claimed",
				"competition", competitionID, "user_id", userID, "slot", n, "conflicts", conflicts)
			return n, nil
		}
		conflicts++
	}

	metrics.CapacityExceeded(competitionID)
	a.logger.WarnContext(ctx, "no free slot",
		"competition", competitionID, "user_id", userID, "conflicts", conflicts)
	return 0, ErrCapacityExceeded
}

// Release frees the slot held by userID, if any.
func (a *Allocator) Release(ctx context.Context, competitionID, userID string) error {
	n, err := a.slots.HeldBy(ctx, competitionID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up held slot: %w", err)
	}
	return a.slots.Release(ctx, competitionID, n, userID)
}

// HasFreeSlot reports whether at least one slot is currently free.
func (a *Allocator) HasFreeSlot(ctx context.Context, competitionID string) (bool, error) {
	free, err := a.slots.Free(ctx, competitionID)
	if err != nil {
		return false, err
	}
	return len(free) > 0, nil
}
