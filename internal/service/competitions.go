package service

import (
	"context"
	"fmt"
)

// Competitions is the set of competitions the server accepts, each with the
// same fixed slot capacity.
type Competitions struct {
	capacity int
	ids      map[string]struct{}
}

// NewCompetitions returns a registry for ids with capacity slots each.
func NewCompetitions(capacity int, ids ...string) Competitions {
	c := Competitions{capacity: capacity, ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		c.ids[id] = struct{}{}
	}
	return c
}

// Capacity returns the number of slots per competition.
func (c Competitions) Capacity() int { return c.capacity }

// Check returns ErrUnknownCompetition for ids that are not configured.
func (c Competitions) Check(id string) error {
	if _, ok := c.ids[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCompetition, id)
	}
	return nil
}

// Seed makes sure every configured competition has its slots 1..N.
func (c Competitions) Seed(ctx context.Context, slots SlotStore) error {
	for id := range c.ids {
		if err := slots.Ensure(ctx, id, c.capacity); err != nil {
			return fmt.Errorf("seed competition %q: %w", id, err)
		}
	}
	return nil
}
