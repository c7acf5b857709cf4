// Package memory is an in-process implementation of the participant, slot
// and webhook event stores.  It mirrors the MySQL repositories' semantics,
// including the conditional slot claim and the one-slot-per-participant
// unique key, and is used by tests and by STORE_DRIVER=memory for local
// development.  It is not shared across server instances.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/easel-entry/internal/model"
	"github.com/iliyamo/easel-entry/internal/repository"
)

type participantKey struct{ competition, user string }

// Participants stores participants keyed by competition and user.
type Participants struct {
	mu   sync.Mutex
	rows map[participantKey]model.Participant
	seqs map[participantKey]int64 // join order, like joined_seq
	next int64
	now  func() time.Time
}

// NewParticipants returns an empty participant store.
func NewParticipants() *Participants {
	return &Participants{
		rows: map[participantKey]model.Participant{},
		seqs: map[participantKey]int64{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a copy of the participant or repository.ErrNotFound.
func (s *Participants) Get(_ context.Context, competitionID, userID string) (model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[participantKey{competitionID, userID}]
	if !ok {
		return model.Participant{}, repository.ErrNotFound
	}
	return clone(p), nil
}

// Join creates a waiting participant unless one exists.
func (s *Participants) Join(_ context.Context, p model.Participant) (model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey{p.CompetitionID, p.UserID}
	if cur, ok := s.rows[key]; ok {
		return clone(cur), nil
	}
	now := s.now()
	row := model.Participant{
		CompetitionID: p.CompetitionID,
		UserID:        p.UserID,
		DisplayName:   p.DisplayName,
		AvatarURL:     p.AvatarURL,
		Status:        model.StatusWaiting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.rows[key] = row
	s.assignSeq(key)
	return clone(row), nil
}

// MarkPending creates or moves the participant into pending with the given
// checkout id.  Entered participants are left untouched.
func (s *Participants) MarkPending(_ context.Context, p model.Participant, checkoutID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey{p.CompetitionID, p.UserID}
	now := s.now()
	cur, ok := s.rows[key]
	if ok && cur.Entered() {
		return repository.ErrConflict
	}
	if !ok {
		cur = model.Participant{CompetitionID: p.CompetitionID, UserID: p.UserID, CreatedAt: now}
		s.assignSeq(key)
	}
	cur.DisplayName = p.DisplayName
	cur.AvatarURL = p.AvatarURL
	cur.Status = model.StatusPending
	cur.CheckoutID = checkoutID
	cur.UpdatedAt = now
	s.rows[key] = cur
	return nil
}

// MarkEntered moves a non-entered participant to entered with slot.
func (s *Participants) MarkEntered(_ context.Context, competitionID, userID string, slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey{competitionID, userID}
	cur, ok := s.rows[key]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Entered() {
		return repository.ErrConflict
	}
	for k, other := range s.rows {
		if k.competition == competitionID && other.SlotNumber != nil && *other.SlotNumber == slot {
			return repository.ErrConflict
		}
	}
	n := slot
	cur.Status = model.StatusEntered
	cur.SlotNumber = &n
	cur.Paid = true
	cur.CheckoutID = ""
	cur.UpdatedAt = s.now()
	s.rows[key] = cur
	return nil
}

// Delete removes the participant.
func (s *Participants) Delete(_ context.Context, competitionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey{competitionID, userID}
	if _, ok := s.rows[key]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, key)
	delete(s.seqs, key)
	return nil
}

// Position returns the 1-based place of a non-entered participant among the
// competition's non-entered participants in join order.  Entered
// participants get 0.
func (s *Participants) Position(_ context.Context, competitionID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey{competitionID, userID}
	me, ok := s.rows[key]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if me.Entered() {
		return 0, nil
	}
	pos := 0
	for k, p := range s.rows {
		if k.competition == competitionID && !p.Entered() && s.seqs[k] <= s.seqs[key] {
			pos++
		}
	}
	return pos, nil
}

func (s *Participants) assignSeq(key participantKey) {
	s.next++
	s.seqs[key] = s.next
}

// ResetStalePending moves pending participants last updated before cutoff
// back to waiting.
func (s *Participants) ResetStalePending(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, p := range s.rows {
		if p.Status == model.StatusPending && p.UpdatedAt.Before(cutoff) {
			p.Status = model.StatusWaiting
			p.CheckoutID = ""
			p.UpdatedAt = s.now()
			s.rows[k] = p
			n++
		}
	}
	return n, nil
}

func clone(p model.Participant) model.Participant {
	if p.SlotNumber != nil {
		n := *p.SlotNumber
		p.SlotNumber = &n
	}
	return p
}

// Slots stores the easel slots of every competition.
type Slots struct {
	mu    sync.Mutex
	slots map[string]map[int]model.Slot
}

// NewSlots returns an empty slot store.  Call Ensure to seed capacity.
func NewSlots() *Slots {
	return &Slots{slots: map[string]map[int]model.Slot{}}
}

// Ensure seeds slots 1..capacity, keeping existing ones.
func (s *Slots) Ensure(_ context.Context, competitionID string, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.slots[competitionID]
	if !ok {
		set = map[int]model.Slot{}
		s.slots[competitionID] = set
	}
	for n := 1; n <= capacity; n++ {
		if _, ok := set[n]; !ok {
			set[n] = model.Slot{CompetitionID: competitionID, Number: n}
		}
	}
	return nil
}

// Free returns unoccupied slot numbers in ascending order.
func (s *Slots) Free(_ context.Context, competitionID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	free := []int{}
	for n, slot := range s.slots[competitionID] {
		if slot.Free() {
			free = append(free, n)
		}
	}
	sort.Ints(free)
	return free, nil
}

// HeldBy returns the slot occupied by userID or repository.ErrNotFound.
func (s *Slots) HeldBy(_ context.Context, competitionID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n, slot := range s.slots[competitionID] {
		if slot.ParticipantID == userID {
			return n, nil
		}
	}
	return 0, repository.ErrNotFound
}

// Claim occupies slot number for userID if it is still free.
func (s *Slots) Claim(_ context.Context, competitionID string, number int, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.slots[competitionID]
	slot, ok := set[number]
	if !ok || !slot.Free() {
		return false, nil
	}
	for _, other := range set {
		if other.ParticipantID == userID {
			return false, repository.ErrSlotHeld
		}
	}
	now := time.Now().UTC()
	slot.ParticipantID = userID
	slot.ClaimedAt = &now
	set[number] = slot
	return true, nil
}

// Release frees slot number if userID occupies it.
func (s *Slots) Release(_ context.Context, competitionID string, number int, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.slots[competitionID]
	if slot, ok := set[number]; ok && slot.ParticipantID == userID {
		set[number] = model.Slot{CompetitionID: competitionID, Number: number}
	}
	return nil
}

// Events stores webhook events by provider event id.
type Events struct {
	mu     sync.Mutex
	events map[string]model.WebhookEvent
}

// NewEvents returns an empty event store.
func NewEvents() *Events {
	return &Events{events: map[string]model.WebhookEvent{}}
}

// Record stores ev unless it exists and reports whether it was processed.
func (s *Events) Record(_ context.Context, ev model.WebhookEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.events[ev.EventID]; ok {
		return cur.ProcessedAt != nil, nil
	}
	ev.ProcessedAt = nil
	s.events[ev.EventID] = ev
	return false, nil
}

// MarkProcessed stamps the event as processed.
func (s *Events) MarkProcessed(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok || ev.ProcessedAt != nil {
		return nil
	}
	now := time.Now().UTC()
	ev.ProcessedAt = &now
	s.events[eventID] = ev
	return nil
}

// Get returns the stored event with eventID.
func (s *Events) Get(eventID string) (model.WebhookEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	return ev, ok
}

// Len returns the number of recorded events.
func (s *Events) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
