package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/easel-entry/internal/model"
	"github.com/iliyamo/easel-entry/internal/repository"
	"github.com/iliyamo/easel-entry/internal/webhook"
)

// Outcome describes what processing a delivery did.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"   // event type has no effect
	OutcomeDuplicate Outcome = "duplicate" // participant was already entered
	OutcomeEntered   Outcome = "entered"   // participant entered with a new slot
)

// Result is the outcome of one delivery.  Participant is set for entered
// and duplicate outcomes when the participant could be loaded.
type Result struct {
	Outcome     Outcome
	Participant model.Participant
}

// EntryService applies verified payment events to participants.  Every
// step is safe to repeat, so a delivery that failed half way can simply be
// redelivered.
type EntryService struct {
	participants ParticipantStore
	allocator    *Allocator
	events       EventStore
	publisher    EntryPublisher
	competitions Competitions
	logger       *slog.Logger
	now          func() time.Time
}

// NewEntryService wires the entry pipeline.  publisher may be nil.
func NewEntryService(participants ParticipantStore, allocator *Allocator, events EventStore,
	publisher EntryPublisher, competitions Competitions, logger *slog.Logger) *EntryService {
	if participants == nil || allocator == nil || events == nil {
		panic("nil dependency passed to NewEntryService")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntryService{
		participants: participants,
		allocator:    allocator,
		events:       events,
		publisher:    publisher,
		competitions: competitions,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// HandleEvent processes one verified delivery.  raw is the body exactly as
// received and hdr its signature headers; both are kept for audit.
func (s *EntryService) HandleEvent(ctx context.Context, ev webhook.Event, raw []byte, hdr webhook.Headers) (Result, error) {
	processed, err := s.events.Record(ctx, model.WebhookEvent{
		EventID:    ev.ID,
		Type:       ev.Type,
		DeliveryID: hdr.ID,
		Timestamp:  hdr.Timestamp,
		Signature:  hdr.Signature,
		Body:       raw,
		ReceivedAt: s.now(),
	})
	if err != nil {
		return Result{}, err
	}

	if ev.Type != webhook.TypePaymentSucceeded {
		// the audit row is the only write for ignored types
		s.logger.InfoContext(ctx, "ignoring webhook event", "event_id", ev.ID, "type", ev.Type)
		s.markProcessed(ctx, ev.ID)
		return Result{Outcome: OutcomeIgnored}, nil
	}
	if processed {
		s.logger.InfoContext(ctx, "webhook event already processed", "event_id", ev.ID)
		return Result{Outcome: OutcomeDuplicate}, nil
	}

	competitionID, userID := ev.Meta(webhook.MetaCompetitionID), ev.Meta(webhook.MetaUserID)
	if competitionID == "" || userID == "" {
		return Result{}, ErrMissingMetadata
	}
	if err := s.competitions.Check(competitionID); err != nil {
		return Result{}, err
	}
	if checkoutID := ev.Meta(webhook.MetaCheckoutID); checkoutID != "" {
		ctx = withCheckout(ctx, checkoutID)
	}

	res, err := s.Confirm(ctx, competitionID, userID)
	if err != nil {
		return Result{}, err
	}
	s.markProcessed(ctx, ev.ID)

	if res.Outcome == OutcomeEntered && s.publisher != nil {
		if err := s.publisher.PublishEntered(ctx, res.Participant); err != nil {
			s.logger.WarnContext(ctx, "publish entry event failed", "error", err, "user_id", userID)
		}
	}
	return res, nil
}

// Confirm moves a paid participant to entered with a freshly allocated slot.
// A participant that is already entered is left alone and reported as a
// duplicate.  On any failure after the slot was claimed the slot is released
// again, so no partial state survives.
func (s *EntryService) Confirm(ctx context.Context, competitionID, userID string) (Result, error) {
	p, err := s.participants.Get(ctx, competitionID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.WarnContext(ctx, "payment for unknown participant",
			"competition", competitionID, "user_id", userID, "checkout_id", checkoutFrom(ctx))
		return Result{}, ErrParticipantNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("load participant: %w", err)
	}
	if p.Entered() {
		return Result{Outcome: OutcomeDuplicate, Participant: p}, nil
	}
	if !model.CanTransition(p.Status, model.StatusEntered) {
		return Result{}, fmt.Errorf("participant %q in status %q cannot enter", userID, p.Status)
	}
	if cid := checkoutFrom(ctx); cid != "" && p.CheckoutID != "" && cid != p.CheckoutID {
		s.logger.InfoContext(ctx, "payment for an earlier checkout",
			"user_id", userID, "checkout_id", cid, "pending_checkout_id", p.CheckoutID)
	}

	slot, err := s.allocator.Allocate(ctx, competitionID, userID)
	if err != nil {
		return Result{}, err
	}

	err = s.participants.MarkEntered(ctx, competitionID, userID, slot)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrConflict):
		cur, gerr := s.participants.Get(ctx, competitionID, userID)
		if gerr == nil && cur.Entered() {
			if cur.SlotNumber == nil || *cur.SlotNumber != slot {
				s.release(ctx, competitionID, userID, slot)
			}
			return Result{Outcome: OutcomeDuplicate, Participant: cur}, nil
		}
		s.release(ctx, competitionID, userID, slot)
		return Result{}, fmt.Errorf("mark participant entered: %w", err)
	case errors.Is(err, repository.ErrNotFound):
		s.release(ctx, competitionID, userID, slot)
		return Result{}, ErrParticipantNotFound
	default:
		s.release(ctx, competitionID, userID, slot)
		return Result{}, fmt.Errorf("mark participant entered: %w", err)
	}

	p, err = s.participants.Get(ctx, competitionID, userID)
	if err != nil {
		// the entered state is persisted; report it without the reload
		s.logger.WarnContext(ctx, "reload entered participant failed", "error", err)
		n := slot
		p.Status, p.SlotNumber, p.Paid = model.StatusEntered, &n, true
	}
	s.logger.InfoContext(ctx, "participant entered",
		"competition", competitionID, "user_id", userID, "slot", slot)
	return Result{Outcome: OutcomeEntered, Participant: p}, nil
}

func (s *EntryService) release(ctx context.Context, competitionID, userID string, slot int) {
	if err := s.allocator.slots.Release(ctx, competitionID, slot, userID); err != nil {
		s.logger.ErrorContext(ctx, "release slot failed",
			"competition", competitionID, "user_id", userID, "slot", slot, "error", err)
	}
}

func (s *EntryService) markProcessed(ctx context.Context, eventID string) {
	if err := s.events.MarkProcessed(ctx, eventID); err != nil {
		s.logger.WarnContext(ctx, "mark webhook event processed failed", "event_id", eventID, "error", err)
	}
}

type checkoutKey struct{}

func withCheckout(ctx context.Context, checkoutID string) context.Context {
	return context.WithValue(ctx, checkoutKey{}, checkoutID)
}

func checkoutFrom(ctx context.Context) string {
	v, _ := ctx.Value(checkoutKey{}).(string)
	return v
}
