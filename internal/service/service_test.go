package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/easel-entry/internal/model"
	"github.com/iliyamo/easel-entry/internal/payment"
	"github.com/iliyamo/easel-entry/internal/store/memory"
	"github.com/iliyamo/easel-entry/internal/webhook"
)

const testCompetition = "spring"

type recordingPublisher struct {
	mu      sync.Mutex
	entered []model.Participant
}

func (p *recordingPublisher) PublishEntered(_ context.Context, participant model.Participant) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entered = append(p.entered, participant)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entered)
}

type fakeProvider struct {
	mu    sync.Mutex
	calls []payment.CheckoutRequest
	err   error
}

func (f *fakeProvider) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (payment.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return payment.Checkout{}, f.err
	}
	return payment.Checkout{
		ID:          "ch_" + req.Metadata[webhook.MetaUserID],
		RedirectURL: "https://pay.example/ch_" + req.Metadata[webhook.MetaUserID],
		Status:      "created",
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	}, nil
}

type harness struct {
	participants *memory.Participants
	slots        *memory.Slots
	events       *memory.Events
	publisher    *recordingPublisher
	provider     *fakeProvider
	comps        Competitions
	alloc        *Allocator
	logger       *slog.Logger
	entry        *EntryService
	checkout     *CheckoutService
	waitlist     *WaitlistService
}

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		participants: memory.NewParticipants(),
		slots:        memory.NewSlots(),
		events:       memory.NewEvents(),
		publisher:    &recordingPublisher{},
		provider:     &fakeProvider{},
	}
	comps := NewCompetitions(capacity, testCompetition)
	require.NoError(t, comps.Seed(context.Background(), h.slots))

	alloc := NewAllocator(h.slots, logger)
	h.comps, h.alloc, h.logger = comps, alloc, logger
	h.entry = NewEntryService(h.participants, alloc, h.events, h.publisher, comps, logger)
	h.checkout = NewCheckoutService(h.participants, alloc, h.provider, comps, CheckoutOptions{
		EntryFeeCents: 5000,
		Currency:      "ZAR",
		AppURL:        "https://easel.example",
	}, logger)
	h.waitlist = NewWaitlistService(h.participants, alloc, comps, logger)
	return h
}

// pay joins userID and starts a checkout, leaving the participant pending.
func (h *harness) pay(t *testing.T, userID string) {
	t.Helper()
	who := Identity{UserID: userID, DisplayName: "Artist " + userID}
	_, err := h.waitlist.Join(context.Background(), testCompetition, who)
	require.NoError(t, err)
	_, err = h.checkout.Create(context.Background(), testCompetition, who, nil)
	require.NoError(t, err)
}

func paidEvent(eventID, userID string) webhook.Event {
	return webhook.Event{
		ID:   eventID,
		Type: webhook.TypePaymentSucceeded,
		Payload: webhook.Payment{
			ID:          "p_" + eventID,
			Type:        "payment",
			Status:      "succeeded",
			AmountCents: 5000,
			Currency:    "ZAR",
			Metadata: map[string]string{
				webhook.MetaUserID:        userID,
				webhook.MetaCompetitionID: testCompetition,
				webhook.MetaCheckoutID:    "ch_" + userID,
			},
		},
	}
}

func (h *harness) deliver(t *testing.T, ev webhook.Event) (Result, error) {
	t.Helper()
	return h.entry.HandleEvent(context.Background(), ev, []byte(`{}`), webhook.Headers{
		ID:        "msg_" + ev.ID,
		Timestamp: "1772359200",
		Signature: "v1,c2lnbmF0dXJl",
	})
}

func (h *harness) participant(t *testing.T, userID string) model.Participant {
	t.Helper()
	p, err := h.participants.Get(context.Background(), testCompetition, userID)
	require.NoError(t, err)
	return p
}

func (h *harness) free(t *testing.T) []int {
	t.Helper()
	free, err := h.slots.Free(context.Background(), testCompetition)
	require.NoError(t, err)
	return free
}
