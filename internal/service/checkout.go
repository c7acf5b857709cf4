package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iliyamo/easel-entry/internal/metrics"
	"github.com/iliyamo/easel-entry/internal/model"
	"github.com/iliyamo/easel-entry/internal/payment"
	"github.com/iliyamo/easel-entry/internal/repository"
	"github.com/iliyamo/easel-entry/internal/webhook"
)

// CheckoutCreator creates provider checkouts.  *payment.Client implements it.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (payment.Checkout, error)
}

// Identity is the authenticated caller as asserted by the identity provider.
type Identity struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// CheckoutOptions holds the fixed parameters of every checkout.
type CheckoutOptions struct {
	EntryFeeCents int64  // amount used when the caller sends none
	Currency      string // ISO currency code
	AppURL        string // base of the success, cancel and failure URLs
}

// CheckoutService starts payment for a participant.
type CheckoutService struct {
	participants ParticipantStore
	allocator    *Allocator
	provider     CheckoutCreator
	competitions Competitions
	opts         CheckoutOptions
	logger       *slog.Logger
}

// NewCheckoutService wires the checkout flow.
func NewCheckoutService(participants ParticipantStore, allocator *Allocator, provider CheckoutCreator,
	competitions Competitions, opts CheckoutOptions, logger *slog.Logger) *CheckoutService {
	if participants == nil || allocator == nil || provider == nil {
		panic("nil dependency passed to NewCheckoutService")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{
		participants: participants,
		allocator:    allocator,
		provider:     provider,
		competitions: competitions,
		opts:         opts,
		logger:       logger,
	}
}

// Create asks the provider for a checkout session and records the caller as
// pending with the returned checkout id.  amount is in minor units; nil
// selects the configured entry fee.  Nothing is persisted when the provider
// call fails.  A slot is only assigned later, by the payment webhook.
func (s *CheckoutService) Create(ctx context.Context, competitionID string, who Identity, amount *int64) (model.CheckoutSession, error) {
	cents := s.opts.EntryFeeCents
	if amount != nil {
		cents = *amount
	}
	if cents <= 0 {
		metrics.CheckoutResult("invalid")
		return model.CheckoutSession{}, ErrInvalidAmount
	}
	if err := s.competitions.Check(competitionID); err != nil {
		return model.CheckoutSession{}, err
	}

	p, err := s.participants.Get(ctx, competitionID, who.UserID)
	switch {
	case err == nil && p.Entered():
		metrics.CheckoutResult("already_entered")
		return model.CheckoutSession{}, ErrAlreadyEntered
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return model.CheckoutSession{}, fmt.Errorf("load participant: %w", err)
	}

	free, err := s.allocator.HasFreeSlot(ctx, competitionID)
	if err != nil {
		return model.CheckoutSession{}, fmt.Errorf("check capacity: %w", err)
	}
	if !free {
		metrics.CheckoutResult("full")
		return model.CheckoutSession{}, ErrCapacityExceeded
	}

	meta := map[string]string{
		webhook.MetaUserID:        who.UserID,
		webhook.MetaCompetitionID: competitionID,
		webhook.MetaName:          who.DisplayName,
	}
	if who.AvatarURL != "" {
		meta[webhook.MetaAvatar] = who.AvatarURL
	}
	co, err := s.provider.CreateCheckout(ctx, payment.CheckoutRequest{
		AmountCents: cents,
		Currency:    s.opts.Currency,
		SuccessURL:  s.opts.AppURL + "/stage?payment=success",
		CancelURL:   s.opts.AppURL + "/stage?payment=cancel",
		FailureURL:  s.opts.AppURL + "/stage?payment=failure",
		Metadata:    meta,
	})
	if err != nil {
		metrics.CheckoutResult("upstream_error")
		s.logger.ErrorContext(ctx, "create checkout failed",
			"competition", competitionID, "user_id", who.UserID, "error", err)
		if errors.Is(err, payment.ErrUpstream) {
			return model.CheckoutSession{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return model.CheckoutSession{}, err
	}

	err = s.participants.MarkPending(ctx, model.Participant{
		CompetitionID: competitionID,
		UserID:        who.UserID,
		DisplayName:   who.DisplayName,
		AvatarURL:     who.AvatarURL,
	}, co.ID)
	if errors.Is(err, repository.ErrConflict) {
		// the payment webhook for an earlier checkout landed meanwhile
		metrics.CheckoutResult("already_entered")
		return model.CheckoutSession{}, ErrAlreadyEntered
	}
	if err != nil {
		return model.CheckoutSession{}, fmt.Errorf("mark participant pending: %w", err)
	}

	metrics.CheckoutResult("created")
	s.logger.InfoContext(ctx, "checkout created",
		"competition", competitionID, "user_id", who.UserID, "checkout_id", co.ID, "amount", cents)

	currency := co.Currency
	if currency == "" {
		currency = s.opts.Currency
	}
	amountOut := co.AmountCents
	if amountOut == 0 {
		amountOut = cents
	}
	return model.CheckoutSession{
		ID:            co.ID,
		RedirectURL:   co.RedirectURL,
		Status:        co.Status,
		AmountCents:   amountOut,
		Currency:      currency,
		CompetitionID: competitionID,
		UserID:        who.UserID,
		Metadata:      meta,
	}, nil
}
