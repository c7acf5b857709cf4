package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/easel-entry/internal/model"
	"github.com/iliyamo/easel-entry/internal/repository"
)

// WaitlistService manages the participant lifecycle outside of payment:
// joining, leaving, reading one's own status and expiring stale checkouts.
type WaitlistService struct {
	participants ParticipantStore
	allocator    *Allocator
	competitions Competitions
	logger       *slog.Logger
}

// NewWaitlistService returns a WaitlistService.
func NewWaitlistService(participants ParticipantStore, allocator *Allocator, competitions Competitions, logger *slog.Logger) *WaitlistService {
	if participants == nil || allocator == nil {
		panic("nil dependency passed to NewWaitlistService")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WaitlistService{participants: participants, allocator: allocator, competitions: competitions, logger: logger}
}

// Join adds the caller as a waiting participant.  Joining twice returns the
// existing participant unchanged, whatever its status.
func (s *WaitlistService) Join(ctx context.Context, competitionID string, who Identity) (model.Participant, error) {
	if err := s.competitions.Check(competitionID); err != nil {
		return model.Participant{}, err
	}
	p, err := s.participants.Join(ctx, model.Participant{
		CompetitionID: competitionID,
		UserID:        who.UserID,
		DisplayName:   who.DisplayName,
		AvatarURL:     who.AvatarURL,
	})
	if err != nil {
		return model.Participant{}, fmt.Errorf("join: %w", err)
	}
	s.logger.InfoContext(ctx, "participant joined", "competition", competitionID, "user_id", who.UserID, "status", p.Status)
	return p, nil
}

// Leave removes the caller from the competition.  An entered participant's
// slot is released first so it becomes the lowest free candidate again.
func (s *WaitlistService) Leave(ctx context.Context, competitionID, userID string) error {
	if err := s.competitions.Check(competitionID); err != nil {
		return err
	}
	if err := s.allocator.Release(ctx, competitionID, userID); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	err := s.participants.Delete(ctx, competitionID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrParticipantNotFound
	}
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	s.logger.InfoContext(ctx, "participant left", "competition", competitionID, "user_id", userID)
	return nil
}

// Status returns the caller's participant record.  Waiting and pending
// participants carry their place in the queue.
func (s *WaitlistService) Status(ctx context.Context, competitionID, userID string) (model.Participant, error) {
	if err := s.competitions.Check(competitionID); err != nil {
		return model.Participant{}, err
	}
	p, err := s.participants.Get(ctx, competitionID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Participant{}, ErrParticipantNotFound
	}
	if err != nil {
		return model.Participant{}, fmt.Errorf("load participant: %w", err)
	}
	if !p.Entered() {
		pos, err := s.participants.Position(ctx, competitionID, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return model.Participant{}, fmt.Errorf("load queue position: %w", err)
		}
		p.Position = pos
	}
	return p, nil
}

// ExpirePending returns participants whose checkout has been pending for
// longer than ttl to waiting.  A late payment for such a checkout still
// enters the participant.
func (s *WaitlistService) ExpirePending(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := s.participants.ResetStalePending(ctx, time.Now().UTC().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("reset stale pending: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired pending checkouts", "count", n)
	}
	return n, nil
}
