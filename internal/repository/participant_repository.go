package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/easel-entry/internal/model"
)

// ParticipantRepo provides data access to the participants table:
//
//	participants(competition_id, user_id, display_name, avatar_url, status,
//	             checkout_id NULL, slot_number NULL, paid, created_at, updated_at,
//	             joined_seq AUTO_INCREMENT)
//	PRIMARY KEY (competition_id, user_id)
//	UNIQUE KEY  (competition_id, slot_number)
//	UNIQUE KEY  (joined_seq)
//
// All timestamps are UTC.
type ParticipantRepo struct {
	db *sql.DB
}

// NewParticipantRepo returns a ParticipantRepo bound to the provided database.
func NewParticipantRepo(db *sql.DB) *ParticipantRepo { return &ParticipantRepo{db: db} }

const participantColumns = `competition_id, user_id, display_name, avatar_url, status,
	checkout_id, slot_number, paid, created_at, updated_at`

// Get returns the participant or ErrNotFound.
func (r *ParticipantRepo) Get(ctx context.Context, competitionID, userID string) (model.Participant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE competition_id = ? AND user_id = ? LIMIT 1`,
		competitionID, userID)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Participant{}, ErrNotFound
	}
	return p, err
}

// Join inserts a waiting participant.  An existing participant keeps its
// state; only a missing row is created.  The stored row is returned.
func (r *ParticipantRepo) Join(ctx context.Context, p model.Participant) (model.Participant, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO participants (competition_id, user_id, display_name, avatar_url, status, paid)
		 VALUES (?, ?, ?, ?, 'waiting', 0)`,
		p.CompetitionID, p.UserID, p.DisplayName, p.AvatarURL)
	if err != nil {
		return model.Participant{}, fmt.Errorf("insert participant: %w", err)
	}
	return r.Get(ctx, p.CompetitionID, p.UserID)
}

// MarkPending records a freshly created checkout.  A missing participant is
// created in pending; an existing non-entered participant moves to pending
// with the new checkout id.  Entered participants are left untouched and
// ErrConflict is returned.
//
// ON DUPLICATE KEY UPDATE assignments run left to right, so checkout_id is
// assigned before status changes.
func (r *ParticipantRepo) MarkPending(ctx context.Context, p model.Participant, checkoutID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (competition_id, user_id, display_name, avatar_url, status, checkout_id, paid)
		 VALUES (?, ?, ?, ?, 'pending', ?, 0)
		 ON DUPLICATE KEY UPDATE
		   checkout_id  = IF(status = 'entered', checkout_id, VALUES(checkout_id)),
		   display_name = IF(status = 'entered', display_name, VALUES(display_name)),
		   avatar_url   = IF(status = 'entered', avatar_url, VALUES(avatar_url)),
		   updated_at   = IF(status = 'entered', updated_at, UTC_TIMESTAMP()),
		   status       = IF(status = 'entered', status, 'pending')`,
		p.CompetitionID, p.UserID, p.DisplayName, p.AvatarURL, checkoutID)
	if err != nil {
		return fmt.Errorf("upsert pending participant: %w", err)
	}
	cur, err := r.Get(ctx, p.CompetitionID, p.UserID)
	if err != nil {
		return err
	}
	if cur.Entered() {
		return ErrConflict
	}
	return nil
}

// MarkEntered moves a non-entered participant to entered with the given
// slot in a single conditional UPDATE.  ErrNotFound is returned when the
// participant does not exist and ErrConflict when it was entered
// concurrently or the slot number is already taken by someone else.
func (r *ParticipantRepo) MarkEntered(ctx context.Context, competitionID, userID string, slot int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE participants
		    SET status = 'entered', slot_number = ?, paid = 1, checkout_id = NULL, updated_at = UTC_TIMESTAMP()
		  WHERE competition_id = ? AND user_id = ? AND status <> 'entered'`,
		slot, competitionID, userID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return fmt.Errorf("mark participant entered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, competitionID, userID); err != nil {
		return err
	}
	return ErrConflict
}

// Delete removes the participant row.  ErrNotFound is returned when no row
// matched.
func (r *ParticipantRepo) Delete(ctx context.Context, competitionID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM participants WHERE competition_id = ? AND user_id = ?`, competitionID, userID)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Position returns the 1-based place of a non-entered participant among the
// competition's non-entered participants, ordered by joined_seq.  Entered
// participants get 0.
func (r *ParticipantRepo) Position(ctx context.Context, competitionID, userID string) (int, error) {
	var (
		status string
		seq    int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT status, joined_seq FROM participants WHERE competition_id = ? AND user_id = ? LIMIT 1`,
		competitionID, userID).Scan(&status, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load participant order: %w", err)
	}
	if model.Status(status) == model.StatusEntered {
		return 0, nil
	}
	var pos int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants
		  WHERE competition_id = ? AND status <> 'entered' AND joined_seq <= ?`,
		competitionID, seq).Scan(&pos); err != nil {
		return 0, fmt.Errorf("count participants ahead: %w", err)
	}
	return pos, nil
}

// ResetStalePending returns pending participants last updated before cutoff
// to waiting and clears their checkout id.  It returns the number of rows
// reset.
func (r *ParticipantRepo) ResetStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE participants SET status = 'waiting', checkout_id = NULL, updated_at = UTC_TIMESTAMP()
		  WHERE status = 'pending' AND updated_at < ?`,
		cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("reset stale pending: %w", err)
	}
	return res.RowsAffected()
}

func scanParticipant(row *sql.Row) (model.Participant, error) {
	var (
		p        model.Participant
		status   string
		avatar   sql.NullString
		checkout sql.NullString
		slot     sql.NullInt64
	)
	if err := row.Scan(&p.CompetitionID, &p.UserID, &p.DisplayName, &avatar, &status,
		&checkout, &slot, &p.Paid, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Participant{}, err
	}
	p.Status = model.Status(status)
	p.AvatarURL = avatar.String
	p.CheckoutID = checkout.String
	if slot.Valid {
		n := int(slot.Int64)
		p.SlotNumber = &n
	}
	return p, nil
}
