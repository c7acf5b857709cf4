package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SlotRepo provides data access to the slots table:
//
//	slots(competition_id, number, participant_id NULL, claimed_at NULL)
//	PRIMARY KEY (competition_id, number)
//	UNIQUE KEY  (competition_id, participant_id)
//
// Claims are conditional updates guarded by the unique key, so two server
// instances racing on the same snapshot can never both occupy one slot.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a SlotRepo bound to the provided database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

// Ensure seeds rows 1..capacity for the competition.  Existing rows are
// kept, so calling it on every startup is safe.
func (r *SlotRepo) Ensure(ctx context.Context, competitionID string, capacity int) error {
	if capacity <= 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT IGNORE INTO slots (competition_id, number) VALUES `)
	args := make([]interface{}, 0, capacity*2)
	for n := 1; n <= capacity; n++ {
		if n > 1 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?)")
		args = append(args, competitionID, n)
	}
	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("seed slots: %w", err)
	}
	return nil
}

// Free returns the numbers of unoccupied slots in ascending order.
func (r *SlotRepo) Free(ctx context.Context, competitionID string) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT number FROM slots WHERE competition_id = ? AND participant_id IS NULL ORDER BY number`,
		competitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	free := []int{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		free = append(free, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return free, nil
}

// HeldBy returns the slot number occupied by the participant or
// ErrNotFound.
func (r *SlotRepo) HeldBy(ctx context.Context, competitionID, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT number FROM slots WHERE competition_id = ? AND participant_id = ? LIMIT 1`,
		competitionID, userID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return n, err
}

const claimAttempts = 3

// Claim assigns slot number to userID if and only if it is still free.  It
// reports false when another participant got there first and ErrSlotHeld
// when userID already occupies a different slot.
func (r *SlotRepo) Claim(ctx context.Context, competitionID string, number int, userID string) (bool, error) {
	var (
		res sql.Result
		err error
	)
	for attempt := 0; attempt < claimAttempts; attempt++ {
		res, err = r.db.ExecContext(ctx,
			`UPDATE slots SET participant_id = ?, claimed_at = ?
			  WHERE competition_id = ? AND number = ? AND participant_id IS NULL`,
			userID, time.Now().UTC(), competitionID, number)
		if !isDeadlock(err) {
			break
		}
	}
	if err != nil {
		if isDuplicateKey(err) {
			return false, ErrSlotHeld
		}
		return false, fmt.Errorf("claim slot %d: %w", number, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release frees slot number if userID still occupies it.  Releasing a slot
// the participant does not hold is a no-op.
func (r *SlotRepo) Release(ctx context.Context, competitionID string, number int, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE slots SET participant_id = NULL, claimed_at = NULL
		  WHERE competition_id = ? AND number = ? AND participant_id = ?`,
		competitionID, number, userID)
	if err != nil {
		return fmt.Errorf("release slot %d: %w", number, err)
	}
	return nil
}
