// Package repository implements the MySQL persistence of participants,
// slots and webhook events.  The sentinel values below are shared with the
// in-memory store so that services can match failures with errors.Is no
// matter which backend is wired in.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write matched no row because
// the state changed between read and write (for example the participant was
// entered by a concurrent delivery).
var ErrConflict = errors.New("conflict")

// ErrSlotHeld is returned by slot claims when the participant already
// occupies another slot of the same competition.
var ErrSlotHeld = errors.New("participant already holds a slot")

// isDeadlock reports whether err is MySQL error 1213 (ER_LOCK_DEADLOCK).
// InnoDB rolls the statement back, so it can be retried as is.
func isDeadlock(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1213
}

// isDuplicateKey reports whether err is MySQL error 1062 (ER_DUP_ENTRY).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
