// Package repository holds the MySQL implementations of the stores used
// by the service layer.  Errors that callers need to tell apart are
// exposed as sentinel values; everything else is wrapped with the failing
// operation and passed up as-is.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource owned by someone else.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write is rejected because of existing
// state, such as a second active schedule for the same weekday.
var ErrConflict = errors.New("conflict")

// ErrSlotTaken is returned when an insert collides with the unique index
// over (doctor, date, time) of non-cancelled appointments.
var ErrSlotTaken = errors.New("slot already booked")

// ErrEmailExists is returned when registering an email that is in use.
var ErrEmailExists = errors.New("email already exists")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a MySQL duplicate-key violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
