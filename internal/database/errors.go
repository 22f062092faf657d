package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrConstraintViolation is returned when a unique or conditional write is rejected
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrConflict is returned on serialization failures and deadlocks
	ErrConflict = errors.New("concurrent update conflict")
	// ErrTxTimeout is returned when a unit of work exceeds its deadline
	ErrTxTimeout = errors.New("transaction timed out")
	// ErrScheduleHasBookings blocks seat regeneration once bookings exist
	ErrScheduleHasBookings = errors.New("schedule has bookings")
)

// Constraint names referenced by callers
const (
	ConstraintSeatNumber         = "seats_schedule_id_seat_number_key"
	ConstraintActiveBookingSeat  = "bookings_active_seat_idx"
	ConstraintPendingReservation = "reservations_pending_seat_idx"
	ConstraintTicketNumber       = "tickets_ticket_number_key"
	ConstraintOrderIdempotency   = "orders_user_idempotency_key"
	ConstraintUserPhone          = "users_phone_key"
	ConstraintSeatFlip           = "seat_is_booked"
)

// ConstraintError names the constraint that rejected a write
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("constraint %s violated: %v", e.Constraint, e.Err)
	}
	return fmt.Sprintf("constraint %s violated", e.Constraint)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConstraintViolation) match any ConstraintError
func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraintViolation
}

// IsConstraint reports whether err is a violation of the named constraint
func IsConstraint(err error, name string) bool {
	var ce *ConstraintError
	return errors.As(err, &ce) && ce.Constraint == name
}

// PostgreSQL error codes that map onto the store taxonomy
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqQueryCanceled        = "57014"
)

// translateError maps driver errors onto store errors. Unknown errors pass through.
func translateError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return fmt.Errorf("%w: %v", ErrTxTimeout, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return &ConstraintError{Constraint: pqErr.Constraint, Err: err}
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case pqLockNotAvailable, pqQueryCanceled:
			return fmt.Errorf("%w: %v", ErrTxTimeout, err)
		}
	}
	return err
}
