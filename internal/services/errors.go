package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smarttransit/seat-booking-core/internal/database"
)

// ErrorKind classifies booking failures so callers branch on kind, not message
type ErrorKind string

const (
	KindNotFound              ErrorKind = "NOT_FOUND"
	KindSeatAlreadyBooked     ErrorKind = "SEAT_ALREADY_BOOKED"
	KindSeatReserved          ErrorKind = "SEAT_RESERVED"
	KindSeatNoLongerAvailable ErrorKind = "SEAT_NO_LONGER_AVAILABLE"
	KindForbidden             ErrorKind = "FORBIDDEN"
	KindSameDayCancellation   ErrorKind = "SAME_DAY_CANCELLATION_DENIED"
	KindTransactionTimeout    ErrorKind = "TRANSACTION_TIMEOUT"
	KindInvalidRequest        ErrorKind = "INVALID_REQUEST"
	KindInvalidState          ErrorKind = "INVALID_STATE"
	KindDuplicateRequest      ErrorKind = "DUPLICATE_REQUEST"
)

// Sentinels for errors.Is checks
var (
	ErrNotFound                  = &BookingError{Kind: KindNotFound}
	ErrSeatAlreadyBooked         = &BookingError{Kind: KindSeatAlreadyBooked}
	ErrSeatReserved              = &BookingError{Kind: KindSeatReserved}
	ErrSeatNoLongerAvailable     = &BookingError{Kind: KindSeatNoLongerAvailable}
	ErrForbidden                 = &BookingError{Kind: KindForbidden}
	ErrSameDayCancellationDenied = &BookingError{Kind: KindSameDayCancellation}
	ErrTransactionTimeout        = &BookingError{Kind: KindTransactionTimeout}
	ErrInvalidRequest            = &BookingError{Kind: KindInvalidRequest}
	ErrInvalidState              = &BookingError{Kind: KindInvalidState}
	ErrDuplicateRequest          = &BookingError{Kind: KindDuplicateRequest}
)

// BookingError is returned by every booking, reservation and cancellation operation
type BookingError struct {
	Kind    ErrorKind
	Message string
	Seats   []string // seat numbers involved, if any
	Err     error
}

func (e *BookingError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " "))
	}
	if len(e.Seats) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Seats, ", "))
	}
	return msg
}

func (e *BookingError) Unwrap() error { return e.Err }

// Is matches any BookingError of the same kind
func (e *BookingError) Is(target error) bool {
	t, ok := target.(*BookingError)
	return ok && t.Kind == e.Kind
}

// SeatUnavailable reports whether err is one of the seat-unavailable kinds
func SeatUnavailable(err error) bool {
	return errors.Is(err, ErrSeatAlreadyBooked) ||
		errors.Is(err, ErrSeatReserved) ||
		errors.Is(err, ErrSeatNoLongerAvailable)
}

func newError(kind ErrorKind, msg string, seats ...string) *BookingError {
	return &BookingError{Kind: kind, Message: msg, Seats: seats}
}

// fromStoreError maps store errors onto the booking taxonomy. Raw driver errors are wrapped, not exposed.
func fromStoreError(err error, op string) error {
	if err == nil {
		return nil
	}
	var be *BookingError
	if errors.As(err, &be) {
		return err
	}
	switch {
	case errors.Is(err, database.ErrNotFound):
		return &BookingError{Kind: KindNotFound, Message: op + ": not found", Err: err}
	case errors.Is(err, database.ErrTxTimeout):
		return &BookingError{Kind: KindTransactionTimeout, Message: op + ": transaction timed out", Err: err}
	case errors.Is(err, database.ErrConstraintViolation), errors.Is(err, database.ErrConflict):
		return &BookingError{Kind: KindSeatNoLongerAvailable, Message: "seat no longer available", Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
