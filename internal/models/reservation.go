package models

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus represents the status of a seat hold
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// Reservation is a soft, expiring hold on a seat for one user
type Reservation struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	SeatID     uuid.UUID         `json:"seat_id" db:"seat_id"`
	ScheduleID uuid.UUID         `json:"schedule_id" db:"schedule_id"`
	SeatNumber string            `json:"seat_number" db:"seat_number"`
	UserID     uuid.UUID         `json:"user_id" db:"user_id"`
	Status     ReservationStatus `json:"status" db:"status"`
	ExpiresAt  time.Time         `json:"expires_at" db:"expires_at"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}

// IsBlocking is the only test used to decide whether a hold prevents booking.
// A PENDING row whose expiry has passed never blocks.
func (r *Reservation) IsBlocking(now time.Time) bool {
	return r.Status == ReservationStatusPending && r.ExpiresAt.After(now)
}

// BlocksUser reports whether the hold blocks userID from booking the seat.
// A user's own live hold never blocks them.
func (r *Reservation) BlocksUser(userID uuid.UUID, now time.Time) bool {
	return r.IsBlocking(now) && r.UserID != userID
}
