package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatState is the effective availability of a seat as seen by a booker
type SeatState string

const (
	SeatStateAvailable SeatState = "AVAILABLE"
	SeatStateBooked    SeatState = "BOOKED"
	SeatStateHeld      SeatState = "HELD"
)

// Seat belongs to exactly one schedule; (schedule_id, seat_number) is unique.
// IsBooked is flipped only inside a booking or cancellation transaction.
type Seat struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ScheduleID uuid.UUID `json:"schedule_id" db:"schedule_id"`
	SeatNumber string    `json:"seat_number" db:"seat_number"`
	IsBooked   bool      `json:"is_booked" db:"is_booked"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Unavailable reports whether the seat is booked or held by a live reservation.
func (s *Seat) Unavailable(now time.Time, reservations []Reservation) bool {
	if s.IsBooked {
		return true
	}
	for i := range reservations {
		if reservations[i].SeatID == s.ID && reservations[i].IsBlocking(now) {
			return true
		}
	}
	return false
}

// SeatAvailability is the per-seat view returned to layout renderers
type SeatAvailability struct {
	SeatID        uuid.UUID  `json:"seat_id"`
	SeatNumber    string     `json:"seat_number"`
	State         SeatState  `json:"state"`
	HeldUntil     *time.Time `json:"held_until,omitempty"`
	HeldByCurrent bool       `json:"held_by_current_user,omitempty"`
}

// SeatAvailabilitySummary groups the seat view of a schedule
type SeatAvailabilitySummary struct {
	ScheduleID     uuid.UUID          `json:"schedule_id"`
	TotalSeats     int                `json:"total_seats"`
	AvailableSeats int                `json:"available_seats"`
	BookedSeats    int                `json:"booked_seats"`
	HeldSeats      int                `json:"held_seats"`
	Seats          []SeatAvailability `json:"seats"`
}
