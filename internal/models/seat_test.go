package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestReservationIsBlocking(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	holder := uuid.New()

	tests := []struct {
		name      string
		status    ReservationStatus
		expiresAt time.Time
		want      bool
	}{
		{"live pending hold", ReservationStatusPending, now.Add(time.Minute), true},
		{"pending hold past expiry", ReservationStatusPending, now.Add(-time.Second), false},
		{"pending hold expiring now", ReservationStatusPending, now, false},
		{"confirmed hold", ReservationStatusConfirmed, now.Add(time.Minute), false},
		{"cancelled hold", ReservationStatusCancelled, now.Add(time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Reservation{UserID: holder, Status: tt.status, ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, r.IsBlocking(now))
			assert.False(t, r.BlocksUser(holder, now))
			assert.Equal(t, tt.want, r.BlocksUser(uuid.New(), now))
		})
	}
}

func TestSeatUnavailable(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	seat := Seat{ID: uuid.New(), SeatNumber: "1A"}
	otherSeat := uuid.New()

	live := Reservation{SeatID: seat.ID, Status: ReservationStatusPending, ExpiresAt: now.Add(time.Minute)}
	stale := Reservation{SeatID: seat.ID, Status: ReservationStatusPending, ExpiresAt: now.Add(-time.Minute)}
	elsewhere := Reservation{SeatID: otherSeat, Status: ReservationStatusPending, ExpiresAt: now.Add(time.Minute)}

	assert.False(t, seat.Unavailable(now, nil))
	assert.True(t, seat.Unavailable(now, []Reservation{live}))
	assert.False(t, seat.Unavailable(now, []Reservation{stale, elsewhere}))

	booked := seat
	booked.IsBooked = true
	assert.True(t, booked.Unavailable(now, nil))
}
