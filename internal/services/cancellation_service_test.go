package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/events"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancellationFee(t *testing.T) {
	tests := []struct {
		fare   float64
		fee    float64
		refund float64
	}{
		{fare: 1000, fee: 200, refund: 800},
		{fare: 1250.50, fee: 250.10, refund: 1000.40},
		{fare: 333.33, fee: 66.67, refund: 266.66},
		{fare: 0, fee: 0, refund: 0},
	}

	for _, tt := range tests {
		fee, refund := CancellationFee(tt.fare)
		assert.Equal(t, tt.fee, fee, "fee for %.2f", tt.fare)
		assert.Equal(t, tt.refund, refund, "refund for %.2f", tt.fare)
	}
}

func TestCancelBooking(t *testing.T) {
	t.Run("applies the flat fee and frees the seat", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		details := env.book(t, env.customer, "1A", "1B")

		cancelled, err := env.cancellations.CancelBooking(ctx, details.Bookings[0].ID, actorOf(env.customer))
		require.NoError(t, err)

		assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancellationFee)
		require.NotNil(t, cancelled.RefundedAmount)
		assert.Equal(t, 200.0, *cancelled.CancellationFee)
		assert.Equal(t, 800.0, *cancelled.RefundedAmount)
		assert.Equal(t, env.customer.ID, *cancelled.CancelledBy)

		stored, err := env.store.GetBooking(ctx, cancelled.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, stored.Status)
		assert.Equal(t, 800.0, *stored.RefundedAmount)

		assert.False(t, env.seat(t, "1A").IsBooked)
		assert.True(t, env.seat(t, "1B").IsBooked, "other seats of the order are untouched")

		require.Len(t, env.notifier.cancellations, 1)
		assert.Equal(t, "1A", env.notifier.cancellations[0].SeatNumber)
		assert.Equal(t, 800.0, env.notifier.cancellations[0].RefundedAmount)
	})

	t.Run("drops holds on the freed seat", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		details := env.book(t, env.customer, "1A")

		stale := &models.Reservation{
			SeatID:     env.seats["1A"].ID,
			ScheduleID: env.schedule.ID,
			SeatNumber: "1A",
			UserID:     env.other.ID,
			Status:     models.ReservationStatusPending,
			ExpiresAt:  env.clock.Now().Add(time.Hour),
		}
		require.NoError(t, env.store.WithTx(ctx, func(q database.Queries) error {
			return q.CreateReservation(ctx, stale)
		}))

		_, err := env.cancellations.CancelBooking(ctx, details.Bookings[0].ID, actorOf(env.customer))
		require.NoError(t, err)

		stored, err := env.store.GetReservation(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReservationStatusCancelled, stored.Status)
	})

	t.Run("staff may cancel for the owner", func(t *testing.T) {
		env := newTestEnv(t)
		details := env.book(t, env.customer, "1A")

		_, err := env.cancellations.CancelBooking(context.Background(), details.Bookings[0].ID, env.admin)
		require.NoError(t, err)
	})

	t.Run("other customers are forbidden", func(t *testing.T) {
		env := newTestEnv(t)
		details := env.book(t, env.customer, "1A")

		_, err := env.cancellations.CancelBooking(context.Background(), details.Bookings[0].ID, actorOf(env.other))
		assert.ErrorIs(t, err, ErrForbidden)
		assert.True(t, env.seat(t, "1A").IsBooked)
	})

	t.Run("unknown booking", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.cancellations.CancelBooking(context.Background(), uuid.New(), env.admin)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("terminal bookings are rejected", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		details := env.book(t, env.customer, "1A", "1B")

		_, err := env.cancellations.CancelBooking(ctx, details.Bookings[0].ID, actorOf(env.customer))
		require.NoError(t, err)
		_, err = env.cancellations.CancelBooking(ctx, details.Bookings[0].ID, actorOf(env.customer))
		assert.ErrorIs(t, err, ErrInvalidState)

		_, err = env.cancellations.CompleteBooking(ctx, details.Bookings[1].ID, env.admin)
		require.NoError(t, err)
		_, err = env.cancellations.CancelBooking(ctx, details.Bookings[1].ID, actorOf(env.customer))
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestCancelBooking_SameDay(t *testing.T) {
	t.Run("denied on the travel date for every role", func(t *testing.T) {
		env := newTestEnv(t)
		details := env.book(t, env.customer, "1A")

		// 23:00 on the travel date, after departure
		env.clock.Set(time.Date(2025, 3, 15, 23, 0, 0, 0, colombo))

		_, err := env.cancellations.CancelBooking(context.Background(), details.Bookings[0].ID, actorOf(env.customer))
		assert.ErrorIs(t, err, ErrSameDayCancellationDenied)

		_, err = env.cancellations.CancelBooking(context.Background(), details.Bookings[0].ID, env.admin)
		assert.ErrorIs(t, err, ErrSameDayCancellationDenied)
		assert.True(t, env.seat(t, "1A").IsBooked)
	})

	t.Run("compares calendar dates in the configured timezone", func(t *testing.T) {
		env := newTestEnv(t)
		details := env.book(t, env.customer, "1A", "1B")

		// late on the 14th is still the day before travel
		env.clock.Set(time.Date(2025, 3, 14, 23, 30, 0, 0, colombo))
		_, err := env.cancellations.CancelBooking(context.Background(), details.Bookings[0].ID, actorOf(env.customer))
		require.NoError(t, err)

		// 00:30 on the 15th in Colombo is still the 14th in UTC
		env.clock.Set(time.Date(2025, 3, 15, 0, 30, 0, 0, colombo))
		_, err = env.cancellations.CancelBooking(context.Background(), details.Bookings[1].ID, actorOf(env.customer))
		assert.ErrorIs(t, err, ErrSameDayCancellationDenied)
	})

	t.Run("admin override cancels and refunds the payment", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		details, err := env.coordinator.BookSeatsForUser(ctx, AdminBookSeatsRequest{
			ScheduleID:  env.schedule.ID,
			SeatNumbers: []string{"1A"},
			Phone:       "0771234567",
			Actor:       env.admin,
		})
		require.NoError(t, err)

		env.clock.Set(time.Date(2025, 3, 15, 6, 0, 0, 0, colombo))

		cancelled, err := env.cancellations.AdminCancelBooking(ctx, details.Bookings[0].ID, env.admin)
		require.NoError(t, err)
		assert.Equal(t, 200.0, *cancelled.CancellationFee)
		assert.False(t, env.seat(t, "1A").IsBooked)

		payment, err := env.store.GetPaymentByOrder(ctx, details.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusRefunded, payment.Status)
		assert.Equal(t, []string{events.PaymentCompleted, events.PaymentRefunded}, env.publisher.types())
	})

	t.Run("admin override requires a privileged role", func(t *testing.T) {
		env := newTestEnv(t)
		details := env.book(t, env.customer, "1A")

		_, err := env.cancellations.AdminCancelBooking(context.Background(), details.Bookings[0].ID, actorOf(env.customer))
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestCompleteBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	details := env.book(t, env.customer, "1A")

	_, err := env.cancellations.CompleteBooking(ctx, details.Bookings[0].ID, actorOf(env.customer))
	assert.ErrorIs(t, err, ErrForbidden)

	completed, err := env.cancellations.CompleteBooking(ctx, details.Bookings[0].ID, env.admin)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, completed.Status)
	assert.True(t, env.seat(t, "1A").IsBooked, "a completed booking keeps its seat")

	_, err = env.cancellations.CompleteBooking(ctx, details.Bookings[0].ID, env.admin)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRemoveSeatFromBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	details, err := env.coordinator.BookSeatsForUser(ctx, AdminBookSeatsRequest{
		ScheduleID:  env.schedule.ID,
		SeatNumbers: []string{"1A", "1B"},
		Phone:       "0771234567",
		Actor:       env.admin,
	})
	require.NoError(t, err)
	first, second := details.Bookings[0], details.Bookings[1]
	require.Equal(t, first.ID, details.Payment.BookingID)

	t.Run("forbidden for customers", func(t *testing.T) {
		_, err := env.cancellations.RemoveSeatFromBooking(ctx, first.ID, actorOf(env.customer))
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("shrinks the order and re-renders the ticket", func(t *testing.T) {
		result, err := env.cancellations.RemoveSeatFromBooking(ctx, first.ID, env.admin)
		require.NoError(t, err)
		assert.False(t, result.OrderDeleted)
		require.NotNil(t, result.Order)

		assert.Equal(t, 1000.0, result.Order.Order.TotalAmount)
		assert.Equal(t, []string{"1B"}, result.Order.SeatNumbers())
		assert.Nil(t, result.Order.Payment, "the payment row is linked to the removed booking")
		assert.False(t, env.seat(t, "1A").IsBooked)
		assert.True(t, env.seat(t, "1B").IsBooked)

		var payload TicketPayload
		require.NoError(t, json.Unmarshal([]byte(result.Order.Ticket.QRPayload), &payload))
		assert.Equal(t, []string{"1B"}, payload.Seats)
		assert.Equal(t, details.Ticket.TicketNumber, payload.TicketNumber)

		assert.Contains(t, env.publisher.types(), events.PaymentDeleted)
	})

	t.Run("last seat removes order and ticket", func(t *testing.T) {
		result, err := env.cancellations.RemoveSeatFromBooking(ctx, second.ID, env.admin)
		require.NoError(t, err)
		assert.True(t, result.OrderDeleted)
		assert.Nil(t, result.Order)

		_, err = env.store.GetOrder(ctx, details.Order.ID)
		assert.Error(t, err)
		_, err = env.store.GetTicketByOrder(ctx, details.Order.ID)
		assert.Error(t, err)
		assert.False(t, env.seat(t, "1B").IsBooked)
	})

	t.Run("unknown booking", func(t *testing.T) {
		_, err := env.cancellations.RemoveSeatFromBooking(ctx, first.ID, env.admin)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRemoveSeatFromBooking_CancelledSeatStaysWithNewOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	original := env.book(t, env.customer, "1A", "1B")
	_, err := env.cancellations.CancelBooking(ctx, original.Bookings[0].ID, actorOf(env.customer))
	require.NoError(t, err)
	env.book(t, env.other, "1A")

	_, err = env.cancellations.RemoveSeatFromBooking(ctx, original.Bookings[0].ID, env.admin)
	require.NoError(t, err)
	assert.True(t, env.seat(t, "1A").IsBooked, "removing a cancelled booking must not free a rebooked seat")
}

func TestCleanupOrphanedBookings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	orphan := env.book(t, env.customer, "1A")
	healthy := env.book(t, env.other, "1B")
	require.NoError(t, env.store.OverrideSeatState(env.seats["1A"].ID, false))

	_, err := env.reservations.CreateReservation(ctx, env.schedule.ID, "1C", env.customer.ID, time.Minute)
	require.NoError(t, err)
	env.clock.Advance(2 * time.Minute)

	_, err = env.cancellations.CleanupOrphanedBookings(ctx, env.schedule.ID, actorOf(env.customer))
	assert.ErrorIs(t, err, ErrForbidden)

	result, err := env.cancellations.CleanupOrphanedBookings(ctx, env.schedule.ID, env.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.BookingsDeleted)
	assert.Equal(t, int64(1), result.OrdersDeleted)
	assert.Equal(t, int64(1), result.ReservationsExpired)

	_, err = env.store.GetOrder(ctx, orphan.Order.ID)
	assert.Error(t, err)
	_, err = env.store.GetOrder(ctx, healthy.Order.ID)
	assert.NoError(t, err)

	// the freed seat is bookable again
	env.book(t, env.other, "1A")
}

func TestResetSeatStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.book(t, env.customer, "1A")
	require.NoError(t, env.store.OverrideSeatState(env.seats["1C"].ID, true))

	n, err := env.cancellations.ResetSeatStatus(ctx, env.schedule.ID, ResetOptions{}, env.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, env.seat(t, "1C").IsBooked)
	assert.True(t, env.seat(t, "1A").IsBooked, "seats with an active booking are kept by default")

	n, err = env.cancellations.ResetSeatStatus(ctx, env.schedule.ID, ResetOptions{All: true}, env.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, env.seat(t, "1A").IsBooked)

	_, err = env.cancellations.ResetSeatStatus(ctx, uuid.New(), ResetOptions{}, env.admin)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.cancellations.ResetSeatStatus(ctx, env.schedule.ID, ResetOptions{}, actorOf(env.other))
	assert.ErrorIs(t, err, ErrForbidden)
}
