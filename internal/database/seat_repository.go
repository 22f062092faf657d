package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

const seatColumns = `id, schedule_id, seat_number, is_booked, updated_at`

// GetSchedule retrieves a schedule with its route and bus display fields
func (r *pgReader) GetSchedule(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	var schedule models.Schedule
	query := `
		SELECT id, route_id, route_name, bus_id, bus_number,
		       departure_at, fare, is_return_trip, created_at
		FROM schedules
		WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &schedule, query, id); err != nil {
		return nil, wrapErr(ctx, "get schedule", err)
	}
	return &schedule, nil
}

// GetSeat retrieves a seat by its schedule and seat number
func (r *pgReader) GetSeat(ctx context.Context, scheduleID uuid.UUID, seatNumber string) (*models.Seat, error) {
	var seat models.Seat
	query := `SELECT ` + seatColumns + ` FROM seats WHERE schedule_id = $1 AND seat_number = $2`
	if err := sqlx.GetContext(ctx, r.q, &seat, query, scheduleID, seatNumber); err != nil {
		return nil, wrapErr(ctx, "get seat", err)
	}
	return &seat, nil
}

// GetSeatByID retrieves a seat by ID
func (r *pgReader) GetSeatByID(ctx context.Context, id uuid.UUID) (*models.Seat, error) {
	var seat models.Seat
	query := `SELECT ` + seatColumns + ` FROM seats WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &seat, query, id); err != nil {
		return nil, wrapErr(ctx, "get seat", err)
	}
	return &seat, nil
}

// ListSeats returns every seat of a schedule ordered by seat number
func (r *pgReader) ListSeats(ctx context.Context, scheduleID uuid.UUID) ([]models.Seat, error) {
	seats := []models.Seat{}
	query := `SELECT ` + seatColumns + ` FROM seats WHERE schedule_id = $1 ORDER BY seat_number`
	if err := sqlx.SelectContext(ctx, r.q, &seats, query, scheduleID); err != nil {
		return nil, wrapErr(ctx, "list seats", err)
	}
	return seats, nil
}

// GetSeatsByNumbers returns the seats that exist among seatNumbers. Missing numbers are simply absent.
func (r *pgReader) GetSeatsByNumbers(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string) ([]models.Seat, error) {
	seats := []models.Seat{}
	if len(seatNumbers) == 0 {
		return seats, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+seatColumns+`
		FROM seats
		WHERE schedule_id = ? AND seat_number IN (?)
		ORDER BY seat_number`, scheduleID, seatNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to build seat query: %w", err)
	}
	query = r.q.Rebind(query)

	if err := sqlx.SelectContext(ctx, r.q, &seats, query, args...); err != nil {
		return nil, wrapErr(ctx, "get seats", err)
	}
	return seats, nil
}

// ============================================================================
// SEAT CLAIM OPERATIONS (transaction only)
// ============================================================================

// LockSeats re-reads seats with row locks taken in seat number order,
// so two overlapping requests always queue on the same first row.
func (q *pgQueries) LockSeats(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string) ([]models.Seat, error) {
	seats := []models.Seat{}
	if len(seatNumbers) == 0 {
		return seats, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+seatColumns+`
		FROM seats
		WHERE schedule_id = ? AND seat_number IN (?)
		ORDER BY seat_number
		FOR UPDATE`, scheduleID, seatNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to build lock query: %w", err)
	}
	query = q.q.Rebind(query)

	if err := sqlx.SelectContext(ctx, q.q, &seats, query, args...); err != nil {
		return nil, wrapErr(ctx, "lock seats", err)
	}
	return seats, nil
}

// MarkSeatBooked flips an available seat to booked
func (q *pgQueries) MarkSeatBooked(ctx context.Context, seatID uuid.UUID) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE seats
		SET is_booked = TRUE, updated_at = NOW()
		WHERE id = $1 AND is_booked = FALSE`, seatID)
	return requireRows(ctx, "mark seat booked", res, err, &ConstraintError{Constraint: ConstraintSeatFlip})
}

// MarkSeatAvailable flips a seat back to available
func (q *pgQueries) MarkSeatAvailable(ctx context.Context, seatID uuid.UUID) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE seats
		SET is_booked = FALSE, updated_at = NOW()
		WHERE id = $1`, seatID)
	return requireRows(ctx, "mark seat available", res, err, ErrNotFound)
}

// ReplaceSeats regenerates the seat map of a schedule that has never been booked
func (q *pgQueries) ReplaceSeats(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string) ([]models.Seat, error) {
	var bookings int
	if err := sqlx.GetContext(ctx, q.q, &bookings, `SELECT COUNT(*) FROM bookings WHERE schedule_id = $1`, scheduleID); err != nil {
		return nil, wrapErr(ctx, "count bookings", err)
	}
	if bookings > 0 {
		return nil, ErrScheduleHasBookings
	}

	if _, err := q.q.ExecContext(ctx, `DELETE FROM reservations WHERE schedule_id = $1`, scheduleID); err != nil {
		return nil, wrapErr(ctx, "delete reservations", err)
	}
	if _, err := q.q.ExecContext(ctx, `DELETE FROM seats WHERE schedule_id = $1`, scheduleID); err != nil {
		return nil, wrapErr(ctx, "delete seats", err)
	}

	seats := make([]models.Seat, 0, len(seatNumbers))
	for _, number := range seatNumbers {
		seat := models.Seat{ID: uuid.New(), ScheduleID: scheduleID, SeatNumber: number}
		err := q.q.QueryRowxContext(ctx, `
			INSERT INTO seats (id, schedule_id, seat_number, is_booked)
			VALUES ($1, $2, $3, FALSE)
			RETURNING updated_at`, seat.ID, seat.ScheduleID, seat.SeatNumber).Scan(&seat.UpdatedAt)
		if err != nil {
			return nil, wrapErr(ctx, "insert seat", err)
		}
		seats = append(seats, seat)
	}
	return seats, nil
}

// ResetSeats frees booked seats of a schedule. Unless all is set, seats that an
// active booking still references keep their flag.
func (q *pgQueries) ResetSeats(ctx context.Context, scheduleID uuid.UUID, all bool) (int64, error) {
	query := `
		UPDATE seats
		SET is_booked = FALSE, updated_at = NOW()
		WHERE schedule_id = $1 AND is_booked = TRUE`
	if !all {
		query += `
		  AND NOT EXISTS (
		      SELECT 1 FROM bookings b
		      WHERE b.seat_id = seats.id AND b.status <> 'CANCELLED'
		  )`
	}
	res, err := q.q.ExecContext(ctx, query, scheduleID)
	return affected(ctx, "reset seats", res, err)
}
