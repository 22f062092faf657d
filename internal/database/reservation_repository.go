package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

const reservationColumns = `id, seat_id, schedule_id, seat_number, user_id, status, expires_at, created_at, updated_at`

// ListPendingReservations returns PENDING holds on the seats, including logically expired ones
func (r *pgReader) ListPendingReservations(ctx context.Context, seatIDs []uuid.UUID) ([]models.Reservation, error) {
	reservations := []models.Reservation{}
	if len(seatIDs) == 0 {
		return reservations, nil
	}
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE seat_id = ANY($1::uuid[]) AND status = 'PENDING'`
	if err := sqlx.SelectContext(ctx, r.q, &reservations, query, uuidArray(seatIDs)); err != nil {
		return nil, wrapErr(ctx, "list reservations", err)
	}
	return reservations, nil
}

// ListPendingReservationsBySchedule returns PENDING holds for a whole schedule
func (r *pgReader) ListPendingReservationsBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]models.Reservation, error) {
	reservations := []models.Reservation{}
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE schedule_id = $1 AND status = 'PENDING'`
	if err := sqlx.SelectContext(ctx, r.q, &reservations, query, scheduleID); err != nil {
		return nil, wrapErr(ctx, "list reservations", err)
	}
	return reservations, nil
}

// GetReservation retrieves a reservation by ID
func (r *pgReader) GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &reservation, query, id); err != nil {
		return nil, wrapErr(ctx, "get reservation", err)
	}
	return &reservation, nil
}

// CreateReservation inserts a PENDING hold. A second live hold on the seat violates
// reservations_pending_seat_idx.
func (q *pgQueries) CreateReservation(ctx context.Context, res *models.Reservation) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	query := `
		INSERT INTO reservations (id, seat_id, schedule_id, seat_number, user_id, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	err := q.q.QueryRowxContext(ctx, query,
		res.ID, res.SeatID, res.ScheduleID, res.SeatNumber, res.UserID, res.Status, res.ExpiresAt,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return wrapErr(ctx, "create reservation", err)
	}
	return nil
}

// ExtendReservation pushes the expiry of a still-PENDING hold
func (q *pgQueries) ExtendReservation(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE reservations
		SET expires_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`, id, expiresAt)
	return requireRows(ctx, "extend reservation", res, err, ErrConflict)
}

// TransitionReservation moves a hold from one status to another
func (q *pgQueries) TransitionReservation(ctx context.Context, id uuid.UUID, from, to models.ReservationStatus) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE reservations
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to)
	return requireRows(ctx, "update reservation", res, err, ErrConflict)
}

// ExpireReservations marks lapsed PENDING holds on the given seats as EXPIRED
func (q *pgQueries) ExpireReservations(ctx context.Context, seatIDs []uuid.UUID, now time.Time) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE reservations
		SET status = 'EXPIRED', updated_at = NOW()
		WHERE seat_id = ANY($1::uuid[]) AND status = 'PENDING' AND expires_at <= $2`,
		uuidArray(seatIDs), now)
	return affected(ctx, "expire reservations", res, err)
}

// ExpireStaleReservations marks every lapsed PENDING hold of a schedule as EXPIRED
func (q *pgQueries) ExpireStaleReservations(ctx context.Context, scheduleID uuid.UUID, now time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE reservations
		SET status = 'EXPIRED', updated_at = NOW()
		WHERE schedule_id = $1 AND status = 'PENDING' AND expires_at <= $2`, scheduleID, now)
	return affected(ctx, "expire reservations", res, err)
}

// ConfirmReservations converts the user's live holds on the seats into CONFIRMED
func (q *pgQueries) ConfirmReservations(ctx context.Context, seatIDs []uuid.UUID, userID uuid.UUID, now time.Time) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE reservations
		SET status = 'CONFIRMED', updated_at = NOW()
		WHERE seat_id = ANY($1::uuid[]) AND user_id = $2
		  AND status = 'PENDING' AND expires_at > $3`,
		uuidArray(seatIDs), userID, now)
	return affected(ctx, "confirm reservations", res, err)
}

// CancelPendingReservations drops any PENDING hold on a freed seat
func (q *pgQueries) CancelPendingReservations(ctx context.Context, seatID uuid.UUID) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE reservations
		SET status = 'CANCELLED', updated_at = NOW()
		WHERE seat_id = $1 AND status = 'PENDING'`, seatID)
	return affected(ctx, "cancel reservations", res, err)
}
