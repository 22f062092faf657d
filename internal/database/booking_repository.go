package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

const bookingColumns = `
	id, order_id, user_id, schedule_id, seat_id, seat_number, status,
	passenger_name, passenger_phone, passenger_email, passenger_id_number,
	fare, cancellation_fee, refunded_amount, cancelled_at, cancelled_by,
	created_at, updated_at`

const orderColumns = `id, user_id, schedule_id, total_amount, idempotency_key, created_at, updated_at`

const paymentColumns = `id, order_id, booking_id, method, amount, currency, status, created_at, updated_at`

const ticketColumns = `id, order_id, ticket_number, qr_code, qr_payload, created_at, updated_at`

// ============================================================================
// READS
// ============================================================================

// ListActiveBookingsBySeats returns non-cancelled bookings holding any of the seats
func (r *pgReader) ListActiveBookingsBySeats(ctx context.Context, seatIDs []uuid.UUID) ([]models.Booking, error) {
	bookings := []models.Booking{}
	if len(seatIDs) == 0 {
		return bookings, nil
	}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE seat_id = ANY($1::uuid[]) AND status <> 'CANCELLED'`
	if err := sqlx.SelectContext(ctx, r.q, &bookings, query, uuidArray(seatIDs)); err != nil {
		return nil, wrapErr(ctx, "list bookings", err)
	}
	return bookings, nil
}

// GetBooking retrieves a booking by ID
func (r *pgReader) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &booking, query, id); err != nil {
		return nil, wrapErr(ctx, "get booking", err)
	}
	return &booking, nil
}

// ListBookingsByOrder returns every booking of an order ordered by seat number
func (r *pgReader) ListBookingsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE order_id = $1 ORDER BY seat_number`
	if err := sqlx.SelectContext(ctx, r.q, &bookings, query, orderID); err != nil {
		return nil, wrapErr(ctx, "list bookings", err)
	}
	return bookings, nil
}

// GetOrder retrieves an order by ID
func (r *pgReader) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &order, query, id); err != nil {
		return nil, wrapErr(ctx, "get order", err)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey finds an order previously created with the same key by the same user
func (r *pgReader) GetOrderByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	var order models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND idempotency_key = $2`
	if err := sqlx.GetContext(ctx, r.q, &order, query, userID, key); err != nil {
		return nil, wrapErr(ctx, "get order", err)
	}
	return &order, nil
}

// GetPaymentByOrder returns the payment covering an order
func (r *pgReader) GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at LIMIT 1`
	if err := sqlx.GetContext(ctx, r.q, &payment, query, orderID); err != nil {
		return nil, wrapErr(ctx, "get payment", err)
	}
	return &payment, nil
}

// GetTicketByOrder returns the ticket of an order
func (r *pgReader) GetTicketByOrder(ctx context.Context, orderID uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE order_id = $1`
	if err := sqlx.GetContext(ctx, r.q, &ticket, query, orderID); err != nil {
		return nil, wrapErr(ctx, "get ticket", err)
	}
	return &ticket, nil
}

// ============================================================================
// ORDER / BOOKING WRITES
// ============================================================================

// CreateOrder inserts an order. A reused idempotency key violates orders_user_idempotency_key.
func (q *pgQueries) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	query := `
		INSERT INTO orders (id, user_id, schedule_id, total_amount, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	err := q.q.QueryRowxContext(ctx, query, o.ID, o.UserID, o.ScheduleID, o.TotalAmount, o.IdempotencyKey).
		Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return wrapErr(ctx, "create order", err)
	}
	return nil
}

// UpdateOrderTotal sets the order total
func (q *pgQueries) UpdateOrderTotal(ctx context.Context, orderID uuid.UUID, total float64) error {
	res, err := q.q.ExecContext(ctx, `UPDATE orders SET total_amount = $2, updated_at = NOW() WHERE id = $1`, orderID, total)
	return requireRows(ctx, "update order total", res, err, ErrNotFound)
}

// DeleteOrder removes an order; its ticket and payments cascade
func (q *pgQueries) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	return requireRows(ctx, "delete order", res, err, ErrNotFound)
}

// CreateBookings bulk-inserts the bookings of one order in a single statement
func (q *pgQueries) CreateBookings(ctx context.Context, bookings []*models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	now := time.Now()
	for _, b := range bookings {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
			b.UpdatedAt = now
		}
	}
	query := `
		INSERT INTO bookings (
			id, order_id, user_id, schedule_id, seat_id, seat_number, status,
			passenger_name, passenger_phone, passenger_email, passenger_id_number,
			fare, created_at, updated_at
		) VALUES (
			:id, :order_id, :user_id, :schedule_id, :seat_id, :seat_number, :status,
			:passenger_name, :passenger_phone, :passenger_email, :passenger_id_number,
			:fare, :created_at, :updated_at
		)`
	if _, err := sqlx.NamedExecContext(ctx, q.q, query, bookings); err != nil {
		return wrapErr(ctx, "create bookings", err)
	}
	return nil
}

// CancelBooking records the cancellation of a still-BOOKED booking
func (q *pgQueries) CancelBooking(ctx context.Context, b *models.Booking) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'CANCELLED',
		    cancellation_fee = $2,
		    refunded_amount = $3,
		    cancelled_at = $4,
		    cancelled_by = $5,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'BOOKED'`,
		b.ID, b.CancellationFee, b.RefundedAmount, b.CancelledAt, b.CancelledBy)
	return requireRows(ctx, "cancel booking", res, err, ErrConflict)
}

// TransitionBooking moves a booking from one status to another
func (q *pgQueries) TransitionBooking(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE bookings
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to)
	return requireRows(ctx, "update booking status", res, err, ErrConflict)
}

// DeleteBooking removes a booking row
func (q *pgQueries) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	return requireRows(ctx, "delete booking", res, err, ErrNotFound)
}

// ============================================================================
// PAYMENT / TICKET WRITES
// ============================================================================

// CreatePayment inserts a payment for an order
func (q *pgQueries) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO payments (id, order_id, booking_id, method, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	err := q.q.QueryRowxContext(ctx, query, p.ID, p.OrderID, p.BookingID, p.Method, p.Amount, p.Currency, p.Status).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return wrapErr(ctx, "create payment", err)
	}
	return nil
}

// UpdatePaymentStatus sets the status of every payment of an order
func (q *pgQueries) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status models.PaymentStatus) (int64, error) {
	res, err := q.q.ExecContext(ctx, `UPDATE payments SET status = $2, updated_at = NOW() WHERE order_id = $1`, orderID, status)
	return affected(ctx, "update payment status", res, err)
}

// DeletePaymentsByBooking removes the payment rows linked to one booking
func (q *pgQueries) DeletePaymentsByBooking(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM payments WHERE booking_id = $1`, bookingID)
	return affected(ctx, "delete payments", res, err)
}

// CreateTicket inserts a ticket. A ticket number collision violates tickets_ticket_number_key.
func (q *pgQueries) CreateTicket(ctx context.Context, t *models.Ticket) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	query := `
		INSERT INTO tickets (id, order_id, ticket_number, qr_code, qr_payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	err := q.q.QueryRowxContext(ctx, query, t.ID, t.OrderID, t.TicketNumber, t.QRCode, t.QRPayload).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return wrapErr(ctx, "create ticket", err)
	}
	return nil
}

// UpdateTicketQR stores a freshly rendered QR code
func (q *pgQueries) UpdateTicketQR(ctx context.Context, ticketID uuid.UUID, qrCode, payload string) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE tickets
		SET qr_code = $2, qr_payload = $3, updated_at = NOW()
		WHERE id = $1`, ticketID, qrCode, payload)
	return requireRows(ctx, "update ticket", res, err, ErrNotFound)
}

// DeleteTicketByOrder removes the ticket of an order
func (q *pgQueries) DeleteTicketByOrder(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.q.ExecContext(ctx, `DELETE FROM tickets WHERE order_id = $1`, orderID)
	if err != nil {
		return wrapErr(ctx, "delete ticket", err)
	}
	return nil
}

// ============================================================================
// MAINTENANCE
// ============================================================================

// DeleteOrphanedBookings removes active bookings whose seat is not marked booked
func (q *pgQueries) DeleteOrphanedBookings(ctx context.Context, scheduleID uuid.UUID) (OrphanCleanup, error) {
	var result OrphanCleanup

	var orphans []struct {
		ID      uuid.UUID `db:"id"`
		OrderID uuid.UUID `db:"order_id"`
	}
	err := sqlx.SelectContext(ctx, q.q, &orphans, `
		SELECT b.id, b.order_id
		FROM bookings b
		JOIN seats s ON s.id = b.seat_id
		WHERE b.schedule_id = $1
		  AND b.status <> 'CANCELLED'
		  AND s.is_booked = FALSE
		FOR UPDATE OF b`, scheduleID)
	if err != nil {
		return result, wrapErr(ctx, "find orphaned bookings", err)
	}
	if len(orphans) == 0 {
		return result, nil
	}

	bookingIDs := make([]uuid.UUID, 0, len(orphans))
	orderSet := make(map[uuid.UUID]struct{})
	orderIDs := make([]uuid.UUID, 0, len(orphans))
	for _, o := range orphans {
		bookingIDs = append(bookingIDs, o.ID)
		if _, seen := orderSet[o.OrderID]; !seen {
			orderSet[o.OrderID] = struct{}{}
			orderIDs = append(orderIDs, o.OrderID)
		}
	}

	res, err := q.q.ExecContext(ctx, `DELETE FROM payments WHERE booking_id = ANY($1::uuid[])`, uuidArray(bookingIDs))
	if result.PaymentsDeleted, err = affected(ctx, "delete orphaned payments", res, err); err != nil {
		return result, err
	}

	res, err = q.q.ExecContext(ctx, `DELETE FROM bookings WHERE id = ANY($1::uuid[])`, uuidArray(bookingIDs))
	if result.BookingsDeleted, err = affected(ctx, "delete orphaned bookings", res, err); err != nil {
		return result, err
	}

	res, err = q.q.ExecContext(ctx, `
		DELETE FROM orders o
		WHERE o.id = ANY($1::uuid[])
		  AND NOT EXISTS (SELECT 1 FROM bookings b WHERE b.order_id = o.id)`, uuidArray(orderIDs))
	if result.OrdersDeleted, err = affected(ctx, "delete empty orders", res, err); err != nil {
		return result, err
	}

	return result, nil
}
