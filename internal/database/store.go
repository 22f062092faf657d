package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// Reader exposes the reads used by pre-validation and views. No isolation is implied.
type Reader interface {
	GetSchedule(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	GetSeat(ctx context.Context, scheduleID uuid.UUID, seatNumber string) (*models.Seat, error)
	GetSeatByID(ctx context.Context, id uuid.UUID) (*models.Seat, error)
	ListSeats(ctx context.Context, scheduleID uuid.UUID) ([]models.Seat, error)
	GetSeatsByNumbers(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string) ([]models.Seat, error)

	// ListPendingReservations returns PENDING holds on the given seats, expired or not.
	// Callers decide blocking with Reservation.IsBlocking.
	ListPendingReservations(ctx context.Context, seatIDs []uuid.UUID) ([]models.Reservation, error)
	ListPendingReservationsBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]models.Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)

	ListActiveBookingsBySeats(ctx context.Context, seatIDs []uuid.UUID) ([]models.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListBookingsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Booking, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error)
	GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	GetTicketByOrder(ctx context.Context, orderID uuid.UUID) (*models.Ticket, error)

	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
}

// Queries is the handle passed into a unit of work. Seat flips are only reachable here.
type Queries interface {
	Reader

	// LockSeats re-reads the seats inside the transaction, locking them in seat number order
	LockSeats(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string) ([]models.Seat, error)
	// MarkSeatBooked flips an available seat. A seat that is already booked yields a ConstraintError.
	MarkSeatBooked(ctx context.Context, seatID uuid.UUID) error
	MarkSeatAvailable(ctx context.Context, seatID uuid.UUID) error
	// ReplaceSeats regenerates the seat map; ErrScheduleHasBookings if any booking exists
	ReplaceSeats(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string) ([]models.Seat, error)

	CreateReservation(ctx context.Context, r *models.Reservation) error
	ExtendReservation(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	// TransitionReservation changes status only if the row is still in from
	TransitionReservation(ctx context.Context, id uuid.UUID, from, to models.ReservationStatus) error
	ExpireReservations(ctx context.Context, seatIDs []uuid.UUID, now time.Time) (int64, error)
	ExpireStaleReservations(ctx context.Context, scheduleID uuid.UUID, now time.Time) (int64, error)
	ConfirmReservations(ctx context.Context, seatIDs []uuid.UUID, userID uuid.UUID, now time.Time) (int64, error)
	CancelPendingReservations(ctx context.Context, seatID uuid.UUID) (int64, error)

	CreateOrder(ctx context.Context, o *models.Order) error
	UpdateOrderTotal(ctx context.Context, orderID uuid.UUID, total float64) error
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	CreateBookings(ctx context.Context, bookings []*models.Booking) error
	// CancelBooking moves a BOOKED row to CANCELLED; ErrConflict if it is no longer BOOKED
	CancelBooking(ctx context.Context, b *models.Booking) error
	// TransitionBooking changes status only if the row is still in from
	TransitionBooking(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) error
	DeleteBooking(ctx context.Context, id uuid.UUID) error
	CreatePayment(ctx context.Context, p *models.Payment) error
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status models.PaymentStatus) (int64, error)
	DeletePaymentsByBooking(ctx context.Context, bookingID uuid.UUID) (int64, error)
	CreateTicket(ctx context.Context, t *models.Ticket) error
	UpdateTicketQR(ctx context.Context, ticketID uuid.UUID, qrCode, payload string) error
	DeleteTicketByOrder(ctx context.Context, orderID uuid.UUID) error

	CreateUser(ctx context.Context, u *models.User) error

	// DeleteOrphanedBookings removes active bookings whose seat is not booked,
	// together with their payments and any order left empty.
	DeleteOrphanedBookings(ctx context.Context, scheduleID uuid.UUID) (OrphanCleanup, error)
	// ResetSeats frees booked seats of the schedule. Unless all is set, seats
	// with an active booking are left alone.
	ResetSeats(ctx context.Context, scheduleID uuid.UUID, all bool) (int64, error)
}

// OrphanCleanup reports what DeleteOrphanedBookings removed
type OrphanCleanup struct {
	BookingsDeleted int64 `json:"bookings_deleted"`
	PaymentsDeleted int64 `json:"payments_deleted"`
	OrdersDeleted   int64 `json:"orders_deleted"`
}

// Store owns the connection and runs units of work
type Store interface {
	Reader

	// WithTx runs fn in one transaction. A non-nil error from fn rolls everything back.
	WithTx(ctx context.Context, fn func(q Queries) error) error

	InsertAuditLog(ctx context.Context, entry *models.AuditLog) error
	Ping(ctx context.Context) error
	Close() error
}
