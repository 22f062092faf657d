// Package notify delivers ticket and cancellation notices to passengers.
// Delivery is best-effort: callers log failures and never roll back a booking because of them.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message types carried in the queue envelope
const (
	TypeTicketIssued     = "ticket.issued"
	TypeBookingCancelled = "booking.cancelled"
)

// TicketNotification is sent once a booking transaction has committed
type TicketNotification struct {
	OrderID       uuid.UUID `json:"order_id"`
	TicketNumber  string    `json:"ticket_number"`
	PassengerName string    `json:"passenger_name"`
	Phone         string    `json:"phone"`
	Email         *string   `json:"email,omitempty"`
	RouteName     string    `json:"route_name"`
	BusNumber     string    `json:"bus_number"`
	DepartureAt   time.Time `json:"departure_at"`
	Seats         []string  `json:"seats"`
	TotalAmount   float64   `json:"total_amount"`
	Currency      string    `json:"currency"`
	QRCode        string    `json:"qr_code,omitempty"`
}

// CancellationNotification is sent after a booking is cancelled
type CancellationNotification struct {
	BookingID       uuid.UUID `json:"booking_id"`
	OrderID         uuid.UUID `json:"order_id"`
	PassengerName   string    `json:"passenger_name"`
	Phone           string    `json:"phone"`
	Email           *string   `json:"email,omitempty"`
	RouteName       string    `json:"route_name"`
	DepartureAt     time.Time `json:"departure_at"`
	SeatNumber      string    `json:"seat_number"`
	CancellationFee float64   `json:"cancellation_fee"`
	RefundedAmount  float64   `json:"refunded_amount"`
	Currency        string    `json:"currency"`
}

// Dispatcher sends passenger notifications
type Dispatcher interface {
	SendTicket(ctx context.Context, n TicketNotification) error
	SendCancellation(ctx context.Context, n CancellationNotification) error
}

// Multi fans a notification out to every dispatcher. All are attempted; errors are joined.
type Multi []Dispatcher

func (m Multi) SendTicket(ctx context.Context, n TicketNotification) error {
	var errs []error
	for _, d := range m {
		if err := d.SendTicket(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) SendCancellation(ctx context.Context, n CancellationNotification) error {
	var errs []error
	for _, d := range m {
		if err := d.SendCancellation(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
