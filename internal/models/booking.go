package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle of one seat claim
type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// PaymentStatus represents the settlement state of an order payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Order groups the bookings of one purchase and owns exactly one ticket
type Order struct {
	ID             uuid.UUID `json:"id" db:"id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	ScheduleID     uuid.UUID `json:"schedule_id" db:"schedule_id"`
	TotalAmount    float64   `json:"total_amount" db:"total_amount"`
	IdempotencyKey *string   `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Passenger is the snapshot stored on each booking
type Passenger struct {
	Name     string  `json:"name" db:"passenger_name" binding:"required"`
	Phone    string  `json:"phone" db:"passenger_phone" binding:"required"`
	Email    *string `json:"email,omitempty" db:"passenger_email"`
	IDNumber *string `json:"id_number,omitempty" db:"passenger_id_number"`
}

// Booking is one seat claim for one passenger within an order
type Booking struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	OrderID    uuid.UUID     `json:"order_id" db:"order_id"`
	UserID     uuid.UUID     `json:"user_id" db:"user_id"`
	ScheduleID uuid.UUID     `json:"schedule_id" db:"schedule_id"`
	SeatID     uuid.UUID     `json:"seat_id" db:"seat_id"`
	SeatNumber string        `json:"seat_number" db:"seat_number"`
	Status     BookingStatus `json:"status" db:"status"`
	Passenger
	Fare            float64    `json:"fare" db:"fare"`
	CancellationFee *float64   `json:"cancellation_fee,omitempty" db:"cancellation_fee"`
	RefundedAmount  *float64   `json:"refunded_amount,omitempty" db:"refunded_amount"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy     *uuid.UUID `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the booking still claims its seat
func (b *Booking) IsActive() bool {
	return b.Status != BookingStatusCancelled
}

// Payment covers an order; it is linked to the order's first booking
type Payment struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	OrderID   uuid.UUID     `json:"order_id" db:"order_id"`
	BookingID uuid.UUID     `json:"booking_id" db:"booking_id"`
	Method    string        `json:"method" db:"method"`
	Amount    float64       `json:"amount" db:"amount"`
	Currency  string        `json:"currency" db:"currency"`
	Status    PaymentStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// Ticket is one-to-one with an order
type Ticket struct {
	ID           uuid.UUID `json:"id" db:"id"`
	OrderID      uuid.UUID `json:"order_id" db:"order_id"`
	TicketNumber string    `json:"ticket_number" db:"ticket_number"`
	QRCode       string    `json:"qr_code" db:"qr_code"`
	QRPayload    string    `json:"-" db:"qr_payload"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// OrderDetails is the committed aggregate returned by a successful booking
type OrderDetails struct {
	Order    Order     `json:"order"`
	Schedule Schedule  `json:"schedule"`
	Bookings []Booking `json:"bookings"`
	Payment  *Payment  `json:"payment,omitempty"`
	Ticket   Ticket    `json:"ticket"`
}

// SeatNumbers lists the seat numbers of the order in booking order
func (d *OrderDetails) SeatNumbers() []string {
	seats := make([]string, 0, len(d.Bookings))
	for _, b := range d.Bookings {
		seats = append(seats, b.SeatNumber)
	}
	return seats
}
