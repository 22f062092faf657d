package services

import (
	"context"
	"time"

	"github.com/smarttransit/seat-booking-core/internal/config"
)

// CancellationFeeRate is the flat penalty withheld from the fare of a cancelled seat
const CancellationFeeRate = 0.20

// BookingSettings are the booking rules shared by the seat, reservation, booking and cancellation services
type BookingSettings struct {
	TxTimeout          time.Duration
	ReservationTTL     time.Duration
	MaxSeatsPerRequest int
	Location           *time.Location
	Currency           string
}

// DefaultBookingSettings returns the production defaults
func DefaultBookingSettings() BookingSettings {
	loc, err := time.LoadLocation("Asia/Colombo")
	if err != nil {
		loc = time.UTC
	}
	return BookingSettings{
		TxTimeout:          10 * time.Second,
		ReservationTTL:     10 * time.Minute,
		MaxSeatsPerRequest: 10,
		Location:           loc,
		Currency:           "LKR",
	}
}

// NewBookingSettings builds settings from configuration
func NewBookingSettings(cfg config.BookingConfig) BookingSettings {
	return BookingSettings{
		TxTimeout:          cfg.TxTimeout,
		ReservationTTL:     cfg.ReservationTTL,
		MaxSeatsPerRequest: cfg.MaxSeatsPerRequest,
		Location:           cfg.Location(),
		Currency:           cfg.Currency,
	}
}

// txContext bounds a unit of work by TxTimeout
func (s BookingSettings) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.TxTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.TxTimeout)
}

func (s BookingSettings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}
