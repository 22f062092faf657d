package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// SeatService exposes the seat map of a schedule and its effective availability
type SeatService struct {
	store    database.Store
	audit    *AuditService
	settings BookingSettings
	logger   *logrus.Logger
	now      func() time.Time
}

// NewSeatService creates a new seat service
func NewSeatService(store database.Store, audit *AuditService, settings BookingSettings, logger *logrus.Logger) *SeatService {
	return &SeatService{
		store:    store,
		audit:    audit,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// GetSeat returns one seat by its number
func (s *SeatService) GetSeat(ctx context.Context, scheduleID uuid.UUID, seatNumber string) (*models.Seat, error) {
	seat, err := s.store.GetSeat(ctx, scheduleID, seatNumber)
	if err != nil {
		return nil, fromStoreError(err, "get seat")
	}
	return seat, nil
}

// ListSeats returns the seats of a schedule ordered by seat number
func (s *SeatService) ListSeats(ctx context.Context, scheduleID uuid.UUID) ([]models.Seat, error) {
	if _, err := s.store.GetSchedule(ctx, scheduleID); err != nil {
		return nil, fromStoreError(err, "get schedule")
	}
	seats, err := s.store.ListSeats(ctx, scheduleID)
	if err != nil {
		return nil, fromStoreError(err, "list seats")
	}
	return seats, nil
}

// GetAvailability computes AVAILABLE/BOOKED/HELD for every seat of the schedule.
// viewer marks holds that belong to the requesting user; pass uuid.Nil for anonymous views.
func (s *SeatService) GetAvailability(ctx context.Context, scheduleID, viewer uuid.UUID) (*models.SeatAvailabilitySummary, error) {
	seats, err := s.ListSeats(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.store.ListPendingReservationsBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, fromStoreError(err, "list reservations")
	}

	now := s.now()
	holds := make(map[uuid.UUID]models.Reservation, len(reservations))
	for _, r := range reservations {
		if r.IsBlocking(now) {
			holds[r.SeatID] = r
		}
	}

	summary := &models.SeatAvailabilitySummary{
		ScheduleID: scheduleID,
		TotalSeats: len(seats),
		Seats:      make([]models.SeatAvailability, 0, len(seats)),
	}
	for _, seat := range seats {
		view := models.SeatAvailability{SeatID: seat.ID, SeatNumber: seat.SeatNumber, State: models.SeatStateAvailable}
		switch {
		case seat.IsBooked:
			view.State = models.SeatStateBooked
			summary.BookedSeats++
		case seat.Unavailable(now, reservations):
			hold := holds[seat.ID]
			expiresAt := hold.ExpiresAt
			view.State = models.SeatStateHeld
			view.HeldUntil = &expiresAt
			view.HeldByCurrent = viewer != uuid.Nil && hold.UserID == viewer
			summary.HeldSeats++
		default:
			summary.AvailableSeats++
		}
		summary.Seats = append(summary.Seats, view)
	}
	return summary, nil
}

// RegenerateSeats replaces the seat map of a schedule. Refused once the schedule has bookings.
func (s *SeatService) RegenerateSeats(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string, actor models.Actor) ([]models.Seat, error) {
	if !actor.IsPrivileged() {
		return nil, newError(KindForbidden, "only staff can change the seat map")
	}
	numbers, err := normalizeSeatNumbers(seatNumbers, 0)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetSchedule(ctx, scheduleID); err != nil {
		return nil, fromStoreError(err, "get schedule")
	}

	txCtx, cancel := s.settings.txContext(ctx)
	defer cancel()

	var seats []models.Seat
	err = s.store.WithTx(txCtx, func(q database.Queries) error {
		var err error
		seats, err = q.ReplaceSeats(txCtx, scheduleID, numbers)
		return err
	})
	if errors.Is(err, database.ErrScheduleHasBookings) {
		return nil, &BookingError{Kind: KindInvalidState, Message: "schedule already has bookings", Err: err}
	}
	if err != nil {
		return nil, fromStoreError(err, "regenerate seats")
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": scheduleID,
		"seats":       len(seats),
		"actor_id":    actor.UserID,
	}).Info("Seat map regenerated")

	s.audit.Record(ctx, AuditEntry{
		ActorID:    &actor.UserID,
		Action:     AuditScheduleSeatMap,
		EntityType: "schedule",
		EntityID:   &scheduleID,
		After:      map[string]interface{}{"seat_numbers": numbers},
	})
	return seats, nil
}

// normalizeSeatNumbers trims, rejects blanks and duplicates, and enforces max when positive
func normalizeSeatNumbers(seatNumbers []string, max int) ([]string, error) {
	if len(seatNumbers) == 0 {
		return nil, newError(KindInvalidRequest, "at least one seat is required")
	}
	if max > 0 && len(seatNumbers) > max {
		return nil, newError(KindInvalidRequest, "too many seats requested")
	}
	seen := make(map[string]bool, len(seatNumbers))
	out := make([]string, 0, len(seatNumbers))
	for _, n := range seatNumbers {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, newError(KindInvalidRequest, "seat number cannot be empty")
		}
		if seen[n] {
			return nil, newError(KindInvalidRequest, "duplicate seat number", n)
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, nil
}
