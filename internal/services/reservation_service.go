package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// ReservationService manages soft seat holds. Holds expire lazily: nothing sweeps them,
// every reader applies Reservation.IsBlocking against the current time.
type ReservationService struct {
	store    database.Store
	audit    *AuditService
	settings BookingSettings
	logger   *logrus.Logger
	now      func() time.Time
}

// NewReservationService creates a new reservation service
func NewReservationService(store database.Store, audit *AuditService, settings BookingSettings, logger *logrus.Logger) *ReservationService {
	return &ReservationService{
		store:    store,
		audit:    audit,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateReservation holds a seat for userID until now+ttl. A zero ttl uses the configured default.
// A live hold of the same user is extended and returned instead of creating a second one.
func (s *ReservationService) CreateReservation(ctx context.Context, scheduleID uuid.UUID, seatNumber string, userID uuid.UUID, ttl time.Duration) (*models.Reservation, error) {
	if userID == uuid.Nil {
		return nil, newError(KindInvalidRequest, "user is required")
	}
	numbers, err := normalizeSeatNumbers([]string{seatNumber}, 1)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.settings.ReservationTTL
	}

	txCtx, cancel := s.settings.txContext(ctx)
	defer cancel()

	var (
		reservation *models.Reservation
		extended    bool
	)
	err = s.store.WithTx(txCtx, func(q database.Queries) error {
		now := s.now()

		seats, err := q.LockSeats(txCtx, scheduleID, numbers)
		if err != nil {
			return err
		}
		if len(seats) == 0 {
			return newError(KindNotFound, "seat not found", numbers[0])
		}
		seat := seats[0]

		if seat.IsBooked {
			return newError(KindSeatAlreadyBooked, "seat already booked", seat.SeatNumber)
		}
		active, err := q.ListActiveBookingsBySeats(txCtx, []uuid.UUID{seat.ID})
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return newError(KindSeatAlreadyBooked, "seat already booked", seat.SeatNumber)
		}

		pending, err := q.ListPendingReservations(txCtx, []uuid.UUID{seat.ID})
		if err != nil {
			return err
		}
		for i := range pending {
			existing := pending[i]
			if existing.BlocksUser(userID, now) {
				return newError(KindSeatReserved, "seat is reserved", seat.SeatNumber)
			}
			if existing.IsBlocking(now) {
				existing.ExpiresAt = now.Add(ttl)
				if err := q.ExtendReservation(txCtx, existing.ID, existing.ExpiresAt); err != nil {
					return err
				}
				reservation = &existing
				extended = true
				return nil
			}
		}

		if _, err := q.ExpireReservations(txCtx, []uuid.UUID{seat.ID}, now); err != nil {
			return err
		}

		reservation = &models.Reservation{
			SeatID:     seat.ID,
			ScheduleID: scheduleID,
			SeatNumber: seat.SeatNumber,
			UserID:     userID,
			Status:     models.ReservationStatusPending,
			ExpiresAt:  now.Add(ttl),
		}
		return q.CreateReservation(txCtx, reservation)
	})
	if database.IsConstraint(err, database.ConstraintPendingReservation) {
		return nil, &BookingError{Kind: KindSeatReserved, Message: "seat is reserved", Seats: numbers, Err: err}
	}
	if err != nil {
		return nil, fromStoreError(err, "create reservation")
	}

	s.logger.WithFields(logrus.Fields{
		"reservation_id": reservation.ID,
		"schedule_id":    scheduleID,
		"seat_number":    reservation.SeatNumber,
		"user_id":        userID,
		"expires_at":     reservation.ExpiresAt,
		"extended":       extended,
	}).Info("Seat reserved")

	s.audit.Record(ctx, AuditEntry{
		ActorID:    &userID,
		Action:     AuditReservationCreate,
		EntityType: "reservation",
		EntityID:   &reservation.ID,
		After:      reservation,
	})
	return reservation, nil
}

// GetReservation returns a reservation visible to actor
func (s *ReservationService) GetReservation(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Reservation, error) {
	reservation, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, fromStoreError(err, "get reservation")
	}
	if reservation.UserID != actor.UserID && !actor.IsPrivileged() {
		return nil, newError(KindForbidden, "reservation belongs to another user")
	}
	return reservation, nil
}

// CancelReservation releases a PENDING hold. Only the holder or staff may cancel it.
func (s *ReservationService) CancelReservation(ctx context.Context, id uuid.UUID, actor models.Actor) error {
	reservation, err := s.GetReservation(ctx, id, actor)
	if err != nil {
		return err
	}
	if reservation.Status != models.ReservationStatusPending {
		return newError(KindInvalidState, "reservation is "+string(reservation.Status))
	}

	txCtx, cancel := s.settings.txContext(ctx)
	defer cancel()

	err = s.store.WithTx(txCtx, func(q database.Queries) error {
		return q.TransitionReservation(txCtx, id, models.ReservationStatusPending, models.ReservationStatusCancelled)
	})
	if errors.Is(err, database.ErrConflict) {
		return &BookingError{Kind: KindInvalidState, Message: "reservation is no longer pending", Err: err}
	}
	if err != nil {
		return fromStoreError(err, "cancel reservation")
	}

	s.logger.WithFields(logrus.Fields{
		"reservation_id": id,
		"actor_id":       actor.UserID,
	}).Info("Reservation cancelled")

	before := *reservation
	reservation.Status = models.ReservationStatusCancelled
	s.audit.Record(ctx, AuditEntry{
		ActorID:    &actor.UserID,
		Action:     AuditReservationCancel,
		EntityType: "reservation",
		EntityID:   &id,
		Before:     before,
		After:      reservation,
	})
	return nil
}
