package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/events"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/notify"
)

// SeatRemovalResult reports what RemoveSeatFromBooking left behind
type SeatRemovalResult struct {
	OrderDeleted bool                 `json:"order_deleted"`
	Order        *models.OrderDetails `json:"order,omitempty"`
}

// CleanupResult reports the work done by CleanupOrphanedBookings
type CleanupResult struct {
	database.OrphanCleanup
	ReservationsExpired int64 `json:"reservations_expired"`
}

// ResetOptions controls ResetSeatStatus
type ResetOptions struct {
	// All frees every booked seat of the schedule, including seats that still
	// carry an active booking. Only meant for schedules whose bookings were purged.
	All bool
}

// CancellationService reverses seat claims. Every mutation frees or keeps the
// seat in the same unit of work as the booking change.
type CancellationService struct {
	store     database.Store
	tickets   *TicketService
	notifier  notify.Dispatcher
	publisher events.Publisher
	audit     *AuditService
	settings  BookingSettings
	logger    *logrus.Logger
	now       func() time.Time
}

// NewCancellationService creates a new cancellation service
func NewCancellationService(
	store database.Store,
	tickets *TicketService,
	notifier notify.Dispatcher,
	publisher events.Publisher,
	audit *AuditService,
	settings BookingSettings,
	logger *logrus.Logger,
) *CancellationService {
	return &CancellationService{
		store:     store,
		tickets:   tickets,
		notifier:  notifier,
		publisher: publisher,
		audit:     audit,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
	}
}

// CancellationFee splits a fare into the withheld fee and the refund, rounded to cents
func CancellationFee(fare float64) (fee, refund float64) {
	fee = roundCents(fare * CancellationFeeRate)
	refund = roundCents(fare - fee)
	return fee, refund
}

// ============================================================================
// CANCELLATION
// ============================================================================

// CancelBooking cancels one seat for its owner or for staff. Cancelling on the
// travel date itself is refused for everyone on this path.
func (s *CancellationService) CancelBooking(ctx context.Context, bookingID uuid.UUID, actor models.Actor) (*models.Booking, error) {
	booking, schedule, err := s.loadForCancel(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != actor.UserID && !actor.IsPrivileged() {
		return nil, newError(KindForbidden, "booking belongs to another user")
	}
	if booking.Status != models.BookingStatusBooked {
		return nil, newError(KindInvalidState, "booking is "+string(booking.Status))
	}

	loc := s.settings.location()
	if models.DateOf(s.now(), loc).Equal(schedule.TravelDate(loc)) {
		return nil, newError(KindSameDayCancellation, "bookings cannot be cancelled on the travel date")
	}

	cancelled, err := s.cancel(ctx, booking, actor, false)
	if err != nil {
		return nil, err
	}
	s.afterCancel(ctx, cancelled, schedule, actor, AuditBookingCancel, nil)
	return cancelled, nil
}

// AdminCancelBooking cancels without the travel-date rule and refunds the order's payment
func (s *CancellationService) AdminCancelBooking(ctx context.Context, bookingID uuid.UUID, actor models.Actor) (*models.Booking, error) {
	if !actor.IsPrivileged() {
		return nil, newError(KindForbidden, "admin cancellation requires a staff role")
	}
	booking, schedule, err := s.loadForCancel(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusBooked {
		return nil, newError(KindInvalidState, "booking is "+string(booking.Status))
	}

	cancelled, err := s.cancel(ctx, booking, actor, true)
	if err != nil {
		return nil, err
	}

	var payment *models.Payment
	if p, err := s.store.GetPaymentByOrder(ctx, cancelled.OrderID); err == nil && p.Status == models.PaymentStatusRefunded {
		payment = p
	}
	s.afterCancel(ctx, cancelled, schedule, actor, AuditBookingAdminCancel, payment)
	return cancelled, nil
}

func (s *CancellationService) loadForCancel(ctx context.Context, bookingID uuid.UUID) (*models.Booking, *models.Schedule, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, fromStoreError(err, "get booking")
	}
	schedule, err := s.store.GetSchedule(ctx, booking.ScheduleID)
	if err != nil {
		return nil, nil, fromStoreError(err, "get schedule")
	}
	return booking, schedule, nil
}

// cancel moves the booking to CANCELLED, frees the seat and drops holds on it in one unit of work
func (s *CancellationService) cancel(ctx context.Context, booking *models.Booking, actor models.Actor, refundPayment bool) (*models.Booking, error) {
	fee, refund := CancellationFee(booking.Fare)
	now := s.now()

	cancelled := *booking
	cancelled.Status = models.BookingStatusCancelled
	cancelled.CancellationFee = &fee
	cancelled.RefundedAmount = &refund
	cancelled.CancelledAt = &now
	cancelled.CancelledBy = actorRef(actor)

	txCtx, cancel := s.settings.txContext(ctx)
	defer cancel()

	err := s.store.WithTx(txCtx, func(q database.Queries) error {
		if err := q.CancelBooking(txCtx, &cancelled); err != nil {
			return err
		}
		if err := q.MarkSeatAvailable(txCtx, booking.SeatID); err != nil {
			return err
		}
		if _, err := q.CancelPendingReservations(txCtx, booking.SeatID); err != nil {
			return err
		}
		if refundPayment {
			if _, err := q.UpdatePaymentStatus(txCtx, booking.OrderID, models.PaymentStatusRefunded); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, database.ErrConflict) {
		return nil, &BookingError{Kind: KindInvalidState, Message: "booking is no longer active", Err: err}
	}
	if err != nil {
		return nil, fromStoreError(err, "cancel booking")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":       booking.ID,
		"seat_number":      booking.SeatNumber,
		"cancellation_fee": fee,
		"refunded_amount":  refund,
		"actor_id":         actor.UserID,
		"payment_refunded": refundPayment,
	}).Info("Booking cancelled")
	return &cancelled, nil
}

func (s *CancellationService) afterCancel(ctx context.Context, booking *models.Booking, schedule *models.Schedule, actor models.Actor, action string, refunded *models.Payment) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	log := s.logger.WithField("booking_id", booking.ID)

	if s.notifier != nil {
		n := notify.CancellationNotification{
			BookingID:     booking.ID,
			OrderID:       booking.OrderID,
			PassengerName: booking.Passenger.Name,
			Phone:         booking.Passenger.Phone,
			Email:         booking.Passenger.Email,
			RouteName:     schedule.RouteName,
			DepartureAt:   schedule.DepartureAt,
			SeatNumber:    booking.SeatNumber,
			Currency:      s.settings.Currency,
		}
		if booking.CancellationFee != nil {
			n.CancellationFee = *booking.CancellationFee
		}
		if booking.RefundedAmount != nil {
			n.RefundedAmount = *booking.RefundedAmount
		}
		if err := s.notifier.SendCancellation(ctx, n); err != nil {
			log.WithError(err).Warn("Failed to send cancellation notification")
		}
	}

	if s.publisher != nil && refunded != nil {
		if err := s.publisher.PublishPaymentEvent(ctx, paymentEvent(events.PaymentRefunded, refunded, booking.UserID)); err != nil {
			log.WithError(err).Warn("Failed to publish payment event")
		}
	}

	before := *booking
	before.Status = models.BookingStatusBooked
	before.CancellationFee, before.RefundedAmount, before.CancelledAt, before.CancelledBy = nil, nil, nil, nil
	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorRef(actor),
		Action:     action,
		EntityType: "booking",
		EntityID:   &booking.ID,
		Before:     before,
		After:      booking,
	})
}

// CompleteBooking marks a BOOKED seat as travelled
func (s *CancellationService) CompleteBooking(ctx context.Context, bookingID uuid.UUID, actor models.Actor) (*models.Booking, error) {
	if !actor.IsPrivileged() {
		return nil, newError(KindForbidden, "completing a booking requires a staff role")
	}
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fromStoreError(err, "get booking")
	}
	if booking.Status != models.BookingStatusBooked {
		return nil, newError(KindInvalidState, "booking is "+string(booking.Status))
	}

	txCtx, cancel := s.settings.txContext(ctx)
	defer cancel()
	err = s.store.WithTx(txCtx, func(q database.Queries) error {
		return q.TransitionBooking(txCtx, bookingID, models.BookingStatusBooked, models.BookingStatusCompleted)
	})
	if errors.Is(err, database.ErrConflict) {
		return nil, &BookingError{Kind: KindInvalidState, Message: "booking is no longer active", Err: err}
	}
	if err != nil {
		return nil, fromStoreError(err, "complete booking")
	}

	before := *booking
	booking.Status = models.BookingStatusCompleted
	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorRef(actor),
		Action:     AuditBookingComplete,
		EntityType: "booking",
		EntityID:   &booking.ID,
		Before:     before,
		After:      booking,
	})
	return booking, nil
}

// ============================================================================
// SEAT REMOVAL
// ============================================================================

// RemoveSeatFromBooking deletes one booking of an order together with its payment row.
// The last seat takes the order and ticket with it; otherwise the order total is
// recomputed and the ticket QR re-rendered for the remaining seats.
func (s *CancellationService) RemoveSeatFromBooking(ctx context.Context, bookingID uuid.UUID, actor models.Actor) (*SeatRemovalResult, error) {
	if !actor.IsPrivileged() {
		return nil, newError(KindForbidden, "removing a seat requires a staff role")
	}
	booking, schedule, err := s.loadForCancel(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	txCtx, cancel := s.settings.txContext(ctx)
	defer cancel()

	var (
		result         SeatRemovalResult
		deletedPayment *models.Payment
	)
	err = s.store.WithTx(txCtx, func(q database.Queries) error {
		current, err := q.GetBooking(txCtx, bookingID)
		if err != nil {
			return err
		}

		if payment, err := q.GetPaymentByOrder(txCtx, current.OrderID); err == nil && payment.BookingID == current.ID {
			deletedPayment = payment
		} else if err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}
		if _, err := q.DeletePaymentsByBooking(txCtx, current.ID); err != nil {
			return err
		}
		if err := q.DeleteBooking(txCtx, current.ID); err != nil {
			return err
		}
		if current.IsActive() {
			if err := q.MarkSeatAvailable(txCtx, current.SeatID); err != nil {
				return err
			}
			if _, err := q.CancelPendingReservations(txCtx, current.SeatID); err != nil {
				return err
			}
		}

		remaining, err := q.ListBookingsByOrder(txCtx, current.OrderID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			if err := q.DeleteTicketByOrder(txCtx, current.OrderID); err != nil {
				return err
			}
			result.OrderDeleted = true
			return q.DeleteOrder(txCtx, current.OrderID)
		}
		return q.UpdateOrderTotal(txCtx, current.OrderID, roundCents(schedule.Fare*float64(len(remaining))))
	})
	if err != nil {
		return nil, fromStoreError(err, "remove seat")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":    booking.ID,
		"order_id":      booking.OrderID,
		"seat_number":   booking.SeatNumber,
		"order_deleted": result.OrderDeleted,
		"actor_id":      actor.UserID,
	}).Info("Seat removed from booking")

	sideCtx, sideCancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer sideCancel()

	if !result.OrderDeleted {
		if order, err := s.store.GetOrder(sideCtx, booking.OrderID); err != nil {
			s.logger.WithError(err).Warn("Failed to reload order after seat removal")
		} else if details, err := loadOrderDetails(sideCtx, s.store, order); err != nil {
			s.logger.WithError(err).Warn("Failed to reload order after seat removal")
		} else {
			if err := storeTicketQR(sideCtx, s.store, s.tickets, details); err != nil {
				s.logger.WithError(err).WithField("order_id", order.ID).Warn("Failed to re-render ticket QR code")
			}
			result.Order = details
		}
	}

	if s.publisher != nil && deletedPayment != nil {
		if err := s.publisher.PublishPaymentEvent(sideCtx, paymentEvent(events.PaymentDeleted, deletedPayment, booking.UserID)); err != nil {
			s.logger.WithError(err).Warn("Failed to publish payment event")
		}
	}

	s.audit.Record(sideCtx, AuditEntry{
		ActorID:    actorRef(actor),
		Action:     AuditBookingRemoveSeat,
		EntityType: "booking",
		EntityID:   &booking.ID,
		Before:     booking,
		After:      map[string]interface{}{"order_deleted": result.OrderDeleted},
	})
	return &result, nil
}

// ============================================================================
// REPAIR
// ============================================================================

// CleanupOrphanedBookings deletes active bookings whose seat is not flagged booked,
// with their payments and emptied orders, and marks stale holds EXPIRED.
func (s *CancellationService) CleanupOrphanedBookings(ctx context.Context, scheduleID uuid.UUID, actor models.Actor) (*CleanupResult, error) {
	if !actor.IsPrivileged() {
		return nil, newError(KindForbidden, "maintenance requires a staff role")
	}
	if _, err := s.store.GetSchedule(ctx, scheduleID); err != nil {
		return nil, fromStoreError(err, "get schedule")
	}

	txCtx, cancel := s.settings.txContext(ctx)
	defer cancel()

	var result CleanupResult
	err := s.store.WithTx(txCtx, func(q database.Queries) error {
		cleanup, err := q.DeleteOrphanedBookings(txCtx, scheduleID)
		if err != nil {
			return err
		}
		result.OrphanCleanup = cleanup
		result.ReservationsExpired, err = q.ExpireStaleReservations(txCtx, scheduleID, s.now())
		return err
	})
	if err != nil {
		return nil, fromStoreError(err, "cleanup orphaned bookings")
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id":          scheduleID,
		"bookings_deleted":     result.BookingsDeleted,
		"payments_deleted":     result.PaymentsDeleted,
		"orders_deleted":       result.OrdersDeleted,
		"reservations_expired": result.ReservationsExpired,
	}).Info("Orphaned bookings cleaned up")

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorRef(actor),
		Action:     AuditScheduleCleanup,
		EntityType: "schedule",
		EntityID:   &scheduleID,
		After:      result,
	})
	return &result, nil
}

// ResetSeatStatus frees booked seats of a schedule and returns how many changed
func (s *CancellationService) ResetSeatStatus(ctx context.Context, scheduleID uuid.UUID, opts ResetOptions, actor models.Actor) (int64, error) {
	if !actor.IsPrivileged() {
		return 0, newError(KindForbidden, "maintenance requires a staff role")
	}
	if _, err := s.store.GetSchedule(ctx, scheduleID); err != nil {
		return 0, fromStoreError(err, "get schedule")
	}

	txCtx, cancel := s.settings.txContext(ctx)
	defer cancel()

	var reset int64
	err := s.store.WithTx(txCtx, func(q database.Queries) error {
		var err error
		reset, err = q.ResetSeats(txCtx, scheduleID, opts.All)
		return err
	})
	if err != nil {
		return 0, fromStoreError(err, "reset seats")
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": scheduleID,
		"seats_reset": reset,
		"all":         opts.All,
	}).Info("Seat status reset")

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorRef(actor),
		Action:     AuditScheduleResetSeats,
		EntityType: "schedule",
		EntityID:   &scheduleID,
		After:      map[string]interface{}{"seats_reset": reset, "all": opts.All},
	})
	return reset, nil
}

// actorRef returns nil for the system actor used by maintenance tooling
func actorRef(actor models.Actor) *uuid.UUID {
	if actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}
