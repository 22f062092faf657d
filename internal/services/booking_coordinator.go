package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/cache"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/events"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/notify"
	"github.com/smarttransit/seat-booking-core/pkg/validator"
)

const (
	maxTicketAttempts    = 3
	sideEffectTimeout    = 15 * time.Second
	defaultCounterMethod = "CASH"
)

// PaymentRequest asks for a payment row to be created with the order
type PaymentRequest struct {
	Method string `json:"method" binding:"required"`
}

// BookSeatsRequest is a customer booking of one or more seats on one schedule.
// Passengers is optional: empty uses the booker's profile for every seat, a single
// entry applies to every seat, otherwise one entry per seat in SeatNumbers order.
type BookSeatsRequest struct {
	ScheduleID     uuid.UUID
	SeatNumbers    []string
	Booker         models.Actor
	Passengers     []models.Passenger
	Payment        *PaymentRequest
	IdempotencyKey string
}

// AdminBookSeatsRequest books on behalf of a passenger identified by phone.
// The user is created when the phone is unknown; the payment is recorded as COMPLETED.
type AdminBookSeatsRequest struct {
	ScheduleID     uuid.UUID
	SeatNumbers    []string
	Phone          string
	Name           string
	Email          *string
	Passengers     []models.Passenger
	PaymentMethod  string
	IdempotencyKey string
	Actor          models.Actor
}

// BookingCoordinator runs the three-phase booking protocol: snapshot pre-validation,
// one atomic claim-and-create unit of work, then best-effort side effects after commit.
type BookingCoordinator struct {
	store     database.Store
	tickets   *TicketService
	notifier  notify.Dispatcher
	publisher events.Publisher
	audit     *AuditService
	guard     *cache.IdempotencyGuard
	phones    *validator.PhoneValidator
	settings  BookingSettings
	logger    *logrus.Logger
	now       func() time.Time
}

// NewBookingCoordinator creates a new booking coordinator
func NewBookingCoordinator(
	store database.Store,
	tickets *TicketService,
	notifier notify.Dispatcher,
	publisher events.Publisher,
	audit *AuditService,
	guard *cache.IdempotencyGuard,
	settings BookingSettings,
	logger *logrus.Logger,
) *BookingCoordinator {
	return &BookingCoordinator{
		store:     store,
		tickets:   tickets,
		notifier:  notifier,
		publisher: publisher,
		audit:     audit,
		guard:     guard,
		phones:    validator.NewPhoneValidator(),
		settings:  settings,
		logger:    logger,
		now:       time.Now,
	}
}

// bookParams is the request shape shared by customer and admin bookings
type bookParams struct {
	scheduleID     uuid.UUID
	seatNumbers    []string
	userID         uuid.UUID
	actorID        uuid.UUID
	passengers     []models.Passenger
	payment        *models.Payment
	idempotencyKey string
	newUser        *models.User // created in the claim when the booker has no account yet
}

// ============================================================================
// ENTRY POINTS
// ============================================================================

// BookSeats books every requested seat or none of them
func (s *BookingCoordinator) BookSeats(ctx context.Context, req BookSeatsRequest) (*models.OrderDetails, error) {
	if req.Booker.UserID == uuid.Nil {
		return nil, newError(KindInvalidRequest, "booker is required")
	}

	params := bookParams{
		scheduleID:     req.ScheduleID,
		seatNumbers:    req.SeatNumbers,
		userID:         req.Booker.UserID,
		actorID:        req.Booker.UserID,
		passengers:     req.Passengers,
		idempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	}
	if req.Payment != nil {
		params.payment = &models.Payment{
			Method: req.Payment.Method,
			Status: models.PaymentStatusPending,
		}
	}
	return s.book(ctx, params, func() ([]models.Passenger, error) {
		user, err := s.store.GetUser(ctx, req.Booker.UserID)
		if err != nil {
			return nil, fromStoreError(err, "get booker")
		}
		name := user.Phone
		if user.Name != nil && *user.Name != "" {
			name = *user.Name
		}
		return []models.Passenger{{Name: name, Phone: user.Phone, Email: user.Email}}, nil
	})
}

// BookSeatsForUser is the staff counter flow. The passenger's account is looked up by
// phone; a missing account is created inside the booking's unit of work so a rejected
// booking leaves no user behind. The payment is recorded as completed.
func (s *BookingCoordinator) BookSeatsForUser(ctx context.Context, req AdminBookSeatsRequest) (*models.OrderDetails, error) {
	if !req.Actor.IsPrivileged() {
		return nil, newError(KindForbidden, "only staff can book for another user")
	}
	phone, err := s.phones.Validate(req.Phone)
	if err != nil {
		return nil, &BookingError{Kind: KindInvalidRequest, Message: "invalid phone number", Err: err}
	}

	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		method = defaultCounterMethod
	}
	params := bookParams{
		scheduleID:     req.ScheduleID,
		seatNumbers:    req.SeatNumbers,
		actorID:        req.Actor.UserID,
		passengers:     req.Passengers,
		payment:        &models.Payment{Method: method, Status: models.PaymentStatusCompleted},
		idempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	}

	user, err := s.store.GetUserByPhone(ctx, phone)
	switch {
	case err == nil:
		params.userID = user.ID
	case errors.Is(err, database.ErrNotFound):
		params.newUser = newCounterUser(phone, req.Name, req.Email)
		params.userID = params.newUser.ID
	default:
		return nil, fromStoreError(err, "get user")
	}

	return s.book(ctx, params, func() ([]models.Passenger, error) {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = phone
		}
		return []models.Passenger{{Name: name, Phone: phone, Email: req.Email}}, nil
	})
}

// newCounterUser prepares the account created with a counter booking. The id is
// assigned up front so the rest of the protocol can key on it before the insert.
func newCounterUser(phone, name string, email *string) *models.User {
	user := &models.User{ID: uuid.New(), Phone: phone, Email: email, Role: models.RoleCustomer}
	if name = strings.TrimSpace(name); name != "" {
		user.Name = &name
	}
	return user
}

// adoptExistingUser switches a counter booking onto the account that won a
// concurrent creation of the same phone
func (s *BookingCoordinator) adoptExistingUser(ctx context.Context, p *bookParams) error {
	existing, err := s.store.GetUserByPhone(ctx, p.newUser.Phone)
	if err != nil {
		return fromStoreError(err, "get user")
	}
	p.userID = existing.ID
	p.newUser = nil
	return nil
}

// ============================================================================
// PROTOCOL
// ============================================================================

func (s *BookingCoordinator) book(ctx context.Context, p bookParams, defaultPassengers func() ([]models.Passenger, error)) (*models.OrderDetails, error) {
	if p.scheduleID == uuid.Nil {
		return nil, newError(KindInvalidRequest, "schedule is required")
	}
	numbers, err := normalizeSeatNumbers(p.seatNumbers, s.settings.MaxSeatsPerRequest)
	if err != nil {
		return nil, err
	}
	p.seatNumbers = numbers
	if p.payment != nil && strings.TrimSpace(p.payment.Method) == "" {
		return nil, newError(KindInvalidRequest, "payment method is required")
	}

	// Idempotency: a committed order for the key is returned as is; a request
	// still in flight with the same key is rejected.
	if p.idempotencyKey != "" {
		if existing, err := s.findIdempotentOrder(ctx, p.userID, p.idempotencyKey); existing != nil || err != nil {
			return existing, err
		}
		token, ok, err := s.guard.Acquire(ctx, p.userID, p.idempotencyKey)
		if err != nil {
			s.logger.WithError(err).Warn("Idempotency guard unavailable, relying on order constraint")
		} else if !ok {
			return nil, newError(KindDuplicateRequest, "a request with this idempotency key is already in progress")
		}
		defer func() {
			if err := s.guard.Release(context.WithoutCancel(ctx), p.userID, p.idempotencyKey, token); err != nil {
				s.logger.WithError(err).Warn("Failed to release idempotency guard")
			}
		}()
	}

	schedule, err := s.store.GetSchedule(ctx, p.scheduleID)
	if err != nil {
		return nil, fromStoreError(err, "get schedule")
	}

	passengers, err := s.assignPassengers(numbers, p.passengers, defaultPassengers)
	if err != nil {
		return nil, err
	}

	// Phase 1: snapshot pre-validation
	if err := s.preValidate(ctx, schedule.ID, numbers, p.userID); err != nil {
		return nil, err
	}

	// Phase 2: atomic claim-and-create. A ticket number collision is retried, and so
	// is losing the creation of a new account to a concurrent request.
	var details *models.OrderDetails
	for attempt := 1; attempt <= maxTicketAttempts; attempt++ {
		details, err = s.claim(ctx, schedule, p, passengers)
		if p.newUser != nil && database.IsConstraint(err, database.ConstraintUserPhone) {
			if err := s.adoptExistingUser(ctx, &p); err != nil {
				return nil, err
			}
			details, err = s.claim(ctx, schedule, p, passengers)
		}
		if !database.IsConstraint(err, database.ConstraintTicketNumber) {
			break
		}
		s.logger.WithField("attempt", attempt).Warn("Ticket number collision, retrying booking")
	}
	if database.IsConstraint(err, database.ConstraintTicketNumber) {
		return nil, fmt.Errorf("failed to allocate a unique ticket number after %d attempts", maxTicketAttempts)
	}
	if database.IsConstraint(err, database.ConstraintOrderIdempotency) {
		existing, lookupErr := s.findIdempotentOrder(ctx, p.userID, p.idempotencyKey)
		if existing != nil || lookupErr != nil {
			return existing, lookupErr
		}
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"schedule_id": schedule.ID,
			"seats":       numbers,
			"user_id":     p.userID,
		}).Info("Booking rejected")
		return nil, fromStoreError(err, "book seats")
	}

	if p.newUser != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id": p.userID,
			"phone":   p.newUser.Phone,
		}).Info("Created user for counter booking")
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":      details.Order.ID,
		"schedule_id":   schedule.ID,
		"seats":         details.SeatNumbers(),
		"user_id":       p.userID,
		"total_amount":  details.Order.TotalAmount,
		"ticket_number": details.Ticket.TicketNumber,
	}).Info("Seats booked successfully")

	// Phase 3: best-effort side effects
	s.afterCommit(ctx, details, p.actorID)
	return details, nil
}

func (s *BookingCoordinator) findIdempotentOrder(ctx context.Context, userID uuid.UUID, key string) (*models.OrderDetails, error) {
	order, err := s.store.GetOrderByIdempotencyKey(ctx, userID, key)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fromStoreError(err, "check idempotency")
	}
	details, err := loadOrderDetails(ctx, s.store, order)
	if err != nil {
		return nil, fromStoreError(err, "load order")
	}
	return details, nil
}

// assignPassengers maps request passengers onto seat numbers
func (s *BookingCoordinator) assignPassengers(numbers []string, given []models.Passenger, fallback func() ([]models.Passenger, error)) (map[string]models.Passenger, error) {
	if len(given) == 0 {
		var err error
		if given, err = fallback(); err != nil {
			return nil, err
		}
	}
	if len(given) != 1 && len(given) != len(numbers) {
		return nil, newError(KindInvalidRequest, fmt.Sprintf("expected 1 or %d passengers, got %d", len(numbers), len(given)))
	}

	out := make(map[string]models.Passenger, len(numbers))
	for i, n := range numbers {
		pax := given[0]
		if len(given) > 1 {
			pax = given[i]
		}
		pax.Name = strings.TrimSpace(pax.Name)
		pax.Phone = strings.TrimSpace(pax.Phone)
		if pax.Name == "" || pax.Phone == "" {
			return nil, newError(KindInvalidRequest, "passenger name and phone are required", n)
		}
		out[n] = pax
	}
	return out, nil
}

// preValidate rejects obviously unavailable seats without taking locks.
// Its result is advisory; claim re-checks everything under lock.
func (s *BookingCoordinator) preValidate(ctx context.Context, scheduleID uuid.UUID, numbers []string, userID uuid.UUID) error {
	seats, err := s.store.GetSeatsByNumbers(ctx, scheduleID, numbers)
	if err != nil {
		return fromStoreError(err, "get seats")
	}
	if missing := missingSeats(numbers, seats); len(missing) > 0 {
		return newError(KindNotFound, "seat not found", missing...)
	}

	ids := seatIDs(seats)
	active, err := s.store.ListActiveBookingsBySeats(ctx, ids)
	if err != nil {
		return fromStoreError(err, "list bookings")
	}
	if taken := unavailableSeats(seats, active); len(taken) > 0 {
		return newError(KindSeatAlreadyBooked, "seat already booked", taken...)
	}

	pending, err := s.store.ListPendingReservations(ctx, ids)
	if err != nil {
		return fromStoreError(err, "list reservations")
	}
	if held := heldSeats(pending, userID, s.now()); len(held) > 0 {
		return newError(KindSeatReserved, "seat is reserved", held...)
	}
	return nil
}

// claim is the single unit of work of a booking: lock, re-check, flip, create
func (s *BookingCoordinator) claim(ctx context.Context, schedule *models.Schedule, p bookParams, passengers map[string]models.Passenger) (*models.OrderDetails, error) {
	ticketNumber, err := s.tickets.GenerateTicketNumber()
	if err != nil {
		return nil, err
	}

	txCtx, cancel := s.settings.txContext(ctx)
	defer cancel()

	details := &models.OrderDetails{Schedule: *schedule}
	err = s.store.WithTx(txCtx, func(q database.Queries) error {
		now := s.now()

		seats, err := q.LockSeats(txCtx, schedule.ID, p.seatNumbers)
		if err != nil {
			return err
		}
		if missing := missingSeats(p.seatNumbers, seats); len(missing) > 0 {
			return newError(KindNotFound, "seat not found", missing...)
		}
		ids := seatIDs(seats)

		active, err := q.ListActiveBookingsBySeats(txCtx, ids)
		if err != nil {
			return err
		}
		if taken := unavailableSeats(seats, active); len(taken) > 0 {
			return newError(KindSeatNoLongerAvailable, "seat no longer available", taken...)
		}
		pending, err := q.ListPendingReservations(txCtx, ids)
		if err != nil {
			return err
		}
		if held := heldSeats(pending, p.userID, now); len(held) > 0 {
			return newError(KindSeatReserved, "seat is reserved", held...)
		}

		for _, seat := range seats {
			if err := q.MarkSeatBooked(txCtx, seat.ID); err != nil {
				return err
			}
		}

		if p.newUser != nil {
			user := *p.newUser
			if err := q.CreateUser(txCtx, &user); err != nil {
				return err
			}
		}

		order := &models.Order{
			UserID:      p.userID,
			ScheduleID:  schedule.ID,
			TotalAmount: roundCents(schedule.Fare * float64(len(seats))),
		}
		if p.idempotencyKey != "" {
			key := p.idempotencyKey
			order.IdempotencyKey = &key
		}
		if err := q.CreateOrder(txCtx, order); err != nil {
			return err
		}

		bookings := make([]*models.Booking, 0, len(seats))
		for _, seat := range seats {
			bookings = append(bookings, &models.Booking{
				ID:         uuid.New(),
				OrderID:    order.ID,
				UserID:     p.userID,
				ScheduleID: schedule.ID,
				SeatID:     seat.ID,
				SeatNumber: seat.SeatNumber,
				Status:     models.BookingStatusBooked,
				Passenger:  passengers[seat.SeatNumber],
				Fare:       schedule.Fare,
			})
		}
		if err := q.CreateBookings(txCtx, bookings); err != nil {
			return err
		}

		if p.payment != nil {
			payment := &models.Payment{
				OrderID:   order.ID,
				BookingID: bookings[0].ID,
				Method:    p.payment.Method,
				Amount:    order.TotalAmount,
				Currency:  s.settings.Currency,
				Status:    p.payment.Status,
			}
			if err := q.CreatePayment(txCtx, payment); err != nil {
				return err
			}
			details.Payment = payment
		}

		ticket := &models.Ticket{OrderID: order.ID, TicketNumber: ticketNumber}
		if err := q.CreateTicket(txCtx, ticket); err != nil {
			return err
		}

		if _, err := q.ConfirmReservations(txCtx, ids, p.userID, now); err != nil {
			return err
		}

		details.Order = *order
		details.Ticket = *ticket
		details.Bookings = make([]models.Booking, len(bookings))
		for i, b := range bookings {
			details.Bookings[i] = *b
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// afterCommit renders the QR, notifies the passenger, publishes the payment
// event and writes the audit entry. Failures are logged and swallowed.
func (s *BookingCoordinator) afterCommit(ctx context.Context, details *models.OrderDetails, actorID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	log := s.logger.WithField("order_id", details.Order.ID)

	if err := storeTicketQR(ctx, s.store, s.tickets, details); err != nil {
		log.WithError(err).Warn("Failed to render ticket QR code")
	}

	if s.notifier != nil {
		if err := s.notifier.SendTicket(ctx, ticketNotification(details)); err != nil {
			log.WithError(err).Warn("Failed to send ticket notification")
		}
	}

	if s.publisher != nil && details.Payment != nil {
		eventType := events.PaymentPending
		if details.Payment.Status == models.PaymentStatusCompleted {
			eventType = events.PaymentCompleted
		}
		if err := s.publisher.PublishPaymentEvent(ctx, paymentEvent(eventType, details.Payment, details.Order.UserID)); err != nil {
			log.WithError(err).Warn("Failed to publish payment event")
		}
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    &actorID,
		Action:     AuditBookingCreate,
		EntityType: "order",
		EntityID:   &details.Order.ID,
		After: map[string]interface{}{
			"schedule_id":   details.Schedule.ID,
			"user_id":       details.Order.UserID,
			"seats":         details.SeatNumbers(),
			"total_amount":  details.Order.TotalAmount,
			"ticket_number": details.Ticket.TicketNumber,
		},
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// loadOrderDetails assembles the committed aggregate of an order
func loadOrderDetails(ctx context.Context, r database.Reader, order *models.Order) (*models.OrderDetails, error) {
	schedule, err := r.GetSchedule(ctx, order.ScheduleID)
	if err != nil {
		return nil, err
	}
	bookings, err := r.ListBookingsByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	ticket, err := r.GetTicketByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	details := &models.OrderDetails{Order: *order, Schedule: *schedule, Bookings: bookings, Ticket: *ticket}

	payment, err := r.GetPaymentByOrder(ctx, order.ID)
	switch {
	case err == nil:
		details.Payment = payment
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}
	return details, nil
}

// storeTicketQR renders the QR for the order's current bookings and saves it on the ticket
func storeTicketQR(ctx context.Context, store database.Store, tickets *TicketService, details *models.OrderDetails) error {
	qrCode, payload, err := tickets.Render(details)
	if err != nil {
		return err
	}
	err = store.WithTx(ctx, func(q database.Queries) error {
		return q.UpdateTicketQR(ctx, details.Ticket.ID, qrCode, payload)
	})
	if err != nil {
		return err
	}
	details.Ticket.QRCode = qrCode
	details.Ticket.QRPayload = payload
	return nil
}

func ticketNotification(details *models.OrderDetails) notify.TicketNotification {
	n := notify.TicketNotification{
		OrderID:      details.Order.ID,
		TicketNumber: details.Ticket.TicketNumber,
		RouteName:    details.Schedule.RouteName,
		BusNumber:    details.Schedule.BusNumber,
		DepartureAt:  details.Schedule.DepartureAt,
		Seats:        details.SeatNumbers(),
		TotalAmount:  details.Order.TotalAmount,
		QRCode:       details.Ticket.QRCode,
	}
	if details.Payment != nil {
		n.Currency = details.Payment.Currency
	}
	if len(details.Bookings) > 0 {
		pax := details.Bookings[0].Passenger
		n.PassengerName = pax.Name
		n.Phone = pax.Phone
		n.Email = pax.Email
	}
	return n
}

func paymentEvent(eventType string, p *models.Payment, userID uuid.UUID) *events.PaymentEvent {
	bookingID := p.BookingID
	return &events.PaymentEvent{
		Type:      eventType,
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		BookingID: &bookingID,
		UserID:    userID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    string(p.Status),
	}
}

func seatIDs(seats []models.Seat) []uuid.UUID {
	ids := make([]uuid.UUID, len(seats))
	for i, seat := range seats {
		ids[i] = seat.ID
	}
	return ids
}

func missingSeats(numbers []string, seats []models.Seat) []string {
	found := make(map[string]bool, len(seats))
	for _, seat := range seats {
		found[seat.SeatNumber] = true
	}
	var missing []string
	for _, n := range numbers {
		if !found[n] {
			missing = append(missing, n)
		}
	}
	return missing
}

// unavailableSeats lists seats that are flagged booked or carry an active booking
func unavailableSeats(seats []models.Seat, active []models.Booking) []string {
	claimed := make(map[uuid.UUID]bool, len(active))
	for _, b := range active {
		claimed[b.SeatID] = true
	}
	var taken []string
	for _, seat := range seats {
		if seat.IsBooked || claimed[seat.ID] {
			taken = append(taken, seat.SeatNumber)
		}
	}
	return taken
}

// heldSeats lists seats with a live hold belonging to someone other than userID
func heldSeats(pending []models.Reservation, userID uuid.UUID, now time.Time) []string {
	var held []string
	for i := range pending {
		if pending[i].BlocksUser(userID, now) {
			held = append(held, pending[i].SeatNumber)
		}
	}
	return held
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
