package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// MemoryStore implements Store in process memory for development and tests.
// Units of work run one at a time and are rolled back by restoring a snapshot.
// The same unique constraints as schema.sql are enforced.
type MemoryStore struct {
	memReader
	txSem chan struct{}
	mutex sync.RWMutex
	data  *memData
	audit []models.AuditLog
}

type memData struct {
	users        map[uuid.UUID]models.User
	schedules    map[uuid.UUID]models.Schedule
	seats        map[uuid.UUID]models.Seat
	reservations map[uuid.UUID]models.Reservation
	orders       map[uuid.UUID]models.Order
	bookings     map[uuid.UUID]models.Booking
	payments     map[uuid.UUID]models.Payment
	tickets      map[uuid.UUID]models.Ticket
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		txSem: make(chan struct{}, 1),
		data: &memData{
			users:        make(map[uuid.UUID]models.User),
			schedules:    make(map[uuid.UUID]models.Schedule),
			seats:        make(map[uuid.UUID]models.Seat),
			reservations: make(map[uuid.UUID]models.Reservation),
			orders:       make(map[uuid.UUID]models.Order),
			bookings:     make(map[uuid.UUID]models.Booking),
			payments:     make(map[uuid.UUID]models.Payment),
			tickets:      make(map[uuid.UUID]models.Ticket),
		},
	}
	s.memReader = memReader{store: s}
	return s
}

func (d *memData) clone() *memData {
	return &memData{
		users:        copyMap(d.users),
		schedules:    copyMap(d.schedules),
		seats:        copyMap(d.seats),
		reservations: copyMap(d.reservations),
		orders:       copyMap(d.orders),
		bookings:     copyMap(d.bookings),
		payments:     copyMap(d.payments),
		tickets:      copyMap(d.tickets),
	}
}

func copyMap[V any](m map[uuid.UUID]V) map[uuid.UUID]V {
	out := make(map[uuid.UUID]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithTx serializes units of work. Waiting for the previous unit respects ctx.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	select {
	case s.txSem <- struct{}{}:
	case <-ctx.Done():
		return translateError(ctx, ctx.Err())
	}
	defer func() { <-s.txSem }()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	snapshot := s.data.clone()
	q := &memQueries{memReader{store: s, locked: true}}

	err := fn(q)
	if err == nil && ctx.Err() != nil {
		err = translateError(ctx, ctx.Err())
	}
	if err != nil {
		s.data = snapshot
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTxTimeout) {
			return fmt.Errorf("%w: %v", ErrTxTimeout, err)
		}
		return err
	}
	return nil
}

// InsertAuditLog appends an audit record
func (s *MemoryStore) InsertAuditLog(ctx context.Context, entry *models.AuditLog) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	s.audit = append(s.audit, *entry)
	return nil
}

// AuditLogs returns a copy of the recorded audit entries
func (s *MemoryStore) AuditLogs() []models.AuditLog {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]models.AuditLog, len(s.audit))
	copy(out, s.audit)
	return out
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// ============================================================================
// FIXTURES
// ============================================================================

// AddSchedule registers a schedule with its seat map
func (s *MemoryStore) AddSchedule(schedule models.Schedule, seatNumbers ...string) ([]models.Seat, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now()
	}
	s.data.schedules[schedule.ID] = schedule

	q := &memQueries{memReader{store: s, locked: true}}
	return q.insertSeats(schedule.ID, seatNumbers)
}

// AddUser registers a user
func (s *MemoryStore) AddUser(user models.User) (models.User, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	q := &memQueries{memReader{store: s, locked: true}}
	err := q.CreateUser(context.Background(), &user)
	return user, err
}

// OverrideSeatState writes the booked flag directly, bypassing every check.
// Used to reproduce drift for the repair operations.
func (s *MemoryStore) OverrideSeatState(seatID uuid.UUID, booked bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	seat, ok := s.data.seats[seatID]
	if !ok {
		return ErrNotFound
	}
	seat.IsBooked = booked
	s.data.seats[seatID] = seat
	return nil
}

// ============================================================================
// READS
// ============================================================================

type memReader struct {
	store  *MemoryStore
	locked bool
}

type memQueries struct {
	memReader
}

// view runs fn against the current data, taking the read lock unless a unit of work holds it
func (r *memReader) view(fn func(d *memData)) {
	if !r.locked {
		r.store.mutex.RLock()
		defer r.store.mutex.RUnlock()
	}
	fn(r.store.data)
}

func (r *memReader) GetSchedule(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	var out *models.Schedule
	r.view(func(d *memData) {
		if s, ok := d.schedules[id]; ok {
			out = &s
		}
	})
	if out == nil {
		return nil, fmt.Errorf("failed to get schedule: %w", ErrNotFound)
	}
	return out, nil
}

func (r *memReader) GetSeat(ctx context.Context, scheduleID uuid.UUID, seatNumber string) (*models.Seat, error) {
	var out *models.Seat
	r.view(func(d *memData) {
		for _, seat := range d.seats {
			if seat.ScheduleID == scheduleID && seat.SeatNumber == seatNumber {
				seat := seat
				out = &seat
				return
			}
		}
	})
	if out == nil {
		return nil, fmt.Errorf("failed to get seat: %w", ErrNotFound)
	}
	return out, nil
}

func (r *memReader) GetSeatByID(ctx context.Context, id uuid.UUID) (*models.Seat, error) {
	var out *models.Seat
	r.view(func(d *memData) {
		if seat, ok := d.seats[id]; ok {
			out = &seat
		}
	})
	if out == nil {
		return nil, fmt.Errorf("failed to get seat: %w", ErrNotFound)
	}
	return out, nil
}

func (r *memReader) ListSeats(ctx context.Context, scheduleID uuid.UUID) ([]models.Seat, error) {
	seats := []models.Seat{}
	r.view(func(d *memData) {
		for _, seat := range d.seats {
			if seat.ScheduleID == scheduleID {
				seats = append(seats, seat)
			}
		}
	})
	sortSeats(seats)
	return seats, nil
}

func (r *memReader) GetSeatsByNumbers(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string) ([]models.Seat, error) {
	wanted := make(map[string]bool, len(seatNumbers))
	for _, n := range seatNumbers {
		wanted[n] = true
	}
	seats := []models.Seat{}
	r.view(func(d *memData) {
		for _, seat := range d.seats {
			if seat.ScheduleID == scheduleID && wanted[seat.SeatNumber] {
				seats = append(seats, seat)
			}
		}
	})
	sortSeats(seats)
	return seats, nil
}

func (r *memReader) ListPendingReservations(ctx context.Context, seatIDs []uuid.UUID) ([]models.Reservation, error) {
	wanted := idSet(seatIDs)
	out := []models.Reservation{}
	r.view(func(d *memData) {
		for _, res := range d.reservations {
			if wanted[res.SeatID] && res.Status == models.ReservationStatusPending {
				out = append(out, res)
			}
		}
	})
	return out, nil
}

func (r *memReader) ListPendingReservationsBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]models.Reservation, error) {
	out := []models.Reservation{}
	r.view(func(d *memData) {
		for _, res := range d.reservations {
			if res.ScheduleID == scheduleID && res.Status == models.ReservationStatusPending {
				out = append(out, res)
			}
		}
	})
	return out, nil
}

func (r *memReader) GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var out *models.Reservation
	r.view(func(d *memData) {
		if res, ok := d.reservations[id]; ok {
			out = &res
		}
	})
	if out == nil {
		return nil, fmt.Errorf("failed to get reservation: %w", ErrNotFound)
	}
	return out, nil
}

func (r *memReader) ListActiveBookingsBySeats(ctx context.Context, seatIDs []uuid.UUID) ([]models.Booking, error) {
	wanted := idSet(seatIDs)
	out := []models.Booking{}
	r.view(func(d *memData) {
		for _, b := range d.bookings {
			if wanted[b.SeatID] && b.IsActive() {
				out = append(out, b)
			}
		}
	})
	return out, nil
}

func (r *memReader) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var out *models.Booking
	r.view(func(d *memData) {
		if b, ok := d.bookings[id]; ok {
			out = &b
		}
	})
	if out == nil {
		return nil, fmt.Errorf("failed to get booking: %w", ErrNotFound)
	}
	return out, nil
}

func (r *memReader) ListBookingsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Booking, error) {
	out := []models.Booking{}
	r.view(func(d *memData) {
		for _, b := range d.bookings {
			if b.OrderID == orderID {
				out = append(out, b)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out, nil
}

func (r *memReader) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var out *models.Order
	r.view(func(d *memData) {
		if o, ok := d.orders[id]; ok {
			out = &o
		}
	})
	if out == nil {
		return nil, fmt.Errorf("failed to get order: %w", ErrNotFound)
	}
	return out, nil
}

func (r *memReader) GetOrderByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	var out *models.Order
	r.view(func(d *memData) {
		for _, o := range d.orders {
			if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
				o := o
				out = &o
				return
			}
		}
	})
	if out == nil {
		return nil, fmt.Errorf("failed to get order: %w", ErrNotFound)
	}
	return out, nil
}

func (r *memReader) GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var out *models.Payment
	r.view(func(d *memData) {
		for _, p := range d.payments {
			if p.OrderID == orderID && (out == nil || p.CreatedAt.Before(out.CreatedAt)) {
				p := p
				out = &p
			}
		}
	})
	if out == nil {
		return nil, fmt.Errorf("failed to get payment: %w", ErrNotFound)
	}
	return out, nil
}

func (r *memReader) GetTicketByOrder(ctx context.Context, orderID uuid.UUID) (*models.Ticket, error) {
	var out *models.Ticket
	r.view(func(d *memData) {
		for _, t := range d.tickets {
			if t.OrderID == orderID {
				t := t
				out = &t
				return
			}
		}
	})
	if out == nil {
		return nil, fmt.Errorf("failed to get ticket: %w", ErrNotFound)
	}
	return out, nil
}

func (r *memReader) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var out *models.User
	r.view(func(d *memData) {
		if u, ok := d.users[id]; ok {
			out = &u
		}
	})
	if out == nil {
		return nil, fmt.Errorf("failed to get user: %w", ErrNotFound)
	}
	return out, nil
}

func (r *memReader) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var out *models.User
	r.view(func(d *memData) {
		for _, u := range d.users {
			if u.Phone == phone {
				u := u
				out = &u
				return
			}
		}
	})
	if out == nil {
		return nil, fmt.Errorf("failed to get user: %w", ErrNotFound)
	}
	return out, nil
}

// ============================================================================
// WRITES (unit of work only; the write lock is already held)
// ============================================================================

func (q *memQueries) d() *memData { return q.store.data }

func (q *memQueries) LockSeats(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string) ([]models.Seat, error) {
	return q.GetSeatsByNumbers(ctx, scheduleID, seatNumbers)
}

func (q *memQueries) MarkSeatBooked(ctx context.Context, seatID uuid.UUID) error {
	seat, ok := q.d().seats[seatID]
	if !ok {
		return fmt.Errorf("failed to mark seat booked: %w", ErrNotFound)
	}
	if seat.IsBooked {
		return fmt.Errorf("failed to mark seat booked: %w", &ConstraintError{Constraint: ConstraintSeatFlip})
	}
	seat.IsBooked = true
	seat.UpdatedAt = time.Now()
	q.d().seats[seatID] = seat
	return nil
}

func (q *memQueries) MarkSeatAvailable(ctx context.Context, seatID uuid.UUID) error {
	seat, ok := q.d().seats[seatID]
	if !ok {
		return fmt.Errorf("failed to mark seat available: %w", ErrNotFound)
	}
	seat.IsBooked = false
	seat.UpdatedAt = time.Now()
	q.d().seats[seatID] = seat
	return nil
}

func (q *memQueries) ReplaceSeats(ctx context.Context, scheduleID uuid.UUID, seatNumbers []string) ([]models.Seat, error) {
	d := q.d()
	for _, b := range d.bookings {
		if b.ScheduleID == scheduleID {
			return nil, ErrScheduleHasBookings
		}
	}
	for id, res := range d.reservations {
		if res.ScheduleID == scheduleID {
			delete(d.reservations, id)
		}
	}
	for id, seat := range d.seats {
		if seat.ScheduleID == scheduleID {
			delete(d.seats, id)
		}
	}
	return q.insertSeats(scheduleID, seatNumbers)
}

func (q *memQueries) insertSeats(scheduleID uuid.UUID, seatNumbers []string) ([]models.Seat, error) {
	d := q.d()
	existing := make(map[string]bool)
	for _, seat := range d.seats {
		if seat.ScheduleID == scheduleID {
			existing[seat.SeatNumber] = true
		}
	}
	seats := make([]models.Seat, 0, len(seatNumbers))
	for _, number := range seatNumbers {
		if existing[number] {
			return nil, fmt.Errorf("failed to insert seat: %w", &ConstraintError{Constraint: ConstraintSeatNumber})
		}
		existing[number] = true
		seat := models.Seat{ID: uuid.New(), ScheduleID: scheduleID, SeatNumber: number, UpdatedAt: time.Now()}
		d.seats[seat.ID] = seat
		seats = append(seats, seat)
	}
	return seats, nil
}

func (q *memQueries) ResetSeats(ctx context.Context, scheduleID uuid.UUID, all bool) (int64, error) {
	d := q.d()
	held := make(map[uuid.UUID]bool)
	if !all {
		for _, b := range d.bookings {
			if b.IsActive() {
				held[b.SeatID] = true
			}
		}
	}
	var n int64
	for id, seat := range d.seats {
		if seat.ScheduleID != scheduleID || !seat.IsBooked || held[id] {
			continue
		}
		seat.IsBooked = false
		seat.UpdatedAt = time.Now()
		d.seats[id] = seat
		n++
	}
	return n, nil
}

func (q *memQueries) CreateReservation(ctx context.Context, res *models.Reservation) error {
	d := q.d()
	for _, existing := range d.reservations {
		if existing.SeatID == res.SeatID && existing.Status == models.ReservationStatusPending {
			return fmt.Errorf("failed to create reservation: %w", &ConstraintError{Constraint: ConstraintPendingReservation})
		}
	}
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	res.CreatedAt = time.Now()
	res.UpdatedAt = res.CreatedAt
	d.reservations[res.ID] = *res
	return nil
}

func (q *memQueries) ExtendReservation(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	res, ok := q.d().reservations[id]
	if !ok || res.Status != models.ReservationStatusPending {
		return fmt.Errorf("failed to extend reservation: %w", ErrConflict)
	}
	res.ExpiresAt = expiresAt
	res.UpdatedAt = time.Now()
	q.d().reservations[id] = res
	return nil
}

func (q *memQueries) TransitionReservation(ctx context.Context, id uuid.UUID, from, to models.ReservationStatus) error {
	res, ok := q.d().reservations[id]
	if !ok || res.Status != from {
		return fmt.Errorf("failed to update reservation: %w", ErrConflict)
	}
	res.Status = to
	res.UpdatedAt = time.Now()
	q.d().reservations[id] = res
	return nil
}

func (q *memQueries) updateReservations(match func(models.Reservation) bool, to models.ReservationStatus) int64 {
	var n int64
	for id, res := range q.d().reservations {
		if res.Status == models.ReservationStatusPending && match(res) {
			res.Status = to
			res.UpdatedAt = time.Now()
			q.d().reservations[id] = res
			n++
		}
	}
	return n
}

func (q *memQueries) ExpireReservations(ctx context.Context, seatIDs []uuid.UUID, now time.Time) (int64, error) {
	wanted := idSet(seatIDs)
	return q.updateReservations(func(r models.Reservation) bool {
		return wanted[r.SeatID] && !r.ExpiresAt.After(now)
	}, models.ReservationStatusExpired), nil
}

func (q *memQueries) ExpireStaleReservations(ctx context.Context, scheduleID uuid.UUID, now time.Time) (int64, error) {
	return q.updateReservations(func(r models.Reservation) bool {
		return r.ScheduleID == scheduleID && !r.ExpiresAt.After(now)
	}, models.ReservationStatusExpired), nil
}

func (q *memQueries) ConfirmReservations(ctx context.Context, seatIDs []uuid.UUID, userID uuid.UUID, now time.Time) (int64, error) {
	wanted := idSet(seatIDs)
	return q.updateReservations(func(r models.Reservation) bool {
		return wanted[r.SeatID] && r.UserID == userID && r.ExpiresAt.After(now)
	}, models.ReservationStatusConfirmed), nil
}

func (q *memQueries) CancelPendingReservations(ctx context.Context, seatID uuid.UUID) (int64, error) {
	return q.updateReservations(func(r models.Reservation) bool {
		return r.SeatID == seatID
	}, models.ReservationStatusCancelled), nil
}

func (q *memQueries) CreateOrder(ctx context.Context, o *models.Order) error {
	d := q.d()
	if o.IdempotencyKey != nil {
		for _, existing := range d.orders {
			if existing.UserID == o.UserID && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *o.IdempotencyKey {
				return fmt.Errorf("failed to create order: %w", &ConstraintError{Constraint: ConstraintOrderIdempotency})
			}
		}
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	d.orders[o.ID] = *o
	return nil
}

func (q *memQueries) UpdateOrderTotal(ctx context.Context, orderID uuid.UUID, total float64) error {
	o, ok := q.d().orders[orderID]
	if !ok {
		return fmt.Errorf("failed to update order total: %w", ErrNotFound)
	}
	o.TotalAmount = total
	o.UpdatedAt = time.Now()
	q.d().orders[orderID] = o
	return nil
}

// DeleteOrder mirrors the ON DELETE CASCADE of bookings, payments and tickets
func (q *memQueries) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	d := q.d()
	if _, ok := d.orders[orderID]; !ok {
		return fmt.Errorf("failed to delete order: %w", ErrNotFound)
	}
	delete(d.orders, orderID)
	for id, b := range d.bookings {
		if b.OrderID == orderID {
			delete(d.bookings, id)
		}
	}
	for id, p := range d.payments {
		if p.OrderID == orderID {
			delete(d.payments, id)
		}
	}
	for id, t := range d.tickets {
		if t.OrderID == orderID {
			delete(d.tickets, id)
		}
	}
	return nil
}

func (q *memQueries) CreateBookings(ctx context.Context, bookings []*models.Booking) error {
	d := q.d()
	active := make(map[uuid.UUID]bool)
	for _, b := range d.bookings {
		if b.IsActive() {
			active[b.SeatID] = true
		}
	}
	now := time.Now()
	for _, b := range bookings {
		if b.IsActive() && active[b.SeatID] {
			return fmt.Errorf("failed to create bookings: %w", &ConstraintError{Constraint: ConstraintActiveBookingSeat})
		}
		active[b.SeatID] = true
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
			b.UpdatedAt = now
		}
		d.bookings[b.ID] = *b
	}
	return nil
}

func (q *memQueries) CancelBooking(ctx context.Context, b *models.Booking) error {
	existing, ok := q.d().bookings[b.ID]
	if !ok || existing.Status != models.BookingStatusBooked {
		return fmt.Errorf("failed to cancel booking: %w", ErrConflict)
	}
	existing.Status = models.BookingStatusCancelled
	existing.CancellationFee = b.CancellationFee
	existing.RefundedAmount = b.RefundedAmount
	existing.CancelledAt = b.CancelledAt
	existing.CancelledBy = b.CancelledBy
	existing.UpdatedAt = time.Now()
	q.d().bookings[b.ID] = existing
	return nil
}

func (q *memQueries) TransitionBooking(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) error {
	b, ok := q.d().bookings[id]
	if !ok || b.Status != from {
		return fmt.Errorf("failed to update booking status: %w", ErrConflict)
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	q.d().bookings[id] = b
	return nil
}

func (q *memQueries) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	d := q.d()
	if _, ok := d.bookings[id]; !ok {
		return fmt.Errorf("failed to delete booking: %w", ErrNotFound)
	}
	delete(d.bookings, id)
	for pid, p := range d.payments {
		if p.BookingID == id {
			delete(d.payments, pid)
		}
	}
	return nil
}

func (q *memQueries) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	q.d().payments[p.ID] = *p
	return nil
}

func (q *memQueries) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status models.PaymentStatus) (int64, error) {
	var n int64
	for id, p := range q.d().payments {
		if p.OrderID == orderID {
			p.Status = status
			p.UpdatedAt = time.Now()
			q.d().payments[id] = p
			n++
		}
	}
	return n, nil
}

func (q *memQueries) DeletePaymentsByBooking(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	var n int64
	for id, p := range q.d().payments {
		if p.BookingID == bookingID {
			delete(q.d().payments, id)
			n++
		}
	}
	return n, nil
}

func (q *memQueries) CreateTicket(ctx context.Context, t *models.Ticket) error {
	d := q.d()
	for _, existing := range d.tickets {
		if existing.TicketNumber == t.TicketNumber {
			return fmt.Errorf("failed to create ticket: %w", &ConstraintError{Constraint: ConstraintTicketNumber})
		}
		if existing.OrderID == t.OrderID {
			return fmt.Errorf("failed to create ticket: %w", &ConstraintError{Constraint: "tickets_order_id_key"})
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	d.tickets[t.ID] = *t
	return nil
}

func (q *memQueries) UpdateTicketQR(ctx context.Context, ticketID uuid.UUID, qrCode, payload string) error {
	t, ok := q.d().tickets[ticketID]
	if !ok {
		return fmt.Errorf("failed to update ticket: %w", ErrNotFound)
	}
	t.QRCode = qrCode
	t.QRPayload = payload
	t.UpdatedAt = time.Now()
	q.d().tickets[ticketID] = t
	return nil
}

func (q *memQueries) DeleteTicketByOrder(ctx context.Context, orderID uuid.UUID) error {
	for id, t := range q.d().tickets {
		if t.OrderID == orderID {
			delete(q.d().tickets, id)
		}
	}
	return nil
}

func (q *memQueries) CreateUser(ctx context.Context, u *models.User) error {
	d := q.d()
	for _, existing := range d.users {
		if existing.Phone == u.Phone {
			return fmt.Errorf("failed to create user: %w", &ConstraintError{Constraint: ConstraintUserPhone})
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = models.RoleCustomer
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	d.users[u.ID] = *u
	return nil
}

func (q *memQueries) DeleteOrphanedBookings(ctx context.Context, scheduleID uuid.UUID) (OrphanCleanup, error) {
	var result OrphanCleanup
	d := q.d()
	orders := make(map[uuid.UUID]bool)
	for id, b := range d.bookings {
		if b.ScheduleID != scheduleID || !b.IsActive() {
			continue
		}
		if seat, ok := d.seats[b.SeatID]; ok && seat.IsBooked {
			continue
		}
		for pid, p := range d.payments {
			if p.BookingID == id {
				delete(d.payments, pid)
				result.PaymentsDeleted++
			}
		}
		delete(d.bookings, id)
		result.BookingsDeleted++
		orders[b.OrderID] = true
	}
	for orderID := range orders {
		empty := true
		for _, b := range d.bookings {
			if b.OrderID == orderID {
				empty = false
				break
			}
		}
		if empty {
			if err := q.DeleteOrder(ctx, orderID); err == nil {
				result.OrdersDeleted++
			}
		}
	}
	return result, nil
}

func sortSeats(seats []models.Seat) {
	sort.Slice(seats, func(i, j int) bool { return seats[i].SeatNumber < seats[j].SeatNumber })
}

func idSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
