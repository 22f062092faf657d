package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/events"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/notify"
	"github.com/stretchr/testify/require"
)

var colombo = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Colombo")
	if err != nil {
		panic(err)
	}
	return loc
}()

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubRenderer echoes the payload so tests can inspect what was rendered
type stubRenderer struct{}

func (stubRenderer) Render(payload []byte) (string, error) {
	return "qr:" + string(payload), nil
}

type recordingNotifier struct {
	mu            sync.Mutex
	tickets       []notify.TicketNotification
	cancellations []notify.CancellationNotification
	err           error
}

func (n *recordingNotifier) SendTicket(ctx context.Context, t notify.TicketNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tickets = append(n.tickets, t)
	return n.err
}

func (n *recordingNotifier) SendCancellation(ctx context.Context, c notify.CancellationNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancellations = append(n.cancellations, c)
	return n.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.PaymentEvent
	err    error
}

func (p *recordingPublisher) PublishPaymentEvent(ctx context.Context, e *events.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type testEnv struct {
	store         *database.MemoryStore
	clock         *fakeClock
	schedule      models.Schedule
	seats         map[string]models.Seat
	customer      models.User
	other         models.User
	admin         models.Actor
	notifier      *recordingNotifier
	publisher     *recordingPublisher
	tickets       *TicketService
	seatService   *SeatService
	reservations  *ReservationService
	coordinator   *BookingCoordinator
	cancellations *CancellationService
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestEnv builds every service over one in-memory store. The clock reads
// 2025-03-10 09:00 in Colombo and the schedule departs 2025-03-15 08:00.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := database.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, colombo)}
	logger := testLogger()

	schedule := models.Schedule{
		ID:          uuid.New(),
		RouteID:     uuid.New(),
		RouteName:   "Colombo - Kandy",
		BusID:       uuid.New(),
		BusNumber:   "NB-1234",
		DepartureAt: time.Date(2025, 3, 15, 8, 0, 0, 0, colombo),
		Fare:        1000,
	}
	seatList, err := store.AddSchedule(schedule, "1A", "1B", "1C", "1D")
	require.NoError(t, err)
	seats := make(map[string]models.Seat, len(seatList))
	for _, seat := range seatList {
		seats[seat.SeatNumber] = seat
	}

	name := "Nimal Perera"
	customer, err := store.AddUser(models.User{Phone: "0771234567", Name: &name})
	require.NoError(t, err)
	other, err := store.AddUser(models.User{Phone: "0712345678"})
	require.NoError(t, err)
	admin, err := store.AddUser(models.User{Phone: "0759999999", Role: models.RoleAdmin})
	require.NoError(t, err)

	settings := BookingSettings{
		TxTimeout:          5 * time.Second,
		ReservationTTL:     10 * time.Minute,
		MaxSeatsPerRequest: 10,
		Location:           colombo,
		Currency:           "LKR",
	}

	notifier := &recordingNotifier{}
	publisher := &recordingPublisher{}
	audit := NewAuditService(store, logger)

	tickets := NewTicketService(stubRenderer{}, "test-signing-key", colombo)
	tickets.now = clock.Now

	seatService := NewSeatService(store, audit, settings, logger)
	seatService.now = clock.Now

	reservations := NewReservationService(store, audit, settings, logger)
	reservations.now = clock.Now

	coordinator := NewBookingCoordinator(store, tickets, notifier, publisher, audit, nil, settings, logger)
	coordinator.now = clock.Now

	cancellations := NewCancellationService(store, tickets, notifier, publisher, audit, settings, logger)
	cancellations.now = clock.Now

	return &testEnv{
		store:         store,
		clock:         clock,
		schedule:      schedule,
		seats:         seats,
		customer:      customer,
		other:         other,
		admin:         models.Actor{UserID: admin.ID, Role: models.RoleAdmin},
		notifier:      notifier,
		publisher:     publisher,
		tickets:       tickets,
		seatService:   seatService,
		reservations:  reservations,
		coordinator:   coordinator,
		cancellations: cancellations,
	}
}

func actorOf(u models.User) models.Actor {
	return models.Actor{UserID: u.ID, Role: u.Role}
}

func (e *testEnv) book(t *testing.T, user models.User, seats ...string) *models.OrderDetails {
	t.Helper()
	details, err := e.coordinator.BookSeats(context.Background(), BookSeatsRequest{
		ScheduleID:  e.schedule.ID,
		SeatNumbers: seats,
		Booker:      actorOf(user),
	})
	require.NoError(t, err)
	return details
}

func (e *testEnv) seat(t *testing.T, number string) models.Seat {
	t.Helper()
	seat, err := e.store.GetSeat(context.Background(), e.schedule.ID, number)
	require.NoError(t, err)
	return *seat
}

func (e *testEnv) orderCount(t *testing.T, user models.User) int {
	t.Helper()
	// orders are only reachable through bookings in the read API
	count := 0
	seen := map[uuid.UUID]bool{}
	for _, seat := range e.seats {
		bookings, err := e.store.ListActiveBookingsBySeats(context.Background(), []uuid.UUID{seat.ID})
		require.NoError(t, err)
		for _, b := range bookings {
			if b.UserID == user.ID && !seen[b.OrderID] {
				seen[b.OrderID] = true
				count++
			}
		}
	}
	return count
}
