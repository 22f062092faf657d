package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/smarttransit/seat-booking-core/internal/cache"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/events"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ticketNumberPattern = regexp.MustCompile(`^EB-20250310-[A-Z2-9]{5}$`)

func TestBookSeats_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	details, err := env.coordinator.BookSeats(ctx, BookSeatsRequest{
		ScheduleID:  env.schedule.ID,
		SeatNumbers: []string{"1B", "1A"},
		Booker:      actorOf(env.customer),
	})
	require.NoError(t, err)

	assert.Equal(t, env.customer.ID, details.Order.UserID)
	assert.Equal(t, 2000.0, details.Order.TotalAmount)
	assert.Equal(t, []string{"1A", "1B"}, details.SeatNumbers())
	assert.Nil(t, details.Payment, "customer bookings without payment details leave payment pending elsewhere")
	assert.Regexp(t, ticketNumberPattern, details.Ticket.TicketNumber)

	for _, b := range details.Bookings {
		assert.Equal(t, models.BookingStatusBooked, b.Status)
		assert.Equal(t, "Nimal Perera", b.Passenger.Name)
		assert.Equal(t, "0771234567", b.Passenger.Phone)
		assert.Equal(t, 1000.0, b.Fare)
	}

	assert.True(t, env.seat(t, "1A").IsBooked)
	assert.True(t, env.seat(t, "1B").IsBooked)
	assert.False(t, env.seat(t, "1C").IsBooked)

	t.Run("ticket QR rendered after commit", func(t *testing.T) {
		ticket, err := env.store.GetTicketByOrder(ctx, details.Order.ID)
		require.NoError(t, err)
		require.NotEmpty(t, ticket.QRPayload)
		assert.Equal(t, "qr:"+ticket.QRPayload, ticket.QRCode)

		payload, err := env.tickets.Verify([]byte(ticket.QRPayload))
		require.NoError(t, err)
		assert.Equal(t, []string{"1A", "1B"}, payload.Seats)
		assert.Equal(t, details.Ticket.TicketNumber, payload.TicketNumber)
	})

	t.Run("side effects dispatched", func(t *testing.T) {
		require.Len(t, env.notifier.tickets, 1)
		assert.Equal(t, details.Ticket.TicketNumber, env.notifier.tickets[0].TicketNumber)
		assert.Empty(t, env.publisher.events)

		logs := env.store.AuditLogs()
		require.Len(t, logs, 1)
		assert.Equal(t, AuditBookingCreate, logs[0].Action)
		assert.Equal(t, details.Order.ID, *logs[0].EntityID)
	})
}

func TestBookSeats_WithPaymentPublishesPendingEvent(t *testing.T) {
	env := newTestEnv(t)

	details, err := env.coordinator.BookSeats(context.Background(), BookSeatsRequest{
		ScheduleID:  env.schedule.ID,
		SeatNumbers: []string{"1C", "1D"},
		Booker:      actorOf(env.customer),
		Payment:     &PaymentRequest{Method: "CARD"},
		Passengers: []models.Passenger{
			{Name: "Kamal", Phone: "0771111111"},
			{Name: "Sunil", Phone: "0772222222"},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, details.Payment)
	assert.Equal(t, models.PaymentStatusPending, details.Payment.Status)
	assert.Equal(t, 2000.0, details.Payment.Amount)
	assert.Equal(t, "LKR", details.Payment.Currency)
	assert.Equal(t, details.Bookings[0].ID, details.Payment.BookingID)

	assert.Equal(t, "Kamal", details.Bookings[0].Passenger.Name)
	assert.Equal(t, "1C", details.Bookings[0].SeatNumber)
	assert.Equal(t, "Sunil", details.Bookings[1].Passenger.Name)

	assert.Equal(t, []string{events.PaymentPending}, env.publisher.types())
}

func TestBookSeats_AllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.book(t, env.other, "1B")

	_, err := env.coordinator.BookSeats(ctx, BookSeatsRequest{
		ScheduleID:  env.schedule.ID,
		SeatNumbers: []string{"1A", "1B"},
		Booker:      actorOf(env.customer),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSeatAlreadyBooked)

	var be *BookingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, []string{"1B"}, be.Seats)

	assert.False(t, env.seat(t, "1A").IsBooked, "no partial claim survives a failed booking")
	assert.Equal(t, 0, env.orderCount(t, env.customer))
}

func TestBookSeats_ConcurrentOverlappingRequests(t *testing.T) {
	for i := 0; i < 20; i++ {
		env := newTestEnv(t)
		ctx := context.Background()

		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			results = make([]error, 2)
			orders  = make([]*models.OrderDetails, 2)
		)
		requests := []BookSeatsRequest{
			{ScheduleID: env.schedule.ID, SeatNumbers: []string{"1A", "1B"}, Booker: actorOf(env.customer)},
			{ScheduleID: env.schedule.ID, SeatNumbers: []string{"1B", "1C"}, Booker: actorOf(env.other)},
		}
		for j := range requests {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				<-start
				orders[j], results[j] = env.coordinator.BookSeats(ctx, requests[j])
			}(j)
		}
		close(start)
		wg.Wait()

		successes := 0
		for j, err := range results {
			if err == nil {
				successes++
				continue
			}
			assert.True(t, SeatUnavailable(err), "loser %d must see a seat conflict, got %v", j, err)
		}
		require.Equal(t, 1, successes, "exactly one overlapping request wins")

		winner := 0
		if results[0] != nil {
			winner = 1
		}
		for _, n := range requests[winner].SeatNumbers {
			assert.True(t, env.seat(t, n).IsBooked)
		}
		loser := requests[1-winner].SeatNumbers
		for _, n := range loser {
			if n != "1B" {
				assert.False(t, env.seat(t, n).IsBooked, "loser's non-overlapping seat %s must stay free", n)
			}
		}
		assert.False(t, env.seat(t, "1D").IsBooked)
		assert.NotNil(t, orders[winner])
	}
}

func TestBookSeats_ManyRequestsForOneSeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	users := make([]models.User, workers)
	for i := range users {
		u, err := env.store.AddUser(models.User{Phone: "07000000" + string(rune('0'+i)) + "0"})
		require.NoError(t, err)
		users[i] = u
	}

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(u models.User) {
			defer wg.Done()
			<-start
			_, err := env.coordinator.BookSeats(ctx, BookSeatsRequest{
				ScheduleID:  env.schedule.ID,
				SeatNumbers: []string{"1A"},
				Booker:      actorOf(u),
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.True(t, SeatUnavailable(err), "unexpected error: %v", err)
			}
		}(users[i])
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	active, err := env.store.ListActiveBookingsBySeats(ctx, []uuid.UUID{env.seats["1A"].ID})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestBookSeats_Reservations(t *testing.T) {
	t.Run("another user's live hold blocks", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		_, err := env.reservations.CreateReservation(ctx, env.schedule.ID, "1A", env.other.ID, 0)
		require.NoError(t, err)

		_, err = env.coordinator.BookSeats(ctx, BookSeatsRequest{
			ScheduleID:  env.schedule.ID,
			SeatNumbers: []string{"1A"},
			Booker:      actorOf(env.customer),
		})
		assert.ErrorIs(t, err, ErrSeatReserved)
		assert.False(t, env.seat(t, "1A").IsBooked)
	})

	t.Run("expired hold no longer blocks", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		_, err := env.reservations.CreateReservation(ctx, env.schedule.ID, "1A", env.other.ID, 5*time.Minute)
		require.NoError(t, err)

		env.clock.Advance(5 * time.Minute)

		details := env.book(t, env.customer, "1A")
		assert.Equal(t, []string{"1A"}, details.SeatNumbers())
	})

	t.Run("own hold is confirmed by the booking", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		res, err := env.reservations.CreateReservation(ctx, env.schedule.ID, "1A", env.customer.ID, 0)
		require.NoError(t, err)

		env.book(t, env.customer, "1A")

		stored, err := env.store.GetReservation(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReservationStatusConfirmed, stored.Status)
	})
}

func TestBookSeats_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.book(t, env.customer, "1A")
	_, err := env.cancellations.CancelBooking(ctx, first.Bookings[0].ID, actorOf(env.customer))
	require.NoError(t, err)
	assert.False(t, env.seat(t, "1A").IsBooked)

	second := env.book(t, env.other, "1A")
	assert.Equal(t, env.other.ID, second.Order.UserID)
	assert.True(t, env.seat(t, "1A").IsBooked)
}

func TestBookSeats_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = string(rune('A'+i)) + "1"
	}

	tests := []struct {
		name string
		req  BookSeatsRequest
		kind *BookingError
	}{
		{name: "no seats", req: BookSeatsRequest{ScheduleID: env.schedule.ID, Booker: actorOf(env.customer)}, kind: ErrInvalidRequest},
		{name: "duplicate seats", req: BookSeatsRequest{ScheduleID: env.schedule.ID, SeatNumbers: []string{"1A", "1A"}, Booker: actorOf(env.customer)}, kind: ErrInvalidRequest},
		{name: "too many seats", req: BookSeatsRequest{ScheduleID: env.schedule.ID, SeatNumbers: tooMany, Booker: actorOf(env.customer)}, kind: ErrInvalidRequest},
		{name: "missing booker", req: BookSeatsRequest{ScheduleID: env.schedule.ID, SeatNumbers: []string{"1A"}}, kind: ErrInvalidRequest},
		{name: "unknown schedule", req: BookSeatsRequest{ScheduleID: uuid.New(), SeatNumbers: []string{"1A"}, Booker: actorOf(env.customer)}, kind: ErrNotFound},
		{name: "unknown seat", req: BookSeatsRequest{ScheduleID: env.schedule.ID, SeatNumbers: []string{"1A", "9Z"}, Booker: actorOf(env.customer)}, kind: ErrNotFound},
		{name: "passenger count mismatch", req: BookSeatsRequest{
			ScheduleID:  env.schedule.ID,
			SeatNumbers: []string{"1A", "1B", "1C"},
			Booker:      actorOf(env.customer),
			Passengers:  []models.Passenger{{Name: "A", Phone: "1"}, {Name: "B", Phone: "2"}},
		}, kind: ErrInvalidRequest},
		{name: "payment without method", req: BookSeatsRequest{
			ScheduleID:  env.schedule.ID,
			SeatNumbers: []string{"1A"},
			Booker:      actorOf(env.customer),
			Payment:     &PaymentRequest{},
		}, kind: ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.coordinator.BookSeats(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	for _, n := range []string{"1A", "1B", "1C", "1D"} {
		assert.False(t, env.seat(t, n).IsBooked)
	}
}

func TestBookSeats_Idempotency(t *testing.T) {
	t.Run("replayed key returns the committed order", func(t *testing.T) {
		env := newTestEnv(t)
		req := BookSeatsRequest{
			ScheduleID:     env.schedule.ID,
			SeatNumbers:    []string{"1A"},
			Booker:         actorOf(env.customer),
			IdempotencyKey: "checkout-42",
		}

		first, err := env.coordinator.BookSeats(context.Background(), req)
		require.NoError(t, err)
		second, err := env.coordinator.BookSeats(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, first.Order.ID, second.Order.ID)
		assert.Equal(t, first.Ticket.TicketNumber, second.Ticket.TicketNumber)
		assert.Len(t, env.notifier.tickets, 1, "a replay has no side effects")
	})

	t.Run("in-flight key is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		guard := cache.NewIdempotencyGuard(client, time.Minute)
		env.coordinator.guard = guard

		_, ok, err := guard.Acquire(context.Background(), env.customer.ID, "checkout-7")
		require.NoError(t, err)
		require.True(t, ok)

		_, err = env.coordinator.BookSeats(context.Background(), BookSeatsRequest{
			ScheduleID:     env.schedule.ID,
			SeatNumbers:    []string{"1A"},
			Booker:         actorOf(env.customer),
			IdempotencyKey: "checkout-7",
		})
		assert.ErrorIs(t, err, ErrDuplicateRequest)
		assert.False(t, env.seat(t, "1A").IsBooked)
	})
}

func TestBookSeats_TicketNumberCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.tickets.nextNumber = func(time.Time) (string, error) { return "EB-20250310-AAAAA", nil }
	env.book(t, env.other, "1D")

	t.Run("retried with a fresh number", func(t *testing.T) {
		numbers := []string{"EB-20250310-AAAAA", "EB-20250310-AAAAA", "EB-20250310-BBBBB"}
		call := 0
		env.tickets.nextNumber = func(time.Time) (string, error) {
			n := numbers[call]
			call++
			return n, nil
		}

		details := env.book(t, env.customer, "1A")
		assert.Equal(t, "EB-20250310-BBBBB", details.Ticket.TicketNumber)
		assert.Equal(t, 3, call)
	})

	t.Run("gives up after three collisions", func(t *testing.T) {
		env.tickets.nextNumber = func(time.Time) (string, error) { return "EB-20250310-AAAAA", nil }

		_, err := env.coordinator.BookSeats(ctx, BookSeatsRequest{
			ScheduleID:  env.schedule.ID,
			SeatNumbers: []string{"1B"},
			Booker:      actorOf(env.customer),
		})
		require.Error(t, err)
		assert.False(t, SeatUnavailable(err))
		assert.False(t, env.seat(t, "1B").IsBooked)
	})
}

type timeoutStore struct {
	*database.MemoryStore
}

func (s timeoutStore) WithTx(ctx context.Context, fn func(q database.Queries) error) error {
	return database.ErrTxTimeout
}

func TestBookSeats_TransactionTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.coordinator.store = timeoutStore{env.store}

	_, err := env.coordinator.BookSeats(context.Background(), BookSeatsRequest{
		ScheduleID:  env.schedule.ID,
		SeatNumbers: []string{"1A"},
		Booker:      actorOf(env.customer),
	})
	assert.ErrorIs(t, err, ErrTransactionTimeout)
	assert.False(t, env.seat(t, "1A").IsBooked)
}

// hookedStore runs a competing action once, just before the first matching call
type hookedStore struct {
	*database.MemoryStore
	beforeTx      func()
	beforePending func()
}

func (s *hookedStore) WithTx(ctx context.Context, fn func(q database.Queries) error) error {
	if hook := s.beforeTx; hook != nil {
		s.beforeTx = nil
		hook()
	}
	return s.MemoryStore.WithTx(ctx, fn)
}

func (s *hookedStore) ListPendingReservations(ctx context.Context, seatIDs []uuid.UUID) ([]models.Reservation, error) {
	if hook := s.beforePending; hook != nil {
		s.beforePending = nil
		hook()
	}
	return s.MemoryStore.ListPendingReservations(ctx, seatIDs)
}

func TestBookSeats_LosesRaceAfterPreValidation(t *testing.T) {
	env := newTestEnv(t)

	// The competing order commits between the snapshot checks and the claim
	loser := *env.coordinator
	loser.store = &hookedStore{
		MemoryStore: env.store,
		beforePending: func() {
			env.book(t, env.other, "1B", "1C")
		},
	}

	_, err := loser.BookSeats(context.Background(), BookSeatsRequest{
		ScheduleID:  env.schedule.ID,
		SeatNumbers: []string{"1A", "1B"},
		Booker:      actorOf(env.customer),
	})
	require.ErrorIs(t, err, ErrSeatNoLongerAvailable)
	var be *BookingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, []string{"1B"}, be.Seats)

	assert.False(t, env.seat(t, "1A").IsBooked)
	assert.Equal(t, 0, env.orderCount(t, env.customer))
	assert.Equal(t, 1, env.orderCount(t, env.other))
}

type conflictingQueries struct {
	database.Queries
}

func (q conflictingQueries) CreateBookings(ctx context.Context, bookings []*models.Booking) error {
	return fmt.Errorf("create bookings: %w", &database.ConstraintError{Constraint: database.ConstraintActiveBookingSeat})
}

type conflictingStore struct {
	*database.MemoryStore
}

func (s conflictingStore) WithTx(ctx context.Context, fn func(q database.Queries) error) error {
	return s.MemoryStore.WithTx(ctx, func(q database.Queries) error {
		return fn(conflictingQueries{q})
	})
}

func TestBookSeats_ActiveBookingConstraintMeansNoLongerAvailable(t *testing.T) {
	env := newTestEnv(t)
	env.coordinator.store = conflictingStore{env.store}

	_, err := env.coordinator.BookSeats(context.Background(), BookSeatsRequest{
		ScheduleID:  env.schedule.ID,
		SeatNumbers: []string{"1A"},
		Booker:      actorOf(env.customer),
	})
	assert.ErrorIs(t, err, ErrSeatNoLongerAvailable)
	assert.False(t, env.seat(t, "1A").IsBooked)
}

func TestBookSeats_SideEffectFailuresDoNotFailBooking(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("mailer down")
	env.publisher.err = errors.New("kafka down")

	details, err := env.coordinator.BookSeats(context.Background(), BookSeatsRequest{
		ScheduleID:  env.schedule.ID,
		SeatNumbers: []string{"1A"},
		Booker:      actorOf(env.customer),
		Payment:     &PaymentRequest{Method: "CARD"},
	})
	require.NoError(t, err)
	assert.True(t, env.seat(t, "1A").IsBooked)
	assert.NotEmpty(t, details.Ticket.QRCode)
}

func TestBookSeatsForUser(t *testing.T) {
	t.Run("creates the passenger account and completes payment", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()

		details, err := env.coordinator.BookSeatsForUser(ctx, AdminBookSeatsRequest{
			ScheduleID:  env.schedule.ID,
			SeatNumbers: []string{"1A", "1B"},
			Phone:       "078 555 1234",
			Name:        "Ruwan",
			Actor:       env.admin,
		})
		require.NoError(t, err)

		user, err := env.store.GetUserByPhone(ctx, "0785551234")
		require.NoError(t, err)
		assert.Equal(t, user.ID, details.Order.UserID)
		require.NotNil(t, user.Name)
		assert.Equal(t, "Ruwan", *user.Name)

		require.NotNil(t, details.Payment)
		assert.Equal(t, models.PaymentStatusCompleted, details.Payment.Status)
		assert.Equal(t, "CASH", details.Payment.Method)
		assert.Equal(t, 2000.0, details.Payment.Amount)
		assert.Equal(t, "Ruwan", details.Bookings[1].Passenger.Name)
		assert.Equal(t, []string{events.PaymentCompleted}, env.publisher.types())

		logs := env.store.AuditLogs()
		require.NotEmpty(t, logs)
		assert.Equal(t, env.admin.UserID, *logs[len(logs)-1].UserID)
	})

	t.Run("reuses an existing account", func(t *testing.T) {
		env := newTestEnv(t)

		details, err := env.coordinator.BookSeatsForUser(context.Background(), AdminBookSeatsRequest{
			ScheduleID:    env.schedule.ID,
			SeatNumbers:   []string{"1C"},
			Phone:         "+94771234567",
			PaymentMethod: "CARD",
			Actor:         env.admin,
		})
		require.NoError(t, err)
		assert.Equal(t, env.customer.ID, details.Order.UserID)
		assert.Equal(t, "CARD", details.Payment.Method)
	})

	t.Run("customers cannot book for others", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.coordinator.BookSeatsForUser(context.Background(), AdminBookSeatsRequest{
			ScheduleID:  env.schedule.ID,
			SeatNumbers: []string{"1A"},
			Phone:       "0785551234",
			Actor:       actorOf(env.customer),
		})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("rejected booking leaves no account behind", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		env.book(t, env.other, "1A")

		_, err := env.coordinator.BookSeatsForUser(ctx, AdminBookSeatsRequest{
			ScheduleID:  env.schedule.ID,
			SeatNumbers: []string{"1A"},
			Phone:       "0785550000",
			Actor:       env.admin,
		})
		assert.ErrorIs(t, err, ErrSeatAlreadyBooked)
		_, err = env.store.GetUserByPhone(ctx, "0785550000")
		assert.ErrorIs(t, err, database.ErrNotFound)

		_, err = env.coordinator.BookSeatsForUser(ctx, AdminBookSeatsRequest{
			ScheduleID:  uuid.New(),
			SeatNumbers: []string{"1B"},
			Phone:       "0785550000",
			Actor:       env.admin,
		})
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = env.store.GetUserByPhone(ctx, "0785550000")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("account created concurrently is reused", func(t *testing.T) {
		env := newTestEnv(t)
		var created models.User
		env.coordinator.store = &hookedStore{
			MemoryStore: env.store,
			beforeTx: func() {
				var err error
				created, err = env.store.AddUser(models.User{Phone: "0785550000"})
				require.NoError(t, err)
			},
		}

		details, err := env.coordinator.BookSeatsForUser(context.Background(), AdminBookSeatsRequest{
			ScheduleID:  env.schedule.ID,
			SeatNumbers: []string{"1A"},
			Phone:       "0785550000",
			Actor:       env.admin,
		})
		require.NoError(t, err)
		assert.Equal(t, created.ID, details.Order.UserID)
		assert.True(t, env.seat(t, "1A").IsBooked)
	})

	t.Run("invalid phone", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.coordinator.BookSeatsForUser(context.Background(), AdminBookSeatsRequest{
			ScheduleID:  env.schedule.ID,
			SeatNumbers: []string{"1A"},
			Phone:       "12345",
			Actor:       env.admin,
		})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestTicketPayload_Tampering(t *testing.T) {
	env := newTestEnv(t)
	details := env.book(t, env.customer, "1A")

	ticket, err := env.store.GetTicketByOrder(context.Background(), details.Order.ID)
	require.NoError(t, err)

	var payload TicketPayload
	require.NoError(t, json.Unmarshal([]byte(ticket.QRPayload), &payload))
	payload.Seats = []string{"1A", "1B"}
	tampered, err := json.Marshal(payload)
	require.NoError(t, err)

	_, err = env.tickets.Verify(tampered)
	assert.Error(t, err)
}
