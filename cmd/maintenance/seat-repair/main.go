package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/config"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/services"
	flag "github.com/spf13/pflag"
)

func main() {
	var (
		dbURLFlag  string
		scheduleID string
		resetAll   bool
		skipClean  bool
		timeout    time.Duration
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVarP(&scheduleID, "schedule", "s", "", "schedule id to repair (required)")
	flag.BoolVar(&resetAll, "all", false, "free every booked seat; by default seats with an active booking are kept")
	flag.BoolVar(&skipClean, "reset-only", false, "skip orphan cleanup and only reset seat flags")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	id, err := uuid.Parse(scheduleID)
	if err != nil {
		fmt.Fprintln(os.Stderr, red("--schedule must be a valid UUID"))
		flag.Usage()
		os.Exit(2)
	}

	// .env is optional; keeps secrets off the command line
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, red("DATABASE_URL is not set and --database-url was not provided"))
		os.Exit(1)
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, red(fmt.Sprintf("failed to connect to database: %v", err)))
		os.Exit(1)
	}
	store := database.NewPostgresStore(db)
	defer store.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	settings := services.DefaultBookingSettings()
	if cfg, err := config.Load(); err == nil {
		settings = services.NewBookingSettings(cfg.Booking)
	}
	audit := services.NewAuditService(store, logger)
	cancellations := services.NewCancellationService(store, nil, nil, nil, audit, settings, logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fmt.Printf("Repairing seat inventory for schedule %s\n", bold(id))

	if !skipClean {
		res, err := cancellations.CleanupOrphanedBookings(ctx, id, models.SystemActor)
		if err != nil {
			fmt.Fprintln(os.Stderr, red(fmt.Sprintf("orphan cleanup failed: %v", err)))
			os.Exit(1)
		}
		fmt.Println("Orphan cleanup:")
		fmt.Printf("  bookings deleted:     %d\n", res.BookingsDeleted)
		fmt.Printf("  payments deleted:     %d\n", res.PaymentsDeleted)
		fmt.Printf("  orders deleted:       %d\n", res.OrdersDeleted)
		fmt.Printf("  reservations expired: %d\n", res.ReservationsExpired)
	}

	n, err := cancellations.ResetSeatStatus(ctx, id, services.ResetOptions{All: resetAll}, models.SystemActor)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(fmt.Sprintf("seat reset failed: %v", err)))
		os.Exit(1)
	}
	fmt.Printf("Seats reset: %d\n", n)
	fmt.Println(green("Seat inventory repaired."))
}
