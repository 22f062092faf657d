package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/smarttransit/seat-booking-core/internal/middleware"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// Handlers groups the HTTP handlers of the booking API
type Handlers struct {
	Seats        *SeatHandler
	Bookings     *BookingHandler
	Reservations *ReservationHandler
	Tickets      *TicketHandler
}

// RegisterRoutes mounts the booking API on v1. auth must set the user context;
// the middlewares in extra run after it, so rate limits can key by user.
func RegisterRoutes(v1 *gin.RouterGroup, h Handlers, auth gin.HandlerFunc, extra ...gin.HandlerFunc) {
	protected := v1.Group("")
	protected.Use(auth)
	protected.Use(extra...)
	{
		protected.GET("/schedules/:id/seats", h.Seats.GetSeats)
		protected.POST("/schedules/:id/bookings", h.Bookings.BookSeats)
		protected.POST("/schedules/:id/reservations", h.Reservations.CreateReservation)

		protected.GET("/reservations/:id", h.Reservations.GetReservation)
		protected.DELETE("/reservations/:id", h.Reservations.CancelReservation)

		protected.POST("/bookings/:id/cancel", h.Bookings.CancelBooking)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin, models.RoleStaff))
	{
		admin.POST("/schedules/:id/bookings", h.Bookings.AdminBookSeats)
		admin.PUT("/schedules/:id/seats", h.Seats.RegenerateSeats)
		admin.POST("/schedules/:id/cleanup-orphans", h.Bookings.CleanupOrphans)
		// reset-seats frees only seats without an active booking unless the body sets "all"
		admin.POST("/schedules/:id/reset-seats", h.Bookings.ResetSeats)

		admin.POST("/bookings/:id/cancel", h.Bookings.AdminCancelBooking)
		admin.POST("/bookings/:id/complete", h.Bookings.CompleteBooking)
		admin.DELETE("/bookings/:id", h.Bookings.RemoveSeat)

		admin.POST("/tickets/verify", h.Tickets.VerifyTicket)
	}
}
