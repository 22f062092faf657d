package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/services"
)

// IdempotencyHeader carries the client's retry key for booking requests
const IdempotencyHeader = "Idempotency-Key"

// BookingHandler handles booking, cancellation and seat repair endpoints
type BookingHandler struct {
	coordinator   *services.BookingCoordinator
	cancellations *services.CancellationService
	logger        *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(
	coordinator *services.BookingCoordinator,
	cancellations *services.CancellationService,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		coordinator:   coordinator,
		cancellations: cancellations,
		logger:        logger,
	}
}

// BookSeatsBody is the customer booking request
type BookSeatsBody struct {
	SeatNumbers    []string                 `json:"seat_numbers" binding:"required,min=1"`
	Passengers     []models.Passenger       `json:"passengers" binding:"omitempty,dive"`
	Payment        *services.PaymentRequest `json:"payment"`
	IdempotencyKey string                   `json:"idempotency_key"`
}

// AdminBookSeatsBody is the counter booking request made by staff for a passenger
type AdminBookSeatsBody struct {
	SeatNumbers    []string           `json:"seat_numbers" binding:"required,min=1"`
	Phone          string             `json:"phone" binding:"required"`
	Name           string             `json:"name"`
	Email          *string            `json:"email" binding:"omitempty,email"`
	Passengers     []models.Passenger `json:"passengers" binding:"omitempty,dive"`
	PaymentMethod  string             `json:"payment_method"`
	IdempotencyKey string             `json:"idempotency_key"`
}

// ResetSeatsBody controls POST /admin/schedules/:id/reset-seats
type ResetSeatsBody struct {
	All bool `json:"all"`
}

// ============================================================================
// CUSTOMER ENDPOINTS
// ============================================================================

// BookSeats books one or more seats for the caller
// POST /api/v1/schedules/:id/bookings
func (h *BookingHandler) BookSeats(c *gin.Context) {
	userCtx, ok := caller(c)
	if !ok {
		return
	}
	scheduleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var body BookSeatsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	details, err := h.coordinator.BookSeats(c.Request.Context(), services.BookSeatsRequest{
		ScheduleID:     scheduleID,
		SeatNumbers:    body.SeatNumbers,
		Booker:         userCtx.Actor(),
		Passengers:     body.Passengers,
		Payment:        body.Payment,
		IdempotencyKey: idempotencyKey(c, body.IdempotencyKey),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, details)
}

// CancelBooking cancels one booked seat of the caller
// POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, ok := caller(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	booking, err := h.cancellations.CancelBooking(c.Request.Context(), bookingID, userCtx.Actor())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// ADMIN ENDPOINTS
// ============================================================================

// AdminBookSeats books seats for a passenger identified by phone
// POST /api/v1/admin/schedules/:id/bookings
func (h *BookingHandler) AdminBookSeats(c *gin.Context) {
	userCtx, ok := caller(c)
	if !ok {
		return
	}
	scheduleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var body AdminBookSeatsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	details, err := h.coordinator.BookSeatsForUser(c.Request.Context(), services.AdminBookSeatsRequest{
		ScheduleID:     scheduleID,
		SeatNumbers:    body.SeatNumbers,
		Phone:          body.Phone,
		Name:           body.Name,
		Email:          body.Email,
		Passengers:     body.Passengers,
		PaymentMethod:  body.PaymentMethod,
		IdempotencyKey: idempotencyKey(c, body.IdempotencyKey),
		Actor:          userCtx.Actor(),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, details)
}

// AdminCancelBooking cancels regardless of the travel date and refunds the payment
// POST /api/v1/admin/bookings/:id/cancel
func (h *BookingHandler) AdminCancelBooking(c *gin.Context) {
	h.withBooking(c, func(ctx context.Context, bookingID uuid.UUID, actor models.Actor) (interface{}, error) {
		return h.cancellations.AdminCancelBooking(ctx, bookingID, actor)
	})
}

// CompleteBooking marks a booking as travelled
// POST /api/v1/admin/bookings/:id/complete
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	h.withBooking(c, func(ctx context.Context, bookingID uuid.UUID, actor models.Actor) (interface{}, error) {
		return h.cancellations.CompleteBooking(ctx, bookingID, actor)
	})
}

// RemoveSeat deletes one booking from its order
// DELETE /api/v1/admin/bookings/:id
func (h *BookingHandler) RemoveSeat(c *gin.Context) {
	h.withBooking(c, func(ctx context.Context, bookingID uuid.UUID, actor models.Actor) (interface{}, error) {
		return h.cancellations.RemoveSeatFromBooking(ctx, bookingID, actor)
	})
}

// CleanupOrphans removes bookings whose seat is no longer flagged booked
// POST /api/v1/admin/schedules/:id/cleanup-orphans
func (h *BookingHandler) CleanupOrphans(c *gin.Context) {
	userCtx, ok := caller(c)
	if !ok {
		return
	}
	scheduleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.cancellations.CleanupOrphanedBookings(c.Request.Context(), scheduleID, userCtx.Actor())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ResetSeats frees booked seats of a schedule. Without a body only seats that no
// active booking references are freed; {"all": true} frees every booked seat,
// for schedules whose bookings were purged.
// POST /api/v1/admin/schedules/:id/reset-seats
func (h *BookingHandler) ResetSeats(c *gin.Context) {
	userCtx, ok := caller(c)
	if !ok {
		return
	}
	scheduleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var body ResetSeatsBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request: "+err.Error())
			return
		}
	}

	reset, err := h.cancellations.ResetSeatStatus(c.Request.Context(), scheduleID, services.ResetOptions{All: body.All}, userCtx.Actor())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule_id": scheduleID, "seats_reset": reset})
}

// withBooking validates the caller and the :id parameter before running op
func (h *BookingHandler) withBooking(c *gin.Context, op func(ctx context.Context, bookingID uuid.UUID, actor models.Actor) (interface{}, error)) {
	userCtx, ok := caller(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := op(c.Request.Context(), bookingID, userCtx.Actor())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// idempotencyKey prefers the header over the body field
func idempotencyKey(c *gin.Context, fromBody string) string {
	if key := strings.TrimSpace(c.GetHeader(IdempotencyHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(fromBody)
}
