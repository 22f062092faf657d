package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/services"
)

// ReservationHandler handles seat hold endpoints
type ReservationHandler struct {
	reservations *services.ReservationService
	logger       *logrus.Logger
}

// NewReservationHandler creates a new ReservationHandler
func NewReservationHandler(reservations *services.ReservationService, logger *logrus.Logger) *ReservationHandler {
	return &ReservationHandler{reservations: reservations, logger: logger}
}

// CreateReservationBody is the hold request. TTLSeconds zero uses the configured default.
type CreateReservationBody struct {
	SeatNumber string `json:"seat_number" binding:"required"`
	TTLSeconds int    `json:"ttl_seconds" binding:"omitempty,min=30,max=3600"`
}

// CreateReservation holds a seat for the caller
// POST /api/v1/schedules/:id/reservations
func (h *ReservationHandler) CreateReservation(c *gin.Context) {
	userCtx, ok := caller(c)
	if !ok {
		return
	}
	scheduleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var body CreateReservationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	reservation, err := h.reservations.CreateReservation(
		c.Request.Context(),
		scheduleID,
		body.SeatNumber,
		userCtx.UserID,
		time.Duration(body.TTLSeconds)*time.Second,
	)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, reservation)
}

// GetReservation returns a hold owned by the caller
// GET /api/v1/reservations/:id
func (h *ReservationHandler) GetReservation(c *gin.Context) {
	userCtx, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	reservation, err := h.reservations.GetReservation(c.Request.Context(), id, userCtx.Actor())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

// CancelReservation releases a hold
// DELETE /api/v1/reservations/:id
func (h *ReservationHandler) CancelReservation(c *gin.Context) {
	userCtx, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.reservations.CancelReservation(c.Request.Context(), id, userCtx.Actor()); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
