package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/middleware"
	"github.com/smarttransit/seat-booking-core/internal/services"
)

// SeatHandler handles seat map endpoints
type SeatHandler struct {
	seats  *services.SeatService
	logger *logrus.Logger
}

// NewSeatHandler creates a new SeatHandler
func NewSeatHandler(seats *services.SeatService, logger *logrus.Logger) *SeatHandler {
	return &SeatHandler{seats: seats, logger: logger}
}

// RegenerateSeatsBody replaces the seat map of a schedule
type RegenerateSeatsBody struct {
	SeatNumbers []string `json:"seat_numbers" binding:"required,min=1"`
}

// GetSeats returns the availability of every seat on a schedule
// GET /api/v1/schedules/:id/seats
func (h *SeatHandler) GetSeats(c *gin.Context) {
	scheduleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	viewer := uuid.Nil
	if userCtx, ok := middleware.GetUserContext(c); ok {
		viewer = userCtx.UserID
	}

	summary, err := h.seats.GetAvailability(c.Request.Context(), scheduleID, viewer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RegenerateSeats replaces the seat map of a schedule that has no bookings yet
// PUT /api/v1/admin/schedules/:id/seats
func (h *SeatHandler) RegenerateSeats(c *gin.Context) {
	userCtx, ok := caller(c)
	if !ok {
		return
	}
	scheduleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var body RegenerateSeatsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	seats, err := h.seats.RegenerateSeats(c.Request.Context(), scheduleID, body.SeatNumbers, userCtx.Actor())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule_id": scheduleID, "seats": seats})
}
