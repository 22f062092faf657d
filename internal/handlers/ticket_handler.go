package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/services"
)

// TicketHandler handles ticket scanning
type TicketHandler struct {
	tickets *services.TicketService
	logger  *logrus.Logger
}

// NewTicketHandler creates a new TicketHandler
func NewTicketHandler(tickets *services.TicketService, logger *logrus.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, logger: logger}
}

// VerifyTicketBody carries the raw text decoded from a ticket QR code
type VerifyTicketBody struct {
	Payload string `json:"payload" binding:"required"`
}

// VerifyTicket checks the signature of a scanned ticket and returns its contents
// POST /api/v1/admin/tickets/verify
func (h *TicketHandler) VerifyTicket(c *gin.Context) {
	var body VerifyTicketBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	payload, err := h.tickets.Verify([]byte(body.Payload))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "ticket": payload})
}
