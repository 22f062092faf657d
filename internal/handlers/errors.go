package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/middleware"
	"github.com/smarttransit/seat-booking-core/internal/services"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
	Seats   []string `json:"seats,omitempty"`
}

var kindStatus = map[services.ErrorKind]int{
	services.KindNotFound:              http.StatusNotFound,
	services.KindSeatAlreadyBooked:     http.StatusConflict,
	services.KindSeatReserved:          http.StatusConflict,
	services.KindSeatNoLongerAvailable: http.StatusConflict,
	services.KindForbidden:             http.StatusForbidden,
	services.KindSameDayCancellation:   http.StatusUnprocessableEntity,
	services.KindTransactionTimeout:    http.StatusServiceUnavailable,
	services.KindInvalidRequest:        http.StatusBadRequest,
	services.KindInvalidState:          http.StatusConflict,
	services.KindDuplicateRequest:      http.StatusConflict,
}

// StatusFor maps a booking error onto its HTTP status
func StatusFor(err error) int {
	var be *services.BookingError
	if errors.As(err, &be) {
		if status, ok := kindStatus[be.Kind]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes err as an ErrorResponse. Anything outside the booking
// taxonomy is logged and reported as an internal error without its message.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var be *services.BookingError
	if !errors.As(err, &be) {
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Something went wrong. Please try again.",
			Code:    "INTERNAL_ERROR",
		})
		return
	}

	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.Request.URL.Path).Warn("Booking operation failed")
	}
	c.JSON(status, ErrorResponse{
		Error:   strings.ToLower(string(be.Kind)),
		Message: be.Error(),
		Code:    string(be.Kind),
		Seats:   be.Seats,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: message,
		Code:    string(services.KindInvalidRequest),
	})
}

// pathUUID parses a uuid path parameter, writing a 400 on failure
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// caller returns the authenticated user, writing a 401 when AuthMiddleware did not run
func caller(c *gin.Context) (middleware.UserContext, bool) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "user not authenticated",
			Code:    "MISSING_USER_CONTEXT",
		})
	}
	return userCtx, ok
}
