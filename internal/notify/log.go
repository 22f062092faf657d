package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogDispatcher writes notifications to the log. Used in development.
type LogDispatcher struct {
	logger *logrus.Logger
}

func NewLogDispatcher(logger *logrus.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) SendTicket(ctx context.Context, n TicketNotification) error {
	d.logger.WithFields(logrus.Fields{
		"order_id":      n.OrderID,
		"ticket_number": n.TicketNumber,
		"seats":         n.Seats,
		"phone":         n.Phone,
	}).Info("Ticket notification")
	return nil
}

func (d *LogDispatcher) SendCancellation(ctx context.Context, n CancellationNotification) error {
	d.logger.WithFields(logrus.Fields{
		"booking_id":      n.BookingID,
		"seat_number":     n.SeatNumber,
		"refunded_amount": n.RefundedAmount,
		"phone":           n.Phone,
	}).Info("Cancellation notification")
	return nil
}
