package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smarttransit/seat-booking-core/pkg/sms"
)

// SMSDispatcher sends short text notices through an SMS gateway
type SMSDispatcher struct {
	gateway  sms.Gateway
	location *time.Location
}

func NewSMSDispatcher(gateway sms.Gateway, location *time.Location) *SMSDispatcher {
	if location == nil {
		location = time.UTC
	}
	return &SMSDispatcher{gateway: gateway, location: location}
}

func (d *SMSDispatcher) SendTicket(ctx context.Context, n TicketNotification) error {
	msg := fmt.Sprintf("Ticket %s confirmed. %s (%s) departs %s. Seats: %s. Total %s %.2f",
		n.TicketNumber,
		n.RouteName,
		n.BusNumber,
		n.DepartureAt.In(d.location).Format("2006-01-02 15:04"),
		strings.Join(n.Seats, ", "),
		n.Currency,
		n.TotalAmount,
	)
	if err := d.gateway.Send(ctx, n.Phone, msg); err != nil {
		return fmt.Errorf("%s: ticket sms: %w", d.gateway.Name(), err)
	}
	return nil
}

func (d *SMSDispatcher) SendCancellation(ctx context.Context, n CancellationNotification) error {
	msg := fmt.Sprintf("Seat %s on %s (%s) cancelled. Fee %s %.2f, refund %s %.2f",
		n.SeatNumber,
		n.RouteName,
		n.DepartureAt.In(d.location).Format("2006-01-02 15:04"),
		n.Currency, n.CancellationFee,
		n.Currency, n.RefundedAmount,
	)
	if err := d.gateway.Send(ctx, n.Phone, msg); err != nil {
		return fmt.Errorf("%s: cancellation sms: %w", d.gateway.Name(), err)
	}
	return nil
}
