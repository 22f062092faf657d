package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/pkg/qr"
	"golang.org/x/crypto/blake2b"
)

const (
	ticketNumberPrefix  = "EB"
	ticketSuffixLength  = 5
	ticketSuffixCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	ticketSignatureSize = 16
)

// TicketPayload is the compact summary encoded in the QR code
type TicketPayload struct {
	TicketNumber string    `json:"tn"`
	OrderID      uuid.UUID `json:"oid"`
	ScheduleID   uuid.UUID `json:"sid"`
	Route        string    `json:"rt"`
	Bus          string    `json:"bus"`
	Departure    string    `json:"dep"`
	Passenger    string    `json:"pax"`
	Seats        []string  `json:"seats"`
	Total        float64   `json:"amt"`
	Signature    string    `json:"sig,omitempty"`
}

// TicketService generates ticket numbers and renders ticket QR codes.
// Rendering is pure and runs after the booking transaction commits.
type TicketService struct {
	renderer   qr.Renderer
	signingKey []byte
	location   *time.Location
	now        func() time.Time
	nextNumber func(now time.Time) (string, error)
}

// NewTicketService creates a ticket service. An empty signingKey leaves payloads unsigned.
func NewTicketService(renderer qr.Renderer, signingKey string, location *time.Location) *TicketService {
	if location == nil {
		location = time.UTC
	}
	s := &TicketService{
		renderer:   renderer,
		signingKey: []byte(signingKey),
		location:   location,
		now:        time.Now,
	}
	s.nextNumber = s.randomTicketNumber
	return s
}

// GenerateTicketNumber returns EB-YYYYMMDD-XXXXX for the current date.
// Uniqueness is enforced by the tickets_ticket_number_key constraint.
func (s *TicketService) GenerateTicketNumber() (string, error) {
	return s.nextNumber(s.now())
}

func (s *TicketService) randomTicketNumber(now time.Time) (string, error) {
	suffix := make([]byte, ticketSuffixLength)
	max := big.NewInt(int64(len(ticketSuffixCharset)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate ticket number: %w", err)
		}
		suffix[i] = ticketSuffixCharset[n.Int64()]
	}
	return fmt.Sprintf("%s-%s-%s", ticketNumberPrefix, now.In(s.location).Format("20060102"), suffix), nil
}

// BuildPayload shapes the committed order into the QR payload
func (s *TicketService) BuildPayload(details *models.OrderDetails) ([]byte, error) {
	payload := TicketPayload{
		TicketNumber: details.Ticket.TicketNumber,
		OrderID:      details.Order.ID,
		ScheduleID:   details.Schedule.ID,
		Route:        details.Schedule.RouteName,
		Bus:          details.Schedule.BusNumber,
		Departure:    details.Schedule.DepartureAt.In(s.location).Format(time.RFC3339),
		Seats:        details.SeatNumbers(),
		Total:        details.Order.TotalAmount,
	}
	if len(details.Bookings) > 0 {
		payload.Passenger = details.Bookings[0].Passenger.Name
	}

	if len(s.signingKey) > 0 {
		sig, err := s.sign(payload)
		if err != nil {
			return nil, err
		}
		payload.Signature = sig
	}
	return json.Marshal(payload)
}

// Render builds and renders the QR code for an order
func (s *TicketService) Render(details *models.OrderDetails) (qrCode string, payload string, err error) {
	raw, err := s.BuildPayload(details)
	if err != nil {
		return "", "", err
	}
	qrCode, err = s.renderer.Render(raw)
	if err != nil {
		return "", "", err
	}
	return qrCode, string(raw), nil
}

// Verify parses a scanned payload and checks its signature. Both failures are INVALID_REQUEST.
func (s *TicketService) Verify(raw []byte) (*TicketPayload, error) {
	var payload TicketPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &BookingError{Kind: KindInvalidRequest, Message: "invalid ticket payload", Err: err}
	}
	if len(s.signingKey) == 0 {
		return &payload, nil
	}

	got := payload.Signature
	payload.Signature = ""
	want, err := s.sign(payload)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return nil, newError(KindInvalidRequest, "invalid ticket signature")
	}
	payload.Signature = got
	return &payload, nil
}

func (s *TicketService) sign(payload TicketPayload) (string, error) {
	payload.Signature = ""
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ticket payload: %w", err)
	}
	mac, err := blake2b.New256(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to init ticket signer: %w", err)
	}
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)[:ticketSignatureSize]), nil
}
