package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/utils"
)

// Audit actions
const (
	AuditBookingCreate      = "booking_create"
	AuditBookingCancel      = "booking_cancel"
	AuditBookingAdminCancel = "booking_admin_cancel"
	AuditBookingComplete    = "booking_complete"
	AuditBookingRemoveSeat  = "booking_remove_seat"
	AuditReservationCreate  = "reservation_create"
	AuditReservationCancel  = "reservation_cancel"
	AuditScheduleCleanup    = "schedule_cleanup_orphans"
	AuditScheduleResetSeats = "schedule_reset_seats"
	AuditScheduleSeatMap    = "schedule_regenerate_seats"
)

// RequestMeta is the caller information attached to audit entries
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta stores request metadata in ctx
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the metadata stored by WithRequestMeta
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}

// AuditEntry describes one state change
type AuditEntry struct {
	ActorID    *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	Before     interface{}
	After      interface{}
}

// AuditService writes the append-only audit trail
type AuditService struct {
	store  database.Store
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(store database.Store, logger *logrus.Logger) *AuditService {
	return &AuditService{store: store, logger: logger}
}

// Log inserts an audit record. Request metadata is taken from ctx when present.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	record := &models.AuditLog{
		UserID:     entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
	}

	var err error
	if record.Before, err = marshalState(entry.Before); err != nil {
		return err
	}
	if record.After, err = marshalState(entry.After); err != nil {
		return err
	}

	if meta, ok := RequestMetaFrom(ctx); ok {
		if meta.IPAddress != "" {
			ip := meta.IPAddress
			record.IPAddress = &ip
		}
		if meta.UserAgent != "" {
			userAgent := meta.UserAgent
			record.UserAgent = &userAgent
			deviceInfo, err := json.Marshal(utils.ParseUserAgent(userAgent))
			if err != nil {
				return fmt.Errorf("failed to marshal device info: %w", err)
			}
			record.DeviceInfo = deviceInfo
		}
	}

	if err := s.store.InsertAuditLog(ctx, record); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Record logs the entry and only warns on failure. Audit writes never fail the operation.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	if s == nil {
		return
	}
	if err := s.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action":      entry.Action,
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
		}).Warn("Failed to write audit log")
	}
}

func marshalState(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit state: %w", err)
	}
	return data, nil
}
