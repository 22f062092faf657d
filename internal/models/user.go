package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role names carried in access tokens
const (
	RoleCustomer = "CUSTOMER"
	RoleStaff    = "STAFF"
	RoleAdmin    = "ADMIN"
)

// IsPrivilegedRole reports whether role may act on bookings it does not own
func IsPrivilegedRole(role string) bool {
	return role == RoleAdmin || role == RoleStaff
}

// User is the minimal account record the booking core resolves or creates
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Phone     string    `json:"phone" db:"phone"`
	Name      *string   `json:"name,omitempty" db:"name"`
	Email     *string   `json:"email,omitempty" db:"email"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Actor identifies who is performing an operation
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// SystemActor is used by maintenance jobs that run outside a request
var SystemActor = Actor{UserID: uuid.Nil, Role: RoleAdmin}

// IsPrivileged reports whether the actor holds an admin or staff role
func (a Actor) IsPrivileged() bool {
	return IsPrivilegedRole(a.Role)
}

// AuditLog is an append-only record of a state change
type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   *uuid.UUID      `json:"entity_id,omitempty" db:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty" db:"before_state"`
	After      json.RawMessage `json:"after,omitempty" db:"after_state"`
	IPAddress  *string         `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string         `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo json.RawMessage `json:"device_info,omitempty" db:"device_info"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
