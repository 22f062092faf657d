package models

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is a single bus trip instance. Route and bus are read-only references.
type Schedule struct {
	ID           uuid.UUID `json:"id" db:"id"`
	RouteID      uuid.UUID `json:"route_id" db:"route_id"`
	RouteName    string    `json:"route_name" db:"route_name"`
	BusID        uuid.UUID `json:"bus_id" db:"bus_id"`
	BusNumber    string    `json:"bus_number" db:"bus_number"`
	DepartureAt  time.Time `json:"departure_at" db:"departure_at"`
	Fare         float64   `json:"fare" db:"fare"`
	IsReturnTrip bool      `json:"is_return_trip" db:"is_return_trip"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// TravelDate returns the departure calendar date in loc, truncated to midnight.
func (s *Schedule) TravelDate(loc *time.Location) time.Time {
	return DateOf(s.DepartureAt, loc)
}

// DateOf strips the time-of-day from t as observed in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
