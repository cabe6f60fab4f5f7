package models

import (
	"time"

	"agendei/internal/flow"
)

// BookingSession is the whole state of one booking flow: the service being
// booked, both availability fetches and the selection machine. It is owned by
// the flow service and persisted between requests.
type BookingSession struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	ServiceID string `json:"service_id"`
	ClientID  string `json:"client_id"`
	Timezone  string `json:"timezone"`

	Eager         *AvailabilityResponse `json:"eager,omitempty"`
	Extended      *AvailabilityResponse `json:"extended,omitempty"`
	EagerError    string                `json:"eager_error,omitempty"`
	ExtendedError string                `json:"extended_error,omitempty"`

	Flow        flow.Machine `json:"flow"`
	SubmitError string       `json:"submit_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location resolves the session timezone, falling back to the deployment default.
func (s *BookingSession) Location() *time.Location {
	if s.Timezone != "" {
		if loc, err := time.LoadLocation(s.Timezone); err == nil {
			return loc
		}
	}
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Window builds the availability query for the given day offsets.
func (s *BookingSession) Window(start, end int) AvailabilityWindow {
	return AvailabilityWindow{
		ServiceID:        s.ServiceID,
		CompanyID:        s.CompanyID,
		Timezone:         s.Timezone,
		DateForwardStart: start,
		DateForwardEnd:   end,
		ClientID:         s.ClientID,
	}
}
