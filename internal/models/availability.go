package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPayload marks availability data that does not respect the wire format.
var ErrInvalidPayload = errors.New("invalid availability payload")

// AvailabilityWindow is the query for one availability fetch. Offsets are days from
// "today" in Timezone.
type AvailabilityWindow struct {
	ServiceID        string `json:"service_id"`
	CompanyID        string `json:"company_id"`
	Timezone         string `json:"timezone"`
	DateForwardStart int    `json:"date_forward_start"`
	DateForwardEnd   int    `json:"date_forward_end"`
	// ClientID lets the backend flag slots the client already holds.
	ClientID string `json:"client_id,omitempty"`
}

// TimeSlot is one bookable time of a day.
type TimeSlot struct {
	Time             string   `json:"time"`
	Employees        []string `json:"employees"`
	OccupiedByClient bool     `json:"occupied_by_client,omitempty"`
}

// Selectable reports whether the slot may start a selection.
func (s TimeSlot) Selectable() bool {
	return len(s.Employees) > 0 && !s.OccupiedByClient
}

// HasEmployee reports whether employeeID can serve the slot.
func (s TimeSlot) HasEmployee(employeeID string) bool {
	for _, id := range s.Employees {
		if id == employeeID {
			return true
		}
	}
	return false
}

// DayAvailability groups the slots of one calendar day at one branch.
type DayAvailability struct {
	Date      string     `json:"date"`
	BranchID  string     `json:"branch_id"`
	TimeSlots []TimeSlot `json:"time_slots"`
}

// Slot returns the slot starting at hhmm.
func (d DayAvailability) Slot(hhmm string) (TimeSlot, bool) {
	for _, s := range d.TimeSlots {
		if s.Time == hhmm {
			return s, true
		}
	}
	return TimeSlot{}, false
}

type Employee struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
}

type Branch struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// AvailabilityResponse is the body of the availability endpoint.
type AvailabilityResponse struct {
	AvailableDates []DayAvailability `json:"available_dates"`
	EmployeeInfo   []Employee        `json:"employee_info"`
	BranchInfo     []Branch          `json:"branch_info"`
}

// Day returns the entry for an ISO date.
func (r *AvailabilityResponse) Day(date string) (DayAvailability, bool) {
	if r == nil {
		return DayAvailability{}, false
	}
	for _, d := range r.AvailableDates {
		if d.Date == date {
			return d, true
		}
	}
	return DayAvailability{}, false
}

// Normalize validates the payload in place: dates are reduced to YYYY-MM-DD,
// times must be zero-padded HH:MM and a date may appear only once.
func (r *AvailabilityResponse) Normalize() error {
	seen := make(map[string]struct{}, len(r.AvailableDates))
	for i := range r.AvailableDates {
		day := &r.AvailableDates[i]
		date, err := NormalizeDate(day.Date)
		if err != nil {
			return err
		}
		if _, dup := seen[date]; dup {
			return fmt.Errorf("%w: duplicate date %s", ErrInvalidPayload, date)
		}
		seen[date] = struct{}{}
		day.Date = date

		for _, slot := range day.TimeSlots {
			if !ValidClock(slot.Time) {
				return fmt.Errorf("%w: bad time %q on %s", ErrInvalidPayload, slot.Time, date)
			}
		}
	}
	return nil
}

// NormalizeDate accepts YYYY-MM-DD or an RFC3339 timestamp and returns the date part.
func NormalizeDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	date := raw
	if len(raw) > len(DateLayout) {
		// The backend sends either a bare date or midnight in RFC3339; only the
		// calendar date matters.
		if raw[len(DateLayout)] != 'T' {
			return "", fmt.Errorf("%w: bad date %q", ErrInvalidPayload, raw)
		}
		date = raw[:len(DateLayout)]
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", fmt.Errorf("%w: bad date %q", ErrInvalidPayload, raw)
	}
	return date, nil
}

// ValidClock reports whether s is a zero-padded 24h HH:MM.
func ValidClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	_, err := time.Parse(ClockLayout, s)
	return err == nil
}
