// Package calendar implements the month grid used to pick a date from the
// extended availability range. It knows nothing about time slots.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"agendei/internal/availability"
	"agendei/internal/models"
)

var (
	ErrDateDisabled      = errors.New("date is not selectable")
	ErrNavigationBlocked = errors.New("month navigation blocked")
)

// Cell is one day of the rendered grid.
type Cell struct {
	Date            string `json:"date"`
	Day             int    `json:"day"`
	InMonth         bool   `json:"in_month"`
	Disabled        bool   `json:"disabled"`
	HasAvailability bool   `json:"has_availability"`
}

// Picker holds the displayed month and the bounds that disable cells.
//
// MinDate and MaxDate are optional; the zero time means unbounded. A non-empty
// AvailableDates restricts selection to the listed dates, an empty one allows
// every otherwise enabled date. Marked only flags cells as having availability.
type Picker struct {
	Year           int
	Month          time.Month
	MinDate        time.Time
	MaxDate        time.Time
	AvailableDates []string
	Marked         []string
}

// New opens the picker on the month of now.
func New(now time.Time) *Picker {
	return &Picker{Year: now.Year(), Month: now.Month()}
}

// SetMonth moves the picker to an explicit month given as YYYY-MM, subject to
// the same bounds as step navigation.
func (p *Picker) SetMonth(month string, now time.Time) error {
	t, err := time.Parse(models.MonthLayout, month)
	if err != nil {
		return fmt.Errorf("parse month %q: %w", month, err)
	}
	target := monthIndex(t.Year(), t.Month())
	if target < monthIndex(now.Year(), now.Month()) {
		return fmt.Errorf("%w: %s is in the past", ErrNavigationBlocked, month)
	}
	if !p.MaxDate.IsZero() && target > monthIndex(p.MaxDate.Year(), p.MaxDate.Month()) {
		return fmt.Errorf("%w: %s is after the last bookable month", ErrNavigationBlocked, month)
	}
	p.Year, p.Month = t.Year(), t.Month()
	return nil
}

// CanPrev reports whether the previous month may be shown.
func (p *Picker) CanPrev(now time.Time) bool {
	return monthIndex(p.Year, p.Month) > monthIndex(now.Year(), now.Month())
}

// CanNext reports whether the next month may be shown.
func (p *Picker) CanNext() bool {
	if p.MaxDate.IsZero() {
		return true
	}
	return monthIndex(p.Year, p.Month)+1 <= monthIndex(p.MaxDate.Year(), p.MaxDate.Month())
}

func (p *Picker) Prev(now time.Time) error {
	if !p.CanPrev(now) {
		return ErrNavigationBlocked
	}
	p.step(-1)
	return nil
}

func (p *Picker) Next() error {
	if !p.CanNext() {
		return ErrNavigationBlocked
	}
	p.step(1)
	return nil
}

func (p *Picker) step(delta int) {
	first := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, delta, 0)
	p.Year, p.Month = first.Year(), first.Month()
}

// Title is the localized month caption.
func (p *Picker) Title() string {
	return availability.MonthTitle(p.Year, p.Month)
}

// Grid renders the displayed month as whole Monday-first weeks. Leading and
// trailing days of the neighbouring months are present but disabled.
func (p *Picker) Grid(now time.Time) []Cell {
	loc := now.Location()
	first := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
	offset := (int(first.Weekday()) + 6) % 7
	start := first.AddDate(0, 0, -offset)
	last := first.AddDate(0, 1, -1)
	trailing := 6 - (int(last.Weekday())+6)%7
	end := last.AddDate(0, 0, trailing)

	allowed := toSet(p.AvailableDates)
	marked := toSet(p.Marked)

	var cells []Cell
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		iso := d.Format(models.DateLayout)
		_, has := marked[iso]
		cells = append(cells, Cell{
			Date:            iso,
			Day:             d.Day(),
			InMonth:         d.Month() == p.Month,
			Disabled:        p.disabled(d, now, allowed),
			HasAvailability: has,
		})
	}
	return cells
}

// Select returns date when its cell is enabled in the displayed month.
func (p *Picker) Select(date string, now time.Time) (string, error) {
	d, err := time.ParseInLocation(models.DateLayout, date, now.Location())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDateDisabled, err)
	}
	if p.disabled(d, now, toSet(p.AvailableDates)) {
		return "", fmt.Errorf("%w: %s", ErrDateDisabled, date)
	}
	return date, nil
}

func (p *Picker) disabled(d, now time.Time, allowed map[string]struct{}) bool {
	if d.Year() != p.Year || d.Month() != p.Month {
		return true
	}
	day := dayIndex(d)
	if day < dayIndex(now) {
		return true
	}
	if !p.MinDate.IsZero() && day < dayIndex(p.MinDate) {
		return true
	}
	if !p.MaxDate.IsZero() && day > dayIndex(p.MaxDate) {
		return true
	}
	if len(allowed) > 0 {
		if _, ok := allowed[d.Format(models.DateLayout)]; !ok {
			return true
		}
	}
	return false
}

// dayIndex compares calendar dates, ignoring time of day and location.
func dayIndex(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

func monthIndex(year int, month time.Month) int {
	return year*12 + int(month) - 1
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
