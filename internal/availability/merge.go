// Package availability merges eager and lazy availability fetches and derives
// the views rendered from them.
package availability

import (
	"sort"

	"agendei/internal/models"
)

// Merge combines the eager (today/tomorrow) and lazy (extended) fetches.
//
// Without a lazy result the eager result is returned as is. Otherwise dates come
// from the lazy result, which covers the wider range, while the employee and
// branch rosters come from the eager result when it has them, then from the lazy
// one, then empty.
func Merge(eager, lazy *models.AvailabilityResponse) models.AvailabilityResponse {
	if lazy == nil {
		if eager == nil {
			return models.AvailabilityResponse{}
		}
		return *eager
	}
	if eager == nil {
		eager = &models.AvailabilityResponse{}
	}

	merged := models.AvailabilityResponse{
		AvailableDates: lazy.AvailableDates,
		EmployeeInfo:   []models.Employee{},
		BranchInfo:     []models.Branch{},
	}
	switch {
	case len(eager.EmployeeInfo) > 0:
		merged.EmployeeInfo = eager.EmployeeInfo
	case len(lazy.EmployeeInfo) > 0:
		merged.EmployeeInfo = lazy.EmployeeInfo
	}
	switch {
	case len(eager.BranchInfo) > 0:
		merged.BranchInfo = eager.BranchInfo
	case len(lazy.BranchInfo) > 0:
		merged.BranchInfo = lazy.BranchInfo
	}
	return merged
}

// CalendarDates returns the distinct dates of resp that have at least one slot, ascending.
func CalendarDates(resp *models.AvailabilityResponse) []string {
	if resp == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(resp.AvailableDates))
	out := make([]string, 0, len(resp.AvailableDates))
	for _, day := range resp.AvailableDates {
		if len(day.TimeSlots) == 0 {
			continue
		}
		if _, ok := seen[day.Date]; ok {
			continue
		}
		seen[day.Date] = struct{}{}
		out = append(out, day.Date)
	}
	sort.Strings(out)
	return out
}

// SortSlots returns a copy of slots ordered by time. Zero-padded HH:MM makes
// string order chronological.
func SortSlots(slots []models.TimeSlot) []models.TimeSlot {
	out := append([]models.TimeSlot(nil), slots...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// EligibleEmployees filters the roster to the given ids, in id order. Ids missing
// from the roster are kept with the id as name so a roster gap never hides a slot.
func EligibleEmployees(roster []models.Employee, ids []string) []models.Employee {
	byID := make(map[string]models.Employee, len(roster))
	for _, e := range roster {
		byID[e.ID] = e
	}
	out := make([]models.Employee, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
			continue
		}
		out = append(out, models.Employee{ID: id, Name: id})
	}
	return out
}

// EligibleBranches lists the branches offering date+time with employeeID.
func EligibleBranches(resp *models.AvailabilityResponse, date, hhmm, employeeID string) []string {
	if resp == nil {
		return nil
	}
	var out []string
	for _, day := range resp.AvailableDates {
		if day.Date != date {
			continue
		}
		slot, ok := day.Slot(hhmm)
		if !ok || !slot.Selectable() || !slot.HasEmployee(employeeID) {
			continue
		}
		out = append(out, day.BranchID)
	}
	return out
}

// BranchesByID resolves branch ids against the roster; unknown ids are named by id.
func BranchesByID(roster []models.Branch, ids []string) []models.Branch {
	byID := make(map[string]models.Branch, len(roster))
	for _, b := range roster {
		byID[b.ID] = b
	}
	out := make([]models.Branch, 0, len(ids))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			out = append(out, b)
			continue
		}
		out = append(out, models.Branch{ID: id, Name: id})
	}
	return out
}
