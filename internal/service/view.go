package service

import (
	"time"

	"agendei/internal/availability"
	"agendei/internal/calendar"
	"agendei/internal/flow"
	"agendei/internal/models"
)

// View is what a front end needs to render a booking session.
type View struct {
	SessionID string         `json:"session_id"`
	CompanyID string         `json:"company_id"`
	ServiceID string         `json:"service_id"`
	ClientID  string         `json:"client_id"`
	State     flow.State     `json:"state"`
	Selection flow.Selection `json:"selection"`

	Days           []availability.DayBucket `json:"days"`
	EagerError     string                   `json:"eager_error,omitempty"`
	CalendarLoaded bool                     `json:"calendar_loaded"`
	ExtendedError  string                   `json:"extended_error,omitempty"`

	// Employees is set while choosing an employee, Branches while choosing a branch.
	Employees []models.Employee `json:"employees,omitempty"`
	Branches  []models.Branch   `json:"branches,omitempty"`

	Summary     *Summary `json:"summary,omitempty"`
	SubmitError string   `json:"submit_error,omitempty"`
}

// Summary describes the appointment about to be confirmed.
type Summary struct {
	Date         string                `json:"date"`
	DisplayDate  string                `json:"display_date"`
	Time         string                `json:"time"`
	StartTime    string                `json:"start_time"`
	EmployeeID   string                `json:"employee_id"`
	EmployeeName string                `json:"employee_name"`
	BranchID     string                `json:"branch_id"`
	BranchName   string                `json:"branch_name"`
	Client       *flow.ClientDetails   `json:"client,omitempty"`
	Request      models.AppointmentRequest `json:"request"`
}

// CalendarView is one month of the extended calendar.
type CalendarView struct {
	Month         string          `json:"month"`
	Title         string          `json:"title"`
	Cells         []calendar.Cell `json:"cells"`
	CanPrev       bool            `json:"can_prev"`
	CanNext       bool            `json:"can_next"`
	ExtendedError string          `json:"extended_error,omitempty"`
}

// DayView lists the slots of one calendar day.
type DayView struct {
	Date        string            `json:"date"`
	DisplayDate string            `json:"display_date"`
	BranchID    string            `json:"branch_id"`
	Slots       []models.TimeSlot `json:"time_slots"`
}

// ConfirmResult is returned after a successful submission.
type ConfirmResult struct {
	Appointment *models.Appointment `json:"appointment"`
	Summary     *Summary            `json:"summary"`
}

func buildView(session *models.BookingSession, now time.Time) *View {
	merged := availability.Merge(session.Eager, session.Extended)
	m := session.Flow

	v := &View{
		SessionID:      session.ID,
		CompanyID:      session.CompanyID,
		ServiceID:      session.ServiceID,
		ClientID:       session.ClientID,
		State:          m.State,
		Selection:      m.Selection,
		Days:           availability.DayBuckets(merged, now),
		EagerError:     session.EagerError,
		CalendarLoaded: session.Extended != nil,
		ExtendedError:  session.ExtendedError,
		SubmitError:    session.SubmitError,
	}

	switch m.State {
	case flow.TimeChosen:
		v.Employees = availability.EligibleEmployees(merged.EmployeeInfo, m.Selection.AvailableEmployees)
	case flow.EmployeeChosen:
		v.Branches = availability.BranchesByID(merged.BranchInfo, branchChoices(&merged, m.Selection))
	case flow.ConfirmationReady:
		v.Summary = buildSummary(session, &merged, now.Location())
	}
	return v
}

// branchChoices lists the slot's own branch first, then any other branch
// offering the same date, time and employee.
func branchChoices(merged *models.AvailabilityResponse, sel flow.Selection) []string {
	out := []string{sel.BranchID}
	for _, id := range availability.EligibleBranches(merged, sel.Date, sel.Time, sel.EmployeeID) {
		if id != sel.BranchID {
			out = append(out, id)
		}
	}
	return out
}

func buildSummary(session *models.BookingSession, merged *models.AvailabilityResponse, loc *time.Location) *Summary {
	sel := session.Flow.Selection
	req, err := BuildAppointmentRequest(sel, session.ClientID, session.CompanyID, session.ServiceID, session.Timezone)
	if err != nil {
		return nil
	}

	s := &Summary{
		Date:       sel.Date,
		Time:       sel.Time,
		StartTime:  req.StartTime,
		EmployeeID: sel.EmployeeID,
		BranchID:   sel.Branch(),
		Client:     sel.Client,
		Request:    req,
	}
	if day, err := time.ParseInLocation(models.DateLayout, sel.Date, loc); err == nil {
		s.DisplayDate = availability.DisplayDate(day)
	}
	if emps := availability.EligibleEmployees(merged.EmployeeInfo, []string{sel.EmployeeID}); len(emps) == 1 {
		s.EmployeeName = emps[0].Name
	}
	if branches := availability.BranchesByID(merged.BranchInfo, []string{sel.Branch()}); len(branches) == 1 {
		s.BranchName = branches[0].Name
	}
	return s
}
