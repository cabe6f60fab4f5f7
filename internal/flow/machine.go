package flow

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrAtStart              = errors.New("already at the first step")
	ErrSlotOccupied         = errors.New("slot already held by this client")
	ErrSlotUnavailable      = errors.New("slot has no available employee")
	ErrEmployeeNotEligible  = errors.New("employee cannot serve the chosen slot")
	ErrBranchNotEligible    = errors.New("branch does not offer the chosen slot")
	ErrInvalidClientDetails = errors.New("invalid client details")
)

// Slot is the data a slot selection carries into the machine.
type Slot struct {
	Date      string
	Time      string
	BranchID  string
	Employees []string
	Occupied  bool
}

// ClientDetails are the contact fields collected before confirmation.
type ClientDetails struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

func (c ClientDetails) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidClientDetails)
	}
	digits := 0
	for _, r := range c.Phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case strings.ContainsRune("+-() .", r):
		default:
			return fmt.Errorf("%w: phone has invalid characters", ErrInvalidClientDetails)
		}
	}
	if digits < 10 || digits > 13 {
		return fmt.Errorf("%w: phone must have 10 to 13 digits", ErrInvalidClientDetails)
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: email is malformed", ErrInvalidClientDetails)
	}
	return nil
}

// Selection is the progressively built record of user choices.
type Selection struct {
	Date               string         `json:"date,omitempty"`
	Time               string         `json:"time,omitempty"`
	BranchID           string         `json:"branch_id,omitempty"`
	AvailableEmployees []string       `json:"available_employees,omitempty"`
	EmployeeID         string         `json:"employee_id,omitempty"`
	ConfirmedBranchID  string         `json:"confirmed_branch_id,omitempty"`
	Client             *ClientDetails `json:"client,omitempty"`
}

// Branch returns the confirmed branch, or the slot's branch before confirmation.
func (s Selection) Branch() string {
	if s.ConfirmedBranchID != "" {
		return s.ConfirmedBranchID
	}
	return s.BranchID
}

// Machine holds the current state and the selection accumulated up to it.
// Fields introduced by a state exist exactly while the machine is at that state or later.
type Machine struct {
	State     State     `json:"state"`
	Selection Selection `json:"selection"`
}

// SelectSlot picks a slot from the inline day list. Only valid while browsing.
func (m *Machine) SelectSlot(slot Slot) error {
	if m.State != Browsing {
		return fmt.Errorf("%w: slot selection from %s", ErrInvalidTransition, m.State)
	}
	return m.enterTime(slot)
}

// SelectCalendarSlot picks a slot from the extended calendar. Allowed from any
// state; everything chosen so far is discarded.
func (m *Machine) SelectCalendarSlot(slot Slot) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	m.Reset()
	return m.enterTime(slot)
}

func (m *Machine) enterTime(slot Slot) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	m.Selection = Selection{
		Date:               slot.Date,
		Time:               slot.Time,
		BranchID:           slot.BranchID,
		AvailableEmployees: append([]string(nil), slot.Employees...),
	}
	m.State = TimeChosen
	return nil
}

func checkSlot(slot Slot) error {
	if slot.Occupied {
		return ErrSlotOccupied
	}
	if len(slot.Employees) == 0 {
		return ErrSlotUnavailable
	}
	if slot.Date == "" || slot.Time == "" || slot.BranchID == "" {
		return fmt.Errorf("%w: slot is missing date, time or branch", ErrInvalidTransition)
	}
	return nil
}

func (m *Machine) SelectEmployee(employeeID string) error {
	if m.State != TimeChosen {
		return fmt.Errorf("%w: employee selection from %s", ErrInvalidTransition, m.State)
	}
	if !contains(m.Selection.AvailableEmployees, employeeID) {
		return fmt.Errorf("%w: %s", ErrEmployeeNotEligible, employeeID)
	}
	m.Selection.EmployeeID = employeeID
	m.State = EmployeeChosen
	return nil
}

// SelectBranch confirms the branch. The slot's own branch is always eligible;
// eligible lists any other branch offering the same slot.
func (m *Machine) SelectBranch(branchID string, eligible []string) error {
	if m.State != EmployeeChosen {
		return fmt.Errorf("%w: branch selection from %s", ErrInvalidTransition, m.State)
	}
	if branchID == "" || (branchID != m.Selection.BranchID && !contains(eligible, branchID)) {
		return fmt.Errorf("%w: %s", ErrBranchNotEligible, branchID)
	}
	m.Selection.ConfirmedBranchID = branchID
	m.State = BranchChosen
	return nil
}

func (m *Machine) EnterClientDetails(details ClientDetails) error {
	if m.State != BranchChosen {
		return fmt.Errorf("%w: client details from %s", ErrInvalidTransition, m.State)
	}
	details.Name = strings.TrimSpace(details.Name)
	details.Phone = strings.TrimSpace(details.Phone)
	details.Email = strings.TrimSpace(details.Email)
	if err := details.Validate(); err != nil {
		return err
	}
	m.Selection.Client = &details
	m.State = ClientDetailsEntered
	return nil
}

// Review moves to the terminal confirmation step.
func (m *Machine) Review() error {
	if m.State != ClientDetailsEntered {
		return fmt.Errorf("%w: review from %s", ErrInvalidTransition, m.State)
	}
	m.State = ConfirmationReady
	return nil
}

// Back returns to the previous state, clearing what the current state introduced.
func (m *Machine) Back() error {
	switch m.State {
	case Browsing:
		return ErrAtStart
	case TimeChosen:
		m.Selection = Selection{}
	case EmployeeChosen:
		m.Selection.EmployeeID = ""
	case BranchChosen:
		m.Selection.ConfirmedBranchID = ""
	case ClientDetailsEntered:
		m.Selection.Client = nil
	case ConfirmationReady:
	default:
		return fmt.Errorf("%w: back from %s", ErrInvalidTransition, m.State)
	}
	m.State--
	return nil
}

func (m *Machine) Reset() {
	m.State = Browsing
	m.Selection = Selection{}
}

// Fields lists the selection fields currently set.
func (m *Machine) Fields() []string {
	s := m.Selection
	var out []string
	if s.Date != "" {
		out = append(out, "date")
	}
	if s.Time != "" {
		out = append(out, "time")
	}
	if s.BranchID != "" {
		out = append(out, "branch_id")
	}
	if len(s.AvailableEmployees) > 0 {
		out = append(out, "available_employees")
	}
	if s.EmployeeID != "" {
		out = append(out, "employee_id")
	}
	if s.ConfirmedBranchID != "" {
		out = append(out, "confirmed_branch_id")
	}
	if s.Client != nil {
		out = append(out, "client")
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
