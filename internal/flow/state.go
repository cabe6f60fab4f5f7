// Package flow implements the slot selection state machine of the booking wizard.
package flow

import (
	"fmt"
)

// State is a step of the booking wizard, in forward order.
type State int

const (
	Browsing State = iota
	TimeChosen
	EmployeeChosen
	BranchChosen
	ClientDetailsEntered
	ConfirmationReady
)

var stateNames = [...]string{
	Browsing:             "browsing",
	TimeChosen:           "time_chosen",
	EmployeeChosen:       "employee_chosen",
	BranchChosen:         "branch_chosen",
	ClientDetailsEntered: "client_details_entered",
	ConfirmationReady:    "confirmation_ready",
}

func (s State) String() string {
	if s < Browsing || s > ConfirmationReady {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	if s < Browsing || s > ConfirmationReady {
		return nil, fmt.Errorf("unknown state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(b))
}

// ParseState resolves a state name.
func ParseState(name string) (State, error) {
	var s State
	err := s.UnmarshalText([]byte(name))
	return s, err
}
