package flow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	slot0900 = Slot{Date: "2024-06-01", Time: "09:00", BranchID: "b1", Employees: []string{"e1", "e2"}}
	client   = ClientDetails{Name: "Ana Souza", Phone: "+55 11 91234-5678"}
)

func fieldsAt(state State) []string {
	all := [][]string{
		Browsing:             nil,
		TimeChosen:           {"date", "time", "branch_id", "available_employees"},
		EmployeeChosen:       {"employee_id"},
		BranchChosen:         {"confirmed_branch_id"},
		ClientDetailsEntered: {"client"},
		ConfirmationReady:    nil,
	}
	var out []string
	for s := Browsing; s <= state; s++ {
		out = append(out, all[s]...)
	}
	return out
}

func advanceTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	steps := []func() error{
		func() error { return m.SelectSlot(slot0900) },
		func() error { return m.SelectEmployee("e1") },
		func() error { return m.SelectBranch("b1", nil) },
		func() error { return m.EnterClientDetails(client) },
		func() error { return m.Review() },
	}
	for m.State < target {
		require.NoError(t, steps[m.State]())
	}
}

func TestMachineFieldsMatchState(t *testing.T) {
	for target := Browsing; target <= ConfirmationReady; target++ {
		t.Run(target.String(), func(t *testing.T) {
			var m Machine
			advanceTo(t, &m, target)
			assert.Equal(t, target, m.State)
			assert.Equal(t, fieldsAt(target), m.Fields())
		})
	}
}

func TestMachineBackClearsNarrowerFields(t *testing.T) {
	for from := TimeChosen; from <= ConfirmationReady; from++ {
		t.Run(from.String(), func(t *testing.T) {
			var m Machine
			advanceTo(t, &m, from)
			require.NoError(t, m.Back())
			assert.Equal(t, from-1, m.State)
			assert.Equal(t, fieldsAt(from-1), m.Fields())
		})
	}

	t.Run("AtStart", func(t *testing.T) {
		var m Machine
		assert.ErrorIs(t, m.Back(), ErrAtStart)
	})
}

func TestMachineBackTwiceKeepsSlot(t *testing.T) {
	var m Machine
	advanceTo(t, &m, EmployeeChosen)
	require.NoError(t, m.SelectBranch("b1", nil))

	require.NoError(t, m.Back())
	require.NoError(t, m.Back())

	assert.Equal(t, TimeChosen, m.State)
	assert.Equal(t, "2024-06-01", m.Selection.Date)
	assert.Equal(t, "09:00", m.Selection.Time)
	assert.Equal(t, "b1", m.Selection.BranchID)
	assert.Empty(t, m.Selection.EmployeeID)
	assert.Empty(t, m.Selection.ConfirmedBranchID)
}

func TestMachineSelectSlot(t *testing.T) {
	t.Run("SingleEmployee", func(t *testing.T) {
		var m Machine
		require.NoError(t, m.SelectSlot(Slot{Date: "2024-06-01", Time: "09:00", BranchID: "b1", Employees: []string{"e1"}}))
		assert.Equal(t, TimeChosen, m.State)
		assert.Equal(t, []string{"e1"}, m.Selection.AvailableEmployees)
	})

	t.Run("OccupiedLeavesStateUntouched", func(t *testing.T) {
		var m Machine
		occupied := slot0900
		occupied.Occupied = true
		assert.ErrorIs(t, m.SelectSlot(occupied), ErrSlotOccupied)
		assert.Equal(t, Machine{}, m)
	})

	t.Run("NoEmployees", func(t *testing.T) {
		var m Machine
		empty := slot0900
		empty.Employees = nil
		assert.ErrorIs(t, m.SelectSlot(empty), ErrSlotUnavailable)
		assert.Equal(t, Browsing, m.State)
	})

	t.Run("InlineOnlyWhileBrowsing", func(t *testing.T) {
		var m Machine
		advanceTo(t, &m, TimeChosen)
		assert.ErrorIs(t, m.SelectSlot(slot0900), ErrInvalidTransition)
	})
}

func TestMachineCalendarSlotResets(t *testing.T) {
	for from := Browsing; from <= ConfirmationReady; from++ {
		t.Run(from.String(), func(t *testing.T) {
			var m Machine
			advanceTo(t, &m, from)

			next := Slot{Date: "2024-06-15", Time: "14:30", BranchID: "b2", Employees: []string{"e3"}}
			require.NoError(t, m.SelectCalendarSlot(next))

			assert.Equal(t, TimeChosen, m.State)
			assert.Equal(t, Selection{Date: "2024-06-15", Time: "14:30", BranchID: "b2", AvailableEmployees: []string{"e3"}}, m.Selection)
		})
	}

	t.Run("OccupiedKeepsProgress", func(t *testing.T) {
		var m Machine
		advanceTo(t, &m, BranchChosen)
		before := m

		occupied := slot0900
		occupied.Occupied = true
		assert.ErrorIs(t, m.SelectCalendarSlot(occupied), ErrSlotOccupied)
		assert.Equal(t, before, m)
	})
}

func TestMachineEligibility(t *testing.T) {
	t.Run("EmployeeOutsideSlot", func(t *testing.T) {
		var m Machine
		advanceTo(t, &m, TimeChosen)
		assert.ErrorIs(t, m.SelectEmployee("e9"), ErrEmployeeNotEligible)
		assert.Equal(t, TimeChosen, m.State)
	})

	t.Run("OtherBranchMustBeEligible", func(t *testing.T) {
		var m Machine
		advanceTo(t, &m, EmployeeChosen)
		assert.ErrorIs(t, m.SelectBranch("b7", nil), ErrBranchNotEligible)
		require.NoError(t, m.SelectBranch("b7", []string{"b7"}))
		assert.Equal(t, "b7", m.Selection.Branch())
	})

	t.Run("SkippingStepsRejected", func(t *testing.T) {
		var m Machine
		assert.ErrorIs(t, m.SelectEmployee("e1"), ErrInvalidTransition)
		assert.ErrorIs(t, m.Review(), ErrInvalidTransition)
		assert.ErrorIs(t, m.EnterClientDetails(client), ErrInvalidTransition)
	})
}

func TestClientDetailsValidate(t *testing.T) {
	tests := []struct {
		name    string
		details ClientDetails
		wantErr bool
	}{
		{name: "valid", details: client},
		{name: "valid with email", details: ClientDetails{Name: "Bia", Phone: "11912345678", Email: "bia@example.com"}},
		{name: "missing name", details: ClientDetails{Name: "  ", Phone: "11912345678"}, wantErr: true},
		{name: "short phone", details: ClientDetails{Name: "Bia", Phone: "12345"}, wantErr: true},
		{name: "letters in phone", details: ClientDetails{Name: "Bia", Phone: "11 9abc 45678"}, wantErr: true},
		{name: "bad email", details: ClientDetails{Name: "Bia", Phone: "11912345678", Email: "bia"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.details.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidClientDetails)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMachineJSONRoundTrip(t *testing.T) {
	var m Machine
	advanceTo(t, &m, ClientDetailsEntered)

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"state":"client_details_entered"`)

	var got Machine
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, m, got)
}
