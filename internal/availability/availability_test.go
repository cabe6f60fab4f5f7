package availability

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"agendei/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(models.DefaultTimezone)
	require.NoError(t, err)
	return loc
}

func TestMerge(t *testing.T) {
	eager := &models.AvailabilityResponse{
		AvailableDates: []models.DayAvailability{{Date: "2024-06-01", BranchID: "b1"}},
		EmployeeInfo:   []models.Employee{{ID: "e1", Name: "Carla"}},
		BranchInfo:     []models.Branch{{ID: "b1", Name: "Centro"}},
	}
	lazy := &models.AvailabilityResponse{
		AvailableDates: []models.DayAvailability{{Date: "2024-06-01", BranchID: "b1"}, {Date: "2024-06-15", BranchID: "b1"}},
		EmployeeInfo:   []models.Employee{{ID: "e1", Name: "Carla (lazy)"}, {ID: "e2", Name: "Davi"}},
	}

	t.Run("NoLazyIsEagerVerbatim", func(t *testing.T) {
		assert.Equal(t, *eager, Merge(eager, nil))
	})

	t.Run("NothingLoaded", func(t *testing.T) {
		assert.Equal(t, models.AvailabilityResponse{}, Merge(nil, nil))
	})

	t.Run("DatesFromLazyRosterFromEager", func(t *testing.T) {
		merged := Merge(eager, lazy)
		assert.Equal(t, lazy.AvailableDates, merged.AvailableDates)
		assert.Equal(t, eager.EmployeeInfo, merged.EmployeeInfo)
		assert.Equal(t, eager.BranchInfo, merged.BranchInfo)
	})

	t.Run("FallsBackToLazyRoster", func(t *testing.T) {
		merged := Merge(&models.AvailabilityResponse{}, lazy)
		assert.Equal(t, lazy.EmployeeInfo, merged.EmployeeInfo)
		assert.NotNil(t, merged.BranchInfo)
		assert.Empty(t, merged.BranchInfo)
	})

	t.Run("Idempotent", func(t *testing.T) {
		cases := []struct {
			name        string
			eager, lazy *models.AvailabilityResponse
		}{
			{"both", eager, lazy},
			{"empty eager", &models.AvailabilityResponse{}, lazy},
			{"nil eager", nil, lazy},
			{"empty lazy", eager, &models.AvailabilityResponse{}},
		}
		for _, c := range cases {
			once := Merge(c.eager, c.lazy)
			twice := Merge(c.eager, &once)
			assert.Equal(t, once.EmployeeInfo, twice.EmployeeInfo, c.name)
			assert.Equal(t, once.BranchInfo, twice.BranchInfo, c.name)
		}
	})
}

func TestDayBuckets(t *testing.T) {
	loc := saoPaulo(t)
	now := time.Date(2024, 6, 1, 22, 30, 0, 0, loc)

	t.Run("TodayOnly", func(t *testing.T) {
		resp := models.AvailabilityResponse{AvailableDates: []models.DayAvailability{{
			Date:      "2024-06-01",
			BranchID:  "b1",
			TimeSlots: []models.TimeSlot{{Time: "09:00", Employees: []string{"e1"}}},
		}}}

		buckets := DayBuckets(resp, now)
		require.Len(t, buckets, 1)
		assert.Equal(t, "Hoje", buckets[0].Label)
		assert.Equal(t, "sábado, 01/06", buckets[0].DisplayDate)
		require.Len(t, buckets[0].Slots, 1)
		assert.Equal(t, "09:00", buckets[0].Slots[0].Time)
		assert.True(t, buckets[0].Slots[0].Selectable())
	})

	t.Run("SortsAndSuppressesEmptyDays", func(t *testing.T) {
		resp := models.AvailabilityResponse{AvailableDates: []models.DayAvailability{
			{Date: "2024-06-01", BranchID: "b1"},
			{Date: "2024-06-02", BranchID: "b2", TimeSlots: []models.TimeSlot{
				{Time: "14:00", Employees: []string{"e1"}},
				{Time: "08:30", Employees: []string{"e2"}},
				{Time: "10:15", Employees: []string{"e1"}},
			}},
		}}

		buckets := DayBuckets(resp, now)
		require.Len(t, buckets, 1)
		assert.Equal(t, "Amanhã", buckets[0].Label)
		assert.Equal(t, "b2", buckets[0].BranchID)
		assert.Equal(t, []string{"08:30", "10:15", "14:00"}, times(buckets[0].Slots))
		assert.Equal(t, "14:00", resp.AvailableDates[1].TimeSlots[0].Time, "input must not be reordered")
	})

	t.Run("NoMatchingDays", func(t *testing.T) {
		resp := models.AvailabilityResponse{AvailableDates: []models.DayAvailability{{
			Date: "2024-06-05", TimeSlots: []models.TimeSlot{{Time: "09:00", Employees: []string{"e1"}}},
		}}}
		assert.Empty(t, DayBuckets(resp, now))
	})

	t.Run("UsesCompanyCalendarDay", func(t *testing.T) {
		// 01:30 UTC on June 2nd is still June 1st in São Paulo.
		utc := time.Date(2024, 6, 2, 1, 30, 0, 0, time.UTC)
		resp := models.AvailabilityResponse{AvailableDates: []models.DayAvailability{{
			Date: "2024-06-01", TimeSlots: []models.TimeSlot{{Time: "23:00", Employees: []string{"e1"}}},
		}}}
		buckets := DayBuckets(resp, utc.In(loc))
		require.Len(t, buckets, 1)
		assert.Equal(t, "Hoje", buckets[0].Label)
	})
}

func TestSortSlotsMatchesChronologicalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		n := rng.Intn(20)
		slots := make([]models.TimeSlot, n)
		for j := range slots {
			slots[j] = models.TimeSlot{Time: fmt.Sprintf("%02d:%02d", rng.Intn(24), rng.Intn(60))}
		}

		sorted := SortSlots(slots)
		chrono := append([]models.TimeSlot(nil), slots...)
		sort.SliceStable(chrono, func(a, b int) bool {
			ta, _ := time.Parse(models.ClockLayout, chrono[a].Time)
			tb, _ := time.Parse(models.ClockLayout, chrono[b].Time)
			return ta.Before(tb)
		})
		assert.Equal(t, times(chrono), times(sorted))
	}
}

func TestCalendarDates(t *testing.T) {
	lazy := &models.AvailabilityResponse{AvailableDates: []models.DayAvailability{
		{Date: "2024-06-15", TimeSlots: []models.TimeSlot{{Time: "10:00", Employees: []string{"e1"}}}},
		{Date: "2024-06-03"},
		{Date: "2024-06-01", TimeSlots: []models.TimeSlot{{Time: "09:00", Employees: []string{"e1"}}}},
	}}
	assert.Equal(t, []string{"2024-06-01", "2024-06-15"}, CalendarDates(lazy))
	assert.Nil(t, CalendarDates(nil))
}

func TestEligibility(t *testing.T) {
	roster := []models.Employee{{ID: "e1", Name: "Carla"}, {ID: "e2", Name: "Davi"}, {ID: "e3", Name: "Eva"}}
	got := EligibleEmployees(roster, []string{"e3", "e9"})
	assert.Equal(t, []models.Employee{{ID: "e3", Name: "Eva"}, {ID: "e9", Name: "e9"}}, got)

	resp := &models.AvailabilityResponse{AvailableDates: []models.DayAvailability{
		{Date: "2024-06-01", BranchID: "b1", TimeSlots: []models.TimeSlot{{Time: "09:00", Employees: []string{"e1"}}}},
		{Date: "2024-06-02", BranchID: "b2", TimeSlots: []models.TimeSlot{{Time: "09:00", Employees: []string{"e1"}}}},
	}}
	assert.Equal(t, []string{"b1"}, EligibleBranches(resp, "2024-06-01", "09:00", "e1"))
	assert.Empty(t, EligibleBranches(resp, "2024-06-01", "09:00", "e2"))

	branches := BranchesByID([]models.Branch{{ID: "b1", Name: "Centro"}}, []string{"b1", "b5"})
	assert.Equal(t, []models.Branch{{ID: "b1", Name: "Centro"}, {ID: "b5", Name: "b5"}}, branches)
}

func times(slots []models.TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Time
	}
	return out
}
