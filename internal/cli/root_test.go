package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"agendei/internal/config"
	"agendei/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	responses map[int]*models.AvailabilityResponse
	windows   []models.AvailabilityWindow
}

func (f *fakeFetcher) FetchAvailability(_ context.Context, w models.AvailabilityWindow) (*models.AvailabilityResponse, error) {
	f.windows = append(f.windows, w)
	resp, ok := f.responses[w.DateForwardEnd]
	if !ok {
		return nil, errors.New("backend unavailable")
	}
	return resp, nil
}

type fakeJournal struct {
	counts map[string]int
	closed bool
}

func (f *fakeJournal) CountByStatus(context.Context) (map[string]int, error) { return f.counts, nil }

func (f *fakeJournal) Close() error {
	f.closed = true
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "agendei"},
		Booking: config.BookingConfig{
			Timezone:    models.DefaultTimezone,
			EagerWindow: config.WindowConfig{Start: 0, End: 1},
			LazyWindow:  config.WindowConfig{Start: 0, End: 31},
		},
	}
}

// withFakes swaps the package factories for the duration of the test.
func withFakes(t *testing.T, fetcher *fakeFetcher, journal *fakeJournal) {
	t.Helper()
	prevLoad, prevFetcher, prevJournal, prevClock := loadConfig, fetcherFactory, journalFactory, clock
	t.Cleanup(func() {
		loadConfig, fetcherFactory, journalFactory, clock = prevLoad, prevFetcher, prevJournal, prevClock
	})

	loc, err := time.LoadLocation(models.DefaultTimezone)
	require.NoError(t, err)

	loadConfig = func(string) (*config.Config, error) { return testConfig(), nil }
	fetcherFactory = func(*config.Config, *zerolog.Logger) Fetcher { return fetcher }
	journalFactory = func(*config.Config, *zerolog.Logger) (Journal, error) { return journal, nil }
	clock = func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, loc) }
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func eagerResponse() *models.AvailabilityResponse {
	return &models.AvailabilityResponse{
		AvailableDates: []models.DayAvailability{{
			Date:     "2024-06-01",
			BranchID: "b1",
			TimeSlots: []models.TimeSlot{
				{Time: "10:30", Employees: []string{"e1"}, OccupiedByClient: true},
				{Time: "09:00", Employees: []string{"e1"}},
			},
		}},
	}
}

func lazyResponse() *models.AvailabilityResponse {
	return &models.AvailabilityResponse{
		AvailableDates: []models.DayAvailability{
			{Date: "2024-06-01", BranchID: "b1", TimeSlots: []models.TimeSlot{{Time: "09:00", Employees: []string{"e1"}}}},
			{Date: "2024-06-15", BranchID: "b1", TimeSlots: []models.TimeSlot{{Time: "14:00", Employees: []string{"e2"}}}},
		},
	}
}

func TestAvailabilityCommand(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[int]*models.AvailabilityResponse{1: eagerResponse(), 31: lazyResponse()}}
	withFakes(t, fetcher, nil)

	out, err := run(t, "availability", "--company", "co1", "--service", "s1", "--lazy")
	require.NoError(t, err)

	assert.Contains(t, out, "Hoje (sábado, 01/06) branch b1")
	assert.Contains(t, out, "e1  09:00")
	assert.NotContains(t, out, "10:30", "the extended range replaces the eager days")
	assert.Contains(t, out, "Calendar dates (2): 2024-06-01 2024-06-15")

	require.Len(t, fetcher.windows, 2)
	assert.Equal(t, models.AvailabilityWindow{
		ServiceID: "s1", CompanyID: "co1", Timezone: models.DefaultTimezone, DateForwardStart: 0, DateForwardEnd: 1,
	}, fetcher.windows[0])
	assert.Equal(t, 31, fetcher.windows[1].DateForwardEnd)
}

func TestAvailabilityCommandJSON(t *testing.T) {
	withFakes(t, &fakeFetcher{responses: map[int]*models.AvailabilityResponse{1: eagerResponse()}}, nil)

	out, err := run(t, "availability", "--company", "co1", "--service", "s1", "--json")
	require.NoError(t, err)

	var report availabilityReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Days, 1)
	require.Len(t, report.Days[0].Slots, 2)
	assert.Equal(t, "09:00", report.Days[0].Slots[0].Time, "slots are sorted")
	assert.True(t, report.Days[0].Slots[1].OccupiedByClient)
	assert.Empty(t, report.CalendarDates)
}

func TestAvailabilityCommandRequiresTarget(t *testing.T) {
	withFakes(t, &fakeFetcher{}, nil)
	_, err := run(t, "availability", "--company", "co1")
	assert.Error(t, err)
}

func TestAvailabilityCommandBackendError(t *testing.T) {
	withFakes(t, &fakeFetcher{}, nil)
	_, err := run(t, "availability", "--company", "co1", "--service", "s1")
	assert.ErrorContains(t, err, "eager window")
}

func TestCalendarCommand(t *testing.T) {
	withFakes(t, &fakeFetcher{responses: map[int]*models.AvailabilityResponse{31: lazyResponse()}}, nil)

	out, err := run(t, "calendar", "--company", "co1", "--service", "s1", "--json")
	require.NoError(t, err)

	var report calendarReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "2024-06", report.Month)
	assert.Equal(t, "junho de 2024", report.Title)
	assert.False(t, report.CanPrev)
	assert.True(t, report.CanNext)

	marked := map[string]bool{}
	for _, c := range report.Cells {
		if c.HasAvailability {
			marked[c.Date] = true
		}
	}
	assert.Equal(t, map[string]bool{"2024-06-01": true, "2024-06-15": true}, marked)
}

func TestCalendarCommandMonthBounds(t *testing.T) {
	withFakes(t, &fakeFetcher{responses: map[int]*models.AvailabilityResponse{31: lazyResponse()}}, nil)

	out, err := run(t, "calendar", "--company", "co1", "--service", "s1", "--month", "2024-07")
	require.NoError(t, err)
	assert.Contains(t, out, "julho de 2024")
	assert.Contains(t, out, "next: false")

	_, err = run(t, "calendar", "--company", "co1", "--service", "s1", "--month", "2024-08")
	assert.Error(t, err)

	_, err = run(t, "calendar", "--company", "co1", "--service", "s1", "--month", "june")
	assert.ErrorContains(t, err, "YYYY-MM")
}

func TestJournalCommand(t *testing.T) {
	journal := &fakeJournal{counts: map[string]int{models.SubmissionSucceeded: 3, models.SubmissionFailed: 1}}
	withFakes(t, nil, journal)

	out, err := run(t, "journal")
	require.NoError(t, err)
	assert.Equal(t, "failed     1\nsucceeded  3\n", out)
	assert.True(t, journal.closed)
}
