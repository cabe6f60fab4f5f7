package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"agendei/internal/config"
	"agendei/internal/models"
	"agendei/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) FetchAvailability(ctx context.Context, window models.AvailabilityWindow) (*models.AvailabilityResponse, error) {
	args := m.Called(ctx, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AvailabilityResponse), args.Error(1)
}

func (m *mockBackend) CreateAppointment(ctx context.Context, req models.AppointmentRequest) (*models.Appointment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}

func (m *mockBackend) ListServices(ctx context.Context, companyID string) ([]models.Service, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Service), args.Error(1)
}

type mockJournal struct {
	mock.Mock
}

func (m *mockJournal) Record(ctx context.Context, submission *models.Submission) error {
	args := m.Called(ctx, submission)
	return args.Error(0)
}

func (m *mockJournal) ListBySession(ctx context.Context, sessionID string) ([]*models.Submission, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Submission), args.Error(1)
}

type publishedEvent struct {
	Type    string
	Payload interface{}
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishJSON(eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, Payload: payload})
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func nopLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(models.DefaultTimezone)
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	return loc
}

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		Timezone:          models.DefaultTimezone,
		EagerWindow:       config.WindowConfig{Start: models.EagerWindowStart, End: models.EagerWindowEnd},
		LazyWindow:        config.WindowConfig{Start: models.LazyWindowStart, End: models.LazyWindowEnd},
		SessionTTLMinutes: 30,
	}
}

type flowFixture struct {
	svc      *FlowService
	backend  *mockBackend
	journal  *mockJournal
	events   *recordingPublisher
	sessions *repository.MemorySessionRepository
	now      time.Time
}

// newFlowFixture freezes the clock at 2024-06-01 08:00 in São Paulo.
func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	f := &flowFixture{
		backend:  new(mockBackend),
		journal:  new(mockJournal),
		events:   &recordingPublisher{},
		sessions: repository.NewMemorySessionRepository(time.Hour),
		now:      time.Date(2024, 6, 1, 8, 0, 0, 0, saoPaulo(t)),
	}
	appointments := NewAppointmentService(f.backend, f.journal, f.events, nopLogger())
	f.svc = NewFlowService(f.sessions, f.backend, appointments, f.events, testBookingConfig(), nopLogger())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func eagerWindow(window models.AvailabilityWindow) bool {
	return window.DateForwardStart == models.EagerWindowStart && window.DateForwardEnd == models.EagerWindowEnd
}

func lazyWindow(window models.AvailabilityWindow) bool {
	return window.DateForwardStart == models.LazyWindowStart && window.DateForwardEnd == models.LazyWindowEnd
}

// eagerFixture has one free slot today and no tomorrow.
func eagerFixture() *models.AvailabilityResponse {
	return &models.AvailabilityResponse{
		AvailableDates: []models.DayAvailability{
			{
				Date:     "2024-06-01",
				BranchID: "b1",
				TimeSlots: []models.TimeSlot{
					{Time: "10:30", Employees: []string{"e1"}, OccupiedByClient: true},
					{Time: "09:00", Employees: []string{"e1"}},
				},
			},
		},
		EmployeeInfo: []models.Employee{{ID: "e1", Name: "Ana"}, {ID: "e2", Name: "Bruno"}},
		BranchInfo:   []models.Branch{{ID: "b1", Name: "Centro"}},
	}
}

// lazyFixture has slots on 2024-06-01 and 2024-06-15 and no roster.
func lazyFixture() *models.AvailabilityResponse {
	return &models.AvailabilityResponse{
		AvailableDates: []models.DayAvailability{
			{
				Date:      "2024-06-01",
				BranchID:  "b1",
				TimeSlots: []models.TimeSlot{{Time: "09:00", Employees: []string{"e1"}}},
			},
			{
				Date:     "2024-06-15",
				BranchID: "b1",
				TimeSlots: []models.TimeSlot{
					{Time: "14:00", Employees: []string{"e1", "e2"}},
					{Time: "11:00", Employees: []string{"e2"}},
				},
			},
		},
	}
}
