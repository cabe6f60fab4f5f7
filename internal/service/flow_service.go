package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agendei/internal/availability"
	"agendei/internal/calendar"
	"agendei/internal/config"
	"agendei/internal/domain"
	"agendei/internal/events"
	"agendei/internal/flow"
	"agendei/internal/metrics"
	"agendei/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	windowEager = "eager"
	windowLazy  = "lazy"
)

// StartRequest opens a booking session for one service.
type StartRequest struct {
	CompanyID string `json:"company_id"`
	ServiceID string `json:"service_id"`
	ClientID  string `json:"client_id"`
}

// FlowService owns booking sessions. Every mutation of a session happens under
// its per-session lock; availability fetches run outside the lock and are
// applied when they return.
type FlowService struct {
	sessions     domain.SessionRepository
	backend      domain.SchedulingBackend
	appointments *AppointmentService
	eventBus     domain.EventPublisher
	cfg          config.BookingConfig
	logger       *zerolog.Logger

	locks keyedMutex
	now   func() time.Time
}

func NewFlowService(
	sessions domain.SessionRepository,
	backend domain.SchedulingBackend,
	appointments *AppointmentService,
	eventBus domain.EventPublisher,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *FlowService {
	return &FlowService{
		sessions:     sessions,
		backend:      backend,
		appointments: appointments,
		eventBus:     eventBus,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *FlowService) localNow(session *models.BookingSession) time.Time {
	return s.now().In(session.Location())
}

// ListServices returns the bookable services of a company.
func (s *FlowService) ListServices(ctx context.Context, companyID string) ([]models.Service, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, fmt.Errorf("%w: company_id is required", ErrInvalidRequest)
	}
	return s.backend.ListServices(ctx, companyID)
}

// Start creates a session and runs the eager fetch. A failed fetch does not fail
// Start; the error is kept on the session and Reload retries it.
func (s *FlowService) Start(ctx context.Context, req StartRequest) (*View, error) {
	req.CompanyID = strings.TrimSpace(req.CompanyID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	var missing []string
	if req.CompanyID == "" {
		missing = append(missing, "company_id")
	}
	if req.ServiceID == "" {
		missing = append(missing, "service_id")
	}
	if req.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}

	now := s.now()
	session := &models.BookingSession{
		ID:        uuid.NewString(),
		CompanyID: req.CompanyID,
		ServiceID: req.ServiceID,
		ClientID:  req.ClientID,
		Timezone:  s.cfg.Timezone,
		CreatedAt: now,
		UpdatedAt: now,
	}

	eager, err := s.fetch(ctx, session, windowEager, s.cfg.EagerWindow)
	if err != nil {
		session.EagerError = err.Error()
	} else {
		session.Eager = eager
	}

	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	metrics.IncTransition("start")
	s.logger.Info().
		Str("session_id", session.ID).
		Str("company_id", session.CompanyID).
		Str("service_id", session.ServiceID).
		Bool("eager_loaded", session.Eager != nil).
		Msg("Booking session started")

	return buildView(session, s.localNow(session)), nil
}

func (s *FlowService) Get(ctx context.Context, id string) (*View, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return buildView(session, s.localNow(session)), nil
}

// Reload re-runs the eager fetch. A failure keeps the previously loaded days.
func (s *FlowService) Reload(ctx context.Context, id string) (*View, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	eager, ferr := s.fetch(ctx, session, windowEager, s.cfg.EagerWindow)

	return s.mutate(ctx, id, "reload", func(cur *models.BookingSession) error {
		if ferr != nil {
			cur.EagerError = ferr.Error()
			return nil
		}
		cur.Eager = eager
		cur.EagerError = ""
		return nil
	})
}

// OpenCalendar runs the lazy fetch the first time the calendar is opened. Once
// loaded the extended range is kept for the session; a failed fetch leaves it
// empty so the next open tries again. The fetch is not cancelled with ctx.
func (s *FlowService) OpenCalendar(ctx context.Context, id string) (*View, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Extended != nil {
		return buildView(session, s.localNow(session)), nil
	}

	extended, ferr := s.fetch(context.WithoutCancel(ctx), session, windowLazy, s.cfg.LazyWindow)

	return s.mutate(ctx, id, "calendar_open", func(cur *models.BookingSession) error {
		if ferr != nil {
			if cur.Extended == nil {
				cur.ExtendedError = ferr.Error()
			}
			return nil
		}
		cur.Extended = extended
		cur.ExtendedError = ""
		return nil
	})
}

// CalendarMonth renders one month of the extended range. An empty month shows
// the current one.
func (s *FlowService) CalendarMonth(ctx context.Context, id, month string) (*CalendarView, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Extended == nil {
		return nil, calendarNotLoaded(session)
	}

	now := s.localNow(session)
	picker := s.picker(session, now)
	if month != "" {
		if _, err := time.Parse(models.MonthLayout, month); err != nil {
			return nil, fmt.Errorf("%w: month must be YYYY-MM", ErrInvalidRequest)
		}
		if err := picker.SetMonth(month, now); err != nil {
			return nil, err
		}
	}

	return &CalendarView{
		Month:         fmt.Sprintf("%04d-%02d", picker.Year, int(picker.Month)),
		Title:         picker.Title(),
		Cells:         picker.Grid(now),
		CanPrev:       picker.CanPrev(now),
		CanNext:       picker.CanNext(),
		ExtendedError: session.ExtendedError,
	}, nil
}

// DaySlots lists the slots of an enabled calendar date, earliest first.
func (s *FlowService) DaySlots(ctx context.Context, id, date string) (*DayView, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Extended == nil {
		return nil, calendarNotLoaded(session)
	}

	now := s.localNow(session)
	day, err := s.calendarDate(session, date, now)
	if err != nil {
		return nil, err
	}

	merged := availability.Merge(session.Eager, session.Extended)
	view := &DayView{
		Date:        date,
		DisplayDate: availability.DisplayDate(day),
		Slots:       []models.TimeSlot{},
	}
	if entry, ok := merged.Day(date); ok {
		view.BranchID = entry.BranchID
		view.Slots = availability.SortSlots(entry.TimeSlots)
	}
	return view, nil
}

// SelectSlot picks a slot from the today/tomorrow cards.
func (s *FlowService) SelectSlot(ctx context.Context, id, date, hhmm string) (*View, error) {
	return s.mutate(ctx, id, "select_slot", func(session *models.BookingSession) error {
		merged := availability.Merge(session.Eager, session.Extended)
		for _, bucket := range availability.DayBuckets(merged, s.localNow(session)) {
			if bucket.Date != date {
				continue
			}
			for _, slot := range bucket.Slots {
				if slot.Time == hhmm {
					return session.Flow.SelectSlot(flowSlot(date, bucket.BranchID, slot))
				}
			}
		}
		return fmt.Errorf("%w: %s %s", ErrSlotNotFound, date, hhmm)
	})
}

// SelectCalendarSlot picks a slot from the calendar. Whatever was chosen before
// is discarded and the flow restarts at the chosen time.
func (s *FlowService) SelectCalendarSlot(ctx context.Context, id, date, hhmm string) (*View, error) {
	var reset *events.FlowResetPayload
	view, err := s.mutate(ctx, id, "select_calendar_slot", func(session *models.BookingSession) error {
		if session.Extended == nil {
			return calendarNotLoaded(session)
		}
		if _, err := s.calendarDate(session, date, s.localNow(session)); err != nil {
			return err
		}
		merged := availability.Merge(session.Eager, session.Extended)
		day, ok := merged.Day(date)
		if !ok {
			return fmt.Errorf("%w: %s", ErrSlotNotFound, date)
		}
		slot, ok := day.Slot(hhmm)
		if !ok {
			return fmt.Errorf("%w: %s %s", ErrSlotNotFound, date, hhmm)
		}

		prev := session.Flow.State
		if err := session.Flow.SelectCalendarSlot(flowSlot(date, day.BranchID, slot)); err != nil {
			return err
		}
		if prev > flow.Browsing {
			reset = &events.FlowResetPayload{SessionID: session.ID, FromState: prev.String(), Date: date, Time: hhmm}
		}
		session.SubmitError = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reset != nil && s.eventBus != nil {
		if perr := s.eventBus.PublishJSON(events.EventFlowReset, reset); perr != nil {
			s.logger.Warn().Err(perr).Str("session_id", id).Msg("Failed to publish flow reset")
		}
	}
	return view, nil
}

func (s *FlowService) SelectEmployee(ctx context.Context, id, employeeID string) (*View, error) {
	return s.mutate(ctx, id, "select_employee", func(session *models.BookingSession) error {
		return session.Flow.SelectEmployee(employeeID)
	})
}

// SelectBranch confirms the slot's branch or another branch offering the same
// date and time with the chosen employee.
func (s *FlowService) SelectBranch(ctx context.Context, id, branchID string) (*View, error) {
	return s.mutate(ctx, id, "select_branch", func(session *models.BookingSession) error {
		merged := availability.Merge(session.Eager, session.Extended)
		sel := session.Flow.Selection
		eligible := availability.EligibleBranches(&merged, sel.Date, sel.Time, sel.EmployeeID)
		return session.Flow.SelectBranch(branchID, eligible)
	})
}

func (s *FlowService) EnterClientDetails(ctx context.Context, id string, details flow.ClientDetails) (*View, error) {
	return s.mutate(ctx, id, "enter_client_details", func(session *models.BookingSession) error {
		return session.Flow.EnterClientDetails(details)
	})
}

func (s *FlowService) Review(ctx context.Context, id string) (*View, error) {
	return s.mutate(ctx, id, "review", func(session *models.BookingSession) error {
		return session.Flow.Review()
	})
}

func (s *FlowService) Back(ctx context.Context, id string) (*View, error) {
	return s.mutate(ctx, id, "back", func(session *models.BookingSession) error {
		if err := session.Flow.Back(); err != nil {
			return err
		}
		session.SubmitError = ""
		return nil
	})
}

// Confirm submits the appointment. On success the session is finished and
// removed. On failure the selection is kept and the backend message is stored
// and returned so the user can retry.
func (s *FlowService) Confirm(ctx context.Context, id string) (*ConfirmResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Flow.State != flow.ConfirmationReady {
		return nil, fmt.Errorf("%w: confirm from %s", ErrNotReady, session.Flow.State)
	}

	req, err := BuildAppointmentRequest(session.Flow.Selection, session.ClientID, session.CompanyID, session.ServiceID, session.Timezone)
	if err != nil {
		return nil, err
	}

	appt, err := s.appointments.Submit(ctx, session.ID, req)
	if err != nil {
		session.SubmitError = err.Error()
		session.UpdatedAt = s.now()
		if serr := s.sessions.SaveSession(ctx, session); serr != nil {
			s.logger.Error().Err(serr).Str("session_id", id).Msg("Failed to save session after submission error")
		}
		return nil, err
	}

	merged := availability.Merge(session.Eager, session.Extended)
	result := &ConfirmResult{
		Appointment: appt,
		Summary:     buildSummary(session, &merged, session.Location()),
	}
	if err := s.sessions.DeleteSession(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to delete confirmed session")
	}
	metrics.IncTransition("confirm")
	return result, nil
}

// Exit discards a session.
func (s *FlowService) Exit(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.sessions.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	metrics.IncTransition("exit")
	return nil
}

// Submissions lists the journaled submission attempts of a session, which
// remain readable after the session itself is gone.
func (s *FlowService) Submissions(ctx context.Context, id string) ([]*models.Submission, error) {
	if s.appointments == nil {
		return nil, nil
	}
	return s.appointments.History(ctx, id)
}

// mutate applies fn to the session under its lock and saves it. Nothing is
// saved when fn fails.
func (s *FlowService) mutate(ctx context.Context, id, event string, fn func(*models.BookingSession) error) (*View, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		s.logger.Debug().Err(err).Str("session_id", id).Str("event", event).Msg("Flow event rejected")
		return nil, err
	}
	session.UpdatedAt = s.now()
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	metrics.IncTransition(event)
	s.logger.Debug().Str("session_id", id).Str("event", event).Stringer("state", session.Flow.State).Msg("Flow event applied")
	return buildView(session, s.localNow(session)), nil
}

func (s *FlowService) load(ctx context.Context, id string) (*models.BookingSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *FlowService) fetch(ctx context.Context, session *models.BookingSession, name string, w config.WindowConfig) (*models.AvailabilityResponse, error) {
	start := time.Now()
	resp, err := s.backend.FetchAvailability(ctx, session.Window(w.Start, w.End))
	metrics.ObserveFetch(name, err)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.ID).Str("window", name).Msg("Availability fetch failed")
		return nil, err
	}
	s.logger.Debug().
		Str("session_id", session.ID).
		Str("window", name).
		Int("days", len(resp.AvailableDates)).
		Dur("took", time.Since(start)).
		Msg("Availability fetched")
	return resp, nil
}

// picker bounds the calendar to the lazy window and marks the dates with slots.
// Other dates in range stay enabled.
func (s *FlowService) picker(session *models.BookingSession, now time.Time) *calendar.Picker {
	today := availability.StartOfDay(now)
	p := calendar.New(now)
	p.MinDate = today.AddDate(0, 0, s.cfg.LazyWindow.Start)
	p.MaxDate = today.AddDate(0, 0, s.cfg.LazyWindow.End)
	p.Marked = availability.CalendarDates(session.Extended)
	return p
}

// calendarDate checks that date is selectable in the calendar and returns it as
// midnight in the session timezone.
func (s *FlowService) calendarDate(session *models.BookingSession, date string, now time.Time) (time.Time, error) {
	day, err := time.ParseInLocation(models.DateLayout, date, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidRequest, date)
	}
	p := s.picker(session, now)
	p.Year, p.Month = day.Year(), day.Month()
	if _, err := p.Select(date, now); err != nil {
		return time.Time{}, err
	}
	return day, nil
}

func calendarNotLoaded(session *models.BookingSession) error {
	if session.ExtendedError != "" {
		return fmt.Errorf("%w: calendar failed to load: %s", ErrNotReady, session.ExtendedError)
	}
	return fmt.Errorf("%w: calendar not opened", ErrNotReady)
}

func flowSlot(date, branchID string, slot models.TimeSlot) flow.Slot {
	return flow.Slot{
		Date:      date,
		Time:      slot.Time,
		BranchID:  branchID,
		Employees: slot.Employees,
		Occupied:  slot.OccupiedByClient,
	}
}

// IsClientError reports whether err was caused by the request rather than by a
// dependency.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest, ErrSlotNotFound, ErrMissingSelection,
		flow.ErrSlotOccupied, flow.ErrSlotUnavailable, flow.ErrEmployeeNotEligible,
		flow.ErrBranchNotEligible, flow.ErrInvalidClientDetails,
		calendar.ErrDateDisabled, calendar.ErrNavigationBlocked,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
