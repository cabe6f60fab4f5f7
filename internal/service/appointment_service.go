package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"agendei/internal/domain"
	"agendei/internal/events"
	"agendei/internal/flow"
	"agendei/internal/metrics"
	"agendei/internal/models"

	"github.com/rs/zerolog"
)

const localDateTimeLayout = "2006-01-02T15:04:05"

type AppointmentService struct {
	backend  domain.SchedulingBackend
	journal  domain.SubmissionJournal
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewAppointmentService(backend domain.SchedulingBackend, journal domain.SubmissionJournal, eventBus domain.EventPublisher, logger *zerolog.Logger) *AppointmentService {
	return &AppointmentService{
		backend:  backend,
		journal:  journal,
		eventBus: eventBus,
		logger:   logger,
	}
}

// BuildAppointmentRequest turns a complete selection into the creation body.
// start_time is the selected wall-clock time in timezone, as an RFC 3339 instant.
func BuildAppointmentRequest(sel flow.Selection, clientID, companyID, serviceID, timezone string) (models.AppointmentRequest, error) {
	var missing []string
	for name, v := range map[string]string{
		"date":        sel.Date,
		"time":        sel.Time,
		"branch_id":   sel.Branch(),
		"employee_id": sel.EmployeeID,
		"client_id":   strings.TrimSpace(clientID),
		"company_id":  strings.TrimSpace(companyID),
		"service_id":  strings.TrimSpace(serviceID),
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return models.AppointmentRequest{}, fmt.Errorf("%w: missing %s", ErrMissingSelection, strings.Join(missing, ", "))
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return models.AppointmentRequest{}, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	start, err := time.ParseInLocation(localDateTimeLayout, sel.Date+"T"+sel.Time+":00", loc)
	if err != nil {
		return models.AppointmentRequest{}, fmt.Errorf("%w: start time: %v", ErrMissingSelection, err)
	}

	return models.AppointmentRequest{
		BranchID:   sel.Branch(),
		ClientID:   clientID,
		CompanyID:  companyID,
		EmployeeID: sel.EmployeeID,
		ServiceID:  serviceID,
		StartTime:  start.Format(time.RFC3339),
		TimeZone:   timezone,
	}, nil
}

// Submit creates the appointment once. Every attempt is journaled and published.
// A backend failure is returned unchanged so its message reaches the user verbatim.
func (s *AppointmentService) Submit(ctx context.Context, sessionID string, req models.AppointmentRequest) (*models.Appointment, error) {
	appt, err := s.backend.CreateAppointment(ctx, req)
	metrics.ObserveSubmission(err)

	entry := &models.Submission{
		SessionID:  sessionID,
		CompanyID:  req.CompanyID,
		ServiceID:  req.ServiceID,
		ClientID:   req.ClientID,
		EmployeeID: req.EmployeeID,
		BranchID:   req.BranchID,
		StartTime:  req.StartTime,
		Status:     models.SubmissionSucceeded,
	}
	payload := events.AppointmentEventPayload{
		SessionID:  sessionID,
		CompanyID:  req.CompanyID,
		ServiceID:  req.ServiceID,
		ClientID:   req.ClientID,
		EmployeeID: req.EmployeeID,
		BranchID:   req.BranchID,
		StartTime:  req.StartTime,
	}
	eventType := events.EventAppointmentCreated

	if err != nil {
		entry.Status = models.SubmissionFailed
		entry.Error = err.Error()
		payload.Error = err.Error()
		eventType = events.EventAppointmentFailed
		s.logger.Warn().Err(err).Str("session_id", sessionID).Str("start_time", req.StartTime).Msg("Appointment submission failed")
	} else {
		entry.AppointmentID = appt.ID
		payload.AppointmentID = appt.ID
		s.logger.Info().Str("session_id", sessionID).Str("appointment_id", appt.ID).Msg("Appointment created")
	}

	if s.journal != nil {
		if jerr := s.journal.Record(ctx, entry); jerr != nil {
			s.logger.Error().Err(jerr).Str("session_id", sessionID).Msg("Failed to journal submission")
		}
	}
	if s.eventBus != nil {
		if perr := s.eventBus.PublishJSON(eventType, payload); perr != nil {
			s.logger.Warn().Err(perr).Str("event", eventType).Msg("Failed to publish submission event")
		}
	}

	if err != nil {
		return nil, err
	}
	return appt, nil
}

// History lists the journaled attempts of a session.
func (s *AppointmentService) History(ctx context.Context, sessionID string) ([]*models.Submission, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.ListBySession(ctx, sessionID)
}
