package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"agendei/internal/backend"
	"agendei/internal/config"
	"agendei/internal/flow"
	"agendei/internal/models"
	"agendei/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// BookingFlow is the booking session API served over HTTP.
type BookingFlow interface {
	ListServices(ctx context.Context, companyID string) ([]models.Service, error)
	Start(ctx context.Context, req service.StartRequest) (*service.View, error)
	Get(ctx context.Context, id string) (*service.View, error)
	Reload(ctx context.Context, id string) (*service.View, error)
	OpenCalendar(ctx context.Context, id string) (*service.View, error)
	CalendarMonth(ctx context.Context, id, month string) (*service.CalendarView, error)
	DaySlots(ctx context.Context, id, date string) (*service.DayView, error)
	SelectSlot(ctx context.Context, id, date, hhmm string) (*service.View, error)
	SelectCalendarSlot(ctx context.Context, id, date, hhmm string) (*service.View, error)
	SelectEmployee(ctx context.Context, id, employeeID string) (*service.View, error)
	SelectBranch(ctx context.Context, id, branchID string) (*service.View, error)
	EnterClientDetails(ctx context.Context, id string, details flow.ClientDetails) (*service.View, error)
	Review(ctx context.Context, id string) (*service.View, error)
	Back(ctx context.Context, id string) (*service.View, error)
	Confirm(ctx context.Context, id string) (*service.ConfirmResult, error)
	Exit(ctx context.Context, id string) error
	Submissions(ctx context.Context, id string) ([]*models.Submission, error)
}

// HealthCheck is one dependency probed by /readyz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HTTPServer exposes the booking flow as a JSON API.
type HTTPServer struct {
	cfg    config.APIConfig
	flows  BookingFlow
	checks []HealthCheck
	auth   *HTTPAuth
	logger *zerolog.Logger
	server *http.Server
}

func NewHTTPServer(cfg config.APIConfig, flows BookingFlow, checks []HealthCheck, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:    cfg,
		flows:  flows,
		checks: checks,
		auth:   NewHTTPAuth(cfg),
		logger: logger,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/companies/{companyID}/services", s.handleListServices)

		r.Post("/sessions", s.handleStart)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleExit)
			r.Post("/reload", s.handleReload)
			r.Post("/calendar/open", s.handleOpenCalendar)
			r.Get("/calendar", s.handleCalendarMonth)
			r.Get("/calendar/days/{date}", s.handleDaySlots)
			r.Post("/slot", s.handleSelectSlot)
			r.Post("/employee", s.handleSelectEmployee)
			r.Post("/branch", s.handleSelectBranch)
			r.Post("/client", s.handleClientDetails)
			r.Post("/review", s.handleReview)
			r.Post("/back", s.handleBack)
			r.Post("/confirm", s.handleConfirm)
			r.Get("/submissions", s.handleSubmissions)
		})
	})

	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	results := make(map[string]string, len(s.checks))
	ready := true
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			results[c.Name] = err.Error()
			ready = false
			continue
		}
		results[c.Name] = "ok"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ready, "checks": results})
}

// writeFlowError maps service errors onto HTTP statuses. Backend failures keep
// the backend's own message.
func (s *HTTPServer) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, flow.ErrInvalidTransition), errors.Is(err, flow.ErrAtStart), errors.Is(err, service.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.Message)
	case errors.Is(err, models.ErrInvalidPayload), errors.Is(err, backend.ErrUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, backend.ErrInvalidWindow), service.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: invalid JSON body", service.ErrInvalidRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
