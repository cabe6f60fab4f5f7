package api

import (
	"fmt"
	"net/http"
	"strings"

	"agendei/internal/flow"
	"agendei/internal/service"

	"github.com/go-chi/chi/v5"
)

const (
	slotSourceInline   = "inline"
	slotSourceCalendar = "calendar"
)

type slotRequest struct {
	Source string `json:"source"`
	Date   string `json:"date"`
	Time   string `json:"time"`
}

type employeeRequest struct {
	EmployeeID string `json:"employee_id"`
}

type branchRequest struct {
	BranchID string `json:"branch_id"`
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.flows.ListServices(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	var req service.StartRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	view, err := s.flows.Start(r.Context(), req)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	s.respondView(w, r)(s.flows.Get(r.Context(), sessionID(r)))
}

func (s *HTTPServer) handleExit(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Exit(r.Context(), sessionID(r)); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleReload(w http.ResponseWriter, r *http.Request) {
	s.respondView(w, r)(s.flows.Reload(r.Context(), sessionID(r)))
}

func (s *HTTPServer) handleOpenCalendar(w http.ResponseWriter, r *http.Request) {
	s.respondView(w, r)(s.flows.OpenCalendar(r.Context(), sessionID(r)))
}

func (s *HTTPServer) handleCalendarMonth(w http.ResponseWriter, r *http.Request) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	view, err := s.flows.CalendarMonth(r.Context(), sessionID(r), month)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleDaySlots(w http.ResponseWriter, r *http.Request) {
	view, err := s.flows.DaySlots(r.Context(), sessionID(r), chi.URLParam(r, "date"))
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleSelectSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	date, hhmm := strings.TrimSpace(req.Date), strings.TrimSpace(req.Time)
	if date == "" || hhmm == "" {
		s.writeFlowError(w, r, fmt.Errorf("%w: date and time are required", service.ErrInvalidRequest))
		return
	}

	switch req.Source {
	case "", slotSourceInline:
		s.respondView(w, r)(s.flows.SelectSlot(r.Context(), sessionID(r), date, hhmm))
	case slotSourceCalendar:
		s.respondView(w, r)(s.flows.SelectCalendarSlot(r.Context(), sessionID(r), date, hhmm))
	default:
		s.writeFlowError(w, r, fmt.Errorf("%w: unknown source %q", service.ErrInvalidRequest, req.Source))
	}
}

func (s *HTTPServer) handleSelectEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	s.respondView(w, r)(s.flows.SelectEmployee(r.Context(), sessionID(r), strings.TrimSpace(req.EmployeeID)))
}

func (s *HTTPServer) handleSelectBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	s.respondView(w, r)(s.flows.SelectBranch(r.Context(), sessionID(r), strings.TrimSpace(req.BranchID)))
}

func (s *HTTPServer) handleClientDetails(w http.ResponseWriter, r *http.Request) {
	var req flow.ClientDetails
	if err := decodeJSON(r, &req); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	s.respondView(w, r)(s.flows.EnterClientDetails(r.Context(), sessionID(r), req))
}

func (s *HTTPServer) handleReview(w http.ResponseWriter, r *http.Request) {
	s.respondView(w, r)(s.flows.Review(r.Context(), sessionID(r)))
}

func (s *HTTPServer) handleBack(w http.ResponseWriter, r *http.Request) {
	s.respondView(w, r)(s.flows.Back(r.Context(), sessionID(r)))
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	result, err := s.flows.Confirm(r.Context(), sessionID(r))
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.flows.Submissions(r.Context(), sessionID(r))
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": entries})
}

// respondView writes the result of a flow call that returns a View.
func (s *HTTPServer) respondView(w http.ResponseWriter, r *http.Request) func(*service.View, error) {
	return func(view *service.View, err error) {
		if err != nil {
			s.writeFlowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
