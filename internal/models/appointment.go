package models

import "time"

// Service is a read-only catalog entry of a company.
type Service struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Duration    int     `json:"duration"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

// AppointmentRequest is the body of the appointment creation endpoint.
// There is no end time: duration is applied by the backend.
type AppointmentRequest struct {
	BranchID   string `json:"branch_id"`
	ClientID   string `json:"client_id"`
	CompanyID  string `json:"company_id"`
	EmployeeID string `json:"employee_id"`
	ServiceID  string `json:"service_id"`
	StartTime  string `json:"start_time"`
	TimeZone   string `json:"time_zone"`
}

// Appointment is the record returned by the backend after creation.
type Appointment struct {
	ID         string    `json:"id"`
	BranchID   string    `json:"branch_id"`
	ClientID   string    `json:"client_id"`
	CompanyID  string    `json:"company_id"`
	EmployeeID string    `json:"employee_id"`
	ServiceID  string    `json:"service_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time,omitempty"`
	Status     string    `json:"status,omitempty"`
}

// Submission is one journaled submission attempt.
type Submission struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	CompanyID     string    `json:"company_id"`
	ServiceID     string    `json:"service_id"`
	ClientID      string    `json:"client_id"`
	EmployeeID    string    `json:"employee_id"`
	BranchID      string    `json:"branch_id"`
	StartTime     string    `json:"start_time"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
