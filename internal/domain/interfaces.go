package domain

import (
	"context"
	"time"

	"agendei/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type SessionRepository interface {
	GetSession(ctx context.Context, id string) (*models.BookingSession, error)
	SaveSession(ctx context.Context, session *models.BookingSession) error
	DeleteSession(ctx context.Context, id string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type SchedulingBackend interface {
	FetchAvailability(ctx context.Context, window models.AvailabilityWindow) (*models.AvailabilityResponse, error)
	CreateAppointment(ctx context.Context, req models.AppointmentRequest) (*models.Appointment, error)
	ListServices(ctx context.Context, companyID string) ([]models.Service, error)
}

type SubmissionJournal interface {
	Record(ctx context.Context, submission *models.Submission) error
	ListBySession(ctx context.Context, sessionID string) ([]*models.Submission, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}
