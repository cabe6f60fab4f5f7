// Package bot is the Telegram front end of the booking flow.
package bot

import (
	"context"
	"fmt"
	"os"
	"time"

	"agendei/internal/config"
	"agendei/internal/flow"
	"agendei/internal/models"
	"agendei/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Messenger sends and edits chat messages.
type Messenger interface {
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	EditMessage(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	AnswerCallback(callbackID, text string) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// Flow is the part of the booking flow the bot drives.
type Flow interface {
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
}

// RateLimiter counts user actions over a window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Bot struct {
	tg      Messenger
	flows   Flow
	limiter RateLimiter
	config  config.TelegramConfig
	state   *stateStore
	metrics *Metrics
	logger  *zerolog.Logger
}

func NewBot(
	tg Messenger,
	flows Flow,
	limiter RateLimiter,
	cfg config.TelegramConfig,
	metrics *Metrics,
	logger *zerolog.Logger,
) *Bot {
	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}

	return &Bot{
		tg:      tg,
		flows:   flows,
		limiter: limiter,
		config:  cfg,
		state:   newStateStore(),
		metrics: metrics,
		logger:  logger,
	}
}

// Start consumes updates until ctx is cancelled or the channel closes.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates.
func (b *Bot) Stop() {
	if b == nil || b.tg == nil {
		return
	}
	b.tg.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		var userID, chatID int64
		switch {
		case update.Message != nil && update.Message.From != nil:
			userID, chatID = update.Message.From.ID, update.Message.Chat.ID
		case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
			userID, chatID = update.CallbackQuery.From.ID, update.CallbackQuery.Message.Chat.ID
		}
		if userID == 0 {
			return
		}

		if !b.allow(updateCtx, userID) {
			if update.CallbackQuery != nil {
				_ = b.tg.AnswerCallback(update.CallbackQuery.ID, msgRateLimited)
			} else {
				b.reply(chatID, msgRateLimited)
			}
			return
		}

		if update.CallbackQuery != nil {
			b.countUpdate("callback")
			b.handleCallback(updateCtx, update.CallbackQuery)
			return
		}
		b.countUpdate("message")
		b.handleMessage(updateCtx, update.Message)
	})
}

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.ErrorsTotal.Inc()
			}
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// allow applies the per-user rate limit. A failing limiter lets the update through.
func (b *Bot) allow(ctx context.Context, userID int64) bool {
	if b.limiter == nil || b.config.RateLimitMessages <= 0 {
		return true
	}
	window := time.Duration(b.config.RateLimitWindow) * time.Second
	allowed, err := b.limiter.CheckRateLimit(ctx, fmt.Sprintf("telegram:%d", userID), b.config.RateLimitMessages, window)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
		return true
	}
	if !allowed {
		if b.metrics != nil {
			b.metrics.RateLimited.Inc()
		}
		b.logger.Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
	}
	return allowed
}

func (b *Bot) countUpdate(kind string) {
	if b.metrics != nil {
		b.metrics.UpdatesProcessed.WithLabelValues(kind).Inc()
	}
}

func clientID(userID int64) string {
	return fmt.Sprintf("telegram-%d", userID)
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.tg.SendMessage(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	if _, err := b.tg.SendWithInlineKeyboard(chatID, text, keyboard); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) edit(chatID int64, messageID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	if _, err := b.tg.EditMessage(chatID, messageID, text, &keyboard); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to edit message, sending a new one")
		b.replyWithKeyboard(chatID, text, keyboard)
	}
}
