package bot

import (
	"context"
	"errors"
	"strings"

	"agendei/internal/flow"
	"agendei/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	userID, chatID := msg.From.ID, msg.Chat.ID
	st := b.state.get(userID)
	text := strings.TrimSpace(msg.Text)

	switch st.Step {
	case stepAwaitingName:
		if text == "" {
			b.reply(chatID, msgAskName)
			return
		}
		b.state.update(userID, func(s *chatState) {
			s.PendingName = text
			s.Step = stepAwaitingPhone
		})
		b.reply(chatID, msgAskPhone)
	case stepAwaitingPhone:
		b.submitClientDetails(ctx, chatID, userID, st, text)
	default:
		b.reply(chatID, msgHelp)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID, chatID := msg.From.ID, msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.reply(chatID, msgWelcome)
	case "help":
		b.reply(chatID, msgHelp)
	case "book":
		b.exitSession(ctx, userID)
		services, err := b.flows.ListServices(ctx, b.config.CompanyID)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to list services")
			b.reply(chatID, userMessage(err))
			return
		}
		if len(services) == 0 {
			b.reply(chatID, msgNoServices)
			return
		}
		b.replyWithKeyboard(chatID, msgChooseService, servicesKeyboard(services))
	case "cancel":
		if b.state.get(userID).SessionID == "" {
			b.reply(chatID, msgNoSession)
			return
		}
		b.exitSession(ctx, userID)
		b.reply(chatID, msgCancelled)
	default:
		b.reply(chatID, msgUnknownCommand)
	}
}

// submitClientDetails sends the collected name and phone and moves straight to
// the confirmation screen.
func (b *Bot) submitClientDetails(ctx context.Context, chatID, userID int64, st chatState, phone string) {
	details := flow.ClientDetails{Name: st.PendingName, Phone: phone}
	if _, err := b.flows.EnterClientDetails(ctx, st.SessionID, details); err != nil {
		b.replyFlowError(ctx, chatID, userID, err)
		if errors.Is(err, flow.ErrInvalidClientDetails) {
			b.state.update(userID, func(s *chatState) { s.Step = stepAwaitingName })
			b.reply(chatID, msgAskName)
		}
		return
	}

	view, err := b.flows.Review(ctx, st.SessionID)
	if err != nil {
		b.replyFlowError(ctx, chatID, userID, err)
		return
	}
	b.state.update(userID, func(s *chatState) {
		s.Step = stepNone
		s.PendingName = ""
	})
	b.replyWithKeyboard(chatID, viewText(view), confirmKeyboard())
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil {
		return
	}
	userID, chatID, messageID := cq.From.ID, cq.Message.Chat.ID, cq.Message.MessageID
	data := cq.Data

	toast := ""
	var err error

	switch {
	case data == cbNoop:
	case data == cbLocked:
		toast = msgLocked
	case strings.HasPrefix(data, cbService):
		err = b.startSession(ctx, chatID, messageID, userID, strings.TrimPrefix(data, cbService))
	case strings.HasPrefix(data, cbCalOpen):
		err = b.openCalendar(ctx, chatID, messageID, userID)
	case strings.HasPrefix(data, cbCalMonth):
		err = b.showMonth(ctx, chatID, messageID, userID, strings.TrimPrefix(data, cbCalMonth))
	case strings.HasPrefix(data, cbCalDay):
		err = b.showDay(ctx, chatID, messageID, userID, strings.TrimPrefix(data, cbCalDay))
	case strings.HasPrefix(data, cbCalSlot):
		date, hhmm, ok := splitSlot(strings.TrimPrefix(data, cbCalSlot))
		if !ok {
			break
		}
		err = b.withSession(userID, func(id string) error {
			return b.render(chatID, messageID, userID)(b.flows.SelectCalendarSlot(ctx, id, date, hhmm))
		})
	case data == cbCalClose:
		err = b.withSession(userID, func(id string) error {
			return b.render(chatID, messageID, userID)(b.flows.Get(ctx, id))
		})
	case strings.HasPrefix(data, cbSlot):
		date, hhmm, ok := splitSlot(strings.TrimPrefix(data, cbSlot))
		if !ok {
			break
		}
		err = b.withSession(userID, func(id string) error {
			return b.render(chatID, messageID, userID)(b.flows.SelectSlot(ctx, id, date, hhmm))
		})
	case data == cbReload:
		err = b.withSession(userID, func(id string) error {
			return b.render(chatID, messageID, userID)(b.flows.Reload(ctx, id))
		})
	case strings.HasPrefix(data, cbEmployee):
		err = b.withSession(userID, func(id string) error {
			return b.render(chatID, messageID, userID)(b.flows.SelectEmployee(ctx, id, strings.TrimPrefix(data, cbEmployee)))
		})
	case strings.HasPrefix(data, cbBranch):
		err = b.withSession(userID, func(id string) error {
			return b.render(chatID, messageID, userID)(b.flows.SelectBranch(ctx, id, strings.TrimPrefix(data, cbBranch)))
		})
	case data == cbBack:
		err = b.withSession(userID, func(id string) error {
			return b.render(chatID, messageID, userID)(b.back(ctx, id))
		})
	case data == cbConfirm:
		err = b.confirm(ctx, chatID, messageID, userID)
	case data == cbExit:
		b.exitSession(ctx, userID)
		b.edit(chatID, messageID, msgCancelled, tgbotapi.NewInlineKeyboardMarkup())
	default:
		zerolog.Ctx(ctx).Warn().Str("data", data).Msg("Unknown callback data")
	}

	if err != nil {
		toast = userMessage(err)
		b.handleFlowError(ctx, chatID, userID, err)
	}
	if aerr := b.tg.AnswerCallback(cq.ID, toast); aerr != nil {
		zerolog.Ctx(ctx).Warn().Err(aerr).Msg("Failed to answer callback")
	}
}

func (b *Bot) startSession(ctx context.Context, chatID int64, messageID int, userID int64, serviceID string) error {
	b.exitSession(ctx, userID)

	view, err := b.flows.Start(ctx, service.StartRequest{
		CompanyID: b.config.CompanyID,
		ServiceID: serviceID,
		ClientID:  clientID(userID),
	})
	if err != nil {
		return err
	}
	b.state.set(userID, chatState{SessionID: view.SessionID, Step: stepNone})
	return b.render(chatID, messageID, userID)(view, nil)
}

// openCalendar loads the extended range on first use and shows the current month.
func (b *Bot) openCalendar(ctx context.Context, chatID int64, messageID int, userID int64) error {
	return b.withSession(userID, func(id string) error {
		view, err := b.flows.OpenCalendar(ctx, id)
		if err != nil {
			return err
		}
		if !view.CalendarLoaded {
			return b.render(chatID, messageID, userID)(view, nil)
		}
		return b.showMonth(ctx, chatID, messageID, userID, "")
	})
}

func (b *Bot) showMonth(ctx context.Context, chatID int64, messageID int, userID int64, month string) error {
	return b.withSession(userID, func(id string) error {
		cal, err := b.flows.CalendarMonth(ctx, id, month)
		if err != nil {
			return err
		}
		b.edit(chatID, messageID, calendarText(cal), calendarKeyboard(cal))
		return nil
	})
}

func (b *Bot) showDay(ctx context.Context, chatID int64, messageID int, userID int64, date string) error {
	return b.withSession(userID, func(id string) error {
		day, err := b.flows.DaySlots(ctx, id, date)
		if err != nil {
			return err
		}
		b.edit(chatID, messageID, daySlotsText(day), daySlotsKeyboard(day))
		return nil
	})
}

// back steps over the client details screen, which the bot never shows on its own.
func (b *Bot) back(ctx context.Context, id string) (*service.View, error) {
	view, err := b.flows.Back(ctx, id)
	if err != nil {
		return nil, err
	}
	if view.State == flow.ClientDetailsEntered {
		return b.flows.Back(ctx, id)
	}
	return view, nil
}

func (b *Bot) confirm(ctx context.Context, chatID int64, messageID int, userID int64) error {
	return b.withSession(userID, func(id string) error {
		result, err := b.flows.Confirm(ctx, id)
		if err != nil {
			// The refreshed view carries the backend message for a retry.
			if view, gerr := b.flows.Get(ctx, id); gerr == nil {
				b.edit(chatID, messageID, viewText(view), confirmKeyboard())
			}
			return err
		}
		b.state.reset(userID)
		b.edit(chatID, messageID, confirmedText(result), tgbotapi.NewInlineKeyboardMarkup())
		return nil
	})
}

// render shows view in place of the callback's message and tracks which free
// text the bot expects next.
func (b *Bot) render(chatID int64, messageID int, userID int64) func(*service.View, error) error {
	return func(view *service.View, err error) error {
		if err != nil {
			return err
		}

		step := stepNone
		var keyboard tgbotapi.InlineKeyboardMarkup
		switch view.State {
		case flow.Browsing:
			keyboard = daysKeyboard(view)
		case flow.TimeChosen:
			keyboard = employeesKeyboard(view.Employees)
		case flow.EmployeeChosen:
			keyboard = branchesKeyboard(view.Branches)
		case flow.BranchChosen:
			keyboard = tgbotapi.NewInlineKeyboardMarkup(backExitRow())
			step = stepAwaitingName
		default:
			keyboard = confirmKeyboard()
		}

		b.state.update(userID, func(s *chatState) {
			s.SessionID = view.SessionID
			s.Step = step
			if step == stepNone {
				s.PendingName = ""
			}
		})
		b.edit(chatID, messageID, viewText(view), keyboard)
		return nil
	}
}

// withSession runs fn with the user's current booking session.
func (b *Bot) withSession(userID int64, fn func(id string) error) error {
	id := b.state.get(userID).SessionID
	if id == "" {
		return service.ErrSessionNotFound
	}
	return fn(id)
}

// exitSession ends the user's session, if any. An already expired session is not an error.
func (b *Bot) exitSession(ctx context.Context, userID int64) {
	id := b.state.get(userID).SessionID
	b.state.reset(userID)
	if id == "" {
		return
	}
	if err := b.flows.Exit(ctx, id); err != nil && !errors.Is(err, service.ErrSessionNotFound) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("session_id", id).Msg("Failed to exit booking session")
	}
}

// handleFlowError logs err and forgets sessions the service no longer knows.
func (b *Bot) handleFlowError(ctx context.Context, chatID, userID int64, err error) {
	if errors.Is(err, service.ErrSessionNotFound) {
		b.state.reset(userID)
		b.reply(chatID, userMessage(err))
		return
	}
	if service.IsClientError(err) {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("user_id", userID).Msg("Rejected user action")
		return
	}
	zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Booking flow call failed")
}

// replyFlowError is handleFlowError for plain messages, which have no toast.
func (b *Bot) replyFlowError(ctx context.Context, chatID, userID int64, err error) {
	b.handleFlowError(ctx, chatID, userID, err)
	if !errors.Is(err, service.ErrSessionNotFound) {
		b.reply(chatID, userMessage(err))
	}
}

// splitSlot parses "<date>:<hh:mm>".
func splitSlot(data string) (date, hhmm string, ok bool) {
	date, hhmm, ok = strings.Cut(data, ":")
	if !ok || date == "" || hhmm == "" {
		return "", "", false
	}
	return date, hhmm, true
}
