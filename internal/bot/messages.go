package bot

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"agendei/internal/backend"
	"agendei/internal/calendar"
	"agendei/internal/flow"
	"agendei/internal/service"
)

const (
	msgWelcome = "Olá! Eu ajudo você a agendar um horário.\n\n" +
		"/book - novo agendamento\n" +
		"/cancel - cancelar o agendamento em andamento\n" +
		"/help - ajuda"
	msgHelp = "Escolha um serviço com /book, depois um horário, o profissional e a unidade. " +
		"Antes de confirmar eu peço seu nome e telefone.\n\n" +
		"Horários com 🔒 já estão reservados por você."
	msgRateLimited     = "Muitas mensagens em pouco tempo. Aguarde um instante."
	msgNoServices      = "Nenhum serviço disponível no momento."
	msgChooseService   = "Escolha o serviço:"
	msgNoSession       = "Nenhum agendamento em andamento. Use /book para começar."
	msgCancelled       = "Agendamento cancelado."
	msgAskName         = "Qual é o seu nome?"
	msgAskPhone        = "Qual é o seu telefone com DDD?"
	msgLocked          = "Você já tem um agendamento neste horário."
	msgChooseEmployee  = "Escolha o profissional:"
	msgChooseBranch    = "Escolha a unidade:"
	msgNoSlots         = "Nenhum horário disponível para hoje ou amanhã."
	msgCalendarLoading = "Não foi possível carregar o calendário."
	msgUnknownCommand  = "Comando desconhecido. Use /help."
	msgGenericError    = "Algo deu errado. Tente novamente."
)

// userMessage turns a flow error into text for the chat. Backend rejections
// are shown with the backend's own message.
func userMessage(err error) string {
	var apiErr *backend.APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, service.ErrSessionNotFound):
		return "Sua sessão expirou. Use /book para começar de novo."
	case errors.Is(err, service.ErrSlotNotFound):
		return "Esse horário não está mais disponível."
	case errors.Is(err, flow.ErrInvalidClientDetails):
		return "Dados inválidos: " + strings.TrimPrefix(err.Error(), flow.ErrInvalidClientDetails.Error()+": ")
	case errors.Is(err, calendar.ErrDateDisabled):
		return "Essa data não pode ser escolhida."
	case errors.Is(err, calendar.ErrNavigationBlocked):
		return "Não há datas disponíveis nesse mês."
	case errors.Is(err, service.ErrNotReady):
		return msgCalendarLoading + " Tente novamente."
	case errors.Is(err, flow.ErrInvalidTransition), errors.Is(err, flow.ErrAtStart), errors.Is(err, service.ErrMissingSelection):
		return "Essa opção não está disponível agora."
	default:
		return msgGenericError
	}
}

// viewText is the message shown above the keyboard of view.
func viewText(view *service.View) string {
	switch view.State {
	case flow.Browsing:
		return browsingText(view)
	case flow.TimeChosen:
		return fmt.Sprintf("%s\n\n%s", selectionLine(view.Selection), msgChooseEmployee)
	case flow.EmployeeChosen:
		return fmt.Sprintf("%s\n\n%s", selectionLine(view.Selection), msgChooseBranch)
	case flow.BranchChosen:
		return fmt.Sprintf("%s\n\n%s", selectionLine(view.Selection), msgAskName)
	case flow.ClientDetailsEntered, flow.ConfirmationReady:
		return summaryText(view.Summary, view.SubmitError)
	default:
		return msgGenericError
	}
}

func browsingText(view *service.View) string {
	var sb strings.Builder
	sb.WriteString("Escolha um horário:")
	if len(view.Days) == 0 {
		sb.WriteString("\n\n")
		sb.WriteString(msgNoSlots)
	}
	for _, day := range view.Days {
		sb.WriteString("\n")
		sb.WriteString(bucketTitle(day))
	}
	if view.EagerError != "" {
		sb.WriteString("\n\n⚠️ Não foi possível carregar os horários: ")
		sb.WriteString(html.EscapeString(view.EagerError))
	}
	if view.ExtendedError != "" {
		sb.WriteString("\n\n⚠️ ")
		sb.WriteString(msgCalendarLoading)
	}
	return sb.String()
}

func selectionLine(sel flow.Selection) string {
	return fmt.Sprintf("📅 %s às %s", html.EscapeString(sel.Date), html.EscapeString(sel.Time))
}

// summaryText renders the confirmation screen. submitError is the backend
// message of a previous failed attempt.
func summaryText(s *service.Summary, submitError string) string {
	if s == nil {
		return msgGenericError
	}

	var sb strings.Builder
	sb.WriteString("<b>Confira seu agendamento</b>\n\n")
	fmt.Fprintf(&sb, "Data: %s\n", html.EscapeString(orDefault(s.DisplayDate, s.Date)))
	fmt.Fprintf(&sb, "Horário: %s\n", html.EscapeString(s.Time))
	fmt.Fprintf(&sb, "Profissional: %s\n", html.EscapeString(orDefault(s.EmployeeName, s.EmployeeID)))
	fmt.Fprintf(&sb, "Unidade: %s\n", html.EscapeString(orDefault(s.BranchName, s.BranchID)))
	if s.Client != nil {
		fmt.Fprintf(&sb, "Nome: %s\n", html.EscapeString(s.Client.Name))
		fmt.Fprintf(&sb, "Telefone: %s\n", html.EscapeString(s.Client.Phone))
	}
	if submitError != "" {
		fmt.Fprintf(&sb, "\n⚠️ %s\n", html.EscapeString(submitError))
	}
	sb.WriteString("\nConfirmar?")
	return sb.String()
}

func confirmedText(result *service.ConfirmResult) string {
	var sb strings.Builder
	sb.WriteString("✅ <b>Agendamento confirmado!</b>")
	if result != nil && result.Summary != nil {
		s := result.Summary
		fmt.Fprintf(&sb, "\n\n%s às %s\n%s · %s",
			html.EscapeString(orDefault(s.DisplayDate, s.Date)),
			html.EscapeString(s.Time),
			html.EscapeString(orDefault(s.EmployeeName, s.EmployeeID)),
			html.EscapeString(orDefault(s.BranchName, s.BranchID)),
		)
	}
	if result != nil && result.Appointment != nil && result.Appointment.ID != "" {
		fmt.Fprintf(&sb, "\nCódigo: <code>%s</code>", html.EscapeString(result.Appointment.ID))
	}
	return sb.String()
}

func daySlotsText(day *service.DayView) string {
	return fmt.Sprintf("Horários de <b>%s</b>:", html.EscapeString(orDefault(day.DisplayDate, day.Date)))
}

func calendarText(cal *service.CalendarView) string {
	text := "Escolha uma data (• tem horários):"
	if cal.ExtendedError != "" {
		text += "\n\n⚠️ " + msgCalendarLoading
	}
	return text
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
