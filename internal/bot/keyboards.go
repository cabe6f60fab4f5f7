package bot

import (
	"fmt"
	"strconv"
	"strings"

	"agendei/internal/availability"
	"agendei/internal/models"
	"agendei/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data prefixes.
const (
	cbService      = "svc:"
	cbSlot         = "slot:"
	cbLocked       = "locked"
	cbReload       = "reload"
	cbCalOpen      = "cal:open"
	cbCalMonth     = "cal:month:"
	cbCalDay       = "cal:day:"
	cbCalSlot      = "cal:slot:"
	cbCalClose     = "cal:close"
	cbEmployee     = "emp:"
	cbBranch       = "br:"
	cbConfirm      = "confirm"
	cbBack         = "back"
	cbExit         = "exit"
	cbNoop         = "noop"
	slotsPerRow    = 4
	weekdaysInGrid = 7
)

var weekdayHeader = [...]string{"Seg", "Ter", "Qua", "Qui", "Sex", "Sáb", "Dom"}

func servicesKeyboard(services []models.Service) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(services))
	for _, s := range services {
		label := s.Name
		if s.Duration > 0 {
			label = fmt.Sprintf("%s (%d min)", s.Name, s.Duration)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbService+s.ID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// slotButtons lays slots out slotsPerRow per row. Slots the client already
// holds are shown locked.
func slotButtons(date string, slots []models.TimeSlot, prefix string) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, s := range slots {
		btn := tgbotapi.NewInlineKeyboardButtonData(s.Time, prefix+date+":"+s.Time)
		if s.OccupiedByClient {
			btn = tgbotapi.NewInlineKeyboardButtonData("🔒 "+s.Time, cbLocked)
		} else if len(s.Employees) == 0 {
			continue
		}
		row = append(row, btn)
		if len(row) == slotsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

// daysKeyboard is the quick view: today's and tomorrow's slots plus the way
// into the calendar.
func daysKeyboard(view *service.View) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, day := range view.Days {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s · %s", day.Label, day.DisplayDate), cbNoop),
		))
		rows = append(rows, slotButtons(day.Date, day.Slots, cbSlot)...)
	}
	if view.EagerError != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Tentar novamente", cbReload),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📅 Mais datas", cbCalOpen)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✖️ Sair", cbExit)),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// calendarKeyboard renders a month as a Monday-first grid. Disabled days are
// shown as a dot and days with availability carry a marker.
func calendarKeyboard(cal *service.CalendarView) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(cal.Cells)/weekdaysInGrid+3)
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(cal.Title, cbNoop),
	))

	header := make([]tgbotapi.InlineKeyboardButton, 0, weekdaysInGrid)
	for _, name := range weekdayHeader {
		header = append(header, tgbotapi.NewInlineKeyboardButtonData(name, cbNoop))
	}
	rows = append(rows, header)

	row := make([]tgbotapi.InlineKeyboardButton, 0, weekdaysInGrid)
	for _, cell := range cal.Cells {
		row = append(row, dayButton(cell.Date, cell.Day, cell.InMonth, cell.Disabled, cell.HasAvailability))
		if len(row) == weekdaysInGrid {
			rows = append(rows, row)
			row = make([]tgbotapi.InlineKeyboardButton, 0, weekdaysInGrid)
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	nav := make([]tgbotapi.InlineKeyboardButton, 0, 3)
	if cal.CanPrev {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("◀️", cbCalMonth+shiftMonth(cal.Month, -1)))
	} else {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(" ", cbNoop))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("✖️ Fechar", cbCalClose))
	if cal.CanNext {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("▶️", cbCalMonth+shiftMonth(cal.Month, 1)))
	} else {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(" ", cbNoop))
	}
	rows = append(rows, nav)

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func dayButton(date string, day int, inMonth, disabled, marked bool) tgbotapi.InlineKeyboardButton {
	switch {
	case !inMonth:
		return tgbotapi.NewInlineKeyboardButtonData(" ", cbNoop)
	case disabled:
		return tgbotapi.NewInlineKeyboardButtonData("·", cbNoop)
	case marked:
		return tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(day)+"•", cbCalDay+date)
	default:
		return tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(day), cbCalDay+date)
	}
}

// shiftMonth moves a YYYY-MM month by delta. Malformed input is returned as is.
func shiftMonth(month string, delta int) string {
	parts := strings.SplitN(month, "-", 2)
	if len(parts) != 2 {
		return month
	}
	y, errY := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errY != nil || errM != nil {
		return month
	}
	idx := y*12 + (m - 1) + delta
	return fmt.Sprintf("%04d-%02d", idx/12, idx%12+1)
}

func daySlotsKeyboard(day *service.DayView) tgbotapi.InlineKeyboardMarkup {
	rows := slotButtons(day.Date, day.Slots, cbCalSlot)
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Calendário", cbCalMonth+monthOf(day.Date)),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func monthOf(date string) string {
	if len(date) < len("2006-01") {
		return date
	}
	return date[:len("2006-01")]
}

func employeesKeyboard(employees []models.Employee) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(employees)+1)
	for _, e := range employees {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(employeeName(e), cbEmployee+e.ID),
		))
	}
	rows = append(rows, backExitRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func branchesKeyboard(branches []models.Branch) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(branches)+1)
	for _, br := range branches {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(br.Name, cbBranch+br.ID),
		))
	}
	rows = append(rows, backExitRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirmar", cbConfirm),
		),
		backExitRow(),
	)
}

func backExitRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Voltar", cbBack),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Sair", cbExit),
	)
}

// employeeName falls back to the id when a roster entry carries no name.
func employeeName(e models.Employee) string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// bucketTitle is the heading of a quick-view day.
func bucketTitle(b availability.DayBucket) string {
	return fmt.Sprintf("<b>%s</b> · %s", b.Label, b.DisplayDate)
}
