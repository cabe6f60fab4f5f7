package availability

import (
	"fmt"
	"time"

	"agendei/internal/models"
)

// DayBucket is one quick-view day card.
type DayBucket struct {
	Label       string            `json:"label"`
	Date        string            `json:"date"`
	DisplayDate string            `json:"display_date"`
	BranchID    string            `json:"branch_id"`
	Slots       []models.TimeSlot `json:"time_slots"`
}

// DayBuckets builds the "today" and "tomorrow" cards of resp. now is taken in its
// own location, which must be the company timezone. Days that are missing or have
// no slots are left out.
func DayBuckets(resp models.AvailabilityResponse, now time.Time) []DayBucket {
	today := StartOfDay(now)
	days := []struct {
		label string
		day   time.Time
	}{
		{models.LabelToday, today},
		{models.LabelTomorrow, today.AddDate(0, 0, 1)},
	}

	out := make([]DayBucket, 0, len(days))
	for _, d := range days {
		iso := d.day.Format(models.DateLayout)
		entry, ok := resp.Day(iso)
		if !ok || len(entry.TimeSlots) == 0 {
			continue
		}
		out = append(out, DayBucket{
			Label:       d.label,
			Date:        iso,
			DisplayDate: DisplayDate(d.day),
			BranchID:    entry.BranchID,
			Slots:       SortSlots(entry.TimeSlots),
		})
	}
	return out
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

var weekdaysPT = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}

var monthsPT = [...]string{"janeiro", "fevereiro", "março", "abril", "maio", "junho", "julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}

// DisplayDate formats a day as "sábado, 01/06".
func DisplayDate(day time.Time) string {
	return fmt.Sprintf("%s, %02d/%02d", weekdaysPT[day.Weekday()], day.Day(), int(day.Month()))
}

// MonthTitle formats a month as "junho de 2024".
func MonthTitle(year int, month time.Month) string {
	return fmt.Sprintf("%s de %d", monthsPT[month-1], year)
}
