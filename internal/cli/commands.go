package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"agendei/internal/availability"
	"agendei/internal/calendar"
	"agendei/internal/models"

	"github.com/spf13/cobra"
)

type targetFlags struct {
	company string
	service string
}

func (t *targetFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.company, "company", "", "Company id")
	cmd.Flags().StringVar(&t.service, "service", "", "Service id")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("service")
}

type availabilityReport struct {
	Days          []availability.DayBucket `json:"days"`
	CalendarDates []string                 `json:"calendar_dates,omitempty"`
}

func newAvailabilityCmd(opts *globalOptions) *cobra.Command {
	var target targetFlags
	var lazy bool

	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Show today's and tomorrow's slots, optionally with the calendar range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := buildEnv(cmd, opts)
			if err != nil {
				return err
			}
			fetcher := fetcherFactory(e.cfg, e.logger)
			ctx, cancel := opts.context(cmd)
			defer cancel()

			eager, err := fetcher.FetchAvailability(ctx, e.window(target.company, target.service, e.cfg.Booking.EagerWindow))
			if err != nil {
				return fmt.Errorf("eager window: %w", err)
			}

			var extended *models.AvailabilityResponse
			if lazy {
				extended, err = fetcher.FetchAvailability(ctx, e.window(target.company, target.service, e.cfg.Booking.LazyWindow))
				if err != nil {
					return fmt.Errorf("lazy window: %w", err)
				}
			}

			report := availabilityReport{
				Days:          availability.DayBuckets(availability.Merge(eager, extended), e.now),
				CalendarDates: availability.CalendarDates(extended),
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printAvailability(cmd.OutOrStdout(), report, lazy)
			return nil
		},
	}
	target.bind(cmd)
	cmd.Flags().BoolVar(&lazy, "lazy", false, "Also fetch the extended calendar range")
	return cmd
}

func printAvailability(w io.Writer, r availabilityReport, lazy bool) {
	if len(r.Days) == 0 {
		fmt.Fprintln(w, "No slots today or tomorrow.")
	}
	for _, day := range r.Days {
		fmt.Fprintf(w, "%s (%s) branch %s\n", day.Label, day.DisplayDate, day.BranchID)
		for _, s := range day.Slots {
			fmt.Fprintf(w, "  %s  %s\n", slotMarker(s), s.Time)
		}
	}
	if lazy {
		fmt.Fprintf(w, "Calendar dates (%d): %s\n", len(r.CalendarDates), strings.Join(r.CalendarDates, " "))
	}
}

func slotMarker(s models.TimeSlot) string {
	switch {
	case s.OccupiedByClient:
		return "locked"
	case len(s.Employees) == 0:
		return "empty "
	default:
		return strings.Join(s.Employees, ",")
	}
}

type calendarReport struct {
	Month   string          `json:"month"`
	Title   string          `json:"title"`
	Cells   []calendar.Cell `json:"cells"`
	CanPrev bool            `json:"can_prev"`
	CanNext bool            `json:"can_next"`
}

func newCalendarCmd(opts *globalOptions) *cobra.Command {
	var target targetFlags
	var month string

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Render one month of the extended calendar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := buildEnv(cmd, opts)
			if err != nil {
				return err
			}
			if month != "" {
				if _, err := time.Parse(models.MonthLayout, month); err != nil {
					return fmt.Errorf("--month must be YYYY-MM: %w", err)
				}
			}

			fetcher := fetcherFactory(e.cfg, e.logger)
			ctx, cancel := opts.context(cmd)
			defer cancel()

			lazyWindow := e.cfg.Booking.LazyWindow
			extended, err := fetcher.FetchAvailability(ctx, e.window(target.company, target.service, lazyWindow))
			if err != nil {
				return fmt.Errorf("lazy window: %w", err)
			}

			today := availability.StartOfDay(e.now)
			p := calendar.New(e.now)
			p.MinDate = today.AddDate(0, 0, lazyWindow.Start)
			p.MaxDate = today.AddDate(0, 0, lazyWindow.End)
			p.Marked = availability.CalendarDates(extended)
			if month != "" {
				if err := p.SetMonth(month, e.now); err != nil {
					return err
				}
			}

			report := calendarReport{
				Month:   fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)),
				Title:   p.Title(),
				Cells:   p.Grid(e.now),
				CanPrev: p.CanPrev(e.now),
				CanNext: p.CanNext(),
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printCalendar(cmd.OutOrStdout(), report)
			return nil
		},
	}
	target.bind(cmd)
	cmd.Flags().StringVar(&month, "month", "", "Month to show, YYYY-MM (default: current)")
	return cmd
}

// printCalendar draws the grid with "*" after days that have slots and "."
// for days that cannot be picked.
func printCalendar(w io.Writer, r calendarReport) {
	fmt.Fprintf(w, "%s\n", r.Title)
	fmt.Fprintln(w, " Seg  Ter  Qua  Qui  Sex  Sáb  Dom")
	for i, c := range r.Cells {
		switch {
		case !c.InMonth:
			fmt.Fprint(w, "    ")
		case c.Disabled:
			fmt.Fprint(w, "   .")
		case c.HasAvailability:
			fmt.Fprintf(w, " %2d*", c.Day)
		default:
			fmt.Fprintf(w, " %2d ", c.Day)
		}
		if i%7 == 6 {
			fmt.Fprintln(w)
		} else {
			fmt.Fprint(w, " ")
		}
	}
	fmt.Fprintf(w, "prev: %t  next: %t\n", r.CanPrev, r.CanNext)
}

func newJournalCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "journal",
		Short: "Count submission attempts by status",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			e, err := buildEnv(cmd, opts)
			if err != nil {
				return err
			}
			journal, err := journalFactory(e.cfg, e.logger)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer func() {
				err = errors.Join(err, journal.Close())
			}()

			ctx, cancel := opts.context(cmd)
			defer cancel()

			counts, err := journal.CountByStatus(ctx)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), counts)
			}

			statuses := make([]string, 0, len(counts))
			for status := range counts {
				statuses = append(statuses, status)
			}
			sort.Strings(statuses)
			for _, status := range statuses {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", status, counts[status])
			}
			return nil
		},
	}
}
