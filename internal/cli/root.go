// Package cli implements agendactl, the operator tool for inspecting what the
// booking flow sees.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"agendei/internal/backend"
	"agendei/internal/config"
	"agendei/internal/database"
	"agendei/internal/logging"
	"agendei/internal/models"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Fetcher loads availability windows.
type Fetcher interface {
	FetchAvailability(ctx context.Context, w models.AvailabilityWindow) (*models.AvailabilityResponse, error)
}

// Journal reads submission statistics.
type Journal interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
	Close() error
}

var (
	loadConfig     = config.Load
	fetcherFactory = newBackendFetcher
	journalFactory = openJournal
	clock          = time.Now
)

type globalOptions struct {
	Config  string
	JSON    bool
	Timeout time.Duration
	Verbose bool
}

// Execute runs agendactl and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		return 1
	}
	return 0
}

func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "agendactl",
		Short:         "Inspect booking availability, calendar windows and the submission journal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVar(&opts.Config, "config", defaultConfig, "Config file path")
	root.PersistentFlags().BoolVar(&opts.JSON, "json", false, "Output JSON")
	root.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Backend call timeout")
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log backend calls to stderr")

	root.AddCommand(newAvailabilityCmd(opts))
	root.AddCommand(newCalendarCmd(opts))
	root.AddCommand(newJournalCmd(opts))

	return root
}

// env is what every command needs once flags are parsed.
type env struct {
	cfg    *config.Config
	loc    *time.Location
	now    time.Time
	logger *zerolog.Logger
}

func buildEnv(cmd *cobra.Command, opts *globalOptions) (*env, error) {
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Booking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Booking.Timezone, err)
	}

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), level, cfg.App)

	return &env{cfg: cfg, loc: loc, now: clock().In(loc), logger: logger}, nil
}

func (e *env) window(companyID, serviceID string, w config.WindowConfig) models.AvailabilityWindow {
	return models.AvailabilityWindow{
		ServiceID:        serviceID,
		CompanyID:        companyID,
		Timezone:         e.cfg.Booking.Timezone,
		DateForwardStart: w.Start,
		DateForwardEnd:   w.End,
	}
}

func (o *globalOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), o.Timeout)
}

func newBackendFetcher(cfg *config.Config, logger *zerolog.Logger) Fetcher {
	return backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.APIExtra, cfg.Backend.Timeout(), logger)
}

func openJournal(cfg *config.Config, logger *zerolog.Logger) (Journal, error) {
	return database.NewDB(cfg.Database.Path, logger)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
