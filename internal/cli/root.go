// Package cli implements courtctl, a command-line client that talks to the
// shared store directly.
package cli

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"courtboard/internal/app"
	"courtboard/internal/calendar"
	"courtboard/internal/config"
	"courtboard/internal/identity"
	"courtboard/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	User       string
	Store      string
	SQLitePath string

	// open builds the app for one command. Tests swap it for a shared
	// in-memory app.
	open func(ctx context.Context, opts *RootOptions) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for courtctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{open: openApp})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "courtctl",
		Short: "courtctl - who is at the courts",
		Long: `Declare attendance, join time slots and read the day's board.

courtctl reads the same environment as the API server (STORE_BACKEND,
REDIS_ADDR, SQLITE_PATH, ...). The memory backend does not outlive a
single invocation, so use --store redis or --store sqlite for real work.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.User, "user", "u", os.Getenv("COURTBOARD_USER"), "acting user id")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "store backend override (memory|redis|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite-path", "", "sqlite database file override")

	cmd.AddCommand(NewDeclareCommand(opts))
	cmd.AddCommand(NewWithdrawCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewLeaveCommand(opts))
	cmd.AddCommand(NewRosterCommand(opts))
	cmd.AddCommand(NewSlotsCommand(opts))
	cmd.AddCommand(NewLiveCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewFeedbackCommand(opts))

	return cmd
}

func openApp(ctx context.Context, opts *RootOptions) (*app.App, error) {
	cfg := config.Load()
	if opts.Store != "" {
		cfg.StoreBackend = opts.Store
	}
	if opts.SQLitePath != "" {
		cfg.SQLitePath = opts.SQLitePath
	}
	logger := zap.NewNop()
	if opts.Verbose {
		l, err := logging.New(cfg.Env)
		if err != nil {
			return nil, err
		}
		logger = l
	}
	for _, w := range cfg.Warnings {
		logger.Warn("config", zap.String("warning", w))
	}
	return app.New(ctx, cfg, logger, nil)
}

// withApp opens the app, runs fn with the acting user on ctx and closes
// the app afterwards.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := o.open(ctx, o)
	if err != nil {
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer a.Close()
	if o.User != "" {
		ctx = identity.WithUser(ctx, identity.User{ID: o.User})
	}
	return fail(fn(ctx, a))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// parseDay accepts YYYY-MM-DD or "today" in the venue time zone.
func parseDay(a *app.App, s string) (calendar.Day, error) {
	if s == "today" {
		return a.Aggregator.Today(a.Clock.Now()), nil
	}
	return calendar.Parse(s)
}
