/*
main.go - Application entry point

PURPOSE:
  Starts the planning engine server, and offers offline helpers around
  the rule catalog and the leave counter.

COMMANDS:
  serve                  Run the HTTP API (default)
  validate <catalog>     Check a catalog file and list every problem
  count-days             Count the days of a leave range
  template [name]        Print a fatigue template, or list them

STARTUP SEQUENCE (serve):
  1. Load configuration (PLANNING_* environment, optional .env)
  2. Build the logger
  3. Load and validate the rule catalog; refuse to start on any problem
  4. Open the SQLite store (fatigue ledger and holidays)
  5. Wire ledger, evaluator and scorer behind the HTTP router
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (PLANNING_SHUTDOWN_TIMEOUT)
  3. Close database connection
  4. Exit

CATALOG RELOAD:
  SIGHUP re-reads PLANNING_CATALOG_PATH. A rejected file is logged and
  the catalog in force stays.

SEE ALSO:
  - config/config.go: Settings
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/warp/planning-engine/api"
	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/config"
	"github.com/warp/planning-engine/fatigue"
	"github.com/warp/planning-engine/generic"
	"github.com/warp/planning-engine/leave"
	"github.com/warp/planning-engine/logging"
	"github.com/warp/planning-engine/store/sqlite"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "planning",
		Short:        "Staff planning engine for operating theatres",
		Long:         `Rule catalog, leave counting, duty and assignment rules, fatigue ledger and candidate scoring.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), overrides{})
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(countDaysCmd())
	rootCmd.AddCommand(templateCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// SERVE
// =============================================================================

// overrides holds the serve flags; empty values keep the environment.
type overrides struct {
	port    string
	dbPath  string
	catalog string
}

func serveCmd() *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), o)
		},
	}
	cmd.Flags().StringVar(&o.port, "port", "", "HTTP port (overrides PLANNING_PORT)")
	cmd.Flags().StringVar(&o.dbPath, "db", "", `SQLite path, ":memory:" for in-process (overrides PLANNING_DB_PATH)`)
	cmd.Flags().StringVar(&o.catalog, "catalog", "", "rule catalog file (overrides PLANNING_CATALOG_PATH)")
	return cmd
}

func serve(ctx context.Context, o overrides) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.port != "" {
		cfg.Server.Port = o.port
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.catalog != "" {
		cfg.Catalog.Path = o.catalog
	}
	logger, closer, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	defer closer.Close()
	logger = logger.With().Str("env", cfg.Environment).Logger()

	initial, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Catalog.Path).Msg("catalog rejected")
		return err
	}
	holder := catalog.NewHolder(initial, logger)

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ledger := fatigue.New(holder, store,
		fatigue.WithLogger(logger),
		fatigue.WithWindow(cfg.Fatigue.WindowDays),
	)
	handler := api.NewHandler(holder, ledger, store, api.WithLogger(logger))
	router := api.NewRouter(handler, api.RouterOptions{CORSOrigins: cfg.Server.CORSOrigins})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("catalog", initial.Version).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	for {
		select {
		case err := <-errc:
			return fmt.Errorf("server failed: %w", err)
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				// the holder logs both outcomes
				holder.ReloadFile(cfg.Catalog.Path)
				continue
			}
			return shutdown(ctx, server, cfg.Server.ShutdownTimeout, logger)
		}
	}
}

func shutdown(ctx context.Context, server *http.Server, timeout time.Duration, logger zerolog.Logger) error {
	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// =============================================================================
// OFFLINE COMMANDS
// =============================================================================

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalog.yaml>",
		Short: "Check a rule catalog and list every problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := catalog.LoadFile(args[0])
			if err != nil {
				var verr *generic.ValidationError
				var cerr *generic.ConfigurationInconsistencyError
				if errors.As(err, &verr) {
					printProblems(cmd, verr.Problems)
				}
				if errors.As(err, &cerr) {
					printProblems(cmd, cerr.Problems)
				}
				return fmt.Errorf("catalog %s rejected", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog %q OK: %d leave, %d duty, %d assignment rule(s), fatigue enabled=%t\n",
				c.Version, len(c.LeaveRules), len(c.DutyRules), len(c.AssignmentRules), c.Fatigue.Enabled)
			return nil
		},
	}
}

func printProblems(cmd *cobra.Command, problems []generic.Problem) {
	for _, p := range problems {
		fmt.Fprintf(cmd.ErrOrStderr(), "- %s\n", p)
	}
}

func countDaysCmd() *cobra.Command {
	var (
		method   string
		french   bool
		halfDays []string
	)
	cmd := &cobra.Command{
		Use:   "count-days <start> <end>",
		Short: "Count the days a leave consumes (dates as YYYY-MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := generic.ParseDate(args[0])
			if err != nil {
				return err
			}
			end, err := generic.ParseDate(args[1])
			if err != nil {
				return err
			}
			req := leave.Request{Start: start, End: end, Method: leave.Method(method), AllowHalfDays: len(halfDays) > 0}
			for _, raw := range halfDays {
				d, err := generic.ParseDate(raw)
				if err != nil {
					return err
				}
				req.HalfDays = append(req.HalfDays, d)
			}

			var holidays generic.HolidayCalendar = generic.NoHolidays{}
			if french {
				var all []generic.Holiday
				for year := start.Year(); year <= end.Year(); year++ {
					all = append(all, generic.FrenchPublicHolidays(year)...)
				}
				set, err := generic.NewHolidaySet(all...)
				if err != nil {
					return err
				}
				holidays = set
			}

			days, err := leave.Count(req, holidays, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), days.String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", string(leave.WeekdaysIfWorking), "counting method")
	cmd.Flags().BoolVar(&french, "french-holidays", false, "exclude French public holidays")
	cmd.Flags().StringSliceVar(&halfDays, "half-day", nil, "half day inside the range (repeatable)")
	return cmd
}

func templateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template [name]",
		Short: "Print a fatigue template, or list the available ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, name := range catalog.FatigueTemplateNames() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			tpl, ok := catalog.FatigueTemplate(args[0])
			if !ok {
				return fmt.Errorf("unknown fatigue template %q", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tpl)
		},
	}
}
