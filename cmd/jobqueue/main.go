// Package main is the operator command line of the job queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	jobqueue "github.com/TimKotowski/pg-jobqueue"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jobqueue",
		Short:         "Run and inspect the background job engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to the YAML settings file, JOBQUEUE_* variables override it")

	root.AddCommand(
		migrateCmd(),
		initSchedulesCmd(),
		runCmd(),
		runOnceCmd(),
		enqueueCmd(),
		dueCmd(),
		deadCmd(),
		requeueCmd(),
	)
	return root
}

// app bundles what every command needs.
type app struct {
	settings *jobqueue.Settings
	logger   *zap.Logger
	db       *bun.DB
	engine   *jobqueue.Engine
	registry *prometheus.Registry
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	settings, err := jobqueue.LoadSettings(path)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(settings.LogLevel)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := append(settings.Options(), jobqueue.WithLogger(logger), jobqueue.WithRegisterer(registry))
	conf := jobqueue.NewConfig(opts...)

	db, err := jobqueue.OpenDB(conf)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var engineOpts []jobqueue.EngineOption
	if settings.DirectoryFile != "" {
		engineOpts = append(engineOpts, jobqueue.WithDirectory(jobqueue.NewFileDirectory(settings.DirectoryFile)))
	}
	engine, err := jobqueue.NewEngine(conf, db, clockwork.NewRealClock(), engineOpts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	engine.SetUp()

	return &app{
		settings: settings,
		logger:   logger,
		db:       db,
		engine:   engine,
		registry: registry,
	}, nil
}

func (a *app) Close() {
	_ = a.logger.Sync()
	_ = a.db.Close()
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

func withApp(run func(ctx context.Context, a *app, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return run(cmd.Context(), a, args)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the engine tables",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return a.engine.Migrate(ctx)
		}),
	}
}

func initSchedulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-schedules",
		Short: "Replace the records of every enabled recurring job with a fresh one",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return a.engine.InitRecurringJobs(ctx)
		}),
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine until interrupted",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var server *http.Server
			if a.settings.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
				server = &http.Server{Addr: a.settings.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server stopped", zap.Error(err))
					}
				}()
			}

			if err := a.engine.Start(); err != nil {
				return err
			}
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if server != nil {
				_ = server.Shutdown(shutdownCtx)
			}
			return a.engine.Stop(shutdownCtx)
		}),
	}
	return cmd
}

func runOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Run one select, claim and run cycle",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			report, err := a.engine.RunDueJobs(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "ID\tTYPE\tSTATE\tERROR\n")
			for _, r := range report.Results {
				msg := ""
				if r.Err != nil {
					msg = r.Err.Error()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.JobID, r.Type, r.State, msg)
			}
			_ = w.Flush()
			fmt.Printf("selected %d, claimed %d, lost %d, failed %d\n",
				report.Selected, report.Claimed, report.Conflicts, report.Failed())

			if report.Failed() > 0 {
				return fmt.Errorf("%d jobs failed", report.Failed())
			}
			return nil
		}),
	}
}

func enqueueCmd() *cobra.Command {
	var (
		jobType  string
		args     []string
		priority int
		dueIn    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Create a one-off job record",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			arguments, err := parseArguments(args)
			if err != nil {
				return err
			}

			rec := &jobqueue.JobRecord{
				Type:      jobType,
				Priority:  priority,
				Arguments: arguments,
			}
			if dueIn > 0 {
				rec.DueAt = time.Now().Add(dueIn).UTC()
			}

			id, err := a.engine.Queue().CreateJob(ctx, rec)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&jobType, "type", "t", "", "Job type")
	cmd.Flags().StringArrayVarP(&args, "arg", "a", nil, "Job argument as key=value, repeatable")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Priority, lower runs first")
	cmd.Flags().DurationVar(&dueIn, "due-in", 0, "Delay before the job becomes due")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func parseArguments(pairs []string) (jobqueue.Arguments, error) {
	arguments := jobqueue.Arguments{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		arguments[key] = value
	}
	return arguments, nil
}

func dueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "List due records that are not leased",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			records, err := a.engine.Queue().FindDueJobs(ctx, time.Now())
			if err != nil {
				return err
			}
			printRecords(records)
			return nil
		}),
	}
}

func deadCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dead",
		Short: "List dead lettered records",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			records, err := a.engine.Queue().FindDeadLettered(ctx, limit)
			if err != nil {
				return err
			}
			printRecords(records)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of records")
	return cmd
}

func requeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>...",
		Short: "Make dead lettered or stuck records due now",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, ids []string) error {
			for _, id := range ids {
				if err := a.engine.Queue().Requeue(ctx, id); err != nil {
					return err
				}
				fmt.Println(id)
			}
			return nil
		}),
	}
}

func printRecords(records []jobqueue.JobRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTYPE\tPRIORITY\tDUE\tATTEMPTS\tLAST ERROR\n")
	for _, r := range records {
		lastErr := ""
		if r.LastError != nil {
			lastErr = *r.LastError
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n",
			r.ID, r.Type, r.Priority, r.DueAt.Format(time.RFC3339), r.Attempts, lastErr)
	}
	_ = w.Flush()
}
