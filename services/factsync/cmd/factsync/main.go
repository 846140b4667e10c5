package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"factsync/pkg/render"
	"factsync/pkg/telemetry"
	"factsync/services/factsync/internal/config"
	"factsync/services/foreman"
	"factsync/services/reconcile"
)

const serviceName = "factsync"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		summary    bool
	)

	cmd := &cobra.Command{
		Use:   "factsync [host]",
		Short: "Push PuppetDB facts into Foreman and remove hosts PuppetDB no longer knows",
		Long: "With a host argument only that host's facts are pushed and Foreman's response is printed.\n" +
			"Without one every PuppetDB host is pushed and stale Foreman hosts are deleted and unmanaged.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return withApp(ctx, cmd, configPath, func(a *app) error {
				if len(args) == 1 {
					return pushHost(ctx, a, args[0], cmd.OutOrStdout())
				}
				return syncAll(ctx, a, summary, cmd.OutOrStdout())
			})
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("FACTSYNC_CONFIG"), "Path to a YAML config file")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print a text summary after a full sync")

	cmd.AddCommand(newDaemonCommand(&configPath))
	return cmd
}

func newDaemonCommand(configPath *string) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run a full sync on an interval and serve health and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return withApp(ctx, cmd, *configPath, func(a *app) error {
				if interval > 0 {
					a.cfg.Daemon.Interval = interval
				}
				return serve(ctx, a)
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Time between full syncs (overrides daemon.interval)")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func withApp(ctx context.Context, cmd *cobra.Command, configPath string, fn func(*app) error) error {
	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	a.middleware = middleware

	return fn(a)
}

func pushHost(ctx context.Context, a *app, host string, out io.Writer) error {
	resp, ok, err := a.driver.PushHost(ctx, host)
	if err != nil {
		return err
	}
	a.pushMetrics(ctx)
	if !ok {
		return nil
	}
	return printResponse(out, resp)
}

func syncAll(ctx context.Context, a *app, summary bool, out io.Writer) error {
	report, err := a.driver.Sync(ctx)
	a.pushMetrics(ctx)
	if summary {
		if renderErr := printSummary(out, report); renderErr != nil {
			a.logger.Printf("WARN render summary: %v", renderErr)
		}
	}
	return err
}

func serve(ctx context.Context, a *app) error {
	daemon, err := reconcile.NewDaemon(a.driver, a.cfg.Daemon.Interval, a.logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := &http.Server{
		Addr:              a.cfg.Daemon.Listen,
		Handler:           a.middleware(daemon.Routes(a.metrics.Handler())),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Printf("ERROR server shutdown: %v", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Printf("INFO listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			cancel()
		}
		close(serverErr)
	}()

	a.logger.Printf("INFO syncing every %s", a.cfg.Daemon.Interval)
	runErr := daemon.Run(ctx)

	if err := <-serverErr; err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func printResponse(w io.Writer, resp foreman.Response) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printSummary(w io.Writer, report *reconcile.Report) error {
	engine, err := render.New()
	if err != nil {
		return err
	}
	return engine.Render(w, "summary.tmpl", report)
}
