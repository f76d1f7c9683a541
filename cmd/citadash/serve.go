package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"citadash/internal/capture"
	"citadash/internal/config"
	"citadash/internal/web"

	appLog "citadash/internal/log"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the spreadsheets and serve the dashboard API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				conf.Listen = listen
			}
			return runServe(cmd.Context(), conf)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, c *config.Config) error {
	appLog.Info("citadash starting", "version", version, "listen", "http://"+c.Listen)

	sched := newScheduler(c, newFetcher(c))
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	if stop, err := startSnapshotJob(ctx, c); err != nil {
		return err
	} else if stop != nil {
		defer stop()
	}

	srv := &http.Server{
		Addr: c.Listen,
		Handler: web.NewServer(sched, web.Options{
			Timezone:     c.Timezone,
			MonthlyGoal:  c.MonthlyGoal,
			SlotMinutes:  c.Calendar.SlotMinutes,
			CalendarName: "Citas",
			PreviewPath:  c.Snapshot.Output,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http shutdown failed", err)
	}
	appLog.Info("citadash exiting")
	return nil
}

// startSnapshotJob registers a periodic kiosk capture when both a snapshot
// URL and schedule are configured. The returned stop func may be nil.
func startSnapshotJob(ctx context.Context, c *config.Config) (func(), error) {
	if c.Snapshot.URL == "" || c.Snapshot.Refresh == "" {
		return nil, nil
	}

	job := cron.New()
	opts := snapshotOptions(c)
	if _, err := job.AddFunc(c.Snapshot.Refresh, func() {
		if err := capture.CapturePNG(ctx, opts); err != nil {
			appLog.Error("scheduled snapshot failed", err, "output", opts.OutputPath)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule snapshot %q: %w", c.Snapshot.Refresh, err)
	}
	job.Start()
	appLog.Info("snapshot scheduled", "spec", c.Snapshot.Refresh, "output", opts.OutputPath)

	return func() { <-job.Stop().Done() }, nil
}

func snapshotOptions(c *config.Config) capture.Options {
	return capture.Options{
		URL:        c.Snapshot.URL,
		OutputPath: c.Snapshot.Output,
		Width:      c.Snapshot.Width,
		Height:     c.Snapshot.Height,
		Selector:   c.Snapshot.Selector,
	}
}
