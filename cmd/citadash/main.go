package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"citadash/internal/config"
	appLog "citadash/internal/log"
)

var (
	cfgFile  string
	logLevel string
	version  = "0.1.0-dev"

	// conf is loaded by the root PersistentPreRunE before any subcommand runs.
	conf *config.Config

	rootCmd = &cobra.Command{
		Use:   "citadash",
		Short: "Barbershop appointments dashboard backed by spreadsheet CSV exports",
		Long: `citadash polls two published spreadsheets (appointments and monthly
accounts), normalizes their rows and serves the derived dashboard views as a
JSON API, an iCalendar feed and kiosk screenshots.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "./config.yaml", "path to YAML config (created with defaults if missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(onceCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	c, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgFile, err)
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	appLog.Setup(os.Stderr, appLog.ParseLevel(c.Log.Level), c.Log.Format)

	appLog.Debug("effective config",
		"config_path", cfgFile,
		"listen", c.Listen,
		"timezone", c.Timezone,
		"monthly_goal", c.MonthlyGoal,
		"appointments_refresh", c.Sources.Appointments.Refresh,
		"accounts_refresh", c.Sources.Accounts.Refresh,
		"appointments_configured", c.Sources.Appointments.URL != "",
		"accounts_configured", c.Sources.Accounts.URL != "",
		"cache_dir", c.CacheDir,
	)

	conf = c
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "citadash", version)
		},
	}
}
