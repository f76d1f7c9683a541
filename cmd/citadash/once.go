package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"citadash/internal/dashboard"

	appLog "citadash/internal/log"
)

func onceCmd() *cobra.Command {
	var nowFlag string

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Fetch both datasets once and print the dashboard views as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := referenceTime(nowFlag, conf.Location())
			if err != nil {
				return err
			}

			sched := newScheduler(conf, newFetcher(conf))
			if err := sched.RefreshAll(cmd.Context(), true); err != nil {
				// Partial data still renders; failed datasets are empty.
				appLog.Error("once: refresh failed", err)
			}

			snap := sched.Snapshot()
			views := dashboard.Compute(snap.Appointments, snap.Accounts, now, dashboard.Options{
				MonthlyGoal: conf.MonthlyGoal,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(views)
		},
	}
	cmd.Flags().StringVar(&nowFlag, "now", "", "reference time (RFC3339 or YYYY-MM-DDTHH:MM local) for reproducible output")
	return cmd
}

// referenceTime parses --now; empty means the current time in loc.
func referenceTime(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Now().In(loc), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", v, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --now %q: want RFC3339 or YYYY-MM-DDTHH:MM", v)
}
