package main

import (
	"time"

	"citadash/internal/config"
	"citadash/internal/refresh"
	"citadash/internal/sheet"
)

func newFetcher(c *config.Config) *sheet.Fetcher {
	return sheet.NewFetcher(sheet.FetcherOptions{
		CacheDir:   c.CacheDir,
		Timeout:    config.Duration(c.Fetch.Timeout, 15*time.Second),
		Retries:    c.Fetch.Retries,
		RetryDelay: config.Duration(c.Fetch.RetryDelay, 500*time.Millisecond),
	})
}

func newScheduler(c *config.Config, fetcher refresh.Fetcher) *refresh.Scheduler {
	return refresh.New(fetcher, refresh.Options{
		Appointments: refresh.DatasetConfig{
			URL:      c.Sources.Appointments.URL,
			Schedule: c.Sources.Appointments.Refresh,
			Stale:    c.Sources.Appointments.StaleDuration(),
		},
		Accounts: refresh.DatasetConfig{
			URL:      c.Sources.Accounts.URL,
			Schedule: c.Sources.Accounts.Refresh,
			Stale:    c.Sources.Accounts.StaleDuration(),
		},
	})
}
