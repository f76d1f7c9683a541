// Package refresh keeps the two spreadsheet datasets current: it polls them
// on a cron schedule, collapses concurrent refreshes and retains the last
// good batch when a fetch fails.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	appLog "citadash/internal/log"
	"citadash/internal/model"
	"citadash/internal/sheet"
)

// Kind names a dataset.
type Kind string

const (
	KindAppointments Kind = "appointments"
	KindAccounts     Kind = "accounts"
)

// Kinds lists every dataset in refresh order.
var Kinds = []Kind{KindAppointments, KindAccounts}

// ErrUnknownDataset is returned for a Kind the scheduler does not manage.
var ErrUnknownDataset = errors.New("unknown dataset")

// Fetcher downloads one CSV source. *sheet.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, src sheet.Source) (sheet.FetchResult, error)
}

// DatasetConfig configures one dataset.
type DatasetConfig struct {
	URL string
	// Schedule is a cron spec; empty disables periodic refresh.
	Schedule string
	// Stale is how long a successful batch is served without refetching.
	Stale time.Duration
}

// Options configures a Scheduler.
type Options struct {
	Appointments DatasetConfig
	Accounts     DatasetConfig
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Status describes the last refresh of one dataset.
type Status struct {
	Records     int                `json:"records"`
	Diagnostics []sheet.Diagnostic `json:"diagnostics"`
	FetchedAt   *time.Time         `json:"fetched_at"`
	CycleID     string             `json:"cycle_id,omitempty"`
	FromCache   bool               `json:"from_cache"`
	Error       string             `json:"error,omitempty"`
	Loading     bool               `json:"loading"`
}

// Snapshot is a consistent view of both datasets. Record slices are shared
// with the scheduler and must not be modified.
type Snapshot struct {
	Appointments []model.Appointment
	Accounts     []model.MonthlyAccount
	Status       map[Kind]Status
}

type dataset struct {
	cfg DatasetConfig

	appointments []model.Appointment
	accounts     []model.MonthlyAccount
	diagnostics  []sheet.Diagnostic
	fetchedAt    time.Time
	cycleID      string
	fromCache    bool
	lastErr      error
	loading      bool
}

// Scheduler owns the in-memory datasets.
type Scheduler struct {
	fetcher Fetcher
	now     func() time.Time

	mu       sync.RWMutex
	datasets map[Kind]*dataset

	group singleflight.Group
	cron  *cron.Cron
}

// New creates a Scheduler. Nothing is fetched until Start or Refresh.
func New(fetcher Fetcher, opts Options) *Scheduler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		fetcher: fetcher,
		now:     now,
		datasets: map[Kind]*dataset{
			KindAppointments: {cfg: opts.Appointments},
			KindAccounts:     {cfg: opts.Accounts},
		},
	}
}

// Start performs an initial refresh of every dataset and then registers the
// periodic jobs. Jobs run with ctx; cancel it or call Stop to end them.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	for _, kind := range Kinds {
		spec := s.datasets[kind].cfg.Schedule
		if spec == "" {
			continue
		}
		if _, err := c.AddFunc(spec, func() {
			if err := s.Refresh(ctx, kind, false); err != nil {
				appLog.Error("scheduled refresh failed", err, "dataset", string(kind))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s %q: %w", kind, spec, err)
		}
		appLog.Info("refresh scheduled", "dataset", string(kind), "spec", spec)
	}

	if err := s.RefreshAll(ctx, true); err != nil {
		// Not fatal: the dashboard renders with whatever arrives later.
		appLog.Error("initial refresh failed", err)
	}

	s.cron = c
	c.Start()
	return nil
}

// Stop halts the periodic jobs and waits for running ones to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RefreshAll refreshes every dataset concurrently and joins their errors.
func (s *Scheduler) RefreshAll(ctx context.Context, force bool) error {
	errs := make([]error, len(Kinds))
	var wg sync.WaitGroup
	for i, kind := range Kinds {
		wg.Add(1)
		go func(i int, kind Kind) {
			defer wg.Done()
			errs[i] = s.Refresh(ctx, kind, force)
		}(i, kind)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Refresh fetches and parses one dataset. Unless force is set, a batch that
// succeeded within the stale window is kept as is. Concurrent calls for the
// same dataset share one fetch.
func (s *Scheduler) Refresh(ctx context.Context, kind Kind, force bool) error {
	ds, ok := s.datasets[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDataset, kind)
	}

	if !force && s.fresh(ds) {
		appLog.Debug("refresh skipped; data fresh", "dataset", string(kind))
		return nil
	}

	ch := s.group.DoChan(string(kind), func() (any, error) {
		// Detached so one impatient caller cannot abort the shared fetch.
		return nil, s.run(context.WithoutCancel(ctx), kind, ds)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) fresh(ds *dataset) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ds.fetchedAt.IsZero() || ds.lastErr != nil {
		return false
	}
	return s.now().Sub(ds.fetchedAt) < ds.cfg.Stale
}

func (s *Scheduler) run(ctx context.Context, kind Kind, ds *dataset) error {
	cycleID := uuid.NewString()

	s.mu.Lock()
	ds.loading = true
	url := ds.cfg.URL
	s.mu.Unlock()

	start := s.now()
	res, err := s.fetcher.Fetch(ctx, sheet.Source{ID: string(kind), URL: url})

	// Parse before taking the write lock so readers are never blocked on it.
	var (
		appointments []model.Appointment
		accounts     []model.MonthlyAccount
		diagnostics  []sheet.Diagnostic
	)
	if err == nil {
		switch kind {
		case KindAppointments:
			batch := sheet.ParseAppointments(res.Body)
			appointments, diagnostics = batch.Records, batch.Diagnostics
		case KindAccounts:
			batch := sheet.ParseAccounts(res.Body)
			accounts, diagnostics = batch.Records, batch.Diagnostics
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ds.loading = false

	if err != nil {
		// Keep serving the previous batch.
		ds.lastErr = err
		ds.cycleID = cycleID
		appLog.Error("refresh failed; keeping last batch", err,
			"dataset", string(kind),
			"cycle_id", cycleID,
			"records", ds.records(kind),
		)
		return err
	}

	switch kind {
	case KindAppointments:
		ds.appointments = appointments
	case KindAccounts:
		ds.accounts = accounts
	}
	ds.diagnostics = diagnostics
	ds.fetchedAt = s.now()
	ds.cycleID = cycleID
	ds.fromCache = res.FromCache
	ds.lastErr = nil

	appLog.Info("refresh complete",
		"dataset", string(kind),
		"cycle_id", cycleID,
		"records", ds.records(kind),
		"diagnostics", len(ds.diagnostics),
		"from_cache", res.FromCache,
		"took", s.now().Sub(start),
	)
	return nil
}

// records must be called with s.mu held.
func (ds *dataset) records(kind Kind) int {
	if kind == KindAppointments {
		return len(ds.appointments)
	}
	return len(ds.accounts)
}

// Snapshot returns the current batches and their statuses.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Appointments: s.datasets[KindAppointments].appointments,
		Accounts:     s.datasets[KindAccounts].accounts,
		Status:       make(map[Kind]Status, len(s.datasets)),
	}
	if snap.Appointments == nil {
		snap.Appointments = []model.Appointment{}
	}
	if snap.Accounts == nil {
		snap.Accounts = []model.MonthlyAccount{}
	}

	for kind, ds := range s.datasets {
		st := Status{
			Records:     ds.records(kind),
			Diagnostics: ds.diagnostics,
			CycleID:     ds.cycleID,
			FromCache:   ds.fromCache,
			Loading:     ds.loading,
		}
		if st.Diagnostics == nil {
			st.Diagnostics = []sheet.Diagnostic{}
		}
		if !ds.fetchedAt.IsZero() {
			at := ds.fetchedAt
			st.FetchedAt = &at
		}
		if ds.lastErr != nil {
			st.Error = ds.lastErr.Error()
		}
		snap.Status[kind] = st
	}
	return snap
}
