package web

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"citadash/internal/dashboard"
	"citadash/internal/ics"
	"citadash/internal/model"
	"citadash/internal/refresh"
	"citadash/internal/sheet"

	appLog "citadash/internal/log"
)

// dashboardCacheTTL bounds how long a computed /api/dashboard response is
// reused while the underlying datasets are unchanged.
const dashboardCacheTTL = 5 * time.Second

// DataSource is what the server reads datasets from. *refresh.Scheduler
// satisfies it.
type DataSource interface {
	Snapshot() refresh.Snapshot
	RefreshAll(ctx context.Context, force bool) error
}

// Options configures a Server.
type Options struct {
	// Timezone is an IANA zone for "today"; empty means local time.
	Timezone     string
	MonthlyGoal  float64
	SlotMinutes  int
	CalendarName string
	// PreviewPath is the PNG served at /preview.png; empty disables it.
	PreviewPath string
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Server provides the JSON API consumed by the dashboard frontend.
type Server struct {
	src  DataSource
	opts Options
	loc  *time.Location
	now  func() time.Time
	mux  *http.ServeMux

	// In-memory cache for /api/dashboard responses so polling clients do
	// not recompute the views on every request.
	dashMu    sync.RWMutex
	dashCache *dashboardCache
}

// NewServer constructs a new Server.
func NewServer(src DataSource, opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		src:  src,
		opts: opts,
		loc:  resolveLocationOrLocal(opts.Timezone),
		now:  now,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/dashboard", s.handleDashboard)
	s.mux.HandleFunc("/api/appointments", s.handleAppointments)
	s.mux.HandleFunc("/api/records", s.handleRecords)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// datasetDTO is the JSON view of one dataset's refresh status.
type datasetDTO struct {
	Records     int        `json:"records"`
	Diagnostics int        `json:"diagnostics"`
	FetchedAt   *time.Time `json:"fetched_at"`
	CycleID     string     `json:"cycle_id,omitempty"`
	FromCache   bool       `json:"from_cache"`
	Error       string     `json:"error,omitempty"`
	Loading     bool       `json:"loading"`
}

// dashboardResponse is the JSON response shape for /api/dashboard.
type dashboardResponse struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Views       dashboard.Views             `json:"views"`
	Datasets    map[refresh.Kind]datasetDTO `json:"datasets"`
}

// dashboardCache holds a computed /api/dashboard response.
type dashboardCache struct {
	key       string
	etag      string
	resp      dashboardResponse
	updatedAt time.Time
}

// handleDashboard returns every derived view plus dataset statuses.
//
// GET /api/dashboard
//   - ETag is a hash of the views and statuses, ignoring the clock stamp.
//   - If-None-Match with the current ETag yields 304.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	snap := s.src.Snapshot()
	now := s.now().In(s.loc)
	key := cacheKey(snap)

	s.dashMu.RLock()
	dc := s.dashCache
	s.dashMu.RUnlock()

	if dc == nil || dc.key != key || now.Sub(dc.updatedAt) >= dashboardCacheTTL || now.Before(dc.updatedAt) {
		resp := dashboardResponse{
			GeneratedAt: now,
			Views: dashboard.Compute(snap.Appointments, snap.Accounts, now, dashboard.Options{
				MonthlyGoal: s.opts.MonthlyGoal,
			}),
			Datasets: datasetStatuses(snap),
		}
		dc = &dashboardCache{key: key, etag: etagFor(resp), resp: resp, updatedAt: now}

		s.dashMu.Lock()
		s.dashCache = dc
		s.dashMu.Unlock()
	}

	w.Header().Set("ETag", dc.etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, dc.etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, dc.resp)
}

// appointmentsResponse is the JSON response shape for /api/appointments.
type appointmentsResponse struct {
	Date         string              `json:"date"`
	Query        string              `json:"query"`
	Appointments []model.Appointment `json:"appointments"`
}

// handleAppointments returns today's appointments table.
//
// GET /api/appointments?q=texto
//   - q: case-insensitive substring of client name, service or status.
func (s *Server) handleAppointments(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	now := s.now().In(s.loc)
	q := r.URL.Query().Get("q")

	snap := s.src.Snapshot()
	writeJSON(w, http.StatusOK, appointmentsResponse{
		Date:         now.Format(time.DateOnly),
		Query:        q,
		Appointments: dashboard.TodayAppointments(snap.Appointments, now, q),
	})
}

// recordsResponse is the JSON response shape for /api/records.
type recordsResponse struct {
	Appointments sheet.Batch[model.Appointment]    `json:"appointments"`
	Accounts     sheet.Batch[model.MonthlyAccount] `json:"accounts"`
}

// handleRecords exposes both raw batches with their diagnostics.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	snap := s.src.Snapshot()
	writeJSON(w, http.StatusOK, recordsResponse{
		Appointments: sheet.Batch[model.Appointment]{
			Records:     snap.Appointments,
			Diagnostics: snap.Status[refresh.KindAppointments].Diagnostics,
		},
		Accounts: sheet.Batch[model.MonthlyAccount]{
			Records:     snap.Accounts,
			Diagnostics: snap.Status[refresh.KindAccounts].Diagnostics,
		},
	})
}

// refreshResponse is the JSON response shape for /api/refresh.
type refreshResponse struct {
	Datasets map[refresh.Kind]datasetDTO `json:"datasets"`
	Error    string                      `json:"error,omitempty"`
}

// handleRefresh forces a refetch of both datasets.
//
// POST /api/refresh
//   - 200 when both datasets refreshed, 502 when any fetch failed. The
//     statuses are returned either way; failed datasets keep their last batch.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	err := s.src.RefreshAll(r.Context(), true)
	resp := refreshResponse{Datasets: datasetStatuses(s.src.Snapshot())}
	if err != nil {
		appLog.Error("api refresh: one or more datasets failed", err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	appLog.Info("api refresh completed")
	writeJSON(w, http.StatusOK, resp)
}

// handleCalendar serves this month's appointments as an iCalendar feed.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	now := s.now().In(s.loc)
	body := ics.Serialize(s.src.Snapshot().Appointments, now, ics.ExportOptions{
		Name:        s.opts.CalendarName,
		SlotMinutes: s.opts.SlotMinutes,
	})

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="citas.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handlePreview serves the last captured kiosk PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.opts.PreviewPath == "" {
		http.NotFound(w, r)
		return
	}
	// http.ServeFile picks 404 vs 500 from the underlying error.
	http.ServeFile(w, r, s.opts.PreviewPath)
}

func datasetStatuses(snap refresh.Snapshot) map[refresh.Kind]datasetDTO {
	out := make(map[refresh.Kind]datasetDTO, len(snap.Status))
	for kind, st := range snap.Status {
		out[kind] = datasetDTO{
			Records:     st.Records,
			Diagnostics: len(st.Diagnostics),
			FetchedAt:   st.FetchedAt,
			CycleID:     st.CycleID,
			FromCache:   st.FromCache,
			Error:       st.Error,
			Loading:     st.Loading,
		}
	}
	return out
}

// cacheKey changes whenever a dataset is refreshed or starts loading.
func cacheKey(snap refresh.Snapshot) string {
	var b strings.Builder
	for _, kind := range refresh.Kinds {
		st := snap.Status[kind]
		b.WriteString(st.CycleID)
		if st.Loading {
			b.WriteString("+")
		}
		b.WriteString(";")
	}
	return b.String()
}

// etagFor hashes the response without its clock stamps so an unchanged
// dashboard keeps its ETag across requests.
func etagFor(resp dashboardResponse) string {
	resp.GeneratedAt = time.Time{}
	resp.Views.Now = ""

	data, err := json.Marshal(resp)
	if err != nil {
		appLog.Error("dashboard etag: marshal failed", err)
		return ""
	}
	digest := xxhash.New()
	_, _ = digest.Write(data)
	return `"` + hex.EncodeToString(digest.Sum(nil)) + `"`
}

func etagMatches(header, etag string) bool {
	if etag == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
