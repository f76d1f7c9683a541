package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citadash/internal/model"
	"citadash/internal/refresh"
	"citadash/internal/sheet"
)

type fakeSource struct {
	snap       refresh.Snapshot
	refreshErr error
	refreshes  int
}

func (f *fakeSource) Snapshot() refresh.Snapshot { return f.snap }

func (f *fakeSource) RefreshAll(_ context.Context, force bool) error {
	f.refreshes++
	return f.refreshErr
}

func fixedNow() time.Time {
	return time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
}

func newFakeSource() *fakeSource {
	fetched := fixedNow().Add(-time.Minute)
	return &fakeSource{snap: refresh.Snapshot{
		Appointments: []model.Appointment{
			{ID: "1", Status: model.StatusConfirmed, ClientName: "Ana", ServiceText: "Corte", Price: 15, Date: "2026-10-14", Time: "11:30", ServiceCategory: model.CategoryCut},
			{ID: "2", Status: model.StatusPending, ClientName: "Luis", ServiceText: "Tinte", Price: 30, Date: "2026-10-14", Time: "9:00", ServiceCategory: model.CategoryDye},
			{ID: "3", Status: model.StatusConfirmed, ClientName: "Eva", ServiceText: "Corte", Price: 15, Date: "2026-10-02", Time: "12:00", ServiceCategory: model.CategoryCut},
		},
		Accounts: []model.MonthlyAccount{
			{Date: "2026-10-13", ScheduledCount: 5, Total: 3000},
		},
		Status: map[refresh.Kind]refresh.Status{
			refresh.KindAppointments: {Records: 3, CycleID: "c1", FetchedAt: &fetched, Diagnostics: []sheet.Diagnostic{{Row: 2, Kind: sheet.DiagTooFewFields}}},
			refresh.KindAccounts:     {Records: 1, CycleID: "c2", FetchedAt: &fetched, Diagnostics: []sheet.Diagnostic{}},
		},
	}}
}

func newTestServer(src DataSource, opts Options) *Server {
	opts.Timezone = "UTC"
	opts.Now = fixedNow
	return NewServer(src, opts)
}

func TestHealth(t *testing.T) {
	s := newTestServer(newFakeSource(), Options{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestDashboard(t *testing.T) {
	s := newTestServer(newFakeSource(), Options{MonthlyGoal: 6000})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Views struct {
			Today struct {
				Total   int     `json:"total"`
				Revenue float64 `json:"revenue"`
			} `json:"today"`
			Month struct {
				GoalProgress float64 `json:"goal_progress"`
			} `json:"month"`
			Week []json.RawMessage `json:"week"`
			Next *struct {
				Remaining string `json:"remaining"`
			} `json:"next"`
		} `json:"views"`
		Datasets map[string]struct {
			Records     int `json:"records"`
			Diagnostics int `json:"diagnostics"`
		} `json:"datasets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 2, body.Views.Today.Total)
	assert.Equal(t, 15.0, body.Views.Today.Revenue)
	assert.InDelta(t, 50.0, body.Views.Month.GoalProgress, 1e-9)
	assert.Len(t, body.Views.Week, 7)
	require.NotNil(t, body.Views.Next)
	assert.Equal(t, "En 1h 30m", body.Views.Next.Remaining)
	assert.Equal(t, 1, body.Datasets["appointments"].Diagnostics)
	assert.NotEmpty(t, rec.Header().Get("ETag"))
}

func TestDashboardNotModified(t *testing.T) {
	src := newFakeSource()
	s := newTestServer(src, Options{})

	first := httptest.NewRecorder()
	s.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("If-None-Match", etag)
	second := httptest.NewRecorder()
	s.Handler().ServeHTTP(second, req)
	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Empty(t, second.Body.String())

	// New data invalidates the cache and the ETag.
	src.snap.Appointments = src.snap.Appointments[:1]
	st := src.snap.Status[refresh.KindAppointments]
	st.CycleID = "c3"
	src.snap.Status[refresh.KindAppointments] = st

	third := httptest.NewRecorder()
	s.Handler().ServeHTTP(third, req)
	assert.Equal(t, http.StatusOK, third.Code)
	assert.NotEqual(t, etag, third.Header().Get("ETag"))
}

func TestAppointmentsSearch(t *testing.T) {
	s := newTestServer(newFakeSource(), Options{})

	tests := []struct {
		query string
		want  []string
	}{
		{query: "", want: []string{"2", "1"}},
		{query: "ana", want: []string{"1"}},
		{query: "PENDIENTE", want: []string{"2"}},
		{query: "nadie", want: []string{}},
	}

	for _, tt := range tests {
		t.Run("q="+tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/appointments?q="+tt.query, nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var body appointmentsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			ids := make([]string, 0, len(body.Appointments))
			for _, a := range body.Appointments {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, "2026-10-14", body.Date)
		})
	}
}

func TestRecords(t *testing.T) {
	s := newTestServer(newFakeSource(), Options{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/records", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body recordsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Appointments.Records, 3)
	assert.Len(t, body.Appointments.Diagnostics, 1)
	assert.Len(t, body.Accounts.Records, 1)
}

func TestRefresh(t *testing.T) {
	src := newFakeSource()
	s := newTestServer(src, Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/refresh", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	assert.Equal(t, 0, src.refreshes)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, src.refreshes)

	src.refreshErr = errors.New("fetch csv: status 503: Service Unavailable")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body refreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "503")
	assert.Equal(t, 3, body.Datasets[refresh.KindAppointments].Records)
}

func TestCalendar(t *testing.T) {
	s := newTestServer(newFakeSource(), Options{SlotMinutes: 30, CalendarName: "Agenda"})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calendar.ics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "BEGIN:VEVENT"))
}

func TestPreview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG"), 0o644))

	s := newTestServer(newFakeSource(), Options{PreviewPath: path})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	s = newTestServer(newFakeSource(), Options{})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEtagMatches(t *testing.T) {
	assert.True(t, etagMatches(`"abc"`, `"abc"`))
	assert.True(t, etagMatches(`W/"abc", "def"`, `"abc"`))
	assert.True(t, etagMatches(`*`, `"abc"`))
	assert.False(t, etagMatches(`"abd"`, `"abc"`))
	assert.False(t, etagMatches(`"abc"`, ""))
}
