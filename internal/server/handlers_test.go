package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/claude/weekgrid/internal/metrics"
	"github.com/claude/weekgrid/internal/models"
	"github.com/claude/weekgrid/internal/settings"
	"github.com/claude/weekgrid/internal/storage"
	"github.com/claude/weekgrid/internal/week"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeRepo is an in-memory Repository keyed by user ID.
type fakeRepo struct {
	mu           sync.Mutex
	programs     map[int]week.Program
	weeks        map[int]map[int]week.Record
	settings     map[int]settings.Settings
	measurements []models.Measurement
	upsertErr    error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		programs: map[int]week.Program{},
		weeks:    map[int]map[int]week.Record{},
		settings: map[int]settings.Settings{},
	}
}

func (f *fakeRepo) GetOrCreateUser(_ context.Context, _, _ string) (int, error) { return 1, nil }

func (f *fakeRepo) FetchProgram(_ context.Context, uid int) (*week.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.programs[uid]
	if !ok {
		return nil, week.ErrProgramNotSet
	}
	return &p, nil
}

func (f *fakeRepo) UpsertProgram(_ context.Context, uid int, p week.Program) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.programs[uid] = p
	return nil
}

func (f *fakeRepo) FetchWeek(_ context.Context, uid, n int) (*week.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.weeks[uid][n]
	if !ok {
		return nil, week.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeRepo) FetchWeekIndex(_ context.Context, uid int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := week.NewIndex()
	for n := range f.weeks[uid] {
		idx.Add(n)
	}
	return idx.Numbers(), nil
}

func (f *fakeRepo) ListWeeks(_ context.Context, uid, from, to int) ([]week.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []week.Record
	for n := from; n <= to; n++ {
		if rec, ok := f.weeks[uid][n]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertWeek(_ context.Context, uid int, rec week.Record) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return uuid.Nil, f.upsertErr
	}
	if f.weeks[uid] == nil {
		f.weeks[uid] = map[int]week.Record{}
	}
	if old, ok := f.weeks[uid][rec.WeekNumber]; ok {
		rec.ID = old.ID
	} else if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	f.weeks[uid][rec.WeekNumber] = rec
	return rec.ID, nil
}

func (f *fakeRepo) FetchSettings(_ context.Context, uid int) (*settings.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[uid]
	if !ok {
		return nil, settings.ErrNotFound
	}
	return &s, nil
}

func (f *fakeRepo) UpsertSettings(_ context.Context, uid int, s settings.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[uid] = s
	return nil
}

func (f *fakeRepo) UpsertMeasurement(_ context.Context, _ int, m models.Measurement) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = uuid.New()
	f.measurements = append(f.measurements, m)
	return m.ID, nil
}

func (f *fakeRepo) QueryMeasurements(_ context.Context, _ int, metric string, start, end time.Time) ([]models.Measurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Measurement
	for _, m := range f.measurements {
		if (metric == "" || m.Metric == metric) && !m.Date.Before(start) && m.Date.Before(end) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) LatestMeasurements(_ context.Context, _ int) ([]models.Measurement, error) {
	return nil, nil
}

func (f *fakeRepo) GetDataStats(_ context.Context, _ int) (*storage.DataStats, error) {
	return &storage.DataStats{}, nil
}

var testProgram = week.Program{StartDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)}

func newTestServer(t *testing.T, repo *fakeRepo, apiKey string) (*Server, *metrics.Manager) {
	t.Helper()
	m := metrics.NewTestManager()
	s := New(repo, Options{APIKey: apiKey, DefaultProgram: testProgram, Metrics: m}, slog.Default())
	s.now = func() time.Time { return time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC) }
	return s, m
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale middleware is active.
func TestHandleMeDefault(t *testing.T) {
	s, _ := newTestServer(t, newFakeRepo(), "")
	rec := do(t, s, http.MethodGet, "/api/v1/me", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "local" {
		t.Errorf("login = %q, want %q", info.Login, "local")
	}
	if info.DisplayName != "Local Dev User" {
		t.Errorf("display_name = %q, want %q", info.DisplayName, "Local Dev User")
	}
}

// TestHandleMeTailscaleUser verifies the /api/v1/me endpoint returns the
// Tailscale user identity when set in context.
func TestHandleMeTailscaleUser(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	ctx := context.WithValue(req.Context(), userInfoKey, UserInfo{Login: "alice@example.com", DisplayName: "Alice"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "alice@example.com" {
		t.Errorf("login = %q, want %q", info.Login, "alice@example.com")
	}
}

// TestAPIKeyRequired verifies the API is guarded when a key is configured.
func TestAPIKeyRequired(t *testing.T) {
	s, _ := newTestServer(t, newFakeRepo(), "secret")

	if rec := do(t, s, http.MethodGet, "/api/v1/weeks", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("without key: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weeks", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key: status = %d, want 200", rec.Code)
	}
}

// TestWeekRoundTrip verifies a saved week is listed in the index and reads back
// with the id the server assigned. Repeated saves keep the id.
func TestWeekRoundTrip(t *testing.T) {
	s, m := newTestServer(t, newFakeRepo(), "")

	body := week.Record{WeekNumber: 2, Exercises: []string{"Squat"}, GridData: map[string]string{"0-Mon": "5x5"}}
	rec := do(t, s, http.MethodPut, "/api/v1/weeks/2", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body)
	}
	var put struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&put); err != nil {
		t.Fatal(err)
	}

	rec = do(t, s, http.MethodPut, "/api/v1/weeks/2", body)
	var again struct {
		ID uuid.UUID `json:"id"`
	}
	json.NewDecoder(rec.Body).Decode(&again)
	if again.ID != put.ID {
		t.Errorf("second save id = %v, want %v", again.ID, put.ID)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/weeks/2", nil)
	var got week.Record
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != put.ID || got.GridData["0-Mon"] != "5x5" {
		t.Errorf("record = %+v", got)
	}
	// start date derived from the default program
	if want := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC); !got.StartDate.Equal(want) {
		t.Errorf("start_date = %v, want %v", got.StartDate, want)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/weeks", nil)
	if !strings.Contains(rec.Body.String(), `"weeks":[2]`) {
		t.Errorf("index body = %s, want weeks [2]", rec.Body)
	}
	if got := testutil.ToFloat64(m.CounterWeekUpserts.WithLabelValues("ok")); got != 2 {
		t.Errorf("upsert counter = %v, want 2", got)
	}
}

// TestPutWeekStartDateFollowsProgram verifies a client-sent start date is
// replaced by the one the program gives for the week number.
func TestPutWeekStartDateFollowsProgram(t *testing.T) {
	repo := newFakeRepo()
	s, _ := newTestServer(t, repo, "")

	stale := week.Record{WeekNumber: 3, StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	if rec := do(t, s, http.MethodPut, "/api/v1/weeks/3", stale); rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body)
	}
	want := time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)
	if got := repo.weeks[1][3].StartDate; !got.Equal(want) {
		t.Errorf("stored start_date = %v, want %v", got, want)
	}

	// Without any program the client's date is all there is.
	noProgram := newFakeRepo()
	s = New(noProgram, Options{}, slog.Default())
	if rec := do(t, s, http.MethodPut, "/api/v1/weeks/3", stale); rec.Code != http.StatusOK {
		t.Fatalf("PUT without program: status = %d", rec.Code)
	}
	if got := noProgram.weeks[1][3].StartDate; !got.Equal(stale.StartDate) {
		t.Errorf("stored start_date = %v, want %v", got, stale.StartDate)
	}
	if rec := do(t, s, http.MethodPut, "/api/v1/weeks/4", week.Record{}); rec.Code != http.StatusBadRequest {
		t.Errorf("no program, no date: status = %d, want 400", rec.Code)
	}
}

// TestGetWeekNotFound verifies a missing week returns 404.
func TestGetWeekNotFound(t *testing.T) {
	s, _ := newTestServer(t, newFakeRepo(), "")
	if rec := do(t, s, http.MethodGet, "/api/v1/weeks/7", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// TestPutWeekValidation verifies bad week numbers and mismatched bodies are rejected.
func TestPutWeekValidation(t *testing.T) {
	s, _ := newTestServer(t, newFakeRepo(), "")

	if rec := do(t, s, http.MethodPut, "/api/v1/weeks/0", week.Record{}); rec.Code != http.StatusBadRequest {
		t.Errorf("week 0: status = %d, want 400", rec.Code)
	}
	if rec := do(t, s, http.MethodPut, "/api/v1/weeks/3", week.Record{WeekNumber: 4}); rec.Code != http.StatusBadRequest {
		t.Errorf("mismatch: status = %d, want 400", rec.Code)
	}
}

// TestPutWeekStoreFailure verifies storage errors surface as 500 and are counted.
func TestPutWeekStoreFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.upsertErr = errors.New("db down")
	s, m := newTestServer(t, repo, "")

	if rec := do(t, s, http.MethodPut, "/api/v1/weeks/1", week.Record{WeekNumber: 1}); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got := testutil.ToFloat64(m.CounterWeekUpserts.WithLabelValues("error")); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

// TestProgramDefaultAndOverride verifies the configured default applies until
// the user sets a start date.
func TestProgramDefaultAndOverride(t *testing.T) {
	s, _ := newTestServer(t, newFakeRepo(), "")

	rec := do(t, s, http.MethodGet, "/api/v1/program", nil)
	var got programResponse
	json.NewDecoder(rec.Body).Decode(&got)
	if got.StartDate != "2026-01-05" || !got.IsDefault {
		t.Errorf("program = %+v, want default 2026-01-05", got)
	}

	if rec := do(t, s, http.MethodPut, "/api/v1/program", programResponse{StartDate: "2026-01-12"}); rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/api/v1/program", nil)
	got = programResponse{}
	json.NewDecoder(rec.Body).Decode(&got)
	if got.StartDate != "2026-01-12" || got.IsDefault {
		t.Errorf("program = %+v, want own 2026-01-12", got)
	}

	if rec := do(t, s, http.MethodPut, "/api/v1/program", programResponse{StartDate: "12/01/2026"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status = %d, want 400", rec.Code)
	}
}

// TestProgramNotSet verifies 404 when no default is configured either.
func TestProgramNotSet(t *testing.T) {
	s := New(newFakeRepo(), Options{}, slog.Default())
	if rec := do(t, s, http.MethodGet, "/api/v1/program", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// TestCalendar verifies a date maps to its week number and program day.
func TestCalendar(t *testing.T) {
	s, _ := newTestServer(t, newFakeRepo(), "")

	rec := do(t, s, http.MethodGet, "/api/v1/calendar?date=2026-01-20", nil)
	var got struct {
		WeekNumber int    `json:"week_number"`
		DayOffset  int    `json:"day_offset"`
		DayID      string `json:"day_id"`
		WeekStart  string `json:"week_start"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.WeekNumber != 3 || got.DayOffset != 1 || got.DayID != "Tue" || got.WeekStart != "2026-01-19" {
		t.Errorf("calendar = %+v, want week 3 offset 1 Tue start 2026-01-19", got)
	}

	// Before the start date clamps to week 1, day 0.
	rec = do(t, s, http.MethodGet, "/api/v1/calendar?date=2025-12-01", nil)
	json.NewDecoder(rec.Body).Decode(&got)
	if got.WeekNumber != 1 || got.DayOffset != 0 {
		t.Errorf("calendar before start = %+v, want week 1 offset 0", got)
	}

	if rec := do(t, s, http.MethodGet, "/api/v1/calendar?date=soon", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status = %d, want 400", rec.Code)
	}
}

// TestSettingsNotFoundThenSaved verifies settings 404 until first saved.
func TestSettingsNotFoundThenSaved(t *testing.T) {
	s, _ := newTestServer(t, newFakeRepo(), "")

	if rec := do(t, s, http.MethodGet, "/api/v1/settings", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	in := settings.Defaults()
	in.ExerciseDetails["Squat"] = settings.ExerciseDetail{Sets: 5}
	if rec := do(t, s, http.MethodPut, "/api/v1/settings", in); rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/api/v1/settings", nil)
	var got settings.Settings
	json.NewDecoder(rec.Body).Decode(&got)
	if got.ExerciseDetails["Squat"].Sets != 5 {
		t.Errorf("Squat sets = %d, want 5", got.ExerciseDetails["Squat"].Sets)
	}
}

// TestMeasurements verifies validation on record and the inclusive date-only end.
func TestMeasurements(t *testing.T) {
	s, _ := newTestServer(t, newFakeRepo(), "")

	if rec := do(t, s, http.MethodPost, "/api/v1/measurements", models.Measurement{Value: 80}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing metric: status = %d, want 400", rec.Code)
	}
	m := models.Measurement{Metric: "Weight", Value: 80.4, Unit: "kg", Date: time.Date(2026, 1, 10, 7, 30, 0, 0, time.UTC)}
	if rec := do(t, s, http.MethodPost, "/api/v1/measurements", m); rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body %s", rec.Code, rec.Body)
	}

	rec := do(t, s, http.MethodGet, "/api/v1/measurements?metric=weight&start=2026-01-01&end=2026-01-10", nil)
	var got []models.Measurement
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Metric != "weight" {
		t.Errorf("measurements = %+v, want one weight", got)
	}
}

// TestParseDateRangeDefault verifies the 90-day default window.
func TestParseDateRangeDefault(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	start, end, err := parseDateRange(httptest.NewRequest(http.MethodGet, "/", nil), now)
	if err != nil {
		t.Fatal(err)
	}
	if !end.Equal(now) || !start.Equal(now.AddDate(0, 0, -90)) {
		t.Errorf("range = %v..%v", start, end)
	}
}
