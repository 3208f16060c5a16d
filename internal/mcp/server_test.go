package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/claude/weekgrid/internal/models"
	"github.com/claude/weekgrid/internal/settings"
	"github.com/claude/weekgrid/internal/week"
	"github.com/mark3labs/mcp-go/mcp"
)

var testStart = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

// fakeDS is an in-memory DataSource for one user.
type fakeDS struct {
	program  *week.Program
	weeks    map[int]week.Record
	settings *settings.Settings
	ms       []models.Measurement
	gotQuery string
}

func (f *fakeDS) FetchProgram(_ context.Context, _ int) (*week.Program, error) {
	if f.program == nil {
		return nil, week.ErrProgramNotSet
	}
	return f.program, nil
}

func (f *fakeDS) FetchWeek(_ context.Context, _ int, n int) (*week.Record, error) {
	w, ok := f.weeks[n]
	if !ok {
		return nil, week.ErrNotFound
	}
	return &w, nil
}

func (f *fakeDS) FetchWeekIndex(_ context.Context, _ int) ([]int, error) {
	var out []int
	for n := range f.weeks {
		out = append(out, n)
	}
	return week.NewIndex(out...).Numbers(), nil
}

func (f *fakeDS) ListWeeks(_ context.Context, _ int, from, to int) ([]week.Record, error) {
	var out []week.Record
	for n := from; n <= to; n++ {
		if w, ok := f.weeks[n]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeDS) FetchSettings(_ context.Context, _ int) (*settings.Settings, error) {
	if f.settings == nil {
		return nil, settings.ErrNotFound
	}
	return f.settings, nil
}

func (f *fakeDS) QueryMeasurements(_ context.Context, _ int, metric string, _, _ time.Time) ([]models.Measurement, error) {
	f.gotQuery = metric
	return f.ms, nil
}

func (f *fakeDS) LatestMeasurements(_ context.Context, _ int) ([]models.Measurement, error) {
	return f.ms, nil
}

func newHandlers(ds *fakeDS, now time.Time) *handlers {
	return &handlers{ds: ds, program: week.Program{StartDate: testStart}, log: slog.Default(), now: func() time.Time { return now }}
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

// decodeResult unmarshals the JSON text content of a tool result.
func decodeResult(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool returned error: %+v", res.Content)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] = %T, want TextContent", res.Content[0])
	}
	if err := json.Unmarshal([]byte(text.Text), v); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

// TestUserIDFromContextDefault verifies the default user ID (1) when no value
// is set in the context.
func TestUserIDFromContextDefault(t *testing.T) {
	ctx := context.Background()
	if id := UserIDFromContext(ctx); id != 1 {
		t.Errorf("UserIDFromContext(empty) = %d, want 1", id)
	}
}

// TestUserIDFromContextSet verifies the user ID is extracted from context
// after being set by WithUserID.
func TestUserIDFromContextSet(t *testing.T) {
	ctx := WithUserID(context.Background(), 42)
	if id := UserIDFromContext(ctx); id != 42 {
		t.Errorf("UserIDFromContext = %d, want 42", id)
	}
}

// TestDefaultTimeRange verifies time range defaults (last 90 days) and parsing.
func TestDefaultTimeRange(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	start, end, err := defaultTimeRange("", "", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !end.Equal(now) || !start.Equal(now.AddDate(0, 0, -90)) {
		t.Errorf("default range = %v..%v, want 90 days ending now", start, end)
	}

	start, _, err = defaultTimeRange("2024-06-15T10:30:00Z", "", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Hour() != 10 || start.Minute() != 30 {
		t.Errorf("start = %v, want 10:30", start)
	}

	if _, _, err = defaultTimeRange("not-a-date", "", now); err == nil {
		t.Error("expected error for invalid date")
	}
}

// TestGetWeekByDate verifies a date resolves to its program week and a missing
// week comes back as the empty template.
func TestGetWeekByDate(t *testing.T) {
	h := newHandlers(&fakeDS{weeks: map[int]week.Record{}}, testStart)

	res, err := h.getWeek(context.Background(), callTool(map[string]any{"date": "2026-01-20"}))
	if err != nil {
		t.Fatal(err)
	}
	var rec week.Record
	decodeResult(t, res, &rec)
	if rec.WeekNumber != 3 {
		t.Errorf("week_number = %d, want 3", rec.WeekNumber)
	}
	if len(rec.Days) != 7 || len(rec.GridData) != 0 {
		t.Errorf("record = %+v, want empty template", rec)
	}
}

// TestGetWeekDefaultsToToday verifies the current week is used when no argument is given.
func TestGetWeekDefaultsToToday(t *testing.T) {
	stored := week.Empty(2, week.Program{StartDate: testStart}).WithExercises([]string{"Squat"})
	h := newHandlers(&fakeDS{weeks: map[int]week.Record{2: stored}}, testStart.AddDate(0, 0, 8))

	res, err := h.getWeek(context.Background(), callTool(nil))
	if err != nil {
		t.Fatal(err)
	}
	var rec week.Record
	decodeResult(t, res, &rec)
	if rec.WeekNumber != 2 || len(rec.Exercises) != 1 {
		t.Errorf("record = %+v, want stored week 2", rec)
	}
}

// TestGetWeekUserProgram verifies a user's own start date wins over the default.
func TestGetWeekUserProgram(t *testing.T) {
	own := week.Program{StartDate: testStart.AddDate(0, 0, 14)}
	h := newHandlers(&fakeDS{program: &own, weeks: map[int]week.Record{}}, testStart)

	res, err := h.getWeek(context.Background(), callTool(map[string]any{"date": "2026-01-19"}))
	if err != nil {
		t.Fatal(err)
	}
	var rec week.Record
	decodeResult(t, res, &rec)
	if rec.WeekNumber != 1 {
		t.Errorf("week_number = %d, want 1", rec.WeekNumber)
	}
}

// TestGetWeekNoProgram verifies a clear error when neither the user nor the
// server has a start date.
func TestGetWeekNoProgram(t *testing.T) {
	h := newHandlers(&fakeDS{}, testStart)
	h.program = week.Program{}

	res, err := h.getWeek(context.Background(), callTool(map[string]any{"number": 1}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected tool error")
	}
}

// TestProgramForNotSet verifies the missing-program error is the shared sentinel.
func TestProgramForNotSet(t *testing.T) {
	h := newHandlers(&fakeDS{}, testStart)
	h.program = week.Program{}

	if _, err := h.programFor(context.Background(), 1); !errors.Is(err, week.ErrProgramNotSet) {
		t.Errorf("err = %v, want week.ErrProgramNotSet", err)
	}
}

// TestExerciseHistory verifies logs are collected by row across weeks and dated.
func TestExerciseHistory(t *testing.T) {
	p := week.Program{StartDate: testStart}
	w1 := week.Empty(1, p).WithExercises([]string{"Squat", "Bench"}).WithGridValue("1-Wed", "60x8")
	w2 := week.Empty(2, p).WithExercises([]string{"Bench"}).WithGridValue("0-Mon", "62.5x8")
	ds := &fakeDS{
		weeks:    map[int]week.Record{1: w1, 2: w2},
		settings: &settings.Settings{ExerciseDetails: map[string]settings.ExerciseDetail{"Bench": {Sets: 3}}},
	}
	h := newHandlers(ds, testStart)

	res, err := h.getExerciseHistory(context.Background(), callTool(map[string]any{"exercise": "bench"}))
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Exercise string                  `json:"exercise"`
		Logs     []exerciseLog           `json:"logs"`
		Detail   settings.ExerciseDetail `json:"detail"`
	}
	decodeResult(t, res, &out)
	if out.Exercise != "Bench" {
		t.Errorf("exercise = %q, want Bench", out.Exercise)
	}
	if len(out.Logs) != 2 {
		t.Fatalf("logs = %+v, want 2", out.Logs)
	}
	if out.Logs[0].Date != "2026-01-07" || out.Logs[1].Date != "2026-01-12" {
		t.Errorf("dates = %s, %s, want 2026-01-07, 2026-01-12", out.Logs[0].Date, out.Logs[1].Date)
	}
	if out.Detail.Sets != 3 {
		t.Errorf("detail sets = %d, want 3", out.Detail.Sets)
	}
}

// TestListWeeks verifies summaries count logged cells.
func TestListWeeks(t *testing.T) {
	p := week.Program{StartDate: testStart}
	ds := &fakeDS{weeks: map[int]week.Record{
		1: week.Empty(1, p).WithGridValue("0-Mon", "x").WithGridValue("0-Tue", "y"),
		4: week.Empty(4, p),
	}}
	h := newHandlers(ds, testStart)

	res, err := h.listWeeks(context.Background(), callTool(nil))
	if err != nil {
		t.Fatal(err)
	}
	var out []weekSummary
	decodeResult(t, res, &out)
	if len(out) != 2 || out[0].LoggedCells != 2 || out[1].WeekNumber != 4 {
		t.Errorf("summaries = %+v", out)
	}
}

// TestGetSettingsDefaults verifies a user without saved settings sees the defaults.
func TestGetSettingsDefaults(t *testing.T) {
	h := newHandlers(&fakeDS{}, testStart)
	res, err := h.getSettings(context.Background(), callTool(nil))
	if err != nil {
		t.Fatal(err)
	}
	var s settings.Settings
	decodeResult(t, res, &s)
	if len(s.WorkoutTypes) != len(settings.Defaults().WorkoutTypes) {
		t.Errorf("workout types = %v, want defaults", s.WorkoutTypes)
	}
}

// TestGetMeasurementsNormalizesMetric verifies the metric filter is lowercased.
func TestGetMeasurementsNormalizesMetric(t *testing.T) {
	ds := &fakeDS{ms: []models.Measurement{{Metric: "weight", Value: 81}}}
	h := newHandlers(ds, testStart)

	res, err := h.getMeasurements(context.Background(), callTool(map[string]any{"metric": " Weight "}))
	if err != nil {
		t.Fatal(err)
	}
	var out []models.Measurement
	decodeResult(t, res, &out)
	if ds.gotQuery != "weight" {
		t.Errorf("queried metric = %q, want weight", ds.gotQuery)
	}
	if len(out) != 1 {
		t.Errorf("measurements = %+v, want 1", out)
	}
}

// TestCurrentWeekResource verifies the resource reports today's day column.
func TestCurrentWeekResource(t *testing.T) {
	h := newHandlers(&fakeDS{weeks: map[int]week.Record{}}, testStart.AddDate(0, 0, 9))

	var req mcp.ReadResourceRequest
	req.Params.URI = "weekgrid://current_week"
	contents, err := h.currentWeek(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	var out struct {
		Today string      `json:"today"`
		Week  week.Record `json:"week"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatal(err)
	}
	if out.Today != "Wed" || out.Week.WeekNumber != 2 {
		t.Errorf("today = %q week = %d, want Wed week 2", out.Today, out.Week.WeekNumber)
	}
}
