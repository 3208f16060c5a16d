package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/claude/weekgrid/internal/settings"
	"github.com/claude/weekgrid/internal/week"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultTimeRange returns start/end defaulting to the last 90 days.
func defaultTimeRange(startStr, endStr string, now time.Time) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = now
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -90)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(week.DateLayout, s)
}

// --- Tool definitions ---

var toolGetWeek = mcp.NewTool("get_week",
	mcp.WithDescription("Retrieve one program week: exercise rows, the seven day columns (label, workout type, color) and the logged cells keyed '{row}-{dayId}'. Weeks never logged come back as the empty template."),
	mcp.WithNumber("number", mcp.Description("Week number (1 = the week starting on the program start date)")),
	mcp.WithString("date", mcp.Description("Any date inside the week (YYYY-MM-DD). Ignored when number is set. Defaults to today.")),
)

var toolListWeeks = mcp.NewTool("list_weeks",
	mcp.WithDescription("List stored weeks in a range with their start date, exercises and number of logged cells."),
	mcp.WithNumber("from", mcp.Description("First week number. Defaults to 1.")),
	mcp.WithNumber("to", mcp.Description("Last week number. Defaults to the latest stored week.")),
)

var toolGetExerciseHistory = mcp.NewTool("get_exercise_history",
	mcp.WithDescription("Every logged cell of one exercise across all stored weeks, with the date of each log and the exercise's muscle groups."),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise name (case-insensitive exact match)")),
)

var toolGetSettings = mcp.NewTool("get_settings",
	mcp.WithDescription("Account settings: muscle group and workout type catalogs, per-exercise details (muscles, types, sets, reps) and workout type colors."),
)

var toolGetMeasurements = mcp.NewTool("get_measurements",
	mcp.WithDescription("Body measurements (e.g. weight, waist) in a date range, one value per day and metric."),
	mcp.WithString("metric", mcp.Description("Metric name. Omit for all metrics.")),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 90 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
)

// --- Tool handlers ---

func (h *handlers) getWeek(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)
	p, err := h.programFor(ctx, uid)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	n := req.GetInt("number", 0)
	if n == 0 {
		date := h.now()
		if s := req.GetString("date", ""); s != "" {
			if date, err = week.ParseDate(s); err != nil {
				return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
			}
		}
		n = week.WeekNumberForDate(date, p.StartDate)
	}
	if n < 1 {
		return mcp.NewToolResultError("week number must be at least 1"), nil
	}

	rec, err := h.loadWeek(ctx, uid, n, p)
	if err != nil {
		h.log.Error("mcp get_week", "week", n, "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(rec)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

type weekSummary struct {
	WeekNumber  int       `json:"week_number"`
	StartDate   time.Time `json:"start_date"`
	Exercises   []string  `json:"exercises"`
	LoggedCells int       `json:"logged_cells"`
}

func (h *handlers) listWeeks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)
	from := req.GetInt("from", 1)
	to := req.GetInt("to", 0)

	if to == 0 {
		idx, err := h.ds.FetchWeekIndex(ctx, uid)
		if err != nil {
			h.log.Error("mcp list_weeks index", "error", err)
			return mcp.NewToolResultError("query failed: " + err.Error()), nil
		}
		to = week.NewIndex(idx...).Max()
	}

	weeks, err := h.ds.ListWeeks(ctx, uid, from, to)
	if err != nil {
		h.log.Error("mcp list_weeks", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	summaries := make([]weekSummary, 0, len(weeks))
	for _, w := range weeks {
		summaries = append(summaries, weekSummary{
			WeekNumber:  w.WeekNumber,
			StartDate:   w.StartDate,
			Exercises:   w.Exercises,
			LoggedCells: len(w.GridData),
		})
	}

	result, err := mcp.NewToolResultJSON(summaries)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

type exerciseLog struct {
	WeekNumber int        `json:"week_number"`
	Date       string     `json:"date"`
	Day        week.DayID `json:"day"`
	Value      string     `json:"value"`
}

func (h *handlers) getExerciseHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("exercise")
	if err != nil {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}
	uid := UserIDFromContext(ctx)

	idx, err := h.ds.FetchWeekIndex(ctx, uid)
	if err != nil {
		h.log.Error("mcp get_exercise_history index", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	weeks, err := h.ds.ListWeeks(ctx, uid, 1, week.NewIndex(idx...).Max())
	if err != nil {
		h.log.Error("mcp get_exercise_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	logs := []exerciseLog{}
	canonical := name
	for _, w := range weeks {
		for row, ex := range w.Exercises {
			if !strings.EqualFold(ex, name) {
				continue
			}
			canonical = ex
			for offset, day := range week.DayIDs {
				v, ok := w.GridData[week.CellKey(row, day)]
				if !ok {
					continue
				}
				logs = append(logs, exerciseLog{
					WeekNumber: w.WeekNumber,
					Date:       w.StartDate.AddDate(0, 0, offset).Format(week.DateLayout),
					Day:        day,
					Value:      v,
				})
			}
		}
	}

	out := map[string]any{"exercise": canonical, "logs": logs}
	s, err := h.ds.FetchSettings(ctx, uid)
	switch {
	case err == nil:
		if d, ok := s.ExerciseDetails[canonical]; ok {
			out["detail"] = d
		}
	case !errors.Is(err, settings.ErrNotFound):
		h.log.Warn("mcp get_exercise_history settings", "error", err)
	}

	result, err := mcp.NewToolResultJSON(out)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSettings(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, err := h.ds.FetchSettings(ctx, UserIDFromContext(ctx))
	if errors.Is(err, settings.ErrNotFound) {
		d := settings.Defaults()
		s, err = &d, nil
	}
	if err != nil {
		h.log.Error("mcp get_settings", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(s)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getMeasurements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""), h.now())
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	metric := strings.ToLower(strings.TrimSpace(req.GetString("metric", "")))
	ms, err := h.ds.QueryMeasurements(ctx, UserIDFromContext(ctx), metric, start, end)
	if err != nil {
		h.log.Error("mcp get_measurements", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(ms)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
