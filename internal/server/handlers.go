package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/weekgrid/internal/models"
	"github.com/claude/weekgrid/internal/settings"
	"github.com/claude/weekgrid/internal/week"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.GetDataStats(r.Context(), userIDFromContext(r))
	if err != nil {
		s.log.Error("stats query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type programResponse struct {
	StartDate string `json:"start_date"`
	IsDefault bool   `json:"is_default,omitempty"`
}

// program resolves the caller's program, falling back to the server default.
// Returns week.ErrProgramNotSet when neither exists.
func (s *Server) program(r *http.Request) (p week.Program, isDefault bool, err error) {
	stored, err := s.repo.FetchProgram(r.Context(), userIDFromContext(r))
	switch {
	case err == nil:
		return *stored, false, nil
	case errors.Is(err, week.ErrProgramNotSet) && !s.opts.DefaultProgram.StartDate.IsZero():
		return s.opts.DefaultProgram, true, nil
	default:
		return week.Program{}, false, err
	}
}

func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	p, isDefault, err := s.program(r)
	if errors.Is(err, week.ErrProgramNotSet) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		s.log.Error("program query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, programResponse{StartDate: p.StartDate.Format(week.DateLayout), IsDefault: isDefault})
}

func (s *Server) handlePutProgram(w http.ResponseWriter, r *http.Request) {
	var body programResponse
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	start, err := week.ParseDate(body.StartDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start_date must be YYYY-MM-DD"})
		return
	}

	uid := userIDFromContext(r)
	if err := s.repo.UpsertProgram(r.Context(), uid, week.Program{StartDate: start}); err != nil {
		s.log.Error("program update failed", "user", uid, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info("program start date changed", "user", uid, "start_date", body.StartDate)
	writeJSON(w, http.StatusOK, programResponse{StartDate: body.StartDate})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	date := s.now()
	if v := r.URL.Query().Get("date"); v != "" {
		var err error
		if date, err = week.ParseDate(v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
	}

	p, _, err := s.program(r)
	if errors.Is(err, week.ErrProgramNotSet) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	n := week.WeekNumberForDate(date, p.StartDate)
	offset := week.DayOffsetForDate(date, p.StartDate)
	writeJSON(w, http.StatusOK, map[string]any{
		"date":        date.Format(week.DateLayout),
		"week_number": n,
		"day_offset":  offset,
		"day_id":      week.DayIDForOffset(offset),
		"week_start":  week.StartDateForWeek(p.StartDate, n).Format(week.DateLayout),
	})
}

func (s *Server) handleWeekIndex(w http.ResponseWriter, r *http.Request) {
	weeks, err := s.repo.FetchWeekIndex(r.Context(), userIDFromContext(r))
	if err != nil {
		s.log.Error("week index query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if weeks == nil {
		weeks = []int{}
	}
	writeJSON(w, http.StatusOK, map[string][]int{"weeks": weeks})
}

func weekNumberParam(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	return n, err == nil && n >= 1
}

func (s *Server) handleGetWeek(w http.ResponseWriter, r *http.Request) {
	n, ok := weekNumberParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid week number"})
		return
	}

	rec, err := s.repo.FetchWeek(r.Context(), userIDFromContext(r), n)
	if errors.Is(err, week.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "week not found"})
		return
	}
	if err != nil {
		s.log.Error("week query failed", "week", n, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePutWeek(w http.ResponseWriter, r *http.Request) {
	n, ok := weekNumberParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid week number"})
		return
	}

	var rec week.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if rec.WeekNumber == 0 {
		rec.WeekNumber = n
	}
	if rec.WeekNumber != n {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "week_number does not match path"})
		return
	}
	// The stored start date always follows the program, so a client holding a
	// stale start date cannot store one that disagrees with the week number.
	p, _, err := s.program(r)
	switch {
	case err == nil:
		rec.StartDate = week.StartDateForWeek(p.StartDate, n)
	case !errors.Is(err, week.ErrProgramNotSet):
		s.log.Error("program query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rec.StartDate.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start_date is required"})
		return
	}

	uid := userIDFromContext(r)
	id, err := s.repo.UpsertWeek(r.Context(), uid, rec)
	if err != nil {
		s.metrics.CounterWeekUpserts.WithLabelValues("error").Inc()
		s.log.Error("week upsert failed", "user", uid, "week", n, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.metrics.CounterWeekUpserts.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "week_number": n})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.repo.FetchSettings(r.Context(), userIDFromContext(r))
	if errors.Is(err, settings.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "settings not found"})
		return
	}
	if err != nil {
		s.log.Error("settings query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var st settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	uid := userIDFromContext(r)
	if err := s.repo.UpsertSettings(r.Context(), uid, st); err != nil {
		s.log.Error("settings upsert failed", "user", uid, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.metrics.CounterSettingsUpdates.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueryMeasurements(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseDateRange(r, s.now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ms, err := s.repo.QueryMeasurements(r.Context(), userIDFromContext(r), r.URL.Query().Get("metric"), start, end)
	if err != nil {
		s.log.Error("measurement query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if ms == nil {
		ms = []models.Measurement{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleRecordMeasurement(w http.ResponseWriter, r *http.Request) {
	var m models.Measurement
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := m.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	uid := userIDFromContext(r)
	id, err := s.repo.UpsertMeasurement(r.Context(), uid, m)
	if err != nil {
		s.log.Error("measurement upsert failed", "user", uid, "metric", m.Metric, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.metrics.CounterMeasurements.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parseDateRange reads start/end (YYYY-MM-DD or RFC3339) from the query.
// Defaults to the 90 days before now. A date-only end is inclusive.
func parseDateRange(r *http.Request, now time.Time) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	end = now
	if endStr != "" {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = week.ParseDate(endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			end = end.AddDate(0, 0, 1)
		}
	}

	if startStr == "" {
		return end.AddDate(0, 0, -90), end, nil
	}
	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = week.ParseDate(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end, nil
}
