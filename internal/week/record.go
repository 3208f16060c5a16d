package week

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by remote stores when no week record exists.
	ErrNotFound = errors.New("week not found")
	// ErrIndexOutOfRange is returned by mutations addressing a missing row or day.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrProgramNotSet is returned by remote stores when a user never chose a start date.
	ErrProgramNotSet = errors.New("program start date not set")
)

// DayID identifies a day column.
type DayID string

// DayIDs lists the fixed day columns in order.
var DayIDs = [daysPerWeek]DayID{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

var dayLabels = [daysPerWeek]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// DefaultColor is the display color of a day with no workout type.
const DefaultColor = "#e5e7eb"

// Day describes one day column of a week.
type Day struct {
	ID    DayID  `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
	Color string `json:"color"`
}

// DayUpdate carries optional changes for one day. Nil fields are left unchanged.
type DayUpdate struct {
	Label *string `json:"label,omitempty"`
	Type  *string `json:"type,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Record is one program week. A zero ID means the week exists only locally.
type Record struct {
	ID         uuid.UUID         `json:"id"`
	WeekNumber int               `json:"week_number"`
	StartDate  time.Time         `json:"start_date"`
	Exercises  []string          `json:"exercises"`
	GridData   map[string]string `json:"grid_data"`
	Days       []Day             `json:"days,omitempty"`
}

// Persisted reports whether the record has been stored remotely.
func (r Record) Persisted() bool {
	return r.ID != uuid.Nil
}

// DefaultDays returns the standard 7-day template.
func DefaultDays() []Day {
	days := make([]Day, daysPerWeek)
	for i, id := range DayIDs {
		days[i] = Day{ID: id, Label: dayLabels[i], Color: DefaultColor}
	}
	return days
}

// Empty returns the template for week n: default days, no exercises, no logs.
func Empty(n int, p Program) Record {
	return Record{
		WeekNumber: n,
		StartDate:  StartDateForWeek(p.StartDate, n),
		Exercises:  []string{},
		GridData:   map[string]string{},
		Days:       DefaultDays(),
	}
}

// Normalize maps a record as returned by a remote store onto the full shape.
// Missing or malformed day configuration falls back to the default template.
func Normalize(r Record, p Program) Record {
	r = r.Clone()
	if r.Exercises == nil {
		r.Exercises = []string{}
	}
	if r.GridData == nil {
		r.GridData = map[string]string{}
	}
	if len(r.Days) != daysPerWeek {
		r.Days = DefaultDays()
	}
	if r.StartDate.IsZero() {
		r.StartDate = StartDateForWeek(p.StartDate, r.WeekNumber)
	}
	return r
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	if r.Exercises != nil {
		out.Exercises = append([]string(nil), r.Exercises...)
	}
	if r.GridData != nil {
		out.GridData = make(map[string]string, len(r.GridData))
		for k, v := range r.GridData {
			out.GridData[k] = v
		}
	}
	if r.Days != nil {
		out.Days = append([]Day(nil), r.Days...)
	}
	return out
}

// CellKey builds the grid key for an exercise row and day.
func CellKey(row int, day DayID) string {
	return strconv.Itoa(row) + "-" + string(day)
}

// ParseCellKey splits a grid key into row and day.
func ParseCellKey(key string) (int, DayID, error) {
	rowStr, day, ok := strings.Cut(key, "-")
	if !ok {
		return 0, "", fmt.Errorf("malformed cell key %q", key)
	}
	row, err := strconv.Atoi(rowStr)
	if err != nil || row < 0 {
		return 0, "", fmt.Errorf("malformed cell key %q", key)
	}
	return row, DayID(day), nil
}

// WithGridValue sets one cell. An empty value removes the log.
func (r Record) WithGridValue(key, value string) Record {
	out := r.Clone()
	if out.GridData == nil {
		out.GridData = map[string]string{}
	}
	if value == "" {
		delete(out.GridData, key)
	} else {
		out.GridData[key] = value
	}
	return out
}

// WithExercises replaces the exercise list. Grid cells are keyed by row and stay put.
func (r Record) WithExercises(names []string) Record {
	out := r.Clone()
	out.Exercises = append([]string{}, names...)
	return out
}

// WithDay applies an update to the day at index.
func (r Record) WithDay(index int, u DayUpdate) (Record, error) {
	if index < 0 || index >= len(r.Days) {
		return r, fmt.Errorf("day %d: %w", index, ErrIndexOutOfRange)
	}
	out := r.Clone()
	d := &out.Days[index]
	if u.Label != nil {
		d.Label = *u.Label
	}
	if u.Type != nil {
		d.Type = *u.Type
	}
	if u.Color != nil {
		d.Color = *u.Color
	}
	return out, nil
}

// Reordered moves the exercise at from to position to. Grid rows move with their exercise.
func (r Record) Reordered(from, to int) (Record, error) {
	n := len(r.Exercises)
	if from < 0 || from >= n || to < 0 || to >= n {
		return r, fmt.Errorf("move %d to %d: %w", from, to, ErrIndexOutOfRange)
	}
	out := r.Clone()
	if from == to {
		return out, nil
	}

	// perm[old] = new
	perm := make([]int, n)
	order := make([]int, 0, n)
	for i := range n {
		if i != from {
			order = append(order, i)
		}
	}
	order = append(order[:to], append([]int{from}, order[to:]...)...)
	names := make([]string, n)
	for newIdx, oldIdx := range order {
		perm[oldIdx] = newIdx
		names[newIdx] = r.Exercises[oldIdx]
	}
	out.Exercises = names
	out.GridData = remapRows(r.GridData, func(row int) (int, bool) {
		if row >= n {
			return row, true
		}
		return perm[row], true
	})
	return out, nil
}

// WithoutExercise removes the exercise at index. Logs of that row are dropped and
// logs of later rows shift down one row.
func (r Record) WithoutExercise(index int) (Record, error) {
	if index < 0 || index >= len(r.Exercises) {
		return r, fmt.Errorf("delete exercise %d: %w", index, ErrIndexOutOfRange)
	}
	out := r.Clone()
	out.Exercises = append(append([]string{}, r.Exercises[:index]...), r.Exercises[index+1:]...)
	out.GridData = remapRows(r.GridData, func(row int) (int, bool) {
		switch {
		case row == index:
			return 0, false
		case row > index:
			return row - 1, true
		default:
			return row, true
		}
	})
	return out, nil
}

// remapRows rewrites the row part of every grid key. Keys that do not parse are kept as is.
func remapRows(grid map[string]string, fn func(row int) (int, bool)) map[string]string {
	out := make(map[string]string, len(grid))
	for k, v := range grid {
		row, day, err := ParseCellKey(k)
		if err != nil {
			out[k] = v
			continue
		}
		newRow, keep := fn(row)
		if !keep {
			continue
		}
		out[CellKey(newRow, day)] = v
	}
	return out
}
