package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNotFound is returned by remote stores when a user has no saved settings.
var ErrNotFound = errors.New("settings not found")

// ExerciseDetail is account-level metadata for one exercise, shared by every
// week that lists the exercise.
type ExerciseDetail struct {
	Muscles      []string `json:"muscles"`
	WorkoutTypes []string `json:"workout_types"`
	Sets         int      `json:"sets,omitempty"`
	Reps         string   `json:"reps,omitempty"`
	Color        string   `json:"color,omitempty"`
}

// Settings is the account-settings aggregate. ExerciseDetails is keyed by exercise name.
type Settings struct {
	MuscleGroups    []string                  `json:"muscle_groups"`
	WorkoutTypes    []string                  `json:"workout_types"`
	ExerciseDetails map[string]ExerciseDetail `json:"exercise_details"`
	WorkoutColors   map[string]string         `json:"workout_colors"`
}

// Defaults returns the settings a new account starts with.
func Defaults() Settings {
	return Settings{
		MuscleGroups:    []string{"Chest", "Back", "Shoulders", "Biceps", "Triceps", "Quads", "Hamstrings", "Glutes", "Calves", "Core"},
		WorkoutTypes:    []string{"Push", "Pull", "Legs", "Upper", "Lower", "Cardio", "Rest"},
		ExerciseDetails: map[string]ExerciseDetail{},
		WorkoutColors: map[string]string{
			"Push":   "#f87171",
			"Pull":   "#60a5fa",
			"Legs":   "#34d399",
			"Upper":  "#fbbf24",
			"Lower":  "#a78bfa",
			"Cardio": "#f472b6",
			"Rest":   "#e5e7eb",
		},
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := Settings{
		MuscleGroups:    append([]string(nil), s.MuscleGroups...),
		WorkoutTypes:    append([]string(nil), s.WorkoutTypes...),
		ExerciseDetails: make(map[string]ExerciseDetail, len(s.ExerciseDetails)),
		WorkoutColors:   make(map[string]string, len(s.WorkoutColors)),
	}
	for k, v := range s.ExerciseDetails {
		v.Muscles = append([]string(nil), v.Muscles...)
		v.WorkoutTypes = append([]string(nil), v.WorkoutTypes...)
		out.ExerciseDetails[k] = v
	}
	for k, v := range s.WorkoutColors {
		out.WorkoutColors[k] = v
	}
	return out
}

// Remote is the persistence capability the store needs.
type Remote interface {
	FetchSettings(ctx context.Context, userID int) (*Settings, error)
	UpsertSettings(ctx context.Context, userID int, s Settings) error
}

// Store owns one user's settings. Changes apply locally first and are then
// written through to the remote store.
type Store struct {
	remote Remote
	userID int
	log    *slog.Logger

	mu  sync.Mutex
	cur Settings
}

// NewStore creates a Store holding the default settings until Load is called.
func NewStore(remote Remote, userID int, log *slog.Logger) *Store {
	return &Store{remote: remote, userID: userID, log: log, cur: Defaults()}
}

// Load fetches the user's settings. A missing record yields defaults; other
// failures are logged and also fall back to defaults.
func (s *Store) Load(ctx context.Context) Settings {
	remote, err := s.remote.FetchSettings(ctx, s.userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case errors.Is(err, ErrNotFound):
		s.cur = Defaults()
	case err != nil:
		s.log.Warn("loading settings failed, using defaults", "user", s.userID, "error", err)
		s.cur = Defaults()
	default:
		s.cur = fill(*remote)
	}
	return s.cur.Clone()
}

// fill replaces nil collections so callers can write into them.
func fill(s Settings) Settings {
	s = s.Clone()
	if s.MuscleGroups == nil {
		s.MuscleGroups = []string{}
	}
	if s.WorkoutTypes == nil {
		s.WorkoutTypes = []string{}
	}
	return s
}

// Current returns a copy of the settings held in memory.
func (s *Store) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Clone()
}

// Detail returns the shared detail for an exercise name.
func (s *Store) Detail(name string) (ExerciseDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.cur.ExerciseDetails[name]
	return d, ok
}

// SetExerciseDetail stores the detail for an exercise name.
func (s *Store) SetExerciseDetail(ctx context.Context, name string, d ExerciseDetail) error {
	return s.update(ctx, func(cur *Settings) {
		cur.ExerciseDetails[name] = d
	})
}

// RemoveExerciseDetail drops the detail for an exercise name.
func (s *Store) RemoveExerciseDetail(ctx context.Context, name string) error {
	return s.update(ctx, func(cur *Settings) {
		delete(cur.ExerciseDetails, name)
	})
}

// RenameExercise moves a detail to a new exercise name.
func (s *Store) RenameExercise(ctx context.Context, from, to string) error {
	return s.update(ctx, func(cur *Settings) {
		d, ok := cur.ExerciseDetails[from]
		if !ok {
			return
		}
		delete(cur.ExerciseDetails, from)
		cur.ExerciseDetails[to] = d
	})
}

// SetMuscleGroups replaces the muscle group catalog.
func (s *Store) SetMuscleGroups(ctx context.Context, groups []string) error {
	return s.update(ctx, func(cur *Settings) {
		cur.MuscleGroups = append([]string{}, groups...)
	})
}

// SetWorkoutTypes replaces the workout type catalog.
func (s *Store) SetWorkoutTypes(ctx context.Context, types []string) error {
	return s.update(ctx, func(cur *Settings) {
		cur.WorkoutTypes = append([]string{}, types...)
	})
}

// SetWorkoutColor sets the display color of a workout type.
func (s *Store) SetWorkoutColor(ctx context.Context, workoutType, color string) error {
	return s.update(ctx, func(cur *Settings) {
		cur.WorkoutColors[workoutType] = color
	})
}

// ColorFor returns the display color of a workout type, if known.
func (s *Store) ColorFor(workoutType string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cur.WorkoutColors[workoutType]
	return c, ok
}

func (s *Store) update(ctx context.Context, fn func(cur *Settings)) error {
	s.mu.Lock()
	next := s.cur.Clone()
	fn(&next)
	s.cur = next
	snapshot := next.Clone()
	s.mu.Unlock()

	if err := s.remote.UpsertSettings(ctx, s.userID, snapshot); err != nil {
		s.log.Error("saving settings failed", "user", s.userID, "error", err)
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
