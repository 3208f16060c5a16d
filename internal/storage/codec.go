package storage

import (
	"encoding/json"
	"fmt"

	"github.com/claude/weekgrid/internal/settings"
)

// settingsColumns holds the JSONB columns of a user_settings row.
type settingsColumns struct {
	MuscleGroups    []byte
	WorkoutTypes    []byte
	ExerciseDetails []byte
	WorkoutColors   []byte
}

func encodeSettings(s settings.Settings) (settingsColumns, error) {
	s = s.Clone()
	if s.MuscleGroups == nil {
		s.MuscleGroups = []string{}
	}
	if s.WorkoutTypes == nil {
		s.WorkoutTypes = []string{}
	}

	var cols settingsColumns
	var err error
	if cols.MuscleGroups, err = json.Marshal(s.MuscleGroups); err != nil {
		return cols, fmt.Errorf("encoding muscle groups: %w", err)
	}
	if cols.WorkoutTypes, err = json.Marshal(s.WorkoutTypes); err != nil {
		return cols, fmt.Errorf("encoding workout types: %w", err)
	}
	if cols.ExerciseDetails, err = json.Marshal(s.ExerciseDetails); err != nil {
		return cols, fmt.Errorf("encoding exercise details: %w", err)
	}
	if cols.WorkoutColors, err = json.Marshal(s.WorkoutColors); err != nil {
		return cols, fmt.Errorf("encoding workout colors: %w", err)
	}
	return cols, nil
}

func decodeSettings(cols settingsColumns) (*settings.Settings, error) {
	s := &settings.Settings{}
	fields := []struct {
		name string
		data []byte
		dst  any
	}{
		{"muscle groups", cols.MuscleGroups, &s.MuscleGroups},
		{"workout types", cols.WorkoutTypes, &s.WorkoutTypes},
		{"exercise details", cols.ExerciseDetails, &s.ExerciseDetails},
		{"workout colors", cols.WorkoutColors, &s.WorkoutColors},
	}
	for _, f := range fields {
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", f.name, err)
		}
	}
	return s, nil
}
