package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/weekgrid/internal/settings"
	"github.com/jackc/pgx/v5"
)

// FetchSettings returns the user's account settings, or settings.ErrNotFound.
func (db *DB) FetchSettings(ctx context.Context, userID int) (*settings.Settings, error) {
	var cols settingsColumns
	err := db.Pool.QueryRow(ctx,
		`SELECT muscle_groups, workout_types, exercise_details, workout_colors
		 FROM user_settings WHERE user_id = $1`, userID).
		Scan(&cols.MuscleGroups, &cols.WorkoutTypes, &cols.ExerciseDetails, &cols.WorkoutColors)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settings.ErrNotFound
		}
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	return decodeSettings(cols)
}

// UpsertSettings replaces the user's account settings.
func (db *DB) UpsertSettings(ctx context.Context, userID int, s settings.Settings) error {
	cols, err := encodeSettings(s)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, muscle_groups, workout_types, exercise_details, workout_colors)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
			SET muscle_groups = EXCLUDED.muscle_groups,
			    workout_types = EXCLUDED.workout_types,
			    exercise_details = EXCLUDED.exercise_details,
			    workout_colors = EXCLUDED.workout_colors,
			    updated_at = NOW()`,
		userID, cols.MuscleGroups, cols.WorkoutTypes, cols.ExerciseDetails, cols.WorkoutColors)
	if err != nil {
		return fmt.Errorf("upserting settings: %w", err)
	}
	return nil
}
