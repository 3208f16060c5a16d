package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/weekgrid/internal/week"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FetchWeek retrieves one week. Returns week.ErrNotFound if the user has no such week.
func (db *DB) FetchWeek(ctx context.Context, userID, weekNumber int) (*week.Record, error) {
	var rec week.Record
	var cols week.Columns
	err := db.Pool.QueryRow(ctx,
		`SELECT id, week_number, start_date, exercises, grid_data, days_config
		 FROM weeks
		 WHERE user_id = $1 AND week_number = $2`,
		userID, weekNumber).Scan(&rec.ID, &rec.WeekNumber, &rec.StartDate, &cols.Exercises, &cols.GridData, &cols.Days)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, week.ErrNotFound
		}
		return nil, fmt.Errorf("querying week %d: %w", weekNumber, err)
	}
	if err := week.DecodeColumns(&rec, cols); err != nil {
		return nil, fmt.Errorf("week %d: %w", weekNumber, err)
	}
	return &rec, nil
}

// FetchWeekIndex returns the week numbers stored for a user, ascending.
func (db *DB) FetchWeekIndex(ctx context.Context, userID int) ([]int, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT week_number FROM weeks WHERE user_id = $1 ORDER BY week_number`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying week index: %w", err)
	}
	defer rows.Close()

	var result []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning week index: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// UpsertWeek inserts or replaces a week keyed by (user, week number). The id of
// an existing row is kept. Returns the stored id.
func (db *DB) UpsertWeek(ctx context.Context, userID int, rec week.Record) (uuid.UUID, error) {
	if rec.WeekNumber < 1 {
		return uuid.Nil, fmt.Errorf("upserting week: %w", week.ErrIndexOutOfRange)
	}
	cols, err := week.EncodeColumns(rec)
	if err != nil {
		return uuid.Nil, err
	}
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var stored uuid.UUID
	err = db.Pool.QueryRow(ctx,
		`INSERT INTO weeks (id, user_id, week_number, start_date, exercises, grid_data, days_config)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, week_number) DO UPDATE
			SET start_date = EXCLUDED.start_date,
			    exercises = EXCLUDED.exercises,
			    grid_data = EXCLUDED.grid_data,
			    days_config = EXCLUDED.days_config,
			    updated_at = NOW()
		 RETURNING id`,
		id, userID, rec.WeekNumber, rec.StartDate, cols.Exercises, cols.GridData, cols.Days).Scan(&stored)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting week %d: %w", rec.WeekNumber, err)
	}
	return stored, nil
}

// ListWeeks retrieves weeks in [from, to], ascending.
func (db *DB) ListWeeks(ctx context.Context, userID, from, to int) ([]week.Record, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, week_number, start_date, exercises, grid_data, days_config
		 FROM weeks
		 WHERE user_id = $1 AND week_number >= $2 AND week_number <= $3
		 ORDER BY week_number`,
		userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying weeks: %w", err)
	}
	defer rows.Close()

	var result []week.Record
	for rows.Next() {
		var rec week.Record
		var cols week.Columns
		if err := rows.Scan(&rec.ID, &rec.WeekNumber, &rec.StartDate, &cols.Exercises, &cols.GridData, &cols.Days); err != nil {
			return nil, fmt.Errorf("scanning week: %w", err)
		}
		if err := week.DecodeColumns(&rec, cols); err != nil {
			return nil, fmt.Errorf("week %d: %w", rec.WeekNumber, err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
