package storage

import (
	"context"
	"fmt"
	"time"
)

// DataStats holds aggregate statistics about a user's stored data.
type DataStats struct {
	TotalWeeks        int64      `json:"total_weeks"`
	LoggedCells       int64      `json:"logged_cells"`
	TotalMeasurements int64      `json:"total_measurements"`
	FirstWeek         *int       `json:"first_week"`
	LastWeek          *int       `json:"last_week"`
	LastUpdated       *time.Time `json:"last_updated"`
}

// GetDataStats returns aggregate statistics for a user's stored data.
func (db *DB) GetDataStats(ctx context.Context, userID int) (*DataStats, error) {
	stats := &DataStats{}

	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), MIN(week_number), MAX(week_number), MAX(updated_at),
		        COALESCE(SUM((SELECT COUNT(*) FROM jsonb_object_keys(grid_data))), 0)
		 FROM weeks WHERE user_id = $1`, userID,
	).Scan(&stats.TotalWeeks, &stats.FirstWeek, &stats.LastWeek, &stats.LastUpdated, &stats.LoggedCells)
	if err != nil {
		return nil, fmt.Errorf("counting weeks: %w", err)
	}

	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM body_measurements WHERE user_id = $1`, userID,
	).Scan(&stats.TotalMeasurements)
	if err != nil {
		return nil, fmt.Errorf("counting measurements: %w", err)
	}

	return stats, nil
}
