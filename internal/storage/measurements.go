package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/weekgrid/internal/models"
	"github.com/google/uuid"
)

// UpsertMeasurement records a measurement, replacing any value for the same day
// and metric. Returns the stored id.
func (db *DB) UpsertMeasurement(ctx context.Context, userID int, m models.Measurement) (uuid.UUID, error) {
	id := m.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	var stored uuid.UUID
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO body_measurements (id, user_id, measured_on, metric, value, unit, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, measured_on, metric) DO UPDATE
			SET value = EXCLUDED.value, unit = EXCLUDED.unit, note = EXCLUDED.note
		 RETURNING id`,
		id, userID, m.Date, m.Metric, m.Value, m.Unit, m.Note).Scan(&stored)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting measurement: %w", err)
	}
	return stored, nil
}

// QueryMeasurements retrieves measurements in [start, end). An empty metric matches all.
func (db *DB) QueryMeasurements(ctx context.Context, userID int, metric string, start, end time.Time) ([]models.Measurement, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, measured_on, metric, value, unit, note
		 FROM body_measurements
		 WHERE user_id = $1 AND measured_on >= $2 AND measured_on < $3
		   AND ($4 = '' OR metric = $4)
		 ORDER BY measured_on ASC, metric ASC`,
		userID, start, end, metric)
	if err != nil {
		return nil, fmt.Errorf("querying measurements: %w", err)
	}
	defer rows.Close()

	var result []models.Measurement
	for rows.Next() {
		var m models.Measurement
		if err := rows.Scan(&m.ID, &m.Date, &m.Metric, &m.Value, &m.Unit, &m.Note); err != nil {
			return nil, fmt.Errorf("scanning measurement: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// LatestMeasurements returns the most recent value of each metric.
func (db *DB) LatestMeasurements(ctx context.Context, userID int) ([]models.Measurement, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT DISTINCT ON (metric) id, measured_on, metric, value, unit, note
		 FROM body_measurements
		 WHERE user_id = $1
		 ORDER BY metric, measured_on DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying latest measurements: %w", err)
	}
	defer rows.Close()

	var result []models.Measurement
	for rows.Next() {
		var m models.Measurement
		if err := rows.Scan(&m.ID, &m.Date, &m.Metric, &m.Value, &m.Unit, &m.Note); err != nil {
			return nil, fmt.Errorf("scanning measurement: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
