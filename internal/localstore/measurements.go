package localstore

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/weekgrid/internal/models"
	"github.com/claude/weekgrid/internal/week"
	"github.com/google/uuid"
)

// UpsertMeasurement records a measurement, replacing any value for the same day
// and metric. Returns the stored id.
func (s *Store) UpsertMeasurement(ctx context.Context, userID int, m models.Measurement) (uuid.UUID, error) {
	id := m.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	var stored string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO body_measurements (id, user_id, measured_on, metric, value, unit, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, measured_on, metric) DO UPDATE
			SET value = excluded.value, unit = excluded.unit, note = excluded.note
		 RETURNING id`,
		id.String(), userID, m.Date.Format(week.DateLayout), m.Metric, m.Value, m.Unit, m.Note).Scan(&stored)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting measurement: %w", err)
	}
	return uuid.Parse(stored)
}

// QueryMeasurements retrieves measurements dated in [start, end), compared by
// calendar day. An empty metric matches all.
func (s *Store) QueryMeasurements(ctx context.Context, userID int, metric string, start, end time.Time) ([]models.Measurement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, measured_on, metric, value, unit, note
		 FROM body_measurements
		 WHERE user_id = ? AND measured_on >= ? AND measured_on < ?
		   AND (? = '' OR metric = ?)
		 ORDER BY measured_on ASC, metric ASC`,
		userID, start.Format(week.DateLayout), end.Format(week.DateLayout), metric, metric)
	if err != nil {
		return nil, fmt.Errorf("querying measurements: %w", err)
	}
	defer rows.Close()

	var result []models.Measurement
	for rows.Next() {
		var id, day string
		var m models.Measurement
		if err := rows.Scan(&id, &day, &m.Metric, &m.Value, &m.Unit, &m.Note); err != nil {
			return nil, fmt.Errorf("scanning measurement: %w", err)
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("measurement id: %w", err)
		}
		if m.Date, err = time.Parse(week.DateLayout, day); err != nil {
			return nil, fmt.Errorf("measurement date: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
