// Package localstore is a single-file SQLite store with the same semantics as
// the server, for offline single-user use of the terminal client.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/claude/weekgrid/internal/settings"
	"github.com/claude/weekgrid/internal/week"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS program_config (
	user_id    INTEGER PRIMARY KEY,
	start_date TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS weeks (
	id          TEXT NOT NULL UNIQUE,
	user_id     INTEGER NOT NULL,
	week_number INTEGER NOT NULL CHECK (week_number > 0),
	start_date  TEXT NOT NULL,
	exercises   TEXT NOT NULL DEFAULT '[]',
	grid_data   TEXT NOT NULL DEFAULT '{}',
	days_config TEXT,
	updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, week_number)
);
CREATE TABLE IF NOT EXISTS user_settings (
	user_id INTEGER PRIMARY KEY,
	data    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS body_measurements (
	id          TEXT NOT NULL UNIQUE,
	user_id     INTEGER NOT NULL,
	measured_on TEXT NOT NULL,
	metric      TEXT NOT NULL,
	value       REAL NOT NULL,
	unit        TEXT NOT NULL DEFAULT '',
	note        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, measured_on, metric)
);`

// Store keeps weeks, settings, measurements and the program start date in a
// SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dir/weekgrid.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "weekgrid.db"))
	if err != nil {
		return nil, fmt.Errorf("opening local db: %w", err)
	}
	// One connection keeps writes ordered and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating local schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FetchWeek retrieves one week. Returns week.ErrNotFound if it was never saved.
func (s *Store) FetchWeek(ctx context.Context, userID, weekNumber int) (*week.Record, error) {
	var id, start string
	var cols week.Columns
	err := s.db.QueryRowContext(ctx,
		`SELECT id, start_date, exercises, grid_data, days_config
		 FROM weeks WHERE user_id = ? AND week_number = ?`,
		userID, weekNumber).Scan(&id, &start, &cols.Exercises, &cols.GridData, &cols.Days)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, week.ErrNotFound
		}
		return nil, fmt.Errorf("querying week %d: %w", weekNumber, err)
	}

	rec := &week.Record{WeekNumber: weekNumber}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("week %d id: %w", weekNumber, err)
	}
	if rec.StartDate, err = time.Parse(week.DateLayout, start); err != nil {
		return nil, fmt.Errorf("week %d start date: %w", weekNumber, err)
	}
	if err := week.DecodeColumns(rec, cols); err != nil {
		return nil, fmt.Errorf("week %d: %w", weekNumber, err)
	}
	return rec, nil
}

// FetchWeekIndex returns the saved week numbers, ascending.
func (s *Store) FetchWeekIndex(ctx context.Context, userID int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT week_number FROM weeks WHERE user_id = ? ORDER BY week_number`, userID)
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

// UpsertWeek inserts or replaces a week keyed by (user, week number), keeping
// the id of an existing row. Returns the stored id.
func (s *Store) UpsertWeek(ctx context.Context, userID int, rec week.Record) (uuid.UUID, error) {
	if rec.WeekNumber < 1 {
		return uuid.Nil, fmt.Errorf("upserting week: %w", week.ErrIndexOutOfRange)
	}
	cols, err := week.EncodeColumns(rec)
	if err != nil {
		return uuid.Nil, err
	}
	days := sql.NullString{String: string(cols.Days), Valid: cols.Days != nil}
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var stored string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO weeks (id, user_id, week_number, start_date, exercises, grid_data, days_config)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, week_number) DO UPDATE
			SET start_date = excluded.start_date,
			    exercises = excluded.exercises,
			    grid_data = excluded.grid_data,
			    days_config = excluded.days_config,
			    updated_at = CURRENT_TIMESTAMP
		 RETURNING id`,
		id.String(), userID, rec.WeekNumber, rec.StartDate.Format(week.DateLayout),
		string(cols.Exercises), string(cols.GridData), days).Scan(&stored)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting week %d: %w", rec.WeekNumber, err)
	}
	return uuid.Parse(stored)
}

// FetchSettings returns the saved settings, or settings.ErrNotFound.
func (s *Store) FetchSettings(ctx context.Context, userID int) (*settings.Settings, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM user_settings WHERE user_id = ?`, userID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, settings.ErrNotFound
		}
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	var out settings.Settings
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return &out, nil
}

// UpsertSettings replaces the saved settings.
func (s *Store) UpsertSettings(ctx context.Context, userID int, in settings.Settings) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO user_settings (user_id, data) VALUES (?, ?)`, userID, string(data))
	if err != nil {
		return fmt.Errorf("upserting settings: %w", err)
	}
	return nil
}

// FetchProgram returns the saved program start date, or week.ErrProgramNotSet.
func (s *Store) FetchProgram(ctx context.Context, userID int) (*week.Program, error) {
	var start string
	err := s.db.QueryRowContext(ctx,
		`SELECT start_date FROM program_config WHERE user_id = ?`, userID).Scan(&start)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, week.ErrProgramNotSet
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}
	t, err := time.Parse(week.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("parsing program start date: %w", err)
	}
	return &week.Program{StartDate: t}, nil
}

// UpsertProgram sets the program start date.
func (s *Store) UpsertProgram(ctx context.Context, userID int, p week.Program) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO program_config (user_id, start_date) VALUES (?, ?)`,
		userID, p.StartDate.Format(week.DateLayout))
	if err != nil {
		return fmt.Errorf("upserting program: %w", err)
	}
	return nil
}
