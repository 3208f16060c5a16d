package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/weekgrid/internal/week"
	"github.com/jackc/pgx/v5"
)

// FetchProgram returns the user's program start date, or week.ErrProgramNotSet.
func (db *DB) FetchProgram(ctx context.Context, userID int) (*week.Program, error) {
	var p week.Program
	err := db.Pool.QueryRow(ctx,
		`SELECT start_date FROM program_config WHERE user_id = $1`, userID).Scan(&p.StartDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, week.ErrProgramNotSet
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}
	return &p, nil
}

// UpsertProgram sets the user's program start date.
func (db *DB) UpsertProgram(ctx context.Context, userID int, p week.Program) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO program_config (user_id, start_date) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET start_date = EXCLUDED.start_date, updated_at = NOW()`,
		userID, p.StartDate)
	if err != nil {
		return fmt.Errorf("upserting program: %w", err)
	}
	return nil
}
