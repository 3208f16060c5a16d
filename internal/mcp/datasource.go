package mcp

import (
	"context"
	"time"

	"github.com/claude/weekgrid/internal/models"
	"github.com/claude/weekgrid/internal/settings"
	"github.com/claude/weekgrid/internal/storage"
	"github.com/claude/weekgrid/internal/week"
)

// DataSource abstracts the data layer for MCP tools.
type DataSource interface {
	FetchProgram(ctx context.Context, userID int) (*week.Program, error)
	FetchWeek(ctx context.Context, userID, weekNumber int) (*week.Record, error)
	FetchWeekIndex(ctx context.Context, userID int) ([]int, error)
	ListWeeks(ctx context.Context, userID, from, to int) ([]week.Record, error)
	FetchSettings(ctx context.Context, userID int) (*settings.Settings, error)
	QueryMeasurements(ctx context.Context, userID int, metric string, start, end time.Time) ([]models.Measurement, error)
	LatestMeasurements(ctx context.Context, userID int) ([]models.Measurement, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
