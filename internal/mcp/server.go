package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/weekgrid/internal/week"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
// defaultProgram applies to users who never chose a start date.
func New(ds DataSource, defaultProgram week.Program, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("weekgrid", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("weekgrid workout tracker. Read weekly exercise grids (exercise rows x seven program days, free-text logs per cell), account exercise metadata and body measurements. Week 1 starts on the program start date. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, program: defaultProgram, log: log, now: time.Now}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetWeek, Handler: h.getWeek},
		server.ServerTool{Tool: toolListWeeks, Handler: h.listWeeks},
		server.ServerTool{Tool: toolGetExerciseHistory, Handler: h.getExerciseHistory},
		server.ServerTool{Tool: toolGetSettings, Handler: h.getSettings},
		server.ServerTool{Tool: toolGetMeasurements, Handler: h.getMeasurements},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resCurrentWeek, Handler: h.currentWeek},
		server.ServerResource{Resource: resLatestMeasurements, Handler: h.latestMeasurements},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds      DataSource
	program week.Program
	log     *slog.Logger
	now     func() time.Time
}

// programFor resolves the user's program, falling back to the server default.
// It returns week.ErrProgramNotSet when neither exists.
func (h *handlers) programFor(ctx context.Context, uid int) (week.Program, error) {
	p, err := h.ds.FetchProgram(ctx, uid)
	switch {
	case err == nil:
		return *p, nil
	case errors.Is(err, week.ErrProgramNotSet):
		if h.program.StartDate.IsZero() {
			return week.Program{}, err
		}
		return h.program, nil
	default:
		return week.Program{}, fmt.Errorf("loading program: %w", err)
	}
}

// loadWeek returns week n in its full shape. Missing weeks come back as the
// empty template.
func (h *handlers) loadWeek(ctx context.Context, uid, n int, p week.Program) (week.Record, error) {
	rec, err := h.ds.FetchWeek(ctx, uid, n)
	if errors.Is(err, week.ErrNotFound) {
		return week.Empty(n, p), nil
	}
	if err != nil {
		return week.Record{}, err
	}
	return week.Normalize(*rec, p), nil
}

// --- Resource definitions ---

var resCurrentWeek = mcp.NewResource(
	"weekgrid://current_week",
	"Current Week",
	mcp.WithResourceDescription("The program week containing today, with its exercises, day configuration and logs"),
	mcp.WithMIMEType("application/json"),
)

var resLatestMeasurements = mcp.NewResource(
	"weekgrid://latest_measurements",
	"Latest Measurements",
	mcp.WithResourceDescription("The most recent value of every recorded body measurement"),
	mcp.WithMIMEType("application/json"),
)
