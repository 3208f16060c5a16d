package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/weekgrid/internal/mcp"
	"github.com/claude/weekgrid/internal/metrics"
	"github.com/claude/weekgrid/internal/models"
	"github.com/claude/weekgrid/internal/settings"
	"github.com/claude/weekgrid/internal/storage"
	"github.com/claude/weekgrid/internal/week"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Repository is the persistence the HTTP handlers need. *storage.DB satisfies it.
type Repository interface {
	mcp.DataSource
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
	UpsertProgram(ctx context.Context, userID int, p week.Program) error
	UpsertWeek(ctx context.Context, userID int, rec week.Record) (uuid.UUID, error)
	UpsertSettings(ctx context.Context, userID int, s settings.Settings) error
	UpsertMeasurement(ctx context.Context, userID int, m models.Measurement) (uuid.UUID, error)
	GetDataStats(ctx context.Context, userID int) (*storage.DataStats, error)
}

// Compile-time check: *storage.DB satisfies Repository.
var _ Repository = (*storage.DB)(nil)

// Options configures a Server.
type Options struct {
	// APIKey guards /api/v1 and /mcp when Tailscale is not identifying callers.
	// Empty disables the check.
	APIKey string
	// DefaultProgram applies to users who never chose a start date.
	DefaultProgram week.Program
	Version        string
	Metrics        *metrics.Manager
	Gatherer       prometheus.Gatherer
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	repo    Repository
	log     *slog.Logger
	opts    Options
	metrics *metrics.Manager
	whois   WhoIser
	now     func() time.Time
	router  chi.Router
}

// New creates a new Server with all routes configured.
func New(repo Repository, opts Options, log *slog.Logger) *Server {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewManager("weekgrid", "server", prometheus.NewRegistry())
	}
	s := &Server{
		repo:    repo,
		log:     log,
		opts:    opts,
		metrics: opts.Metrics,
		now:     time.Now,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// SetTailscale switches identity to Tailscale WhoIs lookups. Requests then
// need no API key.
func (s *Server) SetTailscale(w WhoIser) {
	s.whois = w
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(RequestMetrics(s.metrics))

	if s.opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Group(func(r chi.Router) {
		r.Use(s.identity)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/me", s.handleMe)
			r.Get("/stats", s.handleStats)
			r.Get("/program", s.handleGetProgram)
			r.Put("/program", s.handlePutProgram)
			r.Get("/calendar", s.handleCalendar)
			r.Get("/weeks", s.handleWeekIndex)
			r.Get("/weeks/{number}", s.handleGetWeek)
			r.Put("/weeks/{number}", s.handlePutWeek)
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handlePutSettings)
			r.Get("/measurements", s.handleQueryMeasurements)
			r.Post("/measurements", s.handleRecordMeasurement)
		})

		mcpSrv := mcp.New(s.repo, s.opts.DefaultProgram, s.opts.Version, s.log)
		r.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv,
			mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
				return mcp.WithUserID(ctx, userIDFromContext(r))
			}),
		))
	})
}
