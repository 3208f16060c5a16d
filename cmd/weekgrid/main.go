package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/weekgrid/internal/client"
	"github.com/claude/weekgrid/internal/localstore"
	"github.com/claude/weekgrid/internal/settings"
	"github.com/claude/weekgrid/internal/tracker"
	"github.com/claude/weekgrid/internal/week"
	"go.uber.org/multierr"
	"golang.org/x/term"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// localUserID is the only user of a local store.
const localUserID = 1

// backend is what the terminal client needs from a store.
type backend interface {
	tracker.Remote
	settings.Remote
	measurementStore
	FetchProgram(ctx context.Context, userID int) (*week.Program, error)
	UpsertProgram(ctx context.Context, userID int, p week.Program) error
}

var (
	_ backend = (*client.HTTPClient)(nil)
	_ backend = (*localstore.Store)(nil)
)

func main() {
	serverURL := flag.String("server", "", "weekgrid server URL (e.g. http://weekgrid.tailnet.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("WEEKGRID_API_KEY"), "API key for the server")
	localDir := flag.String("local", "", "use a local SQLite store in this directory instead of a server")
	start := flag.String("start", "", "set the program start date (YYYY-MM-DD)")
	weekFlag := flag.Int("week", 0, "week to open (default: the current week)")
	debounce := flag.Duration("debounce", tracker.DefaultDebounce, "quiet period before edits are saved")
	verbose := flag.Bool("v", false, "log sync activity")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	log.Info("weekgrid starting", "version", Version)

	var store backend
	closeStore := func() error { return nil }
	switch {
	case *localDir != "":
		ls, err := localstore.Open(*localDir)
		if err != nil {
			log.Error("failed to open local store", "error", err)
			os.Exit(1)
		}
		store, closeStore = ls, ls.Close
	case *serverURL != "":
		store = client.NewHTTPClient(*serverURL, *apiKey)
	default:
		fmt.Fprintln(os.Stderr, "one of -server or -local is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	program, err := resolveProgram(ctx, store, *start)
	if err != nil {
		log.Error("failed to resolve program", "error", err)
		os.Exit(1)
	}

	st := settings.NewStore(store, localUserID, log)
	st.Load(ctx)

	tr := tracker.New(ctx, store, localUserID, program, log, tracker.Options{
		Debounce:    *debounce,
		InitialWeek: *weekFlag,
		OnSync: func(n int, status tracker.Status, err error) {
			if err != nil {
				log.Warn("sync", "week", n, "status", status, "error", err)
				return
			}
			log.Info("sync", "week", n, "status", status)
		},
	})

	r := &repl{tr: tr, settings: st, measures: store, out: os.Stdout, prompt: term.IsTerminal(int(os.Stdin.Fd()))}
	err = r.run(ctx, os.Stdin)

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = multierr.Combine(err, tr.Close(closeCtx), closeStore())
	if err != nil {
		for _, e := range multierr.Errors(err) {
			log.Error("weekgrid exited with errors", "error", e)
		}
		os.Exit(1)
	}
}

// resolveProgram loads the stored start date. A -start flag sets it explicitly,
// which renumbers every week.
func resolveProgram(ctx context.Context, store backend, startFlag string) (week.Program, error) {
	if startFlag != "" {
		d, err := week.ParseDate(startFlag)
		if err != nil {
			return week.Program{}, fmt.Errorf("parsing -start: %w", err)
		}
		p := week.Program{StartDate: d}
		if err := store.UpsertProgram(ctx, localUserID, p); err != nil {
			return week.Program{}, fmt.Errorf("saving program: %w", err)
		}
		return p, nil
	}

	p, err := store.FetchProgram(ctx, localUserID)
	if errors.Is(err, week.ErrProgramNotSet) {
		return week.Program{}, errors.New("no program start date yet, pass -start YYYY-MM-DD")
	}
	if err != nil {
		return week.Program{}, err
	}
	return *p, nil
}
