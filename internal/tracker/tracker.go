package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/weekgrid/internal/week"
	"github.com/google/uuid"
)

// DefaultDebounce is the quiet period after the last edit before a week is saved.
const DefaultDebounce = 2 * time.Second

var (
	// ErrNotActive is returned when a mutation addresses a week other than the active one.
	ErrNotActive = errors.New("week is not active")
	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("tracker closed")
	// ErrIndexUnavailable is returned by AddNextWeek when the week index could
	// not be loaded, since the next week number would be a guess.
	ErrIndexUnavailable = errors.New("week index unavailable")
)

// Status is the sync state of the active week.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// Remote is the week persistence capability. FetchWeek returns week.ErrNotFound
// when no record exists. UpsertWeek is keyed by (userID, rec.WeekNumber) and
// returns the stored record's id.
type Remote interface {
	FetchWeek(ctx context.Context, userID, weekNumber int) (*week.Record, error)
	FetchWeekIndex(ctx context.Context, userID int) ([]int, error)
	UpsertWeek(ctx context.Context, userID int, rec week.Record) (uuid.UUID, error)
}

// Options tunes a Tracker.
type Options struct {
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// InitialWeek is activated by New. Zero selects the week containing Now.
	InitialWeek int
	// Now defaults to time.Now.
	Now func() time.Time
	// OnSync is called after every sync status transition. It may read tracker
	// state but must not call Flush, GoToWeek, AddNextWeek or Close.
	OnSync func(weekNumber int, status Status, err error)
}

// Tracker holds the active week in memory, serves other weeks from a lazily
// filled cache, and saves edits to the remote store after a quiet period.
//
// Mutations apply locally and immediately; persistence trails them. Saves are
// serialized, and each save sends the state current when it starts, so an
// older snapshot never lands after a newer one.
type Tracker struct {
	remote   Remote
	userID   int
	program  week.Program
	log      *slog.Logger
	debounce time.Duration
	onSync   func(int, Status, error)

	// persistMu serializes UpsertWeek calls.
	persistMu sync.Mutex
	pending   sync.WaitGroup

	mu          sync.Mutex
	index       *week.Index
	indexLoaded bool
	cache    map[int]week.Record
	active   week.Record
	gen      uint64 // bumped on every mutation
	savedGen uint64 // highest gen handed to UpsertWeek
	status   Status
	syncErr  string
	timer    *time.Timer
	closed   bool
}

// New loads the week index and activates the initial week. An unreachable
// remote store is logged and leaves the index empty.
func New(ctx context.Context, remote Remote, userID int, program week.Program, log *slog.Logger, opts Options) *Tracker {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	t := &Tracker{
		remote:   remote,
		userID:   userID,
		program:  program,
		log:      log,
		debounce: opts.Debounce,
		onSync:   opts.OnSync,
		cache:    make(map[int]week.Record),
		status:   StatusIdle,
	}

	numbers, err := remote.FetchWeekIndex(ctx, userID)
	if err != nil {
		log.Warn("loading week index failed", "user", userID, "error", err)
	}
	t.index = week.NewIndex(numbers...)
	t.indexLoaded = err == nil

	n := opts.InitialWeek
	if n < 1 {
		n = week.WeekNumberForDate(opts.Now(), program.StartDate)
	}
	t.active = t.load(ctx, n)
	return t
}

// Program returns the program configuration the tracker indexes weeks by.
func (t *Tracker) Program() week.Program {
	return t.program
}

// ActiveWeek returns a copy of the week being edited.
func (t *Tracker) ActiveWeek() week.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active.Clone()
}

// SyncStatus returns the current status and, when the status is StatusError, its message.
func (t *Tracker) SyncStatus() (Status, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.syncErr
}

// KnownWeeks returns the week numbers with a persisted remote record.
func (t *Tracker) KnownWeeks() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index.Numbers()
}

// WeekForDate returns the week number containing date.
func (t *Tracker) WeekForDate(date time.Time) int {
	return week.WeekNumberForDate(date, t.program.StartDate)
}

// GetWeek returns week n without changing the active week. The active week and
// cached weeks come from memory, weeks absent from the index are synthesized
// without touching the network, and a failed fetch falls back to an empty week.
func (t *Tracker) GetWeek(ctx context.Context, n int) (week.Record, error) {
	if n < 1 {
		return week.Record{}, fmt.Errorf("week %d: %w", n, week.ErrIndexOutOfRange)
	}
	return t.load(ctx, n), nil
}

func (t *Tracker) load(ctx context.Context, n int) week.Record {
	t.mu.Lock()
	if t.active.WeekNumber == n {
		defer t.mu.Unlock()
		return t.active.Clone()
	}
	if rec, ok := t.cache[n]; ok {
		defer t.mu.Unlock()
		return rec.Clone()
	}
	known := t.index.Has(n)
	t.mu.Unlock()

	if !known {
		return week.Empty(n, t.program)
	}

	remote, err := t.remote.FetchWeek(ctx, t.userID, n)
	if err != nil {
		if errors.Is(err, week.ErrNotFound) {
			t.log.Warn("indexed week missing remotely", "week", n)
		} else {
			t.log.Error("fetching week failed, using empty week", "week", n, "error", err)
		}
		return week.Empty(n, t.program)
	}
	rec := week.Normalize(*remote, t.program)
	rec.WeekNumber = n

	t.mu.Lock()
	defer t.mu.Unlock()
	// The week may have been activated or cached while fetching; memory wins.
	if t.active.WeekNumber == n {
		return t.active.Clone()
	}
	if cached, ok := t.cache[n]; ok {
		return cached.Clone()
	}
	t.cache[n] = rec
	return rec.Clone()
}

// GoToWeek makes week n active. A pending save of the current week is flushed
// before switching.
func (t *Tracker) GoToWeek(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("week %d: %w", n, week.ErrIndexOutOfRange)
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	same := t.active.WeekNumber == n
	t.mu.Unlock()
	if same {
		return nil
	}

	_ = t.ensureIndex(ctx)
	rec := t.load(ctx, n)
	return t.switchTo(ctx, rec, false)
}

// ensureIndex retries loading the week index if the load in New failed.
func (t *Tracker) ensureIndex(ctx context.Context) error {
	t.mu.Lock()
	loaded := t.indexLoaded
	t.mu.Unlock()
	if loaded {
		return nil
	}

	numbers, err := t.remote.FetchWeekIndex(ctx, t.userID)
	if err != nil {
		t.log.Warn("reloading week index failed", "user", t.userID, "error", err)
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	t.mu.Lock()
	for _, n := range numbers {
		t.index.Add(n)
	}
	t.indexLoaded = true
	t.mu.Unlock()
	return nil
}

// AddNextWeek creates and activates the week after the highest known one. The
// new week keeps the current exercise list and day configuration but no logs,
// and is saved through the normal debounce. It fails with ErrIndexUnavailable
// while the week index cannot be loaded, so an existing remote week is never
// overwritten by a template.
func (t *Tracker) AddNextWeek(ctx context.Context) (int, error) {
	if err := t.ensureIndex(ctx); err != nil {
		return 0, err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	n := max(t.index.Max(), t.active.WeekNumber) + 1
	cached, ok := t.cache[n]
	carry := t.active.Clone()
	t.mu.Unlock()

	rec := cached
	if !ok {
		rec = week.Empty(n, t.program).WithExercises(carry.Exercises)
		for i := range rec.Days {
			if i < len(carry.Days) {
				rec.Days[i].Label = carry.Days[i].Label
				rec.Days[i].Type = carry.Days[i].Type
				rec.Days[i].Color = carry.Days[i].Color
			}
		}
	}
	if err := t.switchTo(ctx, rec, true); err != nil {
		return 0, err
	}
	return n, nil
}

// switchTo replaces the active week. The outgoing week is cached and saved
// synchronously if it has unsaved edits.
func (t *Tracker) switchTo(ctx context.Context, rec week.Record, dirty bool) error {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	snap, gen, hasPending := t.takePendingLocked()
	t.cache[t.active.WeekNumber] = t.active.Clone()
	t.active = rec.Clone()
	var notify func()
	if dirty {
		notify = t.markDirtyLocked()
	}
	t.mu.Unlock()
	t.emit(notify)

	if hasPending {
		t.log.Info("flushing pending save before switching week", "week", snap.WeekNumber)
		if err := t.persistLocked(ctx, snap, gen); err != nil {
			// The edits stay in the cache; the switch itself still succeeds.
			t.log.Warn("flush before switch failed", "week", snap.WeekNumber, "error", err)
		}
	}
	return nil
}

// UpdateGridData sets one log cell of the active week.
func (t *Tracker) UpdateGridData(weekNumber int, cellKey, value string) error {
	return t.mutate(weekNumber, func(r week.Record) (week.Record, error) {
		return r.WithGridValue(cellKey, value), nil
	})
}

// UpdateExercises replaces the exercise list of the active week.
func (t *Tracker) UpdateExercises(weekNumber int, names []string) error {
	return t.mutate(weekNumber, func(r week.Record) (week.Record, error) {
		return r.WithExercises(names), nil
	})
}

// UpdateDay changes one day's configuration in the active week.
func (t *Tracker) UpdateDay(weekNumber, index int, u week.DayUpdate) error {
	return t.mutate(weekNumber, func(r week.Record) (week.Record, error) {
		return r.WithDay(index, u)
	})
}

// ReorderExercises moves an exercise row and its logs.
func (t *Tracker) ReorderExercises(weekNumber, from, to int) error {
	return t.mutate(weekNumber, func(r week.Record) (week.Record, error) {
		return r.Reordered(from, to)
	})
}

// DeleteExercise removes an exercise row. Logs of later rows shift up.
func (t *Tracker) DeleteExercise(weekNumber, index int) error {
	return t.mutate(weekNumber, func(r week.Record) (week.Record, error) {
		return r.WithoutExercise(index)
	})
}

func (t *Tracker) mutate(weekNumber int, fn func(week.Record) (week.Record, error)) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if weekNumber != t.active.WeekNumber {
		active := t.active.WeekNumber
		t.mu.Unlock()
		return fmt.Errorf("week %d (active %d): %w", weekNumber, active, ErrNotActive)
	}
	next, err := fn(t.active)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.active = next
	notify := t.markDirtyLocked()
	t.mu.Unlock()
	t.emit(notify)
	return nil
}

// markDirtyLocked records a mutation of the active week and re-arms the debounce timer.
func (t *Tracker) markDirtyLocked() func() {
	t.gen++
	if t.timer != nil && t.timer.Stop() {
		t.pending.Done()
	}
	t.pending.Add(1)
	gen := t.gen
	t.timer = time.AfterFunc(t.debounce, func() { t.fire(gen) })
	return t.transitionLocked(t.active.WeekNumber, StatusSyncing, nil)
}

// takePendingLocked cancels the debounce timer and returns the active week if
// it has edits not yet handed to the remote store.
func (t *Tracker) takePendingLocked() (week.Record, uint64, bool) {
	if t.timer != nil && t.timer.Stop() {
		t.pending.Done()
	}
	t.timer = nil
	if t.gen == t.savedGen {
		return week.Record{}, 0, false
	}
	return t.active.Clone(), t.gen, true
}

// fire runs when the debounce timer armed at generation gen elapses. A newer
// mutation has armed its own timer, so a stale callback saves nothing.
func (t *Tracker) fire(gen uint64) {
	defer t.pending.Done()

	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.Lock()
	if t.gen != gen || t.gen == t.savedGen {
		t.mu.Unlock()
		return
	}
	snap := t.active.Clone()
	t.mu.Unlock()

	_ = t.persistLocked(context.Background(), snap, gen)
}

// Flush saves any pending edits of the active week now.
func (t *Tracker) Flush(ctx context.Context) error {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.Lock()
	snap, gen, ok := t.takePendingLocked()
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return t.persistLocked(ctx, snap, gen)
}

// Close flushes pending edits and stops the tracker. Later mutations fail with ErrClosed.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.timer != nil && t.timer.Stop() {
		t.pending.Done()
	}
	t.timer = nil
	t.mu.Unlock()

	t.pending.Wait()
	return t.Flush(ctx)
}

// persistLocked upserts snap, which carries every mutation up to gen. The
// caller holds persistMu. The in-memory week is never rolled back on failure.
func (t *Tracker) persistLocked(ctx context.Context, snap week.Record, gen uint64) error {
	t.mu.Lock()
	if gen > t.savedGen {
		t.savedGen = gen
	}
	t.mu.Unlock()

	id, err := t.remote.UpsertWeek(ctx, t.userID, snap)

	t.mu.Lock()
	newer := t.gen > gen
	var notify func()
	if err != nil {
		t.log.Error("saving week failed", "week", snap.WeekNumber, "error", err)
		if !newer {
			notify = t.transitionLocked(snap.WeekNumber, StatusError, err)
		}
		t.mu.Unlock()
		t.emit(notify)
		return fmt.Errorf("saving week %d: %w", snap.WeekNumber, err)
	}

	snap.ID = id
	t.index.Add(snap.WeekNumber)
	if t.active.WeekNumber == snap.WeekNumber {
		t.active.ID = id
	} else {
		t.cache[snap.WeekNumber] = snap
	}
	if !newer {
		notify = t.transitionLocked(snap.WeekNumber, StatusSynced, nil)
	}
	t.mu.Unlock()
	t.emit(notify)
	t.log.Debug("week saved", "week", snap.WeekNumber, "id", id)
	return nil
}

// transitionLocked applies a status change and returns the observer call to
// make once the lock is released.
func (t *Tracker) transitionLocked(weekNumber int, status Status, err error) func() {
	changed := t.status != status
	t.status = status
	t.syncErr = ""
	if err != nil {
		t.syncErr = err.Error()
	}
	if t.onSync == nil || (!changed && err == nil && status == StatusSyncing) {
		return nil
	}
	onSync := t.onSync
	return func() { onSync(weekNumber, status, err) }
}

func (t *Tracker) emit(notify func()) {
	if notify != nil {
		notify()
	}
}
