package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/claude/weekgrid/internal/models"
	"github.com/claude/weekgrid/internal/settings"
	"github.com/claude/weekgrid/internal/tracker"
	"github.com/claude/weekgrid/internal/week"
	"github.com/google/uuid"
)

const helpText = `commands:
  show                          print the active week
  goto N                        open week N
  date YYYY-MM-DD               open the week containing a date
  next                          add a week after the latest one
  weeks                         list saved weeks
  set ROW DAY VALUE...          log a cell (DAY is Mon..Sun)
  clear ROW DAY                 remove a log
  exercises A,B,C               replace the exercise list
  add NAME                      append an exercise
  rename ROW NAME               rename an exercise, keeping its logs and detail
  del ROW                       delete an exercise and its logs
  move FROM TO                  move an exercise row
  day INDEX type|label|color V  configure a day column (INDEX 0..6)
  detail NAME k=v...            set exercise detail (muscles=a,b types=a,b sets=N reps=R color=#hex)
  undetail NAME                 remove an exercise detail
  muscles [A,B,C]               print or replace the muscle groups
  types [A,B,C]                 print or replace the workout types
  color TYPE #hex               set the color of a workout type
  measure METRIC VALUE [UNIT]   record a body measurement for today
  measurements [METRIC]         list measurements of the last 90 days
  status                        print sync status
  quit                          save and exit`

var errUsage = errors.New("usage")

// measurementStore records and lists body measurements.
type measurementStore interface {
	UpsertMeasurement(ctx context.Context, userID int, m models.Measurement) (uuid.UUID, error)
	QueryMeasurements(ctx context.Context, userID int, metric string, start, end time.Time) ([]models.Measurement, error)
}

// repl drives a Tracker from line commands, one per line.
type repl struct {
	tr       *tracker.Tracker
	settings *settings.Store
	measures measurementStore
	out      io.Writer
	prompt   bool
}

// run reads commands until quit, end of input or ctx is done. Input is read in
// its own goroutine so a cancelled ctx ends the loop while a read blocks.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		scanErr <- sc.Err()
	}()

	r.show()
	for {
		if r.prompt {
			fmt.Fprint(r.out, "> ")
		}
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return <-scanErr
			}
			line = l
		}
		quit, err := r.exec(ctx, line)
		if err != nil {
			if errors.Is(err, errUsage) {
				fmt.Fprintln(r.out, err)
			} else {
				fmt.Fprintln(r.out, "error:", err)
			}
		}
		if quit {
			return nil
		}
	}
}

// exec runs one command line.
func (r *repl) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	active := r.tr.ActiveWeek()

	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		fmt.Fprintln(r.out, helpText)
	case "show":
		r.show()
	case "status":
		status, msg := r.tr.SyncStatus()
		if msg != "" {
			fmt.Fprintf(r.out, "week %d: %s (%s)\n", active.WeekNumber, status, msg)
		} else {
			fmt.Fprintf(r.out, "week %d: %s\n", active.WeekNumber, status)
		}
	case "weeks":
		fmt.Fprintln(r.out, r.tr.KnownWeeks())
	case "goto":
		n, err := intArg(args, 0, "goto N")
		if err != nil {
			return false, err
		}
		if err := r.tr.GoToWeek(ctx, n); err != nil {
			return false, err
		}
		r.show()
	case "date":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: date YYYY-MM-DD", errUsage)
		}
		d, err := week.ParseDate(args[0])
		if err != nil {
			return false, fmt.Errorf("%w: date YYYY-MM-DD", errUsage)
		}
		if err := r.tr.GoToWeek(ctx, r.tr.WeekForDate(d)); err != nil {
			return false, err
		}
		r.show()
	case "next":
		n, err := r.tr.AddNextWeek(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "added week %d\n", n)
		r.show()
	case "set", "clear":
		return false, r.setCell(cmd, args, active)
	case "exercises":
		return false, r.tr.UpdateExercises(active.WeekNumber, splitList(strings.Join(args, " ")))
	case "add":
		if len(args) == 0 {
			return false, fmt.Errorf("%w: add NAME", errUsage)
		}
		names := append(active.Exercises, strings.Join(args, " "))
		return false, r.tr.UpdateExercises(active.WeekNumber, names)
	case "rename":
		return false, r.rename(ctx, args, active)
	case "del":
		row, err := intArg(args, 0, "del ROW")
		if err != nil {
			return false, err
		}
		return false, r.tr.DeleteExercise(active.WeekNumber, row)
	case "move":
		from, err := intArg(args, 0, "move FROM TO")
		if err != nil {
			return false, err
		}
		to, err := intArg(args, 1, "move FROM TO")
		if err != nil {
			return false, err
		}
		return false, r.tr.ReorderExercises(active.WeekNumber, from, to)
	case "day":
		return false, r.setDay(args, active)
	case "detail":
		return false, r.setDetail(ctx, args)
	case "undetail":
		if len(args) == 0 {
			return false, fmt.Errorf("%w: undetail NAME", errUsage)
		}
		return false, r.settings.RemoveExerciseDetail(ctx, strings.Join(args, " "))
	case "muscles":
		if len(args) == 0 {
			fmt.Fprintln(r.out, strings.Join(r.settings.Current().MuscleGroups, ", "))
			return false, nil
		}
		return false, r.settings.SetMuscleGroups(ctx, splitList(strings.Join(args, " ")))
	case "types":
		if len(args) == 0 {
			r.showTypes()
			return false, nil
		}
		return false, r.settings.SetWorkoutTypes(ctx, splitList(strings.Join(args, " ")))
	case "color":
		if len(args) < 2 {
			return false, fmt.Errorf("%w: color TYPE #hex", errUsage)
		}
		last := len(args) - 1
		return false, r.settings.SetWorkoutColor(ctx, strings.Join(args[:last], " "), args[last])
	case "measure":
		return false, r.measure(ctx, args)
	case "measurements":
		return false, r.listMeasurements(ctx, args)
	default:
		return false, fmt.Errorf("%w: unknown command %q, try help", errUsage, cmd)
	}
	return false, nil
}

func intArg(args []string, i int, usage string) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: %s", errUsage, usage)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %s", errUsage, usage)
	}
	return n, nil
}

func parseDay(s string) (week.DayID, bool) {
	for _, id := range week.DayIDs {
		if strings.EqualFold(string(id), s) {
			return id, true
		}
	}
	return "", false
}

func (r *repl) setCell(cmd string, args []string, active week.Record) error {
	usage := "set ROW DAY VALUE..."
	if cmd == "clear" {
		usage = "clear ROW DAY"
	}
	row, err := intArg(args, 0, usage)
	if err != nil {
		return err
	}
	if len(args) < 2 || (cmd == "set" && len(args) < 3) {
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	day, ok := parseDay(args[1])
	if !ok {
		return fmt.Errorf("%w: DAY must be one of %v", errUsage, week.DayIDs)
	}
	if row < 0 || row >= len(active.Exercises) {
		return fmt.Errorf("row %d: %w", row, week.ErrIndexOutOfRange)
	}

	value := ""
	if cmd == "set" {
		value = strings.Join(args[2:], " ")
	}
	return r.tr.UpdateGridData(active.WeekNumber, week.CellKey(row, day), value)
}

// rename replaces the name of one row. The logs stay on the row and the
// account detail moves to the new name.
func (r *repl) rename(ctx context.Context, args []string, active week.Record) error {
	const usage = "rename ROW NAME"
	row, err := intArg(args, 0, usage)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	if row < 0 || row >= len(active.Exercises) {
		return fmt.Errorf("row %d: %w", row, week.ErrIndexOutOfRange)
	}
	from, to := active.Exercises[row], strings.Join(args[1:], " ")

	names := slices.Clone(active.Exercises)
	names[row] = to
	if err := r.tr.UpdateExercises(active.WeekNumber, names); err != nil {
		return err
	}
	return r.settings.RenameExercise(ctx, from, to)
}

func (r *repl) setDay(args []string, active week.Record) error {
	const usage = "day INDEX type|label|color VALUE"
	idx, err := intArg(args, 0, usage)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	value := strings.Join(args[2:], " ")

	var u week.DayUpdate
	switch strings.ToLower(args[1]) {
	case "type":
		u.Type = &value
		// A workout type brings its account color along.
		if c, ok := r.settings.ColorFor(value); ok {
			u.Color = &c
		}
	case "label":
		u.Label = &value
	case "color":
		u.Color = &value
	default:
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	return r.tr.UpdateDay(active.WeekNumber, idx, u)
}

func (r *repl) setDetail(ctx context.Context, args []string) error {
	const usage = "detail NAME muscles=a,b types=a,b sets=N reps=R color=#hex"
	var nameParts []string
	i := 0
	for ; i < len(args) && !strings.Contains(args[i], "="); i++ {
		nameParts = append(nameParts, args[i])
	}
	if len(nameParts) == 0 {
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	name := strings.Join(nameParts, " ")

	d, _ := r.settings.Detail(name)
	for _, kv := range args[i:] {
		k, v, _ := strings.Cut(kv, "=")
		switch strings.ToLower(k) {
		case "muscles":
			d.Muscles = splitList(v)
		case "types":
			d.WorkoutTypes = splitList(v)
		case "sets":
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: sets must be a number", errUsage)
			}
			d.Sets = n
		case "reps":
			d.Reps = v
		case "color":
			d.Color = v
		default:
			return fmt.Errorf("%w: %s", errUsage, usage)
		}
	}
	return r.settings.SetExerciseDetail(ctx, name, d)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *repl) showTypes() {
	cur := r.settings.Current()
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, t := range cur.WorkoutTypes {
		fmt.Fprintf(tw, "%s\t%s\n", t, cur.WorkoutColors[t])
	}
	tw.Flush()
}

func (r *repl) measure(ctx context.Context, args []string) error {
	const usage = "measure METRIC VALUE [UNIT]"
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	m := models.Measurement{Date: time.Now(), Metric: args[0], Value: v}
	if len(args) == 3 {
		m.Unit = args[2]
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if _, err := r.measures.UpsertMeasurement(ctx, localUserID, m); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "recorded %s %g%s on %s\n", m.Metric, m.Value, m.Unit, m.Date.Format(week.DateLayout))
	return nil
}

func (r *repl) listMeasurements(ctx context.Context, args []string) error {
	var metric string
	if len(args) > 0 {
		metric = strings.ToLower(args[0])
	}
	y, mo, d := time.Now().Date()
	end := time.Date(y, mo, d+1, 0, 0, 0, 0, time.UTC)
	ms, err := r.measures.QueryMeasurements(ctx, localUserID, metric, end.AddDate(0, 0, -90), end)
	if err != nil {
		return err
	}
	if len(ms) == 0 {
		fmt.Fprintln(r.out, "no measurements")
		return nil
	}
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, m := range ms {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%s\n", m.Date.Format(week.DateLayout), m.Metric, m.Value, m.Unit)
	}
	tw.Flush()
	return nil
}

// show prints the active week as a table.
func (r *repl) show() {
	w := r.tr.ActiveWeek()
	status, _ := r.tr.SyncStatus()
	fmt.Fprintf(r.out, "Week %d  (starts %s)  [%s]\n", w.WeekNumber, w.StartDate.Format(week.DateLayout), status)

	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	header := []string{"#", "exercise"}
	types := []string{"", ""}
	for _, d := range w.Days {
		header = append(header, string(d.ID))
		types = append(types, d.Type)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	if slices.ContainsFunc(types, func(s string) bool { return s != "" }) {
		fmt.Fprintln(tw, strings.Join(types, "\t"))
	}
	for row, name := range w.Exercises {
		label := name
		if d, ok := r.settings.Detail(name); ok && len(d.Muscles) > 0 {
			label += " (" + strings.Join(d.Muscles, ", ") + ")"
		}
		cells := []string{strconv.Itoa(row), label}
		for _, d := range w.Days {
			v := w.GridData[week.CellKey(row, d.ID)]
			if v == "" {
				v = "."
			}
			cells = append(cells, v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}
