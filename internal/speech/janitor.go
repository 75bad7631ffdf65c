package speech

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/MrWong99/soundboard/internal/observe"
)

// Default janitor settings.
const (
	DefaultJanitorSchedule = "@every 1m"
	DefaultSlotMaxAge      = 10 * time.Minute
)

// Janitor periodically removes slot files that outlived their request, for
// example after a crash between synthesis and cleanup. Files not created by a
// slot are never touched.
type Janitor struct {
	dir     string
	maxAge  time.Duration
	now     func() time.Time
	metrics *observe.Metrics

	scheduler *cronlib.Cron
	entry     cronlib.EntryID
}

// NewJanitor returns a Janitor for dir. A non-positive maxAge selects
// [DefaultSlotMaxAge]; a nil m selects [observe.DefaultMetrics].
func NewJanitor(dir string, maxAge time.Duration, m *observe.Metrics) *Janitor {
	if maxAge <= 0 {
		maxAge = DefaultSlotMaxAge
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Janitor{
		dir:       dir,
		maxAge:    maxAge,
		now:       time.Now,
		metrics:   m,
		scheduler: cronlib.New(),
	}
}

// Sweep removes every slot file in the speech directory whose modification
// time is older than the max age. It returns how many files were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(j.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("speech: janitor: read %s: %w", j.dir, err)
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if e.IsDir() || !isSlotFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.metrics.SlotsSwept.Add(ctx, int64(removed))
	}
	return removed, errors.Join(errs...)
}

// Start schedules Sweep with a cron schedule such as "@every 1m" or "*/5 * * * *"
// and starts the scheduler.
func (j *Janitor) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	id, err := j.scheduler.AddFunc(schedule, func() {
		n, err := j.Sweep(context.Background())
		if err != nil {
			slog.Warn("speech janitor sweep failed", "dir", j.dir, "err", err)
		}
		if n > 0 {
			slog.Info("speech janitor removed stale slots", "dir", j.dir, "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("speech: janitor: invalid schedule %q: %w", schedule, err)
	}
	j.entry = id
	j.scheduler.Start()
	return nil
}

// Next returns when the next sweep is due, or the zero time when the janitor
// is not started.
func (j *Janitor) Next() time.Time {
	if j.entry == 0 {
		return time.Time{}
	}
	return j.scheduler.Entry(j.entry).Next
}

// Stop halts the scheduler and waits for a running sweep to finish or ctx to
// be done.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.scheduler.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
