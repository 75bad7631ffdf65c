package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often [Watcher.Watch] stats the file.
const DefaultWatchInterval = 5 * time.Second

// ChangeFunc receives a freshly loaded config together with the one it
// replaces and what differs between them.
type ChangeFunc func(old, new *Config, diff ConfigDiff)

// Watcher keeps the latest valid version of a config file. A reload that
// fails to parse or validate is logged and the previous version is kept.
type Watcher struct {
	path     string
	interval time.Duration
	getenv   func(string) string

	// reloadMu serializes reloads from the poll loop and [Watcher.Reload].
	reloadMu sync.Mutex

	mu      sync.RWMutex
	current *Config
	stamp   fileStamp
	sum     [sha256.Size]byte
}

// fileStamp is the cheap stat-level fingerprint checked before hashing.
type fileStamp struct {
	size  int64
	mtime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithEnv sets the environment lookup applied on every load. The default is
// [os.Getenv].
func WithEnv(getenv func(string) string) WatcherOption {
	return func(w *Watcher) {
		w.getenv = getenv
	}
}

// NewWatcher loads path and returns a Watcher holding it. Nothing is polled
// until [Watcher.Watch] runs.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		getenv:   os.Getenv,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, sum, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.stamp, w.sum = cfg, stamp, sum
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Watch polls the file until ctx is done, calling onChange after every
// successful reload whose content differs. It returns ctx.Err().
func (w *Watcher) Watch(ctx context.Context, onChange ChangeFunc) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if !w.touched() {
				continue
			}
			if _, err := w.reload(onChange); err != nil {
				slog.Warn("config reload failed, keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Reload reads the file now, regardless of its timestamp, and calls onChange
// when its content changed. It reports whether the config was replaced.
func (w *Watcher) Reload(onChange ChangeFunc) (bool, error) {
	return w.reload(onChange)
}

// touched reports whether the file's size or mtime moved since the last load.
func (w *Watcher) touched() bool {
	fi, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher cannot stat file", "path", w.path, "err", err)
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return fi.Size() != w.stamp.size || !fi.ModTime().Equal(w.stamp.mtime)
}

func (w *Watcher) reload(onChange ChangeFunc) (bool, error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	cfg, stamp, sum, err := w.read()
	w.mu.Lock()
	if stamp != (fileStamp{}) {
		// Remember the broken version too, so it is reported once.
		w.stamp = stamp
	}
	if err != nil {
		w.mu.Unlock()
		return false, err
	}
	if sum == w.sum {
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.sum = cfg, sum
	w.mu.Unlock()

	diff := Diff(old, cfg)
	slog.Info("config reloaded", "path", w.path,
		"log_level_changed", diff.LogLevelChanged,
		"cues_changed", diff.CuesChanged,
		"restart_required", diff.RestartRequired,
	)
	if onChange != nil {
		onChange(old, cfg, diff)
	}
	return true, nil
}

// read loads and validates the file and fingerprints its content. The stamp
// is set whenever the file could be stat'ed, even if loading failed.
func (w *Watcher) read() (cfg *Config, stamp fileStamp, sum [sha256.Size]byte, err error) {
	fi, err := os.Stat(w.path)
	if err != nil {
		return nil, stamp, sum, err
	}
	stamp = fileStamp{size: fi.Size(), mtime: fi.ModTime()}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, stamp, sum, err
	}
	if cfg, err = LoadFromReader(bytes.NewReader(data), w.getenv); err != nil {
		return nil, stamp, sum, err
	}
	return cfg, stamp, sha256.Sum256(data), nil
}
