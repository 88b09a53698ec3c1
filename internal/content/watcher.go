package content

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/onterra/onterra-web/internal/cms"
	"github.com/onterra/onterra-web/internal/log"
)

// DefaultDebounce coalesces bursts of fs events (editor saves, git checkouts)
// into one reload.
const DefaultDebounce = 250 * time.Millisecond

type ChangeOp string

const (
	OpAdded    ChangeOp = "added"
	OpModified ChangeOp = "modified"
	OpRemoved  ChangeOp = "removed"
)

// Change describes one document that differs between two snapshots.
type Change struct {
	Type cms.ContentType
	ID   string
	Slug string
	Op   ChangeOp
}

// Diff lists the documents added, removed or modified between prev and next,
// ordered by type then id. A nil prev yields no changes.
func Diff(prev, next *Snapshot) []Change {
	if prev == nil || next == nil {
		return nil
	}
	index := func(s *Snapshot) map[string]StoredDoc {
		m := make(map[string]StoredDoc, s.Len())
		for _, docs := range s.Docs {
			for _, d := range docs {
				m[d.ID] = d
			}
		}
		return m
	}
	before, after := index(prev), index(next)

	var out []Change
	for id, d := range after {
		old, ok := before[id]
		switch {
		case !ok:
			out = append(out, Change{Type: d.Type, ID: id, Slug: d.Slug, Op: OpAdded})
		case old.Sum != d.Sum:
			out = append(out, Change{Type: d.Type, ID: id, Slug: d.Slug, Op: OpModified})
			if old.Slug != d.Slug && old.Slug != "" {
				// the page at the old slug is gone
				out = append(out, Change{Type: old.Type, ID: id, Slug: old.Slug, Op: OpRemoved})
			}
		}
	}
	for id, d := range before {
		if _, ok := after[id]; !ok {
			out = append(out, Change{Type: d.Type, ID: id, Slug: d.Slug, Op: OpRemoved})
		}
	}
	slices.SortFunc(out, func(a, b Change) int {
		return cmp.Or(
			strings.Compare(string(a.Type), string(b.Type)),
			strings.Compare(a.ID, b.ID),
			strings.Compare(string(a.Op), string(b.Op)),
		)
	})
	return out
}

// WatcherMetrics is implemented by the metrics package to observe watcher behavior.
type WatcherMetrics interface {
	IncWatcherReloads()
	IncWatcherError(errType string)
	ObserveReloadDuration(seconds float64)
	IncContentChange(contentType string)
}

// WatcherOptions configures the fs store watcher.
type WatcherOptions struct {
	Logger log.Logger
	Store  *Store
	// Dir is the on-disk root the Store's fs.FS was opened from.
	Dir      string
	Debounce time.Duration

	// OnChange is called after a successful reload that changed at least one
	// document. Called synchronously on the watch goroutine.
	OnChange func(ctx context.Context, changes []Change)

	Metrics WatcherMetrics
}

// Watcher reloads the Store when files under Dir change and reports which
// documents changed.
type Watcher struct {
	store    *Store
	dir      string
	logger   log.Logger
	debounce time.Duration
	onChange func(ctx context.Context, changes []Change)
	metrics  WatcherMetrics

	reloadCount int64
	changeCount int64
}

// NewWatcher creates a store watcher. Call Run to start watching.
func NewWatcher(opts WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{
		store:    opts.Store,
		dir:      opts.Dir,
		logger:   opts.Logger,
		debounce: opts.Debounce,
		onChange: opts.OnChange,
		metrics:  opts.Metrics,
	}
}

// Run watches Dir until ctx is cancelled.
// Intended to be launched as: go watcher.Run(ctx)
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("content watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.dir); err != nil {
		return fmt.Errorf("content watcher: %w", err)
	}

	w.logger.Info(ctx, "content watcher starting", "dir", w.dir, "debounce", w.debounce.String())

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "content watcher stopping",
				"reason", ctx.Err(),
				"reloads", w.reloadCount,
				"changes", w.changeCount,
			)
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.logger.Warn(ctx, "content watcher: cannot watch new directory", "dir", ev.Name, "err", err)
					}
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(ctx, err, "content watcher: fsnotify error")
			if w.metrics != nil {
				w.metrics.IncWatcherError("fsnotify")
			}
		case <-timer.C:
			w.reloadOnce(ctx)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

// reloadOnce performs a single reload-diff-notify cycle and returns the
// changes it reported.
func (w *Watcher) reloadOnce(ctx context.Context) []Change {
	w.reloadCount++
	if w.metrics != nil {
		w.metrics.IncWatcherReloads()
	}

	start := time.Now()
	prev, next, err := w.store.Reload()
	if w.metrics != nil {
		w.metrics.ObserveReloadDuration(time.Since(start).Seconds())
	}
	if err != nil {
		w.logger.Error(ctx, err, "content watcher: reload failed, keeping current content")
		if w.metrics != nil {
			w.metrics.IncWatcherError("load")
		}
		return nil
	}

	changes := Diff(prev, next)
	if len(changes) == 0 {
		return nil
	}
	w.changeCount += int64(len(changes))
	w.logger.Info(ctx, "content watcher: documents changed",
		"changes", len(changes),
		"documents", next.Len(),
	)
	if w.metrics != nil {
		for _, c := range changes {
			w.metrics.IncContentChange(string(c.Type))
		}
	}

	if w.onChange != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(ctx, fmt.Errorf("OnChange panic: %v", r),
						"content watcher: OnChange callback panicked, continuing",
					)
				}
			}()
			w.onChange(ctx, changes)
		}()
	}
	return changes
}
