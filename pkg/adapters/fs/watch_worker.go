package fs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/lims/pkg/core"
)

// Watch reports changes to documents whose path relative to the store root
// (e.g. "samples/S1.xml") matches the doublestar pattern. The channel is
// closed when ctx is done.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", pattern)
	}
	events := make(chan core.Event)
	w := newWatchWorker(r, pattern, events)
	w.closeEvents = true
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

type watchWorker struct {
	*worker.BaseWorker
	repo      *Repository
	pattern   string
	events    chan<- core.Event
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc

	// closeEvents is set when the worker owns the channel. Supervised
	// workers share one channel across restarts and leave it open.
	closeEvents bool
}

func newWatchWorker(repo *Repository, pattern string, events chan<- core.Event) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("fs-watcher"),
		repo:       repo,
		pattern:    pattern,
		events:     events,
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.repo.recursiveAdd(watcher, w.repo.Path); err != nil {
		_ = watcher.Close()
		return err
	}

	w.watcher = watcher
	w.debouncer = newDebouncer(50 * time.Millisecond)
	w.repo.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"pattern":           w.pattern,
		}
	})
}

func (w *watchWorker) logger() *slog.Logger { return w.repo.config.Logger }

// run is the main event loop. When the worker owns the events channel it is
// closed on exit, after every pending debounced event has been delivered or
// dropped.
func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			if w.logger().Enabled(ctx, slog.LevelDebug) {
				w.logger().Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			} else {
				w.logger().Error("watcher panic", "error", err)
			}
		}
	}()
	defer func() {
		if w.closeEvents {
			close(w.events)
		}
	}()
	defer w.repo.setWatcherActive(false)
	defer w.watcher.Close()

	err = w.loop(ctx)
	w.debouncer.stopAndWait(5 * time.Second)
	return err
}

func (w *watchWorker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.handle(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger().Error("fsnotify error", "error", wErr)
			if w.repo.config.ErrorHandler != nil {
				w.repo.config.ErrorHandler(wErr)
			}
		}
	}
}

// handle filters, maps and debounces one filesystem event.
func (w *watchWorker) handle(ctx context.Context, event fsnotify.Event) {
	rel, err := filepath.Rel(w.repo.Path, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") || w.repo.isSystemPath(rel) || isTempFile(rel) {
		return
	}
	rel = filepath.ToSlash(rel)

	// New collection directories are watched from now on.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.repo.recursiveAdd(w.watcher, event.Name); err != nil {
				w.logger().Debug("watch new directory failed", "path", rel, "error", err)
			}
			return
		}
	}

	if !strings.HasSuffix(rel, docExt) || strings.Count(rel, "/") != 1 {
		return
	}
	if ok, _ := doublestar.Match(w.pattern, rel); !ok {
		return
	}
	typ := mapEventType(event)
	if typ == "" {
		return
	}
	if typ == core.EventDelete {
		w.repo.cache.Delete(rel)
	}

	w.logger().Debug("document changed", "path", rel, "type", typ)
	w.repo.recordEvent()
	ev := core.Event{Type: typ, URI: w.repo.uriOf(rel), Timestamp: time.Now()}
	w.debouncer.add(ev, func(e core.Event) {
		// The channel may be closed under us if shutdown timed out.
		defer func() { _ = recover() }()
		select {
		case w.events <- e:
		case <-ctx.Done():
		}
	})
}

func mapEventType(event fsnotify.Event) core.EventType {
	switch {
	case event.Has(fsnotify.Create):
		return core.EventCreate
	case event.Has(fsnotify.Write):
		return core.EventModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return core.EventDelete
	}
	return ""
}

// recursiveAdd watches dir and every directory below it, skipping the
// system directory and .git.
func (r *Repository) recursiveAdd(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(r.Path, p); rel != "." && r.isSystemPath(rel) {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// debouncer coalesces bursts of events for the same URI. A create followed by
// writes is reported once as a create.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*pendingEvent
	wg      sync.WaitGroup
	stopped bool
}

type pendingEvent struct {
	event core.Event
	timer *time.Timer
	fire  func()
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, pending: make(map[string]*pendingEvent)}
}

func (d *debouncer) add(ev core.Event, emit func(core.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if p, ok := d.pending[ev.URI]; ok {
		if !(p.event.Type == core.EventCreate && ev.Type == core.EventModify) {
			p.event.Type = ev.Type
		}
		p.event.Timestamp = ev.Timestamp
		// A timer that already fired delivers the merged event itself.
		if p.timer.Stop() {
			p.timer = time.AfterFunc(d.delay, p.fire)
		}
		return
	}

	p := &pendingEvent{event: ev}
	p.fire = func() {
		defer d.wg.Done()
		d.mu.Lock()
		e := p.event
		if d.pending[ev.URI] == p {
			delete(d.pending, ev.URI)
		}
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			emit(e)
		}
	}
	d.wg.Add(1)
	p.timer = time.AfterFunc(d.delay, p.fire)
	d.pending[ev.URI] = p
}

// stopAndWait drops pending events and waits for in-flight emits.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	for uri, p := range d.pending {
		if p.timer.Stop() {
			d.wg.Done()
		}
		delete(d.pending, uri)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
