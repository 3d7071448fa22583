package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"

	"github.com/aretw0/lims/pkg/core"
)

func newGitlessRepo(t *testing.T) *Repository {
	t.Helper()
	repo := NewRepository(Config{
		Path:     t.TempDir(),
		BaseURI:  "https://lims.test/api/v2",
		AutoInit: true,
		Gitless:  true,
	})
	if err := repo.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	return repo
}

func TestWatchReportsDocumentChanges(t *testing.T) {
	repo := newGitlessRepo(t)
	if err := os.MkdirAll(filepath.Join(repo.Path, "samples"), 0o755); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := repo.Watch(ctx, "samples/*.xml")
	if err != nil {
		t.Fatal(err)
	}
	waitForWatcher(t, repo, true)

	uri := repo.config.BaseURI + "/samples/S1"
	full := filepath.Join(repo.Path, "samples", "S1.xml")

	// Create and an immediate rewrite coalesce into one create.
	os.WriteFile(full, []byte("<sample/>"), 0o644)
	os.WriteFile(full, []byte("<sample><name>x</name></sample>"), 0o644)
	expectEvent(t, events, core.EventCreate, uri)

	// Files outside the pattern are ignored.
	os.MkdirAll(filepath.Join(repo.Path, "projects"), 0o755)
	os.WriteFile(filepath.Join(repo.Path, "projects", "P1.xml"), []byte("<project/>"), 0o644)

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(full, []byte("<sample><name>y</name></sample>"), 0o644)
	expectEvent(t, events, core.EventModify, uri)

	os.Remove(full)
	expectEvent(t, events, core.EventDelete, uri)

	if state := repo.State().(RepositoryState); state.LastEvent == nil {
		t.Error("last event time not recorded")
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				waitForWatcher(t, repo, false)
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed after cancel")
		}
	}
}

func TestWatchRejectsBadPattern(t *testing.T) {
	repo := newGitlessRepo(t)
	if _, err := repo.Watch(context.Background(), "samples/[.xml"); err == nil {
		t.Error("expected an invalid pattern error")
	}
}

func TestWatcherSupervisorRestarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := newGitlessRepo(t)
	events := make(chan core.Event)
	created := make(chan *watchWorker, 2)

	spec := supervisor.Spec{
		Name: "fs-watcher",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			w := newWatchWorker(repo, "**", events)
			created <- w
			return w, nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      1,
			ResetDuration:   50 * time.Millisecond,
			MaxRestarts:     2,
			MaxDuration:     200 * time.Millisecond,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}

	sup := supervisor.New("test-watcher", supervisor.StrategyOneForOne, spec)
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("failed to start supervisor: %v", err)
	}

	first := waitForWorker(t, created, "first")
	waitForWatcher(t, repo, true)

	waitForWatcherInit(t, first)
	_ = first.watcher.Close()

	second := waitForWorker(t, created, "second")
	if first == second {
		t.Fatalf("expected supervisor to restart watcher with a new instance")
	}
	waitForWatcher(t, repo, true)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := sup.Stop(stopCtx); err != nil {
		t.Fatalf("failed to stop supervisor: %v", err)
	}
}

func expectEvent(t *testing.T, events <-chan core.Event, typ core.EventType, uri string) {
	t.Helper()
	select {
	case e := <-events:
		if e.Type != typ || e.URI != uri {
			t.Fatalf("got %s, want %s %s", e, typ, uri)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s %s", typ, uri)
	}
}

func waitForWorker(t *testing.T, ch <-chan *watchWorker, label string) *watchWorker {
	t.Helper()

	select {
	case w := <-ch:
		return w
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s worker", label)
		return nil
	}
}

func waitForWatcherInit(t *testing.T, w *watchWorker) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		if w.watcher != nil {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for watcher initialization")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func waitForWatcher(t *testing.T, repo *Repository, expected bool) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		state, ok := repo.State().(RepositoryState)
		if ok && state.WatcherActive == expected {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for watcher state = %v", expected)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
