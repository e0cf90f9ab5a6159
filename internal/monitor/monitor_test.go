package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/nvandessel/selfcorrect/internal/correction"
	"github.com/nvandessel/selfcorrect/internal/store"
)

type countingSweeper struct {
	mu      sync.Mutex
	reloads int
	sweeps  int
	err     error
}

func (c *countingSweeper) Reload(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reloads++
	return nil
}

func (c *countingSweeper) Sweep(context.Context, time.Time) (correction.SweepReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweeps++
	return correction.SweepReport{}, c.err
}

func (c *countingSweeper) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloads, c.sweeps
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	fake := &countingSweeper{}
	m := New(fake, fake, Config{Interval: 5 * time.Millisecond}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitFor(t, func() bool { return m.Cycles() >= 3 })
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v, want nil after cancel", err)
	}
	reloads, sweeps := fake.counts()
	if reloads != sweeps || sweeps < 3 {
		t.Errorf("reloads = %d, sweeps = %d, want equal and >= 3", reloads, sweeps)
	}
}

func TestCycle_SweepErrorKeepsRunning(t *testing.T) {
	fake := &countingSweeper{err: errors.New("disk full")}
	m := New(fake, fake, Config{}, zaptest.NewLogger(t))

	m.Cycle(context.Background())
	m.Cycle(context.Background())

	if m.Cycles() != 2 {
		t.Errorf("Cycles() = %d, want 2", m.Cycles())
	}
}

func TestRun_WatcherTriggersCycle(t *testing.T) {
	dir := t.TempDir()
	fake := &countingSweeper{}
	m := New(fake, fake, Config{
		Interval: time.Hour,
		WatchDir: dir,
		Debounce: 10 * time.Millisecond,
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// The watcher is registered asynchronously; keep rewriting until it fires.
	path := filepath.Join(dir, store.ErrorsFile)
	waitFor(t, func() bool {
		if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
		return m.Cycles() > 0
	})
}

func TestRun_MissingWatchDir(t *testing.T) {
	fake := &countingSweeper{}
	m := New(fake, fake, Config{WatchDir: filepath.Join(t.TempDir(), "absent")}, zaptest.NewLogger(t))
	if err := m.Run(context.Background()); err == nil {
		t.Error("expected error for a missing watch directory")
	}
}

func TestIsStoreEvent(t *testing.T) {
	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "/d/errors.json", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "/d/patterns.json", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "/d/corrections.log", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "/d/.errors.json.tmp123", Op: fsnotify.Create}, false},
		{fsnotify.Event{Name: "/d/errors.json", Op: fsnotify.Chmod}, false},
	}
	for _, tt := range tests {
		if got := isStoreEvent(tt.event); got != tt.want {
			t.Errorf("isStoreEvent(%v) = %v, want %v", tt.event, got, tt.want)
		}
	}
}
