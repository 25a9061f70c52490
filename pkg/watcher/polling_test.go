package watcher_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mwantia/ember/pkg/watcher"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestPollingDetectsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.js")
	writeFile(t, path, "x = 1")

	p := watcher.NewPolling(50*time.Millisecond, zerolog.Nop())
	defer p.Close()

	fired := make(chan string, 8)
	if err := p.WatchFile(path, func(p string) { fired <- p }); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Some filesystems have coarse mtime granularity; force it forward.
	writeFile(t, path, "x = 2")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case got := <-fired:
		if got != path {
			t.Errorf("callback path = %q, want %q", got, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no callback within 2s of the change")
	}
}

func TestPollingDetectsDeletion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.js")
	writeFile(t, path, "x = 1")

	p := watcher.NewPolling(50*time.Millisecond, zerolog.Nop())
	defer p.Close()

	fired := make(chan string, 8)
	p.WatchFile(path, func(p string) { fired <- p })
	p.Start()

	os.Remove(path)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("no callback after deletion")
	}
}

func TestPollingStopLiveness(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.js")
	writeFile(t, path, "x = 1")

	p := watcher.NewPolling(5*time.Second, zerolog.Nop())

	var count atomic.Int64
	p.WatchFile(path, func(string) { count.Add(1) })
	p.Start()

	// Stop must return promptly despite the long interval.
	start := time.Now()
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %v, want well under 1s", elapsed)
	}

	// No callbacks may be delivered after Stop returns.
	after := count.Load()
	writeFile(t, path, "x = 2")
	time.Sleep(150 * time.Millisecond)
	if got := count.Load(); got != after {
		t.Errorf("callbacks after Stop: %d", got-after)
	}
}

func TestPollingStartStopIdempotent(t *testing.T) {
	p := watcher.NewPolling(50*time.Millisecond, zerolog.Nop())

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestPollingUnwatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.js")
	writeFile(t, path, "x = 1")

	p := watcher.NewPolling(50*time.Millisecond, zerolog.Nop())
	defer p.Close()

	p.WatchFile(path, func(string) {})
	if err := p.UnwatchFile(path); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	if err := p.UnwatchFile(path); err == nil {
		t.Error("expected error unwatching twice")
	}
}

func TestPollingRejectsNilCallback(t *testing.T) {
	p := watcher.NewPolling(50*time.Millisecond, zerolog.Nop())
	if err := p.WatchFile("x", nil); err == nil {
		t.Error("expected error for nil callback")
	}
}
