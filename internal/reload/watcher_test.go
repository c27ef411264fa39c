package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const pollInterval = 20 * time.Millisecond

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func startWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	w := NewWatcher(WatcherConfig{ConfigPath: path, PollInterval: pollInterval})
	w.Start(context.Background())
	t.Cleanup(w.Stop)
	// Let the first poll record the initial digest.
	time.Sleep(3 * pollInterval)
	return w
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "omnihear.yaml")
	writeFile(t, path, "version: \"1\"")
	w := startWatcher(t, path)

	writeFile(t, path, "version: \"1\"\nbot: {}")

	select {
	case evt := <-w.Events():
		if evt.ConfigPath != path || evt.At.IsZero() {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a change event")
	}
}

func TestWatcher_IgnoresTouch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "omnihear.yaml")
	writeFile(t, path, "same")
	w := startWatcher(t, path)

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, "same")

	select {
	case evt := <-w.Events():
		t.Fatalf("unexpected event %+v", evt)
	case <-time.After(10 * pollInterval):
	}
}

func TestWatcher_FileTemporarilyMissing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "omnihear.yaml")
	writeFile(t, path, "a")
	w := startWatcher(t, path)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * pollInterval)
	writeFile(t, path, "a")

	select {
	case evt := <-w.Events():
		t.Fatalf("restoring identical content emitted %+v", evt)
	case <-time.After(10 * pollInterval):
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	w := NewWatcher(WatcherConfig{ConfigPath: "/nonexistent/omnihear.yaml"})
	w.Stop() // before Start

	w.Start(context.Background())
	w.Start(context.Background())

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestWatcher_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatcher(WatcherConfig{ConfigPath: "/nonexistent/omnihear.yaml", PollInterval: pollInterval})
	w.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not exit after cancellation")
	}
}
