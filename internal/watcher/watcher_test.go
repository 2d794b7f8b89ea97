package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

func newTestWatcher(t *testing.T, cfg Config) *Watcher {
	t.Helper()
	w, err := New(cfg, classify.New(classify.Config{}), zap.NewNop())
	require.NoError(t, err)
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestProcessFileEmitsRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, "server listening on :3000\nTypeError: cannot read properties of undefined\n")

	w := newTestWatcher(t, Config{})
	w.processFile(path)

	select {
	case rec := <-w.Events():
		assert.Contains(t, rec.RawLine, "TypeError")
	default:
		t.Fatal("expected one record")
	}
	select {
	case rec := <-w.Events():
		t.Fatalf("unexpected extra record: %s", rec.RawLine)
	default:
	}
}

func TestCursorSkipsSeenLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, "Error: first failure\n")

	w := newTestWatcher(t, Config{})
	w.processFile(path)
	<-w.Events()

	// Re-processing an unchanged file yields nothing.
	w.processFile(path)
	select {
	case rec := <-w.Events():
		t.Fatalf("re-emitted already-seen line: %s", rec.RawLine)
	default:
	}

	// An appended line is picked up alone.
	writeFile(t, path, "Error: first failure\nError: second failure\n")
	w.processFile(path)
	rec := <-w.Events()
	assert.Contains(t, rec.RawLine, "second failure")
}

func TestRotationResetsCursor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, "Error: one\nError: two\nError: three\n")

	w := newTestWatcher(t, Config{})
	w.processFile(path)
	for i := 0; i < 3; i++ {
		<-w.Events()
	}

	// Rotation: the file is replaced with a shorter one.
	writeFile(t, path, "Error: fresh after rotation\n")
	w.processFile(path)
	rec := <-w.Events()
	assert.Contains(t, rec.RawLine, "fresh after rotation")
}

func TestTailWindowBoundsBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	var content string
	for i := 0; i < 150; i++ {
		content += fmt.Sprintf("Error: failure %d\n", i)
	}
	writeFile(t, path, content)

	w := newTestWatcher(t, Config{TailLines: 100, QueueSize: 512})
	w.processFile(path)

	count := 0
	for {
		select {
		case <-w.Events():
			count++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 100, count)
}

func TestEmitDropsOldestWhenFull(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, "Error: a\nError: b\nError: c\n")

	w := newTestWatcher(t, Config{QueueSize: 2})
	w.processFile(path)

	first := <-w.Events()
	second := <-w.Events()
	assert.Contains(t, first.RawLine, "Error: b")
	assert.Contains(t, second.RawLine, "Error: c")
	select {
	case <-w.Events():
		t.Fatal("queue should hold exactly two records")
	default:
	}
}

func TestFlushSnapshotsBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, "Error: one\nError: two\n")

	w := newTestWatcher(t, Config{})
	w.processFile(path)
	w.Flush()

	batch := <-w.Batches()
	assert.Len(t, batch.Records, 2)
	assert.False(t, batch.FlushedAt.IsZero())

	// Buffer is cleared; a second flush produces no batch.
	w.Flush()
	select {
	case <-w.Batches():
		t.Fatal("empty buffer must not flush")
	default:
	}

	assert.Equal(t, 0, w.Status().BufferSize)
}

func TestStartDetectsAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, "boot ok\n")

	w := newTestWatcher(t, Config{Globs: []string{filepath.Join(dir, "*.log")}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("Error: connection refused by upstream\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case rec := <-w.Events():
		assert.Contains(t, rec.RawLine, "connection refused")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for record")
	}
}

func TestStartTwiceFails(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Config{Globs: []string{filepath.Join(dir, "*.log")}})
	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	assert.ErrorIs(t, w.Start(ctx), ErrAlreadyStarted)
}

func TestStopWithoutStart(t *testing.T) {
	w := newTestWatcher(t, Config{})
	w.Stop()
	w.Stop()
}

func TestBadGlobDirIsSkipped(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Config{Globs: []string{
		filepath.Join(dir, "missing", "*.log"),
		filepath.Join(dir, "*.log"),
	}})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	st := w.Status()
	assert.Equal(t, []string{filepath.Join(dir, "*.log")}, st.WatchedGlobs)
}

func TestStatusUptime(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	now := base
	w, err := New(Config{}, classify.New(classify.Config{}), zap.NewNop(),
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	dir := t.TempDir()
	w.cfg.Globs = []string{filepath.Join(dir, "*.log")}
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	now = base.Add(90 * time.Second)
	assert.Equal(t, 90.0, w.Status().UptimeSec)
}
