// Package watcher tails configured log globs and emits classified errors.
//
// Tailing is deliberately simple: on every change the file is re-read and
// only the trailing window (default 100 lines) is considered, with a
// per-file line cursor so already-seen lines are not re-emitted. Lines
// appended beyond the window between two changes are silently missed; this
// is a documented data-loss mode, acceptable at small-business log volume.
//
// Two signals are delivered: one event per record as it is found, and a
// periodic batch snapshot of the buffer. Consumers choose which to act on.
// The per-record channel is bounded; when a burst (a long stack trace)
// overruns it, the oldest queued record is dropped and logged.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

// ErrAlreadyStarted indicates Start was called twice.
var ErrAlreadyStarted = errors.New("watcher already started")

// Batch is a timed snapshot of buffered records.
type Batch struct {
	Records   []*classify.ErrorRecord
	FlushedAt time.Time
}

// Status is a read-only view of the watcher, for the health endpoint.
type Status struct {
	WatchedGlobs []string  `json:"watched_globs"`
	BufferSize   int       `json:"buffer_size"`
	RecordsSeen  int64     `json:"records_seen"`
	StartedAt    time.Time `json:"started_at"`
	UptimeSec    float64   `json:"uptime_sec"`
}

// Config holds watcher settings.
type Config struct {
	Globs         []string
	FlushInterval time.Duration
	TailLines     int
	QueueSize     int
}

// Watcher observes log files and pushes classified records downstream.
type Watcher struct {
	cfg        Config
	classifier *classify.Classifier
	logger     *zap.Logger
	nowFn      func() time.Time

	fsw     *fsnotify.Watcher
	events  chan *classify.ErrorRecord
	batches chan Batch

	mu          sync.Mutex
	buffer      []*classify.ErrorRecord
	cursors     map[string]int
	globs       []string
	recordsSeen int64
	startedAt   time.Time
	started     bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.nowFn = now }
}

// New creates a Watcher. The classifier is required.
func New(cfg Config, classifier *classify.Classifier, logger *zap.Logger, opts ...Option) (*Watcher, error) {
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.TailLines <= 0 {
		cfg.TailLines = 100
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	w := &Watcher{
		cfg:        cfg,
		classifier: classifier,
		logger:     logger,
		nowFn:      time.Now,
		events:     make(chan *classify.ErrorRecord, cfg.QueueSize),
		batches:    make(chan Batch, 8),
		cursors:    make(map[string]int),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Events delivers one record per detected error.
func (w *Watcher) Events() <-chan *classify.ErrorRecord { return w.events }

// Batches delivers periodic buffer snapshots.
func (w *Watcher) Batches() <-chan Batch { return w.batches }

// Start begins watching the configured globs. A glob that cannot be
// watched logs a warning and is skipped; the rest still start. Existing
// matches are processed once so a backlog present at startup is seen.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.startedAt = w.nowFn()
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	seen := make(map[string]bool)
	for _, glob := range w.cfg.Globs {
		if seen[glob] {
			continue
		}
		seen[glob] = true
		if err := w.watchGlob(glob); err != nil {
			w.logger.Warn("failed to watch glob, skipping",
				zap.String("glob", glob),
				zap.Error(err),
			)
			continue
		}
		w.mu.Lock()
		w.globs = append(w.globs, glob)
		w.mu.Unlock()
		w.logger.Info("watching", zap.String("glob", glob))
	}

	go w.run(ctx)
	return nil
}

// watchGlob registers the glob's parent directory with fsnotify and
// processes any files that already match.
func (w *Watcher) watchGlob(glob string) error {
	dir := filepath.Dir(glob)
	if err := w.fsw.Add(dir); err != nil {
		return err
	}

	matches, err := filepath.Glob(glob)
	if err != nil {
		return err
	}
	for _, path := range matches {
		w.processFile(path)
	}
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("closing fs watcher", zap.Error(err))
		}
		close(w.events)
		close(w.batches)
	}()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if w.matchesAnyGlob(ev.Name) {
				w.processFile(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fs watcher error", zap.Error(err))
		case <-ticker.C:
			w.Flush()
		}
	}
}

func (w *Watcher) matchesAnyGlob(path string) bool {
	w.mu.Lock()
	globs := w.globs
	w.mu.Unlock()

	for _, glob := range globs {
		if ok, err := filepath.Match(glob, path); err == nil && ok {
			return true
		}
		// Directory prefixes can differ between the configured glob and
		// the event path; fall back to matching the base name.
		if ok, err := filepath.Match(filepath.Base(glob), filepath.Base(path)); err == nil && ok {
			return true
		}
	}
	return false
}

// processFile re-reads path and classifies lines appended since the last
// read. A read failure is logged and skipped; it never stops the watcher.
func (w *Watcher) processFile(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read log file, skipping",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}

	lines := strings.Split(string(content), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	w.mu.Lock()
	cursor := w.cursors[path]
	if cursor > len(lines) {
		// File shrank: rotation or truncation. Start over.
		cursor = 0
	}
	newLines := lines[cursor:]
	if len(newLines) > w.cfg.TailLines {
		// Lossy tail: anything beyond the trailing window is missed.
		newLines = newLines[len(newLines)-w.cfg.TailLines:]
	}
	w.cursors[path] = len(lines)
	w.mu.Unlock()

	for _, line := range newLines {
		rec := w.classifier.Classify(line, path)
		if rec == nil {
			continue
		}
		w.mu.Lock()
		w.buffer = append(w.buffer, rec)
		w.recordsSeen++
		w.mu.Unlock()
		w.emit(rec)
	}
}

// emit pushes a record onto the bounded events channel, evicting the
// oldest queued record when full (drop-oldest backpressure).
func (w *Watcher) emit(rec *classify.ErrorRecord) {
	select {
	case w.events <- rec:
		return
	default:
	}

	select {
	case old := <-w.events:
		w.logger.Warn("event queue full, dropping oldest record",
			zap.String("dropped_id", old.ID),
		)
	default:
	}

	select {
	case w.events <- rec:
	default:
	}
}

// Flush snapshots the buffer into a Batch and clears it. A no-op when the
// buffer is empty. Exposed so tests can trigger it without waiting.
func (w *Watcher) Flush() {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return
	}
	snapshot := make([]*classify.ErrorRecord, len(w.buffer))
	copy(snapshot, w.buffer)
	w.buffer = w.buffer[:0]
	w.mu.Unlock()

	select {
	case w.batches <- Batch{Records: snapshot, FlushedAt: w.nowFn()}:
	default:
		w.logger.Warn("batch channel full, dropping batch",
			zap.Int("records", len(snapshot)),
		)
	}
}

// Stop closes all watches. Idempotent, and safe to call while records are
// in flight or when Start never ran.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })

	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
}

// Status returns a read-only snapshot; no side effects.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := Status{
		WatchedGlobs: append([]string(nil), w.globs...),
		BufferSize:   len(w.buffer),
		RecordsSeen:  w.recordsSeen,
		StartedAt:    w.startedAt,
	}
	if !w.startedAt.IsZero() {
		st.UptimeSec = w.nowFn().Sub(w.startedAt).Seconds()
	}
	return st
}
