package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// Destination folders under the inbox, relative to its base directory
const (
	DefaultProcessedDir = "processed"
	DefaultFailedDir    = "failed"
)

// FileRunner runs the pipeline for one document
type FileRunner interface {
	RunFile(ctx context.Context, path string) *entity.PipelineResult
}

// InboxConfig holds configuration for the inbox worker
type InboxConfig struct {
	PollInterval time.Duration
	WatchDir     string // when set, new files there trigger a poll before the next tick
	ProcessedDir string
	FailedDir    string
	Extensions   []string
}

// DefaultInboxConfig polls every ten seconds
func DefaultInboxConfig() InboxConfig {
	return InboxConfig{
		PollInterval: 10 * time.Second,
		ProcessedDir: DefaultProcessedDir,
		FailedDir:    DefaultFailedDir,
	}
}

// InboxStats counts documents handled since the worker was created
type InboxStats struct {
	Processed int
	Failed    int
	LastPoll  time.Time
	LastError string
}

// InboxWorker watches a document store and runs the pipeline on every new file.
// Files leave the inbox after their run: to the processed folder, or to the
// failed folder when the run ended in an internal error.
type InboxWorker struct {
	cfg    InboxConfig
	store  port.DocumentStore
	runner FileRunner
	logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stats   InboxStats
	running bool
}

// NewInboxWorker creates an inbox worker
func NewInboxWorker(cfg InboxConfig, store port.DocumentStore, runner FileRunner, logger *zap.Logger) *InboxWorker {
	def := DefaultInboxConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = def.ProcessedDir
	}
	if cfg.FailedDir == "" {
		cfg.FailedDir = def.FailedDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboxWorker{cfg: cfg, store: store, runner: runner, logger: logger}
}

// Name returns the worker name
func (w *InboxWorker) Name() string {
	return "InboxWorker"
}

// Start launches the polling loop. The first poll happens immediately.
func (w *InboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("inbox worker already running")
	}

	var watcher *fsnotify.Watcher
	if w.cfg.WatchDir != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create inbox watcher: %w", err)
		}
		if err := watcher.Add(w.cfg.WatchDir); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch inbox %s: %w", w.cfg.WatchDir, err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	w.logger.Info("InboxWorker started",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.String("watch_dir", w.cfg.WatchDir))
	go w.pollLoop(loopCtx, watcher, w.done)
	return nil
}

// Stop cancels the loop and waits for the in-flight poll to finish
func (w *InboxWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("InboxWorker stopped",
		zap.Int("processed_count", stats.Processed),
		zap.Int("failed_count", stats.Failed))
	return nil
}

// Stats returns a copy of the worker counters
func (w *InboxWorker) Stats() InboxStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *InboxWorker) pollLoop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if watcher != nil {
		defer watcher.Close()
		events, watchErrs = watcher.Events, watcher.Errors
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.PollOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("Inbox poll failed", zap.Error(err))
		}
		if !w.wait(ctx, ticker.C, &events, &watchErrs) {
			return
		}
	}
}

// wait blocks until the next tick or a new inbox file. It returns false once ctx is done.
func (w *InboxWorker) wait(ctx context.Context, tick <-chan time.Time, events *<-chan fsnotify.Event, errs *<-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-tick:
			return true
		case ev, ok := <-*events:
			if !ok {
				*events = nil
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				return true
			}
		case err, ok := <-*errs:
			if !ok {
				*errs = nil
				continue
			}
			w.logger.Warn("Inbox watcher error", zap.Error(err))
		}
	}
}

// PollOnce runs the pipeline on every file currently in the inbox and
// returns how many were handled.
func (w *InboxWorker) PollOnce(ctx context.Context) (int, error) {
	names, err := w.store.List(w.cfg.Extensions...)
	if err != nil {
		w.recordError(err)
		return 0, err
	}

	handled := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		if err := w.handle(ctx, name); err != nil {
			w.recordError(err)
			w.logger.Error("Failed to handle inbox file",
				zap.String("file", name),
				zap.Error(err))
			continue
		}
		handled++
	}

	w.mu.Lock()
	w.stats.LastPoll = time.Now()
	w.mu.Unlock()
	return handled, ctx.Err()
}

func (w *InboxWorker) handle(ctx context.Context, name string) error {
	path, err := w.store.Resolve(name)
	if err != nil {
		return err
	}

	result := w.runner.RunFile(ctx, path)

	dest := w.cfg.ProcessedDir
	failed := result == nil || result.Failed()
	if failed {
		dest = w.cfg.FailedDir
	}
	moved, err := w.store.Move(ctx, name, dest)
	if err != nil {
		return fmt.Errorf("run finished but file could not be moved: %w", err)
	}

	w.mu.Lock()
	if failed {
		w.stats.Failed++
	} else {
		w.stats.Processed++
	}
	w.mu.Unlock()

	fields := []zap.Field{zap.String("file", name), zap.String("moved_to", moved)}
	if result != nil {
		fields = append(fields,
			zap.String("run_id", result.RunID),
			zap.Bool("approved", result.Approved()),
			zap.Bool("paid", result.Paid()))
	}
	w.logger.Info("Inbox file processed", fields...)
	return nil
}

func (w *InboxWorker) recordError(err error) {
	w.mu.Lock()
	w.stats.LastError = err.Error()
	w.mu.Unlock()
}
