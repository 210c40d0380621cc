package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/internal/infrastructure/storage"
)

type mockRunner struct {
	mu          sync.Mutex
	paths       []string
	RunFileFunc func(ctx context.Context, path string) *entity.PipelineResult
}

func (m *mockRunner) RunFile(ctx context.Context, path string) *entity.PipelineResult {
	m.mu.Lock()
	m.paths = append(m.paths, path)
	m.mu.Unlock()
	return m.RunFileFunc(ctx, path)
}

func (m *mockRunner) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paths)
}

type mockWorker struct {
	name     string
	startErr error
	started  bool
	stopped  bool
}

func (w *mockWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.started = true
	return nil
}

func (w *mockWorker) Stop() error {
	w.stopped = true
	return nil
}

func (w *mockWorker) Name() string { return w.name }

func writeInbox(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("{}"), 0644))
	}
}

func TestInboxWorker_PollOnce(t *testing.T) {
	dir := t.TempDir()
	writeInbox(t, dir, "a.json", "b.json", "notes.md")

	runner := &mockRunner{RunFileFunc: func(ctx context.Context, path string) *entity.PipelineResult {
		if filepath.Base(path) == "b.json" {
			return &entity.PipelineResult{RunID: "run-b", InternalError: "boom"}
		}
		return &entity.PipelineResult{RunID: "run-a", Decision: &entity.FinalDecision{Approved: true}}
	}}
	store := storage.NewLocalFileStorage(dir, nil)
	w := NewInboxWorker(InboxConfig{Extensions: []string{".json"}}, store, runner, nil)

	n, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.FileExists(t, filepath.Join(dir, DefaultProcessedDir, "a.json"))
	assert.FileExists(t, filepath.Join(dir, DefaultFailedDir, "b.json"))
	assert.FileExists(t, filepath.Join(dir, "notes.md"))

	stats := w.Stats()
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
	assert.False(t, stats.LastPoll.IsZero())

	n, err = w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, runner.calls())
}

func TestInboxWorker_StartStop(t *testing.T) {
	dir := t.TempDir()
	writeInbox(t, dir, "a.json")

	runner := &mockRunner{RunFileFunc: func(ctx context.Context, path string) *entity.PipelineResult {
		return &entity.PipelineResult{RunID: "run-1"}
	}}
	w := NewInboxWorker(InboxConfig{PollInterval: 10 * time.Millisecond}, storage.NewLocalFileStorage(dir, nil), runner, nil)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool { return w.Stats().Processed == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.Equal(t, 1, runner.calls())
}

func TestManager(t *testing.T) {
	good := &mockWorker{name: "good"}
	bad := &mockWorker{name: "bad", startErr: errors.New("nope")}

	m := NewManager(nil)
	m.Register(good)
	m.Register(bad)
	assert.Equal(t, 2, m.Count())

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), "start bad: nope")
	assert.True(t, m.IsRunning())
	assert.True(t, good.started)
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.True(t, good.stopped)
	assert.False(t, bad.stopped)
	assert.False(t, m.IsRunning())
	require.NoError(t, m.StopAll())
}

func TestInboxWorker_WatchTriggersPoll(t *testing.T) {
	dir := t.TempDir()
	runner := &mockRunner{RunFileFunc: func(ctx context.Context, path string) *entity.PipelineResult {
		return &entity.PipelineResult{RunID: "run-1"}
	}}
	w := NewInboxWorker(InboxConfig{PollInterval: time.Hour, WatchDir: dir}, storage.NewLocalFileStorage(dir, nil), runner, nil)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeInbox(t, dir, "late.json")
	assert.Eventually(t, func() bool { return w.Stats().Processed == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.FileExists(t, filepath.Join(dir, DefaultProcessedDir, "late.json"))
}

func TestInboxWorker_WatchMissingDir(t *testing.T) {
	w := NewInboxWorker(InboxConfig{WatchDir: filepath.Join(t.TempDir(), "nope")}, storage.NewLocalFileStorage(t.TempDir(), nil), &mockRunner{}, nil)
	assert.Error(t, w.Start(context.Background()))
}
