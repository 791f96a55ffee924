package intake

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/docsheet/internal/config"
	"github.com/gmsas95/docsheet/internal/metrics"
	"github.com/gmsas95/docsheet/internal/store"
	"github.com/gmsas95/docsheet/internal/uploads"
)

type recordingEnqueuer struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingEnqueuer) Submit(docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, docID)
	return nil
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func newTestWatcher(t *testing.T, cfg config.IntakeConfig) (*Watcher, *recordingEnqueuer, *store.Store) {
	t.Helper()
	c := &config.Config{}
	c.Storage.DataDir = t.TempDir()
	st, err := store.New(c)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	up, err := uploads.NewService(st, config.UploadsConfig{
		Dir:           t.TempDir(),
		AllowedExts:   []string{"png", "jpg", "jpeg", "pdf"},
		InlineMaxSize: 1 << 20,
		BlobTTLHours:  1,
	}, metrics.New(), zap.NewNop())
	require.NoError(t, err)

	enq := &recordingEnqueuer{}
	w := NewWatcher(cfg, up, enq, []string{"png", "jpg", "jpeg", "pdf"}, zap.NewNop())
	return w, enq, st
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestWatcherIngestsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	w, enq, st := newTestWatcher(t, config.IntakeConfig{
		Dirs:           []string{dir},
		DocumentType:   "invoice",
		ServiceAccount: "scanner@example.com",
	})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "drop.png"), []byte{0x89, 0x50}, 0644))

	waitFor(t, 5*time.Second, func() bool { return enq.count() == 1 })

	docs, err := st.ListDocuments("scanner@example.com", 10, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "invoice", docs[0].Type)
	assert.Equal(t, "drop.png", docs[0].OriginalName)
}

func TestWatcherIgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	w, enq, _ := newTestWatcher(t, config.IntakeConfig{
		Dirs:           []string{dir},
		DocumentType:   "check",
		ServiceAccount: "scanner@example.com",
	})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, enq.count())
}

func TestWatcherInitialScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.jpg"), []byte{0xff, 0xd8}, 0644))

	w, enq, _ := newTestWatcher(t, config.IntakeConfig{
		Dirs:           []string{dir},
		DocumentType:   "passport",
		ServiceAccount: "scanner@example.com",
		InitialScan:    true,
	})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	waitFor(t, 5*time.Second, func() bool { return enq.count() == 1 })
}

func TestWatcherDebounceCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	w, enq, _ := newTestWatcher(t, config.IntakeConfig{
		Dirs:            []string{dir},
		DocumentType:    "invoice",
		ServiceAccount:  "scanner@example.com",
		DebounceSeconds: 1,
	})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "chunked.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = f.Write([]byte{byte(i)})
		require.NoError(t, err)
		require.NoError(t, f.Sync())
		time.Sleep(50 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	waitFor(t, 5*time.Second, func() bool { return enq.count() == 1 })
	// No duplicate ingests after the debounce window
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 1, enq.count())
}

func TestWatcherRequiresDirs(t *testing.T) {
	w, _, _ := newTestWatcher(t, config.IntakeConfig{DocumentType: "invoice"})
	assert.Error(t, w.Start(context.Background()))
}
