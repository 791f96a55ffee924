package uploads

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/docsheet/internal/config"
	apperrors "github.com/gmsas95/docsheet/internal/errors"
	"github.com/gmsas95/docsheet/internal/metrics"
	"github.com/gmsas95/docsheet/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.DataDir = t.TempDir()
	st, err := store.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	up := config.UploadsConfig{
		Dir:           t.TempDir(),
		MaxFiles:      10,
		AllowedExts:   []string{"png", "jpg", "jpeg", "pdf"},
		InlineMaxSize: 1 << 20,
		BlobTTLHours:  24,
	}
	svc, err := NewService(st, up, metrics.New(), zap.NewNop())
	require.NoError(t, err)
	return svc, st
}

func TestSaveRegistersQueuedDocument(t *testing.T) {
	svc, st := newTestService(t)

	doc, err := svc.Save("op@example.com", "invoice", "scan.png", []byte{0x89, 0x50})
	require.NoError(t, err)

	assert.Equal(t, store.StatusQueued, doc.Status)
	assert.Equal(t, "scan.png", doc.OriginalName)
	assert.True(t, doc.Inline)
	assert.FileExists(t, doc.StoredPath)

	stored, err := st.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "op@example.com", stored.OwnerEmail)

	blob, err := st.GetBlob(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50}, blob)
}

func TestSaveSanitizesHostileFilename(t *testing.T) {
	svc, _ := newTestService(t)

	doc, err := svc.Save("op@example.com", "check", "../../etc/evil.png", []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "evil.png", doc.OriginalName)
	assert.Equal(t, filepath.Dir(doc.StoredPath), filepath.Clean(filepath.Dir(doc.StoredPath)))
}

func TestSaveRejectsBadExtension(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Save("op@example.com", "invoice", "script.sh", []byte{1})
	assert.Equal(t, "UPLOAD_003", apperrors.GetCode(err))
}

func TestSaveRejectsUnknownDocumentType(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Save("op@example.com", "receipt", "scan.png", []byte{1})
	assert.Equal(t, "UPLOAD_004", apperrors.GetCode(err))
}

func TestOpenFallsBackToDisk(t *testing.T) {
	svc, st := newTestService(t)

	doc, err := svc.Save("op@example.com", "invoice", "scan.png", []byte{7, 7})
	require.NoError(t, err)

	// Drop the blob so Open must hit the disk copy
	require.NoError(t, st.DeleteBlob(doc.ID))

	data, err := svc.Open(doc)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7}, data)
}

func TestOpenMissingEverywhere(t *testing.T) {
	svc, st := newTestService(t)

	doc, err := svc.Save("op@example.com", "invoice", "scan.png", []byte{7})
	require.NoError(t, err)

	require.NoError(t, st.DeleteBlob(doc.ID))
	require.NoError(t, os.Remove(doc.StoredPath))

	_, err = svc.Open(doc)
	assert.Equal(t, "DOC_001", apperrors.GetCode(err))
}

func TestRemoveClearsStoredPath(t *testing.T) {
	svc, st := newTestService(t)

	doc, err := svc.Save("op@example.com", "invoice", "scan.png", []byte{7})
	require.NoError(t, err)
	path := doc.StoredPath

	svc.Remove(doc)

	assert.NoFileExists(t, path)
	stored, err := st.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.StoredPath)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("a.png"))
	assert.Equal(t, "image/jpeg", ContentType("a.JPG"))
	assert.Equal(t, "image/jpeg", ContentType("a.jpeg"))
	assert.Equal(t, "application/pdf", ContentType("a.pdf"))
	assert.Equal(t, "application/octet-stream", ContentType("a.bin"))
}

func TestCleanerSweepsOldFiles(t *testing.T) {
	svc, st := newTestService(t)

	doc, err := svc.Save("op@example.com", "invoice", "old.png", []byte{1})
	require.NoError(t, err)

	// Age the file past the retention window
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(doc.StoredPath, old, old))

	fresh, err := svc.Save("op@example.com", "invoice", "new.png", []byte{1})
	require.NoError(t, err)

	cleaner := NewCleaner(st, config.CleanupConfig{Schedule: "@hourly", MaxAgeH: 24}, svc.config.Dir, zap.NewNop())
	cleaner.Sweep()

	assert.NoFileExists(t, filepath.Join(svc.config.Dir, doc.ID))
	assert.FileExists(t, fresh.StoredPath)

	swept, err := st.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, swept.StoredPath)
}

func TestSaveSameSecondDuplicateKeepsBothDocuments(t *testing.T) {
	svc, _ := newTestService(t)

	// Align to just after a second boundary so both saves share a stamp
	next := time.Now().Truncate(time.Second).Add(time.Second + 50*time.Millisecond)
	time.Sleep(time.Until(next))

	first, err := svc.Save("op@example.com", "invoice", "scan.png", []byte("first upload bytes"))
	require.NoError(t, err)
	second, err := svc.Save("other@example.com", "invoice", "scan.png", []byte("second upload bytes"))
	require.NoError(t, err)

	require.Equal(t, first.ID[:14], second.ID[:14], "saves landed in different seconds")
	require.NotEqual(t, first.ID, second.ID)
	require.NotEqual(t, first.StoredPath, second.StoredPath)

	a, err := svc.Open(first)
	require.NoError(t, err)
	assert.Equal(t, []byte("first upload bytes"), a)

	b, err := svc.Open(second)
	require.NoError(t, err)
	assert.Equal(t, []byte("second upload bytes"), b)

	// The disk copies stay separate too
	onDisk, err := os.ReadFile(first.StoredPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("first upload bytes"), onDisk)
}

func TestSaveRollsBackRowWhenDiskWriteFails(t *testing.T) {
	svc, st := newTestService(t)

	// Make the upload dir unwritable so the file write fails
	require.NoError(t, os.Chmod(svc.config.Dir, 0500))
	t.Cleanup(func() { os.Chmod(svc.config.Dir, 0755) })

	if os.Getuid() == 0 {
		t.Skip("running as root, directory permissions are not enforced")
	}

	_, err := svc.Save("op@example.com", "invoice", "scan.png", []byte{1})
	require.Error(t, err)

	docs, err := st.ListDocuments("op@example.com", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, docs, "failed save must not leave a document row behind")
}
