// Package intake watches drop folders and feeds new scans straight
// into the extraction queue, so bulk scanner output reaches operators
// without a manual upload.
package intake

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/gmsas95/docsheet/internal/config"
	"github.com/gmsas95/docsheet/internal/security"
	"github.com/gmsas95/docsheet/internal/uploads"
)

// Enqueuer is the slice of the pipeline the watcher needs.
type Enqueuer interface {
	Submit(docID string) error
}

type Watcher struct {
	config   config.IntakeConfig
	uploads  *uploads.Service
	pipeline Enqueuer
	exts     []string
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

func NewWatcher(cfg config.IntakeConfig, up *uploads.Service, pl Enqueuer, exts []string, logger *zap.Logger) *Watcher {
	return &Watcher{
		config:   cfg,
		uploads:  up,
		pipeline: pl,
		exts:     exts,
		logger:   logger,
		pending:  make(map[string]struct{}),
	}
}

// Start begins watching the configured drop folders recursively.
func (w *Watcher) Start(ctx context.Context) error {
	if len(w.config.Dirs) == 0 {
		return fmt.Errorf("no intake dirs configured")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = fsw
	ctx, w.cancel = context.WithCancel(ctx)

	for _, root := range w.config.Dirs {
		if err := w.addTree(root); err != nil {
			fsw.Close()
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}

	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("intake watcher started",
		zap.Strings("dirs", w.config.Dirs),
		zap.String("type", w.config.DocumentType),
		zap.String("owner", w.config.ServiceAccount),
	)
	return nil
}

func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// addTree watches root and its subdirectories. With InitialScan set,
// files already present are ingested too.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		if w.config.InitialScan && security.AllowedExtension(path, w.exts) {
			w.ingest(path)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				// New directories join the watch; Add on a file fails
				// quietly which is fine
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(ev.Name); err != nil {
						w.logger.Warn("failed to watch new directory",
							zap.String("path", ev.Name), zap.Error(err))
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 &&
				security.AllowedExtension(ev.Name, w.exts) {
				w.schedule(ev.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("intake watcher error", zap.Error(err))
		}
	}
}

// schedule coalesces rapid write bursts: scanners write files in
// chunks, so wait for the debounce window before ingesting.
func (w *Watcher) schedule(path string) {
	debounce := time.Duration(w.config.DebounceSeconds) * time.Second
	if debounce <= 0 {
		w.ingest(path)
		return
	}

	w.mu.Lock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounce, w.flush)
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, p := range paths {
		w.ingest(p)
	}
}

// ingest copies one dropped file into the upload store and queues it
// for extraction under the service account.
func (w *Watcher) ingest(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("intake read failed", zap.String("path", path), zap.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}

	doc, err := w.uploads.Save(w.config.ServiceAccount, w.config.DocumentType, filepath.Base(path), data)
	if err != nil {
		w.logger.Warn("intake save failed", zap.String("path", path), zap.Error(err))
		return
	}
	if err := w.pipeline.Submit(doc.ID); err != nil {
		w.logger.Error("intake enqueue failed", zap.String("id", doc.ID), zap.Error(err))
		return
	}

	w.logger.Info("intake document queued",
		zap.String("id", doc.ID),
		zap.String("source", path),
	)
}
