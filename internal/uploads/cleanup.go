package uploads

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gmsas95/docsheet/internal/config"
	"github.com/gmsas95/docsheet/internal/store"
)

// Cleaner sweeps the upload directory on a schedule and drops files
// older than the retention window. Saved extractions live in the
// spreadsheet by then; the disk copy is only needed while a document
// is under review.
type Cleaner struct {
	store    *store.Store
	dir      string
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
}

func NewCleaner(st *store.Store, cfg config.CleanupConfig, dir string, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		store:    st,
		dir:      dir,
		maxAge:   time.Duration(cfg.MaxAgeH) * time.Hour,
		schedule: cfg.Schedule,
		logger:   logger,
	}
}

// Start registers the sweep with the scheduler and runs one
// immediately so a restart does not extend retention.
func (c *Cleaner) Start() error {
	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.schedule, c.Sweep); err != nil {
		return err
	}
	c.cron.Start()
	go c.Sweep()
	c.logger.Info("upload cleanup scheduled",
		zap.String("schedule", c.schedule),
		zap.Duration("max_age", c.maxAge),
	)
	return nil
}

func (c *Cleaner) Stop() {
	if c.cron != nil {
		ctx := c.cron.Stop()
		<-ctx.Done()
	}
}

// Sweep removes stale files and clears their stored path so image
// requests fall through to the blob cache.
func (c *Cleaner) Sweep() {
	cutoff := time.Now().Add(-c.maxAge)
	removed := 0

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Error("cleanup failed to read upload dir", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(c.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			c.logger.Warn("cleanup failed to remove file",
				zap.String("file", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		removed++

		// The filename is the document ID; clear the stale path
		if doc, err := c.store.GetDocument(entry.Name()); err == nil && doc.StoredPath != "" {
			doc.StoredPath = ""
			if err := c.store.UpdateDocument(doc); err != nil {
				c.logger.Warn("cleanup failed to clear stored path",
					zap.String("id", doc.ID),
					zap.Error(err),
				)
			}
		}
	}

	if removed > 0 {
		c.logger.Info("upload cleanup complete", zap.Int("removed", removed))
	}
}
