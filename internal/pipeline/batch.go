package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmsas95/docsheet/internal/config"
	"github.com/gmsas95/docsheet/internal/extract"
	"github.com/gmsas95/docsheet/internal/security"
)

// BatchConfig controls an offline folder run.
type BatchConfig struct {
	MaxConcurrency    int
	Timeout           time.Duration
	RetryCount        int
	RetryDelay        time.Duration
	RequestsPerMinute int
	AllowedExts       []string
}

func DefaultBatchConfig(cfg config.VisionConfig, exts []string) BatchConfig {
	return BatchConfig{
		MaxConcurrency:    cfg.Workers,
		Timeout:           time.Duration(cfg.JobTimeoutSeconds) * time.Second,
		RetryCount:        cfg.Retries,
		RetryDelay:        time.Duration(cfg.RetryDelaySeconds) * time.Second,
		RequestsPerMinute: cfg.RequestsPerMinute,
		AllowedExts:       exts,
	}
}

// BatchItem is one processed file in a folder run.
type BatchItem struct {
	Filename  string            `json:"filename"`
	Path      string            `json:"path"`
	Fields    map[string]string `json:"fields,omitempty"`
	Report    string            `json:"report,omitempty"`
	Elapsed   time.Duration     `json:"elapsed"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// BatchResult aggregates a folder run.
type BatchResult struct {
	Total     int           `json:"total"`
	Success   int           `json:"success"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	Items     []BatchItem   `json:"items"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

// Batch extracts every supported image in a folder without touching
// the store. Used by the offline CLI.
type Batch struct {
	extractor extract.Extractor
	config    BatchConfig
	logger    *zap.Logger
}

func NewBatch(ex extract.Extractor, cfg BatchConfig, logger *zap.Logger) *Batch {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Batch{extractor: ex, config: cfg, logger: logger}
}

// ProcessFolder walks dir non-recursively, extracts each allowed file
// as docType and optionally writes the result to outputPath.
func (b *Batch) ProcessFolder(ctx context.Context, dir, docType, outputPath string) (*BatchResult, error) {
	startTime := time.Now()

	paths, skipped, err := b.listFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list input folder: %w", err)
	}

	result := &BatchResult{
		Total:     len(paths),
		Skipped:   skipped,
		StartTime: startTime,
		Items:     make([]BatchItem, 0, len(paths)),
	}

	concurrency := b.config.MaxConcurrency
	if concurrency > len(paths) && len(paths) > 0 {
		concurrency = len(paths)
	}

	var limiter *rate.Limiter
	if b.config.RequestsPerMinute > 0 {
		rps := float64(b.config.RequestsPerMinute) / 60.0
		limiter = rate.NewLimiter(rate.Limit(rps), concurrency)
	}

	b.logger.Info("starting folder extraction",
		zap.String("dir", dir),
		zap.String("type", docType),
		zap.Int("files", len(paths)),
		zap.Int("skipped", skipped),
		zap.Int("concurrency", concurrency),
	)

	pathsChan := make(chan string, len(paths))
	resultsChan := make(chan BatchItem, len(paths))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range pathsChan {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						resultsChan <- BatchItem{
							Filename:  filepath.Base(path),
							Path:      path,
							Error:     err.Error(),
							Timestamp: time.Now(),
						}
						continue
					}
				}
				resultsChan <- b.processFile(ctx, path, docType)
			}
		}()
	}

	for _, path := range paths {
		pathsChan <- path
	}
	close(pathsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for item := range resultsChan {
		result.Items = append(result.Items, item)
		if item.Success {
			result.Success++
		} else {
			result.Failed++
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	if outputPath != "" {
		if err := b.saveOutputFile(outputPath, docType, result); err != nil {
			return result, fmt.Errorf("failed to save output file: %w", err)
		}
	}

	return result, nil
}

func (b *Batch) processFile(ctx context.Context, path, docType string) BatchItem {
	item := BatchItem{
		Filename:  filepath.Base(path),
		Path:      path,
		Timestamp: time.Now(),
	}

	image, err := os.ReadFile(path)
	if err != nil {
		item.Error = err.Error()
		return item
	}

	var text string
	for attempt := 0; attempt <= b.config.RetryCount; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if b.config.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		}

		start := time.Now()
		text, err = b.extractor.Extract(attemptCtx, image, item.Filename, docType)
		item.Elapsed = time.Since(start)

		if cancel != nil {
			cancel()
		}
		if err == nil {
			break
		}
		if attempt < b.config.RetryCount {
			time.Sleep(b.config.RetryDelay)
		}
	}

	if err != nil {
		item.Error = err.Error()
		return item
	}

	item.Report = text
	item.Fields = extract.ParseFields(text)
	item.Success = true
	return item
}

func (b *Batch) listFiles(dir string) ([]string, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}

	var paths []string
	skipped := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !security.AllowedExtension(entry.Name(), b.config.AllowedExts) {
			skipped++
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, skipped, nil
}

func (b *Batch) saveOutputFile(path, docType string, result *BatchResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		encoder := json.NewEncoder(file)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	for _, item := range result.Items {
		fmt.Fprintf(file, "=== %s (%s) ===\n", item.Filename, docType)
		if item.Error != "" {
			fmt.Fprintf(file, "Error: %s\n\n", item.Error)
			continue
		}
		fmt.Fprintf(file, "%s\n", strings.TrimRight(item.Report, "\n"))
		fmt.Fprintf(file, "Time: %v\n\n", item.Elapsed)
	}
	return nil
}

// Summary renders the end-of-run report printed by the CLI.
func (r *BatchResult) Summary() string {
	var sb strings.Builder
	sb.WriteString("=== Extraction Summary ===\n")
	sb.WriteString(fmt.Sprintf("Total:     %d\n", r.Total))
	sb.WriteString(fmt.Sprintf("Success:   %d\n", r.Success))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", r.Failed))
	sb.WriteString(fmt.Sprintf("Skipped:   %d\n", r.Skipped))
	sb.WriteString(fmt.Sprintf("Duration:  %v\n", r.Duration))
	return sb.String()
}
