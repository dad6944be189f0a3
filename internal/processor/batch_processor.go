package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/DeepDiveOCR/ocr-safesign/config"
	"github.com/DeepDiveOCR/ocr-safesign/internal/database"
	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
	"github.com/DeepDiveOCR/ocr-safesign/internal/queue"
)

// Transactor is the part of *gorm.DB the processor needs
type Transactor interface {
	Transaction(fc func(*gorm.DB) error, opts ...*sql.TxOptions) error
}

// BatchProcessor imports reference complexes in batched upserts
type BatchProcessor struct {
	db     Transactor
	logger *logrus.Logger
	config *config.Config
}

// ImportStats summarizes one import run
type ImportStats struct {
	Rows    int `json:"rows"`
	Batches int `json:"batches"`
	Failed  int `json:"failed_batches"`
}

func (s *ImportStats) add(o ImportStats) {
	s.Rows += o.Rows
	s.Batches += o.Batches
	s.Failed += o.Failed
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(db Transactor, config *config.Config, logger *logrus.Logger) *BatchProcessor {
	if logger == nil {
		logger = logrus.New()
	}
	return &BatchProcessor{
		db:     db,
		config: config,
		logger: logger,
	}
}

// ImportTables loads every reference table under dir. Missing tables are
// skipped with a warning.
func (p *BatchProcessor) ImportTables(ctx context.Context, dir string) (ImportStats, error) {
	var total ImportStats
	paths := config.ReferencePaths(dir)

	for _, bt := range config.SupportedBuildingTypes {
		path := paths[bt.Type]
		complexes, err := config.LoadReferenceTable(path, bt.Type, p.logger)
		if errors.Is(err, os.ErrNotExist) {
			p.logger.WithField("path", path).Warn("Reference table not found, skipping")
			continue
		}
		if err != nil {
			return total, err
		}

		stats, err := p.Import(ctx, complexes)
		total.add(stats)
		if err != nil {
			return total, fmt.Errorf("failed to import %s: %w", path, err)
		}
	}
	return total, nil
}

// Import upserts complexes using ProcessorCount concurrent workers. Failed
// batches are retried and reported together once all batches have run.
func (p *BatchProcessor) Import(ctx context.Context, complexes []models.NearbyComplex) (ImportStats, error) {
	workers := p.config.BatchProcessing.ProcessorCount
	if workers < 1 {
		workers = 1
	}
	q := queue.NewBatchQueue[models.NearbyComplex](workers*2, p.logger)

	var (
		mu    sync.Mutex
		stats ImportStats
		errs  []error
		wg    sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range q.Batches() {
				err := p.processBatch(ctx, batch)
				mu.Lock()
				stats.Batches++
				if err != nil {
					stats.Failed++
					errs = append(errs, err)
				} else {
					stats.Rows += len(batch)
				}
				mu.Unlock()
			}
		}()
	}

	var pushErr error
	for _, batch := range queue.Chunk(complexes, p.config.BatchProcessing.MaxBatchSize) {
		if pushErr = q.PushWait(ctx, batch); pushErr != nil {
			break
		}
	}
	q.Close()
	wg.Wait()

	if pushErr != nil {
		errs = append(errs, pushErr)
	}
	if len(errs) > 0 {
		return stats, errors.Join(errs...)
	}

	p.logger.WithFields(logrus.Fields{
		"rows":    stats.Rows,
		"batches": stats.Batches,
	}).Info("Imported reference complexes")
	return stats, nil
}

// processBatch handles a single batch of complexes with transaction and retry logic
func (p *BatchProcessor) processBatch(ctx context.Context, batch []models.NearbyComplex) error {
	maxRetries := p.config.BatchProcessing.MaxRetries
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch processing, attempt %d of %d", attempt, maxRetries)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.config.BatchProcessing.RetryDelay):
			}
		}

		err = p.db.Transaction(func(tx *gorm.DB) error {
			if err := database.UpsertComplexes(tx, batch); err != nil {
				return fmt.Errorf("failed to upsert complexes batch: %w", err)
			}
			return nil
		})

		if err == nil {
			p.logger.Debugf("Successfully processed batch of %d complexes", len(batch))
			return nil
		}

		p.logger.Errorf("Batch processing failed: %v", err)
	}

	return fmt.Errorf("failed to process batch after %d attempts: %w", maxRetries+1, err)
}
