package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/soundjacket/metapub/internal/metadata"
	"github.com/soundjacket/metapub/internal/models"
)

// Fetcher reads a published record back from the network
type Fetcher interface {
	Fetch(ctx context.Context, root string, index int) (*metadata.Record, error)
}

// IndexReport summarizes one indexing pass. Failures are ordered by index;
// a failure with index -1 covers the whole batch.
type IndexReport struct {
	Root     string
	Total    int
	Saved    int
	Failures []*models.StageError
}

// Err aggregates every per-item failure, or nil when all items were saved
func (r *IndexReport) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, f)
	}
	return err
}

// Indexer copies every published record under a batch root into a Store
type Indexer struct {
	fetcher     Fetcher
	store       Store
	concurrency int
	runID       string
	now         func() time.Time
}

// NewIndexer creates an indexer
func NewIndexer(fetcher Fetcher, store Store, concurrency int, runID string) *Indexer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Indexer{
		fetcher:     fetcher,
		store:       store,
		concurrency: concurrency,
		runID:       runID,
		now:         time.Now,
	}
}

type indexResult struct {
	index int
	err   *models.StageError
}

// Index fetches and saves items 0..n-1. A failing item does not stop the
// others; its error is recorded in the report. The returned error is the
// aggregate of all item failures.
func (ix *Indexer) Index(ctx context.Context, root string, n int) (*IndexReport, error) {
	report := &IndexReport{Root: root, Total: n}

	semaphore := make(chan struct{}, ix.concurrency)
	resultsChan := make(chan indexResult, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			resultsChan <- indexResult{index: i, err: ix.indexOne(ctx, root, i)}
		}()
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for result := range resultsChan {
		if result.err != nil {
			slog.Warn("Failed to index item", "index", result.index, "err", result.err.Err)
			report.Failures = append(report.Failures, result.err)
			continue
		}
		report.Saved++
	}

	// buffered stores only reach the catalog here; nothing counts as saved if this fails
	if err := ix.store.Flush(ctx); err != nil {
		slog.Error("Failed to flush catalog store", "root", root, "err", err)
		report.Failures = append(report.Failures, models.NewStageError(models.StageIndex, -1, fmt.Errorf("%w: %w", models.ErrIndexWrite, err)))
		report.Saved = 0
	}

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Index < report.Failures[j].Index
	})

	slog.Info("Indexing finished", "root", root, "saved", report.Saved, "failed", len(report.Failures))
	return report, report.Err()
}

func (ix *Indexer) indexOne(ctx context.Context, root string, index int) *models.StageError {
	if err := ctx.Err(); err != nil {
		return models.NewStageError(models.StageIndex, index, fmt.Errorf("%w: %w", models.ErrIndexFetch, err))
	}

	record, err := ix.fetcher.Fetch(ctx, root, index)
	if err != nil {
		return models.NewStageError(models.StageIndex, index, fmt.Errorf("%w: %w", models.ErrIndexFetch, err))
	}

	entry := models.CatalogEntry{
		RunID:        ix.runID,
		Index:        index,
		Name:         record.Name,
		Description:  record.Description,
		Image:        record.Image,
		AnimationURL: record.AnimationURL,
		MetaHash:     root,
		IndexedAt:    ix.now().UTC(),
	}

	if err := ix.store.Save(ctx, entry); err != nil {
		return models.NewStageError(models.StageIndex, index, fmt.Errorf("%w: %w", models.ErrIndexWrite, err))
	}

	slog.Debug("Indexed item", "index", index, "name", entry.Name)
	return nil
}
