package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/soundjacket/metapub/internal/metadata"
	"github.com/soundjacket/metapub/internal/models"
)

// ParquetStore buffers entries and writes them to a Parquet file on Flush.
// Entries already in the file are kept unless a new entry has the same
// (meta_hash, index).
type ParquetStore struct {
	path    string
	entries map[string]models.CatalogEntry
	mu      sync.Mutex
}

func NewParquetStore(path string) *ParquetStore {
	return &ParquetStore{
		path:    path,
		entries: make(map[string]models.CatalogEntry),
	}
}

func (s *ParquetStore) Save(ctx context.Context, entry models.CatalogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entryKey(entry.MetaHash, entry.Index)] = entry
	return nil
}

// Flush merges the buffered entries into the file. The buffer is kept when
// the write fails.
func (s *ParquetStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return nil
	}

	existing, err := ReadParquet(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	merged := make(map[string]models.CatalogEntry, len(existing)+len(s.entries))
	for _, e := range existing {
		merged[entryKey(e.MetaHash, e.Index)] = e
	}
	for k, e := range s.entries {
		merged[k] = e
	}

	rows := make([]models.CatalogEntry, 0, len(merged))
	for _, e := range merged {
		rows = append(rows, e)
	}
	sortEntries(rows)

	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[models.CatalogEntry](&buf)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	if err := metadata.WriteFileAtomic(s.path, buf.Bytes()); err != nil {
		return err
	}
	slog.Info("Catalog exported", "path", s.path, "rows", len(rows), "new", len(s.entries))
	s.entries = make(map[string]models.CatalogEntry)
	return nil
}

// Close flushes anything still buffered
func (s *ParquetStore) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

// Find reads the entries for one root back from the file
func (s *ParquetStore) Find(ctx context.Context, metaHash string) ([]models.CatalogEntry, error) {
	rows, err := ReadParquet(s.path)
	if err != nil {
		return nil, err
	}
	var result []models.CatalogEntry
	for _, r := range rows {
		if r.MetaHash == metaHash {
			result = append(result, r)
		}
	}
	sortEntries(result)
	return result, nil
}

// ReadParquet loads every catalog entry from a Parquet file
func ReadParquet(path string) ([]models.CatalogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[models.CatalogEntry](pf)
	defer reader.Close()

	var entries []models.CatalogEntry
	rows := make([]models.CatalogEntry, 128)
	for {
		n, err := reader.Read(rows)
		if n > 0 {
			entries = append(entries, rows[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	slog.Debug("Read catalog parquet", "path", path, "rows", len(entries))
	return entries, nil
}
