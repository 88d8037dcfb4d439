package metadata

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/soundjacket/metapub/internal/models"
)

// CollectionFile is the aggregate file name inside the output directory
const CollectionFile = "_metadata.json"

// Persister writes metadata records to the output directory
type Persister struct {
	Dir string
}

// NewPersister creates a persister rooted at dir
func NewPersister(dir string) *Persister {
	return &Persister{Dir: dir}
}

// RecordPath is where the record for index is stored
func (p *Persister) RecordPath(index int) string {
	return filepath.Join(p.Dir, strconv.Itoa(index)+".json")
}

// CollectionPath is where the aggregate collection is stored
func (p *Persister) CollectionPath() string {
	return filepath.Join(p.Dir, CollectionFile)
}

// WriteRecord writes one record, replacing any previous file atomically
func (p *Persister) WriteRecord(index int, record Record) error {
	data, err := Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: failed to encode record %d: %w", models.ErrPersist, index, err)
	}
	if err := WriteFileAtomic(p.RecordPath(index), data); err != nil {
		return fmt.Errorf("%w: %w", models.ErrPersist, err)
	}
	return nil
}

// WriteCollection writes the aggregate file for all records
func (p *Persister) WriteCollection(records []Record) error {
	data, err := Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: failed to encode collection: %w", models.ErrPersist, err)
	}
	if err := WriteFileAtomic(p.CollectionPath(), data); err != nil {
		return fmt.Errorf("%w: %w", models.ErrPersist, err)
	}
	return nil
}

// WriteAll writes every record and then the aggregate file
func (p *Persister) WriteAll(records []Record) error {
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return models.NewStageError(models.StagePersist, -1, fmt.Errorf("%w: failed to create output directory: %w", models.ErrPersist, err))
	}
	for i, record := range records {
		if err := p.WriteRecord(i, record); err != nil {
			return models.NewStageError(models.StagePersist, i, err)
		}
	}
	if err := p.WriteCollection(records); err != nil {
		return models.NewStageError(models.StagePersist, -1, err)
	}
	slog.Info("Metadata written", "dir", p.Dir, "records", len(records))
	return nil
}

// ReadRecordFile returns the raw bytes of a persisted record
func (p *Persister) ReadRecordFile(index int) ([]byte, error) {
	data, err := os.ReadFile(p.RecordPath(index))
	if err != nil {
		return nil, fmt.Errorf("failed to read record %d: %w", index, err)
	}
	return data, nil
}

// WriteFileAtomic writes data to a temp file in the target's directory,
// syncs it and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}
