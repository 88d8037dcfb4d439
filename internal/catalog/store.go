package catalog

import (
	"context"
	"strconv"

	"github.com/soundjacket/metapub/internal/models"
)

// Store is a catalog sink. Save is awaited by the indexer; a returned error
// is recorded against the item being indexed. Flush is called once after all
// items and must leave every saved entry durable; stores that write through
// on Save return nil. Close only releases resources.
//
// Entries are keyed by (meta_hash, index): saving the same item again
// replaces the earlier entry instead of appending a second one, so indexing
// a root twice leaves one entry per item.
type Store interface {
	Save(ctx context.Context, entry models.CatalogEntry) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// Finder lists the entries stored under a batch root, ordered by index
type Finder interface {
	Find(ctx context.Context, metaHash string) ([]models.CatalogEntry, error)
}

func entryKey(metaHash string, index int) string {
	return metaHash + "/" + strconv.Itoa(index)
}
