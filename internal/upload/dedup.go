package upload

import (
	"context"
	"log/slog"
	"sync"

	"github.com/soundjacket/metapub/internal/models"
	"golang.org/x/sync/singleflight"
)

// Dedup uploads each distinct payload once per run. The shared audio file is
// therefore stored a single time and every item receives the same URI.
type Dedup struct {
	next  Uploader
	group singleflight.Group

	mu   sync.RWMutex
	uris map[string]string
}

// NewDedup wraps next
func NewDedup(next Uploader) *Dedup {
	return &Dedup{
		next: next,
		uris: make(map[string]string),
	}
}

// Upload returns the cached URI for already uploaded content
func (d *Dedup) Upload(ctx context.Context, file models.AssetFile) (string, error) {
	digest, err := Digest(file.Data)
	if err != nil {
		return "", err
	}

	d.mu.RLock()
	uri, ok := d.uris[digest]
	d.mu.RUnlock()
	if ok {
		slog.Debug("Reusing uploaded content", "path", file.Path, "uri", uri)
		return uri, nil
	}

	v, err, _ := d.group.Do(digest, func() (any, error) {
		uri, err := d.next.Upload(ctx, file)
		if err != nil {
			return "", err
		}
		d.mu.Lock()
		d.uris[digest] = uri
		d.mu.Unlock()
		return uri, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
