package publish

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/soundjacket/metapub/internal/httpclient"
	"github.com/soundjacket/metapub/internal/models"
	"golang.org/x/sync/errgroup"
)

// Entry is one file in the publish batch
type Entry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Result is the outcome of a batch publish
type Result struct {
	Root  string   `json:"root" yaml:"root"`
	Paths []string `json:"paths" yaml:"paths"`
}

// RecordReader gives access to persisted per-item metadata files
type RecordReader interface {
	ReadRecordFile(index int) ([]byte, error)
}

// Publisher pins the persisted metadata files in one batch call
type Publisher struct {
	Endpoint        string
	APIKey          string
	ReadConcurrency int
	records         RecordReader
	client          *httpclient.Client
}

// New creates a publisher
func New(endpoint, apiKey string, readConcurrency int, records RecordReader, client *httpclient.Client) *Publisher {
	if readConcurrency < 1 {
		readConcurrency = 8
	}
	return &Publisher{
		Endpoint:        endpoint,
		APIKey:          apiKey,
		ReadConcurrency: readConcurrency,
		records:         records,
		client:          client,
	}
}

// ItemPath is the batch-relative path of an item's metadata
func ItemPath(index int) string {
	return "metadata/" + strconv.Itoa(index)
}

// Publish reads back all n records and submits them as one batch
func (p *Publisher) Publish(ctx context.Context, n int) (*Result, error) {
	batch, err := p.BuildBatch(ctx, n)
	if err != nil {
		return nil, err
	}
	return p.Submit(ctx, batch)
}

// BuildBatch reads and encodes every record. Reads run with bounded
// concurrency and all of them must succeed.
func (p *Publisher) BuildBatch(ctx context.Context, n int) ([]Entry, error) {
	batch := make([]Entry, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.ReadConcurrency)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := p.records.ReadRecordFile(i)
			if err != nil {
				return models.NewStageError(models.StagePublish, i, fmt.Errorf("%w: %w", models.ErrPublish, err))
			}
			batch[i] = Entry{
				Path:    ItemPath(i),
				Content: base64.StdEncoding.EncodeToString(data),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batch, nil
}

type publishedFile struct {
	Path string `json:"path"`
}

// Submit posts the batch and derives the batch root from the response
func (p *Publisher) Submit(ctx context.Context, batch []Entry) (*Result, error) {
	size := 0
	for _, e := range batch {
		size += len(e.Content)
	}
	slog.Info("Publishing metadata batch", "entries", len(batch), "payload", humanize.Bytes(uint64(size)))

	var files []publishedFile
	headers := map[string]string{"X-API-Key": p.APIKey}
	if err := p.client.PostJSON(ctx, p.Endpoint, batch, headers, &files); err != nil {
		return nil, models.NewStageError(models.StagePublish, -1, fmt.Errorf("%w: %w", models.ErrPublish, err))
	}

	result, err := resultFrom(files, len(batch))
	if err != nil {
		return nil, models.NewStageError(models.StagePublish, -1, fmt.Errorf("%w: %w", models.ErrPublish, err))
	}

	slog.Info("Metadata published", "root", result.Root, "files", len(result.Paths))
	return result, nil
}

func resultFrom(files []publishedFile, expected int) (*Result, error) {
	if len(files) != expected {
		return nil, fmt.Errorf("response lists %d files, expected %d", len(files), expected)
	}

	result := &Result{Paths: make([]string, 0, len(files))}
	for _, f := range files {
		root, err := ExtractRoot(f.Path)
		if err != nil {
			return nil, err
		}
		if result.Root == "" {
			result.Root = root
		} else if root != result.Root {
			return nil, fmt.Errorf("response mixes batch roots %s and %s", result.Root, root)
		}
		result.Paths = append(result.Paths, f.Path)
	}
	if result.Root == "" {
		return nil, fmt.Errorf("response carries no batch root")
	}
	return result, nil
}

// ExtractRoot finds the batch root in a published path such as
// https://ipfs.moralis.io:2053/ipfs/<root>/metadata/0. It takes the segment
// after "ipfs", or otherwise the segment before "metadata".
func ExtractRoot(path string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid published path %q: %w", path, err)
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	for i, s := range segments {
		if s == "ipfs" && i+1 < len(segments) {
			return segments[i+1], nil
		}
	}
	for i, s := range segments {
		if s == "metadata" && i > 0 {
			return segments[i-1], nil
		}
	}
	return "", fmt.Errorf("no batch root in published path %q", path)
}
