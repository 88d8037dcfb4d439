package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soundjacket/metapub/internal/models"
	"golang.org/x/sync/errgroup"
)

// Uploader stores a payload in content-addressed storage and returns a
// dereferenceable URI for it. It returns only once the store has acknowledged
// the content.
type Uploader interface {
	Upload(ctx context.Context, file models.AssetFile) (string, error)
}

// Locator resolves the assets of an item
type Locator interface {
	Locate(index int) (image, audio models.AssetFile, err error)
}

// Observer is notified after each item has both of its URIs
type Observer func(result models.UploadResult)

// All locates and uploads the assets of items 0..n-1.
//
// At most concurrency items are in flight; with concurrency 1 item i is fully
// uploaded before item i+1 is located. Image and audio of the same item are
// uploaded concurrently. The returned slice is index-aligned. The first
// failure cancels the remaining items and is returned as a *models.StageError.
func All(ctx context.Context, locator Locator, uploader Uploader, n, concurrency int, observe Observer) ([]models.UploadResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]models.UploadResult, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			image, audio, err := locator.Locate(i)
			if err != nil {
				return models.NewStageError(models.StageLocate, i, err)
			}

			result, err := Item(ctx, uploader, i, image, audio)
			if err != nil {
				return models.NewStageError(models.StageUpload, i, err)
			}

			slog.Info("Uploaded item assets", "index", i, "progress", fmt.Sprintf("%d/%d", i+1, n), "image", result.ImageURI, "audio", result.AudioURI)
			results[i] = result
			if observe != nil {
				observe(result)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Item uploads one item's image and audio concurrently
func Item(ctx context.Context, uploader Uploader, index int, image, audio models.AssetFile) (models.UploadResult, error) {
	result := models.UploadResult{Index: index}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		uri, err := uploadOne(ctx, uploader, image)
		result.ImageURI = uri
		return err
	})
	g.Go(func() error {
		uri, err := uploadOne(ctx, uploader, audio)
		result.AudioURI = uri
		return err
	})

	if err := g.Wait(); err != nil {
		return models.UploadResult{}, err
	}
	return result, nil
}

func uploadOne(ctx context.Context, uploader Uploader, file models.AssetFile) (string, error) {
	uri, err := uploader.Upload(ctx, file)
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: %w", models.ErrUpload, file.Kind, file.Path, err)
	}
	if uri == "" {
		return "", fmt.Errorf("%w: %s %s: empty content URI", models.ErrUpload, file.Kind, file.Path)
	}
	return uri, nil
}
