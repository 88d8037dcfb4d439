package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/soundjacket/metapub/internal/models"
)

// DefaultImageExtensions is the lookup order for item images
var DefaultImageExtensions = []string{"jpeg", "png", "gif"}

// Locator finds the image and audio payloads for an item
type Locator struct {
	ImageDir   string
	AudioPath  string
	Extensions []string

	audioOnce sync.Once
	audio     models.AssetFile
	audioErr  error
}

// NewLocator creates a locator over the given asset layout
func NewLocator(imageDir, audioPath string, extensions []string) *Locator {
	if len(extensions) == 0 {
		extensions = DefaultImageExtensions
	}
	return &Locator{
		ImageDir:   imageDir,
		AudioPath:  audioPath,
		Extensions: extensions,
	}
}

// Locate returns the image for the item and the shared audio file
func (l *Locator) Locate(index int) (image, audio models.AssetFile, err error) {
	image, err = l.LocateImage(index)
	if err != nil {
		return image, audio, err
	}
	audio, err = l.LocateAudio()
	if err != nil {
		return image, audio, fmt.Errorf("item %d: %w", index, err)
	}
	audio.Index = index
	return image, audio, nil
}

// LocateImage tries each extension in order; the first existing file wins
func (l *Locator) LocateImage(index int) (models.AssetFile, error) {
	id := strconv.Itoa(index)
	for _, ext := range l.Extensions {
		path := filepath.Join(l.ImageDir, id+"."+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return models.AssetFile{}, fmt.Errorf("failed to read image %s: %w", path, err)
		}

		file := newAssetFile(index, models.KindImage, path, ext, data)
		slog.Debug("Located image", "index", index, "path", path, "type", file.MIMEType, "size", humanize.Bytes(uint64(len(data))))
		return file, nil
	}

	return models.AssetFile{}, fmt.Errorf("%w: no image for item %d in %s (tried %s)",
		models.ErrAssetNotFound, index, l.ImageDir, strings.Join(l.Extensions, ", "))
}

// LocateAudio reads the shared audio file once; later calls reuse the bytes
func (l *Locator) LocateAudio() (models.AssetFile, error) {
	l.audioOnce.Do(func() {
		data, err := os.ReadFile(l.AudioPath)
		if errors.Is(err, fs.ErrNotExist) {
			l.audioErr = fmt.Errorf("%w: audio file %s", models.ErrAssetNotFound, l.AudioPath)
			return
		}
		if err != nil {
			l.audioErr = fmt.Errorf("failed to read audio %s: %w", l.AudioPath, err)
			return
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(l.AudioPath)), ".")
		l.audio = newAssetFile(0, models.KindAudio, l.AudioPath, ext, data)
		slog.Debug("Located shared audio", "path", l.AudioPath, "type", l.audio.MIMEType, "size", humanize.Bytes(uint64(len(data))))
	})
	return l.audio, l.audioErr
}

// Check locates every item without keeping the payloads and reports all misses
func (l *Locator) Check(editionSize int) error {
	var errs []error
	if _, err := l.LocateAudio(); err != nil {
		errs = append(errs, err)
	}
	for i := 0; i < editionSize; i++ {
		if _, err := l.LocateImage(i); err != nil {
			errs = append(errs, models.NewStageError(models.StageLocate, i, err))
		}
	}
	return errors.Join(errs...)
}

func newAssetFile(index int, kind models.AssetKind, path, ext string, data []byte) models.AssetFile {
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), string(kind)+"/") {
		slog.Warn("Asset content does not look like its kind", "path", path, "kind", kind, "detected", mime.String())
	}
	return models.AssetFile{
		Index:    index,
		Kind:     kind,
		Path:     path,
		Ext:      ext,
		MIMEType: mimeFor(kind, ext, mime),
		Data:     data,
	}
}

// mimeFor prefers the sniffed type and falls back to the extension
func mimeFor(kind models.AssetKind, ext string, detected *mimetype.MIME) string {
	if strings.HasPrefix(detected.String(), string(kind)+"/") {
		// drop parameters such as "; charset=binary"
		mt, _, _ := strings.Cut(detected.String(), ";")
		return mt
	}
	if ext == "mp3" {
		return "audio/mpeg"
	}
	return string(kind) + "/" + ext
}
