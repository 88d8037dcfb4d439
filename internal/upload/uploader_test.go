package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/soundjacket/metapub/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocator struct {
	missing map[int]bool
}

func (f *fakeLocator) Locate(index int) (models.AssetFile, models.AssetFile, error) {
	if f.missing[index] {
		return models.AssetFile{}, models.AssetFile{}, fmt.Errorf("%w: no image for item %d", models.ErrAssetNotFound, index)
	}
	image := models.AssetFile{Index: index, Kind: models.KindImage, Ext: "jpeg", MIMEType: "image/jpeg", Path: fmt.Sprintf("jackets/%d.jpeg", index), Data: []byte(fmt.Sprintf("image-%d", index))}
	audio := models.AssetFile{Index: index, Kind: models.KindAudio, Ext: "mp3", MIMEType: "audio/mpeg", Path: "sounds/sound.mp3", Data: []byte("shared-audio")}
	return image, audio, nil
}

type recordingUploader struct {
	mu     sync.Mutex
	events []string
	fail   map[string]error
}

func (r *recordingUploader) Upload(ctx context.Context, file models.AssetFile) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%d/%s", file.Index, file.Kind)
	r.events = append(r.events, key)
	if err := r.fail[key]; err != nil {
		return "", err
	}
	return fmt.Sprintf("ipfs://%s/%d", file.Kind, file.Index), nil
}

func TestAllIsIndexAligned(t *testing.T) {
	up := &recordingUploader{}
	results, err := All(context.Background(), &fakeLocator{}, up, 5, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fmt.Sprintf("ipfs://image/%d", i), r.ImageURI)
		assert.Equal(t, fmt.Sprintf("ipfs://audio/%d", i), r.AudioURI)
	}
}

func TestAllSequentialCompletesEachItemFirst(t *testing.T) {
	up := &recordingUploader{}
	var observed []int
	_, err := All(context.Background(), &fakeLocator{}, up, 3, 1, func(r models.UploadResult) {
		observed = append(observed, r.Index)
	})
	require.NoError(t, err)

	require.Len(t, up.events, 6)
	for i := 0; i < 3; i++ {
		pair := up.events[2*i : 2*i+2]
		assert.ElementsMatch(t, []string{fmt.Sprintf("%d/image", i), fmt.Sprintf("%d/audio", i)}, pair)
	}
	assert.Equal(t, []int{0, 1, 2}, observed)
}

func TestAllStopsOnMissingAsset(t *testing.T) {
	up := &recordingUploader{}
	results, err := All(context.Background(), &fakeLocator{missing: map[int]bool{2: true}}, up, 5, 1, nil)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, models.ErrAssetNotFound)

	se, ok := models.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, models.StageLocate, se.Stage)
	assert.Equal(t, 2, se.Index)

	for _, e := range up.events {
		assert.NotContains(t, []string{"3/image", "4/image"}, e)
	}
}

func TestAllSurfacesUploadFailure(t *testing.T) {
	up := &recordingUploader{fail: map[string]error{"1/audio": errors.New("gateway timeout")}}
	_, err := All(context.Background(), &fakeLocator{}, up, 3, 1, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpload)

	se, ok := models.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, models.StageUpload, se.Stage)
	assert.Equal(t, 1, se.Index)
	assert.Contains(t, err.Error(), "gateway timeout")
}

type emptyUploader struct{}

func (emptyUploader) Upload(ctx context.Context, file models.AssetFile) (string, error) {
	return "", nil
}

func TestItemRejectsEmptyURI(t *testing.T) {
	image, audio, _ := (&fakeLocator{}).Locate(0)
	_, err := Item(context.Background(), emptyUploader{}, 0, image, audio)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpload)
}
