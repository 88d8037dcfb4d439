package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundjacket/metapub/internal/httpclient"
	"github.com/soundjacket/metapub/internal/metadata"
	"github.com/soundjacket/metapub/internal/models"
	"github.com/soundjacket/metapub/internal/retry"
)

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{
		RateLimit: 1000,
		RateBurst: 100,
		Retry:     retry.Policy{MaxAttempts: 1, MinInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
}

// gateway serves /<root>/metadata/<i> for every index not in missing
func gateway(t *testing.T, root string, missing map[int]bool) (*httptest.Server, *sync.Map) {
	t.Helper()
	seen := &sync.Map{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := "/ipfs/" + root + "/metadata/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		i, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, prefix))
		if err != nil || missing[i] {
			http.NotFound(w, r)
			return
		}
		seen.Store(i, true)
		_ = json.NewEncoder(w).Encode(metadata.Record{
			Name:         "Sound Jacket",
			Description:  "A jacket with a song",
			Image:        fmt.Sprintf("ipfs://image-%d", i),
			AnimationURL: "ipfs://sound",
		})
	}))
	t.Cleanup(server.Close)
	return server, seen
}

func TestIndexSavesEveryItem(t *testing.T) {
	server, _ := gateway(t, "QmRoot", nil)
	store := NewMemoryStore()
	ix := NewIndexer(NewClient(server.URL+"/ipfs/", testClient()), store, 2, "run-1")

	report, err := ix.Index(context.Background(), "QmRoot", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Saved)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 3, store.Saves())

	entries := store.All()
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, i, e.Index)
		assert.Equal(t, "QmRoot", e.MetaHash)
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, fmt.Sprintf("ipfs://image-%d", i), e.Image)
		assert.Equal(t, "ipfs://sound", e.AnimationURL)
		assert.False(t, e.IndexedAt.IsZero())
	}
}

func TestIndexCollectsFetchFailures(t *testing.T) {
	server, seen := gateway(t, "QmRoot", map[int]bool{1: true, 3: true})
	store := NewMemoryStore()
	ix := NewIndexer(NewClient(server.URL+"/ipfs", testClient()), store, 4, "run-2")

	report, err := ix.Index(context.Background(), "QmRoot", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrIndexFetch))
	assert.Equal(t, 3, report.Saved)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, 1, report.Failures[0].Index)
	assert.Equal(t, 3, report.Failures[1].Index)
	assert.Equal(t, models.StageIndex, report.Failures[0].Stage)

	for _, i := range []int{0, 2, 4} {
		_, ok := seen.Load(i)
		assert.True(t, ok, "item %d should have been fetched", i)
		_, ok = store.Get("QmRoot", i)
		assert.True(t, ok, "item %d should have been saved", i)
	}
}

type failingStore struct {
	*MemoryStore
	failIndex int
}

func (s *failingStore) Save(ctx context.Context, entry models.CatalogEntry) error {
	if entry.Index == s.failIndex {
		return errors.New("write rejected")
	}
	return s.MemoryStore.Save(ctx, entry)
}

func TestIndexCollectsWriteFailures(t *testing.T) {
	server, _ := gateway(t, "QmRoot", nil)
	store := &failingStore{MemoryStore: NewMemoryStore(), failIndex: 0}
	ix := NewIndexer(NewClient(server.URL+"/ipfs", testClient()), store, 1, "run-3")

	report, err := ix.Index(context.Background(), "QmRoot", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrIndexWrite))
	assert.False(t, errors.Is(err, models.ErrIndexFetch))
	assert.Equal(t, 1, report.Saved)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 0, report.Failures[0].Index)
}

func TestIndexReportsFlushFailure(t *testing.T) {
	server, _ := gateway(t, "QmRoot", nil)

	// the catalog directory is a regular file, so the export cannot be written
	parent := filepath.Join(t.TempDir(), "output")
	require.NoError(t, os.WriteFile(parent, []byte("not a directory"), 0644))
	store := NewParquetStore(filepath.Join(parent, "_catalog.parquet"))

	ix := NewIndexer(NewClient(server.URL+"/ipfs", testClient()), store, 2, "run-4")
	report, err := ix.Index(context.Background(), "QmRoot", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrIndexWrite))
	assert.Equal(t, 0, report.Saved)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, -1, report.Failures[0].Index)
	assert.Equal(t, models.StageIndex, report.Failures[0].Stage)
}

func TestItemURL(t *testing.T) {
	c := NewClient("https://ipfs.moralis.io:2053/ipfs/", nil)
	if got := c.ItemURL("QmRoot", 7); got != "https://ipfs.moralis.io:2053/ipfs/QmRoot/metadata/7" {
		t.Errorf("ItemURL() = %q", got)
	}
}
