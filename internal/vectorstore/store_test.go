package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint-rag/internal/config"
	"complaint-rag/internal/models"
)

func chromemConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "vector_store")
	cfg.Store.Collection = "complaints_test"
	return cfg
}

func entries(n int) []models.Entry {
	out := make([]models.Entry, n)
	for i := range out {
		out[i] = models.Entry{
			ID:        fmt.Sprintf("chunk_%d", i),
			Content:   fmt.Sprintf("complaint text %d", i),
			Embedding: []float32{float32(i + 1), 1, float32(n - i)},
			Metadata:  map[string]string{models.MetaProduct: "Credit card"},
		}
	}
	return out
}

func fromSlice(all []models.Entry) BatchFunc {
	return func(_ context.Context, start, end int) ([]models.Entry, error) {
		return all[start:end], nil
	}
}

func TestOpen_NotFound(t *testing.T) {
	cfg := chromemConfig(t)

	_, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, models.ErrStoreNotFound)
	assert.NoDirExists(t, cfg.Store.Path)
}

func TestOpen_UnknownCollection(t *testing.T) {
	ctx := context.Background()
	cfg := chromemConfig(t)

	s, err := Create(ctx, cfg, 3)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, entries(2)))
	require.NoError(t, s.Close())

	cfg.Store.Collection = "complaints_other"
	_, err = Open(ctx, cfg)
	assert.ErrorIs(t, err, models.ErrStoreNotFound)
}

func TestCreateThenOpen(t *testing.T) {
	ctx := context.Background()
	cfg := chromemConfig(t)

	s, err := Create(ctx, cfg, 3)
	require.NoError(t, err)
	added, err := AddBatched(ctx, s, 7, 3, fromSlice(entries(7)))
	require.NoError(t, err)
	assert.Equal(t, 7, added)
	require.NoError(t, s.Close())

	opened, err := Open(ctx, cfg)
	require.NoError(t, err)
	count, err := opened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Equal(t, 3, opened.Schema().Dimension)
	assert.Equal(t, models.MetricCosine, opened.Schema().Metric)

	_, ok := opened.(Backup)
	assert.True(t, ok)
}

func TestAddBatched_BatchSizeDoesNotChangeContent(t *testing.T) {
	ctx := context.Background()
	query := []float32{2, 1, 5}

	var baseline []models.QueryResult
	for _, batch := range []int{1, 2, 5, 100} {
		cfg := chromemConfig(t)
		s, err := Create(ctx, cfg, 3)
		require.NoError(t, err)
		_, err = AddBatched(ctx, s, 5, batch, fromSlice(entries(5)))
		require.NoError(t, err)

		results, err := s.Query(ctx, query, 5, nil)
		require.NoError(t, err)
		require.Len(t, results, 5)
		if baseline == nil {
			baseline = results
			continue
		}
		for i := range results {
			assert.Equal(t, baseline[i].ID, results[i].ID, "batch size %d", batch)
			assert.Equal(t, baseline[i].Seq, results[i].Seq, "batch size %d", batch)
		}
	}
}

func TestAddBatched_InvalidBatch(t *testing.T) {
	cfg := chromemConfig(t)
	s, err := Create(context.Background(), cfg, 3)
	require.NoError(t, err)
	_, err = AddBatched(context.Background(), s, 1, 0, fromSlice(entries(1)))
	assert.Error(t, err)
}

func TestAddBatched_KeepsBatchesBeforeFailure(t *testing.T) {
	ctx := context.Background()
	cfg := chromemConfig(t)
	s, err := Create(ctx, cfg, 3)
	require.NoError(t, err)

	all := entries(5)
	boom := errors.New("embedding failed")
	var calls int
	added, err := AddBatched(ctx, s, 5, 2, func(ctx context.Context, start, end int) ([]models.Entry, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return all[start:end], nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, added)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	cfg := chromemConfig(t)

	require.NoError(t, Reset(ctx, cfg), "missing store is not an error")

	s, err := Create(ctx, cfg, 3)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, entries(3)))
	require.NoError(t, s.Close())

	require.NoError(t, Reset(ctx, cfg))
	_, err = Open(ctx, cfg)
	assert.ErrorIs(t, err, models.ErrStoreNotFound)

	s, err = Create(ctx, cfg, 4)
	require.NoError(t, err)
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 4, s.Schema().Dimension)
}

func TestCreate_UnknownBackend(t *testing.T) {
	cfg := chromemConfig(t)
	cfg.Store.Backend = "faiss"
	_, err := Create(context.Background(), cfg, 3)
	assert.Error(t, err)
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}
