package core

import (
	"context"
	"errors"
	"nli-data/internal/core/dataset"
	"nli-data/internal/core/snli"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(calls *atomic.Int32, delay time.Duration) SplitLoader {
	return func(ctx context.Context, corpusId uuid.UUID) (dataset.Split, error) {
		calls.Add(1)
		time.Sleep(delay)
		corpus := snli.Corpus{Premises: []string{"a"}, Hypotheses: []string{"b"}, Labels: []int{0}}
		return dataset.NewSplit(corpus, corpus, 4, 1), nil
	}
}

func TestDatasetCacheLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	cache := NewDatasetCache(2, countingLoader(&calls, 50*time.Millisecond))
	id := uuid.New()

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			split, err := cache.Get(context.Background(), id)
			assert.NoError(t, err)
			assert.Equal(t, 1, split.Train.Len())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestDatasetCacheEvictsLeastRecentlyUsed(t *testing.T) {
	var calls atomic.Int32
	cache := NewDatasetCache(2, countingLoader(&calls, 0))
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	_, err := cache.Get(ctx, a)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = cache.Get(ctx, b)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	// touch a so b becomes the oldest entry
	_, err = cache.Get(ctx, a)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = cache.Get(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, int32(3), calls.Load())

	_, err = cache.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	_, err = cache.Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, 2, cache.Len())
}

func TestDatasetCacheDoesNotStoreErrors(t *testing.T) {
	fail := true
	cache := NewDatasetCache(1, func(ctx context.Context, corpusId uuid.UUID) (dataset.Split, error) {
		if fail {
			return dataset.Split{}, errors.New("not ready")
		}
		return dataset.Split{}, nil
	})

	id := uuid.New()
	_, err := cache.Get(context.Background(), id)
	assert.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	fail = false
	_, err = cache.Get(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}
