package dataset_test

import (
	"fmt"
	"nli-data/internal/core/dataset"
	"nli-data/internal/core/snli"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniqueDataset gives every row a distinct first premise token so rows can be
// identified after shuffling.
func uniqueDataset(n, numSteps int) *dataset.Dataset {
	var c snli.Corpus
	for i := range n {
		c.Premises = append(c.Premises, fmt.Sprintf("row%d the man walks", i))
		c.Hypotheses = append(c.Hypotheses, "a person moves")
		c.Labels = append(c.Labels, i%3)
	}
	return dataset.NewWithMinFreq(c, numSteps, nil, 1)
}

func collect(t *testing.T, loader *dataset.Loader) []dataset.Batch {
	t.Helper()
	var batches []dataset.Batch
	for b := range loader.Batches() {
		batches = append(batches, b)
	}
	return batches
}

func rowIds(batches []dataset.Batch) []int {
	var ids []int
	for _, b := range batches {
		for _, p := range b.Premises {
			ids = append(ids, p[0])
		}
	}
	return ids
}

func TestNewLoaderValidation(t *testing.T) {
	ds := uniqueDataset(3, 4)
	_, err := dataset.NewLoader(ds, dataset.LoaderOptions{BatchSize: 0})
	assert.Error(t, err)

	loader, err := dataset.NewLoader(ds, dataset.LoaderOptions{BatchSize: 2})
	require.NoError(t, err)
	assert.Same(t, ds, loader.Dataset())
	assert.Equal(t, 2, loader.BatchSize())
}

func TestBatchShapes(t *testing.T) {
	ds := uniqueDataset(300, 50)
	loader, err := dataset.NewLoader(ds, dataset.LoaderOptions{BatchSize: 128})
	require.NoError(t, err)

	batches := collect(t, loader)
	require.Len(t, batches, 3)
	assert.Equal(t, 3, loader.NumBatches())

	first := batches[0]
	assert.Equal(t, [2]int{128, 50}, first.PremiseShape())
	assert.Equal(t, [2]int{128, 50}, first.HypothesisShape())
	assert.Equal(t, [2]int{128, 1}, first.LabelShape())
	assert.Equal(t, 128, first.Size())

	last := batches[2]
	assert.Equal(t, [2]int{44, 50}, last.PremiseShape())
	assert.Equal(t, [2]int{44, 1}, last.LabelShape())

	assert.Equal(t, [2]int{0, 0}, dataset.Batch{}.PremiseShape())
}

func TestBatchesInOrder(t *testing.T) {
	ds := uniqueDataset(10, 5)
	loader, err := dataset.NewLoader(ds, dataset.LoaderOptions{BatchSize: 4})
	require.NoError(t, err)

	batches := collect(t, loader)
	require.Len(t, batches, 3)

	var labels []int
	for _, b := range batches {
		labels = append(labels, b.Labels...)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}, labels)

	for i := range ds.Len() {
		item, err := ds.Get(i)
		require.NoError(t, err)
		assert.Equal(t, item.Premise, batches[i/4].Premises[i%4])
		assert.Equal(t, item.Hypothesis, batches[i/4].Hypotheses[i%4])
	}
}

func TestDropLast(t *testing.T) {
	ds := uniqueDataset(10, 5)
	loader, err := dataset.NewLoader(ds, dataset.LoaderOptions{BatchSize: 4, DropLast: true})
	require.NoError(t, err)

	batches := collect(t, loader)
	assert.Len(t, batches, 2)
	assert.Equal(t, 2, loader.NumBatches())
	for _, b := range batches {
		assert.Equal(t, 4, b.Size())
	}
}

func TestShuffle(t *testing.T) {
	ds := uniqueDataset(200, 5)
	opts := dataset.LoaderOptions{BatchSize: 16, Shuffle: true, Seed: 42}

	a, err := dataset.NewLoader(ds, opts)
	require.NoError(t, err)
	b, err := dataset.NewLoader(ds, opts)
	require.NoError(t, err)

	firstPass := rowIds(collect(t, a))
	assert.Equal(t, firstPass, rowIds(collect(t, b)))

	sorted := slices.Clone(firstPass)
	slices.Sort(sorted)
	assert.Equal(t, rowIds(collect(t, mustLoader(t, ds, 16))), sorted)
	assert.NotEqual(t, sorted, firstPass)

	secondPass := rowIds(collect(t, a))
	assert.NotEqual(t, firstPass, secondPass)
	assert.ElementsMatch(t, firstPass, secondPass)
}

func mustLoader(t *testing.T, ds *dataset.Dataset, batchSize int) *dataset.Loader {
	t.Helper()
	loader, err := dataset.NewLoader(ds, dataset.LoaderOptions{BatchSize: batchSize})
	require.NoError(t, err)
	return loader
}

func TestParallelMatchesSequential(t *testing.T) {
	ds := uniqueDataset(500, 8)

	for _, shuffle := range []bool{false, true} {
		seq, err := dataset.NewLoader(ds, dataset.LoaderOptions{BatchSize: 7, Shuffle: shuffle, Seed: 3})
		require.NoError(t, err)
		par, err := dataset.NewLoader(ds, dataset.LoaderOptions{BatchSize: 7, Shuffle: shuffle, Seed: 3, Workers: 4})
		require.NoError(t, err)

		assert.Equal(t, collect(t, seq), collect(t, par))
	}
}

func TestParallelStopsEarly(t *testing.T) {
	ds := uniqueDataset(100, 4)
	loader, err := dataset.NewLoader(ds, dataset.LoaderOptions{BatchSize: 3, Workers: 2})
	require.NoError(t, err)

	count := 0
	for range loader.Batches() {
		count++
		if count == 5 {
			break
		}
	}
	assert.Equal(t, 5, count)
}
