package dataset

import (
	"context"
	"fmt"
	"math/rand/v2"
	"nli-data/internal/core/datahub"
	"nli-data/internal/core/snli"
	"nli-data/internal/core/vocab"
)

const SNLIDatasetName = "SNLI"

type PipelineOptions struct {
	BatchSize int
	NumSteps  int
	MinFreq   int
	Workers   int
	// Seed for the training shuffle. Zero picks a random seed.
	Seed uint64
	Read snli.ReadOptions
}

// LoadSplit reads the train and test files under dataDir and builds both
// datasets on the training vocabulary.
func LoadSplit(dataDir string, numSteps, minFreq int, readOpts snli.ReadOptions) (Split, error) {
	train, err := snli.ReadSNLIWithOptions(dataDir, true, readOpts)
	if err != nil {
		return Split{}, fmt.Errorf("error reading train split: %w", err)
	}
	test, err := snli.ReadSNLIWithOptions(dataDir, false, readOpts)
	if err != nil {
		return Split{}, fmt.Errorf("error reading test split: %w", err)
	}
	return NewSplit(train, test, numSteps, minFreq), nil
}

// Loaders wraps a split in a shuffling train loader and an ordered test
// loader.
func (s Split) Loaders(batchSize int, seed uint64, workers int) (*Loader, *Loader, error) {
	train, err := NewLoader(s.Train, LoaderOptions{BatchSize: batchSize, Shuffle: true, Seed: seed, Workers: workers})
	if err != nil {
		return nil, nil, err
	}
	test, err := NewLoader(s.Test, LoaderOptions{BatchSize: batchSize, Workers: workers})
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

// LoadDataSNLI downloads the SNLI corpus and returns the train and test
// loaders with the vocabulary built on the training split.
func LoadDataSNLI(ctx context.Context, hub *datahub.Hub, batchSize, numSteps int) (*Loader, *Loader, *vocab.Vocab, error) {
	return LoadDataSNLIWithOptions(ctx, hub, PipelineOptions{
		BatchSize: batchSize,
		NumSteps:  numSteps,
		MinFreq:   DefaultMinFreq,
	})
}

func LoadDataSNLIWithOptions(ctx context.Context, hub *datahub.Hub, opts PipelineOptions) (*Loader, *Loader, *vocab.Vocab, error) {
	dataDir, err := hub.DownloadExtract(ctx, SNLIDatasetName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error fetching %s: %w", SNLIDatasetName, err)
	}

	split, err := LoadSplit(dataDir, opts.NumSteps, opts.MinFreq, opts.Read)
	if err != nil {
		return nil, nil, nil, err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	train, test, err := split.Loaders(opts.BatchSize, seed, opts.Workers)
	if err != nil {
		return nil, nil, nil, err
	}
	return train, test, split.Train.Vocab(), nil
}
