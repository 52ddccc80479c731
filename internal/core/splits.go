package core

import (
	"context"
	"fmt"
	"log/slog"
	"nli-data/internal/core/datahub"
	"nli-data/internal/core/snli"
	"nli-data/internal/storage"
	"os"
	"path/filepath"
)

var corpusSplits = []string{snli.SplitTrain, snli.SplitTest}

// SplitStore serves the train and test files of a dataset. With an object
// store configured, the files are copied there once after the first download
// and every later read streams the stored copy, so the worker and the API see
// identical rows. Without one it reads the hub's extracted directory.
type SplitStore struct {
	hub     *datahub.Hub
	storage storage.Provider
	bucket  string
}

func NewSplitStore(hub *datahub.Hub, provider storage.Provider, bucket string) *SplitStore {
	return &SplitStore{hub: hub, storage: provider, bucket: bucket}
}

func (s *SplitStore) missingSplits(ctx context.Context, datasetName string) ([]string, error) {
	stored := map[string]bool{}
	for obj, err := range s.storage.IterObjects(ctx, s.bucket, storage.SplitDatasetPrefix(datasetName)) {
		if err != nil {
			return nil, err
		}
		stored[obj.Name] = true
	}

	var missing []string
	for _, split := range corpusSplits {
		file, err := snli.SplitFile(split)
		if err != nil {
			return nil, err
		}
		if !stored[storage.SplitKey(datasetName, file)] {
			missing = append(missing, file)
		}
	}
	return missing, nil
}

func (s *SplitStore) upload(ctx context.Context, datasetName, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening split file: %w", err)
	}
	defer file.Close()

	key := storage.SplitKey(datasetName, filepath.Base(path))
	if err := s.storage.PutObject(ctx, s.bucket, key, file); err != nil {
		return fmt.Errorf("error uploading split %s: %w", key, err)
	}
	slog.Info("stored dataset split", "dataset", datasetName, "bucket", s.bucket, "key", key)
	return nil
}

// Ensure fetches the dataset and stores any split that is not yet in the
// object store.
func (s *SplitStore) Ensure(ctx context.Context, datasetName string) error {
	if s.storage == nil {
		_, err := s.hub.DownloadExtract(ctx, datasetName)
		return err
	}

	if err := s.storage.CreateBucket(ctx, s.bucket); err != nil {
		return fmt.Errorf("error creating bucket %s: %w", s.bucket, err)
	}

	missing, err := s.missingSplits(ctx, datasetName)
	if err != nil {
		return fmt.Errorf("error listing stored splits: %w", err)
	}
	if len(missing) == 0 {
		return nil
	}

	dataDir, err := s.hub.DownloadExtract(ctx, datasetName)
	if err != nil {
		return err
	}

	for _, file := range missing {
		if err := s.upload(ctx, datasetName, filepath.Join(dataDir, file)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SplitStore) readStored(ctx context.Context, datasetName, split string) (snli.Corpus, error) {
	file, err := snli.SplitFile(split)
	if err != nil {
		return snli.Corpus{}, err
	}

	key := storage.SplitKey(datasetName, file)
	stream, err := s.storage.GetObjectStream(ctx, s.bucket, key)
	if err != nil {
		return snli.Corpus{}, err
	}
	defer stream.Close()

	corpus, err := snli.ReadSNLIFrom(stream)
	if err != nil {
		return snli.Corpus{}, fmt.Errorf("error reading split %s: %w", key, err)
	}
	slog.Info("read stored dataset split", "dataset", datasetName, "key", key, "examples", corpus.Len())
	return corpus, nil
}

// Read returns the train and test corpora of the dataset, fetching them first
// when needed.
func (s *SplitStore) Read(ctx context.Context, datasetName string) (snli.Corpus, snli.Corpus, error) {
	if err := s.Ensure(ctx, datasetName); err != nil {
		return snli.Corpus{}, snli.Corpus{}, err
	}

	if s.storage == nil {
		dataDir, err := s.hub.DownloadExtract(ctx, datasetName)
		if err != nil {
			return snli.Corpus{}, snli.Corpus{}, err
		}
		train, err := snli.ReadSNLI(dataDir, true)
		if err != nil {
			return snli.Corpus{}, snli.Corpus{}, err
		}
		test, err := snli.ReadSNLI(dataDir, false)
		if err != nil {
			return snli.Corpus{}, snli.Corpus{}, err
		}
		return train, test, nil
	}

	train, err := s.readStored(ctx, datasetName, snli.SplitTrain)
	if err != nil {
		return snli.Corpus{}, snli.Corpus{}, err
	}
	test, err := s.readStored(ctx, datasetName, snli.SplitTest)
	if err != nil {
		return snli.Corpus{}, snli.Corpus{}, err
	}
	return train, test, nil
}
