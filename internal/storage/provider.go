package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

type Object struct {
	Name string
	Size int64
}

type ObjectIterator func(yield func(obj Object, err error) bool)

// Provider is an object store holding corpus archives, split snapshots and
// prepared vocabularies.
type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	GetObjectStream(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	DownloadObject(ctx context.Context, bucket, key, filename string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	// ObjectExists reports false with a nil error when the key is absent.
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)

	IterObjects(ctx context.Context, bucket, prefix string) ObjectIterator
}

const (
	ArchivePrefix = "archives"
	SplitPrefix   = "splits"
	VocabPrefix   = "vocab"
)

func ArchiveKey(filename string) string {
	return ArchivePrefix + "/" + filename
}

func SplitDatasetPrefix(datasetName string) string {
	return SplitPrefix + "/" + datasetName + "/"
}

func SplitKey(datasetName, filename string) string {
	return SplitDatasetPrefix(datasetName) + filename
}

func VocabKey(corpusId string) string {
	return VocabPrefix + "/" + corpusId + ".json"
}
