package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"nli-data/internal/core/benchmark"
	"nli-data/internal/core/datahub"
	"nli-data/internal/core/dataset"
	"nli-data/internal/core/snli"
	"nli-data/internal/database"
	"nli-data/internal/messaging"
	"nli-data/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskProcessor struct {
	db        *gorm.DB
	storage   storage.Provider
	publisher messaging.Publisher
	reciever  messaging.Reciever

	splits *SplitStore
	bucket string
}

func NewTaskProcessor(db *gorm.DB, storage storage.Provider, publisher messaging.Publisher, reciever messaging.Reciever, hub *datahub.Hub, bucket string) *TaskProcessor {
	return &TaskProcessor{
		db:        db,
		storage:   storage,
		publisher: publisher,
		reciever:  reciever,
		splits:    NewSplitStore(hub, storage, bucket),
		bucket:    bucket,
	}
}

// RequeueUnfinished publishes a prepare task for every corpus that was
// accepted but never finished, e.g. because the previous process exited while
// preparing it. Publishing blocks while the queue is full, so callers should
// start consuming first.
func RequeueUnfinished(ctx context.Context, db *gorm.DB, publisher messaging.Publisher) (int, error) {
	var corpora []database.Corpus
	if err := db.WithContext(ctx).Where("status IN ?", []string{database.CorpusQueued, database.CorpusRunning}).Order("creation_time ASC").Find(&corpora).Error; err != nil {
		return 0, fmt.Errorf("error fetching unfinished corpora: %w", err)
	}

	for i, corpus := range corpora {
		if err := publisher.PublishPrepareCorpusTask(ctx, messaging.PrepareCorpusPayload{CorpusId: corpus.Id}); err != nil {
			return i, fmt.Errorf("error publishing prepare corpus task: %w", err)
		}
	}
	return len(corpora), nil
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.publisher.Close()
	proc.reciever.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {
	case messaging.PrepareCorpusQueue:
		var payload messaging.PrepareCorpusPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling prepare corpus task", "error", err)
			if err := task.Reject(); err != nil { // discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processPrepareCorpusTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

// stage runs fn as a named benchmark and persists its timing.
func stage(corpusId uuid.UUID, rec benchmark.Recorder, description string, fn func() error) error {
	var err error
	elapsed := benchmark.Time(description, func() { err = fn() }, benchmark.WithOutput(io.Discard), benchmark.WithRecorder(rec))
	slog.Info("finished corpus stage", "corpus_id", corpusId, "stage", description, "elapsed", elapsed, "error", err)
	return err
}

func (proc *TaskProcessor) processPrepareCorpusTask(ctx context.Context, payload messaging.PrepareCorpusPayload) error {
	corpusId := payload.CorpusId

	slog.Info("processing prepare corpus task", "corpus_id", corpusId)

	var corpus database.Corpus
	if err := proc.db.WithContext(ctx).First(&corpus, "id = ?", corpusId).Error; err != nil {
		slog.Error("error fetching corpus", "corpus_id", corpusId, "error", err)
		return fmt.Errorf("error getting corpus: %w", err)
	}

	if corpus.Status == database.CorpusCompleted {
		slog.Info("corpus already prepared, skipping", "corpus_id", corpusId)
		return nil
	}

	if err := database.UpdateCorpusStatus(ctx, proc.db, corpusId, database.CorpusRunning); err != nil {
		return fmt.Errorf("error updating corpus status: %w", err)
	}

	if err := proc.prepareCorpus(ctx, corpus); err != nil {
		database.SaveCorpusError(ctx, proc.db, corpusId, err.Error())
		if err := database.UpdateCorpusStatus(ctx, proc.db, corpusId, database.CorpusFailed); err != nil {
			slog.Error("error marking corpus failed", "corpus_id", corpusId, "error", err)
		}
		return err
	}

	if err := database.UpdateCorpusStatus(ctx, proc.db, corpusId, database.CorpusCompleted); err != nil {
		return fmt.Errorf("error updating corpus status: %w", err)
	}

	return nil
}

func (proc *TaskProcessor) prepareCorpus(ctx context.Context, corpus database.Corpus) error {
	rec := database.NewBenchmarkRecorder(proc.db, uuid.NullUUID{UUID: corpus.Id, Valid: true}, 1)

	if err := stage(corpus.Id, rec, "download", func() error {
		return proc.splits.Ensure(ctx, corpus.Dataset)
	}); err != nil {
		return fmt.Errorf("error downloading dataset %s: %w", corpus.Dataset, err)
	}

	var train, test snli.Corpus
	if err := stage(corpus.Id, rec, "read splits", func() error {
		var err error
		train, test, err = proc.splits.Read(ctx, corpus.Dataset)
		return err
	}); err != nil {
		return fmt.Errorf("error reading corpus: %w", err)
	}

	var split dataset.Split
	if err := stage(corpus.Id, rec, "build datasets", func() error {
		split = dataset.NewSplit(train, test, corpus.NumSteps, corpus.MinFreq)
		return nil
	}); err != nil {
		return err
	}

	v := split.Train.Vocab()

	if err := stage(corpus.Id, rec, "save vocab", func() error {
		if err := database.SaveVocab(ctx, proc.db, corpus.Id, v); err != nil {
			return err
		}
		return proc.publishVocab(ctx, corpus.Id, v.IdxToToken())
	}); err != nil {
		return fmt.Errorf("error saving vocab: %w", err)
	}

	if err := database.UpdateCorpusCounts(ctx, proc.db, corpus.Id, split.Train.Len(), split.Test.Len(), v.Len()); err != nil {
		return err
	}

	slog.Info("prepared corpus", "corpus_id", corpus.Id, "train", split.Train.Len(), "test", split.Test.Len(), "vocab_size", v.Len())
	return nil
}

func (proc *TaskProcessor) publishVocab(ctx context.Context, corpusId uuid.UUID, tokens []string) error {
	if proc.storage == nil {
		return nil
	}

	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("error marshalling vocab: %w", err)
	}

	if err := proc.storage.CreateBucket(ctx, proc.bucket); err != nil {
		return fmt.Errorf("error creating vocab bucket: %w", err)
	}

	return proc.storage.PutObject(ctx, proc.bucket, storage.VocabKey(corpusId.String()), bytes.NewReader(data))
}

var ErrCorpusNotReady = errors.New("corpus is not prepared")

// LoadCorpusSplit rebuilds the padded datasets of a prepared corpus using its
// stored vocabulary.
func LoadCorpusSplit(ctx context.Context, db *gorm.DB, splits *SplitStore, corpusId uuid.UUID) (dataset.Split, error) {
	var corpus database.Corpus
	if err := db.WithContext(ctx).First(&corpus, "id = ?", corpusId).Error; err != nil {
		return dataset.Split{}, fmt.Errorf("error getting corpus: %w", err)
	}
	if corpus.Status != database.CorpusCompleted {
		return dataset.Split{}, fmt.Errorf("%w: %s is %s", ErrCorpusNotReady, corpusId, corpus.Status)
	}

	v, err := database.LoadVocab(ctx, db, corpusId)
	if err != nil {
		return dataset.Split{}, err
	}

	train, test, err := splits.Read(ctx, corpus.Dataset)
	if err != nil {
		return dataset.Split{}, fmt.Errorf("error reading dataset %s: %w", corpus.Dataset, err)
	}

	return dataset.Split{
		Train: dataset.NewWithMinFreq(train, corpus.NumSteps, v, corpus.MinFreq),
		Test:  dataset.NewWithMinFreq(test, corpus.NumSteps, v, corpus.MinFreq),
	}, nil
}
