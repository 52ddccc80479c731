package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"nli-data/internal/core/benchmark"
	"nli-data/internal/core/vocab"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrVocabNotFound = errors.New("vocab not found")

func UpdateCorpusStatus(ctx context.Context, txn *gorm.DB, corpusId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == CorpusCompleted || status == CorpusFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&Corpus{Id: corpusId}).Updates(updates).Error; err != nil {
		slog.Error("error updating corpus status", "corpus_id", corpusId, "status", status, "error", err)
		return err
	}
	return nil
}

func UpdateCorpusCounts(ctx context.Context, txn *gorm.DB, corpusId uuid.UUID, trainCount, testCount, vocabSize int) error {
	err := txn.WithContext(ctx).Model(&Corpus{Id: corpusId}).Updates(map[string]any{
		"train_count": trainCount,
		"test_count":  testCount,
		"vocab_size":  vocabSize,
	}).Error
	if err != nil {
		return fmt.Errorf("error updating corpus counts: %w", err)
	}
	return nil
}

func SaveCorpusError(ctx context.Context, txn *gorm.DB, corpusId uuid.UUID, errorMessage string) {
	corpusError := CorpusError{
		CorpusId:  corpusId,
		ErrorId:   uuid.New(),
		Error:     errorMessage,
		Timestamp: time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Create(&corpusError).Error; err != nil {
		slog.Error("error saving corpus error", "corpus_id", corpusId, "error", err)
	}
}

// SaveVocab stores the vocabulary of a corpus, replacing any previous one.
func SaveVocab(ctx context.Context, db *gorm.DB, corpusId uuid.UUID, v *vocab.Vocab) error {
	tokens, err := json.Marshal(v.IdxToToken())
	if err != nil {
		return fmt.Errorf("could not marshal vocab: %w", err)
	}

	row := CorpusVocab{CorpusId: corpusId, Tokens: tokens}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "corpus_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tokens"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save vocab: %w", err)
	}
	return nil
}

func LoadVocab(ctx context.Context, db *gorm.DB, corpusId uuid.UUID) (*vocab.Vocab, error) {
	var row CorpusVocab
	if err := db.WithContext(ctx).First(&row, "corpus_id = ?", corpusId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: corpus %s", ErrVocabNotFound, corpusId)
		}
		return nil, fmt.Errorf("could not query vocab: %w", err)
	}

	var tokens []string
	if err := json.Unmarshal(row.Tokens, &tokens); err != nil {
		return nil, fmt.Errorf("invalid vocab JSON: %w", err)
	}
	return vocab.FromTokens(tokens)
}

// BenchmarkRecorder persists every finished benchmark as a BenchmarkRun.
type BenchmarkRecorder struct {
	db       *gorm.DB
	corpusId uuid.NullUUID
	workers  int
}

var _ benchmark.Recorder = (*BenchmarkRecorder)(nil)

func NewBenchmarkRecorder(db *gorm.DB, corpusId uuid.NullUUID, workers int) *BenchmarkRecorder {
	return &BenchmarkRecorder{db: db, corpusId: corpusId, workers: max(workers, 1)}
}

func (r *BenchmarkRecorder) Record(description string, elapsed time.Duration) error {
	run := BenchmarkRun{
		Id:          uuid.New(),
		CorpusId:    r.corpusId,
		Description: description,
		ElapsedNs:   elapsed.Nanoseconds(),
		Workers:     r.workers,
		Timestamp:   time.Now().UTC(),
	}
	if err := r.db.Create(&run).Error; err != nil {
		return fmt.Errorf("failed to save benchmark run: %w", err)
	}
	return nil
}
