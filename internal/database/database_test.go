package database

import (
	"context"
	"nli-data/internal/core/vocab"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createCorpus(t *testing.T, db *gorm.DB) Corpus {
	t.Helper()
	corpus := Corpus{
		Id:           uuid.New(),
		Name:         "snli-50",
		Dataset:      "SNLI",
		NumSteps:     50,
		MinFreq:      5,
		Status:       CorpusQueued,
		CreationTime: time.Now().UTC(),
	}
	require.NoError(t, db.Create(&corpus).Error)
	return corpus
}

func TestMigrationsApplied(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []any{&Corpus{}, &CorpusVocab{}, &CorpusError{}, &BenchmarkRun{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}
	assert.True(t, db.Migrator().HasColumn(&BenchmarkRun{}, "workers"))

	// running the migrator again is a no-op
	require.NoError(t, GetMigrator(db).Migrate())
}

func TestUpdateCorpusStatus(t *testing.T) {
	db := setupTestDB(t)
	corpus := createCorpus(t, db)
	ctx := context.Background()

	require.NoError(t, UpdateCorpusStatus(ctx, db, corpus.Id, CorpusRunning))

	var got Corpus
	require.NoError(t, db.First(&got, "id = ?", corpus.Id).Error)
	assert.Equal(t, CorpusRunning, got.Status)
	assert.False(t, got.CompletionTime.Valid)

	require.NoError(t, UpdateCorpusStatus(ctx, db, corpus.Id, CorpusCompleted))
	require.NoError(t, db.First(&got, "id = ?", corpus.Id).Error)
	assert.Equal(t, CorpusCompleted, got.Status)
	assert.True(t, got.CompletionTime.Valid)
}

func TestUpdateCorpusCounts(t *testing.T) {
	db := setupTestDB(t)
	corpus := createCorpus(t, db)

	require.NoError(t, UpdateCorpusCounts(context.Background(), db, corpus.Id, 549367, 9824, 18678))

	var got Corpus
	require.NoError(t, db.First(&got, "id = ?", corpus.Id).Error)
	assert.Equal(t, 549367, got.TrainCount)
	assert.Equal(t, 9824, got.TestCount)
	assert.Equal(t, 18678, got.VocabSize)
}

func TestSaveCorpusError(t *testing.T) {
	db := setupTestDB(t)
	corpus := createCorpus(t, db)

	SaveCorpusError(context.Background(), db, corpus.Id, "download failed")
	SaveCorpusError(context.Background(), db, corpus.Id, "retry failed")

	var got Corpus
	require.NoError(t, db.Preload("Errors").First(&got, "id = ?", corpus.Id).Error)
	require.Len(t, got.Errors, 2)
	assert.ElementsMatch(t, []string{"download failed", "retry failed"}, []string{got.Errors[0].Error, got.Errors[1].Error})
}

func TestSaveLoadVocab(t *testing.T) {
	db := setupTestDB(t)
	corpus := createCorpus(t, db)
	ctx := context.Background()

	_, err := LoadVocab(ctx, db, corpus.Id)
	assert.ErrorIs(t, err, ErrVocabNotFound)

	v := vocab.New([][]string{{"a", "man", "a"}}, 1, []string{vocab.PadToken})
	require.NoError(t, SaveVocab(ctx, db, corpus.Id, v))

	loaded, err := LoadVocab(ctx, db, corpus.Id)
	require.NoError(t, err)
	assert.Equal(t, v.IdxToToken(), loaded.IdxToToken())
	assert.Equal(t, v.Index("man"), loaded.Index("man"))

	// saving again replaces the stored tokens
	v2 := vocab.New([][]string{{"dog"}}, 1, nil)
	require.NoError(t, SaveVocab(ctx, db, corpus.Id, v2))

	loaded, err = LoadVocab(ctx, db, corpus.Id)
	require.NoError(t, err)
	assert.Equal(t, []string{"<unk>", "dog"}, loaded.IdxToToken())
}

func TestBenchmarkRecorder(t *testing.T) {
	db := setupTestDB(t)
	corpus := createCorpus(t, db)

	rec := NewBenchmarkRecorder(db, uuid.NullUUID{UUID: corpus.Id, Valid: true}, 4)
	require.NoError(t, rec.Record("read train", 1500*time.Millisecond))

	global := NewBenchmarkRecorder(db, uuid.NullUUID{}, 0)
	require.NoError(t, global.Record("Done", time.Second))

	var runs []BenchmarkRun
	require.NoError(t, db.Where("corpus_id = ?", corpus.Id).Find(&runs).Error)
	require.Len(t, runs, 1)
	assert.Equal(t, "read train", runs[0].Description)
	assert.Equal(t, 1500*time.Millisecond, runs[0].Elapsed())
	assert.Equal(t, 4, runs[0].Workers)

	var all []BenchmarkRun
	require.NoError(t, db.Find(&all).Error)
	assert.Len(t, all, 2)
}
