package api_test

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	backend "nli-data/internal/api"
	"nli-data/internal/core"
	"nli-data/internal/core/datahub"
	"nli-data/internal/core/dataset"
	"nli-data/internal/core/snli"
	"nli-data/internal/core/vocab"
	"nli-data/internal/database"
	"nli-data/internal/messaging"
	"nli-data/pkg/api"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

var (
	trainCorpus = snli.Corpus{
		Premises:   []string{"a dog runs", "a cat sleeps", "a man walks"},
		Hypotheses: []string{"an animal moves", "a cat rests", "a person is outside"},
		Labels:     []int{snli.Entailment, snli.Entailment, snli.Neutral},
	}
	testCorpus = snli.Corpus{
		Premises:   []string{"a dog sleeps"},
		Hypotheses: []string{"a zebra runs"},
		Labels:     []int{snli.Contradiction},
	}
)

type testService struct {
	router http.Handler
	db     *gorm.DB
	queue  *messaging.InMemoryQueue
	split  dataset.Split
}

func newTestService(t *testing.T, db *gorm.DB) testService {
	split := dataset.NewSplit(trainCorpus, testCorpus, 6, 1)
	cache := core.NewDatasetCache(2, func(ctx context.Context, corpusId uuid.UUID) (dataset.Split, error) {
		return split, nil
	})

	hub := datahub.NewHub(t.TempDir())
	queue := messaging.NewInMemoryQueue()

	service := backend.NewBackendService(db, queue, hub, cache)
	router := chi.NewRouter()
	service.AddRoutes(router)

	return testService{router: router, db: db, queue: queue, split: split}
}

func (s testService) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func completedCorpus(t *testing.T, db *gorm.DB, v *vocab.Vocab) database.Corpus {
	corpus := database.Corpus{
		Id:             uuid.New(),
		Name:           "ready",
		Dataset:        "SNLI",
		NumSteps:       6,
		MinFreq:        1,
		Status:         database.CorpusCompleted,
		CreationTime:   time.Now().UTC(),
		CompletionTime: sql.NullTime{Time: time.Now().UTC(), Valid: true},
		TrainCount:     3,
		TestCount:      1,
		VocabSize:      v.Len(),
	}
	require.NoError(t, db.Create(&corpus).Error)
	return corpus
}

func TestHealth(t *testing.T) {
	s := newTestService(t, createDB(t))
	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateCorpus(t *testing.T) {
	s := newTestService(t, createDB(t))

	rec := s.do(t, http.MethodPost, "/corpora", api.CreateCorpusRequest{Name: "snli-default"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[api.CreateCorpusResponse](t, rec)

	var corpus database.Corpus
	require.NoError(t, s.db.First(&corpus, "id = ?", res.CorpusId).Error)
	assert.Equal(t, "snli-default", corpus.Name)
	assert.Equal(t, "SNLI", corpus.Dataset)
	assert.Equal(t, 50, corpus.NumSteps)
	assert.Equal(t, 5, corpus.MinFreq)
	assert.Equal(t, database.CorpusQueued, corpus.Status)

	task := <-s.queue.Tasks()
	assert.Equal(t, messaging.PrepareCorpusQueue, task.Type())
	var payload messaging.PrepareCorpusPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, res.CorpusId, payload.CorpusId)
}

func TestCreateCorpusValidation(t *testing.T) {
	s := newTestService(t, createDB(t))

	rec := s.do(t, http.MethodPost, "/corpora", api.CreateCorpusRequest{Name: "bad name!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/corpora", api.CreateCorpusRequest{Name: "mnli", Dataset: "MNLI"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/corpora", api.CreateCorpusRequest{Name: "neg", NumSteps: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/corpora", bytes.NewReader([]byte("{")))
	raw := httptest.NewRecorder()
	s.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	var count int64
	require.NoError(t, s.db.Model(&database.Corpus{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestListAndGetCorpus(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	now := time.Now().UTC()
	db := createDB(t,
		&database.Corpus{Id: id1, Name: "first", Dataset: "SNLI", NumSteps: 50, MinFreq: 5, Status: database.CorpusQueued, CreationTime: now.Add(-time.Minute)},
		&database.Corpus{Id: id2, Name: "second", Dataset: "SNLI", NumSteps: 20, MinFreq: 1, Status: database.CorpusFailed, CreationTime: now},
		&database.CorpusError{CorpusId: id2, ErrorId: uuid.New(), Error: "download failed", Timestamp: now},
	)
	s := newTestService(t, db)

	rec := s.do(t, http.MethodGet, "/corpora", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	corpora := decode[[]api.Corpus](t, rec)
	require.Len(t, corpora, 2)
	assert.Equal(t, id2, corpora[0].Id)
	assert.Equal(t, id1, corpora[1].Id)

	rec = s.do(t, http.MethodGet, "/corpora/"+id2.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	corpus := decode[api.Corpus](t, rec)
	assert.Equal(t, "second", corpus.Name)
	assert.Equal(t, 20, corpus.NumSteps)
	assert.Equal(t, database.CorpusFailed, corpus.Status)
	assert.Equal(t, []string{"download failed"}, corpus.Errors)
	assert.Nil(t, corpus.CompletionTime)

	rec = s.do(t, http.MethodGet, "/corpora/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/corpora/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetVocab(t *testing.T) {
	db := createDB(t)
	s := newTestService(t, db)
	v := s.split.Train.Vocab()
	corpus := completedCorpus(t, db, v)
	require.NoError(t, database.SaveVocab(context.Background(), db, corpus.Id, v))

	rec := s.do(t, http.MethodGet, "/corpora/"+corpus.Id.String()+"/vocab", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[api.VocabResponse](t, rec)
	assert.Equal(t, v.Len(), res.Total)
	assert.Equal(t, v.IdxToToken(), res.Tokens)

	rec = s.do(t, http.MethodGet, "/corpora/"+corpus.Id.String()+"/vocab?offset=1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[api.VocabResponse](t, rec)
	assert.Equal(t, 1, res.Offset)
	assert.Equal(t, []string{"<pad>", "a"}, res.Tokens)

	rec = s.do(t, http.MethodGet, "/corpora/"+corpus.Id.String()+"/vocab?offset=1000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[api.VocabResponse](t, rec).Tokens)

	rec = s.do(t, http.MethodGet, "/corpora/"+corpus.Id.String()+"/vocab?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	queued := database.Corpus{Id: uuid.New(), Name: "queued", Dataset: "SNLI", Status: database.CorpusQueued, CreationTime: time.Now()}
	require.NoError(t, db.Create(&queued).Error)
	rec = s.do(t, http.MethodGet, "/corpora/"+queued.Id.String()+"/vocab", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetExample(t *testing.T) {
	db := createDB(t)
	s := newTestService(t, db)
	v := s.split.Train.Vocab()
	corpus := completedCorpus(t, db, v)
	base := "/corpora/" + corpus.Id.String() + "/examples/"

	rec := s.do(t, http.MethodGet, base+"0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	example := decode[api.Example](t, rec)
	assert.Equal(t, "train", example.Split)
	assert.Len(t, example.Premise, 6)
	assert.Equal(t, []string{"a", "dog", "runs", "<pad>", "<pad>", "<pad>"}, example.PremiseTokens)
	assert.Equal(t, snli.Entailment, example.Label)
	assert.Equal(t, "entailment", example.LabelName)

	rec = s.do(t, http.MethodGet, base+"0?split=test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	example = decode[api.Example](t, rec)
	assert.Equal(t, "test", example.Split)
	assert.Equal(t, []string{"a", "<unk>", "runs", "<pad>", "<pad>", "<pad>"}, example.HypothesisTokens)
	assert.Equal(t, "contradiction", example.LabelName)

	rec = s.do(t, http.MethodGet, base+"3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, base+"abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, base+"0?split=dev", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), snli.ErrNoSuchSplit.Error())
}

func readStream(t *testing.T, rec *httptest.ResponseRecorder) []backend.StreamMessage {
	var msgs []backend.StreamMessage
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var msg backend.StreamMessage
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg))
		msgs = append(msgs, msg)
	}
	require.NoError(t, scanner.Err())
	return msgs
}

func TestStreamBatches(t *testing.T) {
	db := createDB(t)
	s := newTestService(t, db)
	corpus := completedCorpus(t, db, s.split.Train.Vocab())
	base := "/corpora/" + corpus.Id.String() + "/batches"

	rec := s.do(t, http.MethodGet, base+"?batch_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := readStream(t, rec)
	require.Len(t, msgs, 2)

	var batches []api.Batch
	for _, msg := range msgs {
		assert.Equal(t, http.StatusOK, msg.Code)
		data, err := json.Marshal(msg.Data)
		require.NoError(t, err)
		var batch api.Batch
		require.NoError(t, json.Unmarshal(data, &batch))
		batches = append(batches, batch)
	}
	assert.Equal(t, 0, batches[0].Index)
	assert.Len(t, batches[0].Premises, 2)
	assert.Len(t, batches[0].Premises[0], 6)
	assert.Equal(t, []int{snli.Entailment, snli.Entailment}, batches[0].Labels)
	assert.Equal(t, []int{snli.Neutral}, batches[1].Labels)

	rec = s.do(t, http.MethodGet, base+"?batch_size=2&drop_last=true&shuffle=true&seed=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, readStream(t, rec), 1)

	rec = s.do(t, http.MethodGet, base+"?split=test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, readStream(t, rec), 1)

	rec = s.do(t, http.MethodGet, base+"?batch_size=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, base+"?unknown=1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBenchmarks(t *testing.T) {
	db := createDB(t)
	s := newTestService(t, db)
	corpusId := uuid.New()

	require.NoError(t, database.NewBenchmarkRecorder(db, uuid.NullUUID{UUID: corpusId, Valid: true}, 1).Record("download", 2*time.Second))
	require.NoError(t, database.NewBenchmarkRecorder(db, uuid.NullUUID{}, 4).Record("Done", time.Second))

	rec := s.do(t, http.MethodGet, "/benchmarks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.BenchmarkRun](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/benchmarks?corpus_id="+corpusId.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]api.BenchmarkRun](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "download", runs[0].Description)
	assert.InDelta(t, 2.0, runs[0].Seconds, 1e-9)
	require.NotNil(t, runs[0].CorpusId)
	assert.Equal(t, corpusId, *runs[0].CorpusId)

	rec = s.do(t, http.MethodGet, "/benchmarks?corpus_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
