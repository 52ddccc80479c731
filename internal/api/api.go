package api

import (
	"errors"
	"log/slog"
	"nli-data/internal/core"
	"nli-data/internal/core/datahub"
	"nli-data/internal/core/dataset"
	"nli-data/internal/core/snli"
	"nli-data/internal/database"
	"nli-data/internal/messaging"
	"nli-data/pkg/api"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultVocabLimit = 100
	maxVocabLimit     = 10000
	defaultBatchSize  = 64
	maxBatchSize      = 4096
)

type BackendService struct {
	db        *gorm.DB
	publisher messaging.Publisher
	hub       *datahub.Hub
	cache     *core.DatasetCache
}

func NewBackendService(db *gorm.DB, publisher messaging.Publisher, hub *datahub.Hub, cache *core.DatasetCache) *BackendService {
	return &BackendService{db: db, publisher: publisher, hub: hub, cache: cache}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/corpora", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateCorpus))
		r.Get("/", RestHandler(s.ListCorpora))
		r.Route("/{corpus_id}", func(r chi.Router) {
			r.Get("/", RestHandler(s.GetCorpus))
			r.Get("/vocab", RestHandler(s.GetVocab))
			r.Get("/examples/{index}", RestHandler(s.GetExample))
			r.Get("/batches", RestStreamHandler(s.StreamBatches))
		})
	})

	r.Get("/benchmarks", RestHandler(s.ListBenchmarks))
}

func (s *BackendService) CreateCorpus(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateCorpusRequest](r)
	if err != nil {
		return nil, err
	}

	if err := validateName(req.Name); err != nil {
		return nil, err
	}

	if req.Dataset == "" {
		req.Dataset = dataset.SNLIDatasetName
	}
	if _, err := s.hub.Entry(req.Dataset); err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "unknown dataset '%s'", req.Dataset)
	}

	if req.NumSteps == 0 {
		req.NumSteps = dataset.DefaultNumSteps
	}
	if req.MinFreq == 0 {
		req.MinFreq = dataset.DefaultMinFreq
	}
	if req.NumSteps < 0 || req.MinFreq < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "NumSteps and MinFreq must not be negative")
	}

	ctx := r.Context()

	corpus := database.Corpus{
		Id:           uuid.New(),
		Name:         req.Name,
		Dataset:      req.Dataset,
		NumSteps:     req.NumSteps,
		MinFreq:      req.MinFreq,
		Status:       database.CorpusQueued,
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&corpus).Error; err != nil {
		slog.Error("error creating corpus", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create corpus entry")
	}

	if err := s.publisher.PublishPrepareCorpusTask(ctx, messaging.PrepareCorpusPayload{CorpusId: corpus.Id}); err != nil {
		slog.Error("error publishing prepare corpus task", "corpus_id", corpus.Id, "error", err)
		database.SaveCorpusError(ctx, s.db, corpus.Id, "unable to queue corpus preparation")
		database.UpdateCorpusStatus(ctx, s.db, corpus.Id, database.CorpusFailed) //nolint:errcheck
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue corpus preparation")
	}

	slog.Info("submitted corpus for preparation", "corpus_id", corpus.Id, "dataset", corpus.Dataset)

	return api.CreateCorpusResponse{CorpusId: corpus.Id}, nil
}

func (s *BackendService) ListCorpora(r *http.Request) (any, error) {
	var corpora []database.Corpus
	if err := s.db.WithContext(r.Context()).Order("creation_time DESC").Find(&corpora).Error; err != nil {
		slog.Error("error listing corpora", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving corpus records")
	}
	return convertCorpora(corpora), nil
}

func (s *BackendService) getCorpus(r *http.Request, preload ...string) (database.Corpus, error) {
	corpusId, err := URLParamUUID(r, "corpus_id")
	if err != nil {
		return database.Corpus{}, err
	}

	query := s.db.WithContext(r.Context())
	for _, p := range preload {
		query = query.Preload(p)
	}

	var corpus database.Corpus
	if err := query.First(&corpus, "id = ?", corpusId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Corpus{}, CodedErrorf(http.StatusNotFound, "corpus not found")
		}
		slog.Error("error getting corpus", "corpus_id", corpusId, "error", err)
		return database.Corpus{}, CodedErrorf(http.StatusInternalServerError, "error retrieving corpus record")
	}
	return corpus, nil
}

func requireCompleted(corpus database.Corpus) error {
	if corpus.Status != database.CorpusCompleted {
		return CodedErrorf(http.StatusUnprocessableEntity, "corpus is not ready: corpus has status %s", corpus.Status)
	}
	return nil
}

func (s *BackendService) GetCorpus(r *http.Request) (any, error) {
	corpus, err := s.getCorpus(r, "Errors")
	if err != nil {
		return nil, err
	}
	return convertCorpus(corpus), nil
}

func (s *BackendService) GetVocab(r *http.Request) (any, error) {
	corpus, err := s.getCorpus(r)
	if err != nil {
		return nil, err
	}
	if err := requireCompleted(corpus); err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.VocabParams](r)
	if err != nil {
		return nil, err
	}
	if params.Offset < 0 || params.Limit < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "offset and limit must not be negative")
	}
	if params.Limit == 0 {
		params.Limit = defaultVocabLimit
	}
	params.Limit = min(params.Limit, maxVocabLimit)

	v, err := database.LoadVocab(r.Context(), s.db, corpus.Id)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	tokens := v.IdxToToken()
	start := min(params.Offset, len(tokens))
	end := min(start+params.Limit, len(tokens))

	return api.VocabResponse{Total: len(tokens), Offset: start, Tokens: tokens[start:end]}, nil
}

func (s *BackendService) getDataset(r *http.Request, corpus database.Corpus, split string) (*dataset.Dataset, error) {
	if split == "" {
		split = snli.SplitTrain
	}
	if _, err := snli.SplitFile(split); err != nil {
		return nil, CodedError(http.StatusBadRequest, err)
	}

	if err := requireCompleted(corpus); err != nil {
		return nil, err
	}

	loaded, err := s.cache.Get(r.Context(), corpus.Id)
	if err != nil {
		if errors.Is(err, core.ErrCorpusNotReady) {
			return nil, CodedError(http.StatusUnprocessableEntity, err)
		}
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	if split == snli.SplitTest {
		return loaded.Test, nil
	}
	return loaded.Train, nil
}

func (s *BackendService) GetExample(r *http.Request) (any, error) {
	corpus, err := s.getCorpus(r)
	if err != nil {
		return nil, err
	}

	index, err := URLParamInt(r, "index")
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.ExampleParams](r)
	if err != nil {
		return nil, err
	}

	ds, err := s.getDataset(r, corpus, params.Split)
	if err != nil {
		return nil, err
	}

	item, err := ds.Get(index)
	if err != nil {
		if errors.Is(err, dataset.ErrIndexOutOfRange) {
			return nil, CodedError(http.StatusNotFound, err)
		}
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	split := params.Split
	if split == "" {
		split = "train"
	}

	return api.Example{
		Index:            index,
		Split:            split,
		Premise:          item.Premise,
		Hypothesis:       item.Hypothesis,
		Label:            item.Label,
		PremiseTokens:    ds.Vocab().Tokens(item.Premise),
		HypothesisTokens: ds.Vocab().Tokens(item.Hypothesis),
		LabelName:        snli.LabelName(item.Label),
	}, nil
}

func (s *BackendService) StreamBatches(r *http.Request) (StreamResponse, error) {
	corpus, err := s.getCorpus(r)
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.BatchParams](r)
	if err != nil {
		return nil, err
	}
	if params.BatchSize == 0 {
		params.BatchSize = defaultBatchSize
	}
	if params.BatchSize < 0 || params.BatchSize > maxBatchSize {
		return nil, CodedErrorf(http.StatusBadRequest, "batch_size must be between 1 and %d", maxBatchSize)
	}

	ds, err := s.getDataset(r, corpus, params.Split)
	if err != nil {
		return nil, err
	}

	loader, err := dataset.NewLoader(ds, dataset.LoaderOptions{
		BatchSize: params.BatchSize,
		Shuffle:   params.Shuffle,
		DropLast:  params.DropLast,
		Seed:      params.Seed,
	})
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, err)
	}

	ctx := r.Context()

	return func(yield func(any, error) bool) {
		i := 0
		for batch := range loader.Batches() {
			if ctx.Err() != nil {
				return
			}
			if !yield(api.Batch{Index: i, Premises: batch.Premises, Hypotheses: batch.Hypotheses, Labels: batch.Labels}, nil) {
				return
			}
			i++
		}
	}, nil
}

func (s *BackendService) ListBenchmarks(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.BenchmarkParams](r)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(r.Context()).Order("timestamp ASC")
	if params.CorpusId != "" {
		corpusId, err := uuid.Parse(params.CorpusId)
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid corpus_id '%s': %w", params.CorpusId, err)
		}
		query = query.Where("corpus_id = ?", corpusId)
	}

	var runs []database.BenchmarkRun
	if err := query.Find(&runs).Error; err != nil {
		slog.Error("error listing benchmark runs", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving benchmark runs")
	}

	return convertBenchmarkRuns(runs), nil
}
