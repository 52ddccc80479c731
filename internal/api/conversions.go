package api

import (
	"nli-data/internal/database"
	"nli-data/pkg/api"
)

func convertCorpus(c database.Corpus) api.Corpus {
	corpus := api.Corpus{
		Id:           c.Id,
		Name:         c.Name,
		Dataset:      c.Dataset,
		NumSteps:     c.NumSteps,
		MinFreq:      c.MinFreq,
		Status:       c.Status,
		CreationTime: c.CreationTime,
		TrainCount:   c.TrainCount,
		TestCount:    c.TestCount,
		VocabSize:    c.VocabSize,
	}
	if c.CompletionTime.Valid {
		corpus.CompletionTime = &c.CompletionTime.Time
	}
	for _, e := range c.Errors {
		corpus.Errors = append(corpus.Errors, e.Error)
	}
	return corpus
}

func convertCorpora(cs []database.Corpus) []api.Corpus {
	corpora := make([]api.Corpus, 0, len(cs))
	for _, c := range cs {
		corpora = append(corpora, convertCorpus(c))
	}
	return corpora
}

func convertBenchmarkRuns(runs []database.BenchmarkRun) []api.BenchmarkRun {
	out := make([]api.BenchmarkRun, 0, len(runs))
	for _, r := range runs {
		run := api.BenchmarkRun{
			Id:          r.Id,
			Description: r.Description,
			Seconds:     r.Elapsed().Seconds(),
			Workers:     r.Workers,
			Timestamp:   r.Timestamp,
		}
		if r.CorpusId.Valid {
			run.CorpusId = &r.CorpusId.UUID
		}
		out = append(out, run)
	}
	return out
}
