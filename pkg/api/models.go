package api

import (
	"time"

	"github.com/google/uuid"
)

type Corpus struct {
	Id      uuid.UUID
	Name    string
	Dataset string

	NumSteps int
	MinFreq  int

	Status         string
	CreationTime   time.Time
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`

	TrainCount int
	TestCount  int
	VocabSize  int

	Errors []string `json:"Errors,omitempty"`
}

type CreateCorpusRequest struct {
	Name    string
	Dataset string

	NumSteps int
	MinFreq  int
}

type CreateCorpusResponse struct {
	CorpusId uuid.UUID
}

type VocabParams struct {
	Offset int `schema:"offset"`
	Limit  int `schema:"limit"`
}

type VocabResponse struct {
	Total  int
	Offset int
	Tokens []string
}

type ExampleParams struct {
	Split string `schema:"split"`
}

type Example struct {
	Index int
	Split string

	Premise    []int
	Hypothesis []int
	Label      int

	PremiseTokens    []string
	HypothesisTokens []string
	LabelName        string
}

type BatchParams struct {
	Split     string `schema:"split"`
	BatchSize int    `schema:"batch_size"`
	Shuffle   bool   `schema:"shuffle"`
	Seed      uint64 `schema:"seed"`
	DropLast  bool   `schema:"drop_last"`
}

type Batch struct {
	Index      int
	Premises   [][]int
	Hypotheses [][]int
	Labels     []int
}

type BenchmarkParams struct {
	CorpusId string `schema:"corpus_id"`
}

type BenchmarkRun struct {
	Id          uuid.UUID
	CorpusId    *uuid.UUID `json:"CorpusId,omitempty"`
	Description string
	Seconds     float64
	Workers     int
	Timestamp   time.Time
}
