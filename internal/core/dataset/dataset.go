package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"nli-data/internal/core/snli"
	"nli-data/internal/core/vocab"
)

const (
	DefaultNumSteps = 50
	DefaultMinFreq  = 5
)

var ErrIndexOutOfRange = errors.New("dataset index out of range")

// TruncatePad cuts ids to numSteps or right pads them with padding. The
// returned slice always has length numSteps.
func TruncatePad(ids []int, numSteps int, padding int) []int {
	out := make([]int, max(numSteps, 0))
	n := copy(out, ids)
	for i := n; i < len(out); i++ {
		out[i] = padding
	}
	return out
}

type Item struct {
	Premise    []int
	Hypothesis []int
	Label      int
}

// Dataset is an immutable collection of padded premise/hypothesis id
// sequences and their labels.
type Dataset struct {
	numSteps   int
	vocab      *vocab.Vocab
	premises   [][]int
	hypotheses [][]int
	labels     []int
}

// New builds a vocabulary from the corpus with the default frequency cutoff
// when v is nil. Pass the training vocabulary when building evaluation data.
func New(corpus snli.Corpus, numSteps int, v *vocab.Vocab) *Dataset {
	return NewWithMinFreq(corpus, numSteps, v, DefaultMinFreq)
}

func NewWithMinFreq(corpus snli.Corpus, numSteps int, v *vocab.Vocab, minFreq int) *Dataset {
	premiseTokens := vocab.Tokenize(corpus.Premises, vocab.WordTokens)
	hypothesisTokens := vocab.Tokenize(corpus.Hypotheses, vocab.WordTokens)

	if v == nil {
		all := make([][]string, 0, len(premiseTokens)+len(hypothesisTokens))
		all = append(all, premiseTokens...)
		all = append(all, hypothesisTokens...)
		v = vocab.New(all, minFreq, []string{vocab.PadToken})
	}

	ds := &Dataset{
		numSteps: numSteps,
		vocab:    v,
		labels:   append([]int(nil), corpus.Labels...),
	}
	ds.premises = ds.pad(premiseTokens)
	ds.hypotheses = ds.pad(hypothesisTokens)

	slog.Info(fmt.Sprintf("read %d examples", ds.Len()), "num_steps", numSteps, "vocab_size", v.Len())

	return ds
}

func (ds *Dataset) pad(lines [][]string) [][]int {
	padding := ds.vocab.Index(vocab.PadToken)
	out := make([][]int, len(lines))
	for i, line := range lines {
		out[i] = TruncatePad(ds.vocab.Indices(line), ds.numSteps, padding)
	}
	return out
}

func (ds *Dataset) Len() int {
	return len(ds.labels)
}

func (ds *Dataset) NumSteps() int {
	return ds.numSteps
}

func (ds *Dataset) Vocab() *vocab.Vocab {
	return ds.vocab
}

// Get returns copies of the padded sequences at index i.
func (ds *Dataset) Get(i int) (Item, error) {
	if i < 0 || i >= ds.Len() {
		return Item{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, ds.Len())
	}
	return Item{
		Premise:    append([]int(nil), ds.premises[i]...),
		Hypothesis: append([]int(nil), ds.hypotheses[i]...),
		Label:      ds.labels[i],
	}, nil
}

// Split is a pair of datasets sharing the vocabulary built on the training
// split.
type Split struct {
	Train *Dataset
	Test  *Dataset
}

func NewSplit(train, test snli.Corpus, numSteps, minFreq int) Split {
	trainSet := NewWithMinFreq(train, numSteps, nil, minFreq)
	testSet := NewWithMinFreq(test, numSteps, trainSet.Vocab(), minFreq)
	return Split{Train: trainSet, Test: testSet}
}
