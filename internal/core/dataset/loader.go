package dataset

import (
	"fmt"
	"math/rand/v2"
	"nli-data/internal/core/utils"
)

// Batch holds premise and hypothesis id matrices of shape
// [batch size, num steps] and a label column of shape [batch size, 1].
// Rows are shared with the dataset and must not be modified.
type Batch struct {
	Premises   [][]int
	Hypotheses [][]int
	Labels     []int
}

func (b Batch) Size() int {
	return len(b.Labels)
}

func (b Batch) PremiseShape() [2]int {
	return matrixShape(b.Premises)
}

func (b Batch) HypothesisShape() [2]int {
	return matrixShape(b.Hypotheses)
}

func (b Batch) LabelShape() [2]int {
	return [2]int{len(b.Labels), 1}
}

func matrixShape(m [][]int) [2]int {
	if len(m) == 0 {
		return [2]int{0, 0}
	}
	return [2]int{len(m), len(m[0])}
}

type LoaderOptions struct {
	BatchSize int
	Shuffle   bool
	DropLast  bool
	Seed      uint64
	// Workers > 1 assembles batches on a worker pool.
	Workers int
}

type BatchIterator func(yield func(Batch) bool)

type Loader struct {
	ds     *Dataset
	opts   LoaderOptions
	passes uint64
}

func NewLoader(ds *Dataset, opts LoaderOptions) (*Loader, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Loader{ds: ds, opts: opts}, nil
}

func (l *Loader) Dataset() *Dataset {
	return l.ds
}

func (l *Loader) BatchSize() int {
	return l.opts.BatchSize
}

func (l *Loader) NumBatches() int {
	n := l.ds.Len()
	if l.opts.DropLast {
		return n / l.opts.BatchSize
	}
	return (n + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Batches returns an iterator over one pass of the dataset. When shuffling,
// every call draws a new permutation from the seeded source.
func (l *Loader) Batches() BatchIterator {
	order := l.order()
	groups := l.group(order)

	if l.opts.Workers <= 1 {
		return func(yield func(Batch) bool) {
			for _, g := range groups {
				if !yield(l.assemble(g)) {
					return
				}
			}
		}
	}

	chunk := l.opts.Workers * 4
	return func(yield func(Batch) bool) {
		for start := 0; start < len(groups); start += chunk {
			end := min(start+chunk, len(groups))
			batches := utils.MapInOrder(groups[start:end], l.assemble, l.opts.Workers)
			for _, b := range batches {
				if !yield(b) {
					return
				}
			}
		}
	}
}

func (l *Loader) order() []int {
	n := l.ds.Len()
	if !l.opts.Shuffle {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order
	}

	rng := rand.New(rand.NewPCG(l.opts.Seed, l.passes))
	l.passes++
	return rng.Perm(n)
}

func (l *Loader) group(order []int) [][]int {
	var groups [][]int
	for start := 0; start < len(order); start += l.opts.BatchSize {
		end := min(start+l.opts.BatchSize, len(order))
		if l.opts.DropLast && end-start < l.opts.BatchSize {
			break
		}
		groups = append(groups, order[start:end])
	}
	return groups
}

func (l *Loader) assemble(idxs []int) Batch {
	b := Batch{
		Premises:   make([][]int, len(idxs)),
		Hypotheses: make([][]int, len(idxs)),
		Labels:     make([]int, len(idxs)),
	}
	for i, idx := range idxs {
		b.Premises[i] = l.ds.premises[idx]
		b.Hypotheses[i] = l.ds.hypotheses[idx]
		b.Labels[i] = l.ds.labels[idx]
	}
	return b
}
