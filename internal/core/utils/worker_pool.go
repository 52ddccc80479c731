package utils

import (
	"sync"
)

type CompletedTask[T any] struct {
	Result T
	Error  error
}

func RunInPool[In any, Out any](worker func(In) (Out, error), queue chan In, completed chan CompletedTask[Out], maxWorkers int) {
	workers := max(min(len(queue), maxWorkers), 1)

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for {
					next, ok := <-queue
					if !ok {
						return
					}

					res, err := worker(next)
					if err != nil {
						completed <- CompletedTask[Out]{Error: err}
					} else {
						completed <- CompletedTask[Out]{Result: res, Error: nil}
					}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()
}

type indexed[T any] struct {
	idx   int
	value T
}

// MapInOrder runs fn over every input on the pool and returns the outputs in
// input order.
func MapInOrder[In any, Out any](inputs []In, fn func(In) Out, maxWorkers int) []Out {
	queue := make(chan indexed[In], len(inputs))
	for i, in := range inputs {
		queue <- indexed[In]{idx: i, value: in}
	}
	close(queue)

	completed := make(chan CompletedTask[indexed[Out]], len(inputs))

	RunInPool(func(in indexed[In]) (indexed[Out], error) {
		return indexed[Out]{idx: in.idx, value: fn(in.value)}, nil
	}, queue, completed, maxWorkers)

	outputs := make([]Out, len(inputs))
	for res := range completed {
		outputs[res.Result.idx] = res.Result.value
	}
	return outputs
}
