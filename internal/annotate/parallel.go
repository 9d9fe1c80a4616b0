package annotate

import (
	"context"
	"runtime"
	"sync"
)

// WorkItem holds a request ready for mapping. A non-nil Err is passed
// through unmapped so callers keep one sequence number per input line.
type WorkItem struct {
	Seq     int
	Request Request
	Err     error
	Extra   any // caller-specific data (e.g. the input line)
}

// WorkResult holds the mapping output for a single request.
type WorkResult struct {
	Seq     int
	Request Request
	Report  *Report
	Err     error
	Extra   any
}

// ParallelAggregate maps work items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
func (a *Aggregator) ParallelAggregate(ctx context.Context, items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for item := range items {
				r := WorkResult{Seq: item.Seq, Request: item.Request, Err: item.Err, Extra: item.Extra}
				if r.Err == nil {
					r.Report, r.Err = a.Aggregate(ctx, item.Request)
				}
				results <- r
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}
