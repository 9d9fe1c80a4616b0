package annotate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errParse = errors.New("parse failed")

// makeItems alternates two variants on TX1; every tenth item carries a
// parse error.
func makeItems(t *testing.T, n int) <-chan WorkItem {
	ch := make(chan WorkItem, n)
	inputs := []string{"1:g.1007G>A", "TX1.1:p.E2K"}
	for i := 0; i < n; i++ {
		item := WorkItem{Seq: i, Extra: i}
		if i%10 == 9 {
			item.Err = errParse
		} else {
			item.Request = Request{Input: mustParse(t, inputs[i%2])}
		}
		ch <- item
	}
	close(ch)
	return ch
}

func TestParallelAggregate_OrderPreservation(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{Workers: 1}, allRecords()...)

	results := agg.ParallelAggregate(context.Background(), makeItems(t, 200), 8)

	var collected []int
	err := OrderedCollect(results, func(r WorkResult) error {
		collected = append(collected, r.Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, collected, 200)
	for i, seq := range collected {
		assert.Equal(t, i, seq, "result %d out of order", i)
	}
}

func TestParallelAggregate_SingleWorker(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{}, allRecords()...)

	results := agg.ParallelAggregate(context.Background(), makeItems(t, 50), 1)

	var collected []int
	err := OrderedCollect(results, func(r WorkResult) error {
		collected = append(collected, r.Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, collected, 50)
	for i, seq := range collected {
		assert.Equal(t, i, seq)
	}
}

func TestParallelAggregate_ExtraPreserved(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{}, allRecords()...)

	results := agg.ParallelAggregate(context.Background(), makeItems(t, 10), 4)

	err := OrderedCollect(results, func(r WorkResult) error {
		// Extra was set to the sequence number in makeItems
		assert.Equal(t, r.Seq, r.Extra.(int))
		return nil
	})
	require.NoError(t, err)
}

func TestParallelAggregate_EmptyInput(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{}, allRecords()...)

	ch := make(chan WorkItem)
	close(ch)
	results := agg.ParallelAggregate(context.Background(), ch, 4)

	count := 0
	err := OrderedCollect(results, func(r WorkResult) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestOrderedCollect_EarlyError(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{}, allRecords()...)

	results := agg.ParallelAggregate(context.Background(), makeItems(t, 100), 4)

	count := 0
	err := OrderedCollect(results, func(r WorkResult) error {
		count++
		if count == 5 {
			return fmt.Errorf("stop at 5")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 5, count)
}

func TestParallelAggregate_ProducesReports(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{}, allRecords()...)

	results := agg.ParallelAggregate(context.Background(), makeItems(t, 10), 2)

	err := OrderedCollect(results, func(r WorkResult) error {
		if r.Seq == 9 {
			assert.ErrorIs(t, r.Err, errParse)
			assert.Nil(t, r.Report)
			return nil
		}
		require.NoError(t, r.Err)
		require.True(t, r.Report.Valid())
		// both inputs describe g.1007G>A
		assert.Equal(t, "1:1006-1007>A", r.Report.Groups[0].Key)
		return nil
	})
	require.NoError(t, err)
}
