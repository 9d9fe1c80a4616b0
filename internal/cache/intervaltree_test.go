package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ids(records []*Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestBuildIntervalTree_Empty(t *testing.T) {
	tree := BuildIntervalTree(nil)
	assert.Empty(t, tree.FindOverlaps(100))
	assert.Zero(t, tree.Len())
}

func TestIntervalTree_SingleRecord(t *testing.T) {
	tree := BuildIntervalTree([]*Record{{ID: "ENST001", Start: 100, End: 200}})

	assert.Equal(t, []string{"ENST001"}, ids(tree.FindOverlaps(150)))
	assert.Len(t, tree.FindOverlaps(100), 1, "start boundary inclusive")
	assert.Len(t, tree.FindOverlaps(200), 1, "end boundary inclusive")
	assert.Empty(t, tree.FindOverlaps(99), "before start")
	assert.Empty(t, tree.FindOverlaps(201), "after end")
}

func TestIntervalTree_Overlapping(t *testing.T) {
	tree := BuildIntervalTree([]*Record{
		{ID: "C", Start: 200, End: 400},
		{ID: "A", Start: 100, End: 300},
		{ID: "B", Start: 150, End: 250},
	})

	assert.Equal(t, []string{"A", "B"}, ids(tree.FindOverlaps(175)))
	assert.Equal(t, []string{"A", "B", "C"}, ids(tree.FindOverlaps(250)))
	assert.Equal(t, []string{"C"}, ids(tree.FindOverlaps(350)))
}

func TestIntervalTree_LongIntervalBehindShortOnes(t *testing.T) {
	// A long interval early in the order must still be found past short ones.
	tree := BuildIntervalTree([]*Record{
		{ID: "long", Start: 1, End: 10000},
		{ID: "s1", Start: 10, End: 20},
		{ID: "s2", Start: 30, End: 40},
	})
	assert.Equal(t, []string{"long"}, ids(tree.FindOverlaps(5000)))
	assert.Equal(t, []string{"long", "s2"}, ids(tree.FindOverlaps(35)))
}

func TestIntervalTree_FindRange(t *testing.T) {
	tree := BuildIntervalTree([]*Record{
		{ID: "A", Start: 100, End: 200},
		{ID: "B", Start: 300, End: 400},
		{ID: "C", Start: 500, End: 600},
	})
	assert.Equal(t, []string{"A", "B"}, ids(tree.FindRange(150, 350)))
	assert.Empty(t, tree.FindRange(201, 299))
	assert.Equal(t, []string{"A", "B", "C"}, ids(tree.FindRange(1, 1000)))
}

func TestIntervalTree_SameStartOrderedByID(t *testing.T) {
	tree := BuildIntervalTree([]*Record{
		{ID: "TX3", Start: 100, End: 200},
		{ID: "TX1", Start: 100, End: 200},
		{ID: "TX2", Start: 100, End: 200},
	})
	assert.Equal(t, []string{"TX1", "TX2", "TX3"}, ids(tree.FindOverlaps(150)))
}
