package cache

import "sort"

// IntervalTree provides O(log n + k) overlap queries using a sorted-slice approach.
// Records are loaded once and never modified after build.
type IntervalTree struct {
	intervals []interval
	maxEnd    []int64 // maxEnd[i] = max(End) for intervals[:i+1]
}

type interval struct {
	start  int64
	end    int64
	record *Record
}

// BuildIntervalTree creates an interval tree from a slice of records.
func BuildIntervalTree(records []*Record) *IntervalTree {
	if len(records) == 0 {
		return &IntervalTree{}
	}

	intervals := make([]interval, len(records))
	for i, r := range records {
		intervals[i] = interval{start: r.Start, end: r.End, record: r}
	}

	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].start != intervals[j].start {
			return intervals[i].start < intervals[j].start
		}
		return intervals[i].record.ID < intervals[j].record.ID
	})

	// Prefix-max array: maxEnd[i] = max(end) for intervals[:i+1]
	maxEnd := make([]int64, len(intervals))
	maxEnd[0] = intervals[0].end
	for i := 1; i < len(intervals); i++ {
		maxEnd[i] = max(maxEnd[i-1], intervals[i].end)
	}

	return &IntervalTree{intervals: intervals, maxEnd: maxEnd}
}

// FindOverlaps returns all records whose [Start, End] range contains pos,
// ordered by start then id.
func (t *IntervalTree) FindOverlaps(pos int64) []*Record {
	return t.FindRange(pos, pos)
}

// FindRange returns all records overlapping [start, end], ordered by start then id.
func (t *IntervalTree) FindRange(start, end int64) []*Record {
	if len(t.intervals) == 0 {
		return nil
	}

	// Candidates must begin at or before end.
	hi := sort.Search(len(t.intervals), func(i int) bool {
		return t.intervals[i].start > end
	})

	var result []*Record
	for i := hi - 1; i >= 0; i-- {
		// No interval in [0, i] reaches start.
		if t.maxEnd[i] < start {
			break
		}
		if t.intervals[i].end >= start {
			result = append(result, t.intervals[i].record)
		}
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// Len returns the number of indexed records.
func (t *IntervalTree) Len() int { return len(t.intervals) }
