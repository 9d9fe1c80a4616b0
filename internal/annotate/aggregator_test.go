package annotate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-varmap/internal/align"
	"github.com/inodb/vibe-varmap/internal/cache"
	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// isoform copies TX1 under another id.
func isoform(id string) *cache.Record {
	r := tx1Record()
	r.ID = id
	r.IsCanonical = false
	return r
}

// nc2Record is a non-coding transcript of GENEA.
func nc2Record() *cache.Record {
	r := ncRecord()
	r.ID = "NC2"
	r.GeneName = "GENEA"
	return r
}

func newTestAggregator(t *testing.T, opts AggregatorOptions, records ...*cache.Record) *Aggregator {
	t.Helper()
	c := cache.New()
	for _, r := range records {
		c.AddRecord(r)
	}
	genome := genomeFor(t, 10000, tx1Record(), tx2Record(), txrRecord())
	return NewAggregator(c, genome, nil, opts)
}

func allRecords() []*cache.Record {
	return []*cache.Record{tx1Record(), isoform("TX1B"), isoform("TX1C"), ncRecord(), nc2Record(), tx2Record(), txrRecord()}
}

func TestAggregateGroupsEquivalentResults(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{Workers: 2}, allRecords()...)

	rep, err := agg.Aggregate(context.Background(), Request{Input: mustParse(t, "1:g.1007G>A")})
	require.NoError(t, err)
	assert.Equal(t, hgvs.SpaceCDNA, rep.Target)
	assert.Equal(t, 5, rep.Transcripts)
	assert.Empty(t, rep.Skipped)
	require.Len(t, rep.Groups, 1)

	grp := rep.Groups[0]
	assert.Equal(t, "1:1006-1007>A", grp.Key)
	assert.Equal(t, 5, grp.Count)
	assert.Len(t, grp.Results, 5)
	best := rep.Best()
	require.NotNil(t, best)
	assert.Equal(t, []string{"NC1", "NC2", "TX1.1", "TX1B", "TX1C"}, best.TranscriptIDs)
	assert.True(t, best.IsCanonical)
	assert.Equal(t, "TX1.1:c.4G>A", best.Target.String())
	assert.Equal(t, "TX1.1:p.E2K", best.Protein.String())
	assert.Equal(t, Exact, best.Confidence)

	for _, r := range grp.Results {
		assert.Len(t, r.TranscriptIDs, 1, "per-transcript results keep their own id")
	}
}

func TestAggregateProteinByGene(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{}, allRecords()...)

	rep, err := agg.Aggregate(context.Background(), Request{Input: mustParse(t, "GENEA:p.E2K")})
	require.NoError(t, err)
	assert.Equal(t, hgvs.SpaceGenomic, rep.Target)
	assert.Equal(t, 4, rep.Transcripts)
	require.Len(t, rep.Groups, 1)
	assert.Equal(t, 3, rep.Groups[0].Count)
	assert.Equal(t, "1:g.1007G>A", rep.Best().Target.String())
	assert.Equal(t, "TX1.1", rep.Best().TranscriptID())

	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, "NC2", rep.Skipped[0].TranscriptID)
	assert.Equal(t, ReasonNonCoding, rep.Skipped[0].Reason)
	assert.ErrorIs(t, rep.Skipped[0].Err, ErrNotCoding)
}

func TestAggregateSelection(t *testing.T) {
	ctx := context.Background()
	agg := newTestAggregator(t, AggregatorOptions{}, allRecords()...)

	t.Run("explicit transcript", func(t *testing.T) {
		rep, err := agg.Aggregate(ctx, Request{Input: mustParse(t, "1:g.1007G>A"), TranscriptID: "TX1B"})
		require.NoError(t, err)
		require.Len(t, rep.Groups, 1)
		assert.Equal(t, []string{"TX1B"}, rep.Best().TranscriptIDs)
		assert.Equal(t, "TX1B:c.4G>A", rep.Best().Target.String())
	})

	t.Run("transcript named by the descriptor", func(t *testing.T) {
		rep, err := agg.Aggregate(ctx, Request{Input: mustParse(t, "TX1C:c.4G>A"), Target: hgvs.SpaceProtein})
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Transcripts)
		assert.Equal(t, "TX1C:p.E2K", rep.Best().Target.String())
	})

	t.Run("unknown transcript", func(t *testing.T) {
		_, err := agg.Aggregate(ctx, Request{Input: mustParse(t, "1:g.1007G>A"), TranscriptID: "TX9"})
		assert.ErrorIs(t, err, ErrNoTranscriptOverlap)
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("unknown gene", func(t *testing.T) {
		_, err := agg.Aggregate(ctx, Request{Input: mustParse(t, "NOSUCH:p.E2K")})
		assert.ErrorIs(t, err, ErrNoTranscriptOverlap)
	})

	t.Run("intergenic", func(t *testing.T) {
		_, err := agg.Aggregate(ctx, Request{Input: mustParse(t, "5:g.100A>T")})
		assert.ErrorIs(t, err, ErrNoTranscriptOverlap)
	})

	t.Run("genomic reference mismatch", func(t *testing.T) {
		_, err := agg.Aggregate(ctx, Request{Input: mustParse(t, "1:g.1007T>A")})
		var mm *ReferenceMismatchError
		require.ErrorAs(t, err, &mm)
		assert.Equal(t, "T", mm.Stated)
		assert.Equal(t, "G", mm.Actual)
	})
}

func TestAggregateAmbiguous(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{}, allRecords()...)

	rep, err := agg.Aggregate(context.Background(), Request{Input: mustParse(t, "TX2:p.S3F")})
	require.NoError(t, err)
	require.Len(t, rep.Groups, 2)
	assert.Equal(t, "3:g.507C>T", rep.Groups[0].Representative.Target.String())
	assert.Equal(t, "3:g.513C>T", rep.Groups[1].Representative.Target.String())
	for _, g := range rep.Groups {
		assert.Equal(t, 1, g.Count)
		assert.Equal(t, FuzzyAmbiguous, g.Representative.Confidence)
	}
}

func TestAggregateNoValidTranscript(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{}, allRecords()...)

	rep, err := agg.Aggregate(context.Background(), Request{Input: mustParse(t, "TX2:p.W3R")})
	require.NoError(t, err)
	assert.False(t, rep.Valid())
	assert.Nil(t, rep.Best())
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, ReasonUnresolvable, rep.Skipped[0].Reason)
}

func TestAggregateStrict(t *testing.T) {
	ctx := context.Background()
	input := mustParse(t, "TX1.1:c.5G>A")

	fuzzy := newTestAggregator(t, AggregatorOptions{}, allRecords()...)
	rep, err := fuzzy.Aggregate(ctx, Request{Input: input})
	require.NoError(t, err)
	require.True(t, rep.Valid())
	assert.Equal(t, FuzzyUnique, rep.Best().Confidence)

	strict := newTestAggregator(t, AggregatorOptions{Strict: true}, allRecords()...)
	rep, err = strict.Aggregate(ctx, Request{Input: input})
	require.NoError(t, err)
	assert.False(t, rep.Valid())
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, ReasonReferenceMismatch, rep.Skipped[0].Reason)
}

func TestAggregateCancelled(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{}, allRecords()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agg.Aggregate(ctx, Request{Input: mustParse(t, "TX1.1:c.4G>A")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregateAlignerTimeouts(t *testing.T) {
	ctx := context.Background()
	genome := genomeFor(t, 10000, tx2Record())
	c := cache.New()
	c.AddRecord(tx2Record())

	t.Run("aligner timeout", func(t *testing.T) {
		res := NewResolver(NewEngine(genome), DefaultResolverConfig())
		res.aligner = timeoutAligner{}
		agg := NewAggregator(c, genome, res, AggregatorOptions{})

		rep, err := agg.Aggregate(ctx, Request{Input: mustParse(t, "TX2:c.4_6delTCA")})
		require.NoError(t, err)
		assert.False(t, rep.Valid())
		require.Len(t, rep.Skipped, 1)
		assert.Equal(t, ReasonTimeout, rep.Skipped[0].Reason)
	})

	t.Run("transcript deadline", func(t *testing.T) {
		res := NewResolver(NewEngine(genome), DefaultResolverConfig())
		res.aligner = stallingAligner{}
		agg := NewAggregator(c, genome, res, AggregatorOptions{TranscriptTimeout: 20 * time.Millisecond})

		rep, err := agg.Aggregate(ctx, Request{Input: mustParse(t, "TX2:c.4_6delTCA")})
		require.NoError(t, err)
		require.Len(t, rep.Skipped, 1)
		assert.Equal(t, ReasonTimeout, rep.Skipped[0].Reason)
	})
}

func TestAggregateMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	agg := newTestAggregator(t, AggregatorOptions{Metrics: m}, allRecords()...)
	ctx := context.Background()

	_, err := agg.Aggregate(ctx, Request{Input: mustParse(t, "1:g.1007G>A")})
	require.NoError(t, err)
	_, err = agg.Aggregate(ctx, Request{Input: mustParse(t, "TX2:p.W3R")})
	require.NoError(t, err)
	_, err = agg.Aggregate(ctx, Request{Input: mustParse(t, "5:g.100A>T")})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("g", OutcomeMapped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("p", OutcomeNoValid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("g", OutcomeNoTranscript)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Transcripts.WithLabelValues("mapped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transcripts.WithLabelValues(ReasonUnresolvable)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Results.WithLabelValues("exact")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Duration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeRequest(hgvs.SpaceGenomic, &Report{}, nil, 0)
		m.observeTranscript("mapped")
		m.observeResult(&MappingResult{})
	})
}

func TestSkipReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ReferenceMismatchError{}, ReasonReferenceMismatch},
		{&UnresolvableError{Err: &ReferenceMismatchError{}}, ReasonUnresolvable},
		{&UnresolvableError{Err: ErrNotCoding}, ReasonNonCoding},
		{fmt.Errorf("sequence of X: %w", cache.ErrNoSequence), ReasonNoSequence},
		{context.DeadlineExceeded, ReasonTimeout},
		{fmt.Errorf("align on TX2: %w", align.ErrTimeout), ReasonTimeout},
		{fmt.Errorf("%w: bad exons", cache.ErrInvalidTranscript), ReasonInvalidTranscript},
		{cache.ErrOutsideTranscript, ReasonOutsideTranscript},
		{cache.ErrInvalidIntronicOffset, ReasonOutsideTranscript},
		{errors.New("boom"), ReasonError},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, skipReason(tt.err))
		})
	}
}

func TestRepresentativeOrder(t *testing.T) {
	exactOther := &MappingResult{Confidence: Exact, TranscriptIDs: []string{"B"}}
	fuzzyCanonical := &MappingResult{Confidence: FuzzyUnique, IsCanonical: true, TranscriptIDs: []string{"A"}}
	exactCanonical := &MappingResult{Confidence: Exact, IsCanonical: true, TranscriptIDs: []string{"C"}}

	g := &AmbiguityGroup{Results: []*MappingResult{fuzzyCanonical, exactOther, exactCanonical}}
	g.finalize()
	assert.Equal(t, []string{"A", "B", "C"}, g.Representative.TranscriptIDs)
	assert.True(t, g.Representative.IsCanonical)
	assert.Equal(t, Exact, g.Representative.Confidence)
	assert.Equal(t, 3, g.Count)
	assert.Equal(t, []string{"C"}, exactCanonical.TranscriptIDs, "results are not modified")
}

func TestAggregateReverseStrandGenomic(t *testing.T) {
	agg := newTestAggregator(t, AggregatorOptions{}, txrRecord())

	rep, err := agg.Aggregate(context.Background(), Request{Input: mustParse(t, "2:g.9007C>T")})
	require.NoError(t, err)
	require.Len(t, rep.Groups, 1)
	assert.Equal(t, "TXR:c.4G>A", rep.Best().Target.String())
}
