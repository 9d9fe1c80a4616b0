package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenome struct {
	*GenomeFASTA
	calls atomic.Int32
}

func (g *countingGenome) GenomicSequence(ctx context.Context, chrom string, start, end int64) (string, error) {
	g.calls.Add(1)
	return g.GenomeFASTA.GenomicSequence(ctx, chrom, start, end)
}

func TestScope_SequenceFromGenome(t *testing.T) {
	ctx := context.Background()
	genome := &countingGenome{GenomeFASTA: genomeFor(t, 10000, tx1Record(), txrRecord())}

	c := New()
	for _, r := range []*Record{tx1Record(), txrRecord()} {
		r.Sequence = ""
		c.AddRecord(r)
	}
	s := NewScope(c, genome, DefaultBuildOptions())
	require.True(t, s.HasReference())

	for id, want := range map[string]string{"TX1": tx1Seq, "TXR": txrSeq} {
		r, err := s.Record(ctx, id)
		require.NoError(t, err)
		tr, err := s.Transcript(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, want, tr.Sequence(), id)
		assert.Empty(t, r.Sequence, "catalogue records are not modified")
	}

	calls := genome.calls.Load()
	r, err := s.Record(ctx, "TXR")
	require.NoError(t, err)
	_, err = s.Transcript(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, calls, genome.calls.Load(), "models are built once per scope")

	seq, err := s.GenomicSequence(ctx, "2", 9001, 9012)
	require.NoError(t, err)
	assert.Equal(t, "TTGAAGCCATGT", seq)
}

func TestScope_NoReference(t *testing.T) {
	ctx := context.Background()
	c := New()
	r := tx1Record()
	r.Sequence = ""
	c.AddRecord(r)

	s := NewScope(c, nil, DefaultBuildOptions())
	assert.False(t, s.HasReference())

	tr, err := s.Transcript(ctx, r)
	require.NoError(t, err)
	assert.False(t, tr.HasSequence())

	_, err = s.GenomicSequence(ctx, "1", 1, 2)
	assert.ErrorIs(t, err, ErrNoSequence)
}

func TestScope_BuildErrorRemembered(t *testing.T) {
	r := tx1Record()
	r.Sequence = "ACGT"
	s := NewScope(New(), nil, DefaultBuildOptions())

	_, err := s.Transcript(context.Background(), r)
	assert.ErrorIs(t, err, ErrInvalidTranscript)
	_, err = s.Transcript(context.Background(), r)
	assert.ErrorIs(t, err, ErrInvalidTranscript)
}

func TestScope_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.AddRecord(tx1Record())
	c.AddRecord(txrRecord())
	s := NewScope(c, genomeFor(t, 10000, tx1Record(), txrRecord()), DefaultBuildOptions())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs, err := s.Overlapping(ctx, "1", 1007)
			assert.NoError(t, err)
			for _, r := range recs {
				_, err := s.Transcript(ctx, r)
				assert.NoError(t, err)
			}
			_, err = s.GenomicSequence(ctx, "1", 1001, 1010)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	recs, ok, err := s.ByGene(ctx, "GENER")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, recs, 1)
}
