package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/biogo/biogo/feat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDuckDB(t *testing.T, records ...*Record) *DuckDBCatalogue {
	t.Helper()
	ctx := context.Background()
	db, err := NewDuckDBCatalogue(filepath.Join(t.TempDir(), "test.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.CreateSchema(ctx))
	require.NoError(t, db.InsertRecords(ctx, records))
	return db
}

func TestDuckDBCatalogue_Lookups(t *testing.T) {
	ctx := context.Background()
	db := newTestDuckDB(t, tx1Record(), txrRecord())

	count, err := db.TranscriptCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	chroms, err := db.Chromosomes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, chroms)

	r, err := db.TranscriptByID(ctx, "TX1.1")
	require.NoError(t, err)
	assert.Equal(t, "GENEA", r.GeneName)
	assert.Equal(t, feat.Forward, r.Strand)
	assert.Equal(t, tx1Seq, r.Sequence)
	assert.True(t, r.IsCanonical)
	require.Len(t, r.Exons, 3)

	r, err = db.TranscriptByID(ctx, "TXR.2")
	require.NoError(t, err, "versioned query matches the stored base id")
	assert.Equal(t, feat.Reverse, r.Strand)

	_, err = db.TranscriptByID(ctx, "MISSING")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := db.TranscriptsOverlapping(ctx, "2", 8500)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "TXR", found[0].ID)

	empty, err := db.TranscriptsOverlapping(ctx, "2", 1)
	require.NoError(t, err)
	assert.Empty(t, empty)

	byGene, err := db.TranscriptsByGene(ctx, "gener")
	require.NoError(t, err)
	require.Len(t, byGene, 1)
	assert.Equal(t, "TXR", byGene[0].ID)
}

func TestDuckDBCatalogue_RecordsBuildModels(t *testing.T) {
	ctx := context.Background()
	db := newTestDuckDB(t, tx1Record(), txrRecord())

	for _, id := range []string{"TX1.1", "TXR"} {
		r, err := db.TranscriptByID(ctx, id)
		require.NoError(t, err)
		_, err = NewTranscript(r, DefaultBuildOptions())
		assert.NoError(t, err, id)
	}
}

func TestDuckDBCatalogue_LoadAll(t *testing.T) {
	ctx := context.Background()
	db := newTestDuckDB(t, tx1Record(), txrRecord())

	c := New()
	require.NoError(t, db.LoadAll(ctx, c))
	assert.Equal(t, 2, c.TranscriptCount())

	recs, err := c.TranscriptsOverlapping(ctx, "1", 2010)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "TX1.1", recs[0].ID)
}

func TestIsDuckDB(t *testing.T) {
	assert.True(t, IsDuckDB("transcripts.duckdb"))
	assert.True(t, IsDuckDB("s3://bucket/t.duckdb"))
	assert.False(t, IsDuckDB("transcripts.json"))
}
