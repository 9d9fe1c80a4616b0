package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFASTALoader_ParseHeader(t *testing.T) {
	loader := &FASTALoader{}

	tests := []struct {
		header   string
		expected string
	}{
		// GENCODE format with pipe delimiters
		{">ENST00000311936.8|ENSG00000133703.14|OTTHUMG|KRAS-201|KRAS|567|", "ENST00000311936"},
		// Simple Ensembl format with space
		{">ENST00000311936.8 cds chromosome:GRCh38", "ENST00000311936"},
		{">ENST00000311936", "ENST00000311936"},
		{">ENST00000311936.8", "ENST00000311936"},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.expected, loader.parseHeader(tt.header))
		})
	}
}

func TestFASTALoader_ParseFASTA(t *testing.T) {
	fastaContent := `>ENST00000311936.8|ENSG00000133703.14|KRAS-201|KRAS
ATGACTGAATATAAACTTGTGGTAGTTGGAGCT
ggtggcgtaggcaagagtgccttgacgatacag
>ENST00000000001.1|ENSG00000000001|TEST
ATGCGATCGATCGATCGATCG
`

	loader := NewFASTALoader("")
	require.NoError(t, loader.parseFASTA(strings.NewReader(fastaContent)))

	assert.Equal(t, 2, loader.SequenceCount())
	assert.Equal(t, "ATGACTGAATATAAACTTGTGGTAGTTGGAGCTGGTGGCGTAGGCAAGAGTGCCTTGACGATACAG",
		loader.GetSequence("ENST00000311936.8"), "lines joined, upper-cased, version ignored")
	assert.True(t, loader.HasSequence("ENST00000311936"))
	assert.False(t, loader.HasSequence("ENST99999999999"))
}

func TestParseCDSRange(t *testing.T) {
	tests := []struct {
		header    string
		wantStart int
		wantEnd   int
		wantOK    bool
	}{
		{">ENST00000456328.2|ENSG001|GENE|459|UTR5:1-200|CDS:201-459|UTR3:460-1657|", 201, 459, true},
		{">ENST00000311936.8|ENSG002|KRAS|567|CDS:1-567|", 1, 567, true},
		{">ENST00000311936.8|ENSG002|KRAS|567|", 0, 0, false},
		{">ENST00000311936.8 simple header", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			start, end, ok := parseCDSRange(tt.header)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestFASTALoader_Attach(t *testing.T) {
	fasta := ">TX1.1|GENE1|GENEA-201|GENEA|45|UTR5:1-3|CDS:4-33|UTR3:34-45|\n" + tx1Seq + "\n" +
		">TXSHORT|G|X|X|3|\nACG\n"
	loader := NewFASTALoader("")
	require.NoError(t, loader.parseFASTA(strings.NewReader(fasta)))

	r := tx1Record()
	r.Sequence = ""
	r.CDSStart, r.CDSEnd = 0, 0
	require.True(t, loader.Attach(r))
	assert.Equal(t, tx1Seq, r.Sequence)
	assert.Equal(t, int64(4), r.CDSOffsetStart, "header CDS used without genomic bounds")
	assert.Equal(t, int64(33), r.CDSOffsetEnd)

	tr := mustTranscript(t, r)
	assert.Equal(t, "MEKLGFPWH", tr.Protein())

	short := tx1Record()
	short.ID = "TXSHORT"
	short.Sequence = ""
	assert.False(t, loader.Attach(short), "length must agree with the exons")
	assert.Empty(t, short.Sequence)
}

func TestGenomeFASTA(t *testing.T) {
	g, err := ReadGenomeFASTA(strings.NewReader(">chr7 some description\nACGTACGTAC\nGGTT\n>8\nNNNN\n"))
	require.NoError(t, err)

	ctx := context.Background()
	seq, err := g.GenomicSequence(ctx, "7", 3, 12)
	require.NoError(t, err)
	assert.Equal(t, "GTACGTACGG", seq)

	seq, err = g.GenomicSequence(ctx, "chr7", 14, 14)
	require.NoError(t, err)
	assert.Equal(t, "T", seq)

	_, err = g.GenomicSequence(ctx, "7", 10, 15)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = g.GenomicSequence(ctx, "9", 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}
