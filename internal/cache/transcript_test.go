package cache

import (
	"testing"

	"github.com/biogo/biogo/feat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-varmap/internal/hgvs"
)

func TestNewTranscript_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *Record)
	}{
		{"no strand", func(r *Record) { r.Strand = feat.NotOriented }},
		{"no exons", func(r *Record) { r.Exons = nil }},
		{"overlapping exons", func(r *Record) { r.Exons[0] = Exon{Start: 1005, End: 2010} }},
		{"inverted exon", func(r *Record) { r.Exons[0] = Exon{Start: 2020, End: 2001} }},
		{"sequence length", func(r *Record) { r.Sequence = r.Sequence[1:] }},
		{"CDS outside exons", func(r *Record) { r.CDSStart = 1500 }},
		{"protein mismatch", func(r *Record) { r.ProteinSequence = "MEKLGFPWQ" }},
		{"CDS offsets disagree", func(r *Record) { r.CDSOffsetStart, r.CDSOffsetEnd = 5, 33 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tx1Record()
			tt.modify(r)
			_, err := NewTranscript(r, DefaultBuildOptions())
			assert.ErrorIs(t, err, ErrInvalidTranscript)
		})
	}
}

func TestNewTranscript_ProteinTolerance(t *testing.T) {
	r := tx1Record()
	r.ProteinSequence = "MEKLGFPWQ*"

	tr, err := NewTranscript(r, BuildOptions{ProteinMismatchTolerance: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "MEKLGFPWH", tr.Protein(), "translation wins over the catalogue protein")
}

func TestTranscript_Accessors(t *testing.T) {
	tr := mustTranscript(t, tx1Record())

	assert.Equal(t, "TX1.1", tr.ID())
	assert.Equal(t, "GENEA", tr.GeneName())
	assert.True(t, tr.IsForward())
	assert.True(t, tr.IsCoding())
	assert.True(t, tr.IsCanonical())
	assert.Equal(t, int64(45), tr.Len())
	assert.Equal(t, tx1CDS, tr.CDS())
	assert.Equal(t, tx1UTR3, tr.UTR3())
	assert.Equal(t, "MEKLGFPWH", tr.Protein())

	start, end := tr.CDSRange()
	assert.Equal(t, int64(4), start)
	assert.Equal(t, int64(33), end)

	exons := tr.Exons()
	require.Len(t, exons, 3)
	assert.Equal(t, Exon{Number: 1, Start: 1001, End: 1010}, exons[0])
	assert.Equal(t, Exon{Number: 3, Start: 3001, End: 3015}, exons[2])

	s, err := tr.SplicedSlice(8, 12)
	require.NoError(t, err)
	assert.Equal(t, "AAAAA", s)
}

func TestTranscript_ReverseStrand(t *testing.T) {
	tr := mustTranscript(t, txrRecord())

	assert.False(t, tr.IsForward())
	assert.Equal(t, feat.Reverse, tr.Orientation())
	assert.Equal(t, "MASKT", tr.Protein())

	exons := tr.Exons()
	assert.Equal(t, int64(9001), exons[0].Start, "exon 1 is the upstream exon on the reverse strand")
	assert.Equal(t, 1, exons[0].Number)

	off, err := tr.GenomicToSpliced(9010)
	require.NoError(t, err)
	assert.Equal(t, int64(3), off)

	off, err = tr.GenomicToSpliced(8018)
	require.NoError(t, err)
	assert.Equal(t, int64(13), off)
}

func TestTranscript_SplicedRoundTrip(t *testing.T) {
	for _, r := range []*Record{tx1Record(), txrRecord()} {
		tr := mustTranscript(t, r)
		for _, e := range tr.Exons() {
			for pos := e.Start; pos <= e.End; pos++ {
				off, err := tr.GenomicToSpliced(pos)
				require.NoError(t, err)
				back, err := tr.SplicedToGenomic(off)
				require.NoError(t, err)
				assert.Equal(t, pos, back, "%s g.%d", tr.ID(), pos)
			}
		}
	}
}

func TestTranscript_PrimitiveErrors(t *testing.T) {
	tr := mustTranscript(t, tx1Record())

	_, err := tr.GenomicToSpliced(1500)
	assert.ErrorIs(t, err, ErrOutOfExon)
	_, err = tr.SplicedToGenomic(46)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = tr.SplicedToCDS(2)
	assert.ErrorIs(t, err, ErrOutsideCDS)
	_, err = tr.CDSToSpliced(31)
	assert.ErrorIs(t, err, ErrOutsideCDS)

	cds, err := tr.SplicedToCDS(7)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cds)
	residue, phase := tr.CDSToProtein(cds)
	assert.Equal(t, int64(2), residue)
	assert.Equal(t, 0, phase)
	assert.Equal(t, int64(4), tr.ProteinToCDS(2))
}

func TestTranscript_ProteinToSpliced(t *testing.T) {
	tr := mustTranscript(t, tx1Record())

	tests := []struct {
		name    string
		residue int64
		frame   int
		want    int64
		err     error
	}{
		{"first codon", 1, 0, 4, nil},
		{"stop codon", 10, 0, 31, nil},
		{"shifted frame", 2, 1, 8, nil},
		{"shifted frame reads into the 3' UTR", 11, 2, 36, nil},
		{"codon past the transcript end", 15, 0, 0, ErrOutOfRange},
		{"residue zero", 0, 0, 0, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			off, err := tr.ProteinToSpliced(tt.residue, tt.frame)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, off)
			s, err := tr.SplicedSlice(off, off+2)
			require.NoError(t, err)
			assert.Len(t, s, 3)
		})
	}

	nc := mustTranscript(t, &Record{
		ID: "NC", Chrom: "1", Start: 1, End: 10, Strand: feat.Forward, Biotype: "lncRNA",
		Exons: []Exon{{Number: 1, Start: 1, End: 10}},
	})
	_, err := nc.ProteinToSpliced(1, 0)
	assert.ErrorIs(t, err, ErrOutsideCDS)
}

func TestTranscript_GenomicToCPos(t *testing.T) {
	fwd := mustTranscript(t, tx1Record())
	rev := mustTranscript(t, txrRecord())

	tests := []struct {
		name string
		tr   *Transcript
		pos  int64
		want string
	}{
		{"first CDS base", fwd, 1004, "1"},
		{"5'UTR", fwd, 1001, "-3"},
		{"last exon 1 base", fwd, 1010, "7"},
		{"donor side", fwd, 1011, "7+1"},
		{"acceptor side", fwd, 2000, "8-1"},
		{"3'UTR", fwd, 3004, "*1"},
		{"reverse first CDS base", rev, 9010, "1"},
		{"reverse 5'UTR", rev, 9012, "-2"},
		{"reverse donor side", rev, 9000, "10+1"},
		{"reverse acceptor side", rev, 8019, "11-1"},
		{"reverse 3'UTR end", rev, 8001, "*10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.tr.GenomicToCPos(tt.pos)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())

			back, err := tt.tr.CPosToGenomic(p)
			require.NoError(t, err)
			assert.Equal(t, tt.pos, back)
		})
	}

	_, err := fwd.GenomicToCPos(5000)
	assert.ErrorIs(t, err, ErrOutsideTranscript)
}

func TestTranscript_IntronMidpoint(t *testing.T) {
	tr := mustTranscript(t, &Record{
		ID:     "NC",
		Chrom:  "3",
		Strand: feat.Forward,
		Exons:  []Exon{{Start: 1, End: 10}, {Start: 20, End: 30}},
	})

	p, err := tr.GenomicToCPos(15)
	require.NoError(t, err)
	assert.Equal(t, "10+5", p.String(), "ties anchor on the upstream exon")

	p, err = tr.GenomicToCPos(16)
	require.NoError(t, err)
	assert.Equal(t, "11-4", p.String())
}

func TestTranscript_CPosToGenomicInvalid(t *testing.T) {
	tr := mustTranscript(t, tx1Record())

	tests := []struct {
		name string
		pos  hgvs.CPos
		want error
	}{
		{"offset inside exon", hgvs.CPos{Base: 5, Offset: 1}, ErrInvalidIntronicOffset},
		{"offset beyond intron", hgvs.CPos{Base: 7, Offset: 991}, ErrInvalidIntronicOffset},
		{"minus offset on first exon", hgvs.CPos{Base: -3, Offset: -1}, ErrInvalidIntronicOffset},
		{"past CDS", hgvs.CPos{Base: 31}, ErrOutsideCDS},
		{"past transcript", hgvs.CPos{Base: 13, UTR3: true}, ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.CPosToGenomic(tt.pos)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	g, err := tr.CPosToGenomic(hgvs.CPos{Base: 7, Offset: 990})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), g)
}
