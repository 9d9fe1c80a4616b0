package cache

import (
	"strings"
	"testing"

	"github.com/biogo/biogo/feat"
	"github.com/stretchr/testify/require"
)

// Forward transcript on chr1: three exons, 5'UTR of 3 bases, CDS encoding
// MEKLGFPWH*, 3'UTR of 12 bases.
const (
	tx1UTR5 = "GCC"
	tx1CDS  = "ATGGAAAAACTGGGTTTTCCCTGGCATTAA"
	tx1UTR3 = "GCATTTGACCAG"
	tx1Seq  = tx1UTR5 + tx1CDS + tx1UTR3
)

func tx1Record() *Record {
	return &Record{
		ID:          "TX1.1",
		GeneID:      "GENE1",
		GeneName:    "GENEA",
		Chrom:       "1",
		Start:       1001,
		End:         3015,
		Strand:      feat.Forward,
		Biotype:     "protein_coding",
		IsCanonical: true,
		Exons: []Exon{
			{Start: 2001, End: 2020},
			{Start: 1001, End: 1010},
			{Start: 3001, End: 3015},
		},
		CDSStart: 1004,
		CDSEnd:   3003,
		Sequence: tx1Seq,
	}
}

// Reverse transcript on chr2: exon 1 is 9001-9012, exon 2 is 8001-8018.
// The CDS encodes MASKT*.
const txrSeq = "AC" + "ATGGCTTCAAAGACCTGA" + "GGCCAATTGG"

func txrRecord() *Record {
	return &Record{
		ID:       "TXR",
		GeneName: "GENER",
		Chrom:    "2",
		Start:    8001,
		End:      9012,
		Strand:   feat.Reverse,
		Biotype:  "protein_coding",
		Exons: []Exon{
			{Start: 8001, End: 8018},
			{Start: 9001, End: 9012},
		},
		CDSStart: 8011,
		CDSEnd:   9010,
		Sequence: txrSeq,
	}
}

func mustTranscript(t *testing.T, r *Record) *Transcript {
	t.Helper()
	tr, err := NewTranscript(r, DefaultBuildOptions())
	require.NoError(t, err)
	return tr
}

// genomeFor builds a plus-strand genome holding the exon bases of the given
// records, with N elsewhere.
func genomeFor(t *testing.T, size int, records ...*Record) *GenomeFASTA {
	t.Helper()
	chroms := make(map[string][]byte)
	for _, r := range records {
		buf, ok := chroms[r.Chrom]
		if !ok {
			buf = []byte(strings.Repeat("N", size))
			chroms[r.Chrom] = buf
		}
		tr := mustTranscript(t, r)
		for off := int64(1); off <= tr.Len(); off++ {
			g, err := tr.SplicedToGenomic(off)
			require.NoError(t, err)
			b := r.Sequence[off-1]
			if r.Strand == feat.Reverse {
				b = complement(b)
			}
			buf[g-1] = b
		}
	}
	g := &GenomeFASTA{chroms: make(map[string]string)}
	for c, buf := range chroms {
		g.chroms[c] = string(buf)
	}
	return g
}

func complement(b byte) byte {
	switch b {
	case 'A':
		return 'T'
	case 'C':
		return 'G'
	case 'G':
		return 'C'
	case 'T':
		return 'A'
	}
	return 'N'
}
