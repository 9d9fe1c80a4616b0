package annotate

import (
	"context"
	"strings"
	"testing"

	"github.com/biogo/biogo/feat"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-varmap/internal/cache"
	"github.com/inodb/vibe-varmap/internal/codon"
	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// Forward transcript on chr1 with exons 1001-1010, 2001-2020 and 3001-3015.
// The CDS (c.1 at g.1004) encodes MEKLGFPWH*.
const (
	tx1CDS = "ATGGAAAAACTGGGTTTTCCCTGGCATTAA"
	tx1Seq = "GCC" + tx1CDS + "GCATTTGACCAG"
)

func tx1Record() *cache.Record {
	return &cache.Record{
		ID:          "TX1.1",
		GeneID:      "GENE1",
		GeneName:    "GENEA",
		Chrom:       "1",
		Start:       1001,
		End:         3015,
		Strand:      feat.Forward,
		Biotype:     "protein_coding",
		IsCanonical: true,
		Exons: []cache.Exon{
			{Number: 1, Start: 1001, End: 1010},
			{Number: 2, Start: 2001, End: 2020},
			{Number: 3, Start: 3001, End: 3015},
		},
		CDSStart: 1004,
		CDSEnd:   3003,
		Sequence: tx1Seq,
	}
}

// Single-exon transcript on chr3 whose CDS encodes MSLSA*, with serines on
// both sides of residue 3.
const tx2Seq = "GG" + "ATGTCTCTGTCTGCATAA" + "CC"

func tx2Record() *cache.Record {
	return &cache.Record{
		ID:       "TX2",
		GeneName: "GENEB",
		Chrom:    "3",
		Start:    501,
		End:      522,
		Strand:   feat.Forward,
		Biotype:  "protein_coding",
		Exons:    []cache.Exon{{Number: 1, Start: 501, End: 522}},
		CDSStart: 503,
		CDSEnd:   520,
		Sequence: tx2Seq,
	}
}

// Reverse transcript on chr2: exon 1 is 9001-9012, exon 2 is 8001-8018.
// The CDS encodes MASKT*.
const txrSeq = "AC" + "ATGGCTTCAAAGACCTGA" + "GGCCAATTGG"

func txrRecord() *cache.Record {
	return &cache.Record{
		ID:       "TXR",
		GeneName: "GENER",
		Chrom:    "2",
		Start:    8001,
		End:      9012,
		Strand:   feat.Reverse,
		Biotype:  "protein_coding",
		Exons: []cache.Exon{
			{Number: 1, Start: 9001, End: 9012},
			{Number: 2, Start: 8001, End: 8018},
		},
		CDSStart: 8011,
		CDSEnd:   9010,
		Sequence: txrSeq,
	}
}

// Non-coding single-exon transcript overlapping TX1's first exon.
func ncRecord() *cache.Record {
	return &cache.Record{
		ID:       "NC1",
		GeneName: "LNC1",
		Chrom:    "1",
		Start:    995,
		End:      1014,
		Strand:   feat.Forward,
		Biotype:  "lncRNA",
		Exons:    []cache.Exon{{Number: 1, Start: 995, End: 1014}},
	}
}

func mustTranscript(t *testing.T, r *cache.Record) *cache.Transcript {
	t.Helper()
	tr, err := cache.NewTranscript(r, cache.DefaultBuildOptions())
	require.NoError(t, err)
	return tr
}

func mustParse(t *testing.T, s string) *hgvs.Descriptor {
	t.Helper()
	d, err := hgvs.Parse(s)
	require.NoError(t, err)
	return d
}

// genomeFor builds a plus-strand genome of the given size per chromosome
// holding the exon bases of the records, with T elsewhere.
func genomeFor(t *testing.T, size int, records ...*cache.Record) *cache.GenomeFASTA {
	t.Helper()
	chroms := make(map[string][]byte)
	var order []string
	for _, r := range records {
		buf, ok := chroms[r.Chrom]
		if !ok {
			buf = []byte(strings.Repeat("T", size))
			chroms[r.Chrom] = buf
			order = append(order, r.Chrom)
		}
		if r.Sequence == "" {
			continue
		}
		tr := mustTranscript(t, r)
		for off := int64(1); off <= tr.Len(); off++ {
			g, err := tr.SplicedToGenomic(off)
			require.NoError(t, err)
			b := r.Sequence[off-1]
			if r.Strand == feat.Reverse {
				b = codon.Complement(b)
			}
			buf[g-1] = b
		}
	}
	var fa strings.Builder
	for _, c := range order {
		fa.WriteString(">" + c + "\n" + string(chroms[c]) + "\n")
	}
	g, err := cache.ReadGenomeFASTA(strings.NewReader(fa.String()))
	require.NoError(t, err)
	return g
}

// countingReference counts genome reads.
type countingReference struct {
	cache.ReferenceAccessor
	calls int
}

func (c *countingReference) GenomicSequence(ctx context.Context, chrom string, start, end int64) (string, error) {
	c.calls++
	return c.ReferenceAccessor.GenomicSequence(ctx, chrom, start, end)
}

func strs(ds ...*hgvs.Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		if d != nil {
			out[i] = d.String()
		}
	}
	return out
}
