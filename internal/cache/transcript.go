package cache

import (
	"fmt"
	"strings"

	"github.com/biogo/biogo/feat"

	"github.com/inodb/vibe-varmap/internal/codon"
	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// DefaultProteinMismatchTolerance is the fraction of residues allowed to
// differ between the translated CDS and the catalogue protein.
const DefaultProteinMismatchTolerance = 0.05

// BuildOptions control transcript model construction.
type BuildOptions struct {
	ProteinMismatchTolerance float64
}

// DefaultBuildOptions returns the options used when none are configured.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{ProteinMismatchTolerance: DefaultProteinMismatchTolerance}
}

// Transcript is the immutable exon/CDS geometry and sequence of one
// transcript. It is built from a Record and never modified afterwards.
type Transcript struct {
	id        string
	geneID    string
	geneName  string
	chrom     string
	biotype   string
	strand    feat.Orientation
	canonical bool
	mane      bool

	exons   []Exon  // transcript order
	offsets []int64 // spliced offset (0-based) of the first base of exons[i]
	length  int64
	lo, hi  int64 // genomic span of the exons

	cdsStart int64 // 1-based spliced offset of the first CDS base, 0 if non-coding
	cdsEnd   int64 // 1-based spliced offset of the last CDS base (stop codon included)

	seq     string
	protein string
}

// NewTranscript validates a record and builds its model.
func NewTranscript(rec *Record, opts BuildOptions) (*Transcript, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidTranscript)
	}
	if rec.Strand != feat.Forward && rec.Strand != feat.Reverse {
		return nil, fmt.Errorf("%w: %s has no strand", ErrInvalidTranscript, rec.ID)
	}
	if len(rec.Exons) == 0 {
		return nil, fmt.Errorf("%w: %s has no exons", ErrInvalidTranscript, rec.ID)
	}

	t := &Transcript{
		id:        rec.ID,
		geneID:    rec.GeneID,
		geneName:  rec.GeneName,
		chrom:     rec.Chrom,
		biotype:   rec.Biotype,
		strand:    rec.Strand,
		canonical: rec.IsCanonical,
		mane:      rec.IsMANESelect,
	}

	exons := make([]Exon, len(rec.Exons))
	copy(exons, rec.Exons)
	sortExons(exons)
	for i, e := range exons {
		if e.Start < 1 || e.End < e.Start {
			return nil, fmt.Errorf("%w: %s exon %d_%d is inverted", ErrInvalidTranscript, rec.ID, e.Start, e.End)
		}
		if i > 0 && e.Start <= exons[i-1].End {
			return nil, fmt.Errorf("%w: %s exons overlap at %d", ErrInvalidTranscript, rec.ID, e.Start)
		}
	}
	t.lo, t.hi = exons[0].Start, exons[len(exons)-1].End
	if rec.Strand == feat.Reverse {
		for i, j := 0, len(exons)-1; i < j; i, j = i+1, j-1 {
			exons[i], exons[j] = exons[j], exons[i]
		}
	}
	numbered := true
	for _, e := range exons {
		if e.Number == 0 {
			numbered = false
			break
		}
	}
	t.offsets = make([]int64, len(exons))
	for i := range exons {
		if !numbered {
			exons[i].Number = i + 1
		}
		t.offsets[i] = t.length
		t.length += exons[i].Len()
	}
	t.exons = exons

	if err := t.resolveCDS(rec); err != nil {
		return nil, err
	}

	if rec.Sequence != "" {
		seq := strings.ToUpper(rec.Sequence)
		if int64(len(seq)) != t.length {
			return nil, fmt.Errorf("%w: %s sequence length %d does not match exons (%d)",
				ErrInvalidTranscript, rec.ID, len(seq), t.length)
		}
		t.seq = seq
	}

	ref := strings.TrimSuffix(strings.ToUpper(rec.ProteinSequence), "*")
	t.protein = ref
	if t.IsCoding() && t.seq != "" {
		translated := strings.TrimSuffix(codon.TranslateSequence(t.CDS()), "*")
		if ref != "" {
			if n := mismatches(translated, ref); float64(n) > opts.ProteinMismatchTolerance*float64(len(ref)) {
				return nil, fmt.Errorf("%w: %s translation differs from reference protein at %d residues",
					ErrInvalidTranscript, rec.ID, n)
			}
		}
		t.protein = translated
	}
	return t, nil
}

func (t *Transcript) resolveCDS(rec *Record) error {
	switch {
	case rec.CDSStart > 0 && rec.CDSEnd > 0:
		first, last := rec.CDSStart, rec.CDSEnd
		if t.strand == feat.Reverse {
			first, last = last, first
		}
		s, err := t.GenomicToSpliced(first)
		if err != nil {
			return fmt.Errorf("%w: %s CDS start %d: %v", ErrInvalidTranscript, rec.ID, first, err)
		}
		e, err := t.GenomicToSpliced(last)
		if err != nil {
			return fmt.Errorf("%w: %s CDS end %d: %v", ErrInvalidTranscript, rec.ID, last, err)
		}
		if rec.CDSOffsetStart > 0 && (rec.CDSOffsetStart != s || rec.CDSOffsetEnd != e) {
			return fmt.Errorf("%w: %s CDS offsets %d-%d disagree with genomic bounds (%d-%d)",
				ErrInvalidTranscript, rec.ID, rec.CDSOffsetStart, rec.CDSOffsetEnd, s, e)
		}
		t.cdsStart, t.cdsEnd = s, e
	case rec.CDSOffsetStart > 0 && rec.CDSOffsetEnd > 0:
		t.cdsStart, t.cdsEnd = rec.CDSOffsetStart, rec.CDSOffsetEnd
	default:
		return nil
	}
	if t.cdsStart > t.cdsEnd || t.cdsEnd > t.length {
		return fmt.Errorf("%w: %s CDS %d-%d outside spliced length %d",
			ErrInvalidTranscript, rec.ID, t.cdsStart, t.cdsEnd, t.length)
	}
	return nil
}

func mismatches(a, b string) int {
	n := len(a) - len(b)
	if n < 0 {
		n = -n
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// ID returns the transcript id.
func (t *Transcript) ID() string { return t.id }

// GeneID returns the parent gene id.
func (t *Transcript) GeneID() string { return t.geneID }

// GeneName returns the parent gene symbol.
func (t *Transcript) GeneName() string { return t.geneName }

// Chrom returns the chromosome.
func (t *Transcript) Chrom() string { return t.chrom }

// Biotype returns the transcript biotype.
func (t *Transcript) Biotype() string { return t.biotype }

// Orientation implements feat.Orienter.
func (t *Transcript) Orientation() feat.Orientation { return t.strand }

// IsForward reports whether the transcript is on the forward strand.
func (t *Transcript) IsForward() bool { return t.strand == feat.Forward }

// IsCanonical reports the Ensembl canonical flag.
func (t *Transcript) IsCanonical() bool { return t.canonical }

// IsMANESelect reports the MANE Select flag.
func (t *Transcript) IsMANESelect() bool { return t.mane }

// IsCoding reports whether the transcript has a CDS.
func (t *Transcript) IsCoding() bool { return t.cdsStart > 0 }

// Len returns the spliced length.
func (t *Transcript) Len() int64 { return t.length }

// Span returns the genomic extent of the exons.
func (t *Transcript) Span() (start, end int64) { return t.lo, t.hi }

// CDSRange returns the 1-based spliced offsets of the first and last CDS base.
func (t *Transcript) CDSRange() (start, end int64) { return t.cdsStart, t.cdsEnd }

// Exons returns a copy of the exons in transcript order.
func (t *Transcript) Exons() []Exon {
	out := make([]Exon, len(t.exons))
	copy(out, t.exons)
	return out
}

// HasSequence reports whether the spliced sequence is known.
func (t *Transcript) HasSequence() bool { return t.seq != "" }

// Sequence returns the spliced sequence on the coding strand.
func (t *Transcript) Sequence() string { return t.seq }

// CDS returns the coding sequence including the stop codon.
func (t *Transcript) CDS() string {
	if t.seq == "" || !t.IsCoding() {
		return ""
	}
	return t.seq[t.cdsStart-1 : t.cdsEnd]
}

// UTR3 returns the sequence following the CDS.
func (t *Transcript) UTR3() string {
	if t.seq == "" || !t.IsCoding() {
		return ""
	}
	return t.seq[t.cdsEnd:]
}

// Protein returns the residues encoded by the CDS, without the stop.
func (t *Transcript) Protein() string { return t.protein }

// SplicedSlice returns spliced bases start..end (1-based, inclusive).
func (t *Transcript) SplicedSlice(start, end int64) (string, error) {
	if t.seq == "" {
		return "", ErrNoSequence
	}
	if start < 1 || end > t.length || end < start-1 {
		return "", ErrOutOfRange
	}
	return t.seq[start-1 : end], nil
}

// exonIndex returns the index of the exon containing pos, or -1.
func (t *Transcript) exonIndex(pos int64) int {
	lo, hi := 0, len(t.exons)-1
	forward := t.strand == feat.Forward
	for lo <= hi {
		mid := lo + (hi-lo)/2
		e := &t.exons[mid]
		if pos >= e.Start && pos <= e.End {
			return mid
		}
		if forward == (pos < e.Start) {
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	return -1
}

// GenomicToSpliced maps a genomic coordinate to its 1-based spliced offset.
func (t *Transcript) GenomicToSpliced(pos int64) (int64, error) {
	i := t.exonIndex(pos)
	if i < 0 {
		return 0, ErrOutOfExon
	}
	e := &t.exons[i]
	if t.strand == feat.Forward {
		return t.offsets[i] + pos - e.Start + 1, nil
	}
	return t.offsets[i] + e.End - pos + 1, nil
}

// splicedExon returns the index of the exon holding a valid spliced offset.
func (t *Transcript) splicedExon(off int64) int {
	lo, hi := 0, len(t.offsets)-1
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if t.offsets[mid] < off {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// SplicedToGenomic maps a 1-based spliced offset to its genomic coordinate.
func (t *Transcript) SplicedToGenomic(off int64) (int64, error) {
	if off < 1 || off > t.length {
		return 0, ErrOutOfRange
	}
	i := t.splicedExon(off)
	d := off - t.offsets[i] - 1
	if t.strand == feat.Forward {
		return t.exons[i].Start + d, nil
	}
	return t.exons[i].End - d, nil
}

// SplicedToCDS maps a spliced offset to its 1-based CDS offset.
func (t *Transcript) SplicedToCDS(off int64) (int64, error) {
	if t.cdsStart == 0 || off < t.cdsStart || off > t.cdsEnd {
		return 0, ErrOutsideCDS
	}
	return off - t.cdsStart + 1, nil
}

// CDSToSpliced maps a 1-based CDS offset to its spliced offset.
func (t *Transcript) CDSToSpliced(cds int64) (int64, error) {
	if t.cdsStart == 0 || cds < 1 || cds > t.cdsEnd-t.cdsStart+1 {
		return 0, ErrOutsideCDS
	}
	return t.cdsStart + cds - 1, nil
}

// CDSToProtein returns the 1-based residue and the 0-based codon phase of a
// CDS offset.
func (t *Transcript) CDSToProtein(cds int64) (residue int64, phase int) {
	if cds < 1 {
		return 0, 0
	}
	return (cds-1)/3 + 1, int((cds - 1) % 3)
}

// ProteinToCDS returns the CDS offset of the first base of a residue's codon.
func (t *Transcript) ProteinToCDS(residue int64) int64 {
	if residue < 1 {
		return 0
	}
	return (residue-1)*3 + 1
}

// ProteinToSpliced returns the spliced offset of the first base of a
// residue's codon when reading starts frame bases after the CDS start.
// Shifted frames may run past the stop into the 3' UTR.
func (t *Transcript) ProteinToSpliced(residue int64, frame int) (int64, error) {
	if t.cdsStart == 0 {
		return 0, ErrOutsideCDS
	}
	if residue < 1 || frame < 0 {
		return 0, ErrOutOfRange
	}
	off := t.cdsStart + int64(frame) + t.ProteinToCDS(residue) - 1
	if off+2 > t.length {
		return 0, ErrOutOfRange
	}
	return off, nil
}

// SplicedToCPos expresses a spliced offset in c. notation.
func (t *Transcript) SplicedToCPos(off int64) hgvs.CPos {
	switch {
	case t.cdsStart == 0:
		return hgvs.CPos{Base: off}
	case off < t.cdsStart:
		return hgvs.CPos{Base: off - t.cdsStart}
	case off <= t.cdsEnd:
		return hgvs.CPos{Base: off - t.cdsStart + 1}
	}
	return hgvs.CPos{Base: off - t.cdsEnd, UTR3: true}
}

// CPosToSpliced resolves the exonic part of a c. position, ignoring any
// intronic offset.
func (t *Transcript) CPosToSpliced(p hgvs.CPos) (int64, error) {
	var off int64
	switch {
	case t.cdsStart == 0:
		if p.UTR3 || p.Base < 1 {
			return 0, ErrOutsideCDS
		}
		off = p.Base
	case p.UTR3:
		off = t.cdsEnd + p.Base
	case p.Base < 0:
		off = t.cdsStart + p.Base
	default:
		if p.Base > t.cdsEnd-t.cdsStart+1 {
			return 0, ErrOutsideCDS
		}
		off = t.cdsStart + p.Base - 1
	}
	if off < 1 || off > t.length {
		return 0, ErrOutOfRange
	}
	return off, nil
}

// intronAt locates a genomic position between exons k and k+1 (transcript
// order) and returns its distances to the 3' end of exon k and the 5' end
// of exon k+1.
func (t *Transcript) intronAt(pos int64) (k int, up, down int64, ok bool) {
	for k = 0; k+1 < len(t.exons); k++ {
		a, b := &t.exons[k], &t.exons[k+1]
		if t.strand == feat.Forward && pos > a.End && pos < b.Start {
			return k, pos - a.End, b.Start - pos, true
		}
		if t.strand == feat.Reverse && pos < a.Start && pos > b.End {
			return k, a.Start - pos, pos - b.End, true
		}
	}
	return 0, 0, 0, false
}

// GenomicToCPos expresses a genomic coordinate in c. notation. Intronic
// positions are anchored on the nearest exon boundary; the midpoint of an
// odd-length intron is anchored upstream with a + offset.
func (t *Transcript) GenomicToCPos(pos int64) (hgvs.CPos, error) {
	if off, err := t.GenomicToSpliced(pos); err == nil {
		return t.SplicedToCPos(off), nil
	}
	k, up, down, ok := t.intronAt(pos)
	if !ok {
		return hgvs.CPos{}, ErrOutsideTranscript
	}
	if up <= down {
		p := t.SplicedToCPos(t.offsets[k] + t.exons[k].Len())
		p.Offset = up
		return p, nil
	}
	p := t.SplicedToCPos(t.offsets[k+1] + 1)
	p.Offset = -down
	return p, nil
}

// CPosToGenomic resolves a c. position, including intronic offsets, to a
// genomic coordinate.
func (t *Transcript) CPosToGenomic(p hgvs.CPos) (int64, error) {
	off, err := t.CPosToSpliced(p)
	if err != nil {
		return 0, err
	}
	g, err := t.SplicedToGenomic(off)
	if err != nil || p.Offset == 0 {
		return g, err
	}

	i := t.splicedExon(off)
	var k int // intron between exons k and k+1
	switch {
	case p.Offset > 0 && off == t.offsets[i]+t.exons[i].Len() && i+1 < len(t.exons):
		k = i
	case p.Offset < 0 && off == t.offsets[i]+1 && i > 0:
		k = i - 1
	default:
		return 0, fmt.Errorf("%w: c.%s is not next to an intron", ErrInvalidIntronicOffset, p)
	}
	intron := t.exons[k+1].Start - t.exons[k].End - 1
	if t.strand == feat.Reverse {
		intron = t.exons[k].Start - t.exons[k+1].End - 1
	}
	d := p.Offset
	if d < 0 {
		d = -d
	}
	if d > intron {
		return 0, fmt.Errorf("%w: c.%s exceeds intron of %d bp", ErrInvalidIntronicOffset, p, intron)
	}
	if t.strand == feat.Forward {
		return g + p.Offset, nil
	}
	return g - p.Offset, nil
}
