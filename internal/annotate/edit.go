package annotate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/inodb/vibe-varmap/internal/cache"
	"github.com/inodb/vibe-varmap/internal/codon"
	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// splicedEdit replaces bases [start,end) of the spliced sequence (0-based,
// coding strand) with alt. Insertions have start == end.
type splicedEdit struct {
	start, end int64
	alt        string
}

func (e splicedEdit) delta() int64 { return int64(len(e.alt)) - (e.end - e.start) }

// apply returns seq with the edit applied.
func (e splicedEdit) apply(seq string) string {
	return seq[:e.start] + e.alt + seq[e.end:]
}

// normalize trims bases shared by ref and alt and shifts pure insertions
// and deletions as far 3' as the sequence allows.
func (e splicedEdit) normalize(seq string) splicedEdit {
	ref := seq[e.start:e.end]
	alt := e.alt
	for len(ref) > 0 && len(alt) > 0 && ref[len(ref)-1] == alt[len(alt)-1] {
		ref, alt = ref[:len(ref)-1], alt[:len(alt)-1]
		e.end--
	}
	for len(ref) > 0 && len(alt) > 0 && ref[0] == alt[0] {
		ref, alt = ref[1:], alt[1:]
		e.start++
	}
	e.alt = alt
	at := func(i int64) (byte, bool) {
		if i < 0 || i >= int64(len(seq)) {
			return 0, false
		}
		return seq[i], true
	}
	e.start, e.end, e.alt = shiftRight(e.start, e.end, e.alt, at)
	return e
}

// shiftRight moves a pure insertion or deletion towards higher coordinates
// while the edited sequence stays the same.
func shiftRight(start, end int64, alt string, at func(int64) (byte, bool)) (int64, int64, string) {
	switch {
	case start == end && alt != "":
		for {
			b, ok := at(start)
			if !ok || b != alt[0] {
				break
			}
			alt = alt[1:] + string(b)
			start++
			end++
		}
	case start < end && alt == "":
		for {
			a, ok1 := at(start)
			b, ok2 := at(end)
			if !ok1 || !ok2 || a != b {
				break
			}
			start++
			end++
		}
	}
	return start, end, alt
}

// editKey is a plus-strand genomic edit after normalization; equal keys
// describe the same change to the genome.
type editKey struct {
	chrom      string
	start, end int64 // 0-based half-open
	alt        string
}

func (k editKey) String() string {
	return fmt.Sprintf("%s:%d-%d>%s", k.chrom, k.start, k.end, k.alt)
}

func (k editKey) less(o editKey) bool {
	switch {
	case k.chrom != o.chrom:
		return chromLess(k.chrom, o.chrom)
	case k.start != o.start:
		return k.start < o.start
	case k.end != o.end:
		return k.end < o.end
	}
	return k.alt < o.alt
}

// chromLess orders numbered chromosomes numerically and before named ones
// such as X, Y and MT, which sort by name.
func chromLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

// locatedEdit is a nucleotide descriptor placed on one transcript.
type locatedEdit struct {
	class hgvs.Class

	gStart, gEnd int64 // plus strand, 1-based; insertions use flanks
	cStart, cEnd hgvs.CPos
	ref, alt     string // coding strand; ref empty when unknown

	// exonic edits also have a spliced span, 0-based half-open; insertions
	// have start == end at the insertion point.
	exonic bool
	s, e   int64
}

// locate places a genomic or cDNA descriptor on t.
func locate(t *cache.Transcript, d *hgvs.Descriptor) (*locatedEdit, error) {
	le := &locatedEdit{class: d.Class, ref: d.Ref, alt: d.Alt}
	switch d.Space {
	case hgvs.SpaceGenomic:
		if hgvs.NormalizeChrom(d.Chrom) != hgvs.NormalizeChrom(t.Chrom()) {
			return nil, fmt.Errorf("%w: %s is on chromosome %s", cache.ErrOutsideTranscript, t.ID(), t.Chrom())
		}
		le.gStart, le.gEnd = d.G.Start, d.G.End
		first, last := d.G.Start, d.G.End
		if !t.IsForward() {
			first, last = last, first
			le.ref, le.alt = codon.ReverseComplement(d.Ref), codon.ReverseComplement(d.Alt)
		}
		var err error
		if le.cStart, err = t.GenomicToCPos(first); err != nil {
			return nil, err
		}
		if le.cEnd, err = t.GenomicToCPos(last); err != nil {
			return nil, err
		}
	case hgvs.SpaceCDNA:
		le.cStart, le.cEnd = d.C.Start, d.C.End
		first, err := t.CPosToGenomic(d.C.Start)
		if err != nil {
			return nil, err
		}
		last, err := t.CPosToGenomic(d.C.End)
		if err != nil {
			return nil, err
		}
		le.gStart, le.gEnd = first, last
		if !t.IsForward() {
			le.gStart, le.gEnd = last, first
		}
	default:
		return nil, ErrUnderSpecified
	}

	if le.cStart.IsIntronic() || le.cEnd.IsIntronic() {
		return le, nil
	}
	o1, err1 := t.CPosToSpliced(le.cStart)
	o2, err2 := t.CPosToSpliced(le.cEnd)
	if err1 != nil || err2 != nil {
		return le, nil
	}
	if d.Class == hgvs.Insertion {
		if o2 == o1+1 {
			le.exonic, le.s, le.e = true, o1, o1
		}
		return le, nil
	}
	// a genomic span whose length differs from its spliced length covers an intron
	if d.Space == hgvs.SpaceCDNA || o2-o1 == le.gEnd-le.gStart {
		le.exonic, le.s, le.e = true, o1-1, o2
	}
	return le, nil
}

// spliced converts an exonic located edit to replacement form.
func (le *locatedEdit) spliced(seq string) splicedEdit {
	switch le.class {
	case hgvs.Duplication:
		return splicedEdit{start: le.e, end: le.e, alt: seq[le.s:le.e]}
	case hgvs.Deletion:
		return splicedEdit{start: le.s, end: le.e}
	}
	return splicedEdit{start: le.s, end: le.e, alt: le.alt}
}

// plusSequence reads plus-strand bases around an edit, from the reference
// genome when available and otherwise from the transcript's exons.
type plusSequence struct {
	ctx    context.Context
	ref    cache.ReferenceAccessor
	t      *cache.Transcript
	chunks map[int64]string
}

const chunkSize = 64

func newPlusSequence(ctx context.Context, ref cache.ReferenceAccessor, t *cache.Transcript) *plusSequence {
	return &plusSequence{ctx: ctx, ref: ref, t: t, chunks: make(map[int64]string)}
}

// at returns the plus-strand base at 0-based genomic position i.
func (p *plusSequence) at(i int64) (byte, bool) {
	if i < 0 {
		return 0, false
	}
	if p.ref != nil {
		c := i / chunkSize
		seq, ok := p.chunks[c]
		if !ok {
			s, err := p.ref.GenomicSequence(p.ctx, p.t.Chrom(), c*chunkSize+1, (c+1)*chunkSize)
			if err == nil {
				seq = s
			}
			p.chunks[c] = seq
		}
		if k := i - c*chunkSize; k < int64(len(seq)) && seq[k] != 'N' {
			return seq[k], true
		}
		if seq != "" {
			return 0, false
		}
	}
	if !p.t.HasSequence() {
		return 0, false
	}
	off, err := p.t.GenomicToSpliced(i + 1)
	if err != nil {
		return 0, false
	}
	b := p.t.Sequence()[off-1]
	if !p.t.IsForward() {
		b = codon.Complement(b)
	}
	return b, true
}

// keyOf normalizes a plus-strand genomic descriptor into a grouping key.
func keyOf(g *hgvs.Descriptor, seq *plusSequence) editKey {
	k := editKey{chrom: hgvs.NormalizeChrom(g.Chrom)}
	ref := g.Ref
	switch g.Class {
	case hgvs.Insertion:
		k.start, k.end, k.alt = g.G.Start, g.G.Start, g.Alt
	case hgvs.Duplication:
		if ref == "" {
			k.start, k.end, k.alt = g.G.Start-1, g.G.End, "dup"
			return k
		}
		k.start, k.end, k.alt = g.G.End, g.G.End, ref
		ref = ""
	default:
		k.start, k.end, k.alt = g.G.Start-1, g.G.End, g.Alt
	}
	if ref != "" && int64(len(ref)) == k.end-k.start {
		alt := k.alt
		for len(ref) > 0 && len(alt) > 0 && ref[len(ref)-1] == alt[len(alt)-1] {
			ref, alt = ref[:len(ref)-1], alt[:len(alt)-1]
			k.end--
		}
		for len(ref) > 0 && len(alt) > 0 && ref[0] == alt[0] {
			ref, alt = ref[1:], alt[1:]
			k.start++
		}
		k.alt = alt
	}
	k.start, k.end, k.alt = shiftRight(k.start, k.end, k.alt, seq.at)
	return k
}
