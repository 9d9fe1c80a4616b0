package annotate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/inodb/vibe-varmap/internal/cache"
	"github.com/inodb/vibe-varmap/internal/codon"
	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// resolveProtein reverse-annotates a p. descriptor. The stated residues are
// searched for outward from the stated position in the annotated frame and,
// failing that, in the two alternate frames.
func (r *Resolver) resolveProtein(ctx context.Context, d *hgvs.Descriptor, t *cache.Transcript, target hgvs.Space) ([]*MappingResult, error) {
	if !t.IsCoding() {
		return nil, r.unresolvable(d, t, r.cfg.WindowResidues, ErrNotCoding)
	}
	if !t.HasSequence() {
		return nil, r.unresolvable(d, t, r.cfg.WindowResidues, cache.ErrNoSequence)
	}

	frames := []int{0}
	if r.cfg.AlternateFrames {
		frames = append(frames, 1, 2)
	}
	// frameshifts and extensions are only searched for at the stated codon
	codonLocal := d.Class == hgvs.Frameshift || d.Marker.Extension

	var naiveErr error
	for _, frame := range frames {
		ps, err := r.proteinSearch(ctx, d, t, frame)
		if err != nil {
			return nil, fmt.Errorf("align on %s: %w", t.ID(), err)
		}
		if frame == 0 {
			naiveErr = ps.naiveErr
		}
		if len(ps.cands) == 0 {
			continue
		}
		best := selectBest(ps.cands)
		variants := distinctVariants(best)

		conf := FuzzyUnique
		if frame == 0 && !ps.inferred && !ps.representative && !codonLocal && len(variants) == 1 &&
			best[0].proximity == 0 && best[0].distance == 0 && variants[0].edit == variants[0].norm {
			conf = Exact
		}
		notes := func(c candidate) []string {
			var n []string
			if conf == Exact {
				return nil
			}
			if c.proximity != 0 {
				n = append(n, NoteShiftedFrom+"p."+strconv.FormatInt(d.P.Start, 10))
			}
			if frame != 0 {
				n = append(n, NoteAlternateFrame+"+"+strconv.Itoa(frame))
			}
			if ps.inferred {
				n = append(n, NoteReferenceInferred)
			}
			if ps.representative {
				n = append(n, NoteRepresentative)
			}
			if codonLocal {
				n = append(n, NoteCodonLocal)
			}
			return n
		}
		return r.finish(ctx, d, t, target, variants, conf, notes)
	}
	return nil, r.unresolvable(d, t, r.cfg.WindowResidues, naiveErr)
}

// proteinSearch holds the candidates found in one reading frame.
type proteinSearch struct {
	cands          []candidate
	inferred       bool // no residue was stated, so none was checked
	representative bool // inserted residues use one codon each
	naiveErr       error
}

func (r *Resolver) proteinSearch(ctx context.Context, d *hgvs.Descriptor, t *cache.Transcript, frame int) (proteinSearch, error) {
	var ps proteinSearch
	first, err := t.ProteinToSpliced(1, frame)
	if err != nil {
		// no full codon in this frame
		return ps, nil //nolint:nilerr
	}
	seq := t.Sequence()
	from := first - 1
	refP, _ := codon.TranslateToStop(seq[from:])

	anchor := ""
	if d.P.StartAA != 0 {
		anchor = string(d.P.StartAA)
		if d.P.End != d.P.Start {
			anchor += string(d.P.EndAA)
		}
	}
	ps.inferred = anchor == ""
	window := r.cfg.WindowResidues
	if ps.inferred {
		window = 0
	}

	for _, delta := range ring(window) {
		a, b := d.P.Start+delta, d.P.End+delta
		if a < 1 || b > int64(len(refP)) {
			continue
		}
		actual := string(refP[a-1])
		if b != a {
			actual += string(refP[b-1])
		}
		dist := 0
		if !ps.inferred {
			var ok bool
			var err error
			dist, ok, err = r.accept(ctx, anchor, actual)
			if err != nil {
				return ps, err
			}
			if !ok {
				if delta == 0 {
					ps.naiveErr = &ReferenceMismatchError{
						TranscriptID: t.ID(),
						Descriptor:   d.String(),
						Stated:       anchor,
						Actual:       actual,
					}
				}
				continue
			}
		}
		edits, representative := proteinEdits(t, frame, d, a, b)
		for _, e := range edits {
			mut, _ := codon.TranslateToStop(e.apply(seq)[from:])
			if !reproduces(refP, mut, d, a, b) {
				continue
			}
			ps.representative = ps.representative || representative
			ps.cands = append(ps.cands, candidate{
				edit:      e,
				norm:      e.normalize(seq),
				distance:  dist,
				proximity: abs64(delta),
				cluster:   mut,
			})
		}
	}
	return ps, nil
}

// proteinEdits enumerates nucleotide edits that may produce the described
// change at residues a..b read in the given frame. The boolean reports that
// inserted residues were given representative codons.
func proteinEdits(t *cache.Transcript, frame int, d *hgvs.Descriptor, a, b int64) ([]splicedEdit, bool) {
	first, err := t.ProteinToSpliced(a, frame)
	if err != nil {
		return nil, false
	}
	last, err := t.ProteinToSpliced(b, frame)
	if err != nil {
		return nil, false
	}
	seq := t.Sequence()
	ca, cb := first-1, last+2

	switch d.Class {
	case hgvs.Substitution:
		if d.Alt == "" || d.Alt == "?" {
			return nil, false
		}
		return codonChanges(seq, ca, d.Alt[0]), false
	case hgvs.Deletion:
		return []splicedEdit{{start: ca, end: cb}}, false
	case hgvs.Duplication:
		return []splicedEdit{{start: cb, end: cb, alt: seq[ca:cb]}}, false
	case hgvs.Insertion:
		at := ca + 3
		return []splicedEdit{{start: at, end: at, alt: representativeCodons(d.Alt)}}, true
	case hgvs.Delins:
		return []splicedEdit{{start: ca, end: cb, alt: representativeCodons(d.Alt)}}, true
	case hgvs.Frameshift:
		var out []splicedEdit
		for n := int64(1); n <= 2; n++ {
			for k := int64(0); k+n <= 3; k++ {
				out = append(out, splicedEdit{start: ca + k, end: ca + k + n})
			}
		}
		for k := int64(0); k <= 3; k++ {
			for _, base := range []string{"A", "C", "G", "T"} {
				out = append(out, splicedEdit{start: ca + k, end: ca + k, alt: base})
			}
		}
		return out, false
	}
	return nil, false
}

// codonChanges returns the edits turning the codon at cs into a codon for aa
// with the fewest changed bases.
func codonChanges(seq string, cs int64, aa byte) []splicedEdit {
	cur := seq[cs : cs+3]
	best := 4
	var targets []string
	for _, c := range codon.Synonyms(aa) {
		n := codon.Differences(cur, c)
		switch {
		case n == 0:
			continue
		case n < best:
			best, targets = n, []string{c}
		case n == best:
			targets = append(targets, c)
		}
	}
	out := make([]splicedEdit, 0, len(targets))
	for _, c := range targets {
		first, last := 0, 2
		for cur[first] == c[first] {
			first++
		}
		for cur[last] == c[last] {
			last--
		}
		out = append(out, splicedEdit{start: cs + int64(first), end: cs + int64(last) + 1, alt: c[first : last+1]})
	}
	return out
}

// representativeCodons spells residues with the first codon of each.
func representativeCodons(residues string) string {
	var b strings.Builder
	for i := 0; i < len(residues); i++ {
		if syn := codon.Synonyms(residues[i]); len(syn) > 0 {
			b.WriteString(syn[0])
		}
	}
	return b.String()
}

// reproduces reports whether mut is the translation the descriptor predicts
// when applied at residues a..b of ref.
func reproduces(ref, mut string, d *hgvs.Descriptor, a, b int64) bool {
	i := int(a - 1)
	term := func(firstChanged int) bool {
		stopped := strings.HasSuffix(mut, "*")
		switch {
		case d.Marker.TermDist == 0:
			return true
		case d.Marker.TermDist < 0:
			return !stopped
		}
		return stopped && len(mut)-firstChanged == d.Marker.TermDist
	}
	changedAt := func() bool {
		if len(mut) <= i || mut[:i] != ref[:i] || mut[i] == ref[i] {
			return false
		}
		return d.Alt == "" || mut[i] == d.Alt[0]
	}

	var want string
	switch d.Class {
	case hgvs.Substitution:
		if d.Marker.Extension {
			return changedAt() && mut[i] != '*' && term(i+1)
		}
		want = ref[:i] + d.Alt + ref[i+1:]
	case hgvs.Frameshift:
		return changedAt() && mut[i] != '*' && term(i)
	case hgvs.Deletion:
		want = ref[:i] + ref[b:]
	case hgvs.Duplication:
		want = ref[:b] + ref[i:b] + ref[b:]
	case hgvs.Insertion:
		want = ref[:a] + d.Alt + ref[a:]
	case hgvs.Delins:
		want = ref[:i] + d.Alt + ref[b:]
	default:
		return false
	}
	if k := strings.IndexByte(want, '*'); k >= 0 {
		want = want[:k+1]
	}
	return mut == want
}
