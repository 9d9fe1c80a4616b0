package align

import (
	"context"
	"fmt"

	bioalign "github.com/biogo/biogo/align"
	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/feat"
	"github.com/biogo/biogo/seq/linear"
)

// residues holds every base and residue letter an anchor can carry, with the
// gap first as the Needleman-Wunsch scorer requires.
var residues = alphabet.Must(alphabet.NewAlphabet(
	"-ABCDEFGHIJKLMNOPQRSTUVWXYZ*",
	feat.Protein,
	'-', 'X',
	alphabet.CaseSensitive,
))

// unitCost scores a match 0 and a mismatch or gap -1, so the best score is
// the negated edit distance.
var unitCost = func() bioalign.NW {
	n := residues.Len()
	m := make(bioalign.NW, n)
	for i := range m {
		m[i] = make([]int, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = -1
			}
		}
	}
	return m
}()

// NW is a global unit-cost aligner backed by the biogo Needleman-Wunsch
// implementation. Inputs it cannot score fall back to Levenshtein.
type NW struct {
	fallback Levenshtein
}

// NewNW returns the biogo-backed aligner.
func NewNW() NW { return NW{} }

// Align implements Aligner.
func (nw NW) Align(ctx context.Context, a, b string) (Alignment, error) {
	if err := ctx.Err(); err != nil {
		return Alignment{}, err
	}
	if a == "" || b == "" || !scorable(a) || !scorable(b) {
		return nw.fallback.Align(ctx, a, b)
	}
	ref := linear.NewSeq("a", alphabet.BytesToLetters([]byte(a)), residues)
	query := linear.NewSeq("b", alphabet.BytesToLetters([]byte(b)), residues)
	pairs, err := unitCost.Align(ref, query)
	if err != nil {
		return Alignment{}, fmt.Errorf("needleman-wunsch %q/%q: %w", a, b, err)
	}
	return fromPairs(a, b, pairs), nil
}

func scorable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '-' || residues.IndexOf(alphabet.Letter(s[i])) < 0 {
			return false
		}
	}
	return true
}

// fromPairs expands aligned segments into per-position operations. Segments
// covering both sequences hold matches and mismatches; the others are gaps.
func fromPairs(a, b string, pairs []feat.Pair) Alignment {
	var aln Alignment
	for _, p := range pairs {
		f := p.Features()
		sa, sb := f[0], f[1]
		switch {
		case sb.Len() == 0:
			for i := 0; i < sa.Len(); i++ {
				aln.Ops = append(aln.Ops, Delete)
			}
			aln.Distance += sa.Len()
		case sa.Len() == 0:
			for i := 0; i < sb.Len(); i++ {
				aln.Ops = append(aln.Ops, Insert)
			}
			aln.Distance += sb.Len()
		default:
			for i := 0; i < sa.Len(); i++ {
				if a[sa.Start()+i] == b[sb.Start()+i] {
					aln.Ops = append(aln.Ops, Match)
					continue
				}
				aln.Ops = append(aln.Ops, Mismatch)
				aln.Distance++
			}
		}
	}
	return aln
}
