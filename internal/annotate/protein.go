package annotate

import (
	"strings"

	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// diffProtein describes how mut differs from ref. Both are translations
// from the first codon up to and including the first stop. residue is the
// 1-based residue holding the first edited base and names synonymous
// changes. It returns nil when the difference cannot be expressed.
func diffProtein(ref, mut string, frameshift bool, residue int64) (*hgvs.Descriptor, string) {
	d := &hgvs.Descriptor{Space: hgvs.SpaceProtein, Class: hgvs.Substitution}
	i := 0
	for i < len(ref) && i < len(mut) && ref[i] == mut[i] {
		i++
	}

	if i == len(ref) && i == len(mut) {
		if residue < 1 || residue > int64(len(ref)) {
			return nil, ConsequenceCodingSequenceVariant
		}
		aa := ref[residue-1]
		d.P = hgvs.PRange{Start: residue, End: residue, StartAA: aa, EndAA: aa}
		d.Ref, d.Alt = string(aa), string(aa)
		if aa == '*' {
			return d, ConsequenceStopRetained
		}
		return d, ConsequenceSynonymousVariant
	}
	if i >= len(ref) || i >= len(mut) {
		return nil, ConsequenceCodingSequenceVariant
	}

	refAA, mutAA := ref[i], mut[i]
	pos := int64(i + 1)
	d.P = hgvs.PRange{Start: pos, End: pos, StartAA: refAA, EndAA: refAA}
	d.Ref = string(refAA)
	stopped := strings.HasSuffix(mut, "*")

	switch {
	case i == 0:
		d.Alt = "?"
		return d, ConsequenceStartLost
	case mutAA == '*':
		d.Alt = "*"
		return d, ConsequenceStopGained
	case refAA == '*':
		d.Alt = string(mutAA)
		d.Marker = hgvs.PMarker{Extension: true, TermDist: -1}
		if stopped {
			d.Marker.TermDist = len(mut) - 1 - i
		}
		return d, ConsequenceStopLost
	case frameshift:
		d.Class = hgvs.Frameshift
		d.Alt = string(mutAA)
		d.Marker = hgvs.PMarker{Frameshift: true, TermDist: -1}
		if stopped {
			d.Marker.TermDist = len(mut) - i
		}
		return d, ConsequenceFrameshiftVariant
	}

	j := 0
	for j < len(ref)-i && j < len(mut)-i && ref[len(ref)-1-j] == mut[len(mut)-1-j] {
		j++
	}
	r, m := ref[i:len(ref)-j], mut[i:len(mut)-j]
	switch {
	case len(r) == 1 && len(m) == 1:
		d.Alt = m
		return d, ConsequenceMissenseVariant
	case len(m) == 0:
		d.Class = hgvs.Deletion
		d.P.End, d.P.EndAA = pos+int64(len(r))-1, r[len(r)-1]
		d.Ref = r
		return d, ConsequenceInframeDeletion
	case len(r) == 0:
		k := len(m)
		if i >= k && ref[i-k:i] == m {
			d.Class = hgvs.Duplication
			d.P = hgvs.PRange{Start: int64(i - k + 1), End: int64(i), StartAA: ref[i-k], EndAA: ref[i-1]}
			d.Ref = m
			return d, ConsequenceInframeInsertion
		}
		d.Class = hgvs.Insertion
		d.P = hgvs.PRange{Start: int64(i), End: pos, StartAA: ref[i-1], EndAA: refAA}
		d.Ref, d.Alt = "", m
		return d, ConsequenceInframeInsertion
	}
	d.Class = hgvs.Delins
	d.P.End, d.P.EndAA = pos+int64(len(r))-1, r[len(r)-1]
	d.Ref, d.Alt = r, m
	switch {
	case len(m) < len(r) && strings.ContainsRune(m, '*'):
		return d, ConsequenceStopGainedInframeDel
	case len(m) < len(r):
		return d, ConsequenceInframeDeletion
	case len(m) > len(r):
		return d, ConsequenceInframeInsertion
	}
	return d, ConsequenceMissenseVariant
}
