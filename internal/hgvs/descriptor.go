// Package hgvs parses variant descriptions into typed descriptors and renders
// them back in HGVS notation.
package hgvs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/inodb/vibe-varmap/internal/codon"
)

var (
	// ErrMalformedDescriptor is returned for input that cannot be parsed or
	// whose positions and alleles disagree.
	ErrMalformedDescriptor = errors.New("malformed variant descriptor")
	// ErrUnsupportedVariantClass is returned for recognised constructs that are
	// not modelled, such as inversions or translocations.
	ErrUnsupportedVariantClass = errors.New("unsupported variant class")
)

// Space identifies the coordinate space a descriptor is expressed in.
type Space int

const (
	SpaceUnknown Space = iota
	SpaceGenomic
	SpaceCDNA
	SpaceProtein
)

// String returns the HGVS prefix letter for the space.
func (s Space) String() string {
	switch s {
	case SpaceGenomic:
		return "g"
	case SpaceCDNA:
		return "c"
	case SpaceProtein:
		return "p"
	}
	return "?"
}

// ParseSpace accepts "g", "c", "p" or their long names.
func ParseSpace(s string) (Space, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "g", "genomic", "gdna":
		return SpaceGenomic, nil
	case "c", "cdna", "n":
		return SpaceCDNA, nil
	case "p", "protein":
		return SpaceProtein, nil
	case "":
		return SpaceUnknown, nil
	}
	return SpaceUnknown, fmt.Errorf("unknown coordinate space %q", s)
}

// Class is the variant class.
type Class int

const (
	Substitution Class = iota
	Insertion
	Deletion
	Duplication
	Delins
	Frameshift
)

func (c Class) String() string {
	switch c {
	case Substitution:
		return "substitution"
	case Insertion:
		return "insertion"
	case Deletion:
		return "deletion"
	case Duplication:
		return "duplication"
	case Delins:
		return "delins"
	case Frameshift:
		return "frameshift"
	}
	return "unknown"
}

// GRange is a 1-based inclusive genomic span. Insertions use the two
// flanking bases, so End == Start+1.
type GRange struct {
	Start, End int64
}

// CRange is a c. span in transcript orientation. Insertions use flanks.
type CRange struct {
	Start, End CPos
}

// PRange is a residue span with the residues stated at each end.
// A zero StartAA or EndAA means the residue was not stated.
type PRange struct {
	Start, End     int64
	StartAA, EndAA byte
}

// PMarker carries the protein-only frameshift and stop-extension markers.
// TermDist is 0 when not stated and -1 when no stop is reached.
type PMarker struct {
	Frameshift bool
	Extension  bool
	TermDist   int
}

// Descriptor is a variant at one coordinate level. Exactly one of G, C or P
// is meaningful, selected by Space.
//
// Ref holds the reference bases (coding strand for c., plus strand for g.)
// or residues; empty means unknown, or not applicable for insertions. For
// duplications Ref is the duplicated sequence.
type Descriptor struct {
	Space   Space
	Class   Class
	Feature string
	Chrom   string

	G GRange
	C CRange
	P PRange

	Ref    string
	Alt    string
	Marker PMarker
}

// Validate checks that alleles use the right alphabet and agree with the span.
func (d *Descriptor) Validate() error {
	switch d.Space {
	case SpaceGenomic:
		if d.Chrom == "" {
			return malformed("genomic descriptor without chromosome")
		}
		if d.G.Start < 1 || d.G.End < d.G.Start {
			return malformed("invalid genomic span %d_%d", d.G.Start, d.G.End)
		}
		return d.validateNucleotide(d.G.End-d.G.Start+1, true, d.G.End == d.G.Start+1)
	case SpaceCDNA:
		if d.C.Start.Compare(d.C.End) > 0 {
			return malformed("c. span %s_%s is reversed", d.C.Start, d.C.End)
		}
		n, known := span(d.C.Start, d.C.End)
		return d.validateNucleotide(n, known, adjacent(d.C.Start, d.C.End))
	case SpaceProtein:
		return d.validateProtein()
	}
	return malformed("unknown coordinate space")
}

func (d *Descriptor) validateNucleotide(n int64, known, adjacentFlanks bool) error {
	if err := checkAlphabet(d.Ref, codon.IsBase); err != nil {
		return err
	}
	if err := checkAlphabet(d.Alt, codon.IsBase); err != nil {
		return err
	}
	refFits := d.Ref == "" || !known || int64(len(d.Ref)) == n

	switch d.Class {
	case Substitution:
		if !known || n != 1 || len(d.Alt) != 1 || len(d.Ref) > 1 {
			return malformed("substitution must change exactly one base")
		}
		if d.Ref == d.Alt {
			return malformed("substitution %s>%s does not change the base", d.Ref, d.Alt)
		}
	case Insertion:
		if d.Ref != "" || d.Alt == "" {
			return malformed("insertion needs inserted bases and no reference")
		}
		if !adjacentFlanks {
			return malformed("insertion flanks must be adjacent")
		}
	case Deletion, Duplication:
		if d.Alt != "" {
			return malformed("%s takes no alternate allele", d.Class)
		}
		if !refFits {
			return malformed("%s sequence %q does not match span of %d", d.Class, d.Ref, n)
		}
	case Delins:
		if d.Alt == "" {
			return malformed("delins needs inserted bases")
		}
		if !refFits {
			return malformed("deleted sequence %q does not match span of %d", d.Ref, n)
		}
	default:
		return malformed("%s is protein-only", d.Class)
	}
	return nil
}

func (d *Descriptor) validateProtein() error {
	p := d.P
	if p.Start < 1 || p.End < p.Start {
		return malformed("invalid residue span %d_%d", p.Start, p.End)
	}
	for _, aa := range []byte{p.StartAA, p.EndAA} {
		if aa != 0 && !codon.IsAminoAcid(aa) {
			return malformed("invalid residue %q", aa)
		}
	}
	if err := checkAlphabet(d.Ref, codon.IsAminoAcid); err != nil {
		return err
	}
	alt := d.Alt
	if d.Class == Substitution && alt == "?" {
		alt = ""
	}
	if err := checkAlphabet(alt, codon.IsAminoAcid); err != nil {
		return err
	}
	n := p.End - p.Start + 1
	if d.Ref != "" && int64(len(d.Ref)) != n {
		return malformed("residues %q do not match span of %d", d.Ref, n)
	}

	switch d.Class {
	case Substitution:
		if n != 1 || len(d.Alt) != 1 {
			return malformed("substitution must change exactly one residue")
		}
		if d.Marker.Extension && p.StartAA != '*' {
			return malformed("extension must start at a stop codon")
		}
	case Insertion:
		if n != 2 || d.Alt == "" || p.StartAA == 0 || p.EndAA == 0 {
			return malformed("insertion needs two adjacent anchor residues and inserted residues")
		}
	case Deletion, Duplication:
		if d.Alt != "" || p.StartAA == 0 {
			return malformed("%s needs a stated residue and no alternate", d.Class)
		}
	case Delins:
		if d.Alt == "" || p.StartAA == 0 {
			return malformed("delins needs a stated residue and inserted residues")
		}
	case Frameshift:
		if n != 1 || len(d.Alt) > 1 {
			return malformed("frameshift is described at a single residue")
		}
	}
	return nil
}

func checkAlphabet(s string, ok func(byte) bool) error {
	for i := 0; i < len(s); i++ {
		if !ok(s[i]) {
			return malformed("invalid symbol %q in %q", s[i], s)
		}
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDescriptor, fmt.Sprintf(format, args...))
}

// String renders the descriptor in HGVS notation with one-letter residues.
func (d *Descriptor) String() string {
	return d.format(func(aa byte) string { return string(aa) })
}

// ThreeLetter renders the descriptor with three-letter residue codes.
func (d *Descriptor) ThreeLetter() string {
	return d.format(codon.Three)
}

// Change renders only the part after the space prefix, e.g. "35G>T".
func (d *Descriptor) Change() string {
	switch d.Space {
	case SpaceGenomic:
		return nucleotideChange(d, gPos(d.G.Start), gPos(d.G.End), d.G.Start == d.G.End)
	case SpaceCDNA:
		return nucleotideChange(d, d.C.Start.String(), d.C.End.String(), d.C.Start == d.C.End)
	case SpaceProtein:
		return proteinChange(d, func(aa byte) string { return string(aa) })
	}
	return ""
}

func (d *Descriptor) format(aa func(byte) string) string {
	var b strings.Builder
	switch d.Space {
	case SpaceGenomic:
		b.WriteString(d.Chrom)
	default:
		b.WriteString(d.Feature)
	}
	if b.Len() > 0 {
		b.WriteByte(':')
	}
	b.WriteString(d.Space.String())
	b.WriteByte('.')
	if d.Space == SpaceProtein {
		b.WriteString(proteinChange(d, aa))
	} else {
		b.WriteString(d.Change())
	}
	return b.String()
}

func gPos(p int64) string { return strconv.FormatInt(p, 10) }

func nucleotideChange(d *Descriptor, start, end string, single bool) string {
	pos := start
	if !single {
		pos = start + "_" + end
	}
	switch d.Class {
	case Substitution:
		return pos + d.Ref + ">" + d.Alt
	case Insertion:
		return pos + "ins" + d.Alt
	case Deletion:
		return pos + "del"
	case Duplication:
		return pos + "dup"
	case Delins:
		return pos + "delins" + d.Alt
	}
	return pos
}

func proteinChange(d *Descriptor, aa func(byte) string) string {
	p := d.P
	residue := func(a byte, n int64) string {
		s := strconv.FormatInt(n, 10)
		if a == 0 {
			return s
		}
		return aa(a) + s
	}
	pos := residue(p.StartAA, p.Start)
	if p.End != p.Start {
		pos += "_" + residue(p.EndAA, p.End)
	}
	seq := func(s string) string {
		var b strings.Builder
		for i := 0; i < len(s); i++ {
			b.WriteString(aa(s[i]))
		}
		return b.String()
	}
	term := func() string {
		switch {
		case d.Marker.TermDist > 0:
			return aa('*') + strconv.Itoa(d.Marker.TermDist)
		case d.Marker.TermDist < 0:
			return aa('*') + "?"
		}
		return ""
	}

	switch d.Class {
	case Substitution:
		switch {
		case d.Marker.Extension:
			return pos + seq(d.Alt) + "ext" + term()
		case d.Alt == "?":
			return pos + "?"
		case d.Ref != "" && d.Ref == d.Alt:
			return pos + "="
		}
		return pos + seq(d.Alt)
	case Insertion:
		return pos + "ins" + seq(d.Alt)
	case Deletion:
		return pos + "del"
	case Duplication:
		return pos + "dup"
	case Delins:
		return pos + "delins" + seq(d.Alt)
	case Frameshift:
		return pos + seq(d.Alt) + "fs" + term()
	}
	return pos
}
