package hgvs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/inodb/vibe-varmap/internal/codon"
)

// Regexes for descriptor parsing.
var (
	// Compact genomic: chr12:25245350:C:A  or  12-25245350-C-A  or  chr12:25245350:C>A
	reCompact = regexp.MustCompile(`^(?:chr)?(\w+)[:\-](\d+)[:\-]([ACGTNacgtn]+)[>:\-/]([ACGTNacgtn]+)$`)
	// Qualified: KRAS:p.G12C, KRAS p.G12C, ENST00000311936.8:c.35G>T, chr12:g.25245350C>A, c.35G>T
	reQualified = regexp.MustCompile(`^(?:(\S+?)(?::|\s+))?([gcnp])\.(\S+)$`)
	// Bare protein change after a gene: KRAS G12C
	reBare = regexp.MustCompile(`^(\S+)\s+(\S+)$`)
	// Three-letter residue codes, converted before protein matching.
	reThree = regexp.MustCompile(`[A-Z][a-z]{2}`)
)

type nucleotideGrammar struct {
	sub, delins, del, dup, ins *regexp.Regexp
}

func newNucleotideGrammar(pos string) nucleotideGrammar {
	const seq = `([ACGTNacgtn]*)`
	const seq1 = `([ACGTNacgtn]+)`
	rng := pos + `(?:_` + pos + `)?`
	return nucleotideGrammar{
		sub:    regexp.MustCompile(`^` + pos + seq + `>` + seq1 + `$`),
		delins: regexp.MustCompile(`^` + rng + `del` + seq + `ins` + seq1 + `$`),
		del:    regexp.MustCompile(`^` + rng + `del` + seq + `$`),
		dup:    regexp.MustCompile(`^` + rng + `dup` + seq + `$`),
		ins:    regexp.MustCompile(`^` + pos + `_` + pos + `ins` + seq1 + `$`),
	}
}

var (
	genomicGrammar = newNucleotideGrammar(`(\d+)`)
	cdnaGrammar    = newNucleotideGrammar(`(\*?-?\d+(?:[+-]\d+)?)`)
)

const (
	aaRe  = `([ACDEFGHIKLMNPQRSTVWY*])`
	resRe = `([ACDEFGHIKLMNPQRSTVWY])`
)

var (
	reProtExt    = regexp.MustCompile(`^\*(\d+)` + resRe + `ext\*(\d+|\?)$`)
	reProtFs     = regexp.MustCompile(`^` + aaRe + `?(\d+)` + resRe + `?fs(?:\*(\d+|\?))?$`)
	reProtDelins = regexp.MustCompile(`^` + aaRe + `(\d+)(?:_` + aaRe + `(\d+))?delins([ACDEFGHIKLMNPQRSTVWY*]+)$`)
	reProtDel    = regexp.MustCompile(`^` + aaRe + `(\d+)(?:_` + aaRe + `(\d+))?del$`)
	reProtDup    = regexp.MustCompile(`^` + aaRe + `(\d+)(?:_` + aaRe + `(\d+))?dup$`)
	reProtIns    = regexp.MustCompile(`^` + aaRe + `(\d+)_` + aaRe + `(\d+)ins([ACDEFGHIKLMNPQRSTVWY*]+)$`)
	reProtSub    = regexp.MustCompile(`^` + aaRe + `?(\d+)` + aaRe + `$`)
)

// unsupportedTokens mark HGVS constructs that are recognised but not modelled.
var unsupportedTokens = []string{"inv", "con", "[", "::", "t(", "=", "?", "(", "^"}

// Parse converts free-form variant text into a validated Descriptor.
// It accepts compact genomic (chr12:25245350:C:A), qualified HGVS
// (KRAS:p.G12C, ENST00000311936:c.35G>T, 12:g.25245350C>A) and the bare
// gene form (KRAS G12C).
func Parse(input string) (*Descriptor, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, malformed("empty variant descriptor")
	}

	if m := reCompact.FindStringSubmatch(input); m != nil {
		return parseCompact(m)
	}

	var (
		d   *Descriptor
		err error
	)
	if m := reQualified.FindStringSubmatch(input); m != nil {
		feature, prefix, change := m[1], m[2], m[3]
		switch prefix {
		case "g":
			d, err = parseNucleotide(change, genomicGrammar, SpaceGenomic)
			if err == nil {
				if feature == "" {
					return nil, malformed("genomic descriptor %q without chromosome", input)
				}
				d.Chrom = NormalizeChrom(feature)
			}
		case "c", "n":
			d, err = parseNucleotide(change, cdnaGrammar, SpaceCDNA)
		case "p":
			d, err = parseProtein(change)
		}
		if err != nil {
			return nil, fmt.Errorf("%q: %w", input, err)
		}
		if d.Space != SpaceGenomic {
			d.Feature = feature
		}
	} else if m := reBare.FindStringSubmatch(input); m != nil {
		d, err = parseProtein(m[2])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", input, err)
		}
		d.Feature = m[1]
	} else {
		return nil, malformed("cannot parse %q (expected genomic, cDNA or protein notation)", input)
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%q: %w", input, err)
	}
	return d, nil
}

// NormalizeChrom strips the "chr" prefix used by UCSC-style names.
func NormalizeChrom(chrom string) string {
	return strings.TrimPrefix(chrom, "chr")
}

func parseCompact(m []string) (*Descriptor, error) {
	pos, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return nil, malformed("bad position %q", m[2])
	}
	ref, alt := strings.ToUpper(m[3]), strings.ToUpper(m[4])
	d := &Descriptor{Space: SpaceGenomic, Chrom: m[1], Ref: ref, Alt: alt}

	switch {
	case len(ref) == 1 && len(alt) == 1:
		d.Class = Substitution
		d.G = GRange{Start: pos, End: pos}
	case len(ref) < len(alt) && strings.HasPrefix(alt, ref):
		// VCF-style insertion anchored on the preceding bases.
		d.Class = Insertion
		d.Ref = ""
		d.Alt = alt[len(ref):]
		last := pos + int64(len(ref)) - 1
		d.G = GRange{Start: last, End: last + 1}
	case len(ref) > len(alt) && strings.HasPrefix(ref, alt):
		d.Class = Deletion
		d.Ref = ref[len(alt):]
		d.Alt = ""
		start := pos + int64(len(alt))
		d.G = GRange{Start: start, End: start + int64(len(d.Ref)) - 1}
	default:
		d.Class = Delins
		d.G = GRange{Start: pos, End: pos + int64(len(ref)) - 1}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func parseNucleotide(change string, g nucleotideGrammar, space Space) (*Descriptor, error) {
	d := &Descriptor{Space: space}
	var (
		start, end string
		err        error
	)
	if m := g.sub.FindStringSubmatch(change); m != nil {
		start = m[1]
		d.Ref, d.Alt = strings.ToUpper(m[2]), strings.ToUpper(m[3])
		d.Class = Substitution
		if len(d.Ref) > 1 || len(d.Alt) > 1 {
			if d.Ref == "" {
				return nil, malformed("multi-base substitution %q needs reference bases", change)
			}
			d.Class = Delins
		}
	} else if m := g.delins.FindStringSubmatch(change); m != nil {
		start, end = m[1], m[2]
		d.Ref, d.Alt = strings.ToUpper(m[3]), strings.ToUpper(m[4])
		d.Class = Delins
	} else if m := g.del.FindStringSubmatch(change); m != nil {
		start, end = m[1], m[2]
		d.Ref = strings.ToUpper(m[3])
		d.Class = Deletion
	} else if m := g.dup.FindStringSubmatch(change); m != nil {
		start, end = m[1], m[2]
		d.Ref = strings.ToUpper(m[3])
		d.Class = Duplication
	} else if m := g.ins.FindStringSubmatch(change); m != nil {
		start, end = m[1], m[2]
		d.Alt = strings.ToUpper(m[3])
		d.Class = Insertion
	} else {
		return nil, unrecognised(change)
	}

	switch space {
	case SpaceGenomic:
		if d.G.Start, err = strconv.ParseInt(start, 10, 64); err != nil {
			return nil, malformed("bad position %q", start)
		}
		d.G.End = d.G.Start
		if end != "" {
			if d.G.End, err = strconv.ParseInt(end, 10, 64); err != nil {
				return nil, malformed("bad position %q", end)
			}
		} else if d.Class == Delins && d.Ref != "" {
			d.G.End = d.G.Start + int64(len(d.Ref)) - 1
		}
	case SpaceCDNA:
		if d.C.Start, err = ParseCPos(start); err != nil {
			return nil, err
		}
		d.C.End = d.C.Start
		if end != "" {
			if d.C.End, err = ParseCPos(end); err != nil {
				return nil, err
			}
		} else if d.Class == Delins && d.Ref != "" {
			d.C.End = d.C.Start.Advance(int64(len(d.Ref)) - 1)
		}
	}
	return d, nil
}

func parseProtein(change string) (*Descriptor, error) {
	if strings.HasPrefix(change, "(") && strings.HasSuffix(change, ")") {
		change = change[1 : len(change)-1]
	}
	change = reThree.ReplaceAllStringFunc(change, func(s string) string {
		if aa, ok := codon.ThreeToSingle[s]; ok {
			return string(aa)
		}
		return s
	})

	d := &Descriptor{Space: SpaceProtein}
	atoi := func(s string) int64 {
		n, _ := strconv.ParseInt(s, 10, 64)
		return n
	}
	aa := func(s string) byte {
		if s == "" {
			return 0
		}
		return s[0]
	}
	term := func(s string) int {
		switch s {
		case "":
			return 0
		case "?":
			return -1
		}
		n, _ := strconv.Atoi(s)
		return n
	}
	// a stated termination distance counts from the first changed residue
	badTerm := func(s string) bool { return s != "" && s != "?" && term(s) < 1 }
	// anchored fills the range and, when every residue of the span is stated,
	// the reference.
	anchored := func(sa, s, ea, e string) {
		d.P = PRange{Start: atoi(s), End: atoi(s), StartAA: aa(sa), EndAA: aa(sa)}
		if e != "" {
			d.P.End, d.P.EndAA = atoi(e), aa(ea)
		}
		switch d.P.End - d.P.Start {
		case 0:
			d.Ref = sa
		case 1:
			d.Ref = sa + ea
		}
	}

	if m := reProtExt.FindStringSubmatch(change); m != nil {
		if badTerm(m[3]) {
			return nil, malformed("extension to stop %q must be at least 1", m[3])
		}
		n := atoi(m[1])
		d.Class = Substitution
		d.P = PRange{Start: n, End: n, StartAA: '*', EndAA: '*'}
		d.Ref, d.Alt = "*", m[2]
		d.Marker = PMarker{Extension: true, TermDist: term(m[3])}
	} else if m := reProtFs.FindStringSubmatch(change); m != nil {
		if badTerm(m[4]) {
			return nil, malformed("frameshift stop %q must be at least 1", m[4])
		}
		n := atoi(m[2])
		d.Class = Frameshift
		d.P = PRange{Start: n, End: n, StartAA: aa(m[1]), EndAA: aa(m[1])}
		d.Ref, d.Alt = m[1], m[3]
		d.Marker = PMarker{Frameshift: true, TermDist: term(m[4])}
	} else if m := reProtDelins.FindStringSubmatch(change); m != nil {
		d.Class = Delins
		anchored(m[1], m[2], m[3], m[4])
		d.Alt = m[5]
	} else if m := reProtDel.FindStringSubmatch(change); m != nil {
		d.Class = Deletion
		anchored(m[1], m[2], m[3], m[4])
	} else if m := reProtDup.FindStringSubmatch(change); m != nil {
		d.Class = Duplication
		anchored(m[1], m[2], m[3], m[4])
	} else if m := reProtIns.FindStringSubmatch(change); m != nil {
		d.Class = Insertion
		d.P = PRange{Start: atoi(m[2]), End: atoi(m[4]), StartAA: aa(m[1]), EndAA: aa(m[3])}
		d.Alt = m[5]
	} else if m := reProtSub.FindStringSubmatch(change); m != nil {
		n := atoi(m[2])
		d.Class = Substitution
		d.P = PRange{Start: n, End: n, StartAA: aa(m[1]), EndAA: aa(m[1])}
		d.Ref, d.Alt = m[1], m[3]
	} else {
		return nil, unrecognised(change)
	}
	return d, nil
}

// unrecognised distinguishes modelled-but-unsupported constructs from noise.
func unrecognised(change string) error {
	lower := strings.ToLower(change)
	for _, tok := range unsupportedTokens {
		if strings.Contains(lower, tok) {
			return fmt.Errorf("%w: %q", ErrUnsupportedVariantClass, change)
		}
	}
	return malformed("unrecognised change %q", change)
}
