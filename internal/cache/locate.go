package cache

import (
	"fmt"
	"strings"
)

// LocationKind places a genomic position relative to a transcript.
type LocationKind int

const (
	Upstream LocationKind = iota
	Exonic
	Intronic
	Downstream
)

// Part is the functional part of the transcript an exonic position lies in.
type Part int

const (
	PartNone Part = iota
	PartUTR5
	PartCDS
	PartUTR3
	PartNonCoding
)

// SpliceSite classifies positions near exon/intron junctions.
type SpliceSite int

const (
	SpliceNone SpliceSite = iota
	SpliceDonor
	SpliceAcceptor
	SpliceRegion
)

// splice region extends this far into the intron and 3 bases into the exon.
const (
	spliceRegionIntron = 8
	spliceRegionExon   = 3
)

// Location describes where a genomic position falls on a transcript.
type Location struct {
	Kind     LocationKind
	Exon     int   // exon number when exonic
	Intron   int   // intron lies between exon Intron and Intron+1 when intronic
	Part     Part  // exonic positions only
	Splice   SpliceSite
	Distance int64 // bases to the nearest exon for non-exonic positions
}

// String renders the location as a region label, e.g. "cds_in_exon_2" or
// "intron_between_exon_1_and_2;splice_donor".
func (l Location) String() string {
	var b strings.Builder
	switch l.Kind {
	case Upstream:
		fmt.Fprintf(&b, "upstream_%d_bp", l.Distance)
	case Downstream:
		fmt.Fprintf(&b, "downstream_%d_bp", l.Distance)
	case Intronic:
		fmt.Fprintf(&b, "intron_between_exon_%d_and_%d", l.Intron, l.Intron+1)
	case Exonic:
		switch l.Part {
		case PartCDS:
			fmt.Fprintf(&b, "cds_in_exon_%d", l.Exon)
		case PartUTR5:
			fmt.Fprintf(&b, "5-UTR;noncoding_exon_%d", l.Exon)
		case PartUTR3:
			fmt.Fprintf(&b, "3-UTR;noncoding_exon_%d", l.Exon)
		default:
			fmt.Fprintf(&b, "noncoding_exon_%d", l.Exon)
		}
	}
	switch l.Splice {
	case SpliceDonor:
		b.WriteString(";splice_donor")
	case SpliceAcceptor:
		b.WriteString(";splice_acceptor")
	case SpliceRegion:
		b.WriteString(";splice_region")
	}
	return b.String()
}

// Locate classifies a genomic position against the transcript structure.
func (t *Transcript) Locate(pos int64) Location {
	if i := t.exonIndex(pos); i >= 0 {
		off, _ := t.GenomicToSpliced(pos)
		loc := Location{Kind: Exonic, Exon: t.exons[i].Number, Part: t.partOf(off)}
		fromStart := off - t.offsets[i] - 1
		fromEnd := t.offsets[i] + t.exons[i].Len() - off
		if (i > 0 && fromStart < spliceRegionExon) || (i+1 < len(t.exons) && fromEnd < spliceRegionExon) {
			loc.Splice = SpliceRegion
		}
		return loc
	}

	if k, up, down, ok := t.intronAt(pos); ok {
		loc := Location{Kind: Intronic, Intron: t.exons[k].Number, Distance: min(up, down)}
		switch {
		case up <= 2:
			loc.Splice = SpliceDonor
		case down <= 2:
			loc.Splice = SpliceAcceptor
		case up <= spliceRegionIntron || down <= spliceRegionIntron:
			loc.Splice = SpliceRegion
		}
		return loc
	}

	// Outside the exon span: upstream is 5' of the transcript.
	before := pos < t.lo
	dist := t.lo - pos
	if !before {
		dist = pos - t.hi
	}
	if before == t.IsForward() {
		return Location{Kind: Upstream, Distance: dist}
	}
	return Location{Kind: Downstream, Distance: dist}
}

func (t *Transcript) partOf(off int64) Part {
	switch {
	case !t.IsCoding():
		return PartNonCoding
	case off < t.cdsStart:
		return PartUTR5
	case off > t.cdsEnd:
		return PartUTR3
	}
	return PartCDS
}
