package annotate

import (
	"context"
	"errors"

	"github.com/inodb/vibe-varmap/internal/cache"
	"github.com/inodb/vibe-varmap/internal/codon"
	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// Engine translates fully specified genomic and cDNA descriptors on a single
// transcript. It is safe for concurrent use.
type Engine struct {
	ref cache.ReferenceAccessor
}

// NewEngine returns an engine verifying non-exonic references against ref,
// which may be nil.
func NewEngine(ref cache.ReferenceAccessor) *Engine {
	return &Engine{ref: ref}
}

// DefaultTarget is the target space used when a request names none:
// genomic descriptors map to cDNA, everything else maps to genomic.
func DefaultTarget(source hgvs.Space) hgvs.Space {
	if source == hgvs.SpaceGenomic {
		return hgvs.SpaceCDNA
	}
	return hgvs.SpaceGenomic
}

// Map translates d on t into the target space. The result is always Exact;
// the stated reference is verified against the transcript sequence for
// exonic edits and against the genome otherwise.
func (e *Engine) Map(ctx context.Context, d *hgvs.Descriptor, t *cache.Transcript, target hgvs.Space) (*MappingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Space == hgvs.SpaceProtein {
		return nil, ErrUnderSpecified
	}
	le, err := locate(t, d)
	if err != nil {
		return nil, err
	}
	var notes []string
	verified, err := e.verify(ctx, t, d, le)
	if err != nil {
		return nil, err
	}
	if !verified {
		notes = append(notes, NoteReferenceUnverified)
	}
	return e.build(ctx, t, d, le, target, notes)
}

// verify checks the stated reference and fills in the actual one. It reports
// false when no sequence was available to check against.
func (e *Engine) verify(ctx context.Context, t *cache.Transcript, d *hgvs.Descriptor, le *locatedEdit) (bool, error) {
	if le.class == hgvs.Insertion {
		return true, nil
	}
	var actual string
	switch {
	case le.exonic && t.HasSequence():
		actual = t.Sequence()[le.s:le.e]
	case e.ref != nil:
		plus, err := e.ref.GenomicSequence(ctx, t.Chrom(), le.gStart, le.gEnd)
		if errors.Is(err, cache.ErrNoSequence) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		actual = plus
		if !t.IsForward() {
			actual = codon.ReverseComplement(plus)
		}
	default:
		return false, nil
	}
	if le.ref != "" && le.ref != actual {
		return false, &ReferenceMismatchError{
			TranscriptID: t.ID(),
			Descriptor:   d.String(),
			Stated:       le.ref,
			Actual:       actual,
		}
	}
	le.ref = actual
	return true, nil
}

// build renders a verified edit in every space and fills in consequence.
func (e *Engine) build(ctx context.Context, t *cache.Transcript, src *hgvs.Descriptor, le *locatedEdit, target hgvs.Space, notes []string) (*MappingResult, error) {
	res := &MappingResult{
		Source:         src,
		TargetSpace:    target,
		Confidence:     Exact,
		Classification: OutOfExon,
		TranscriptIDs:  []string{t.ID()},
		GeneName:       t.GeneName(),
		IsCanonical:    t.IsCanonical(),
		Notes:          notes,
	}

	var se splicedEdit
	haveSpliced := le.exonic && t.HasSequence()
	if haveSpliced {
		se = le.spliced(t.Sequence())
		cd, gd, err := describeSpliced(t, se)
		if err != nil {
			return nil, err
		}
		res.CDNA, res.Genomic = cd, gd
	} else {
		res.CDNA, res.Genomic = describeLocated(t, le)
	}
	// the source space keeps the descriptor as stated, with the reference filled in
	switch src.Space {
	case hgvs.SpaceGenomic:
		g := *src
		g.Chrom = t.Chrom()
		if le.ref != "" && g.Class != hgvs.Insertion {
			g.Ref = le.ref
			if !t.IsForward() {
				g.Ref = codon.ReverseComplement(le.ref)
			}
		}
		res.Genomic = &g
	case hgvs.SpaceCDNA:
		if !haveSpliced {
			break
		}
		c := *src
		c.Feature = t.ID()
		if le.ref != "" && c.Class != hgvs.Insertion {
			c.Ref = le.ref
		}
		if c.Class == res.CDNA.Class {
			res.CDNA = &c
		}
	}

	res.Region = describeRegion(t, le, res)

	switch {
	case !le.exonic:
		res.Consequence = nonExonicConsequence(t, le)
	case !t.IsCoding():
		res.Classification = OutsideCDS
		res.Consequence = ConsequenceNonCodingExon
	default:
		res.Classification = OutsideCDS
		res.Consequence = utrConsequence(t, le)
		cdsStart, cdsEnd := t.CDSRange()
		inside := le.s >= cdsStart-1 && le.e <= cdsEnd
		if le.s == le.e {
			inside = le.s > cdsStart-1 && le.s < cdsEnd
		}
		overlaps := le.s < cdsEnd && le.e > cdsStart-1
		switch {
		case inside:
			res.Classification = Coding
			res.Consequence = ConsequenceCodingSequenceVariant
			if haveSpliced {
				res.Protein, res.Consequence = proteinEffect(t, se)
			}
		case overlaps:
			res.Consequence = ConsequenceCodingSequenceVariant
			res.Notes = append(res.Notes, NoteSpansCDSBoundary)
		}
	}
	res.Impact = GetImpact(res.Consequence)
	res.key = keyOf(res.Genomic, newPlusSequence(ctx, e.ref, t))

	switch target {
	case hgvs.SpaceGenomic:
		res.Target = res.Genomic
	case hgvs.SpaceCDNA:
		res.Target = res.CDNA
	case hgvs.SpaceProtein:
		res.Target = res.Protein
	}
	return res, nil
}

// mapSpliced renders a candidate edit as a c. descriptor and maps it through
// Map, so every candidate is verified like user input.
func (e *Engine) mapSpliced(ctx context.Context, t *cache.Transcript, se splicedEdit, target hgvs.Space) (*MappingResult, error) {
	cd, _, err := describeSpliced(t, se)
	if err != nil {
		return nil, err
	}
	return e.Map(ctx, cd, t, target)
}

// proteinEffect translates the edited CDS and describes the protein change.
func proteinEffect(t *cache.Transcript, se splicedEdit) (*hgvs.Descriptor, string) {
	seq := t.Sequence()
	first, err := t.CDSToSpliced(1)
	if err != nil {
		return nil, ConsequenceCodingSequenceVariant
	}
	cds, err := t.SplicedToCDS(se.start + 1)
	if err != nil {
		return nil, ConsequenceCodingSequenceVariant
	}
	residue, _ := t.CDSToProtein(cds)
	ref, _ := codon.TranslateToStop(seq[first-1:])
	mut, _ := codon.TranslateToStop(se.apply(seq)[first-1:])
	p, consequence := diffProtein(ref, mut, se.delta()%3 != 0, residue)
	if p != nil {
		p.Feature = t.ID()
	}
	return p, consequence
}

// describeRegion labels the region of an edit, 5' end first. Edits whose
// ends fall in different regions are labelled from_[a]_to_[b], and crossing
// an exon/intron junction or the CDS edge adds a note.
func describeRegion(t *cache.Transcript, le *locatedEdit, res *MappingResult) string {
	from, to := t.Locate(le.gStart), t.Locate(le.gEnd)
	if !t.IsForward() {
		from, to = to, from
	}
	a, b := from.String(), to.String()
	if a == b {
		return a
	}
	if crossesJunction(from, to) {
		res.Notes = append(res.Notes, NoteCrossesSpliceSite)
	}
	if !le.exonic && (inCDS(from) && outsideCDS(to) || outsideCDS(from) && inCDS(to)) {
		res.Notes = append(res.Notes, NoteSpansCDSBoundary)
	}
	return "from_[" + a + "]_to_[" + b + "]"
}

func crossesJunction(from, to cache.Location) bool {
	switch {
	case from.Kind == cache.Intronic || to.Kind == cache.Intronic:
		return from.Kind != to.Kind || from.Intron != to.Intron
	case from.Kind == cache.Exonic && to.Kind == cache.Exonic:
		return from.Exon != to.Exon
	}
	return false
}

func inCDS(l cache.Location) bool {
	return l.Kind == cache.Exonic && l.Part == cache.PartCDS
}

func outsideCDS(l cache.Location) bool {
	switch l.Kind {
	case cache.Upstream, cache.Downstream:
		return true
	case cache.Exonic:
		return l.Part == cache.PartUTR5 || l.Part == cache.PartUTR3
	}
	return false
}

// describeSpliced renders a replacement-form edit as c. and g. descriptors,
// choosing the HGVS class from the bases involved.
func describeSpliced(t *cache.Transcript, se splicedEdit) (cd, gd *hgvs.Descriptor, err error) {
	seq := t.Sequence()
	ref := seq[se.start:se.end]
	cd = &hgvs.Descriptor{Space: hgvs.SpaceCDNA, Feature: t.ID(), Ref: ref, Alt: se.alt}
	first, last := se.start+1, se.end // 1-based spliced
	k := int64(len(se.alt))
	switch {
	case ref == "" && se.start >= k && seq[se.start-k:se.start] == se.alt:
		cd.Class = hgvs.Duplication
		first, last = se.start-k+1, se.start
		cd.Ref, cd.Alt = se.alt, ""
	case ref == "":
		cd.Class = hgvs.Insertion
		first, last = se.start, se.start+1
		if first < 1 || last > t.Len() {
			return nil, nil, cache.ErrOutOfRange
		}
	case se.alt == "":
		cd.Class = hgvs.Deletion
	case len(ref) == 1 && len(se.alt) == 1:
		cd.Class = hgvs.Substitution
	default:
		cd.Class = hgvs.Delins
	}
	cd.C = hgvs.CRange{Start: t.SplicedToCPos(first), End: t.SplicedToCPos(last)}

	g1, err := t.SplicedToGenomic(first)
	if err != nil {
		return nil, nil, err
	}
	g2, err := t.SplicedToGenomic(last)
	if err != nil {
		return nil, nil, err
	}
	gd = &hgvs.Descriptor{Space: hgvs.SpaceGenomic, Class: cd.Class, Chrom: t.Chrom(), Ref: cd.Ref, Alt: cd.Alt}
	if t.IsForward() {
		gd.G = hgvs.GRange{Start: g1, End: g2}
	} else {
		gd.G = hgvs.GRange{Start: g2, End: g1}
		gd.Ref, gd.Alt = codon.ReverseComplement(cd.Ref), codon.ReverseComplement(cd.Alt)
	}
	if cd.Class == hgvs.Insertion && gd.G.End != gd.G.Start+1 {
		// flanks straddle an intron; keep the insertion next to the 5' flank
		if t.IsForward() {
			gd.G = hgvs.GRange{Start: g1, End: g1 + 1}
		} else {
			gd.G = hgvs.GRange{Start: g1 - 1, End: g1}
		}
	}
	return cd, gd, nil
}

// describeLocated renders an edit that has no spliced form as stated.
func describeLocated(t *cache.Transcript, le *locatedEdit) (cd, gd *hgvs.Descriptor) {
	cd = &hgvs.Descriptor{
		Space: hgvs.SpaceCDNA, Class: le.class, Feature: t.ID(),
		C:   hgvs.CRange{Start: le.cStart, End: le.cEnd},
		Ref: le.ref, Alt: le.alt,
	}
	gd = &hgvs.Descriptor{
		Space: hgvs.SpaceGenomic, Class: le.class, Chrom: t.Chrom(),
		G:   hgvs.GRange{Start: le.gStart, End: le.gEnd},
		Ref: le.ref, Alt: le.alt,
	}
	if !t.IsForward() {
		gd.Ref, gd.Alt = codon.ReverseComplement(le.ref), codon.ReverseComplement(le.alt)
	}
	if le.class == hgvs.Insertion {
		cd.Ref, gd.Ref = "", ""
	}
	return cd, gd
}

// nonExonicConsequence picks the most severe term over both ends of an edit
// that leaves the exons.
func nonExonicConsequence(t *cache.Transcript, le *locatedEdit) string {
	best := ""
	for _, pos := range []int64{le.gStart, le.gEnd} {
		var c string
		loc := t.Locate(pos)
		switch loc.Kind {
		case cache.Upstream:
			c = ConsequenceUpstreamGene
		case cache.Downstream:
			c = ConsequenceDownstreamGene
		case cache.Exonic:
			c = ConsequenceCodingSequenceVariant
			if loc.Part != cache.PartCDS {
				c = ConsequenceNonCodingExon
			}
		default:
			switch loc.Splice {
			case cache.SpliceDonor:
				c = ConsequenceSpliceDonor
			case cache.SpliceAcceptor:
				c = ConsequenceSpliceAcceptor
			case cache.SpliceRegion:
				c = ConsequenceSpliceRegionIntron
			default:
				c = ConsequenceIntronVariant
			}
		}
		if best == "" || ImpactRank(GetImpact(c)) > ImpactRank(GetImpact(best)) {
			best = c
		}
	}
	return best
}

// utrConsequence names exonic edits outside the CDS by their UTR.
func utrConsequence(t *cache.Transcript, le *locatedEdit) string {
	cdsStart, _ := t.CDSRange()
	if le.e <= cdsStart-1 || (le.s == le.e && le.s <= cdsStart-1) {
		return Consequence5PrimeUTR
	}
	return Consequence3PrimeUTR
}
