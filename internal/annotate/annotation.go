// Package annotate maps variant descriptors between genomic, cDNA and
// protein coordinates, reverse-annotates protein changes to nucleotide edits,
// and aggregates per-transcript results.
package annotate

import (
	"strings"

	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// Impact levels for variant consequences.
const (
	ImpactHigh     = "HIGH"
	ImpactModerate = "MODERATE"
	ImpactLow      = "LOW"
	ImpactModifier = "MODIFIER"
)

// Consequence types (Sequence Ontology terms).
const (
	// HIGH impact
	ConsequenceStopGained        = "stop_gained"
	ConsequenceFrameshiftVariant = "frameshift_variant"
	ConsequenceStopLost          = "stop_lost"
	ConsequenceStartLost         = "start_lost"
	ConsequenceSpliceAcceptor    = "splice_acceptor_variant"
	ConsequenceSpliceDonor       = "splice_donor_variant"

	// MODERATE impact
	ConsequenceMissenseVariant  = "missense_variant"
	ConsequenceInframeInsertion = "inframe_insertion"
	ConsequenceInframeDeletion  = "inframe_deletion"

	// LOW impact
	ConsequenceSynonymousVariant     = "synonymous_variant"
	ConsequenceSpliceRegion          = "splice_region_variant"
	ConsequenceStopRetained          = "stop_retained_variant"
	ConsequenceCodingSequenceVariant = "coding_sequence_variant"

	// Compound consequences.
	ConsequenceSpliceRegionIntron   = "splice_region_variant,intron_variant"
	ConsequenceStopGainedInframeDel = "stop_gained,inframe_deletion"

	// MODIFIER impact
	ConsequenceIntronVariant  = "intron_variant"
	Consequence5PrimeUTR      = "5_prime_UTR_variant"
	Consequence3PrimeUTR      = "3_prime_UTR_variant"
	ConsequenceUpstreamGene   = "upstream_gene_variant"
	ConsequenceDownstreamGene = "downstream_gene_variant"
	ConsequenceNonCodingExon  = "non_coding_transcript_exon_variant"
)

// Notes attached to mapping results.
const (
	NoteReferenceUnverified = "reference_unverified"
	NoteReferenceInferred   = "reference_inferred"
	NoteSpansCDSBoundary    = "spans_cds_boundary"
	NoteCrossesSpliceSite   = "crosses_splice_site"
	NoteCodonLocal          = "codon_local_search"
	NoteRepresentative      = "representative_codons"
	NoteShiftedFrom         = "shifted_from="
	NoteAlternateFrame      = "alternate_frame="
)

// Confidence qualifies how a target descriptor was obtained.
type Confidence int

const (
	// Exact results follow deterministically from the source with the stated
	// reference confirmed at the stated position.
	Exact Confidence = iota
	// FuzzyUnique results come from a search that found a single candidate.
	FuzzyUnique
	// FuzzyAmbiguous results are one of several equally good candidates.
	FuzzyAmbiguous
)

func (c Confidence) String() string {
	switch c {
	case Exact:
		return "exact"
	case FuzzyUnique:
		return "fuzzy-unique"
	case FuzzyAmbiguous:
		return "fuzzy-ambiguous"
	}
	return "unknown"
}

// MarshalText renders the confidence tag for JSON output.
func (c Confidence) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Classification says where a nucleotide edit lies on the transcript.
type Classification int

const (
	Coding Classification = iota
	OutsideCDS
	OutOfExon
)

func (c Classification) String() string {
	switch c {
	case Coding:
		return "coding"
	case OutsideCDS:
		return "outside_cds"
	case OutOfExon:
		return "out_of_exon"
	}
	return "unknown"
}

// MarshalText renders the classification for JSON output.
func (c Classification) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// MappingResult is one translated variant on one transcript. Results are not
// modified after they are returned.
type MappingResult struct {
	Source      *hgvs.Descriptor
	TargetSpace hgvs.Space
	Target      *hgvs.Descriptor // nil when the target space has no description, e.g. p. of an intronic edit

	Genomic *hgvs.Descriptor
	CDNA    *hgvs.Descriptor
	Protein *hgvs.Descriptor

	Confidence     Confidence
	Classification Classification
	Region         string // e.g. "cds_in_exon_2"
	Consequence    string // SO term
	Impact         string

	TranscriptIDs []string // supporting transcripts
	GeneName      string
	IsCanonical   bool
	Notes         []string

	key editKey
}

// TranscriptID returns the first supporting transcript.
func (r *MappingResult) TranscriptID() string {
	if len(r.TranscriptIDs) == 0 {
		return ""
	}
	return r.TranscriptIDs[0]
}

// Key identifies the normalized plus-strand genomic edit behind the result.
func (r *MappingResult) Key() string { return r.key.String() }

// HasNote reports whether a note with the given prefix is attached.
func (r *MappingResult) HasNote(prefix string) bool {
	for _, n := range r.Notes {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}

// GetImpact returns the impact level for a given consequence type.
// For comma-separated consequences, returns the highest impact among all terms.
func GetImpact(consequence string) string {
	best := ImpactModifier
	for rest := consequence; rest != ""; {
		term := rest
		if i := strings.IndexByte(rest, ','); i >= 0 {
			term = rest[:i]
			rest = rest[i+1:]
		} else {
			rest = ""
		}
		var impact string
		switch term {
		case ConsequenceStopGained, ConsequenceFrameshiftVariant,
			ConsequenceStopLost, ConsequenceStartLost,
			ConsequenceSpliceAcceptor, ConsequenceSpliceDonor:
			impact = ImpactHigh
		case ConsequenceMissenseVariant, ConsequenceInframeInsertion,
			ConsequenceInframeDeletion:
			impact = ImpactModerate
		case ConsequenceSynonymousVariant, ConsequenceSpliceRegion,
			ConsequenceStopRetained, ConsequenceCodingSequenceVariant:
			impact = ImpactLow
		default:
			impact = ImpactModifier
		}
		if ImpactRank(impact) > ImpactRank(best) {
			best = impact
		}
	}
	return best
}

// ImpactRank returns numeric rank for impact comparison (higher = more severe).
func ImpactRank(impact string) int {
	switch impact {
	case ImpactHigh:
		return 3
	case ImpactModerate:
		return 2
	case ImpactLow:
		return 1
	default:
		return 0
	}
}
