// Package cache holds the transcript model and the catalogues it is built from.
package cache

import (
	"context"
	"errors"
	"sort"

	"github.com/biogo/biogo/feat"
)

var (
	// ErrNotFound is returned by catalogues for unknown transcript ids.
	ErrNotFound = errors.New("transcript not found")
	// ErrOutOfExon marks a genomic position that falls outside every exon.
	ErrOutOfExon = errors.New("position outside exons")
	// ErrOutsideCDS marks a transcript position outside the coding sequence.
	ErrOutsideCDS = errors.New("position outside CDS")
	// ErrOutOfRange marks an offset beyond the spliced transcript.
	ErrOutOfRange = errors.New("offset outside transcript")
	// ErrOutsideTranscript marks a genomic position beyond the transcript span.
	ErrOutsideTranscript = errors.New("position outside transcript")
	// ErrInvalidIntronicOffset marks an intronic c. offset not anchored on an exon boundary.
	ErrInvalidIntronicOffset = errors.New("invalid intronic offset")
	// ErrInvalidTranscript is returned when a record cannot form a consistent model.
	ErrInvalidTranscript = errors.New("invalid transcript")
	// ErrNoSequence is returned when an operation needs the transcript sequence.
	ErrNoSequence = errors.New("transcript sequence not available")
)

// Record is a transcript as delivered by a catalogue, before validation.
type Record struct {
	ID           string           // Transcript ID (e.g., ENST00000311936)
	GeneID       string           // Parent gene ID
	GeneName     string           // Parent gene symbol
	Chrom        string           // Chromosome
	Start        int64            // Transcript start (1-based)
	End          int64            // Transcript end (1-based, inclusive)
	Strand       feat.Orientation // feat.Forward or feat.Reverse
	Biotype      string           // Transcript biotype
	IsCanonical  bool             // Ensembl canonical flag
	IsMANESelect bool             // MANE Select transcript
	Exons        []Exon           // Exons in any order
	CDSStart     int64            // CDS start (genomic, 1-based), 0 if non-coding
	CDSEnd       int64            // CDS end (genomic, 1-based), 0 if non-coding

	// CDSOffsetStart and CDSOffsetEnd locate the CDS on the spliced
	// sequence (1-based) when genomic CDS bounds are not known.
	CDSOffsetStart int64
	CDSOffsetEnd   int64

	Sequence        string // Spliced transcript sequence, coding strand
	ProteinSequence string // Reference protein, without the terminal stop
}

// Exon represents a single exon within a transcript.
type Exon struct {
	Number int   // Exon number (1-based, transcript order)
	Start  int64 // Genomic start (1-based)
	End    int64 // Genomic end (1-based, inclusive)
}

// Len returns the exon length in bases.
func (e Exon) Len() int64 { return e.End - e.Start + 1 }

// sortExons orders exons by genomic start.
func sortExons(exons []Exon) {
	sort.Slice(exons, func(i, j int) bool { return exons[i].Start < exons[j].Start })
}

// IsProteinCoding returns true if the record carries a coding sequence.
func (r *Record) IsProteinCoding() bool {
	return (r.CDSStart > 0 && r.CDSEnd > 0) || (r.CDSOffsetStart > 0 && r.CDSOffsetEnd > 0)
}

// Contains returns true if the given position is within the transcript boundaries.
func (r *Record) Contains(pos int64) bool {
	return pos >= r.Start && pos <= r.End
}

// Catalogue is the read-only source of transcript records.
type Catalogue interface {
	TranscriptsOverlapping(ctx context.Context, chrom string, pos int64) ([]*Record, error)
	TranscriptByID(ctx context.Context, id string) (*Record, error)
}

// GeneIndex is implemented by catalogues that can look transcripts up by gene symbol.
type GeneIndex interface {
	TranscriptsByGene(ctx context.Context, gene string) ([]*Record, error)
}

// ReferenceAccessor returns plus-strand genomic sequence for a 1-based
// inclusive range.
type ReferenceAccessor interface {
	GenomicSequence(ctx context.Context, chrom string, start, end int64) (string, error)
}
