package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/inodb/vibe-varmap/internal/codon"
)

// Scope memoizes catalogue records, built transcript models and genome
// windows for the lifetime of one request. It is safe for concurrent use by
// the request's workers and implements ReferenceAccessor.
type Scope struct {
	cat  Catalogue
	ref  ReferenceAccessor
	opts BuildOptions

	mu      sync.Mutex
	records map[string]*Record
	models  map[string]modelEntry
	windows map[window]string
}

type modelEntry struct {
	t   *Transcript
	err error
}

type window struct {
	chrom      string
	start, end int64
}

// NewScope creates a request scope. ref may be nil.
func NewScope(cat Catalogue, ref ReferenceAccessor, opts BuildOptions) *Scope {
	return &Scope{
		cat:     cat,
		ref:     ref,
		opts:    opts,
		records: make(map[string]*Record),
		models:  make(map[string]modelEntry),
		windows: make(map[window]string),
	}
}

// HasReference reports whether genomic sequence is available.
func (s *Scope) HasReference() bool { return s.ref != nil }

// Record returns a catalogue record by id.
func (s *Scope) Record(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	r, ok := s.records[id]
	s.mu.Unlock()
	if ok {
		return r, nil
	}
	r, err := s.cat.TranscriptByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(r)
	return r, nil
}

// Overlapping returns the records overlapping a genomic position.
func (s *Scope) Overlapping(ctx context.Context, chrom string, pos int64) ([]*Record, error) {
	recs, err := s.cat.TranscriptsOverlapping(ctx, chrom, pos)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		s.remember(r)
	}
	return recs, nil
}

// ByGene returns the records of a gene symbol when the catalogue indexes
// genes. The boolean is false when it does not.
func (s *Scope) ByGene(ctx context.Context, gene string) ([]*Record, bool, error) {
	gi, ok := s.cat.(GeneIndex)
	if !ok {
		return nil, false, nil
	}
	recs, err := gi.TranscriptsByGene(ctx, gene)
	if err != nil {
		return nil, true, err
	}
	for _, r := range recs {
		s.remember(r)
	}
	return recs, true, nil
}

func (s *Scope) remember(r *Record) {
	s.mu.Lock()
	s.records[r.ID] = r
	s.mu.Unlock()
}

// Transcript builds, once per request, the model of a record. A record
// without sequence gets its spliced sequence from the reference when one
// is available.
func (s *Scope) Transcript(ctx context.Context, r *Record) (*Transcript, error) {
	s.mu.Lock()
	e, ok := s.models[r.ID]
	s.mu.Unlock()
	if ok {
		return e.t, e.err
	}

	rec := r
	if r.Sequence == "" && s.ref != nil && len(r.Exons) > 0 {
		seq, err := s.splicedSequence(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("sequence of %s: %w", r.ID, err)
		}
		cp := *r
		cp.Sequence = seq
		rec = &cp
	}
	t, err := NewTranscript(rec, s.opts)

	s.mu.Lock()
	s.models[r.ID] = modelEntry{t: t, err: err}
	s.mu.Unlock()
	return t, err
}

func (s *Scope) splicedSequence(ctx context.Context, r *Record) (string, error) {
	exons := make([]Exon, len(r.Exons))
	copy(exons, r.Exons)
	sortExons(exons)

	var b strings.Builder
	for _, e := range exons {
		seq, err := s.GenomicSequence(ctx, r.Chrom, e.Start, e.End)
		if err != nil {
			return "", err
		}
		b.WriteString(seq)
	}
	if r.Strand < 0 {
		return codon.ReverseComplement(b.String()), nil
	}
	return b.String(), nil
}

// GenomicSequence implements ReferenceAccessor with memoization.
func (s *Scope) GenomicSequence(ctx context.Context, chrom string, start, end int64) (string, error) {
	if s.ref == nil {
		return "", ErrNoSequence
	}
	k := window{chrom, start, end}
	s.mu.Lock()
	seq, ok := s.windows[k]
	s.mu.Unlock()
	if ok {
		return seq, nil
	}
	seq, err := s.ref.GenomicSequence(ctx, chrom, start, end)
	if err != nil {
		return "", err
	}
	seq = strings.ToUpper(seq)
	s.mu.Lock()
	s.windows[k] = seq
	s.mu.Unlock()
	return seq, nil
}
