package annotate

import (
	"context"
	"fmt"

	"github.com/inodb/vibe-varmap/internal/cache"
	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// resolveCDNA places a c. descriptor whose stated reference may not sit at
// the stated position. Intronic and sequence-less cases go straight to the
// engine.
func (r *Resolver) resolveCDNA(ctx context.Context, d *hgvs.Descriptor, t *cache.Transcript, target hgvs.Space) ([]*MappingResult, error) {
	le, err := locate(t, d)
	if err != nil {
		return nil, err
	}
	if !le.exonic || !t.HasSequence() {
		res, err := r.engine.Map(ctx, d, t, target)
		if err != nil {
			return nil, err
		}
		return []*MappingResult{res}, nil
	}

	seq := t.Sequence()
	anchor := d.Ref
	inferred := false
	switch d.Class {
	case hgvs.Substitution:
		inferred = anchor == ""
	case hgvs.Deletion, hgvs.Duplication, hgvs.Delins:
		// the span alone identifies the bases
		if anchor == "" {
			anchor = seq[le.s:le.e]
		}
	}
	naive := le.spliced(seq)
	shifted := []string{NoteShiftedFrom + "c." + d.C.Start.String()}

	if d.Class == hgvs.Insertion || inferred || seq[le.s:le.e] == anchor {
		norm := naive.normalize(seq)
		c := candidate{edit: naive, norm: norm}
		switch {
		case inferred:
			return r.finish(ctx, d, t, target, []candidate{c}, FuzzyUnique, func(candidate) []string {
				return []string{NoteReferenceInferred}
			})
		case norm == naive:
			res, err := r.engine.Map(ctx, d, t, target)
			if err != nil {
				return nil, err
			}
			return []*MappingResult{res}, nil
		}
		return r.finish(ctx, d, t, target, []candidate{c}, FuzzyUnique, func(candidate) []string { return shifted })
	}

	mismatch := &ReferenceMismatchError{
		TranscriptID: t.ID(),
		Descriptor:   d.String(),
		Stated:       anchor,
		Actual:       seq[le.s:le.e],
	}
	var cands []candidate
	for _, delta := range ring(r.cfg.WindowBases) {
		s, e := le.s+delta, le.e+delta
		if s < 0 || e > int64(len(seq)) {
			continue
		}
		dist, ok, err := r.accept(ctx, anchor, seq[s:e])
		if err != nil {
			return nil, fmt.Errorf("align on %s: %w", t.ID(), err)
		}
		if !ok {
			continue
		}
		var edit splicedEdit
		switch d.Class {
		case hgvs.Substitution:
			if seq[s] == d.Alt[0] {
				continue
			}
			edit = splicedEdit{start: s, end: e, alt: d.Alt}
		case hgvs.Deletion:
			edit = splicedEdit{start: s, end: e}
		case hgvs.Duplication:
			edit = splicedEdit{start: e, end: e, alt: seq[s:e]}
		default:
			edit = splicedEdit{start: s, end: e, alt: d.Alt}
		}
		norm := edit.normalize(seq)
		if norm.start == norm.end && norm.alt == "" {
			continue
		}
		cands = append(cands, candidate{
			edit:      edit,
			norm:      norm,
			distance:  dist,
			proximity: abs64(delta),
			cluster:   normKey(norm),
		})
	}
	if len(cands) == 0 {
		return nil, r.unresolvable(d, t, r.cfg.WindowBases, mismatch)
	}
	variants := distinctVariants(selectBest(cands))
	return r.finish(ctx, d, t, target, variants, FuzzyUnique, func(candidate) []string { return shifted })
}

func normKey(e splicedEdit) string {
	return fmt.Sprintf("%d-%d>%s", e.start, e.end, e.alt)
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
