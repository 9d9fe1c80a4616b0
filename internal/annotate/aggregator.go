package annotate

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inodb/vibe-varmap/internal/align"
	"github.com/inodb/vibe-varmap/internal/cache"
	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// Request asks for one variant to be mapped into a target space.
type Request struct {
	Input        *hgvs.Descriptor
	Target       hgvs.Space // SpaceUnknown selects DefaultTarget
	TranscriptID string     // restricts mapping to one transcript
}

// AmbiguityGroup collects per-transcript results describing the same
// genomic edit.
type AmbiguityGroup struct {
	Key            string
	Representative *MappingResult // carries every supporting transcript id
	Results        []*MappingResult
	Count          int // supporting transcripts

	key editKey
}

// SkippedTranscript records why a transcript produced no result.
type SkippedTranscript struct {
	TranscriptID string
	Reason       string
	Err          error
}

// Report is the outcome of one Request.
type Report struct {
	Input       *hgvs.Descriptor
	Target      hgvs.Space
	Transcripts int // transcripts considered
	Groups      []*AmbiguityGroup
	Skipped     []SkippedTranscript
}

// Valid reports whether any transcript produced a result.
func (r *Report) Valid() bool { return len(r.Groups) > 0 }

// Best returns the representative of the best-supported group, or nil.
func (r *Report) Best() *MappingResult {
	if len(r.Groups) == 0 {
		return nil
	}
	return r.Groups[0].Representative
}

// Skip reasons.
const (
	ReasonReferenceMismatch = "reference_mismatch"
	ReasonUnresolvable      = "unresolvable"
	ReasonTimeout           = "timeout"
	ReasonInvalidTranscript = "invalid_transcript"
	ReasonNonCoding         = "non_coding"
	ReasonNoSequence        = "no_sequence"
	ReasonOutsideTranscript = "outside_transcript"
	ReasonError             = "error"
)

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	Workers           int           // concurrent transcripts per request, 0 for runtime.NumCPU()
	TranscriptTimeout time.Duration // per-transcript limit, 0 for none
	Strict            bool          // map c. input exactly, without search
	BuildOptions      cache.BuildOptions
	Logger            *zap.Logger
	Metrics           *Metrics
}

// Aggregator maps a variant on every relevant transcript and groups the
// equivalent results.
type Aggregator struct {
	cat      cache.Catalogue
	ref      cache.ReferenceAccessor
	resolver *Resolver
	opts     AggregatorOptions
	logger   *zap.Logger
}

// NewAggregator creates an aggregator. ref and res may be nil; a nil
// resolver uses DefaultResolverConfig.
func NewAggregator(cat cache.Catalogue, ref cache.ReferenceAccessor, res *Resolver, opts AggregatorOptions) *Aggregator {
	if res == nil {
		res = NewResolver(NewEngine(ref), DefaultResolverConfig())
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BuildOptions == (cache.BuildOptions{}) {
		opts.BuildOptions = cache.DefaultBuildOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{cat: cat, ref: ref, resolver: res, opts: opts, logger: logger}
}

// Aggregate maps req.Input on the selected transcripts. Transcripts that
// fail are listed in Report.Skipped; an error is returned only when no
// transcript could be selected, the genomic reference disagrees with the
// input, or ctx ends.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	d := req.Input
	target := req.Target
	if target == hgvs.SpaceUnknown {
		target = DefaultTarget(d.Space)
	}

	rep, err := a.aggregate(ctx, d, target, req.TranscriptID)
	a.opts.Metrics.observeRequest(d.Space, rep, err, time.Since(start))
	return rep, err
}

func (a *Aggregator) aggregate(ctx context.Context, d *hgvs.Descriptor, target hgvs.Space, transcriptID string) (*Report, error) {
	scope := cache.NewScope(a.cat, a.ref, a.opts.BuildOptions)
	recs, err := a.selectTranscripts(ctx, scope, d, transcriptID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTranscriptOverlap, d)
	}
	if d.Space == hgvs.SpaceGenomic {
		if err := checkGenomicReference(ctx, scope, d); err != nil {
			return nil, err
		}
	}

	engine := NewEngine(scope)
	resolver := a.resolver.WithEngine(engine)
	perTranscript := make([][]*MappingResult, len(recs))
	errs := make([]error, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			perTranscript[i], errs[i] = a.mapTranscript(gctx, scope, engine, resolver, d, rec, target)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := &Report{Input: d, Target: target, Transcripts: len(recs)}
	groups := make(map[editKey]*AmbiguityGroup)
	for i, rec := range recs {
		if errs[i] != nil {
			reason := skipReason(errs[i])
			a.logger.Debug("transcript skipped",
				zap.String("variant", d.String()),
				zap.String("transcript", rec.ID),
				zap.String("reason", reason),
				zap.Error(errs[i]))
			rep.Skipped = append(rep.Skipped, SkippedTranscript{TranscriptID: rec.ID, Reason: reason, Err: errs[i]})
			a.opts.Metrics.observeTranscript(reason)
			continue
		}
		a.opts.Metrics.observeTranscript("mapped")
		for _, res := range perTranscript[i] {
			a.opts.Metrics.observeResult(res)
			grp, ok := groups[res.key]
			if !ok {
				grp = &AmbiguityGroup{Key: res.key.String(), key: res.key}
				groups[res.key] = grp
				rep.Groups = append(rep.Groups, grp)
			}
			grp.Results = append(grp.Results, res)
		}
	}
	if !rep.Valid() && len(rep.Skipped) > 0 {
		a.logger.Info("no valid transcript found",
			zap.String("variant", d.String()),
			zap.String("first_reason", rep.Skipped[0].Reason),
			zap.Int("skipped", len(rep.Skipped)))
	}
	for _, grp := range rep.Groups {
		grp.finalize()
	}
	sort.SliceStable(rep.Groups, func(i, j int) bool {
		x, y := rep.Groups[i], rep.Groups[j]
		if x.Count != y.Count {
			return x.Count > y.Count
		}
		return x.key.less(y.key)
	})
	return rep, nil
}

// finalize picks the representative: exact before fuzzy, then canonical,
// then the lowest transcript id.
func (g *AmbiguityGroup) finalize() {
	best := g.Results[0]
	seen := make(map[string]bool)
	var ids []string
	for _, r := range g.Results {
		for _, id := range r.TranscriptIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		if representativeLess(r, best) {
			best = r
		}
	}
	sort.Strings(ids)
	rep := *best
	rep.TranscriptIDs = ids
	g.Representative = &rep
	g.Count = len(ids)
}

func representativeLess(a, b *MappingResult) bool {
	switch {
	case a.Confidence != b.Confidence:
		return a.Confidence < b.Confidence
	case a.IsCanonical != b.IsCanonical:
		return a.IsCanonical
	}
	return a.TranscriptID() < b.TranscriptID()
}

// mapTranscript routes the descriptor to the engine or resolver.
func (a *Aggregator) mapTranscript(ctx context.Context, scope *cache.Scope, engine *Engine, resolver *Resolver, d *hgvs.Descriptor, rec *cache.Record, target hgvs.Space) ([]*MappingResult, error) {
	if a.opts.TranscriptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.TranscriptTimeout)
		defer cancel()
	}
	t, err := scope.Transcript(ctx, rec)
	if err != nil {
		return nil, err
	}
	var results []*MappingResult
	if d.Space == hgvs.SpaceGenomic || (d.Space == hgvs.SpaceCDNA && a.opts.Strict) {
		var res *MappingResult
		if res, err = engine.Map(ctx, d, t, target); err == nil {
			results = []*MappingResult{res}
		}
	} else {
		results, err = resolver.Resolve(ctx, d, t, target)
	}
	// an expired deadline wins over whatever the search made of it
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return results, err
}

// selectTranscripts picks the transcripts to map on: an explicit id, the
// feature named by the descriptor (a transcript id or gene symbol), or the
// transcripts overlapping a genomic edit.
func (a *Aggregator) selectTranscripts(ctx context.Context, scope *cache.Scope, d *hgvs.Descriptor, transcriptID string) ([]*cache.Record, error) {
	var recs []*cache.Record
	switch {
	case transcriptID != "":
		r, err := scope.Record(ctx, transcriptID)
		if errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNoTranscriptOverlap, err)
		}
		if err != nil {
			return nil, err
		}
		recs = []*cache.Record{r}
	case d.Space == hgvs.SpaceGenomic:
		seen := make(map[string]bool)
		for _, pos := range []int64{d.G.Start, d.G.End} {
			found, err := scope.Overlapping(ctx, d.Chrom, pos)
			if err != nil {
				return nil, err
			}
			for _, r := range found {
				if !seen[r.ID] {
					seen[r.ID] = true
					recs = append(recs, r)
				}
			}
		}
	case d.Feature != "":
		r, err := scope.Record(ctx, d.Feature)
		switch {
		case err == nil:
			recs = []*cache.Record{r}
		case errors.Is(err, cache.ErrNotFound):
			byGene, indexed, err := scope.ByGene(ctx, d.Feature)
			if err != nil {
				return nil, err
			}
			if !indexed {
				return nil, fmt.Errorf("%w: unknown transcript %s", ErrNoTranscriptOverlap, d.Feature)
			}
			recs = byGene
		default:
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s names no transcript or gene", ErrNoTranscriptOverlap, d)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

// checkGenomicReference rejects genomic input whose stated reference
// disagrees with the genome before any transcript is tried.
func checkGenomicReference(ctx context.Context, ref cache.ReferenceAccessor, d *hgvs.Descriptor) error {
	if d.Ref == "" || d.Class == hgvs.Insertion {
		return nil
	}
	actual, err := ref.GenomicSequence(ctx, d.Chrom, d.G.Start, d.G.End)
	if errors.Is(err, cache.ErrNoSequence) || errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read reference for %s: %w", d, err)
	}
	if actual != d.Ref && !strings.Contains(actual, "N") {
		return &ReferenceMismatchError{Descriptor: d.String(), Stated: d.Ref, Actual: actual}
	}
	return nil
}

// skipReason names the error class of a skipped transcript.
func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrNotCoding):
		return ReasonNonCoding
	case errors.Is(err, cache.ErrNoSequence):
		return ReasonNoSequence
	case errors.Is(err, ErrUnresolvableVariant):
		return ReasonUnresolvable
	case errors.Is(err, ErrReferenceMismatch):
		return ReasonReferenceMismatch
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, align.ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, cache.ErrInvalidTranscript):
		return ReasonInvalidTranscript
	case errors.Is(err, cache.ErrOutsideTranscript), errors.Is(err, cache.ErrOutOfRange),
		errors.Is(err, cache.ErrOutsideCDS), errors.Is(err, cache.ErrInvalidIntronicOffset),
		errors.Is(err, cache.ErrOutOfExon):
		return ReasonOutsideTranscript
	}
	return ReasonError
}
