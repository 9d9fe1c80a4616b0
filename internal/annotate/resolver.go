package annotate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/vibe-varmap/internal/align"
	"github.com/inodb/vibe-varmap/internal/cache"
	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// ResolverConfig bounds the search around a stated position.
type ResolverConfig struct {
	WindowBases     int           // nucleotide search radius for c. input
	WindowResidues  int           // residue search radius for p. input
	MaxEditDistance int           // largest accepted anchor edit distance
	AlternateFrames bool          // try reading frames +1 and +2 when frame 0 finds nothing
	AlignTimeout    time.Duration // per-alignment limit, 0 for none
}

// DefaultResolverConfig returns the default search bounds.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		WindowBases:     12,
		WindowResidues:  5,
		MaxEditDistance: 1,
		AlternateFrames: true,
	}
}

// Resolver turns protein changes and imprecise cDNA descriptors into
// nucleotide edits by searching the transcript near the stated position.
// Every candidate it reports has been mapped through the Engine.
type Resolver struct {
	cfg     ResolverConfig
	engine  *Engine
	aligner align.Aligner
	logger  *zap.Logger
}

// NewResolver creates a resolver mapping candidates through eng.
func NewResolver(eng *Engine, cfg ResolverConfig) *Resolver {
	return &Resolver{
		cfg:     cfg,
		engine:  eng,
		aligner: align.WithTimeout(align.NewNW(), cfg.AlignTimeout),
		logger:  zap.NewNop(),
	}
}

// WithEngine returns a copy of the resolver mapping candidates through eng.
func (r *Resolver) WithEngine(eng *Engine) *Resolver {
	cp := *r
	cp.engine = eng
	return &cp
}

// SetLogger sets the logger for search diagnostics.
func (r *Resolver) SetLogger(l *zap.Logger) {
	r.logger = l
}

// Config returns the search bounds.
func (r *Resolver) Config() ResolverConfig { return r.cfg }

// candidate is one nucleotide edit that explains the described change.
type candidate struct {
	edit      splicedEdit
	norm      splicedEdit
	distance  int
	proximity int64
	cluster   string
}

// Resolve returns the nucleotide edits on t explaining d, mapped into the
// target space. Results are ordered by transcript position; more than one
// result means the description is ambiguous on this transcript.
func (r *Resolver) Resolve(ctx context.Context, d *hgvs.Descriptor, t *cache.Transcript, target hgvs.Space) ([]*MappingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch d.Space {
	case hgvs.SpaceProtein:
		return r.resolveProtein(ctx, d, t, target)
	case hgvs.SpaceCDNA:
		return r.resolveCDNA(ctx, d, t, target)
	}
	res, err := r.engine.Map(ctx, d, t, target)
	if err != nil {
		return nil, err
	}
	return []*MappingResult{res}, nil
}

// ring lists offsets outward from the stated position: 0, -1, +1, -2, +2...
func ring(w int) []int64 {
	out := make([]int64, 0, 2*w+1)
	out = append(out, 0)
	for i := int64(1); i <= int64(w); i++ {
		out = append(out, -i, i)
	}
	return out
}

// accept scores a stated anchor against the reference found at a candidate
// position. Aligner failures abort the search.
func (r *Resolver) accept(ctx context.Context, anchor, actual string) (int, bool, error) {
	if anchor == actual {
		return 0, true, nil
	}
	if r.cfg.MaxEditDistance <= 0 {
		return 0, false, nil
	}
	aln, err := r.aligner.Align(ctx, anchor, actual)
	if err != nil {
		return 0, false, err
	}
	return aln.Distance, aln.Distance <= r.cfg.MaxEditDistance && aln.Distance < len(anchor), nil
}

// selectBest keeps the clusters tied on the best (distance, proximity) and,
// within them, the members achieving it.
func selectBest(cands []candidate) []candidate {
	type score struct {
		dist int
		prox int64
	}
	less := func(a, b score) bool {
		return a.dist < b.dist || (a.dist == b.dist && a.prox < b.prox)
	}
	clusters := make(map[string]score)
	for _, c := range cands {
		s := score{c.distance, c.proximity}
		if cur, ok := clusters[c.cluster]; !ok || less(s, cur) {
			clusters[c.cluster] = s
		}
	}
	best := score{dist: math.MaxInt, prox: math.MaxInt64}
	for _, s := range clusters {
		if less(s, best) {
			best = s
		}
	}
	var out []candidate
	for _, c := range cands {
		if (score{c.distance, c.proximity}) == best {
			out = append(out, c)
		}
	}
	return out
}

// distinctVariants dedupes candidates by normalized edit, ordered by
// transcript position.
func distinctVariants(cands []candidate) []candidate {
	seen := make(map[splicedEdit]bool)
	var out []candidate
	for _, c := range cands {
		if seen[c.norm] {
			continue
		}
		seen[c.norm] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].norm, out[j].norm
		switch {
		case a.start != b.start:
			return a.start < b.start
		case a.end != b.end:
			return a.end < b.end
		}
		return a.alt < b.alt
	})
	return out
}

// finish maps the chosen variants through the engine and labels them.
func (r *Resolver) finish(ctx context.Context, d *hgvs.Descriptor, t *cache.Transcript, target hgvs.Space, variants []candidate, conf Confidence, notes func(candidate) []string) ([]*MappingResult, error) {
	if conf != Exact {
		conf = FuzzyUnique
		if len(variants) > 1 {
			conf = FuzzyAmbiguous
		}
	}
	out := make([]*MappingResult, 0, len(variants))
	for _, v := range variants {
		res, err := r.engine.mapSpliced(ctx, t, v.norm, target)
		if err != nil {
			return nil, fmt.Errorf("map candidate on %s: %w", t.ID(), err)
		}
		res.Source = d
		res.Confidence = conf
		res.Notes = append(res.Notes, notes(v)...)
		out = append(out, res)
	}
	if conf != Exact {
		r.logger.Debug("resolved by search",
			zap.String("variant", d.String()),
			zap.String("transcript", t.ID()),
			zap.String("confidence", conf.String()),
			zap.Int("variants", len(out)))
	}
	return out, nil
}

func (r *Resolver) unresolvable(d *hgvs.Descriptor, t *cache.Transcript, window int, err error) error {
	return &UnresolvableError{TranscriptID: t.ID(), Descriptor: d.String(), Window: window, Err: err}
}
