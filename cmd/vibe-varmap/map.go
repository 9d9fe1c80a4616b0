package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-varmap/internal/annotate"
	"github.com/inodb/vibe-varmap/internal/hgvs"
	"github.com/inodb/vibe-varmap/internal/output"
)

func newMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map [variant...]",
		Short: "Map variants across transcripts",
		Long: `Map variants between genomic, cDNA and protein coordinates.

Variants are read from the arguments, or one per line from --input (use "-"
for stdin). Lines starting with '#' are ignored. Every transcript of the
gene (or every transcript overlapping a genomic position) is tried, and
equivalent results are grouped.`,
		Example: `  vibe-varmap map "KRAS p.G12C"
  vibe-varmap map 12:g.25245351C>A --target p
  vibe-varmap map ENST00000311936:c.35G>T --strict
  vibe-varmap map -i variants.txt --format json -o mapped.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return runMap(cmd, args)
		},
	}

	defaults := annotate.DefaultResolverConfig()

	f := cmd.Flags()
	f.StringP("input", "i", "", "Read variants from file, one per line (- for stdin)")
	f.StringP("output", "o", "", "Output file (default: stdout)")
	f.String("format", "tab", "Output format: tab or json")
	f.String("target", "", "Target space: g, c or p (default: c for genomic input, g otherwise)")
	f.String("transcript", "", "Map on this transcript only")
	f.String("assembly", "GRCh38", "Genome assembly: GRCh37 or GRCh38")
	f.String("catalogue", "", "Transcript catalogue: DuckDB file, s3:// URL or JSON file/directory")
	f.String("gtf", "", "GENCODE GTF annotation file")
	f.String("fasta", "", "GENCODE transcript FASTA file")
	f.String("canonical", "", "Canonical transcript overrides file")
	f.String("genome", "", "Genome FASTA for reference checks")
	f.Int("workers", 0, "Variants mapped in parallel (default: number of CPUs)")
	f.Int("transcript-workers", 0, "Transcripts mapped in parallel per variant (default: number of CPUs)")
	f.Duration("transcript-timeout", 0, "Time limit per transcript (0 for none)")
	f.Bool("strict", false, "Map cDNA input exactly, without searching for the stated reference")
	f.Int("window-bases", defaults.WindowBases, "Search radius in bases for cDNA input")
	f.Int("window-residues", defaults.WindowResidues, "Search radius in residues for protein input")
	f.Int("max-edit-distance", defaults.MaxEditDistance, "Largest accepted edit distance between stated and actual reference")
	f.Bool("no-alternate-frames", false, "Do not try shifted reading frames")
	f.Duration("align-timeout", 0, "Time limit per alignment (0 for none)")
	f.Bool("all", false, "Write every per-transcript result instead of one row per group")
	f.String("metrics-file", "", "Write Prometheus metrics in text format to this file")

	return cmd
}

// mapOptions holds the settings of one map run, resolved from flags,
// environment and config file.
type mapOptions struct {
	input       string
	output      string
	format      string
	target      hgvs.Space
	transcript  string
	workers     int
	all         bool
	metricsFile string
	source      catalogueSource
	genome      string
	resolver    annotate.ResolverConfig
	aggregator  annotate.AggregatorOptions
}

func mapOptionsFromViper() (mapOptions, error) {
	target, err := hgvs.ParseSpace(viper.GetString("target"))
	if err != nil {
		return mapOptions{}, usageError{err}
	}
	format := strings.ToLower(viper.GetString("format"))
	if format != "tab" && format != "json" {
		return mapOptions{}, usageErrorf("unknown output format %q (expected tab or json)", format)
	}

	rc := annotate.DefaultResolverConfig()
	rc.WindowBases = viper.GetInt("window-bases")
	rc.WindowResidues = viper.GetInt("window-residues")
	rc.MaxEditDistance = viper.GetInt("max-edit-distance")
	rc.AlternateFrames = !viper.GetBool("no-alternate-frames")
	rc.AlignTimeout = viper.GetDuration("align-timeout")
	if rc.WindowBases < 0 || rc.WindowResidues < 0 || rc.MaxEditDistance < 0 {
		return mapOptions{}, usageErrorf("search windows and edit distance must not be negative")
	}

	return mapOptions{
		input:       viper.GetString("input"),
		output:      viper.GetString("output"),
		format:      format,
		target:      target,
		transcript:  viper.GetString("transcript"),
		workers:     viper.GetInt("workers"),
		all:         viper.GetBool("all"),
		metricsFile: viper.GetString("metrics-file"),
		source: catalogueSource{
			Assembly:  viper.GetString("assembly"),
			Path:      viper.GetString("catalogue"),
			GTF:       viper.GetString("gtf"),
			FASTA:     viper.GetString("fasta"),
			Canonical: viper.GetString("canonical"),
		},
		genome:   viper.GetString("genome"),
		resolver: rc,
		aggregator: annotate.AggregatorOptions{
			Workers:           viper.GetInt("transcript-workers"),
			TranscriptTimeout: viper.GetDuration("transcript-timeout"),
			Strict:            viper.GetBool("strict"),
		},
	}, nil
}

func runMap(cmd *cobra.Command, args []string) error {
	opts, err := mapOptionsFromViper()
	if err != nil {
		return err
	}
	if len(args) == 0 && opts.input == "" {
		return usageErrorf("no variants given; pass them as arguments or with --input")
	}

	logger, err := newLogger(viper.GetBool("verbose"))
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cat, err := openCatalogue(ctx, opts.source, logger)
	if err != nil {
		return err
	}
	defer cat.Close()

	ref, err := openGenome(opts.genome, opts.source.Assembly, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := annotate.NewMetrics(reg)

	resolver := annotate.NewResolver(annotate.NewEngine(ref), opts.resolver)
	resolver.SetLogger(logger)
	aggOpts := opts.aggregator
	aggOpts.Logger = logger
	aggOpts.Metrics = metrics
	agg := annotate.NewAggregator(cat.Catalogue, ref, resolver, aggOpts)

	var variants variantReader
	if len(args) > 0 {
		variants = &argReader{args: args}
	} else {
		in, closeIn, err := openInput(cmd, opts.input)
		if err != nil {
			return err
		}
		defer closeIn()
		variants = newLineReader(in)
	}

	out, closeOut, err := openOutput(cmd, opts.output)
	if err != nil {
		return err
	}
	defer closeOut()

	var w output.ReportWriter
	switch opts.format {
	case "json":
		w = output.NewJSONWriter(out)
	default:
		tw := output.NewTabWriter(out)
		tw.SetAllResults(opts.all)
		w = tw
	}

	stats, err := mapVariants(ctx, agg, variants, w, opts, logger)
	if err != nil {
		return err
	}

	logger.Info("mapping complete",
		zap.Int("variants", stats.total),
		zap.Int("mapped", stats.mapped),
		zap.Int("no_valid_transcript", stats.noValid),
		zap.Int("errors", stats.failed))

	if opts.metricsFile != "" {
		if err := writeMetrics(reg, opts.metricsFile); err != nil {
			return err
		}
	}
	return nil
}

type mapStats struct {
	total, mapped, noValid, failed int
}

// mapVariants feeds every variant through the aggregator and writes the
// reports in input order. Per-variant failures become error rows; a write
// failure stops the reader and the workers.
func mapVariants(ctx context.Context, agg *annotate.Aggregator, variants variantReader, w output.ReportWriter, opts mapOptions, logger *zap.Logger) (mapStats, error) {
	var stats mapStats
	if err := w.WriteHeader(); err != nil {
		return stats, fmt.Errorf("writing header: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make(chan annotate.WorkItem, 2*max(opts.workers, 1))
	readErr := make(chan error, 1)

	go func() {
		defer close(items)
		seq := 0
		for {
			if err := ctx.Err(); err != nil {
				readErr <- err
				return
			}
			line, ok, err := variants.Next()
			if err != nil {
				readErr <- err
				return
			}
			if !ok {
				readErr <- nil
				return
			}
			item := annotate.WorkItem{Seq: seq, Extra: line}
			d, err := hgvs.Parse(line)
			if err != nil {
				item.Err = err
			} else {
				item.Request = annotate.Request{Input: d, Target: opts.target, TranscriptID: opts.transcript}
			}
			select {
			case items <- item:
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
			seq++
		}
	}()

	write := func(r annotate.WorkResult) error {
		stats.total++
		input := r.Extra.(string)
		if r.Err != nil {
			stats.failed++
			logger.Debug("variant not mapped", zap.String("input", input), zap.Error(r.Err))
			return w.WriteError(input, r.Err)
		}
		if r.Report.Valid() {
			stats.mapped++
		} else {
			stats.noValid++
		}
		return w.WriteReport(input, r.Report)
	}

	results := agg.ParallelAggregate(ctx, items, opts.workers)
	err := annotate.OrderedCollect(results, func(r annotate.WorkResult) error {
		if err := write(r); err != nil {
			cancel()
			return err
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("writing output: %w", err)
	}
	if err := <-readErr; err != nil {
		return stats, fmt.Errorf("reading input: %w", err)
	}
	if err := w.Flush(); err != nil {
		return stats, fmt.Errorf("flushing output: %w", err)
	}
	return stats, nil
}

// variantReader yields one variant description at a time.
type variantReader interface {
	Next() (string, bool, error)
}

type argReader struct {
	args []string
	i    int
}

func (r *argReader) Next() (string, bool, error) {
	for r.i < len(r.args) {
		s := strings.TrimSpace(r.args[r.i])
		r.i++
		if s != "" {
			return s, true, nil
		}
	}
	return "", false, nil
}

// lineReader reads one variant per line, skipping blank and '#' lines.
type lineReader struct {
	sc *bufio.Scanner
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &lineReader{sc: sc}
}

func (r *lineReader) Next() (string, bool, error) {
	for r.sc.Scan() {
		line := strings.TrimSpace(r.sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, true, nil
	}
	return "", false, r.sc.Err()
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// writeMetrics dumps the registry in the Prometheus text format.
func writeMetrics(reg *prometheus.Registry, path string) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			f.Close()
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return f.Close()
}
