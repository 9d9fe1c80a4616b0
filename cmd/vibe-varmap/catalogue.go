package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/vibe-varmap/internal/cache"
)

// catalogueSource names where transcript records come from.
type catalogueSource struct {
	Assembly  string
	Path      string // .duckdb/.db/s3:// database, .json file or directory
	GTF       string
	FASTA     string
	Canonical string
}

// openedCatalogue is a catalogue plus the function that releases it.
// Pass the embedded Catalogue on so its optional GeneIndex stays visible.
type openedCatalogue struct {
	cache.Catalogue
	Count int
	close func() error
}

func (o *openedCatalogue) Close() error {
	if o.close == nil {
		return nil
	}
	return o.close()
}

// openCatalogue opens a DuckDB catalogue directly, or loads JSON or GENCODE
// files into an in-memory cache. With no explicit source it falls back to
// the files written by the download command.
func openCatalogue(ctx context.Context, src catalogueSource, logger *zap.Logger) (*openedCatalogue, error) {
	if src.Path != "" && cache.IsDuckDB(src.Path) {
		db, err := cache.NewDuckDBCatalogue(src.Path)
		if err != nil {
			return nil, err
		}
		n, err := db.TranscriptCount(ctx)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("count transcripts in %s: %w", src.Path, err)
		}
		logger.Info("opened DuckDB catalogue", zap.String("path", src.Path), zap.Int("transcripts", n))
		return &openedCatalogue{Catalogue: db, Count: n, close: db.Close}, nil
	}

	c, err := loadCache(src, logger)
	if err != nil {
		return nil, err
	}
	return &openedCatalogue{Catalogue: c, Count: c.TranscriptCount()}, nil
}

// loadCache loads records into an in-memory cache.
func loadCache(src catalogueSource, logger *zap.Logger) (*cache.Cache, error) {
	c := cache.New()

	if src.Path != "" {
		if err := cache.NewJSONLoader(src.Path).Load(c); err != nil {
			return nil, fmt.Errorf("loading catalogue %s: %w", src.Path, err)
		}
		logger.Info("loaded JSON catalogue", zap.String("path", src.Path), zap.Int("transcripts", c.TranscriptCount()))
		return c, nil
	}

	gtf, fasta, canonical := src.GTF, src.FASTA, src.Canonical
	if gtf == "" {
		var found bool
		gtf, fasta, canonical, found = FindGENCODEFiles(src.Assembly)
		if !found {
			return nil, usageErrorf("no transcript catalogue for %s; run 'vibe-varmap download --assembly %s' or pass --catalogue/--gtf",
				src.Assembly, src.Assembly)
		}
	}

	loader := cache.NewGENCODELoader(gtf, fasta)
	if canonical != "" {
		overrides, err := cache.LoadCanonicalOverrides(canonical)
		if err != nil {
			logger.Warn("could not load canonical overrides", zap.String("path", canonical), zap.Error(err))
		} else {
			loader.SetCanonicalOverrides(overrides)
			logger.Info("loaded canonical overrides", zap.Int("genes", len(overrides)))
		}
	}
	if err := loader.Load(c); err != nil {
		return nil, fmt.Errorf("loading GENCODE annotations: %w", err)
	}
	logger.Info("loaded GENCODE transcripts",
		zap.String("gtf", gtf),
		zap.Int("transcripts", c.TranscriptCount()),
		zap.Int("chromosomes", len(c.Chromosomes())))
	return c, nil
}

// openGenome loads a genome FASTA, or returns nil when none is configured.
// With no path it looks for a genome written by the download command.
func openGenome(path, assembly string, logger *zap.Logger) (cache.ReferenceAccessor, error) {
	if path == "" {
		path = findGenomeFile(assembly)
		if path == "" {
			logger.Debug("no genome FASTA; reference checks are skipped")
			return nil, nil
		}
	}
	g, err := cache.LoadGenomeFASTA(path)
	if err != nil {
		return nil, fmt.Errorf("loading genome %s: %w", path, err)
	}
	logger.Info("loaded genome FASTA", zap.String("path", path))
	return g, nil
}

// FindGENCODEFiles looks for GENCODE files in the default location.
// Returns gtfPath, fastaPath, canonicalPath, and whether files were found.
func FindGENCODEFiles(assembly string) (gtfPath, fastaPath, canonicalPath string, found bool) {
	dir := defaultDataDir(assembly)
	if dir == "" {
		return "", "", "", false
	}

	gtfPattern, fastaPattern := "gencode.v*.annotation.gtf.gz", "gencode.v*.pc_transcripts.fa.gz"
	if strings.EqualFold(assembly, "GRCh37") {
		gtfPattern, fastaPattern = "gencode.v*lift37.annotation.gtf.gz", "gencode.v*lift37.pc_transcripts.fa.gz"
	}

	matches, err := filepath.Glob(filepath.Join(dir, gtfPattern))
	if err != nil || len(matches) == 0 {
		return "", "", "", false
	}
	gtfPath = matches[0]

	matches, err = filepath.Glob(filepath.Join(dir, fastaPattern))
	if err == nil && len(matches) > 0 {
		fastaPath = matches[0]
	}

	cPath := filepath.Join(dir, cache.CanonicalFileName())
	if _, err := os.Stat(cPath); err == nil {
		canonicalPath = cPath
	}
	return gtfPath, fastaPath, canonicalPath, true
}

func findGenomeFile(assembly string) string {
	dir := defaultDataDir(assembly)
	if dir == "" {
		return ""
	}
	p := filepath.Join(dir, genomeFileName(assembly))
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
