package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-varmap/internal/cache"
)

func newBuildDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build-db",
		Short: "Build a transcript catalogue from GENCODE files",
		Long: `Load GENCODE GTF and transcript FASTA files (or a JSON catalogue) and
write them to a DuckDB database for fast startup and S3 access. An output
ending in .json writes a JSON catalogue instead.`,
		Example: `  # Convert downloaded GRCh38 annotations
  vibe-varmap build-db -o grch38.duckdb

  # Convert explicit files
  vibe-varmap build-db --gtf gencode.gtf.gz --fasta pc_transcripts.fa.gz -o tx.duckdb

  # Export a JSON catalogue
  vibe-varmap build-db --catalogue tx.duckdb -o tx.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return runBuildDB(cmd)
		},
	}

	f := cmd.Flags()
	f.StringP("output", "o", "", "Output DuckDB (or .json) file path")
	f.String("assembly", "GRCh38", "Genome assembly: GRCh37 or GRCh38")
	f.String("catalogue", "", "Source catalogue: DuckDB file or JSON file/directory")
	f.String("gtf", "", "GENCODE GTF annotation file")
	f.String("fasta", "", "GENCODE transcript FASTA file")
	f.String("canonical", "", "Canonical transcript overrides file")
	return cmd
}

func runBuildDB(cmd *cobra.Command) error {
	outputPath := viper.GetString("output")
	if outputPath == "" {
		return usageErrorf("--output is required")
	}
	src := catalogueSource{
		Assembly:  viper.GetString("assembly"),
		Path:      viper.GetString("catalogue"),
		GTF:       viper.GetString("gtf"),
		FASTA:     viper.GetString("fasta"),
		Canonical: viper.GetString("canonical"),
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
	out := cmd.OutOrStdout()

	c, err := loadSource(ctx, src, logger)
	if err != nil {
		return err
	}
	records := c.Records()
	fmt.Fprintf(out, "Loaded %d transcripts from %d chromosomes\n", len(records), len(c.Chromosomes()))
	if len(records) == 0 {
		logger.Warn("no transcripts loaded")
		return nil
	}

	var count int
	if strings.EqualFold(filepath.Ext(outputPath), ".json") {
		count, err = writeJSONCatalogue(outputPath, records)
	} else {
		count, err = writeDuckDBCatalogue(ctx, outputPath, records)
	}
	if err != nil {
		return err
	}

	sizeStr := "unknown"
	if stat, err := os.Stat(outputPath); err == nil {
		sizeStr = formatSize(stat.Size())
	}
	fmt.Fprintf(out, "\nBuild complete!\n")
	fmt.Fprintf(out, "  Transcripts: %d\n", count)
	fmt.Fprintf(out, "  Output size: %s\n", sizeStr)
	fmt.Fprintf(out, "  Output file: %s\n", outputPath)
	return nil
}

// loadSource reads the source catalogue fully into memory.
func loadSource(ctx context.Context, src catalogueSource, logger *zap.Logger) (*cache.Cache, error) {
	if src.Path != "" && cache.IsDuckDB(src.Path) {
		db, err := cache.NewDuckDBCatalogue(src.Path)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		c := cache.New()
		if err := db.LoadAll(ctx, c); err != nil {
			return nil, fmt.Errorf("loading %s: %w", src.Path, err)
		}
		return c, nil
	}
	return loadCache(src, logger)
}

func writeDuckDBCatalogue(ctx context.Context, path string, records []*cache.Record) (int, error) {
	if ext := filepath.Ext(path); ext != ".duckdb" && ext != ".db" {
		path += ".duckdb"
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return 0, fmt.Errorf("removing existing file: %w", err)
		}
	}

	db, err := cache.NewDuckDBCatalogue(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if err := db.CreateSchema(ctx); err != nil {
		return 0, err
	}
	if err := db.InsertRecords(ctx, records); err != nil {
		return 0, fmt.Errorf("writing transcripts: %w", err)
	}
	n, err := db.TranscriptCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("verifying count: %w", err)
	}
	return n, nil
}

func writeJSONCatalogue(path string, records []*cache.Record) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating output: %w", err)
	}
	if err := cache.WriteJSON(f, records); err != nil {
		f.Close()
		return 0, fmt.Errorf("writing transcripts: %w", err)
	}
	return len(records), f.Close()
}
