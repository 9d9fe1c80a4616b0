package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-varmap/internal/cache"
)

// GENCODE FTP URLs
const (
	gencodeBaseURL = "https://ftp.ebi.ac.uk/pub/databases/gencode/Gencode_human/release_46"
	gencodeVersion = "v46"
)

// getGENCODEURLs returns the GTF and FASTA URLs for the given assembly.
func getGENCODEURLs(assembly string) (gtfURL, fastaURL string) {
	if strings.EqualFold(assembly, "GRCh37") {
		gtfURL = fmt.Sprintf("%s/GRCh37_mapping/gencode.%slift37.annotation.gtf.gz", gencodeBaseURL, gencodeVersion)
		fastaURL = fmt.Sprintf("%s/GRCh37_mapping/gencode.%slift37.pc_transcripts.fa.gz", gencodeBaseURL, gencodeVersion)
		return
	}
	gtfURL = fmt.Sprintf("%s/gencode.%s.annotation.gtf.gz", gencodeBaseURL, gencodeVersion)
	fastaURL = fmt.Sprintf("%s/gencode.%s.pc_transcripts.fa.gz", gencodeBaseURL, gencodeVersion)
	return
}

// genomeURL returns the primary assembly genome FASTA URL.
func genomeURL(assembly string) string {
	if strings.EqualFold(assembly, "GRCh37") {
		return fmt.Sprintf("%s/GRCh37_mapping/%s", gencodeBaseURL, genomeFileName(assembly))
	}
	return fmt.Sprintf("%s/%s", gencodeBaseURL, genomeFileName(assembly))
}

func genomeFileName(assembly string) string {
	if strings.EqualFold(assembly, "GRCh37") {
		return "GRCh37.primary_assembly.genome.fa.gz"
	}
	return "GRCh38.primary_assembly.genome.fa.gz"
}

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download GENCODE annotation files",
		Long: `Download GENCODE annotations and Genome Nexus canonical transcript
overrides. With --genome the primary assembly genome FASTA is downloaded too,
which enables reference checks for genomic input.

Files downloaded:
  - gencode.v46.annotation.gtf.gz (~50MB for GRCh38)
  - gencode.v46.pc_transcripts.fa.gz (~70MB for GRCh38)
  - GRCh38.primary_assembly.genome.fa.gz (~900MB, with --genome)

After downloading, vibe-varmap detects and uses these files automatically.`,
		Example: `  # Download GRCh38 annotations (default)
  vibe-varmap download

  # Download GRCh37 annotations and the genome
  vibe-varmap download --assembly GRCh37 --genome

  # Download to a custom directory
  vibe-varmap download --output /data/gencode`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return runDownload(cmd)
		},
	}

	f := cmd.Flags()
	f.String("assembly", "GRCh38", "Genome assembly: GRCh37 or GRCh38")
	f.StringP("output", "o", "", "Output directory (default: ~/.vibe-varmap/<assembly>)")
	f.Bool("gtf-only", false, "Only download GTF annotations (skip FASTA sequences)")
	f.Bool("genome", false, "Also download the genome FASTA")
	return cmd
}

func runDownload(cmd *cobra.Command) error {
	assembly := viper.GetString("assembly")
	destDir := viper.GetString("output")
	if destDir == "" {
		destDir = defaultDataDir(assembly)
		if destDir == "" {
			return fmt.Errorf("cannot determine home directory")
		}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", destDir, err)
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
	d := &downloader{client: &http.Client{Timeout: 30 * time.Minute}, out: out}

	gtfURL, fastaURL := getGENCODEURLs(assembly)
	fmt.Fprintf(out, "Downloading GENCODE %s annotations for %s...\n", gencodeVersion, assembly)
	fmt.Fprintf(out, "Destination: %s\n\n", destDir)

	if err := d.fetch(ctx, gtfURL, filepath.Join(destDir, filepath.Base(gtfURL))); err != nil {
		return fmt.Errorf("downloading GTF: %w", err)
	}
	if !viper.GetBool("gtf-only") {
		if err := d.fetch(ctx, fastaURL, filepath.Join(destDir, filepath.Base(fastaURL))); err != nil {
			return fmt.Errorf("downloading FASTA: %w", err)
		}
	}

	canonicalFile := filepath.Join(destDir, cache.CanonicalFileName())
	if _, err := os.Stat(canonicalFile); err != nil {
		if err := cache.DownloadCanonicalOverrides(ctx, assembly, canonicalFile); err != nil {
			// the tool still works without overrides
			logger.Warn("could not download canonical transcript overrides", zap.Error(err))
		}
	}

	if viper.GetBool("genome") {
		if err := d.fetch(ctx, genomeURL(assembly), filepath.Join(destDir, genomeFileName(assembly))); err != nil {
			return fmt.Errorf("downloading genome: %w", err)
		}
	}

	fmt.Fprintf(out, "\nDownload complete!\n")
	fmt.Fprintf(out, "To map variants, run:\n")
	fmt.Fprintf(out, "  vibe-varmap map --assembly %s \"KRAS p.G12C\"\n", assembly)
	return nil
}

// downloader fetches files with progress reporting.
type downloader struct {
	client *http.Client
	out    io.Writer
}

// fetch downloads url to destPath unless the file already exists.
func (d *downloader) fetch(ctx context.Context, url, destPath string) error {
	if info, err := os.Stat(destPath); err == nil {
		fmt.Fprintf(d.out, "  %s already exists (%s), skipping\n", filepath.Base(destPath), formatSize(info.Size()))
		return nil
	}
	fmt.Fprintf(d.out, "  Downloading %s...\n", filepath.Base(destPath))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	pw := &progressWriter{out: d.out, total: resp.ContentLength, lastPrint: time.Now()}
	_, err = io.Copy(f, io.TeeReader(resp.Body, pw))
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}

	fmt.Fprintf(d.out, "\n    Done: %s\n", formatSize(pw.downloaded))
	return nil
}

// progressWriter tracks download progress.
type progressWriter struct {
	out        io.Writer
	total      int64
	downloaded int64
	lastPrint  time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloaded += int64(n)

	// Print progress every second
	if time.Since(pw.lastPrint) > time.Second {
		if pw.total > 0 {
			pct := float64(pw.downloaded) / float64(pw.total) * 100
			fmt.Fprintf(pw.out, "\r    Progress: %s / %s (%.1f%%)  ",
				formatSize(pw.downloaded), formatSize(pw.total), pct)
		} else {
			fmt.Fprintf(pw.out, "\r    Progress: %s  ", formatSize(pw.downloaded))
		}
		pw.lastPrint = time.Now()
	}
	return n, nil
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
