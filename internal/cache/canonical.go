package cache

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// CanonicalOverrides maps gene symbol -> canonical transcript ID.
type CanonicalOverrides map[string]string

// Genome Nexus canonical transcript file URLs.
const (
	canonicalFileGRCh38 = "https://raw.githubusercontent.com/genome-nexus/genome-nexus-importer/master/data/grch38_ensembl95/export/ensembl_biomart_canonical_transcripts_per_hgnc.txt"
	canonicalFileGRCh37 = "https://raw.githubusercontent.com/genome-nexus/genome-nexus-importer/master/data/grch37_ensembl92/export/ensembl_biomart_canonical_transcripts_per_hgnc.txt"
	canonicalFileName   = "ensembl_biomart_canonical_transcripts_per_hgnc.txt"
)

// CanonicalFileURL returns the URL for the canonical transcript file for the given assembly.
func CanonicalFileURL(assembly string) string {
	if strings.EqualFold(assembly, "GRCh37") {
		return canonicalFileGRCh37
	}
	return canonicalFileGRCh38
}

// CanonicalFileName returns the filename for the canonical transcript file.
func CanonicalFileName() string {
	return canonicalFileName
}

// LoadCanonicalOverrides loads overrides from a Genome Nexus biomart TSV file.
func LoadCanonicalOverrides(path string) (CanonicalOverrides, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open canonical overrides file: %w", err)
	}
	defer f.Close()
	return parseCanonicalOverrides(f)
}

// parseCanonicalOverrides reads the biomart export: hgnc_symbol in column 0
// and the Genome Nexus canonical transcript in column 4.
func parseCanonicalOverrides(reader io.Reader) (CanonicalOverrides, error) {
	return parseOverrideColumns(reader, 0, 4)
}

// ParseMSKCCOverrides reads an MSKCC isoform file: gene_name, refseq_id,
// enst_id, note.
func ParseMSKCCOverrides(reader io.Reader) (CanonicalOverrides, error) {
	return parseOverrideColumns(reader, 0, 2)
}

func parseOverrideColumns(reader io.Reader, geneCol, txCol int) (CanonicalOverrides, error) {
	overrides := make(CanonicalOverrides)
	scanner := bufio.NewScanner(reader)

	// Skip header line
	if !scanner.Scan() {
		return overrides, scanner.Err()
	}
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) <= max(geneCol, txCol) {
			continue
		}
		gene, tx := fields[geneCol], fields[txCol]
		if gene == "" || tx == "" || tx == "nan" {
			continue
		}
		overrides[gene] = stripVersion(tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan canonical overrides: %w", err)
	}
	return overrides, nil
}

// Apply marks the override transcript of each gene canonical and unmarks its
// siblings. Genes whose override id is not among the records are left alone.
func (o CanonicalOverrides) Apply(records []*Record) int {
	byGene := make(map[string][]*Record)
	for _, r := range records {
		if r.GeneName != "" {
			byGene[r.GeneName] = append(byGene[r.GeneName], r)
		}
	}

	applied := 0
	for gene, id := range o {
		recs := byGene[gene]
		found := false
		for _, r := range recs {
			if stripVersion(r.ID) == id {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		for _, r := range recs {
			r.IsCanonical = stripVersion(r.ID) == id
		}
		applied++
	}
	return applied
}

// DownloadCanonicalOverrides downloads the canonical transcript file to the given path.
func DownloadCanonicalOverrides(ctx context.Context, assembly, destPath string) error {
	return downloadFile(ctx, CanonicalFileURL(assembly), destPath)
}

// downloadFile fetches url into destPath through a temporary file.
func downloadFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %s", url, resp.Status)
	}

	tmp := destPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	f.Close()

	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", destPath, err)
	}
	return nil
}
