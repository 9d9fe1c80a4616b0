package cache

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/biogo/feat"
	"github.com/klauspost/compress/gzip"
)

// Loader fills a cache from some transcript source.
type Loader interface {
	Load(c *Cache) error
}

// GTFLoader loads transcript structure from GENCODE GTF files.
type GTFLoader struct {
	path string
}

// NewGTFLoader creates a new GTF loader.
func NewGTFLoader(path string) *GTFLoader {
	return &GTFLoader{path: path}
}

// Load loads all transcripts from the GTF file into the cache.
func (l *GTFLoader) Load(c *Cache) error {
	return l.loadGTF(c, "")
}

// LoadChromosome loads transcripts for a specific chromosome.
func (l *GTFLoader) LoadChromosome(c *Cache, chrom string) error {
	return l.loadGTF(c, chrom)
}

func (l *GTFLoader) loadGTF(c *Cache, filterChrom string) error {
	r, err := openInput(l.path)
	if err != nil {
		return fmt.Errorf("open GTF file: %w", err)
	}
	defer r.Close()

	records, err := l.parseGTF(r, filterChrom)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c.AddRecord(records[id])
	}
	return nil
}

// openInput opens a plain or gzipped file.
func openInput(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	return &gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

// gtfFeature represents a parsed GTF line.
type gtfFeature struct {
	chrom       string
	featureType string
	start       int64
	end         int64
	strand      string
	attributes  map[string]string
	tags        []string
}

func (f *gtfFeature) hasTag(tag string) bool {
	for _, t := range f.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// parseGTF parses GTF content and returns records keyed by unversioned id.
func (l *GTFLoader) parseGTF(reader io.Reader, filterChrom string) (map[string]*Record, error) {
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	records := make(map[string]*Record)
	cdsByTranscript := make(map[string][][2]int64)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		f, err := parseGTFLine(line)
		if err != nil {
			continue
		}
		if filterChrom != "" && f.chrom != normalizeChrom(filterChrom) {
			continue
		}

		id := stripVersion(f.attributes["transcript_id"])
		if id == "" {
			continue
		}

		switch f.featureType {
		case "transcript":
			records[id] = &Record{
				ID:           id,
				GeneID:       stripVersion(f.attributes["gene_id"]),
				GeneName:     f.attributes["gene_name"],
				Chrom:        f.chrom,
				Start:        f.start,
				End:          f.end,
				Strand:       parseStrand(f.strand),
				Biotype:      f.attributes["transcript_type"],
				IsCanonical:  f.hasTag("Ensembl_canonical"),
				IsMANESelect: f.hasTag("MANE_Select"),
			}

		case "exon":
			r, ok := records[id]
			if !ok {
				continue
			}
			n, _ := strconv.Atoi(f.attributes["exon_number"])
			r.Exons = append(r.Exons, Exon{Number: n, Start: f.start, End: f.end})

		case "CDS":
			cdsByTranscript[id] = append(cdsByTranscript[id], [2]int64{f.start, f.end})

		case "start_codon", "stop_codon":
			r, ok := records[id]
			if !ok {
				continue
			}
			// The start codon opens the CDS on the forward strand and the
			// stop codon closes it; on the reverse strand the roles swap.
			lower := (f.featureType == "start_codon") == (r.Strand == feat.Forward)
			if lower {
				if r.CDSStart == 0 || f.start < r.CDSStart {
					r.CDSStart = f.start
				}
			} else if f.end > r.CDSEnd {
				r.CDSEnd = f.end
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan GTF: %w", err)
	}

	for id, r := range records {
		if len(r.Exons) == 0 {
			delete(records, id)
			continue
		}
		sortExons(r.Exons)

		regions := cdsByTranscript[id]
		if len(regions) == 0 {
			continue
		}
		lo, hi := regions[0][0], regions[0][1]
		for _, reg := range regions[1:] {
			lo = min(lo, reg[0])
			hi = max(hi, reg[1])
		}
		if r.CDSStart == 0 {
			r.CDSStart = lo
		}
		if r.CDSEnd == 0 {
			r.CDSEnd = hi
		}
	}
	return records, nil
}

// parseGTFLine parses a single GTF line.
func parseGTFLine(line string) (*gtfFeature, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 9 {
		return nil, fmt.Errorf("invalid GTF line: expected 9 fields, got %d", len(fields))
	}
	start, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse start: %w", err)
	}
	end, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse end: %w", err)
	}
	attrs, tags := parseAttributes(fields[8])
	return &gtfFeature{
		chrom:       normalizeChrom(fields[0]),
		featureType: fields[2],
		start:       start,
		end:         end,
		strand:      fields[6],
		attributes:  attrs,
		tags:        tags,
	}, nil
}

// parseAttributes parses the GTF attribute column, key "value"; key "value";
// Repeated tag attributes are collected separately.
func parseAttributes(attrStr string) (map[string]string, []string) {
	attrs := make(map[string]string)
	var tags []string
	for _, part := range strings.Split(attrStr, ";") {
		part = strings.TrimSpace(part)
		idx := strings.Index(part, " ")
		if idx == -1 {
			continue
		}
		key := part[:idx]
		value := strings.Trim(strings.TrimSpace(part[idx+1:]), "\"")
		if key == "tag" {
			tags = append(tags, value)
		}
		attrs[key] = value
	}
	return attrs, tags
}

func parseStrand(s string) feat.Orientation {
	switch s {
	case "+":
		return feat.Forward
	case "-":
		return feat.Reverse
	}
	return feat.NotOriented
}

// stripVersion removes the version suffix from an Ensembl ID.
// e.g., "ENST00000456328.2" -> "ENST00000456328"
func stripVersion(id string) string {
	if idx := strings.LastIndex(id, "."); idx != -1 {
		return id[:idx]
	}
	return id
}

// normalizeChrom removes the "chr" prefix so GENCODE and VCF-style names agree.
func normalizeChrom(chrom string) string {
	return strings.TrimPrefix(chrom, "chr")
}

// GENCODELoader combines GTF structure, transcript FASTA sequences and
// canonical overrides.
type GENCODELoader struct {
	gtf                *GTFLoader
	fastaPath          string
	canonicalOverrides CanonicalOverrides
}

// NewGENCODELoader creates a loader for GENCODE GTF + FASTA files.
func NewGENCODELoader(gtfPath, fastaPath string) *GENCODELoader {
	return &GENCODELoader{gtf: NewGTFLoader(gtfPath), fastaPath: fastaPath}
}

// SetCanonicalOverrides sets canonical transcript overrides. For each gene
// with an override only the named transcript stays canonical.
func (l *GENCODELoader) SetCanonicalOverrides(overrides CanonicalOverrides) {
	l.canonicalOverrides = overrides
}

// Load loads all transcripts and sequences into the cache.
func (l *GENCODELoader) Load(c *Cache) error {
	staging := New()
	if err := l.gtf.Load(staging); err != nil {
		return fmt.Errorf("load GTF: %w", err)
	}
	records := staging.Records()

	if len(l.canonicalOverrides) > 0 {
		l.canonicalOverrides.Apply(records)
	}

	if l.fastaPath != "" {
		fasta := NewFASTALoader(l.fastaPath)
		if err := fasta.Load(); err != nil {
			return fmt.Errorf("load FASTA: %w", err)
		}
		for _, r := range records {
			fasta.Attach(r)
		}
	}

	for _, r := range records {
		c.AddRecord(r)
	}
	return nil
}
