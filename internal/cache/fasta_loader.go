package cache

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FASTALoader loads transcript sequences from GENCODE FASTA files.
type FASTALoader struct {
	path      string
	sequences map[string]string // transcript_id -> full sequence
	cdsRanges map[string][2]int // transcript_id -> [cdsStart, cdsEnd] (1-based from header)
}

// NewFASTALoader creates a new FASTA loader.
func NewFASTALoader(path string) *FASTALoader {
	return &FASTALoader{
		path:      path,
		sequences: make(map[string]string),
		cdsRanges: make(map[string][2]int),
	}
}

// Load parses the FASTA file and stores sequences indexed by transcript ID.
func (l *FASTALoader) Load() error {
	r, err := openInput(l.path)
	if err != nil {
		return fmt.Errorf("open FASTA file: %w", err)
	}
	defer r.Close()
	return l.parseFASTA(r)
}

// parseFASTA parses FASTA content.
// GENCODE transcript FASTA headers look like:
// >ENST00000456328.2|ENSG00000290825.1|OTTHUMG00000002860.3|OTTHUMT00000007999.2|DDX11L2-202|DDX11L2|459|UTR5:1-200|CDS:201-459|UTR3:460-1657|
func (l *FASTALoader) parseFASTA(reader io.Reader) error {
	return scanFASTA(reader, func(header, seq string) {
		id := l.parseHeader(header)
		l.sequences[id] = strings.ToUpper(seq)
		if start, end, ok := parseCDSRange(header); ok {
			l.cdsRanges[id] = [2]int{start, end}
		}
	})
}

// scanFASTA calls fn for every record with the header line and the joined sequence.
func scanFASTA(reader io.Reader, fn func(header, seq string)) error {
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var header string
	var seq strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, ">") {
			if header != "" && seq.Len() > 0 {
				fn(header, seq.String())
			}
			header = line
			seq.Reset()
			continue
		}
		seq.WriteString(strings.TrimSpace(line))
	}
	if header != "" && seq.Len() > 0 {
		fn(header, seq.String())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan FASTA: %w", err)
	}
	return nil
}

// parseHeader extracts the transcript ID from a GENCODE or plain Ensembl header.
func (l *FASTALoader) parseHeader(header string) string {
	header = strings.TrimPrefix(header, ">")
	if idx := strings.IndexAny(header, "| \t"); idx != -1 {
		header = header[:idx]
	}
	return stripVersion(header)
}

// parseCDSRange extracts CDS start and end positions from a GENCODE FASTA header.
// Header format: >ENST...|...|CDS:90-920|...
// Returns 1-based start and end positions.
func parseCDSRange(header string) (start, end int, ok bool) {
	for _, field := range strings.Split(header, "|") {
		field = strings.TrimSpace(field)
		if !strings.HasPrefix(field, "CDS:") {
			continue
		}
		parts := strings.SplitN(field[4:], "-", 2)
		if len(parts) != 2 {
			return 0, 0, false
		}
		s, err1 := strconv.Atoi(parts[0])
		e, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return s, e, true
	}
	return 0, 0, false
}

// GetSequence returns the full spliced sequence for a transcript ID, with or
// without version suffix.
func (l *FASTALoader) GetSequence(transcriptID string) string {
	if seq, ok := l.sequences[stripVersion(transcriptID)]; ok {
		return seq
	}
	return l.sequences[transcriptID]
}

// CDSRange returns the 1-based spliced CDS bounds from the FASTA header.
func (l *FASTALoader) CDSRange(transcriptID string) (start, end int, ok bool) {
	r, ok := l.cdsRanges[stripVersion(transcriptID)]
	return r[0], r[1], ok
}

// SequenceCount returns the number of loaded sequences.
func (l *FASTALoader) SequenceCount() int {
	return len(l.sequences)
}

// HasSequence checks if a sequence exists for the given transcript ID.
func (l *FASTALoader) HasSequence(transcriptID string) bool {
	return l.GetSequence(transcriptID) != ""
}

// Attach copies the sequence of a record's transcript onto the record when its
// length agrees with the exons. CDS offsets from the header are used only
// when the record has no genomic CDS bounds.
func (l *FASTALoader) Attach(r *Record) bool {
	seq := l.GetSequence(r.ID)
	if seq == "" {
		return false
	}
	var n int64
	for _, e := range r.Exons {
		n += e.Len()
	}
	if int64(len(seq)) != n {
		return false
	}
	r.Sequence = seq
	if r.CDSStart == 0 {
		if s, e, ok := l.CDSRange(r.ID); ok {
			r.CDSOffsetStart, r.CDSOffsetEnd = int64(s), int64(e)
		}
	}
	return true
}

// GenomeFASTA is an in-memory ReferenceAccessor over a genome FASTA file.
type GenomeFASTA struct {
	chroms map[string]string
}

// LoadGenomeFASTA reads a plain or gzipped genome FASTA. Chromosome names
// are taken from the first header word with any "chr" prefix removed.
func LoadGenomeFASTA(path string) (*GenomeFASTA, error) {
	r, err := openInput(path)
	if err != nil {
		return nil, fmt.Errorf("open genome FASTA: %w", err)
	}
	defer r.Close()
	return ReadGenomeFASTA(r)
}

// ReadGenomeFASTA reads genome FASTA content.
func ReadGenomeFASTA(reader io.Reader) (*GenomeFASTA, error) {
	g := &GenomeFASTA{chroms: make(map[string]string)}
	err := scanFASTA(reader, func(header, seq string) {
		name := strings.TrimPrefix(header, ">")
		if idx := strings.IndexAny(name, " \t"); idx != -1 {
			name = name[:idx]
		}
		g.chroms[normalizeChrom(name)] = strings.ToUpper(seq)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GenomicSequence implements ReferenceAccessor.
func (g *GenomeFASTA) GenomicSequence(ctx context.Context, chrom string, start, end int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	seq, ok := g.chroms[normalizeChrom(chrom)]
	if !ok {
		return "", fmt.Errorf("%w: chromosome %s", ErrNotFound, chrom)
	}
	if start < 1 || end > int64(len(seq)) || end < start {
		return "", fmt.Errorf("%w: %s:%d-%d", ErrOutOfRange, chrom, start, end)
	}
	return seq[start-1 : end], nil
}
