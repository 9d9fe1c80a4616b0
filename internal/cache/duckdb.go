package cache

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/biogo/biogo/feat"
	goduckdb "github.com/marcboeker/go-duckdb"
)

// DuckDBCatalogue serves transcript records from a DuckDB database.
type DuckDBCatalogue struct {
	db   *sql.DB
	path string
}

// NewDuckDBCatalogue opens a DuckDB-backed catalogue.
// The path can be a local file path or an S3 URL (s3://bucket/path.duckdb).
func NewDuckDBCatalogue(path string) (*DuckDBCatalogue, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if strings.HasPrefix(path, "s3://") {
		if _, err := db.Exec("INSTALL httpfs; LOAD httpfs;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("load httpfs extension: %w", err)
		}
	}

	return &DuckDBCatalogue{db: db, path: path}, nil
}

// Close closes the database connection.
func (d *DuckDBCatalogue) Close() error {
	return d.db.Close()
}

// CreateSchema creates the tables holding transcripts and exons.
func (d *DuckDBCatalogue) CreateSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS transcripts (
			id VARCHAR PRIMARY KEY,
			gene_id VARCHAR,
			gene_name VARCHAR,
			chrom VARCHAR,
			start BIGINT,
			end_ BIGINT,
			strand TINYINT,
			biotype VARCHAR,
			is_canonical BOOLEAN,
			is_mane_select BOOLEAN,
			cds_start BIGINT,
			cds_end BIGINT,
			cds_offset_start BIGINT,
			cds_offset_end BIGINT,
			sequence VARCHAR,
			protein_sequence VARCHAR
		);

		CREATE TABLE IF NOT EXISTS exons (
			transcript_id VARCHAR,
			exon_number INTEGER,
			start BIGINT,
			end_ BIGINT,
			PRIMARY KEY (transcript_id, exon_number)
		);

		CREATE INDEX IF NOT EXISTS idx_transcripts_pos ON transcripts(chrom, start, end_);
		CREATE INDEX IF NOT EXISTS idx_transcripts_gene ON transcripts(gene_name);
		CREATE INDEX IF NOT EXISTS idx_exons_transcript ON exons(transcript_id);
	`
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertRecords bulk-loads records and their exons through the DuckDB
// appender.
func (d *DuckDBCatalogue) InsertRecords(ctx context.Context, records []*Record) error {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var transcripts, exons *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		if transcripts, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "transcripts"); err != nil {
			return err
		}
		exons, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "exons")
		return err
	}); err != nil {
		if transcripts != nil {
			transcripts.Close()
		}
		return fmt.Errorf("create appender: %w", err)
	}
	defer transcripts.Close()
	defer exons.Close()

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := transcripts.AppendRow(
			r.ID, r.GeneID, r.GeneName, r.Chrom, r.Start, r.End, int8(r.Strand),
			r.Biotype, r.IsCanonical, r.IsMANESelect, r.CDSStart, r.CDSEnd,
			r.CDSOffsetStart, r.CDSOffsetEnd,
			nullString(r.Sequence), nullString(r.ProteinSequence),
		); err != nil {
			return fmt.Errorf("append transcript %s: %w", r.ID, err)
		}
		for i, e := range r.Exons {
			n := e.Number
			if n == 0 {
				n = i + 1
			}
			if err := exons.AppendRow(r.ID, int32(n), e.Start, e.End); err != nil {
				return fmt.Errorf("append exon %s/%d: %w", r.ID, n, err)
			}
		}
	}
	if err := transcripts.Flush(); err != nil {
		return fmt.Errorf("flush transcripts: %w", err)
	}
	if err := exons.Flush(); err != nil {
		return fmt.Errorf("flush exons: %w", err)
	}
	return nil
}

const transcriptColumns = `
	SELECT id, gene_id, gene_name, chrom, start, end_, strand, biotype,
	       is_canonical, is_mane_select, cds_start, cds_end,
	       cds_offset_start, cds_offset_end, sequence, protein_sequence
	FROM transcripts`

// TranscriptsOverlapping implements Catalogue.
func (d *DuckDBCatalogue) TranscriptsOverlapping(ctx context.Context, chrom string, pos int64) ([]*Record, error) {
	return d.queryRecords(ctx, transcriptColumns+`
		WHERE chrom = ? AND start <= ? AND end_ >= ?
		ORDER BY start, id`, chrom, pos, pos)
}

// TranscriptByID implements Catalogue. Ids match with or without version suffix.
func (d *DuckDBCatalogue) TranscriptByID(ctx context.Context, id string) (*Record, error) {
	recs, err := d.queryRecords(ctx, transcriptColumns+`
		WHERE id = ? OR id = ? OR id LIKE ?
		ORDER BY id`, id, stripVersion(id), stripVersion(id)+".%")
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.ID == id {
			return r, nil
		}
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return recs[0], nil
}

// TranscriptsByGene implements GeneIndex.
func (d *DuckDBCatalogue) TranscriptsByGene(ctx context.Context, gene string) ([]*Record, error) {
	return d.queryRecords(ctx, transcriptColumns+`
		WHERE upper(gene_name) = upper(?)
		ORDER BY id`, gene)
}

// LoadAll copies every record into an in-memory cache.
func (d *DuckDBCatalogue) LoadAll(ctx context.Context, c *Cache) error {
	recs, err := d.queryRecords(ctx, transcriptColumns+` ORDER BY chrom, start, id`)
	if err != nil {
		return err
	}
	for _, r := range recs {
		c.AddRecord(r)
	}
	return nil
}

func (d *DuckDBCatalogue) queryRecords(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	var recs []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		recs = append(recs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read transcripts: %w", err)
	}

	for _, r := range recs {
		if err := d.loadExons(ctx, r); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	r := &Record{}
	var strand int8
	var seq, prot sql.NullString
	err := rows.Scan(
		&r.ID, &r.GeneID, &r.GeneName, &r.Chrom, &r.Start, &r.End,
		&strand, &r.Biotype, &r.IsCanonical, &r.IsMANESelect, &r.CDSStart, &r.CDSEnd,
		&r.CDSOffsetStart, &r.CDSOffsetEnd, &seq, &prot,
	)
	if err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	r.Strand = feat.Orientation(strand)
	r.Sequence = seq.String
	r.ProteinSequence = prot.String
	return r, nil
}

func (d *DuckDBCatalogue) loadExons(ctx context.Context, r *Record) error {
	rows, err := d.db.QueryContext(ctx, `
		SELECT exon_number, start, end_
		FROM exons
		WHERE transcript_id = ?
		ORDER BY exon_number
	`, r.ID)
	if err != nil {
		return fmt.Errorf("query exons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Exon
		if err := rows.Scan(&e.Number, &e.Start, &e.End); err != nil {
			return fmt.Errorf("scan exon: %w", err)
		}
		r.Exons = append(r.Exons, e)
	}
	return rows.Err()
}

// TranscriptCount returns the total number of transcripts in the database.
func (d *DuckDBCatalogue) TranscriptCount(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transcripts").Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

// Chromosomes returns a sorted list of chromosomes in the database.
func (d *DuckDBCatalogue) Chromosomes(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT chrom FROM transcripts ORDER BY chrom")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chroms []string
	for rows.Next() {
		var chrom string
		if err := rows.Scan(&chrom); err != nil {
			return nil, err
		}
		chroms = append(chroms, chrom)
	}
	return chroms, rows.Err()
}

// nullString returns nil if s is empty, otherwise s.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// IsDuckDB checks if a path is a DuckDB database file.
func IsDuckDB(path string) bool {
	return strings.HasSuffix(path, ".duckdb") ||
		strings.HasSuffix(path, ".db") ||
		strings.HasPrefix(path, "s3://")
}
