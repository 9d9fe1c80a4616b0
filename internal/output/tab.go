// Package output provides report output formatters.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/vibe-varmap/internal/annotate"
	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// NoValidTranscript marks an input for which every transcript was skipped.
const NoValidTranscript = "no_valid_transcript_found"

// ReportWriter writes mapping reports.
type ReportWriter interface {
	WriteHeader() error
	WriteReport(input string, rep *annotate.Report) error
	WriteError(input string, err error) error
	Flush() error
}

// TabWriter writes one tab-delimited row per ambiguity group.
type TabWriter struct {
	w       *bufio.Writer
	columns []string
	all     bool
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"#input",
			"transcripts",
			"gene",
			"coordinates(gDNA/cDNA/protein)",
			"region",
			"consequence",
			"impact",
			"confidence",
			"count",
			"info",
		},
	}
}

// SetAllResults makes the writer emit every per-transcript result instead
// of one row per group.
func (tw *TabWriter) SetAllResults(all bool) {
	tw.all = all
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// WriteReport writes the rows of one report.
func (tw *TabWriter) WriteReport(input string, rep *annotate.Report) error {
	if input == "" {
		input = rep.Input.String()
	}
	if !rep.Valid() {
		return tw.row(input, "-", "-", NoValidTranscript, "-", "-", "-", "-", "0", skippedInfo(rep.Skipped))
	}
	for _, g := range rep.Groups {
		results := []*annotate.MappingResult{g.Representative}
		if tw.all {
			results = g.Results
		}
		for _, r := range results {
			info := append([]string{"group=" + g.Key}, r.Notes...)
			if err := tw.row(input,
				strings.Join(r.TranscriptIDs, ","),
				orDash(r.GeneName),
				Coordinates(r),
				orDash(r.Region),
				orDash(r.Consequence),
				orDash(r.Impact),
				r.Confidence.String(),
				strconv.Itoa(g.Count),
				strings.Join(info, ";"),
			); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteError writes a row for an input that could not be mapped at all.
func (tw *TabWriter) WriteError(input string, err error) error {
	return tw.row(input, "-", "-", "-", "-", "-", "-", "-", "0", "error="+sanitize(err.Error()))
}

func (tw *TabWriter) row(values ...string) error {
	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

// Coordinates renders the gDNA/cDNA/protein triple of a result without
// feature prefixes, e.g. "g.1007G>A/c.4G>A/p.E2K".
func Coordinates(r *annotate.MappingResult) string {
	return change(r.Genomic, "g.") + "/" + change(r.CDNA, "c.") + "/" + change(r.Protein, "p.")
}

func change(d *hgvs.Descriptor, prefix string) string {
	if d == nil {
		return prefix
	}
	return prefix + d.Change()
}

func skippedInfo(skipped []annotate.SkippedTranscript) string {
	if len(skipped) == 0 {
		return "-"
	}
	parts := make([]string, len(skipped))
	for i, s := range skipped {
		parts[i] = fmt.Sprintf("%s:%s", s.TranscriptID, s.Reason)
	}
	return "skipped=" + strings.Join(parts, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sanitize(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ").Replace(s)
}
