package output

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/inodb/vibe-varmap/internal/annotate"
	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// JSONWriter writes one JSON object per report (JSON Lines).
type JSONWriter struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewJSONWriter creates a JSON Lines writer.
func NewJSONWriter(w io.Writer) *JSONWriter {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSONWriter{w: bw, enc: enc}
}

type jsonReport struct {
	Input       string        `json:"input"`
	Target      string        `json:"target,omitempty"`
	Transcripts int           `json:"transcripts"`
	Groups      []jsonGroup   `json:"groups"`
	Skipped     []jsonSkipped `json:"skipped,omitempty"`
	Status      string        `json:"status,omitempty"`
	Error       string        `json:"error,omitempty"`
}

type jsonGroup struct {
	Key            string       `json:"key"`
	Count          int          `json:"count"`
	Representative jsonResult   `json:"representative"`
	Results        []jsonResult `json:"results"`
}

type jsonResult struct {
	TranscriptIDs  []string                `json:"transcript_ids"`
	Gene           string                  `json:"gene,omitempty"`
	Canonical      bool                    `json:"canonical,omitempty"`
	Target         string                  `json:"target,omitempty"`
	Genomic        string                  `json:"gdna,omitempty"`
	CDNA           string                  `json:"cdna,omitempty"`
	Protein        string                  `json:"protein,omitempty"`
	Confidence     annotate.Confidence     `json:"confidence"`
	Classification annotate.Classification `json:"classification"`
	Region         string                  `json:"region,omitempty"`
	Consequence    string                  `json:"consequence,omitempty"`
	Impact         string                  `json:"impact,omitempty"`
	Notes          []string                `json:"notes,omitempty"`
}

type jsonSkipped struct {
	TranscriptID string `json:"transcript_id"`
	Reason       string `json:"reason"`
	Error        string `json:"error,omitempty"`
}

// WriteHeader is a no-op; JSON Lines has no header.
func (jw *JSONWriter) WriteHeader() error { return nil }

// WriteReport writes one report object.
func (jw *JSONWriter) WriteReport(input string, rep *annotate.Report) error {
	if input == "" {
		input = rep.Input.String()
	}
	out := jsonReport{
		Input:       input,
		Target:      rep.Target.String(),
		Transcripts: rep.Transcripts,
		Groups:      make([]jsonGroup, 0, len(rep.Groups)),
	}
	for _, g := range rep.Groups {
		jg := jsonGroup{
			Key:            g.Key,
			Count:          g.Count,
			Representative: toJSONResult(g.Representative),
		}
		for _, r := range g.Results {
			jg.Results = append(jg.Results, toJSONResult(r))
		}
		out.Groups = append(out.Groups, jg)
	}
	for _, s := range rep.Skipped {
		js := jsonSkipped{TranscriptID: s.TranscriptID, Reason: s.Reason}
		if s.Err != nil {
			js.Error = s.Err.Error()
		}
		out.Skipped = append(out.Skipped, js)
	}
	if !rep.Valid() {
		out.Status = NoValidTranscript
	}
	return jw.enc.Encode(out)
}

// WriteError writes an object for an input that could not be mapped.
func (jw *JSONWriter) WriteError(input string, err error) error {
	return jw.enc.Encode(jsonReport{Input: input, Groups: []jsonGroup{}, Error: err.Error()})
}

// Flush flushes any buffered data to the underlying writer.
func (jw *JSONWriter) Flush() error {
	return jw.w.Flush()
}

func toJSONResult(r *annotate.MappingResult) jsonResult {
	return jsonResult{
		TranscriptIDs:  r.TranscriptIDs,
		Gene:           r.GeneName,
		Canonical:      r.IsCanonical,
		Target:         str(r.Target),
		Genomic:        str(r.Genomic),
		CDNA:           str(r.CDNA),
		Protein:        str(r.Protein),
		Confidence:     r.Confidence,
		Classification: r.Classification,
		Region:         r.Region,
		Consequence:    r.Consequence,
		Impact:         r.Impact,
		Notes:          r.Notes,
	}
}

func str(d *hgvs.Descriptor) string {
	if d == nil {
		return ""
	}
	return d.String()
}
