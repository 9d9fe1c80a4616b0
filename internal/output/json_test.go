package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-varmap/internal/annotate"
)

func TestJSONWriter_WriteReport(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteReport("GENEA p.E3K", e2kReport(t)))
	require.NoError(t, w.Flush())

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "GENEA p.E3K", got["input"])
	assert.Equal(t, "g", got["target"])
	assert.Equal(t, 3.0, got["transcripts"])
	assert.NotContains(t, got, "status")

	groups := got["groups"].([]any)
	require.Len(t, groups, 1)
	g := groups[0].(map[string]any)
	assert.Equal(t, "1:1006-1007>A", g["key"])
	assert.Equal(t, 2.0, g["count"])
	assert.Len(t, g["results"], 2)

	rep := g["representative"].(map[string]any)
	assert.Equal(t, []any{"TX1.1", "TX1B"}, rep["transcript_ids"])
	assert.Equal(t, "fuzzy-unique", rep["confidence"])
	assert.Equal(t, "coding", rep["classification"])
	assert.Equal(t, "1:g.1007G>A", rep["gdna"])
	assert.Equal(t, "TX1.1:c.4G>A", rep["cdna"])
	assert.Equal(t, "TX1.1:p.E2K", rep["protein"])
	assert.Equal(t, true, rep["canonical"])

	skipped := got["skipped"].([]any)
	require.Len(t, skipped, 1)
	assert.Equal(t, map[string]any{
		"transcript_id": "NC2",
		"reason":        annotate.ReasonNonCoding,
		"error":         annotate.ErrNotCoding.Error(),
	}, skipped[0])
}

func TestJSONWriter_OneLinePerReport(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)

	require.NoError(t, w.WriteReport("a", e2kReport(t)))
	require.NoError(t, w.WriteReport("b", &annotate.Report{Input: mustParse(t, "TX2:p.W3R")}))
	require.NoError(t, w.WriteError("c", errors.New("no transcript overlaps the variant")))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var noValid, failed map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &noValid))
	assert.Equal(t, NoValidTranscript, noValid["status"])
	assert.Equal(t, []any{}, noValid["groups"])

	require.NoError(t, json.Unmarshal([]byte(lines[2]), &failed))
	assert.Equal(t, "c", failed["input"])
	assert.Equal(t, "no transcript overlaps the variant", failed["error"])
}
