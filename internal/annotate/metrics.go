package annotate

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inodb/vibe-varmap/internal/hgvs"
)

// Metrics counts mapping outcomes. A nil *Metrics records nothing.
type Metrics struct {
	Requests    *prometheus.CounterVec
	Transcripts *prometheus.CounterVec
	Results     *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
}

// NewMetrics creates the mapping metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "varmap",
			Name:      "requests_total",
			Help:      "Mapping requests by input space and outcome.",
		}, []string{"space", "outcome"}),
		Transcripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "varmap",
			Name:      "transcripts_total",
			Help:      "Transcripts tried, by outcome or skip reason.",
		}, []string{"outcome"}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "varmap",
			Name:      "results_total",
			Help:      "Per-transcript results by confidence.",
		}, []string{"confidence"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "varmap",
			Name:      "request_duration_seconds",
			Help:      "Time spent mapping one request.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"space"}),
	}
	reg.MustRegister(m.Requests, m.Transcripts, m.Results, m.Duration)
	return m
}

// Request outcomes.
const (
	OutcomeMapped       = "mapped"
	OutcomeNoValid      = "no_valid_transcript"
	OutcomeNoTranscript = "no_transcript"
	OutcomeMismatch     = "reference_mismatch"
	OutcomeError        = "error"
)

func (m *Metrics) observeRequest(space hgvs.Space, rep *Report, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeMapped
	switch {
	case errors.Is(err, ErrNoTranscriptOverlap):
		outcome = OutcomeNoTranscript
	case errors.Is(err, ErrReferenceMismatch):
		outcome = OutcomeMismatch
	case err != nil:
		outcome = OutcomeError
	case !rep.Valid():
		outcome = OutcomeNoValid
	}
	m.Requests.WithLabelValues(space.String(), outcome).Inc()
	m.Duration.WithLabelValues(space.String()).Observe(took.Seconds())
}

func (m *Metrics) observeTranscript(outcome string) {
	if m == nil {
		return
	}
	m.Transcripts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeResult(r *MappingResult) {
	if m == nil {
		return
	}
	m.Results.WithLabelValues(r.Confidence.String()).Inc()
}
