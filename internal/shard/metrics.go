package shard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tokcompress/internal/codebook"
)

// Metrics holds Prometheus metrics for the shard pipeline.
//
// Metrics:
//   - tokcompress_input_tokens_total - tokens read from source shards
//   - tokcompress_output_tokens_total - compressed ids written, padding included
//   - tokcompress_windows_total - windows written
//   - tokcompress_codebook_entries_total - codebook entries in use across windows
//   - tokcompress_failures_total{kind} - failed shards by error kind
//   - tokcompress_window_fill_ratio - input tokens per compressed window slot
//   - tokcompress_shard_duration_seconds - wall time per shard
type Metrics struct {
	InputTokensTotal  prometheus.Counter
	OutputTokensTotal prometheus.Counter
	WindowsTotal      prometheus.Counter
	EntriesTotal      prometheus.Counter
	FailuresTotal     *prometheus.CounterVec
	WindowFillRatio   prometheus.Histogram
	ShardDuration     prometheus.Histogram
}

// NewMetrics registers the pipeline metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InputTokensTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tokcompress_input_tokens_total",
			Help: "Total number of tokens read from source shards",
		}),
		OutputTokensTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tokcompress_output_tokens_total",
			Help: "Total number of compressed ids written, padding included",
		}),
		WindowsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tokcompress_windows_total",
			Help: "Total number of compressed windows written",
		}),
		EntriesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tokcompress_codebook_entries_total",
			Help: "Total number of codebook entries in use across windows",
		}),
		FailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokcompress_failures_total",
				Help: "Total number of shards that failed to compress",
			},
			[]string{"kind"},
		),
		WindowFillRatio: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tokcompress_window_fill_ratio",
			Help:    "Input tokens covered per compressed window slot",
			Buckets: prometheus.LinearBuckets(1, 0.25, 13), // 1x to 4x
		}),
		ShardDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tokcompress_shard_duration_seconds",
			Help:    "Wall time spent compressing one shard",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}),
	}
}

// RecordWindow records one written window.
func (m *Metrics) RecordWindow(w *Window, slots int) {
	if m == nil {
		return
	}
	m.InputTokensTotal.Add(float64(w.Consumed))
	m.OutputTokensTotal.Add(float64(slots))
	m.WindowsTotal.Inc()
	m.EntriesTotal.Add(float64(len(w.Result.Codebook)))
	if slots > 0 {
		m.WindowFillRatio.Observe(float64(w.Consumed) / float64(slots))
	}
}

// RecordFailure counts a failed shard under the error's kind.
func (m *Metrics) RecordFailure(err error) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(string(codebook.KindOf(err))).Inc()
}

// RecordDuration observes the time spent on one shard.
func (m *Metrics) RecordDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ShardDuration.Observe(seconds)
}

// WriteTextfile dumps everything g gathers in the text exposition format, for the
// node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
