package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for item counters
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics holds the run's Prometheus collectors. A run is a batch job, so
// values are exported once to a node_exporter textfile rather than scraped.
type Metrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.GaugeVec
	items         *prometheus.CounterVec
	uploadBytes   prometheus.Counter
	lastSuccess   prometheus.Gauge
	lastRun       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "metapub",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage during the last run.",
		}, []string{"stage"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metapub",
			Name:      "items_total",
			Help:      "Items processed per stage and outcome.",
		}, []string{"stage", "outcome"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metapub",
			Name:      "upload_bytes_total",
			Help:      "Bytes handed to the content uploader.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metapub",
			Name:      "last_run_success",
			Help:      "1 if the last run completed without failures.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metapub",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	m.registry.MustRegister(m.stageDuration, m.items, m.uploadBytes, m.lastSuccess, m.lastRun)
	return m
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

func (m *Metrics) CountItems(stage, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.items.WithLabelValues(stage, outcome).Add(float64(n))
}

func (m *Metrics) AddUploadBytes(n int) {
	if n > 0 {
		m.uploadBytes.Add(float64(n))
	}
}

// Finish records the run outcome at the given time
func (m *Metrics) Finish(success bool, at time.Time) {
	if success {
		m.lastSuccess.Set(1)
	} else {
		m.lastSuccess.Set(0)
	}
	m.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes all collectors in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
