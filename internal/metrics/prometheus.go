// Package metrics records the outcome of each backup or restore run as
// Prometheus series and writes them to a node_exporter textfile.
package metrics

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "plexbackup"

// Run is the outcome of a single backup or restore.
type Run struct {
	Mode            string
	Success         bool
	Finished        time.Time
	Duration        time.Duration
	Files           int
	Bytes           int64
	ArchiveBytes    int64
	ServiceFailures int
}

// PrometheusMetrics holds the collectors for run outcomes, all labelled by mode.
type PrometheusMetrics struct {
	RunCounter      *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	LastRun         *prometheus.GaugeVec
	LastSuccess     *prometheus.GaugeVec
	Files           *prometheus.GaugeVec
	Bytes           *prometheus.GaugeVec
	ArchiveBytes    *prometheus.GaugeVec
	ServiceFailures *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the run collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		RunCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by mode and result.",
		}, []string{"mode", "result"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a run, services included.",
			Buckets:   []float64{10, 30, 60, 300, 600, 1800, 3600, 7200, 14400},
		}, []string{"mode"}),
		LastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}, []string{"mode"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run succeeded, 0 otherwise.",
		}, []string{"mode"}),
		Files: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_files",
			Help:      "Files archived or extracted by the last run.",
		}, []string{"mode"}),
		Bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_bytes",
			Help:      "Uncompressed bytes processed by the last run.",
		}, []string{"mode"}),
		ArchiveBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_archive_bytes",
			Help:      "Size of the archive written or read by the last run.",
		}, []string{"mode"}),
		ServiceFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_service_failures",
			Help:      "Service stop or start actions that failed during the last run.",
		}, []string{"mode"}),
	}

	collectors := []prometheus.Collector{
		m.RunCounter, m.RunDuration, m.LastRun, m.LastSuccess,
		m.Files, m.Bytes, m.ArchiveBytes, m.ServiceFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// RecordRun updates every collector from r.
func (m *PrometheusMetrics) RecordRun(r Run) {
	result := "failed"
	success := 0.0
	if r.Success {
		result = "completed"
		success = 1
	}

	m.RunCounter.WithLabelValues(r.Mode, result).Inc()
	m.RunDuration.WithLabelValues(r.Mode).Observe(r.Duration.Seconds())
	m.LastRun.WithLabelValues(r.Mode).Set(float64(r.Finished.Unix()))
	m.LastSuccess.WithLabelValues(r.Mode).Set(success)
	m.Files.WithLabelValues(r.Mode).Set(float64(r.Files))
	m.Bytes.WithLabelValues(r.Mode).Set(float64(r.Bytes))
	m.ArchiveBytes.WithLabelValues(r.Mode).Set(float64(r.ArchiveBytes))
	m.ServiceFailures.WithLabelValues(r.Mode).Set(float64(r.ServiceFailures))
}

// TextfilePath returns the per-mode textfile for base, so a restore does not
// overwrite the series left by the last backup. "plexbackup.prom" becomes
// "plexbackup_backup.prom" for mode "backup".
func TextfilePath(base, mode string) string {
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".prom"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_" + mode + ext
}

// WriteTextfile records r in a fresh registry and writes it atomically to the
// per-mode textfile derived from base.
func WriteTextfile(base string, r Run) (string, error) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	if err != nil {
		return "", err
	}
	m.RecordRun(r)

	path := TextfilePath(base, r.Mode)
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return "", fmt.Errorf("write metrics textfile: %w", err)
	}
	return path, nil
}
