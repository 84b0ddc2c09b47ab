package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config
type Config struct {
	Addr string
}

// ServiceInfo labels every reported metric.
type ServiceInfo struct {
	Engine string
}

var (
	recordDuration = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "record_durations_milliseconds",
			Help:       "Record decoding duration distributions.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"engine", "processing_kind"},
	)

	recordDurationsHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "record_durations_histogram_milliseconds",
			Help:    "Record decoding duration distributions.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"engine", "processing_kind"},
	)

	recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_decoded_total",
			Help: "Number of decoded records.",
		},
		[]string{"engine", "processing_kind"},
	)

	pipelineFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_errors_total",
			Help: "Number of pipeline errors.",
		},
		[]string{"engine", "failure"},
	)
)

// prometheusServer exposes the metrics registry over http.
type prometheusServer struct {
	server   *http.Server
	registry *prometheus.Registry
	conf     Config
}

// NewPrometheusServer
func NewPrometheusServer(conf Config) (*prometheusServer, error) {
	p := &prometheusServer{
		registry: prometheus.NewRegistry(),
		conf:     conf,
	}

	for _, c := range []prometheus.Collector{
		recordDuration,
		recordDurationsHistogram,
		recordsTotal,
		pipelineFailures,
		collectors.NewBuildInfoCollector(),
	} {
		if err := p.registry.Register(c); err != nil {
			return nil, err
		}
	}

	p.server = &http.Server{
		Addr: p.conf.Addr,
		Handler: promhttp.HandlerFor(
			p.registry,
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		),
	}

	return p, nil
}

// Serve blocks until the server is stopped.
func (p *prometheusServer) Serve() error {
	if err := p.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop
func (p *prometheusServer) Stop(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}

// reporter
type reporter struct {
	info ServiceInfo
}

// NewReporter
func NewReporter(info ServiceInfo) (*reporter, error) {
	return &reporter{info: info}, nil
}

// RecordDecoded
func (r *reporter) RecordDecoded(processingKind string, milliseconds float64) {
	recordDuration.WithLabelValues(r.info.Engine, processingKind).Observe(milliseconds)
	recordDurationsHistogram.WithLabelValues(r.info.Engine, processingKind).Observe(milliseconds)
	recordsTotal.WithLabelValues(r.info.Engine, processingKind).Inc()
}

// PipelineFailed
func (r *reporter) PipelineFailed(failure string) {
	pipelineFailures.WithLabelValues(r.info.Engine, failure).Inc()
}
