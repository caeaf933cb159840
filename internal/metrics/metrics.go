package metrics

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the Prometheus metrics for netlens
type Metrics struct {
	// Counters
	Detections   *prometheus.CounterVec
	LookupErrors *prometheus.CounterVec
	SinkErrors   *prometheus.CounterVec
	Reports      *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec

	// Gauges
	QueueDepth *prometheus.GaugeVec

	// Histograms
	DetectDuration *prometheus.HistogramVec
	HTTPDuration   *prometheus.HistogramVec
}

// Config holds configuration for the metrics server
type Config struct {
	Enabled bool
	Addr    string
	TLSCert string
	TLSKey  string
}

// LoadConfig loads metrics configuration from environment variables
func LoadConfig() Config {
	return Config{
		Enabled: getBool("METRICS_ENABLED", false),
		Addr:    getOr("METRICS_ADDR", "127.0.0.1:9090"),
		TLSCert: getOr("METRICS_TLS_CERT", ""),
		TLSKey:  getOr("METRICS_TLS_KEY", ""),
	}
}

// NewMetrics creates and registers all netlens metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		Detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netlens_detections_total",
				Help: "Total detection verdicts by connection type and confidence",
			},
			[]string{"connection_type", "confidence"},
		),

		LookupErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netlens_lookup_errors_total",
				Help: "Total failed external lookups by provider and error kind",
			},
			[]string{"provider", "kind"},
		),

		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netlens_sink_errors_total",
				Help: "Total errors writing to a sink",
			},
			[]string{"sink", "error_type"},
		),

		Reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netlens_reports_emitted_total",
				Help: "Total detection reports emitted by sink",
			},
			[]string{"sink"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netlens_http_requests_total",
				Help: "Total HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netlens_queue_depth",
				Help: "Current depth of a sink's internal queue",
			},
			[]string{"sink"},
		),

		DetectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netlens_detect_duration_seconds",
				Help:    "End-to-end detection latency, external lookups included",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 1.5, 2.0, 3.0},
			},
			[]string{"connection_type"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netlens_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method"},
		),
	}

	prometheus.MustRegister(m.Detections)
	prometheus.MustRegister(m.LookupErrors)
	prometheus.MustRegister(m.SinkErrors)
	prometheus.MustRegister(m.Reports)
	prometheus.MustRegister(m.HTTPRequests)
	prometheus.MustRegister(m.QueueDepth)
	prometheus.MustRegister(m.DetectDuration)
	prometheus.MustRegister(m.HTTPDuration)

	return m
}

// Server represents the metrics HTTP server
type Server struct {
	server *http.Server
	config Config
}

// NewServer creates a new metrics server
func NewServer(config Config) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if config.TLSCert != "" && config.TLSKey != "" {
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Server{server: srv, config: config}
}

// Start starts the metrics server in a separate goroutine
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		log.Printf("metrics: disabled (METRICS_ENABLED=false)")
		return nil
	}

	go func() {
		var err error
		if s.config.TLSCert != "" && s.config.TLSKey != "" {
			log.Printf("metrics: HTTPS server listening on %s", s.config.Addr)
			err = s.server.ListenAndServeTLS(s.config.TLSCert, s.config.TLSKey)
		} else {
			log.Printf("metrics: HTTP server listening on %s", s.config.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Printf("metrics: server error: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}
	log.Printf("metrics: shutting down server...")
	return s.server.Shutdown(ctx)
}

func getOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Convenience methods for common operations
func (m *Metrics) ObserveDetection(connectionType, confidence string, duration time.Duration) {
	m.Detections.WithLabelValues(connectionType, confidence).Inc()
	m.DetectDuration.WithLabelValues(connectionType).Observe(duration.Seconds())
}

func (m *Metrics) IncrementLookupErrors(provider, kind string) {
	m.LookupErrors.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) IncrementSinkErrors(sink, errorType string) {
	m.SinkErrors.WithLabelValues(sink, errorType).Inc()
}

func (m *Metrics) IncrementReports(sink string) {
	m.Reports.WithLabelValues(sink).Inc()
}

func (m *Metrics) IncrementHTTPRequests(endpoint, method, status string) {
	m.HTTPRequests.WithLabelValues(endpoint, method, status).Inc()
}

func (m *Metrics) SetQueueDepth(sink string, depth float64) {
	m.QueueDepth.WithLabelValues(sink).Set(depth)
}

func (m *Metrics) ObserveHTTPDuration(endpoint, method string, duration time.Duration) {
	m.HTTPDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}
