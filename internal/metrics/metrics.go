package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics for the spread monitoring service
var (
	// Price feed metrics
	PriceUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spreadup_price_updates_total",
			Help: "Total number of price updates accepted into the cache",
		},
		[]string{"exchange", "market"},
	)

	WSMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spreadup_ws_messages_total",
			Help: "Total number of feed messages received",
		},
		[]string{"exchange", "market"},
	)

	ParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spreadup_parse_errors_total",
			Help: "Total number of feed messages dropped as unparseable",
		},
		[]string{"exchange", "market"},
	)

	// Connection metrics
	FeedUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spreadup_feed_up",
			Help: "Feed status (1=streaming, 0=not streaming)",
		},
		[]string{"exchange", "market"},
	)

	FeedReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spreadup_feed_reconnects_total",
			Help: "Total number of feed reconnection attempts",
		},
		[]string{"exchange", "market"},
	)

	ConnectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spreadup_connector_errors_total",
			Help: "Total number of connector errors",
		},
		[]string{"exchange", "error_type"},
	)

	// REST metrics
	RestRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spreadup_rest_requests_total",
			Help: "Total number of REST requests issued",
		},
		[]string{"exchange"},
	)

	RestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spreadup_rest_errors_total",
			Help: "Total number of failed REST requests",
		},
		[]string{"exchange"},
	)

	RestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spreadup_rest_request_duration_seconds",
			Help:    "Time to complete an exchange REST request",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"exchange"},
	)

	BreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spreadup_breaker_open",
			Help: "Circuit breaker state (1=open, 0=closed or half-open)",
		},
		[]string{"exchange"},
	)

	// Cache metrics
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spreadup_cache_entries",
			Help: "Number of live entries in the price cache",
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spreadup_cache_hits_total",
			Help: "Total number of price cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spreadup_cache_misses_total",
			Help: "Total number of price cache misses",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spreadup_cache_evictions_total",
			Help: "Total number of entries removed by the TTL sweep",
		},
	)

	MirrorDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spreadup_mirror_dropped_total",
			Help: "Total number of updates dropped by the Redis mirror queue",
		},
	)

	MirrorErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spreadup_mirror_errors_total",
			Help: "Total number of Redis mirror write errors",
		},
	)

	// Scan metrics
	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spreadup_scan_duration_seconds",
			Help:    "Time to run one opportunity scan",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	ScanErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spreadup_scan_errors_total",
			Help: "Total number of scan loop errors",
		},
	)

	OpportunitiesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spreadup_opportunities_found_total",
			Help: "Total number of opportunities above threshold",
		},
	)

	LastScanOpportunities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spreadup_last_scan_opportunities",
			Help: "Number of opportunities found by the most recent scan",
		},
	)

	TopSpread = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spreadup_top_spread_percent",
			Help: "Spread of the best current opportunity",
		},
		[]string{"symbol", "spot_exchange", "futures_exchange"},
	)

	// Alert metrics
	AlertsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spreadup_alerts_sent_total",
			Help: "Total number of alerts handed to the notification sink",
		},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spreadup_alerts_suppressed_total",
			Help: "Total number of alerts suppressed by the cooldown",
		},
	)

	NotifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spreadup_notify_failures_total",
			Help: "Total number of failed subscriber deliveries",
		},
	)
)

// Timer is a helper for measuring operation duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram
func (t *Timer) ObserveDuration(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Observe records the elapsed time to an unlabeled histogram
func (t *Timer) Observe(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// RecordPriceUpdate records metrics for an accepted price update
func RecordPriceUpdate(exchange, market string) {
	PriceUpdates.WithLabelValues(exchange, market).Inc()
}

// RecordWSMessage records a received feed message
func RecordWSMessage(exchange, market string) {
	WSMessages.WithLabelValues(exchange, market).Inc()
}

// RecordParseError records a dropped feed message
func RecordParseError(exchange, market string) {
	ParseErrors.WithLabelValues(exchange, market).Inc()
}

// RecordFeedUp records whether a feed is streaming
func RecordFeedUp(exchange, market string, up bool) {
	status := 0.0
	if up {
		status = 1.0
	}
	FeedUp.WithLabelValues(exchange, market).Set(status)
}

// RecordReconnect records a feed reconnection attempt
func RecordReconnect(exchange, market string) {
	FeedReconnects.WithLabelValues(exchange, market).Inc()
}

// RecordConnectorError records a connector error
func RecordConnectorError(exchange, errorType string) {
	ConnectorErrors.WithLabelValues(exchange, errorType).Inc()
}

// RecordTopSpread records the best opportunity of a scan
func RecordTopSpread(symbol, spotExchange, futuresExchange string, spreadPercent float64) {
	TopSpread.WithLabelValues(symbol, spotExchange, futuresExchange).Set(spreadPercent)
}

// Server starts the Prometheus metrics HTTP server
type Server struct {
	addr   string
	server *http.Server
}

// NewServer creates a new metrics server
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the metrics server
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("Starting metrics server")
	return s.server.ListenAndServe()
}

// Stop stops the metrics server gracefully
func (s *Server) Stop() error {
	return s.server.Close()
}
