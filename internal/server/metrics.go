package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabricarea_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fabricarea_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Scan metrics
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabricarea_scans_total",
			Help: "Total number of scans by outcome",
		},
		[]string{"source", "status"}, // source: http, websocket
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fabricarea_scan_duration_seconds",
			Help:    "Scan duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	measuredArea = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fabricarea_measured_area_cm2",
			Help:    "Measured pattern area in square centimetres",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	contourFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fabricarea_contour_fallbacks_total",
			Help: "Scans whose outline came from the edge map",
		},
	)

	calibrationConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fabricarea_calibration_confidence",
			Help:    "Confidence of confirmed calibrations",
			Buckets: []float64{0, .25, .5, .75, .9, 1},
		},
		[]string{"method"},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fabricarea_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024, 25 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fabricarea_websocket_active_connections",
			Help: "Number of active WebSocket sessions",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabricarea_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
