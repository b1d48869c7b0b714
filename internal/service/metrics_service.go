package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	bookingOutcome  *prometheus.CounterVec
	ticketOutcome   *prometheus.CounterVec
	queueDepth      prometheus.Gauge
}

// NewMetricsService registers the core collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	bookingOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_admissions_total",
		Help: "Booking admission outcomes",
	}, []string{"outcome"})

	ticketOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_transitions_total",
		Help: "Ticket status transition outcomes",
	}, []string{"to"})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notification_queue_depth",
		Help: "Pending notification jobs",
	})

	registry.MustRegister(
		requestDuration,
		requestTotal,
		bookingOutcome,
		ticketOutcome,
		queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		bookingOutcome:  bookingOutcome,
		ticketOutcome:   ticketOutcome,
		queueDepth:      queueDepth,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	s.requestDuration.With(labels).Observe(duration.Seconds())
	s.requestTotal.With(labels).Inc()
}

// ObserveBookingAdmission records an admission outcome (admitted, conflict,
// rejected).
func (s *MetricsService) ObserveBookingAdmission(outcome string) {
	s.bookingOutcome.WithLabelValues(outcome).Inc()
}

// ObserveTicketTransition records a successful ticket transition.
func (s *MetricsService) ObserveTicketTransition(to string) {
	s.ticketOutcome.WithLabelValues(to).Inc()
}
