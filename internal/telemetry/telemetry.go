// Package telemetry provides Prometheus metrics and the OpenTelemetry tracer
// for the bot. A nil *Provider records nothing.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "siverbot"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Inbound pipeline
	ReportsReceived    *prometheus.CounterVec
	ReportsDropped     *prometheus.CounterVec
	ReportsRouted      *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram
	Duplicates         *prometheus.CounterVec

	// Approval queue
	QueuePending prometheus.Gauge

	// Zone poller
	ZoneTicks              *prometheus.CounterVec
	ZoneTransitions        *prometheus.CounterVec
	ZoneSuppressed         prometheus.Counter
	ZoneFetchDuration      prometheus.Histogram
	AnnouncementsPublished *prometheus.CounterVec

	// Outbound transport
	TelegramRequests *prometheus.CounterVec
}

// Provider wraps telemetry providers
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	gatherer prometheus.Gatherer
}

// NewProvider registers the metrics with reg. A nil reg uses a fresh
// registry with the Go and process collectors.
func NewProvider(reg *prometheus.Registry) *Provider {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  initMetrics(promauto.With(reg)),
		gatherer: reg,
	}
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// TracerOrNoop returns the tracer, or otel's global one for a nil provider.
func (p *Provider) TracerOrNoop() trace.Tracer {
	if p == nil {
		return otel.Tracer(serviceName)
	}
	return p.Tracer
}

func initMetrics(f promauto.Factory) *Metrics {
	m := &Metrics{}

	m.ReportsReceived = f.NewCounterVec(prometheus.CounterOpts{
		Name: "siverbot_reports_received_total",
		Help: "Inbound reports by transport",
	}, []string{"transport"})

	m.ReportsDropped = f.NewCounterVec(prometheus.CounterOpts{
		Name: "siverbot_reports_dropped_total",
		Help: "Inbound reports dropped before routing, by reason",
	}, []string{"reason"})

	m.ReportsRouted = f.NewCounterVec(prometheus.CounterOpts{
		Name: "siverbot_reports_routed_total",
		Help: "Routing outcomes",
	}, []string{"outcome"})

	m.ProcessingDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "siverbot_report_processing_duration_seconds",
		Help:    "Time from receipt to routing outcome",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	m.Duplicates = f.NewCounterVec(prometheus.CounterOpts{
		Name: "siverbot_dedup_duplicates_total",
		Help: "Reports suppressed as duplicates, by reason",
	}, []string{"reason"})

	m.QueuePending = f.NewGauge(prometheus.GaugeOpts{
		Name: "siverbot_queue_pending",
		Help: "Items waiting for operator review",
	})

	m.ZoneTicks = f.NewCounterVec(prometheus.CounterOpts{
		Name: "siverbot_zone_ticks_total",
		Help: "Zone poller ticks by result",
	}, []string{"result"})

	m.ZoneTransitions = f.NewCounterVec(prometheus.CounterOpts{
		Name: "siverbot_zone_transitions_total",
		Help: "Committed zone state changes",
	}, []string{"direction"})

	m.ZoneSuppressed = f.NewCounter(prometheus.CounterOpts{
		Name: "siverbot_zone_notifications_suppressed_total",
		Help: "Committed transitions not announced because of the cooldown",
	})

	m.ZoneFetchDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "siverbot_zone_fetch_duration_seconds",
		Help:    "Status feed fetch time",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	m.AnnouncementsPublished = f.NewCounterVec(prometheus.CounterOpts{
		Name: "siverbot_zone_announcements_total",
		Help: "Batched zone announcements by kind and result",
	}, []string{"kind", "result"})

	m.TelegramRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "siverbot_telegram_requests_total",
		Help: "Bot API calls by method and result",
	}, []string{"method", "result"})

	return m
}

// RecordReceived counts an inbound report.
func (p *Provider) RecordReceived(transport string) {
	if p == nil {
		return
	}
	p.Metrics.ReportsReceived.WithLabelValues(transport).Inc()
}

// RecordDropped counts a report dropped before routing.
func (p *Provider) RecordDropped(reason string) {
	if p == nil {
		return
	}
	p.Metrics.ReportsDropped.WithLabelValues(reason).Inc()
}

// RecordRouted counts a routing outcome and its end-to-end duration.
func (p *Provider) RecordRouted(outcome string, duration time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.ReportsRouted.WithLabelValues(outcome).Inc()
	p.Metrics.ProcessingDuration.Observe(duration.Seconds())
}

// RecordDuplicate counts a dedup suppression.
func (p *Provider) RecordDuplicate(reason string) {
	if p == nil {
		return
	}
	p.Metrics.Duplicates.WithLabelValues(reason).Inc()
}

// SetQueuePending sets the pending queue gauge.
func (p *Provider) SetQueuePending(n int) {
	if p == nil {
		return
	}
	p.Metrics.QueuePending.Set(float64(n))
}

// RecordZoneTick counts a poller tick.
func (p *Provider) RecordZoneTick(result string, fetch time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.ZoneTicks.WithLabelValues(result).Inc()
	if fetch > 0 {
		p.Metrics.ZoneFetchDuration.Observe(fetch.Seconds())
	}
}

// RecordZoneTransition counts a committed transition, announced or not.
func (p *Provider) RecordZoneTransition(direction string, announced bool) {
	if p == nil {
		return
	}
	p.Metrics.ZoneTransitions.WithLabelValues(direction).Inc()
	if !announced {
		p.Metrics.ZoneSuppressed.Inc()
	}
}

// RecordAnnouncement counts a batched zone announcement.
func (p *Provider) RecordAnnouncement(kind string, err error) {
	if p == nil {
		return
	}
	p.Metrics.AnnouncementsPublished.WithLabelValues(kind, result(err)).Inc()
}

// RecordTelegramRequest counts a Bot API call.
func (p *Provider) RecordTelegramRequest(method string, err error) {
	if p == nil {
		return
	}
	p.Metrics.TelegramRequests.WithLabelValues(method, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
