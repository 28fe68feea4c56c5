package monitoring

import (
	"time"

	"omnicast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Counters
	sessionsStartedTotal    prometheus.Counter
	sessionsStoppedTotal    prometheus.Counter
	enforcementDenialsTotal *prometheus.CounterVec
	reconnectsTotal         *prometheus.CounterVec
	bitrateChangesTotal     prometheus.Counter

	// Gauges
	destinationsLiveTotal prometheus.Gauge
	currentBitrate        prometheus.Gauge
	targetBitrate         prometheus.Gauge
	cloudHoursRemaining   *prometheus.GaugeVec

	// Per-destination metrics
	destinationStatus    *prometheus.GaugeVec
	destinationBytesSent *prometheus.GaugeVec
	destinationHealth    *prometheus.GaugeVec

	// Histograms
	connectDuration prometheus.Histogram
	networkRTT      prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsStartedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "omnicast_sessions_started_total",
			Help: "Total number of streaming sessions started",
		}),

		sessionsStoppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "omnicast_sessions_stopped_total",
			Help: "Total number of streaming sessions stopped",
		}),

		enforcementDenialsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "omnicast_enforcement_denials_total",
			Help: "Total number of stream requests denied by plan enforcement",
		}, []string{"reason"}),

		reconnectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "omnicast_destination_reconnects_total",
			Help: "Total number of destination reconnect attempts",
		}, []string{"platform"}),

		bitrateChangesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "omnicast_bitrate_changes_total",
			Help: "Total number of adaptive bitrate changes",
		}),

		destinationsLiveTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "omnicast_destinations_live_total",
			Help: "Number of destinations currently live",
		}),

		currentBitrate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "omnicast_encoder_bitrate_kbps",
			Help: "Current encoder bitrate in kbps",
		}),

		targetBitrate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "omnicast_target_bitrate_kbps",
			Help: "Target bitrate computed by the adaptation engine in kbps",
		}),

		cloudHoursRemaining: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "omnicast_cloud_hours_remaining",
			Help: "Remaining cloud streaming hours per user",
		}, []string{"user_id"}),

		destinationStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "omnicast_destination_status",
			Help: "Destination status (0=offline, 1=connecting, 2=live, 3=error)",
		}, []string{"destination_id", "platform"}),

		destinationBytesSent: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "omnicast_destination_bytes_sent",
			Help: "Bytes sent to each destination",
		}, []string{"destination_id", "platform"}),

		destinationHealth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "omnicast_destination_health",
			Help: "Destination health (0=healthy, 1=warning, 2=critical)",
		}, []string{"destination_id"}),

		connectDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "omnicast_destination_connect_duration_seconds",
			Help:    "Duration of destination connection attempts",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		networkRTT: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "omnicast_network_rtt_seconds",
			Help:    "Round-trip time to streaming destinations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (p *PrometheusCollector) RecordSessionStarted() {
	p.sessionsStartedTotal.Inc()
}

func (p *PrometheusCollector) RecordSessionStopped() {
	p.sessionsStoppedTotal.Inc()
}

func (p *PrometheusCollector) RecordEnforcementDenial(reason string) {
	p.enforcementDenialsTotal.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordReconnect(platform domain.Platform) {
	p.reconnectsTotal.WithLabelValues(string(platform)).Inc()
}

func (p *PrometheusCollector) RecordBitrateChange(currentKbps, targetKbps int) {
	p.bitrateChangesTotal.Inc()
	p.currentBitrate.Set(float64(currentKbps))
	p.targetBitrate.Set(float64(targetKbps))
}

func (p *PrometheusCollector) RecordConnectDuration(duration time.Duration) {
	p.connectDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordNetworkRTT(rtt time.Duration) {
	p.networkRTT.Observe(rtt.Seconds())
}

func (p *PrometheusCollector) UpdateCloudHoursRemaining(userID domain.UserID, hours float64) {
	p.cloudHoursRemaining.WithLabelValues(string(userID)).Set(hours)
}

func (p *PrometheusCollector) UpdateDestination(conn *domain.DestinationConnection) {
	id := string(conn.Destination.ID)
	platform := string(conn.Destination.Platform)

	p.destinationStatus.WithLabelValues(id, platform).Set(statusValue(conn.Status))
	p.destinationBytesSent.WithLabelValues(id, platform).Set(float64(conn.BytesSent))
}

func (p *PrometheusCollector) SetLiveCount(count int) {
	p.destinationsLiveTotal.Set(float64(count))
}

func (p *PrometheusCollector) UpdateDestinationHealth(id domain.DestinationID, health *domain.StreamHealth) {
	p.destinationHealth.WithLabelValues(string(id)).Set(severityValue(health))
}

// RemoveDestination drops every label series of a destination that left the
// routing set, so removed destinations do not linger on the dashboard.
func (p *PrometheusCollector) RemoveDestination(id domain.DestinationID) {
	match := prometheus.Labels{"destination_id": string(id)}
	p.destinationStatus.DeletePartialMatch(match)
	p.destinationBytesSent.DeletePartialMatch(match)
	p.destinationHealth.DeletePartialMatch(match)
}

func statusValue(status domain.DestinationStatus) float64 {
	switch status {
	case domain.StatusConnecting:
		return 1
	case domain.StatusLive:
		return 2
	case domain.StatusError:
		return 3
	default:
		return 0
	}
}

func severityValue(health *domain.StreamHealth) float64 {
	if health.IsHealthy && len(health.Warnings) == 0 {
		return 0
	}
	for _, w := range health.Warnings {
		if w.Severity == domain.SeverityCritical {
			return 2
		}
	}
	return 1
}
