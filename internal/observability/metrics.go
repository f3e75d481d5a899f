package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the router.
// Naming follows <subsystem>_<metric>_<unit>, prefixed with "intercom_".
type Metrics struct {
	// Media worker
	ProducersActive *prometheus.GaugeVec
	ConsumersActive *prometheus.GaugeVec
	TransportsTotal *prometheus.CounterVec
	TransportFails  *prometheus.CounterVec
	RTPPacketsIn    *prometheus.CounterVec
	RTPPacketsOut   *prometheus.CounterVec

	// Active speaker
	SpeakingEventsTotal *prometheus.CounterVec
	ActiveSpeakers      *prometheus.GaugeVec

	// Channel / client registries
	ChannelsActive *prometheus.GaugeVec
	ClientsActive  *prometheus.GaugeVec
	PendingClients prometheus.Gauge

	// Signaling
	RequestsTotal   *prometheus.CounterVec
	RequestLatency  *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge

	// Admission
	AdmissionAttempts *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// Complexity: O(1)
func NewMetrics() *Metrics {
	return &Metrics{
		ProducersActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intercom_producers_active",
				Help: "Number of currently open producers per channel",
			},
			[]string{"channel_id"},
		),
		ConsumersActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intercom_consumers_active",
				Help: "Number of currently open consumers per channel",
			},
			[]string{"channel_id"},
		),
		TransportsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intercom_transports_total",
				Help: "Total transports created",
			},
			[]string{"direction"}, // send, receive
		),
		TransportFails: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intercom_transport_failures_total",
				Help: "Total transport DTLS/ICE failures",
			},
			[]string{"reason"},
		),
		RTPPacketsIn: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intercom_rtp_packets_in_total",
				Help: "Total RTP packets received from producers",
			},
			[]string{"channel_id"},
		),
		RTPPacketsOut: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intercom_rtp_packets_out_total",
				Help: "Total RTP packets forwarded to consumers",
			},
			[]string{"channel_id"},
		),
		SpeakingEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intercom_speaking_events_total",
				Help: "Total speaking/stopped-speaking events emitted",
			},
			[]string{"event"}, // speaking, stopped_speaking
		),
		ActiveSpeakers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intercom_active_speakers",
				Help: "Number of producers currently above the speaking threshold",
			},
			[]string{"channel_id"},
		),
		ChannelsActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intercom_channels_active",
				Help: "Number of channels currently registered",
			},
			[]string{},
		),
		ClientsActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intercom_clients_active",
				Help: "Number of clients by status",
			},
			[]string{"status"}, // pending, active, closed
		),
		PendingClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "intercom_pending_clients",
				Help: "Number of clients awaiting admin authorization",
			},
		),
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intercom_signaling_requests_total",
				Help: "Total signaling requests handled",
			},
			[]string{"event", "outcome"}, // outcome: ok, err
		),
		RequestLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intercom_signaling_request_latency_milliseconds",
				Help:    "Signaling request handling latency in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
			},
			[]string{"event"},
		),
		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intercom_signaling_request_errors_total",
				Help: "Total signaling request errors by kind",
			},
			[]string{"event", "kind"},
		),
		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "intercom_signaling_sessions_active",
				Help: "Number of currently connected signaling sessions",
			},
		),
		AdmissionAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intercom_admission_attempts_total",
				Help: "Total admission attempts by outcome",
			},
			[]string{"outcome"}, // accepted_pending, accepted_admin, rejected_secret
		),
	}
}
