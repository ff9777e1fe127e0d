// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts processed ARP packets by verdict and deciding stage
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpguard_packets_total",
			Help: "Total number of ARP packets processed",
		},
		[]string{"interface", "verdict", "reason"},
	)

	// RepliesTotal counts ARP messages transmitted
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpguard_transmitted_total",
			Help: "Total number of ARP messages transmitted",
		},
		[]string{"interface", "kind"},
	)

	// TransmitErrorsTotal counts failed transmissions
	TransmitErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpguard_transmit_errors_total",
			Help: "Total number of failed transmissions",
		},
		[]string{"interface"},
	)

	// CaptureDropsTotal counts frames lost before reaching the engine
	CaptureDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpguard_capture_drops_total",
			Help: "Total number of frames dropped before processing",
		},
		[]string{"interface", "stage"},
	)

	// ProcessLatencySeconds measures engine latency per packet
	ProcessLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arpguard_process_latency_seconds",
			Help:    "Latency of ARP packet processing in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
	)

	// GuardDetectionsTotal counts gateway guard findings
	GuardDetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpguard_guard_detections_total",
			Help: "Total number of gateway guard detections",
		},
		[]string{"interface", "kind"},
	)

	// AlertsTotal counts published alerts by result
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpguard_alerts_total",
			Help: "Total number of guard alerts by delivery result",
		},
		[]string{"result"},
	)

	// Bindings tracks the size of the binding cache
	Bindings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arpguard_bindings",
			Help: "Current number of bindings in the neighbor cache",
		},
	)

	// Attackers tracks the size of the attacker registry
	Attackers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arpguard_attackers",
			Help: "Current number of recorded gateway attackers",
		},
	)

	// ProxyQueueLength tracks requests waiting for a delayed proxy reply
	ProxyQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arpguard_proxy_queue_length",
			Help: "Current number of requests in the delayed proxy queue",
		},
	)

	// CommandsTotal counts control commands by method and channel
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpguard_commands_total",
			Help: "Total number of control commands handled",
		},
		[]string{"method", "channel", "result"},
	)

	// ConfigGeneration tracks the active runtime configuration generation
	ConfigGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arpguard_config_generation",
			Help: "Generation of the active runtime configuration",
		},
	)
)
