// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status values for load and handler metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPanic   = "panic"
	StatusTimeout = "timeout"
)

// PluginLoads counts load attempts by outcome.
var PluginLoads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plugbus_plugin_loads_total",
		Help: "Total number of plugin load attempts by status",
	},
	[]string{"status"},
)

// PluginsRegistered tracks how many descriptors are currently registered.
var PluginsRegistered = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "plugbus_plugins_registered",
		Help: "Number of plugins currently present in the registry",
	},
)

// Dispatches counts event occurrences routed to plugins.
var Dispatches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plugbus_dispatches_total",
		Help: "Total number of event dispatches by event name",
	},
	[]string{"event"},
)

// HandlerInvocations counts plugin handler runs by outcome.
var HandlerInvocations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plugbus_handler_invocations_total",
		Help: "Total number of plugin handler invocations",
	},
	[]string{"plugin", "event", "status"},
)

// HandlerDuration observes how long plugin handlers take.
var HandlerDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "plugbus_handler_duration_seconds",
		Help:    "Plugin handler execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"plugin", "event"},
)

// RegisterMetrics registers plugin package metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(PluginLoads)
	reg.MustRegister(PluginsRegistered)
	reg.MustRegister(Dispatches)
	reg.MustRegister(HandlerInvocations)
	reg.MustRegister(HandlerDuration)
}

func recordLoad(status string) {
	PluginLoads.WithLabelValues(status).Inc()
}

func recordHandler(plugin, event, status string, d time.Duration) {
	HandlerInvocations.WithLabelValues(plugin, event, status).Inc()
	HandlerDuration.WithLabelValues(plugin, event).Observe(d.Seconds())
}
