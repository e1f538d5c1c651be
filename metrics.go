// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "quicvc"

type metrics struct {
	packetsReceived   *prometheus.CounterVec
	packetsSent       *prometheus.CounterVec
	packetsDropped    *prometheus.CounterVec
	handshakes        prometheus.Counter
	connectionsClosed *prometheus.CounterVec
	activeConnections prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_received_total",
			Help:      "Total number of packets accepted, by packet type",
		}, []string{"type"}),

		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_sent_total",
			Help:      "Total number of packets handed to the transport, by packet type",
		}, []string{"type"}),

		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_dropped_total",
			Help:      "Total number of inbound packets dropped, by reason",
		}, []string{"reason"}),

		handshakes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshakes_completed_total",
			Help:      "Total number of connections that reached ESTABLISHED",
		}),

		connectionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_closed_total",
			Help:      "Total number of closed connections, by reason",
		}, []string{"reason"}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Number of connections in the connection table",
		}),
	}
}
