// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	connectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bouncer_client_connections_total",
			Help: "Total number of downstream connections accepted",
		},
		[]string{"listener"},
	)

	connectionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bouncer_client_connections_current",
			Help: "Current number of downstream connections",
		},
		[]string{"listener"},
	)

	broadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bouncer_broadcast_failures_total",
			Help: "Downstream connections dropped because a broadcast to them failed",
		},
	)
)

// Message metrics
var (
	messagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bouncer_messages_routed_total",
			Help: "Canonical messages routed by the bouncer",
		},
		[]string{"direction", "type"},
	)

	protocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bouncer_protocol_errors_total",
			Help: "Malformed or unexpected lines that were dropped",
		},
		[]string{"side"},
	)

	unrepresentable = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bouncer_messages_unrepresentable_total",
			Help: "Canonical messages dropped because they could not be serialized",
		},
		[]string{"direction"},
	)
)

const (
	directionDownstream = "downstream"
	directionUpstream   = "upstream"

	sideOrigin = "origin"
	sideClient = "client"
)
