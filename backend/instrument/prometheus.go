// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package instrument holds the relay's prometheus metrics.
package instrument

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "efrelay"

var (
	onlineIdentities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_identities",
			Help:      "Number of identities with a bound connection",
		},
	)
	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of open websocket connections",
		},
	)
	chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome",
		},
		[]string{"outcome"},
	)
	messagesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages appended to room logs",
		},
		[]string{"encrypted"},
	)
	keysRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_relayed_total",
			Help:      "Key exchange payloads by result",
		},
		[]string{"result"},
	)
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Outbound events dropped because the connection queue was full or closed",
		},
		[]string{"type"},
	)
	gateRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Requests rejected by the request gate",
		},
	)
)

func init() {
	prometheus.MustRegister(onlineIdentities)
	prometheus.MustRegister(connections)
	prometheus.MustRegister(chatRequests)
	prometheus.MustRegister(messagesAppended)
	prometheus.MustRegister(keysRelayed)
	prometheus.MustRegister(eventsDropped)
	prometheus.MustRegister(gateRejections)
}

// Handler serves the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IdentityOnline()  { onlineIdentities.Inc() }
func IdentityOffline() { onlineIdentities.Dec() }

func ConnectionOpened() { connections.Inc() }
func ConnectionClosed() { connections.Dec() }

// ChatRequest counts a request outcome: created, accepted, declined, expired
// or rejected.
func ChatRequest(outcome string) {
	chatRequests.WithLabelValues(outcome).Inc()
}

func MessageAppended(encrypted bool) {
	label := "false"
	if encrypted {
		label = "true"
	}
	messagesAppended.WithLabelValues(label).Inc()
}

// KeyRelayed counts a key exchange as delivered or dropped.
func KeyRelayed(result string) {
	keysRelayed.WithLabelValues(result).Inc()
}

func EventDropped(eventType string) {
	eventsDropped.WithLabelValues(eventType).Inc()
}

func GateRejected() {
	gateRejections.Inc()
}
