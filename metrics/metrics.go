// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the library's Prometheus instrumentation: frame
// and byte counters, heartbeat bookkeeping, publisher-confirm outcomes,
// and the connection build-info gauge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/goamqp/common"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "git_hash", "build_time"},
	)

	FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "frames_sent_total",
			Help:      "Frames written to the connection, by frame type",
		},
		[]string{"type"},
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "frames_received_total",
			Help:      "Frames read from the connection, by frame type",
		},
		[]string{"type"},
	)

	BytesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "bytes_sent_total",
			Help:      "Raw bytes written to the connection",
		},
	)

	BytesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "bytes_received_total",
			Help:      "Raw bytes read from the connection",
		},
	)

	HeartbeatsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeat frames emitted due to idle write time",
		},
	)

	HeartbeatsMissed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "heartbeats_missed_total",
			Help:      "Connections closed because no frame arrived within the heartbeat timeout",
		},
	)

	ConfirmsAcked = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "publisher_confirms_acked_total",
			Help:      "Publisher-confirmed deliveries acked by the broker",
		},
	)

	ConfirmsNacked = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "publisher_confirms_nacked_total",
			Help:      "Publisher-confirmed deliveries nacked by the broker",
		},
	)

	ChannelsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "channels_open",
			Help:      "Currently open channels on this connection",
		},
	)
)
