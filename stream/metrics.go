// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the stream counters.
type Metrics struct {
	Packets           *prometheus.CounterVec
	DecodeErrors      prometheus.Counter
	IntegrityFailures prometheus.Counter
	Epochs            prometheus.Counter
	Connections       prometheus.Gauge
}

// NewMetrics creates unregistered stream metrics.
func NewMetrics() *Metrics {
	const (
		namespace = "trc"
		subsystem = "stream"
	)

	return &Metrics{
		Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_total",
			Help:      "Number of packets received, by packet type",
		}, []string{"type"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decode_errors_total",
			Help:      "Number of packets that failed to decode",
		}),
		IntegrityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "integrity_failures_total",
			Help:      "Number of sample packets whose marker channels strayed from the reference level",
		}),
		Epochs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "epochs_total",
			Help:      "Number of epochs emitted",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of open connections",
		}),
	}
}

// PrometheusCollectors returns every metric for registration.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Packets,
		m.DecodeErrors,
		m.IntegrityFailures,
		m.Epochs,
		m.Connections,
	}
}
