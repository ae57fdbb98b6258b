// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persistence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "anchorsave"
	saveSubsystem    = "save"
)

// metrics holds the manager's Prometheus collectors.
type metrics struct {
	commitsTotal    *prometheus.CounterVec
	commitDuration  prometheus.Histogram
	commitBytes     prometheus.Gauge
	loadsTotal      *prometheus.CounterVec
	loadFailures    *prometheus.CounterVec
	dirtyMarksTotal prometheus.Counter
	pendingWrite    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &metrics{
		commitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: saveSubsystem,
				Name:      "commits_total",
				Help:      "Save commits by trigger and status",
			},
			[]string{"trigger", "status"},
		),
		commitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: saveSubsystem,
				Name:      "commit_duration_seconds",
				Help:      "Time to serialize, encrypt and atomically write the save",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		commitBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: saveSubsystem,
				Name:      "commit_bytes",
				Help:      "Size of the most recently committed blob",
			},
		),
		loadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: saveSubsystem,
				Name:      "loads_total",
				Help:      "Loads by the source that produced the live tree",
			},
			[]string{"source"},
		),
		loadFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: saveSubsystem,
				Name:      "load_failures_total",
				Help:      "Unusable load candidates by slot and reason",
			},
			[]string{"slot", "reason"},
		),
		dirtyMarksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: saveSubsystem,
				Name:      "dirty_marks_total",
				Help:      "Mutations that restarted the debounce timer",
			},
		),
		pendingWrite: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: saveSubsystem,
				Name:      "pending_write",
				Help:      "1 while a debounced write is pending",
			},
		),
	}
}
