// Copyright (C) 2017 ScyllaDB

package repair

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	repairSegmentsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reaperd",
		Subsystem: "repair",
		Name:      "segments_total",
		Help:      "Total number of segments to repair.",
	}, []string{"cluster", "run"})

	repairSegmentsSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reaperd",
		Subsystem: "repair",
		Name:      "segments_success",
		Help:      "Number of repaired segments.",
	}, []string{"cluster", "run"})

	repairSegmentTimeoutsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reaperd",
		Subsystem: "repair",
		Name:      "segment_timeouts_total",
		Help:      "Number of segment repairs that timed out and were requeued.",
	}, []string{"cluster"})

	repairDurationSeconds = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "reaperd",
		Subsystem: "repair",
		Name:      "duration_seconds",
		Help:      "Duration of a single segment repair command.",
	}, []string{"cluster"})

	repairRunsRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reaperd",
		Subsystem: "repair",
		Name:      "runs_running",
		Help:      "Number of currently supervised repair runs.",
	}, []string{"cluster"})
)

func init() {
	prometheus.MustRegister(
		repairSegmentsTotal,
		repairSegmentsSuccess,
		repairSegmentTimeoutsTotal,
		repairDurationSeconds,
		repairRunsRunning,
	)
}
