// Copyright (C) 2017 ScyllaDB

package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	schedulerSchedules = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reaperd",
		Subsystem: "scheduler",
		Name:      "schedules",
		Help:      "Number of schedules by state.",
	}, []string{"state"})

	// schedulerNextActivation keeps the last observed pending activation,
	// it is updated on ticks that see one and kept otherwise.
	schedulerNextActivation = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reaperd",
		Subsystem: "scheduler",
		Name:      "next_activation_timestamp_seconds",
		Help:      "Unix time of the earliest pending schedule activation.",
	})
)

func init() {
	prometheus.MustRegister(
		schedulerSchedules,
		schedulerNextActivation,
	)
}
