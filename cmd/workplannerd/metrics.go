// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"time"

	"github.com/diffeo/go-workplanner/workplan"
	"github.com/prometheus/client_golang/prometheus"
)

var workplanSummary = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "diffeo",
		Subsystem: "workplanner",
		Name:      "workplan_summary",
		Help:      "Number of workplans per schedule and status",
	},
	[]string{
		"name",
		"status",
	},
)

func init() {
	prometheus.MustRegister(workplanSummary)
}

// observe periodically exports per-(name, status) workplan counts.
// Schedules that disappear between passes drop out of the gauge
// rather than sticking at their last value.
func observe(store workplan.Store) {
	for range time.Tick(15 * time.Second) {
		summary, err := store.Summarize()
		if err != nil {
			continue
		}
		workplanSummary.Reset()
		for _, record := range summary {
			workplanSummary.With(prometheus.Labels{
				"name":   record.Name,
				"status": record.Status.String(),
			}).Set(float64(record.Count))
		}
	}
}
