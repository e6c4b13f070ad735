// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intentbridge",
		Subsystem: "pipeline",
		Name:      "process_total",
		Help:      "Fresh queries processed, labeled by terminal state.",
	}, []string{"state"})

	resumeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intentbridge",
		Subsystem: "pipeline",
		Name:      "resume_total",
		Help:      "Resumed conversations, labeled by terminal state.",
	}, []string{"state"})

	turnLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "intentbridge",
		Subsystem: "pipeline",
		Name:      "turn_latency_seconds",
		Help:      "End-to-end latency of a pipeline turn.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)
