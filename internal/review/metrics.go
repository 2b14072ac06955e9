package review

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "p4review",
	Subsystem: "review",
	Name:      "transitions_total",
	Help:      "Review state transitions applied, by source and target.",
}, []string{"from", "to"})
