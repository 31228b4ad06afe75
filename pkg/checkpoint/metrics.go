package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations tracks checkpoint operations by store, operation and result
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lizard_checkpoint_operations_total",
			Help: "Total number of checkpoint operations",
		},
		[]string{"store", "operation", "result"}, // result: "ok", "miss"
	)

	// Errors tracks checkpoint store errors
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lizard_checkpoint_errors_total",
			Help: "Total number of checkpoint store errors",
		},
		[]string{"store", "operation"}, // "get", "save", "delete"
	)
)
