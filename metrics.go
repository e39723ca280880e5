package nitree

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nitree",
		Name:      "operation_duration_seconds",
		Help:      "Time to run a tree operation, including lock waits",
		Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
	}, []string{"op"})

	operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nitree",
		Name:      "operation_errors_total",
		Help:      "Failed tree operations by kind of failure",
	}, []string{"op", "kind"})

	moveRewriteSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nitree",
		Name:      "move_rewritten_nodes",
		Help:      "Descendants rewritten by a single move",
		Buckets:   []float64{0, 1, 10, 100, 1000, 10000, 100000},
	})

	rebuildFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nitree",
		Name:      "rebuild_node_failures_total",
		Help:      "Nodes a rebuild could not place",
	})

	maxDenominator = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nitree",
		Name:      "max_allocated_denominator",
		Help:      "Largest left denominator allocated by this process",
	})
)

var maxDen atomic.Int64

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrCycle):
		return "cycle"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrLimitExceeded):
		return "limit"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrHasChildren), errors.Is(err, ErrScopeOccupied), errors.Is(err, ErrScopeMismatch):
		return "rejected"
	}
	return "other"
}

func observeDenominator(f Fraction) {
	for {
		cur := maxDen.Load()
		if f.Den <= cur {
			return
		}
		if maxDen.CompareAndSwap(cur, f.Den) {
			maxDenominator.Set(float64(f.Den))
			return
		}
	}
}

// observe records the duration and outcome of an operation started at begin.
// It is deferred with a pointer to the operation's named error result.
func observe(op string, begin time.Time, err *error) {
	operationDuration.WithLabelValues(op).Observe(time.Since(begin).Seconds())
	if *err != nil {
		operationErrors.WithLabelValues(op, errorKind(*err)).Inc()
	}
}
