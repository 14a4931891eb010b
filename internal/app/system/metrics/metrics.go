// internal/app/system/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DonorMutations counts donor lifecycle operations by outcome.
	DonorMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donorhub_donor_mutations_total",
			Help: "Donor create/update/deactivate/reactivate/delete operations",
		},
		[]string{"operation", "status"},
	)

	// CacheLookups counts query cache hits and misses by key family.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donorhub_query_cache_lookups_total",
			Help: "Query cache lookups",
		},
		[]string{"family", "result"},
	)

	// CacheInvalidations counts prefix invalidations.
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "donorhub_query_cache_invalidations_total",
			Help: "Query cache prefix invalidations",
		},
	)

	// ProfileResolutions counts session profile resolutions by outcome.
	ProfileResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donorhub_profile_resolutions_total",
			Help: "Session profile resolutions",
		},
		[]string{"outcome"},
	)

	// ProfileResolutionAttempts records how many attempts a resolution took.
	ProfileResolutionAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "donorhub_profile_resolution_attempts",
			Help:    "Attempts needed to resolve a session profile",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
)

// Status values for DonorMutations.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Mutation records one donor operation.
func Mutation(op string, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	DonorMutations.WithLabelValues(op, status).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
