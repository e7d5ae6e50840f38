// Package metrics holds the Prometheus instruments shared across the
// service.  All collectors register with the global registry, so importing
// this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PostsMirroredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_posts_mirrored_total",
			Help: "Cumulative number of posts copied or refreshed in the archive blog.",
		})

	MirrorsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_mirrors_deleted_total",
			Help: "Cumulative number of mirror copies removed from the archive blog.",
		})

	SyncErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_sync_errors_total",
			Help: "Cumulative number of failed mirror sync attempts.",
		})

	PopulateBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_populate_batches_total",
			Help: "Cumulative number of bulk-populate batches processed.",
		})

	QueryRedirectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_query_redirects_total",
			Help: "Cumulative number of read queries re-pointed at the archive blog.",
		})
)

func init() {
	prometheus.MustRegister(
		PostsMirroredTotal,
		MirrorsDeletedTotal,
		SyncErrorsTotal,
		PopulateBatchesTotal,
		QueryRedirectsTotal,
	)
}
