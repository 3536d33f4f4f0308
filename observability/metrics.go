// Package observability registers the Prometheus metrics exposed by the
// termsync server.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesCreated counts entries successfully created in Ghostwriter.
	EntriesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termsync_entries_created_total",
		Help: "Entries created in Ghostwriter",
	})

	// EntriesUpdated counts successful remote updates.
	EntriesUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termsync_entries_updated_total",
		Help: "Entries updated in Ghostwriter",
	})

	// LocalSaves counts entries written to the local archive, including the
	// pending copies kept for restart safety.
	LocalSaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termsync_local_saves_total",
		Help: "Entries written to the local archive",
	})

	// DeliveryFailures counts remote delivery attempts that fell back to
	// local storage.
	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_delivery_failures_total",
		Help: "Remote delivery attempts that failed",
	}, []string{"reason"}) // timeout, not_found, remote_error

	// ArchiveFailures counts local archive writes that failed. This is the
	// last line of defense: a failure here means the entry is lost.
	ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termsync_archive_failures_total",
		Help: "Local archive writes that failed (entry lost)",
	})

	// CommandsFiltered counts commands that matched no trigger keyword.
	CommandsFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termsync_commands_filtered_total",
		Help: "Commands that matched no trigger keyword",
	})

	// CommandsVetoed counts commands dropped by an explicit nolog veto.
	CommandsVetoed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termsync_commands_vetoed_total",
		Help: "Commands vetoed by the plugin chain",
	})

	// DeliveryDuration tracks end-to-end delivery latency, remote attempt
	// plus local fallback.
	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "termsync_delivery_duration_seconds",
		Help:    "Latency of one delivery, including local fallback",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
	})

	// PendingEntries tracks entries awaiting their completion event.
	PendingEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "termsync_pending_entries",
		Help: "Entries awaiting their completion event",
	})

	// RateLimited counts requests rejected by storm protection.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termsync_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	// FeedClients tracks connected websocket activity-feed clients.
	FeedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "termsync_feed_clients",
		Help: "Connected activity feed clients",
	})
)
