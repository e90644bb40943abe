package harvest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// listPages tracks listing views fetched (pages or load-more rounds).
	listPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_list_pages_total",
		Help: "The total number of listing pages or rounds fetched.",
	})
	// recordsPersisted tracks records appended to the sink.
	recordsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_records_persisted_total",
		Help: "The total number of article records appended to the sink.",
	})
	// fetchFailures tracks detail fetches that ended in a navigation error.
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_fetch_failures_total",
		Help: "The total number of failed detail page fetches.",
	})
	// markerSkips tracks detail pages missing the expected content marker.
	markerSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_marker_skips_total",
		Help: "The total number of detail pages skipped for a missing content marker.",
	})
	// duplicateSkips tracks cards dropped by seen-set or dedup store checks.
	duplicateSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_duplicate_skips_total",
		Help: "The total number of cards skipped as already dispatched or persisted.",
	})
)
