// Package metrics exposes Prometheus counters for the sync pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsProcessed counts completed job executions by type and outcome
	// (done, retried, failed).
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attachsync_jobs_processed_total",
		Help: "Sync jobs processed, by job type and outcome.",
	}, []string{"type", "outcome"})

	// WebhooksAccepted counts verified webhook events that enqueued work.
	WebhooksAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attachsync_webhooks_accepted_total",
		Help: "Webhook events accepted after signature verification.",
	})

	// WebhooksRejected counts webhook requests dropped before enqueueing,
	// by reason (signature, payload, replay).
	WebhooksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attachsync_webhooks_rejected_total",
		Help: "Webhook events rejected, by reason.",
	}, []string{"reason"})

	// DedupHits counts uploads resolved to an existing attachment record.
	DedupHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attachsync_dedup_hits_total",
		Help: "Uploads deduplicated against an existing record.",
	})
)

// Job outcomes.
const (
	OutcomeDone    = "done"
	OutcomeRetried = "retried"
	OutcomeFailed  = "failed"
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
