// Package webhooks ingests signed change notifications from the work-item
// tracker and turns them into queued sync jobs.
package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/logging"
	"github.com/mpetrovs/attachsync/internal/server/metrics"
	"github.com/mpetrovs/attachsync/internal/server/models"
	"github.com/mpetrovs/attachsync/internal/server/repositories/events"
	"github.com/mpetrovs/attachsync/internal/server/repositories/jobs"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "x-webhook-signature"

// Event types the tracker sends. Attachment-level changes pull the affected
// work item; restore-style events trigger a full reconciliation.
const (
	EventAttachmentAdded  = "workitem.attachment.added"
	EventWorkItemUpdated  = "workitem.updated"
	EventWorkItemRestored = "workitem.restored"
)

// Payload is the inbound webhook body.
type Payload struct {
	// ID is the tracker-side event id, used as the replay guard key.
	ID        string `json:"id"`
	EventType string `json:"eventType"`
	Resource  struct {
		// ID is the affected work item.
		ID int64 `json:"id"`
	} `json:"resource"`
}

// Result reports what an accepted event produced.
type Result struct {
	WorkItemID int64
	JobType    string
	// Replay is true when the event id was seen before; nothing was
	// enqueued and the previous outcome stands.
	Replay bool
}

// Ingestor verifies, deduplicates and translates webhook events.
type Ingestor struct {
	secret []byte
	jobs   jobs.Repository
	events events.Repository
	logger logging.Logger
}

func NewIngestor(secret string, jobRepo jobs.Repository, eventRepo events.Repository, logger logging.Logger) *Ingestor {
	return &Ingestor{
		secret: []byte(secret),
		jobs:   jobRepo,
		events: eventRepo,
		logger: logger.With("module", "webhooks"),
	}
}

// Verify checks the signature over the raw body in constant time. The
// signature is hex(HMAC-SHA256(secret, body)).
func (i *Ingestor) Verify(body []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing %s header", common.ErrorUnauthorized, SignatureHeader)
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", common.ErrorUnauthorized)
	}

	mac := hmac.New(sha256.New, i.secret)
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return fmt.Errorf("%w: signature mismatch", common.ErrorUnauthorized)
	}
	return nil
}

// Ingest verifies the signature, validates the payload and enqueues the
// matching job. A replayed event id is an idempotent no-op.
func (i *Ingestor) Ingest(ctx context.Context, body []byte, signature string) (Result, error) {
	if err := i.Verify(body, signature); err != nil {
		metrics.WebhooksRejected.WithLabelValues("signature").Inc()
		i.logger.Warn(ctx, "webhook rejected", "error", err)
		return Result{}, err
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		metrics.WebhooksRejected.WithLabelValues("payload").Inc()
		return Result{}, fmt.Errorf("%w: malformed body: %v", common.ErrorValidation, err)
	}

	jobType, err := jobTypeFor(p.EventType)
	if err != nil {
		metrics.WebhooksRejected.WithLabelValues("payload").Inc()
		return Result{}, err
	}
	if p.Resource.ID <= 0 {
		metrics.WebhooksRejected.WithLabelValues("payload").Inc()
		return Result{}, fmt.Errorf("%w: missing resource.id", common.ErrorValidation)
	}
	if p.ID == "" {
		metrics.WebhooksRejected.WithLabelValues("payload").Inc()
		return Result{}, fmt.Errorf("%w: missing event id", common.ErrorValidation)
	}

	// The audit entry's unique external event id is the replay guard. It is
	// checked before the job and recorded only after a successful enqueue:
	// a failed enqueue leaves no guard row, so the tracker's redelivery of
	// the same event id is processed fresh instead of dropped as a replay.
	seen, err := i.events.SeenExternal(ctx, p.ID)
	if err != nil {
		return Result{}, err
	}
	if seen {
		metrics.WebhooksRejected.WithLabelValues("replay").Inc()
		i.logger.Info(ctx, "webhook replay ignored", "event_id", p.ID, "work_item_id", p.Resource.ID)
		return Result{WorkItemID: p.Resource.ID, JobType: jobType, Replay: true}, nil
	}

	job := &models.SyncJob{
		ID:         uuid.NewString(),
		Type:       jobType,
		WorkItemID: p.Resource.ID,
		Status:     models.JobQueued,
	}
	if err := i.jobs.Enqueue(ctx, job); err != nil {
		return Result{}, err
	}

	eventID := p.ID
	if _, err := i.events.AppendExternal(ctx, &models.SyncEvent{
		WorkItemID:      p.Resource.ID,
		Severity:        models.SeverityInfo,
		Message:         fmt.Sprintf("webhook %s received, %s queued", p.EventType, jobType),
		ExternalEventID: &eventID,
	}); err != nil {
		// The job is already queued. Surfacing the error makes the tracker
		// retry, which can at worst enqueue a second idempotent job.
		return Result{}, err
	}

	metrics.WebhooksAccepted.Inc()
	i.logger.Info(ctx, "webhook accepted",
		"event_id", p.ID, "event_type", p.EventType, "work_item_id", p.Resource.ID, "job_type", jobType)
	return Result{WorkItemID: p.Resource.ID, JobType: jobType}, nil
}

func jobTypeFor(eventType string) (string, error) {
	switch eventType {
	case EventAttachmentAdded, EventWorkItemUpdated:
		return models.JobPull, nil
	case EventWorkItemRestored:
		return models.JobFullResync, nil
	case "":
		return "", fmt.Errorf("%w: missing eventType", common.ErrorValidation)
	default:
		return "", fmt.Errorf("%w: unsupported eventType %q", common.ErrorValidation, eventType)
	}
}
