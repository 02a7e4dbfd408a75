// Package diarize integrates the external speaker-diarization service:
// starting jobs, reconciling their webhook callbacks into recording state,
// and suggesting which confirmed identity a provisional speaker belongs to.
package diarize

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/teangalab/beal/internal/observe"
	"github.com/teangalab/beal/internal/record"
)

// Webhook status values reported by the diarization provider.
const (
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// WebhookPayload is the provider's callback body. It is transient — owned by
// the provider, consumed here, never persisted.
type WebhookPayload struct {
	JobID    string                   `json:"job_id"`
	Status   string                   `json:"status"`
	Progress int                      `json:"progress,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Segments []record.DiarizedSegment `json:"segments,omitempty"`
}

// Reconciler consumes diarization webhook callbacks and mutates recording
// state through the store's conditional updates.
//
// It never returns an error to its caller: every outcome is a success
// boolean, with reasons logged for operators. The HTTP layer maps false to
// an unprocessable-entity response.
type Reconciler struct {
	store   record.Store
	metrics *observe.Metrics
	log     *slog.Logger
}

// NewReconciler creates a Reconciler. A nil metrics uses the package-level
// default; a nil logger uses slog's default.
func NewReconciler(store record.Store, m *observe.Metrics, log *slog.Logger) *Reconciler {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, metrics: m, log: log}
}

// HandleWebhook ingests one callback for recordingID. Safe under
// at-least-once delivery: redelivered succeeded callbacks create no
// duplicate entries.
func (r *Reconciler) HandleWebhook(ctx context.Context, recordingID string, body []byte) bool {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		r.log.Warn("diarization webhook rejected: malformed body",
			"recording", recordingID, "err", err)
		return false
	}
	if payload.JobID == "" || payload.Status == "" {
		r.log.Warn("diarization webhook rejected: missing job_id or status",
			"recording", recordingID)
		return false
	}

	rec, err := r.store.GetRecording(ctx, recordingID)
	if err != nil {
		r.log.Warn("diarization webhook rejected: unknown recording",
			"recording", recordingID, "job", payload.JobID, "err", err)
		return false
	}
	// Stale or duplicate callbacks for a superseded job are expected; reject
	// quietly rather than treating them as server errors.
	if rec.DiarizationJobID == "" || rec.DiarizationJobID != payload.JobID {
		r.log.Warn("diarization webhook rejected: job id mismatch",
			"recording", recordingID, "got", payload.JobID, "want", rec.DiarizationJobID)
		return false
	}

	switch payload.Status {
	case StatusProcessing:
		r.log.Info("diarization in progress",
			"recording", recordingID, "job", payload.JobID, "progress", payload.Progress)
		return true

	case StatusSucceeded:
		// Providers occasionally emit inverted or negative regions. Dropping
		// them here keeps one bad tuple from sinking the rest of the batch.
		valid := make([]record.DiarizedSegment, 0, len(payload.Segments))
		for _, seg := range payload.Segments {
			if !seg.Valid() {
				r.log.Warn("diarization webhook: dropping malformed segment",
					"recording", recordingID, "job", payload.JobID,
					"start", seg.Start, "end", seg.End)
				continue
			}
			valid = append(valid, seg)
		}

		created, err := r.store.ApplyDiarization(ctx, recordingID, payload.JobID, valid)
		if err != nil {
			if errors.Is(err, record.ErrJobMismatch) {
				r.log.Warn("diarization webhook rejected: job superseded mid-flight",
					"recording", recordingID, "job", payload.JobID)
			} else {
				r.log.Error("diarization apply failed",
					"recording", recordingID, "job", payload.JobID, "err", err)
			}
			return false
		}
		r.metrics.RecordEntriesCreated(ctx, created)
		r.log.Info("diarization applied",
			"recording", recordingID, "job", payload.JobID,
			"segments", len(valid), "created", created)
		return true

	case StatusFailed:
		if err := r.store.RecordDiarizationFailure(ctx, recordingID, payload.Error); err != nil {
			r.log.Error("failed to record diarization failure",
				"recording", recordingID, "err", err)
		}
		r.log.Warn("diarization job failed",
			"recording", recordingID, "job", payload.JobID, "reason", payload.Error)
		return false

	default:
		r.log.Warn("diarization webhook rejected: unknown status",
			"recording", recordingID, "status", payload.Status)
		return false
	}
}
