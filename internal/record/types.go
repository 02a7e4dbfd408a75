// Package record defines the shared entities of the voice-review platform —
// recordings, dictionary entries, speakers, and conversation sessions — and
// the [Store] interface every component mutates them through.
//
// All store operations are expressed as atomic updates scoped to their
// precondition (job id must match, only entries of this speaker, ...) so
// concurrent webhook deliveries and user actions cannot corrupt state.
// All store implementations are safe for concurrent use.
package record

import (
	"fmt"
	"math"
	"time"
)

// VoiceRecording is one unit of source audio or video, produced by an import
// pipeline outside this core.
type VoiceRecording struct {
	// ID is a unique identifier. Auto-generated if empty on create.
	ID string `json:"id"`

	// Title is the recording's display title.
	Title string `json:"title"`

	// OwnerID is the user who owns the recording.
	OwnerID string `json:"owner_id"`

	// MediaURL references the raw media attached by the import pipeline.
	MediaURL string `json:"media_url"`

	// Metadata holds free-form key-value data extracted from the source.
	Metadata map[string]string `json:"metadata,omitempty"`

	// MetadataExtractedAt is nil until metadata extraction completes.
	// Recordings only enter the review queue once it is set.
	MetadataExtractedAt *time.Time `json:"metadata_extracted_at,omitempty"`

	// DiarizationJobID is empty until a diarization job is started. Webhook
	// callbacks are matched against it; mismatches are rejected.
	DiarizationJobID string `json:"diarization_job_id,omitempty"`

	// DiarizationError records the reason reported by a failed diarization
	// job, for operators.
	DiarizationError string `json:"diarization_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AccuracyStatus is the confirmation state of a transcription segment.
type AccuracyStatus string

const (
	AccuracyUnconfirmed AccuracyStatus = "unconfirmed"
	AccuracyConfirmed   AccuracyStatus = "confirmed"
)

// IsValid reports whether s is a recognised accuracy status.
func (s AccuracyStatus) IsValid() bool {
	return s == AccuracyUnconfirmed || s == AccuracyConfirmed
}

// DictionaryEntry is one time-bounded transcription segment within a
// recording. Entries are created by manual entry, bulk transcription import,
// or diarization; they are never silently deleted.
type DictionaryEntry struct {
	// ID is a unique identifier. Auto-generated if empty on create.
	ID string `json:"id"`

	// RecordingID is the owning recording.
	RecordingID string `json:"recording_id"`

	// RegionID identifies the time span within the recording. For diarized
	// entries it is derived from the rounded region bounds via [RegionKey].
	RegionID string `json:"region_id"`

	// Start and End delimit the region in seconds. Start < End always.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Transcription is the transcribed Irish text.
	Transcription string `json:"transcription"`

	// Translation is the English translation, if any.
	Translation string `json:"translation,omitempty"`

	// Accuracy is the entry's confirmation state.
	Accuracy AccuracyStatus `json:"accuracy"`

	// SpeakerID is empty until diarization or manual assignment.
	SpeakerID string `json:"speaker_id,omitempty"`

	// Tags are free-form labels.
	Tags []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Speaker is an identity attached to zero or more dictionary entries.
//
// A provisional speaker is a placeholder auto-created during diarization and
// is uniquely tied to one recording: all of its entries belong to that
// recording. A confirmed speaker is a durable identity that may appear
// across recordings.
type Speaker struct {
	// ID is a unique identifier. Auto-generated if empty on create.
	ID string `json:"id"`

	// Name is the display name, or the diarization label for provisional
	// speakers (e.g. "SPEAKER_00").
	Name string `json:"name"`

	// Provisional marks auto-created diarization placeholders.
	Provisional bool `json:"provisional"`

	// RecordingID scopes a provisional speaker to its recording. Empty for
	// confirmed speakers.
	RecordingID string `json:"recording_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SessionState is the closed set of conversation session states.
type SessionState string

const (
	StateIdle              SessionState = "idle"
	StateRecordingSelected SessionState = "recording_selected"
	StateReviewingEntry    SessionState = "reviewing_entry"
	StateConfirming        SessionState = "confirming"
)

// IsValid reports whether s is a recognised session state.
func (s SessionState) IsValid() bool {
	switch s {
	case StateIdle, StateRecordingSelected, StateReviewingEntry, StateConfirming:
		return true
	}
	return false
}

// TurnRole discriminates conversation history turns.
type TurnRole string

const (
	RoleUser   TurnRole = "user"
	RoleEngine TurnRole = "engine"
)

// Turn is one entry in a session's append-only conversation history.
type Turn struct {
	Role TurnRole  `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Context map keys used by the conversation engine. The key set is closed;
// the engine never invents keys outside this list.
const (
	CtxLastAudioPath       = "last_audio_path"
	CtxPendingConfirmEntry = "pending_confirm_entry"
	CtxPendingSpeaker      = "pending_speaker"
	CtxLastAction          = "last_action"
)

// ConversationSession is one user's active voice-review workflow. There is
// at most one per user; it is created lazily and reset, never deleted.
//
// Invariant: when State is [StateReviewingEntry], EntryID is non-empty and
// the entry belongs to RecordingID.
type ConversationSession struct {
	// UserID owns the session.
	UserID string `json:"user_id"`

	// RecordingID is the recording under review, if any.
	RecordingID string `json:"recording_id,omitempty"`

	// EntryID is the entry currently under review, if any.
	EntryID string `json:"entry_id,omitempty"`

	// State is the current workflow state.
	State SessionState `json:"state"`

	// History is the append-only conversation log. It is only truncated on
	// an explicit reset.
	History []Turn `json:"history"`

	// Context is the engine's explicit scratch space between calls; see the
	// Ctx* key constants. Sessions must be resumable from this persisted
	// state alone after a process restart.
	Context map[string]string `json:"context,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DiarizedSegment is one speaker-attributed time span reported by the
// diarization provider. It is transient — owned by the provider, consumed by
// the reconciler, never persisted as-is.
type DiarizedSegment struct {
	// Label is the provider's speaker label (e.g. "SPEAKER_01").
	Label string `json:"speaker"`

	// Start and End are the region bounds in seconds.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Text is the provider's transcript for the span, if any.
	Text string `json:"text,omitempty"`
}

// Valid reports whether the segment's region bounds are usable: a
// non-negative start strictly before its end.
func (s DiarizedSegment) Valid() bool {
	return s.Start >= 0 && s.Start < s.End
}

// RegionKey derives the deterministic region identifier for a diarized span.
// Bounds are rounded to the millisecond so redelivered callbacks with float
// jitter below 1 ms map to the same region. This key, together with the
// speaker label, is the reconciler's duplicate-suppression key.
func RegionKey(start, end float64) string {
	return fmt.Sprintf("r%.3f-%.3f", round3(start), round3(end))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
