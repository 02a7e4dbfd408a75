package record

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a referenced recording, entry, speaker, or
// session does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateID is returned by Create* when an ID is already taken.
var ErrDuplicateID = errors.New("record with that ID already exists")

// ErrDuplicateRegion is returned by [Store.CreateEntry] when the recording
// already has an entry for the same region and speaker.
var ErrDuplicateRegion = errors.New("entry already exists for that region and speaker")

// ErrJobMismatch is returned by [Store.ApplyDiarization] when the supplied
// job id does not match the recording's stored job id. It usually indicates
// a stale or duplicate callback rather than a bug.
var ErrJobMismatch = errors.New("diarization job id does not match recording")

// EntryFilter narrows [Store.ListEntries]. All non-zero fields are applied
// as AND conditions. Results are ordered by region start ascending.
type EntryFilter struct {
	// RecordingID restricts results to one recording.
	RecordingID string

	// Accuracy restricts results to entries with this status.
	Accuracy AccuracyStatus

	// SpeakerID restricts results to entries assigned to this speaker.
	SpeakerID string

	// ExtractedOnly restricts results to entries whose recording has
	// completed metadata extraction.
	ExtractedOnly bool
}

// SpeakerFilter narrows [Store.ListSpeakers].
type SpeakerFilter struct {
	// RecordingID restricts results to speakers scoped to one recording.
	RecordingID string

	// Provisional, when non-nil, restricts results by provisional flag.
	Provisional *bool
}

// Store is the shared persistence layer for all platform entities.
//
// Implementations: [MemStore] (in-memory, tests and single-node use) and
// postgres.Store (production).
type Store interface {
	// CreateRecording stores a new recording, generating an ID if empty.
	// Returns [ErrDuplicateID] if the ID is taken.
	CreateRecording(ctx context.Context, r VoiceRecording) (VoiceRecording, error)

	// GetRecording returns the recording with the given ID.
	// Returns [ErrNotFound] when it does not exist.
	GetRecording(ctx context.Context, id string) (VoiceRecording, error)

	// ListRecordings returns all recordings. Order is not guaranteed.
	ListRecordings(ctx context.Context) ([]VoiceRecording, error)

	// StartDiarizationJob records jobID on the recording, but only when no
	// job has been started yet — a second writer loses and gets
	// [ErrJobMismatch]. Returns [ErrNotFound] for unknown recordings.
	StartDiarizationJob(ctx context.Context, recordingID, jobID string) error

	// RecordDiarizationFailure stores the failure reason reported by the
	// diarization provider on the recording.
	RecordDiarizationFailure(ctx context.Context, recordingID, reason string) error

	// ApplyDiarization atomically creates one unconfirmed entry and, where
	// needed, one provisional speaker per segment not already present on
	// the recording, then marks the recording's metadata as extracted.
	//
	// The whole operation is conditional on jobID matching the recording's
	// stored job id ([ErrJobMismatch] otherwise). Duplicate suppression is
	// keyed by rounded region bounds plus speaker label, making the
	// operation idempotent under at-least-once webhook delivery. Returns
	// the number of entries created.
	ApplyDiarization(ctx context.Context, recordingID, jobID string, segments []DiarizedSegment) (int, error)

	// CreateEntry stores a new dictionary entry, generating an ID if empty.
	// Returns [ErrDuplicateID] when the ID is taken and [ErrDuplicateRegion]
	// when the recording already has an entry keyed by the same region and
	// speaker. Callers doing bulk imports treat the latter as "already
	// there" and move on.
	CreateEntry(ctx context.Context, e DictionaryEntry) (DictionaryEntry, error)

	// GetEntry returns the entry with the given ID.
	GetEntry(ctx context.Context, id string) (DictionaryEntry, error)

	// ListEntries returns entries matching filter, ordered by region start
	// ascending.
	ListEntries(ctx context.Context, filter EntryFilter) ([]DictionaryEntry, error)

	// UpdateEntry replaces an existing entry. Returns [ErrNotFound] when no
	// entry with that ID exists.
	UpdateEntry(ctx context.Context, e DictionaryEntry) error

	// ConfirmEntry marks the entry confirmed.
	ConfirmEntry(ctx context.Context, id string) error

	// CreateSpeaker stores a new speaker, generating an ID if empty.
	CreateSpeaker(ctx context.Context, s Speaker) (Speaker, error)

	// GetSpeaker returns the speaker with the given ID.
	GetSpeaker(ctx context.Context, id string) (Speaker, error)

	// ListSpeakers returns speakers matching filter.
	ListSpeakers(ctx context.Context, filter SpeakerFilter) ([]Speaker, error)

	// MergeSpeakers reassigns every entry of the source speaker to the
	// target speaker as a single all-or-nothing update and returns the
	// number of entries moved. The source speaker is left in place with
	// zero entries; deleting it is an admin concern. Returns [ErrNotFound]
	// when either speaker is unknown.
	MergeSpeakers(ctx context.Context, sourceID, targetID string) (int, error)

	// GetSession returns the session owned by userID.
	// Returns [ErrNotFound] when the user has no session yet.
	GetSession(ctx context.Context, userID string) (ConversationSession, error)

	// SaveSession creates or replaces the session for its UserID.
	SaveSession(ctx context.Context, s ConversationSession) error
}
