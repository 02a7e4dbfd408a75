package record

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. It is
// suitable for tests and single-node deployments. All mutating operations
// run under one lock, which gives them the same atomicity the Postgres
// implementation gets from scoped UPDATEs.
type MemStore struct {
	mu         sync.RWMutex
	recordings map[string]VoiceRecording
	entries    map[string]DictionaryEntry
	speakers   map[string]Speaker
	sessions   map[string]ConversationSession
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		recordings: make(map[string]VoiceRecording),
		entries:    make(map[string]DictionaryEntry),
		speakers:   make(map[string]Speaker),
		sessions:   make(map[string]ConversationSession),
	}
}

// Ping always succeeds; the in-memory store has no dependency to probe.
func (s *MemStore) Ping(ctx context.Context) error {
	return nil
}

// CreateRecording implements [Store.CreateRecording].
func (s *MemStore) CreateRecording(ctx context.Context, r VoiceRecording) (VoiceRecording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := s.recordings[r.ID]; exists {
		return VoiceRecording{}, ErrDuplicateID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.recordings[r.ID] = r
	return r, nil
}

// GetRecording implements [Store.GetRecording].
func (s *MemStore) GetRecording(ctx context.Context, id string) (VoiceRecording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recordings[id]
	if !ok {
		return VoiceRecording{}, ErrNotFound
	}
	return r, nil
}

// ListRecordings implements [Store.ListRecordings].
func (s *MemStore) ListRecordings(ctx context.Context) ([]VoiceRecording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]VoiceRecording, 0, len(s.recordings))
	for _, r := range s.recordings {
		out = append(out, r)
	}
	return out, nil
}

// StartDiarizationJob implements [Store.StartDiarizationJob].
func (s *MemStore) StartDiarizationJob(ctx context.Context, recordingID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recordings[recordingID]
	if !ok {
		return ErrNotFound
	}
	if r.DiarizationJobID != "" {
		return ErrJobMismatch
	}
	r.DiarizationJobID = jobID
	s.recordings[recordingID] = r
	return nil
}

// RecordDiarizationFailure implements [Store.RecordDiarizationFailure].
func (s *MemStore) RecordDiarizationFailure(ctx context.Context, recordingID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recordings[recordingID]
	if !ok {
		return ErrNotFound
	}
	r.DiarizationError = reason
	s.recordings[recordingID] = r
	return nil
}

// ApplyDiarization implements [Store.ApplyDiarization].
func (s *MemStore) ApplyDiarization(ctx context.Context, recordingID, jobID string, segments []DiarizedSegment) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recordings[recordingID]
	if !ok {
		return 0, ErrNotFound
	}
	if r.DiarizationJobID == "" || r.DiarizationJobID != jobID {
		return 0, ErrJobMismatch
	}

	// Reject the whole batch before mutating anything, matching the
	// database's region check aborting the transaction.
	for _, seg := range segments {
		if !seg.Valid() {
			return 0, fmt.Errorf("memstore: apply diarization: region start %.3f must be before end %.3f", seg.Start, seg.End)
		}
	}

	// Index the recording's existing provisional speakers by label and its
	// entries by suppression key.
	speakerByLabel := make(map[string]string)
	for _, sp := range s.speakers {
		if sp.Provisional && sp.RecordingID == recordingID {
			speakerByLabel[sp.Name] = sp.ID
		}
	}
	type suppressKey struct {
		region  string
		speaker string
	}
	seen := make(map[suppressKey]bool)
	for _, e := range s.entries {
		if e.RecordingID == recordingID {
			seen[suppressKey{e.RegionID, e.SpeakerID}] = true
		}
	}

	now := time.Now().UTC()
	created := 0
	for _, seg := range segments {
		speakerID, ok := speakerByLabel[seg.Label]
		if !ok {
			sp := Speaker{
				ID:          uuid.NewString(),
				Name:        seg.Label,
				Provisional: true,
				RecordingID: recordingID,
				CreatedAt:   now,
			}
			s.speakers[sp.ID] = sp
			speakerByLabel[seg.Label] = sp.ID
			speakerID = sp.ID
		}

		key := suppressKey{RegionKey(seg.Start, seg.End), speakerID}
		if seen[key] {
			continue
		}
		seen[key] = true

		e := DictionaryEntry{
			ID:            uuid.NewString(),
			RecordingID:   recordingID,
			RegionID:      key.region,
			Start:         seg.Start,
			End:           seg.End,
			Transcription: seg.Text,
			Accuracy:      AccuracyUnconfirmed,
			SpeakerID:     speakerID,
			CreatedAt:     now,
		}
		s.entries[e.ID] = e
		created++
	}

	if r.MetadataExtractedAt == nil {
		r.MetadataExtractedAt = &now
		s.recordings[recordingID] = r
	}
	return created, nil
}

// CreateEntry implements [Store.CreateEntry].
func (s *MemStore) CreateEntry(ctx context.Context, e DictionaryEntry) (DictionaryEntry, error) {
	if err := ValidateEntry(e); err != nil {
		return DictionaryEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recordings[e.RecordingID]; !ok {
		return DictionaryEntry{}, ErrNotFound
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, exists := s.entries[e.ID]; exists {
		return DictionaryEntry{}, ErrDuplicateID
	}
	if e.RegionID != "" {
		for _, other := range s.entries {
			if other.RecordingID == e.RecordingID && other.RegionID == e.RegionID && other.SpeakerID == e.SpeakerID {
				return DictionaryEntry{}, ErrDuplicateRegion
			}
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries[e.ID] = e
	return e, nil
}

// GetEntry implements [Store.GetEntry].
func (s *MemStore) GetEntry(ctx context.Context, id string) (DictionaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return DictionaryEntry{}, ErrNotFound
	}
	return e, nil
}

// ListEntries implements [Store.ListEntries].
func (s *MemStore) ListEntries(ctx context.Context, filter EntryFilter) ([]DictionaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DictionaryEntry, 0)
	for _, e := range s.entries {
		if !s.matchesEntryFilter(e, filter) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// matchesEntryFilter reports whether e satisfies all conditions in filter.
// Callers must hold at least a read lock.
func (s *MemStore) matchesEntryFilter(e DictionaryEntry, filter EntryFilter) bool {
	if filter.RecordingID != "" && e.RecordingID != filter.RecordingID {
		return false
	}
	if filter.Accuracy != "" && e.Accuracy != filter.Accuracy {
		return false
	}
	if filter.SpeakerID != "" && e.SpeakerID != filter.SpeakerID {
		return false
	}
	if filter.ExtractedOnly {
		r, ok := s.recordings[e.RecordingID]
		if !ok || r.MetadataExtractedAt == nil {
			return false
		}
	}
	return true
}

// UpdateEntry implements [Store.UpdateEntry].
func (s *MemStore) UpdateEntry(ctx context.Context, e DictionaryEntry) error {
	if err := ValidateEntry(e); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.ID]; !ok {
		return ErrNotFound
	}
	s.entries[e.ID] = e
	return nil
}

// ConfirmEntry implements [Store.ConfirmEntry].
func (s *MemStore) ConfirmEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Accuracy = AccuracyConfirmed
	s.entries[id] = e
	return nil
}

// CreateSpeaker implements [Store.CreateSpeaker].
func (s *MemStore) CreateSpeaker(ctx context.Context, sp Speaker) (Speaker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	if _, exists := s.speakers[sp.ID]; exists {
		return Speaker{}, ErrDuplicateID
	}
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = time.Now().UTC()
	}
	s.speakers[sp.ID] = sp
	return sp, nil
}

// GetSpeaker implements [Store.GetSpeaker].
func (s *MemStore) GetSpeaker(ctx context.Context, id string) (Speaker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.speakers[id]
	if !ok {
		return Speaker{}, ErrNotFound
	}
	return sp, nil
}

// ListSpeakers implements [Store.ListSpeakers].
func (s *MemStore) ListSpeakers(ctx context.Context, filter SpeakerFilter) ([]Speaker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Speaker, 0)
	for _, sp := range s.speakers {
		if filter.RecordingID != "" && sp.RecordingID != filter.RecordingID {
			continue
		}
		if filter.Provisional != nil && sp.Provisional != *filter.Provisional {
			continue
		}
		out = append(out, sp)
	}
	return out, nil
}

// MergeSpeakers implements [Store.MergeSpeakers]. Holding the write lock for
// the whole loop makes the reassignment all-or-nothing from any reader's
// point of view.
func (s *MemStore) MergeSpeakers(ctx context.Context, sourceID, targetID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.speakers[sourceID]; !ok {
		return 0, ErrNotFound
	}
	if _, ok := s.speakers[targetID]; !ok {
		return 0, ErrNotFound
	}

	moved := 0
	for id, e := range s.entries {
		if e.SpeakerID == sourceID {
			e.SpeakerID = targetID
			s.entries[id] = e
			moved++
		}
	}
	return moved, nil
}

// GetSession implements [Store.GetSession].
func (s *MemStore) GetSession(ctx context.Context, userID string) (ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return ConversationSession{}, ErrNotFound
	}
	return sess, nil
}

// SaveSession implements [Store.SaveSession].
func (s *MemStore) SaveSession(ctx context.Context, sess ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sess.UserID] = sess
	return nil
}
