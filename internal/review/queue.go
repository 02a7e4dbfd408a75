// Package review selects the next dictionary entry needing attention.
//
// Selection has no side effects beyond the returned entry. Within a
// recording the policy is deterministic (earliest unconfirmed region first);
// across recordings it is uniformly random over matching entries, with the
// randomness source injected so tests can seed it.
package review

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/teangalab/beal/internal/record"
)

// Queue picks review candidates out of a [record.Store].
type Queue struct {
	store record.Store

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rng *rand.Rand
}

// New creates a Queue. A nil rng gets a time-seeded source; tests pass a
// fixed seed for deterministic selection.
func New(store record.Store, rng *rand.Rand) *Queue {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Queue{store: store, rng: rng}
}

// Next returns the next entry needing review.
//
// With a recording id, candidates are that recording's unconfirmed entries
// and the earliest region start wins. With an empty recording id, candidates
// span all recordings that completed metadata extraction and one is chosen
// uniformly at random. The second return is false when no candidate exists;
// an empty queue is never an error.
func (q *Queue) Next(ctx context.Context, recordingID string) (record.DictionaryEntry, bool, error) {
	if recordingID == "" {
		return q.RandomUnconfirmed(ctx)
	}

	entries, err := q.store.ListEntries(ctx, record.EntryFilter{
		RecordingID: recordingID,
		Accuracy:    record.AccuracyUnconfirmed,
	})
	if err != nil {
		return record.DictionaryEntry{}, false, fmt.Errorf("review: next entry: %w", err)
	}
	if len(entries) == 0 {
		return record.DictionaryEntry{}, false, nil
	}
	// ListEntries orders by region start ascending.
	return entries[0], true, nil
}

// RandomUnconfirmed picks one unconfirmed entry uniformly at random across
// all metadata-extracted recordings. Uniform over entries, not weighted by
// recording.
func (q *Queue) RandomUnconfirmed(ctx context.Context) (record.DictionaryEntry, bool, error) {
	entries, err := q.store.ListEntries(ctx, record.EntryFilter{
		Accuracy:      record.AccuracyUnconfirmed,
		ExtractedOnly: true,
	})
	if err != nil {
		return record.DictionaryEntry{}, false, fmt.Errorf("review: random unconfirmed: %w", err)
	}
	if len(entries) == 0 {
		return record.DictionaryEntry{}, false, nil
	}

	q.mu.Lock()
	i := q.rng.Intn(len(entries))
	q.mu.Unlock()
	return entries[i], true, nil
}

// PendingRecordings returns the metadata-extracted recordings that still
// have unconfirmed entries.
func (q *Queue) PendingRecordings(ctx context.Context) ([]record.VoiceRecording, error) {
	entries, err := q.store.ListEntries(ctx, record.EntryFilter{
		Accuracy:      record.AccuracyUnconfirmed,
		ExtractedOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("review: pending recordings: %w", err)
	}

	seen := make(map[string]bool)
	out := make([]record.VoiceRecording, 0)
	for _, e := range entries {
		if seen[e.RecordingID] {
			continue
		}
		seen[e.RecordingID] = true
		r, err := q.store.GetRecording(ctx, e.RecordingID)
		if err != nil {
			return nil, fmt.Errorf("review: pending recordings: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// RandomPendingRecording picks one recording needing review uniformly at
// random. The second return is false when none exists.
func (q *Queue) RandomPendingRecording(ctx context.Context) (record.VoiceRecording, bool, error) {
	pending, err := q.PendingRecordings(ctx)
	if err != nil {
		return record.VoiceRecording{}, false, err
	}
	if len(pending) == 0 {
		return record.VoiceRecording{}, false, nil
	}

	q.mu.Lock()
	i := q.rng.Intn(len(pending))
	q.mu.Unlock()
	return pending[i], true, nil
}
