package review

import (
	"context"
	"math/rand"
	"testing"

	"github.com/teangalab/beal/internal/record"
)

// seedStore builds a store with one extracted recording carrying the three
// spec regions: unconfirmed, confirmed, unconfirmed.
func seedStore(t *testing.T) (*record.MemStore, record.VoiceRecording) {
	t.Helper()
	s := record.NewMemStore()
	ctx := context.Background()

	r, err := s.CreateRecording(ctx, record.VoiceRecording{Title: "Comhrá"})
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	if err := s.StartDiarizationJob(ctx, r.ID, "job-1"); err != nil {
		t.Fatalf("StartDiarizationJob: %v", err)
	}
	// ApplyDiarization marks metadata as extracted.
	if _, err := s.ApplyDiarization(ctx, r.ID, "job-1", []record.DiarizedSegment{
		{Label: "SPEAKER_00", Start: 0.0, End: 2.0},
		{Label: "SPEAKER_00", Start: 2.0, End: 4.0},
		{Label: "SPEAKER_00", Start: 4.0, End: 6.0},
	}); err != nil {
		t.Fatalf("ApplyDiarization: %v", err)
	}

	entries, _ := s.ListEntries(ctx, record.EntryFilter{RecordingID: r.ID})
	if err := s.ConfirmEntry(ctx, entries[1].ID); err != nil {
		t.Fatalf("ConfirmEntry: %v", err)
	}
	return s, r
}

func fixedRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func TestNext_EarliestUnconfirmedFirst(t *testing.T) {
	s, r := seedStore(t)
	q := New(s, fixedRand())
	ctx := context.Background()

	e, ok, err := q.Next(ctx, r.ID)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("expected a candidate")
	}
	if e.Start != 0.0 || e.End != 2.0 {
		t.Errorf("expected earliest unconfirmed region 0.0-2.0, got %.1f-%.1f", e.Start, e.End)
	}

	// Confirm it; the confirmed 2.0-4.0 region must be skipped.
	if err := s.ConfirmEntry(ctx, e.ID); err != nil {
		t.Fatalf("ConfirmEntry: %v", err)
	}
	e, ok, err = q.Next(ctx, r.ID)
	if err != nil || !ok {
		t.Fatalf("Next after confirm: ok=%v err=%v", ok, err)
	}
	if e.Start != 4.0 || e.End != 6.0 {
		t.Errorf("expected region 4.0-6.0 skipping the confirmed middle, got %.1f-%.1f", e.Start, e.End)
	}
}

func TestNext_EmptyQueueIsNotAnError(t *testing.T) {
	s, r := seedStore(t)
	q := New(s, fixedRand())
	ctx := context.Background()

	entries, _ := s.ListEntries(ctx, record.EntryFilter{RecordingID: r.ID})
	for _, e := range entries {
		s.ConfirmEntry(ctx, e.ID)
	}

	_, ok, err := q.Next(ctx, r.ID)
	if err != nil {
		t.Fatalf("expected nil error on empty queue, got %v", err)
	}
	if ok {
		t.Error("expected no candidate on a fully confirmed recording")
	}
}

func TestRandomUnconfirmed_SkipsUnextractedRecordings(t *testing.T) {
	s, r := seedStore(t)
	ctx := context.Background()

	// A recording without extracted metadata never enters the random pool.
	raw, _ := s.CreateRecording(ctx, record.VoiceRecording{Title: "Gan phróiseáil"})
	s.CreateEntry(ctx, record.DictionaryEntry{
		RecordingID: raw.ID, Start: 0, End: 1, Accuracy: record.AccuracyUnconfirmed,
	})

	q := New(s, fixedRand())
	for i := 0; i < 20; i++ {
		e, ok, err := q.RandomUnconfirmed(ctx)
		if err != nil || !ok {
			t.Fatalf("RandomUnconfirmed: ok=%v err=%v", ok, err)
		}
		if e.RecordingID != r.ID {
			t.Fatalf("selected entry from unextracted recording %s", e.RecordingID)
		}
	}
}

func TestRandomUnconfirmed_DeterministicWithSeed(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()

	a := New(s, rand.New(rand.NewSource(42)))
	b := New(s, rand.New(rand.NewSource(42)))
	for i := 0; i < 10; i++ {
		ea, _, _ := a.RandomUnconfirmed(ctx)
		eb, _, _ := b.RandomUnconfirmed(ctx)
		if ea.ID != eb.ID {
			t.Fatalf("same seed diverged at pick %d: %s vs %s", i, ea.ID, eb.ID)
		}
	}
}

func TestRandomPendingRecording(t *testing.T) {
	s, r := seedStore(t)
	q := New(s, fixedRand())
	ctx := context.Background()

	got, ok, err := q.RandomPendingRecording(ctx)
	if err != nil || !ok {
		t.Fatalf("RandomPendingRecording: ok=%v err=%v", ok, err)
	}
	if got.ID != r.ID {
		t.Errorf("expected recording %s, got %s", r.ID, got.ID)
	}

	entries, _ := s.ListEntries(ctx, record.EntryFilter{RecordingID: r.ID})
	for _, e := range entries {
		s.ConfirmEntry(ctx, e.ID)
	}
	if _, ok, err := q.RandomPendingRecording(ctx); err != nil || ok {
		t.Errorf("expected no pending recording, ok=%v err=%v", ok, err)
	}
}
