package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teangalab/beal/internal/record"
	"github.com/teangalab/beal/internal/record/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if BEAL_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("BEAL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BEAL_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema and
// closes it when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS sessions, entries, speakers, recordings CASCADE`)
	pool.Close()
	if err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestApplyDiarization_Postgres(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r, err := store.CreateRecording(ctx, record.VoiceRecording{Title: "Agallamh"})
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	if err := store.StartDiarizationJob(ctx, r.ID, "job-1"); err != nil {
		t.Fatalf("StartDiarizationJob: %v", err)
	}

	segments := []record.DiarizedSegment{
		{Label: "SPEAKER_00", Start: 0.0, End: 2.0, Text: "dia dhuit"},
		{Label: "SPEAKER_01", Start: 2.0, End: 4.0, Text: "dia is muire dhuit"},
	}
	created, err := store.ApplyDiarization(ctx, r.ID, "job-1", segments)
	if err != nil {
		t.Fatalf("ApplyDiarization: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 created entries, got %d", created)
	}

	// Redelivery must be suppressed by the unique index.
	created, err = store.ApplyDiarization(ctx, r.ID, "job-1", segments)
	if err != nil {
		t.Fatalf("redelivered ApplyDiarization: %v", err)
	}
	if created != 0 {
		t.Errorf("expected idempotent redelivery, created %d", created)
	}

	// Stale job id rejected without touching entries.
	if _, err := store.ApplyDiarization(ctx, r.ID, "job-stale", segments); !errors.Is(err, record.ErrJobMismatch) {
		t.Errorf("expected ErrJobMismatch, got %v", err)
	}

	got, err := store.GetRecording(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if got.MetadataExtractedAt == nil {
		t.Error("expected metadata extraction timestamp")
	}

	entries, err := store.ListEntries(ctx, record.EntryFilter{RecordingID: r.ID, Accuracy: record.AccuracyUnconfirmed})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Start > entries[1].Start {
		t.Error("expected entries ordered by region start")
	}
}

func TestMergeSpeakers_Postgres(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r, _ := store.CreateRecording(ctx, record.VoiceRecording{Title: "Scéal"})
	source, _ := store.CreateSpeaker(ctx, record.Speaker{Name: "SPEAKER_00", Provisional: true, RecordingID: r.ID})
	target, _ := store.CreateSpeaker(ctx, record.Speaker{Name: "Máire"})

	for i := 0; i < 3; i++ {
		_, err := store.CreateEntry(ctx, record.DictionaryEntry{
			RecordingID: r.ID,
			Start:       float64(i),
			End:         float64(i) + 1,
			Accuracy:    record.AccuracyUnconfirmed,
			SpeakerID:   source.ID,
		})
		if err != nil {
			t.Fatalf("CreateEntry: %v", err)
		}
	}

	moved, err := store.MergeSpeakers(ctx, source.ID, target.ID)
	if err != nil {
		t.Fatalf("MergeSpeakers: %v", err)
	}
	if moved != 3 {
		t.Errorf("expected 3 moved entries, got %d", moved)
	}

	left, _ := store.ListEntries(ctx, record.EntryFilter{SpeakerID: source.ID})
	if len(left) != 0 {
		t.Errorf("expected source to keep 0 entries, got %d", len(left))
	}
	gained, _ := store.ListEntries(ctx, record.EntryFilter{SpeakerID: target.ID})
	if len(gained) != 3 {
		t.Errorf("expected target to gain 3 entries, got %d", len(gained))
	}
}

func TestSessionPersistence_Postgres(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := record.ConversationSession{
		UserID:  "user-1",
		State:   record.StateRecordingSelected,
		History: []record.Turn{{Role: record.RoleUser, Text: "tosaigh"}},
		Context: map[string]string{record.CtxLastAction: "start_recording"},
	}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := store.GetSession(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.State != record.StateRecordingSelected {
		t.Errorf("expected state to round-trip, got %s", got.State)
	}
	if len(got.History) != 1 || got.History[0].Text != "tosaigh" {
		t.Errorf("expected history to round-trip, got %+v", got.History)
	}
	if got.Context[record.CtxLastAction] != "start_recording" {
		t.Errorf("expected context to round-trip, got %v", got.Context)
	}
}

func TestCreateEntry_DuplicateRegion_Postgres(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r, err := s.CreateRecording(ctx, record.VoiceRecording{Title: "Agallamh"})
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}

	e := record.DictionaryEntry{
		RecordingID:   r.ID,
		RegionID:      record.RegionKey(1, 3),
		Start:         1,
		End:           3,
		Transcription: "abairt",
		Accuracy:      record.AccuracyUnconfirmed,
	}
	if _, err := s.CreateEntry(ctx, e); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	e.ID = ""
	if _, err := s.CreateEntry(ctx, e); !errors.Is(err, record.ErrDuplicateRegion) {
		t.Errorf("second create = %v, want ErrDuplicateRegion", err)
	}
}
