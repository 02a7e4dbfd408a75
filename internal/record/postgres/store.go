package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teangalab/beal/internal/record"
)

// Compile-time assertion that Store satisfies the record.Store interface.
var _ record.Store = (*Store)(nil)

// Store is the PostgreSQL-backed [record.Store]. It holds a single
// [pgxpool.Pool]; all methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, pings it, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity; used by the readiness checker.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ---- recordings ----

// CreateRecording implements [record.Store.CreateRecording].
func (s *Store) CreateRecording(ctx context.Context, r record.VoiceRecording) (record.VoiceRecording, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(orEmptyMap(r.Metadata))
	if err != nil {
		return record.VoiceRecording{}, fmt.Errorf("postgres store: create recording: encode metadata: %w", err)
	}

	const q = `
		INSERT INTO recordings
		    (id, title, owner_id, media_url, metadata, metadata_extracted_at,
		     diarization_job_id, diarization_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q,
		r.ID, r.Title, r.OwnerID, r.MediaURL, meta, r.MetadataExtractedAt,
		r.DiarizationJobID, r.DiarizationError, r.CreatedAt,
	)
	if err != nil {
		return record.VoiceRecording{}, fmt.Errorf("postgres store: create recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.VoiceRecording{}, record.ErrDuplicateID
	}
	return r, nil
}

const recordingColumns = `
	id, title, owner_id, media_url, metadata, metadata_extracted_at,
	diarization_job_id, diarization_error, created_at`

// GetRecording implements [record.Store.GetRecording].
func (s *Store) GetRecording(ctx context.Context, id string) (record.VoiceRecording, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id)
	if err != nil {
		return record.VoiceRecording{}, fmt.Errorf("postgres store: get recording: %w", err)
	}
	r, err := pgx.CollectOneRow(rows, scanRecording)
	if errors.Is(err, pgx.ErrNoRows) {
		return record.VoiceRecording{}, record.ErrNotFound
	}
	if err != nil {
		return record.VoiceRecording{}, fmt.Errorf("postgres store: get recording: %w", err)
	}
	return r, nil
}

// ListRecordings implements [record.Store.ListRecordings].
func (s *Store) ListRecordings(ctx context.Context) ([]record.VoiceRecording, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordingColumns+` FROM recordings ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list recordings: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRecording)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list recordings: %w", err)
	}
	return out, nil
}

// StartDiarizationJob implements [record.Store.StartDiarizationJob]. The
// UPDATE is scoped to an empty job id, so the first writer wins and any
// concurrent second start observes [record.ErrJobMismatch].
func (s *Store) StartDiarizationJob(ctx context.Context, recordingID, jobID string) error {
	const q = `
		UPDATE recordings
		SET    diarization_job_id = $2
		WHERE  id = $1
		  AND  diarization_job_id = ''`

	tag, err := s.pool.Exec(ctx, q, recordingID, jobID)
	if err != nil {
		return fmt.Errorf("postgres store: start diarization job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetRecording(ctx, recordingID); err != nil {
		return err
	}
	return record.ErrJobMismatch
}

// RecordDiarizationFailure implements [record.Store.RecordDiarizationFailure].
func (s *Store) RecordDiarizationFailure(ctx context.Context, recordingID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recordings SET diarization_error = $2 WHERE id = $1`, recordingID, reason)
	if err != nil {
		return fmt.Errorf("postgres store: record diarization failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrNotFound
	}
	return nil
}

// ApplyDiarization implements [record.Store.ApplyDiarization]. It runs in a
// transaction holding a row lock on the recording, so concurrent redeliveries
// for the same recording serialize; the unique index on
// (recording_id, region_id, speaker_id) suppresses duplicates either way.
func (s *Store) ApplyDiarization(ctx context.Context, recordingID, jobID string, segments []record.DiarizedSegment) (created int, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres store: apply diarization: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var storedJob string
	err = tx.QueryRow(ctx,
		`SELECT diarization_job_id FROM recordings WHERE id = $1 FOR UPDATE`, recordingID,
	).Scan(&storedJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, record.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres store: apply diarization: lock recording: %w", err)
	}
	if storedJob == "" || storedJob != jobID {
		return 0, record.ErrJobMismatch
	}

	for _, seg := range segments {
		speakerID, err := upsertProvisionalSpeaker(ctx, tx, recordingID, seg.Label)
		if err != nil {
			return 0, fmt.Errorf("postgres store: apply diarization: %w", err)
		}

		const insertEntry = `
			INSERT INTO entries
			    (id, recording_id, region_id, start_s, end_s, transcription, accuracy, speaker_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (recording_id, region_id, speaker_id) WHERE region_id <> '' DO NOTHING`

		tag, err := tx.Exec(ctx, insertEntry,
			uuid.NewString(), recordingID, record.RegionKey(seg.Start, seg.End),
			seg.Start, seg.End, seg.Text, string(record.AccuracyUnconfirmed), speakerID,
		)
		if err != nil {
			return 0, fmt.Errorf("postgres store: apply diarization: insert entry: %w", err)
		}
		created += int(tag.RowsAffected())
	}

	if _, err := tx.Exec(ctx,
		`UPDATE recordings SET metadata_extracted_at = COALESCE(metadata_extracted_at, now()) WHERE id = $1`,
		recordingID,
	); err != nil {
		return 0, fmt.Errorf("postgres store: apply diarization: mark extracted: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres store: apply diarization: commit: %w", err)
	}
	return created, nil
}

// upsertProvisionalSpeaker returns the id of the provisional speaker for
// label within the recording, creating it when absent. The caller holds the
// recording row lock, so the select-then-insert cannot race for one
// recording.
func upsertProvisionalSpeaker(ctx context.Context, tx pgx.Tx, recordingID, label string) (string, error) {
	var id string
	err := tx.QueryRow(ctx,
		`SELECT id FROM speakers WHERE recording_id = $1 AND name = $2 AND provisional`,
		recordingID, label,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("find provisional speaker: %w", err)
	}

	id = uuid.NewString()
	if _, err := tx.Exec(ctx,
		`INSERT INTO speakers (id, name, provisional, recording_id) VALUES ($1, $2, TRUE, $3)`,
		id, label, recordingID,
	); err != nil {
		return "", fmt.Errorf("create provisional speaker: %w", err)
	}
	return id, nil
}

// ---- entries ----

// CreateEntry implements [record.Store.CreateEntry].
func (s *Store) CreateEntry(ctx context.Context, e record.DictionaryEntry) (record.DictionaryEntry, error) {
	if err := record.ValidateEntry(e); err != nil {
		return record.DictionaryEntry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO entries
		    (id, recording_id, region_id, start_s, end_s, transcription, translation,
		     accuracy, speaker_id, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q,
		e.ID, e.RecordingID, e.RegionID, e.Start, e.End, e.Transcription, e.Translation,
		string(e.Accuracy), e.SpeakerID, orEmptySlice(e.Tags), e.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "entries_recording_id_fkey") {
			return record.DictionaryEntry{}, record.ErrNotFound
		}
		if strings.Contains(err.Error(), "uniq_entries_region_speaker") {
			return record.DictionaryEntry{}, record.ErrDuplicateRegion
		}
		return record.DictionaryEntry{}, fmt.Errorf("postgres store: create entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.DictionaryEntry{}, record.ErrDuplicateID
	}
	return e, nil
}

const entryColumns = `
	e.id, e.recording_id, e.region_id, e.start_s, e.end_s, e.transcription,
	e.translation, e.accuracy, e.speaker_id, e.tags, e.created_at`

// GetEntry implements [record.Store.GetEntry].
func (s *Store) GetEntry(ctx context.Context, id string) (record.DictionaryEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM entries e WHERE e.id = $1`, id)
	if err != nil {
		return record.DictionaryEntry{}, fmt.Errorf("postgres store: get entry: %w", err)
	}
	e, err := pgx.CollectOneRow(rows, scanEntry)
	if errors.Is(err, pgx.ErrNoRows) {
		return record.DictionaryEntry{}, record.ErrNotFound
	}
	if err != nil {
		return record.DictionaryEntry{}, fmt.Errorf("postgres store: get entry: %w", err)
	}
	return e, nil
}

// ListEntries implements [record.Store.ListEntries].
func (s *Store) ListEntries(ctx context.Context, filter record.EntryFilter) ([]record.DictionaryEntry, error) {
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"TRUE"}
	if filter.RecordingID != "" {
		conditions = append(conditions, "e.recording_id = "+next(filter.RecordingID))
	}
	if filter.Accuracy != "" {
		conditions = append(conditions, "e.accuracy = "+next(string(filter.Accuracy)))
	}
	if filter.SpeakerID != "" {
		conditions = append(conditions, "e.speaker_id = "+next(filter.SpeakerID))
	}
	join := ""
	if filter.ExtractedOnly {
		join = "JOIN recordings r ON r.id = e.recording_id"
		conditions = append(conditions, "r.metadata_extracted_at IS NOT NULL")
	}

	q := "SELECT " + entryColumns + "\nFROM entries e " + join + "\n" +
		"WHERE " + strings.Join(conditions, "\n  AND ") + "\n" +
		"ORDER BY e.start_s, e.id"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list entries: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list entries: %w", err)
	}
	return out, nil
}

// UpdateEntry implements [record.Store.UpdateEntry].
func (s *Store) UpdateEntry(ctx context.Context, e record.DictionaryEntry) error {
	if err := record.ValidateEntry(e); err != nil {
		return err
	}

	const q = `
		UPDATE entries
		SET    region_id = $2, start_s = $3, end_s = $4, transcription = $5,
		       translation = $6, accuracy = $7, speaker_id = $8, tags = $9
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q,
		e.ID, e.RegionID, e.Start, e.End, e.Transcription,
		e.Translation, string(e.Accuracy), e.SpeakerID, orEmptySlice(e.Tags),
	)
	if err != nil {
		return fmt.Errorf("postgres store: update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrNotFound
	}
	return nil
}

// ConfirmEntry implements [record.Store.ConfirmEntry].
func (s *Store) ConfirmEntry(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entries SET accuracy = $2 WHERE id = $1`, id, string(record.AccuracyConfirmed))
	if err != nil {
		return fmt.Errorf("postgres store: confirm entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrNotFound
	}
	return nil
}

// ---- speakers ----

// CreateSpeaker implements [record.Store.CreateSpeaker].
func (s *Store) CreateSpeaker(ctx context.Context, sp record.Speaker) (record.Speaker, error) {
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO speakers (id, name, provisional, recording_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		sp.ID, sp.Name, sp.Provisional, sp.RecordingID, sp.CreatedAt,
	)
	if err != nil {
		return record.Speaker{}, fmt.Errorf("postgres store: create speaker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.Speaker{}, record.ErrDuplicateID
	}
	return sp, nil
}

// GetSpeaker implements [record.Store.GetSpeaker].
func (s *Store) GetSpeaker(ctx context.Context, id string) (record.Speaker, error) {
	var sp record.Speaker
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, provisional, recording_id, created_at FROM speakers WHERE id = $1`, id,
	).Scan(&sp.ID, &sp.Name, &sp.Provisional, &sp.RecordingID, &sp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return record.Speaker{}, record.ErrNotFound
	}
	if err != nil {
		return record.Speaker{}, fmt.Errorf("postgres store: get speaker: %w", err)
	}
	return sp, nil
}

// ListSpeakers implements [record.Store.ListSpeakers].
func (s *Store) ListSpeakers(ctx context.Context, filter record.SpeakerFilter) ([]record.Speaker, error) {
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"TRUE"}
	if filter.RecordingID != "" {
		conditions = append(conditions, "recording_id = "+next(filter.RecordingID))
	}
	if filter.Provisional != nil {
		conditions = append(conditions, "provisional = "+next(*filter.Provisional))
	}

	q := "SELECT id, name, provisional, recording_id, created_at FROM speakers WHERE " +
		strings.Join(conditions, " AND ")

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list speakers: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (record.Speaker, error) {
		var sp record.Speaker
		err := row.Scan(&sp.ID, &sp.Name, &sp.Provisional, &sp.RecordingID, &sp.CreatedAt)
		return sp, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: list speakers: %w", err)
	}
	return out, nil
}

// MergeSpeakers implements [record.Store.MergeSpeakers]. The reassignment is
// one UPDATE scoped by the source speaker, so no reader can observe a
// partial merge.
func (s *Store) MergeSpeakers(ctx context.Context, sourceID, targetID string) (int, error) {
	for _, id := range []string{sourceID, targetID} {
		if _, err := s.GetSpeaker(ctx, id); err != nil {
			return 0, err
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE entries SET speaker_id = $2 WHERE speaker_id = $1`, sourceID, targetID)
	if err != nil {
		return 0, fmt.Errorf("postgres store: merge speakers: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ---- sessions ----

// GetSession implements [record.Store.GetSession].
func (s *Store) GetSession(ctx context.Context, userID string) (record.ConversationSession, error) {
	var (
		sess            record.ConversationSession
		history, cmap   []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, recording_id, entry_id, state, history, context, updated_at
		 FROM sessions WHERE user_id = $1`, userID,
	).Scan(&sess.UserID, &sess.RecordingID, &sess.EntryID, &sess.State, &history, &cmap, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return record.ConversationSession{}, record.ErrNotFound
	}
	if err != nil {
		return record.ConversationSession{}, fmt.Errorf("postgres store: get session: %w", err)
	}

	if err := json.Unmarshal(history, &sess.History); err != nil {
		return record.ConversationSession{}, fmt.Errorf("postgres store: get session: decode history: %w", err)
	}
	if err := json.Unmarshal(cmap, &sess.Context); err != nil {
		return record.ConversationSession{}, fmt.Errorf("postgres store: get session: decode context: %w", err)
	}
	return sess, nil
}

// SaveSession implements [record.Store.SaveSession].
func (s *Store) SaveSession(ctx context.Context, sess record.ConversationSession) error {
	history, err := json.Marshal(orEmptyTurns(sess.History))
	if err != nil {
		return fmt.Errorf("postgres store: save session: encode history: %w", err)
	}
	cmap, err := json.Marshal(orEmptyMap(sess.Context))
	if err != nil {
		return fmt.Errorf("postgres store: save session: encode context: %w", err)
	}

	const q = `
		INSERT INTO sessions (user_id, recording_id, entry_id, state, history, context, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (user_id) DO UPDATE
		SET recording_id = EXCLUDED.recording_id,
		    entry_id     = EXCLUDED.entry_id,
		    state        = EXCLUDED.state,
		    history      = EXCLUDED.history,
		    context      = EXCLUDED.context,
		    updated_at   = now()`

	if _, err := s.pool.Exec(ctx, q,
		sess.UserID, sess.RecordingID, sess.EntryID, string(sess.State), history, cmap,
	); err != nil {
		return fmt.Errorf("postgres store: save session: %w", err)
	}
	return nil
}

// ---- scan helpers ----

func scanRecording(row pgx.CollectableRow) (record.VoiceRecording, error) {
	var (
		r    record.VoiceRecording
		meta []byte
	)
	if err := row.Scan(
		&r.ID, &r.Title, &r.OwnerID, &r.MediaURL, &meta, &r.MetadataExtractedAt,
		&r.DiarizationJobID, &r.DiarizationError, &r.CreatedAt,
	); err != nil {
		return record.VoiceRecording{}, err
	}
	if err := json.Unmarshal(meta, &r.Metadata); err != nil {
		return record.VoiceRecording{}, fmt.Errorf("decode metadata: %w", err)
	}
	return r, nil
}

func scanEntry(row pgx.CollectableRow) (record.DictionaryEntry, error) {
	var e record.DictionaryEntry
	err := row.Scan(
		&e.ID, &e.RecordingID, &e.RegionID, &e.Start, &e.End, &e.Transcription,
		&e.Translation, &e.Accuracy, &e.SpeakerID, &e.Tags, &e.CreatedAt,
	)
	return e, err
}

// orEmptyMap keeps JSONB columns as {} instead of SQL NULL.
func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyTurns(t []record.Turn) []record.Turn {
	if t == nil {
		return []record.Turn{}
	}
	return t
}
