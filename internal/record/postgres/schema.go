// Package postgres provides the PostgreSQL-backed implementation of
// [record.Store].
//
// All operations are scoped, conditional updates: diarization results only
// apply while the stored job id matches, speaker merges are a single UPDATE
// over the source speaker's entries. Concurrent webhook deliveries and user
// actions therefore cannot corrupt state without any global lock.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlRecordings = `
CREATE TABLE IF NOT EXISTS recordings (
    id                    TEXT         PRIMARY KEY,
    title                 TEXT         NOT NULL DEFAULT '',
    owner_id              TEXT         NOT NULL DEFAULT '',
    media_url             TEXT         NOT NULL DEFAULT '',
    metadata              JSONB        NOT NULL DEFAULT '{}',
    metadata_extracted_at TIMESTAMPTZ,
    diarization_job_id    TEXT         NOT NULL DEFAULT '',
    diarization_error     TEXT         NOT NULL DEFAULT '',
    created_at            TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recordings_owner ON recordings (owner_id);
`

const ddlEntries = `
CREATE TABLE IF NOT EXISTS entries (
    id            TEXT             PRIMARY KEY,
    recording_id  TEXT             NOT NULL REFERENCES recordings (id),
    region_id     TEXT             NOT NULL DEFAULT '',
    start_s       DOUBLE PRECISION NOT NULL,
    end_s         DOUBLE PRECISION NOT NULL,
    transcription TEXT             NOT NULL DEFAULT '',
    translation   TEXT             NOT NULL DEFAULT '',
    accuracy      TEXT             NOT NULL DEFAULT 'unconfirmed',
    speaker_id    TEXT             NOT NULL DEFAULT '',
    tags          TEXT[]           NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ      NOT NULL DEFAULT now(),

    CONSTRAINT entries_region_valid CHECK (start_s < end_s)
);

CREATE INDEX IF NOT EXISTS idx_entries_recording ON entries (recording_id, start_s);
CREATE INDEX IF NOT EXISTS idx_entries_accuracy  ON entries (accuracy);
CREATE INDEX IF NOT EXISTS idx_entries_speaker   ON entries (speaker_id);

-- Duplicate suppression for at-least-once diarization delivery.
CREATE UNIQUE INDEX IF NOT EXISTS uniq_entries_region_speaker
    ON entries (recording_id, region_id, speaker_id)
    WHERE region_id <> '';
`

const ddlSpeakers = `
CREATE TABLE IF NOT EXISTS speakers (
    id           TEXT         PRIMARY KEY,
    name         TEXT         NOT NULL DEFAULT '',
    provisional  BOOLEAN      NOT NULL DEFAULT FALSE,
    recording_id TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

-- One provisional speaker per diarization label per recording.
CREATE UNIQUE INDEX IF NOT EXISTS uniq_provisional_speaker
    ON speakers (recording_id, name)
    WHERE provisional;
`

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    user_id      TEXT         PRIMARY KEY,
    recording_id TEXT         NOT NULL DEFAULT '',
    entry_id     TEXT         NOT NULL DEFAULT '',
    state        TEXT         NOT NULL DEFAULT 'idle',
    history      JSONB        NOT NULL DEFAULT '[]',
    context      JSONB        NOT NULL DEFAULT '{}',
    updated_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate ensures all tables and indexes exist. DDL is idempotent; it is run
// on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlRecordings, ddlEntries, ddlSpeakers, ddlSessions} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
