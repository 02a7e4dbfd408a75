package record

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ImportWebVTT bulk-imports transcription segments from a WebVTT subtitle
// file into recordingID. Every cue becomes one unconfirmed
// [DictionaryEntry] with the cue text as its transcription.
//
// The import is best-effort: cues are stored one at a time and the count of
// entries imported so far is returned together with the first error
// encountered. Cues whose region already has an entry are skipped, so
// re-importing the same file adds nothing. Cue identifiers, NOTE blocks,
// and styling tags are ignored.
func ImportWebVTT(ctx context.Context, store Store, recordingID string, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)

	count := 0
	var (
		start, end float64
		inCue      bool
		text       []string
	)

	flush := func() error {
		if !inCue {
			return nil
		}
		inCue = false
		transcription := strings.TrimSpace(strings.Join(text, "\n"))
		text = text[:0]
		if transcription == "" {
			return nil
		}
		_, err := store.CreateEntry(ctx, DictionaryEntry{
			RecordingID:   recordingID,
			RegionID:      RegionKey(start, end),
			Start:         start,
			End:           end,
			Transcription: transcription,
			Accuracy:      AccuracyUnconfirmed,
		})
		if errors.Is(err, ErrDuplicateRegion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record: webvtt import at cue %d (%.3f-%.3f): %w", count, start, end, err)
		}
		count++
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if s, e, ok := parseCueTiming(line); ok {
			if err := flush(); err != nil {
				return count, err
			}
			start, end = s, e
			inCue = true
			continue
		}

		if line == "" {
			if err := flush(); err != nil {
				return count, err
			}
			continue
		}

		if inCue {
			text = append(text, stripVTTTags(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("record: webvtt import: read input: %w", err)
	}
	if err := flush(); err != nil {
		return count, err
	}
	return count, nil
}

// parseCueTiming parses a WebVTT timing line ("00:00:01.000 --> 00:00:04.500",
// optionally followed by cue settings). Returns ok=false for any other line.
func parseCueTiming(line string) (start, end float64, ok bool) {
	arrow := strings.Index(line, "-->")
	if arrow < 0 {
		return 0, 0, false
	}

	startStr := strings.TrimSpace(line[:arrow])
	endStr := strings.TrimSpace(line[arrow+len("-->"):])
	// Drop cue settings after the end timestamp.
	if i := strings.IndexAny(endStr, " \t"); i >= 0 {
		endStr = endStr[:i]
	}

	start, okStart := parseVTTTimestamp(startStr)
	end, okEnd := parseVTTTimestamp(endStr)
	if !okStart || !okEnd || start >= end {
		return 0, 0, false
	}
	return start, end, true
}

// parseVTTTimestamp parses "hh:mm:ss.mmm" or "mm:ss.mmm" into seconds.
func parseVTTTimestamp(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	seconds := 0.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		seconds = seconds*60 + v
	}
	return seconds, true
}

// stripVTTTags removes inline styling tags like <v Speaker> and <i> from a
// cue text line.
func stripVTTTags(line string) string {
	var b strings.Builder
	inTag := false
	for _, r := range line {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
