package diarize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/teangalab/beal/internal/record"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for a confirmed
// speaker to be offered as a merge candidate.
const suggestThreshold = 0.82

// MergeCandidate pairs a confirmed speaker with its similarity to the
// provisional speaker's name.
type MergeCandidate struct {
	Speaker record.Speaker
	Score   float64
}

// SuggestMerge ranks confirmed speakers by name similarity to the
// provisional speaker with id provisionalID. Raw diarization labels
// ("SPEAKER_00") match nothing; suggestions become useful once a reviewer
// has renamed the provisional speaker to a guessed name.
//
// Results are ordered by score descending and capped at limit (0 means no
// cap). Only candidates at or above the similarity threshold are returned.
func SuggestMerge(ctx context.Context, store record.Store, provisionalID string, limit int) ([]MergeCandidate, error) {
	prov, err := store.GetSpeaker(ctx, provisionalID)
	if err != nil {
		return nil, fmt.Errorf("diarize: suggest merge: %w", err)
	}

	confirmed := false
	speakers, err := store.ListSpeakers(ctx, record.SpeakerFilter{Provisional: &confirmed})
	if err != nil {
		return nil, fmt.Errorf("diarize: suggest merge: %w", err)
	}

	candidates := make([]MergeCandidate, 0)
	for _, sp := range speakers {
		score := nameSimilarity(prov.Name, sp.Name)
		if score >= suggestThreshold {
			candidates = append(candidates, MergeCandidate{Speaker: sp, Score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Speaker.ID < candidates[j].Speaker.ID
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// nameSimilarity scores two speaker names with Jaro-Winkler, taking the best
// of full-string and best-pairwise-token comparison so "Máire" still matches
// "Máire Uí Dhónaill".
func nameSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}

	score := matchr.JaroWinkler(a, b, false)
	for _, at := range strings.Fields(a) {
		for _, bt := range strings.Fields(b) {
			if s := matchr.JaroWinkler(at, bt, false); s > score {
				score = s
			}
		}
	}
	return score
}
