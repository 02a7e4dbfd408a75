package diarize

import (
	"context"
	"testing"

	"github.com/teangalab/beal/internal/record"
)

func TestSuggestMerge(t *testing.T) {
	s := record.NewMemStore()
	ctx := context.Background()

	prov, err := s.CreateSpeaker(ctx, record.Speaker{Name: "Maire", Provisional: true, RecordingID: "rec-1"})
	if err != nil {
		t.Fatalf("CreateSpeaker: %v", err)
	}
	close1, _ := s.CreateSpeaker(ctx, record.Speaker{Name: "Máire Uí Dhónaill"})
	close2, _ := s.CreateSpeaker(ctx, record.Speaker{Name: "Maire"})
	s.CreateSpeaker(ctx, record.Speaker{Name: "Peadar Ó Ceallaigh"})

	got, err := SuggestMerge(ctx, s, prov.ID, 0)
	if err != nil {
		t.Fatalf("SuggestMerge: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Speaker.ID != close2.ID {
		t.Errorf("best candidate = %q, want exact-name match", got[0].Speaker.Name)
	}
	if got[1].Speaker.ID != close1.ID {
		t.Errorf("second candidate = %q, want token match", got[1].Speaker.Name)
	}
	if got[0].Score < got[1].Score {
		t.Error("candidates not sorted by score descending")
	}
}

func TestSuggestMerge_RawLabelMatchesNothing(t *testing.T) {
	s := record.NewMemStore()
	ctx := context.Background()

	prov, _ := s.CreateSpeaker(ctx, record.Speaker{Name: "SPEAKER_00", Provisional: true, RecordingID: "rec-1"})
	s.CreateSpeaker(ctx, record.Speaker{Name: "Máire Uí Dhónaill"})
	s.CreateSpeaker(ctx, record.Speaker{Name: "Peadar Ó Ceallaigh"})

	got, err := SuggestMerge(ctx, s, prov.ID, 0)
	if err != nil {
		t.Fatalf("SuggestMerge: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates for a raw diarization label, got %d", len(got))
	}
}

func TestSuggestMerge_Limit(t *testing.T) {
	s := record.NewMemStore()
	ctx := context.Background()

	prov, _ := s.CreateSpeaker(ctx, record.Speaker{Name: "Sean", Provisional: true, RecordingID: "rec-1"})
	s.CreateSpeaker(ctx, record.Speaker{Name: "Sean"})
	s.CreateSpeaker(ctx, record.Speaker{Name: "Seán Mac Aodha"})
	s.CreateSpeaker(ctx, record.Speaker{Name: "Seana"})

	got, err := SuggestMerge(ctx, s, prov.ID, 1)
	if err != nil {
		t.Fatalf("SuggestMerge: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected capped result of 1, got %d", len(got))
	}
}

func TestSuggestMerge_UnknownSpeaker(t *testing.T) {
	s := record.NewMemStore()
	if _, err := SuggestMerge(context.Background(), s, "nope", 0); err == nil {
		t.Fatal("expected error for unknown provisional speaker")
	}
}

func TestNameSimilarity(t *testing.T) {
	cases := []struct {
		a, b  string
		above bool
	}{
		{"Maire", "Maire", true},
		{"maire", "MAIRE", true},
		{"Maire", "Máire Uí Dhónaill", false}, // accented rune differs; token match stays below exact
		{"Sean", "Seán Mac Aodha", false},
		{"SPEAKER_00", "Peadar", false},
		{"", "Peadar", false},
	}
	for _, c := range cases {
		got := nameSimilarity(c.a, c.b)
		if c.above && got < 0.999 {
			t.Errorf("nameSimilarity(%q, %q) = %v, want ~1", c.a, c.b, got)
		}
		if !c.above && got > 0.999 {
			t.Errorf("nameSimilarity(%q, %q) = %v, want < 1", c.a, c.b, got)
		}
	}
}
