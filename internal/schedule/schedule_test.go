package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/teangalab/beal/internal/record"
)

type stubGateway struct{ up bool }

func (g stubGateway) Synthesize(context.Context, string) ([]byte, error) { return nil, nil }
func (g stubGateway) SynthesizeToFile(context.Context, string) (string, error) {
	return "", nil
}
func (g stubGateway) Transcribe(context.Context, string) (string, error) { return "", nil }
func (g stubGateway) Probe(context.Context) bool                         { return g.up }

type stubStarter struct {
	jobID   string
	err     error
	started []string
}

func (d *stubStarter) StartJob(ctx context.Context, recordingID, mediaURL string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.started = append(d.started, recordingID)
	return d.jobID, nil
}

func TestAutoDiarizeOnce_SubmitsOnePendingRecording(t *testing.T) {
	store := record.NewMemStore()
	ctx := context.Background()

	pending, _ := store.CreateRecording(ctx, record.VoiceRecording{Title: "a", MediaURL: "https://cdn/a.mp3"})
	noMedia, _ := store.CreateRecording(ctx, record.VoiceRecording{Title: "b"})
	claimed, _ := store.CreateRecording(ctx, record.VoiceRecording{Title: "c", MediaURL: "https://cdn/c.mp3"})
	store.StartDiarizationJob(ctx, claimed.ID, "job-existing")

	starter := &stubStarter{jobID: "job-new"}
	s, err := New(Options{
		ProbeSpec:       "0 * * * *",
		AutoDiarizeSpec: "30 3 * * *",
		Store:           store,
		Gateway:         stubGateway{up: true},
		Diarizer:        starter,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.AutoDiarizeOnce(ctx); err != nil {
		t.Fatalf("AutoDiarizeOnce: %v", err)
	}
	if len(starter.started) != 1 || starter.started[0] != pending.ID {
		t.Errorf("started = %v, want just %s", starter.started, pending.ID)
	}

	got, _ := store.GetRecording(ctx, pending.ID)
	if got.DiarizationJobID != "job-new" {
		t.Errorf("job id = %q, want job-new", got.DiarizationJobID)
	}
	untouched, _ := store.GetRecording(ctx, noMedia.ID)
	if untouched.DiarizationJobID != "" {
		t.Error("recording without media must not be submitted")
	}

	// A second pass has nothing left to submit.
	starter.started = nil
	if err := s.AutoDiarizeOnce(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(starter.started) != 0 {
		t.Errorf("second pass submitted %v", starter.started)
	}
}

func TestAutoDiarizeOnce_ProviderErrorPropagates(t *testing.T) {
	store := record.NewMemStore()
	ctx := context.Background()
	store.CreateRecording(ctx, record.VoiceRecording{Title: "a", MediaURL: "https://cdn/a.mp3"})

	s, err := New(Options{
		ProbeSpec:       "0 * * * *",
		AutoDiarizeSpec: "30 3 * * *",
		Store:           store,
		Gateway:         stubGateway{up: true},
		Diarizer:        &stubStarter{err: errors.New("quota exceeded")},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.AutoDiarizeOnce(ctx); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New(Options{
		ProbeSpec: "not a cron spec",
		Store:     record.NewMemStore(),
		Gateway:   stubGateway{},
	})
	if err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestNew_NilDiarizerSkipsNightlyJob(t *testing.T) {
	s, err := New(Options{
		ProbeSpec:       "0 * * * *",
		AutoDiarizeSpec: "also not a spec", // never parsed without a diarizer
		Store:           record.NewMemStore(),
		Gateway:         stubGateway{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s == nil {
		t.Fatal("nil scheduler")
	}
}
