package conversation

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/teangalab/beal/internal/record"
	"github.com/teangalab/beal/internal/review"
	"github.com/teangalab/beal/pkg/speech"
)

// fakeGateway is a scriptable speech.Gateway for engine tests.
type fakeGateway struct {
	transcript    string
	transcribeErr error
	synthPath     string
	synthErr      error
	calls         int
}

func (g *fakeGateway) Synthesize(ctx context.Context, text string) ([]byte, error) {
	g.calls++
	if g.synthErr != nil {
		return nil, g.synthErr
	}
	return []byte("RIFF"), nil
}

func (g *fakeGateway) SynthesizeToFile(ctx context.Context, text string) (string, error) {
	g.calls++
	if g.synthErr != nil {
		return "", g.synthErr
	}
	return g.synthPath, nil
}

func (g *fakeGateway) Transcribe(ctx context.Context, audio string) (string, error) {
	g.calls++
	if g.transcribeErr != nil {
		return "", g.transcribeErr
	}
	return g.transcript, nil
}

func (g *fakeGateway) Probe(ctx context.Context) bool { return true }

var _ speech.Gateway = (*fakeGateway)(nil)

// seedRecording creates a recording with entries at regions (0-2 unconfirmed,
// 2-4 confirmed, 4-6 unconfirmed), all metadata-extracted.
func seedRecording(t *testing.T, s *record.MemStore) record.VoiceRecording {
	t.Helper()
	ctx := context.Background()

	r, err := s.CreateRecording(ctx, record.VoiceRecording{Title: "Scéalta"})
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	if err := s.StartDiarizationJob(ctx, r.ID, "job-1"); err != nil {
		t.Fatalf("StartDiarizationJob: %v", err)
	}
	if _, err := s.ApplyDiarization(ctx, r.ID, "job-1", []record.DiarizedSegment{
		{Label: "SPEAKER_00", Start: 0, End: 2, Text: "an chéad abairt"},
		{Label: "SPEAKER_00", Start: 2, End: 4, Text: "an dara habairt"},
		{Label: "SPEAKER_01", Start: 4, End: 6, Text: "an tríú habairt"},
	}); err != nil {
		t.Fatalf("ApplyDiarization: %v", err)
	}

	entries, _ := s.ListEntries(ctx, record.EntryFilter{RecordingID: r.ID})
	if len(entries) != 3 {
		t.Fatalf("expected 3 seeded entries, got %d", len(entries))
	}
	if err := s.ConfirmEntry(ctx, entries[1].ID); err != nil {
		t.Fatalf("ConfirmEntry: %v", err)
	}
	return r
}

func newTestEngine(s *record.MemStore, g speech.Gateway) *Engine {
	q := review.New(s, rand.New(rand.NewSource(1)))
	return NewEngine(s, q, g, nil)
}

func TestStartRecordingThenAdvance_SkipsConfirmed(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	e := newTestEngine(s, &fakeGateway{})
	ctx := context.Background()

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	resp, err := e.StartRecording(ctx, &sess, r.ID)
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if resp.State != record.StateRecordingSelected {
		t.Fatalf("state = %q, want recording_selected", resp.State)
	}

	resp, err = e.AdvanceToNextEntry(ctx, &sess)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	first, _ := s.GetEntry(ctx, resp.EntryID)
	if first.Start != 0 || first.End != 2 {
		t.Errorf("first entry region = %v-%v, want 0-2 (earliest unconfirmed)", first.Start, first.End)
	}
	if sess.State != record.StateReviewingEntry {
		t.Errorf("state = %q, want reviewing_entry", sess.State)
	}

	// Confirm via the yes/no flow; the confirmed 2-4 entry must be skipped.
	if _, err := e.Process(ctx, &sess, "confirm"); err != nil {
		t.Fatalf("process confirm: %v", err)
	}
	if sess.State != record.StateConfirming {
		t.Fatalf("state = %q, want confirming", sess.State)
	}
	resp, err = e.Process(ctx, &sess, "yes")
	if err != nil {
		t.Fatalf("process yes: %v", err)
	}
	second, _ := s.GetEntry(ctx, resp.EntryID)
	if second.Start != 4 || second.End != 6 {
		t.Errorf("second entry region = %v-%v, want 4-6 (skipping confirmed)", second.Start, second.End)
	}

	confirmed, _ := s.GetEntry(ctx, first.ID)
	if confirmed.Accuracy != record.AccuracyConfirmed {
		t.Error("first entry not confirmed after yes")
	}
}

func TestRoundTrip_VisitsEveryUnconfirmedOnce(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	e := newTestEngine(s, &fakeGateway{})
	ctx := context.Background()

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	if _, err := e.StartRecording(ctx, &sess, r.ID); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	visited := make(map[string]int)
	for i := 0; i < 10; i++ {
		resp, err := e.AdvanceToNextEntry(ctx, &sess)
		if err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		if resp.EntryID == "" {
			break
		}
		visited[resp.EntryID]++
		if err := s.ConfirmEntry(ctx, resp.EntryID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}

	if len(visited) != 2 {
		t.Errorf("visited %d distinct entries, want 2", len(visited))
	}
	for id, n := range visited {
		if n != 1 {
			t.Errorf("entry %s visited %d times, want exactly once", id, n)
		}
	}
	if sess.State != record.StateIdle {
		t.Errorf("state after exhausting all recordings = %q, want idle", sess.State)
	}
}

func TestAdvance_FallsBackToRecordingSelectedWhenOthersPending(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	other := seedRecording(t, s)
	_ = other
	e := newTestEngine(s, &fakeGateway{})
	ctx := context.Background()

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	if _, err := e.StartRecording(ctx, &sess, r.ID); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	// Confirm everything in r directly, then advance.
	entries, _ := s.ListEntries(ctx, record.EntryFilter{RecordingID: r.ID})
	for _, en := range entries {
		s.ConfirmEntry(ctx, en.ID)
	}
	resp, err := e.AdvanceToNextEntry(ctx, &sess)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if resp.Action != ActionNothingToReview {
		t.Errorf("action = %q, want nothing_to_review", resp.Action)
	}
	if sess.State != record.StateRecordingSelected {
		t.Errorf("state = %q, want recording_selected while other recordings pending", sess.State)
	}
}

func TestProcess_GatewayRateLimitLeavesStateUnchanged(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	g := &fakeGateway{synthErr: speech.ErrRateLimited}
	e := newTestEngine(s, g)
	ctx := context.Background()

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	e.StartRecording(ctx, &sess, r.ID)
	e.AdvanceToNextEntry(ctx, &sess)
	before := sess.State

	resp, err := e.Process(ctx, &sess, "play")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.Action != ActionFailure {
		t.Errorf("action = %q, want failure", resp.Action)
	}
	if resp.AudioURL != "" {
		t.Error("failure response must not carry audio")
	}
	if sess.State != before {
		t.Errorf("state changed on gateway failure: %q -> %q", before, sess.State)
	}
}

func TestProcess_AudioInputIsTranscribedFirst(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	g := &fakeGateway{transcript: "confirm"}
	e := newTestEngine(s, g)
	ctx := context.Background()

	clip := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(clip, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	e.StartRecording(ctx, &sess, r.ID)
	e.AdvanceToNextEntry(ctx, &sess)

	if _, err := e.Process(ctx, &sess, clip); err != nil {
		t.Fatalf("process: %v", err)
	}
	if sess.State != record.StateConfirming {
		t.Errorf("state = %q, want confirming (transcript interpreted as confirm)", sess.State)
	}
	if sess.Context[record.CtxLastAudioPath] != clip {
		t.Errorf("last audio path = %q, want %q", sess.Context[record.CtxLastAudioPath], clip)
	}

	var user record.Turn
	for _, turn := range sess.History {
		if turn.Role == record.RoleUser {
			user = turn
		}
	}
	if user.Text != "confirm" {
		t.Errorf("user turn text = %q, want transcript", user.Text)
	}
}

func TestProcess_NoUtteranceIsNotAnError(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	g := &fakeGateway{transcript: ""}
	e := newTestEngine(s, g)
	ctx := context.Background()

	clip := filepath.Join(t.TempDir(), "silence.wav")
	if err := os.WriteFile(clip, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	e.StartRecording(ctx, &sess, r.ID)
	e.AdvanceToNextEntry(ctx, &sess)
	before := sess.State

	resp, err := e.Process(ctx, &sess, clip)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.Action != ActionFailure {
		t.Errorf("action = %q, want failure prompt", resp.Action)
	}
	if sess.State != before {
		t.Errorf("state changed on empty transcript: %q -> %q", before, sess.State)
	}
}

func TestProcess_ConfirmingNoReturnsToReview(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	e := newTestEngine(s, &fakeGateway{})
	ctx := context.Background()

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	e.StartRecording(ctx, &sess, r.ID)
	resp, _ := e.AdvanceToNextEntry(ctx, &sess)
	entryID := resp.EntryID

	e.Process(ctx, &sess, "confirm")
	resp, err := e.Process(ctx, &sess, "no")
	if err != nil {
		t.Fatalf("process no: %v", err)
	}
	if sess.State != record.StateReviewingEntry {
		t.Errorf("state = %q, want reviewing_entry", sess.State)
	}
	entry, _ := s.GetEntry(ctx, entryID)
	if entry.Accuracy != record.AccuracyUnconfirmed {
		t.Error("entry must stay unconfirmed after no")
	}
	if _, ok := sess.Context[record.CtxPendingConfirmEntry]; ok {
		t.Error("pending confirmation not cleared")
	}
}

func TestProcess_SpeakerReassign(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	e := newTestEngine(s, &fakeGateway{})
	ctx := context.Background()

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	e.StartRecording(ctx, &sess, r.ID)
	resp, _ := e.AdvanceToNextEntry(ctx, &sess)
	entryID := resp.EntryID

	if _, err := e.Process(ctx, &sess, "speaker: Máire Uí Dhónaill"); err != nil {
		t.Fatalf("process speaker: %v", err)
	}
	if sess.State != record.StateConfirming {
		t.Fatalf("state = %q, want confirming", sess.State)
	}
	if _, err := e.Process(ctx, &sess, "yes"); err != nil {
		t.Fatalf("process yes: %v", err)
	}

	entry, _ := s.GetEntry(ctx, entryID)
	if entry.SpeakerID == "" {
		t.Fatal("entry has no speaker after reassign")
	}
	sp, err := s.GetSpeaker(ctx, entry.SpeakerID)
	if err != nil {
		t.Fatalf("GetSpeaker: %v", err)
	}
	if sp.Name != "Máire Uí Dhónaill" || sp.Provisional {
		t.Errorf("speaker = %+v, want confirmed speaker with given name", sp)
	}
}

func TestProcess_Playback(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	g := &fakeGateway{synthPath: "/tmp/out.wav"}
	e := newTestEngine(s, g)
	ctx := context.Background()

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	e.StartRecording(ctx, &sess, r.ID)
	e.AdvanceToNextEntry(ctx, &sess)

	resp, err := e.Process(ctx, &sess, "play")
	if err != nil {
		t.Fatalf("process play: %v", err)
	}
	if resp.Action != ActionPlayback {
		t.Errorf("action = %q, want playback", resp.Action)
	}
	if resp.AudioURL != "/tmp/out.wav" {
		t.Errorf("audio url = %q", resp.AudioURL)
	}
	if sess.Context[record.CtxLastAudioPath] != "/tmp/out.wav" {
		t.Error("synthesized path not stored in context")
	}
}

func TestSelectRandomUnconfirmed_EmptyQueueLeavesSessionAlone(t *testing.T) {
	s := record.NewMemStore()
	e := newTestEngine(s, &fakeGateway{})
	ctx := context.Background()

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	resp, err := e.SelectRandomUnconfirmed(ctx, &sess)
	if err != nil {
		t.Fatalf("SelectRandomUnconfirmed: %v", err)
	}
	if resp.Action != ActionNothingToReview {
		t.Errorf("action = %q, want nothing_to_review", resp.Action)
	}
	if sess.State != record.StateIdle {
		t.Errorf("state = %q, want idle untouched", sess.State)
	}
}

func TestStartRecording_UnknownRecording(t *testing.T) {
	s := record.NewMemStore()
	e := newTestEngine(s, &fakeGateway{})

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	if _, err := e.StartRecording(context.Background(), &sess, "nope"); err == nil {
		t.Fatal("expected error for unknown recording")
	}
	if sess.State != record.StateIdle {
		t.Errorf("state = %q, want idle untouched", sess.State)
	}
}

func TestReset_TruncatesHistoryAndContext(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	e := newTestEngine(s, &fakeGateway{})
	ctx := context.Background()

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	e.StartRecording(ctx, &sess, r.ID)
	e.AdvanceToNextEntry(ctx, &sess)
	e.Process(ctx, &sess, "confirm")

	resp, err := e.Reset(ctx, &sess)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if sess.State != record.StateIdle || sess.RecordingID != "" || sess.EntryID != "" {
		t.Errorf("session not cleared: %+v", sess)
	}
	if len(sess.Context) != 0 {
		t.Errorf("context not truncated: %v", sess.Context)
	}
	// Only the reset acknowledgement remains in history.
	if len(sess.History) != 1 {
		t.Errorf("history length = %d, want 1", len(sess.History))
	}
	if resp.Action != ActionReset {
		t.Errorf("action = %q, want reset", resp.Action)
	}
}

func TestParseIntent(t *testing.T) {
	cases := []struct {
		in   string
		want intentKind
		arg  string
	}{
		{"confirm", intentConfirm, ""},
		{"Confirm, please", intentConfirm, ""},
		{"skip", intentSkip, ""},
		{"next", intentSkip, ""},
		{"play", intentPlayback, ""},
		{"playback", intentPlayback, ""},
		{"yes", intentYes, ""},
		{"Tá", intentYes, ""},
		{"no", intentNo, ""},
		{"speaker: Máire", intentReassign, "Máire"},
		{"Speaker Máire", intentReassign, "Máire"},
		{"translation: the first sentence", intentTranslate, "the first sentence"},
		{"mumble mumble", intentUnknown, ""},
		{"speaker", intentUnknown, ""},
	}
	for _, c := range cases {
		got := parseIntent(c.in)
		if got.kind != c.want || got.arg != c.arg {
			t.Errorf("parseIntent(%q) = (%v, %q), want (%v, %q)", c.in, got.kind, got.arg, c.want, c.arg)
		}
	}
}

func TestConfirmAndSkipTagTheNextPrompt(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	e := newTestEngine(s, &fakeGateway{})
	ctx := context.Background()

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	if _, err := e.StartRecording(ctx, &sess, r.ID); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if _, err := e.AdvanceToNextEntry(ctx, &sess); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if _, err := e.Process(ctx, &sess, "confirm"); err != nil {
		t.Fatalf("process confirm: %v", err)
	}
	resp, err := e.Process(ctx, &sess, "yes")
	if err != nil {
		t.Fatalf("process yes: %v", err)
	}
	if resp.Action != ActionConfirmed {
		t.Errorf("action after confirm = %q, want %q", resp.Action, ActionConfirmed)
	}
	if resp.EntryID == "" || sess.State != record.StateReviewingEntry {
		t.Fatalf("expected next entry under review, got state %q entry %q", sess.State, resp.EntryID)
	}

	// Confirming the final entry drains the recording, so the exhaustion
	// tag wins over the confirm tag.
	if _, err := e.Process(ctx, &sess, "confirm"); err != nil {
		t.Fatalf("process confirm: %v", err)
	}
	resp, err = e.Process(ctx, &sess, "yes")
	if err != nil {
		t.Fatalf("process yes: %v", err)
	}
	if resp.Action != ActionNothingToReview {
		t.Errorf("action after draining confirm = %q, want %q", resp.Action, ActionNothingToReview)
	}
}

func TestSkipTagsTheNextPrompt(t *testing.T) {
	s := record.NewMemStore()
	r := seedRecording(t, s)
	e := newTestEngine(s, &fakeGateway{})
	ctx := context.Background()

	sess := record.ConversationSession{UserID: "u1", State: record.StateIdle}
	if _, err := e.StartRecording(ctx, &sess, r.ID); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if _, err := e.AdvanceToNextEntry(ctx, &sess); err != nil {
		t.Fatalf("advance: %v", err)
	}

	resp, err := e.Process(ctx, &sess, "skip")
	if err != nil {
		t.Fatalf("process skip: %v", err)
	}
	if resp.Action != ActionSkipped {
		t.Errorf("action after skip = %q, want %q", resp.Action, ActionSkipped)
	}
	if sess.State != record.StateReviewingEntry {
		t.Errorf("state = %q, want reviewing_entry", sess.State)
	}
}
