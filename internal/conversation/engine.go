// Package conversation drives the voice-review workflow as a per-user state
// machine. The engine accepts one input at a time — free text or a path to
// recorded audio — and produces one response; all working state lives on the
// persisted [record.ConversationSession] so a session survives restarts.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/teangalab/beal/internal/record"
	"github.com/teangalab/beal/internal/review"
	"github.com/teangalab/beal/pkg/speech"
)

// Response is the engine's answer to one input. The HTTP layer renders it;
// the engine only fills it in.
type Response struct {
	// Text is the user-visible response.
	Text string `json:"text"`

	// AudioURL points at synthesized audio for the response, if any.
	AudioURL string `json:"audio_url,omitempty"`

	// Action is a presentation hint; see the Action* constants.
	Action string `json:"action"`

	// Data carries action-specific payload (entry fields, candidates, ...).
	Data map[string]any `json:"data,omitempty"`

	// State is the session state after the call.
	State record.SessionState `json:"state"`

	// EntryID is the entry under review after the call, if any.
	EntryID string `json:"entry_id,omitempty"`
}

// Engine implements the review workflow over a shared store, a review queue,
// and the speech gateway. It is stateless itself: every method reads and
// mutates the session it is handed. Callers serialize access per session;
// see [Manager].
type Engine struct {
	store   record.Store
	queue   *review.Queue
	gateway speech.Gateway
	log     *slog.Logger
}

// NewEngine creates an Engine. A nil logger discards logs.
func NewEngine(store record.Store, queue *review.Queue, gateway speech.Gateway, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: store, queue: queue, gateway: gateway, log: log}
}

// StartRecording selects a recording for review and moves the session to
// recording_selected. Returns [record.ErrNotFound] when the recording does
// not exist; the session is left unchanged in that case.
func (e *Engine) StartRecording(ctx context.Context, sess *record.ConversationSession, recordingID string) (Response, error) {
	r, err := e.store.GetRecording(ctx, recordingID)
	if err != nil {
		return Response{}, fmt.Errorf("conversation: start recording: %w", err)
	}

	sess.RecordingID = r.ID
	sess.EntryID = ""
	sess.State = record.StateRecordingSelected
	clearPending(sess)

	text := fmt.Sprintf("Reviewing %q. Say \"next\" to hear the first segment needing review.", r.Title)
	return e.respond(sess, Response{Text: text, Action: ActionGuidance}), nil
}

// SelectRandomUnconfirmed picks one unconfirmed entry uniformly at random
// across all extracted recordings and starts reviewing it. With nothing to
// review it returns a no-op response and leaves the session unchanged.
func (e *Engine) SelectRandomUnconfirmed(ctx context.Context, sess *record.ConversationSession) (Response, error) {
	entry, ok, err := e.queue.RandomUnconfirmed(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("conversation: select random: %w", err)
	}
	if !ok {
		return e.respond(sess, Response{
			Text:   "There is nothing left to review. Maith thú!",
			Action: ActionNothingToReview,
		}), nil
	}
	return e.reviewEntry(sess, entry), nil
}

// Process interprets one input against the current state. Audio input (a
// path to an existing local file) is transcribed first; the transcript
// becomes the turn's text. Both the input and the produced response are
// appended to the conversation history.
//
// Gateway failures fold into a user-visible response and leave the session
// state unchanged so the user can retry the same step.
func (e *Engine) Process(ctx context.Context, sess *record.ConversationSession, input string) (Response, error) {
	text := input
	if isLocalFile(input) {
		setContext(sess, record.CtxLastAudioPath, input)
		transcript, err := e.gateway.Transcribe(ctx, input)
		if err != nil {
			e.log.Warn("transcription failed", "user", sess.UserID, "err", err)
			return e.respond(sess, Response{Text: failureText(err), Action: ActionFailure}), nil
		}
		if transcript == "" {
			return e.respond(sess, Response{
				Text:   "I could not make out any speech in that clip. Try again?",
				Action: ActionFailure,
			}), nil
		}
		text = transcript
	}

	e.appendTurn(sess, record.RoleUser, text)

	switch sess.State {
	case record.StateIdle:
		return e.processIdle(ctx, sess, text)
	case record.StateRecordingSelected:
		return e.AdvanceToNextEntry(ctx, sess)
	case record.StateReviewingEntry:
		return e.processReviewing(ctx, sess, text)
	case record.StateConfirming:
		return e.processConfirming(ctx, sess, text)
	}
	// Unknown persisted state: recover instead of wedging the session.
	e.log.Warn("session in unknown state, resetting", "user", sess.UserID, "state", sess.State)
	return e.Reset(ctx, sess)
}

func (e *Engine) processIdle(ctx context.Context, sess *record.ConversationSession, text string) (Response, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "random" || t == "review" || strings.Contains(t, "something to review") {
		return e.SelectRandomUnconfirmed(ctx, sess)
	}
	return e.respond(sess, Response{
		Text:   "Pick a recording to review, or say \"random\" and I will find a segment for you.",
		Action: ActionGuidance,
	}), nil
}

func (e *Engine) processReviewing(ctx context.Context, sess *record.ConversationSession, text string) (Response, error) {
	in := parseIntent(text)
	switch in.kind {
	case intentConfirm:
		setContext(sess, record.CtxPendingConfirmEntry, sess.EntryID)
		setContext(sess, record.CtxLastAction, "confirm")
		sess.State = record.StateConfirming
		return e.respond(sess, Response{
			Text:   "Mark this segment as confirmed? Say yes or no.",
			Action: ActionAwaitConfirm,
		}), nil

	case intentReassign:
		setContext(sess, record.CtxPendingConfirmEntry, sess.EntryID)
		setContext(sess, record.CtxPendingSpeaker, in.arg)
		setContext(sess, record.CtxLastAction, "reassign")
		sess.State = record.StateConfirming
		return e.respond(sess, Response{
			Text:   fmt.Sprintf("Assign this segment to %q? Say yes or no.", in.arg),
			Action: ActionAwaitConfirm,
		}), nil

	case intentSkip:
		e.appendTurn(sess, record.RoleEngine, "Skipping.")
		resp, err := e.AdvanceToNextEntry(ctx, sess)
		if err == nil && resp.Action == ActionReviewEntry {
			resp.Action = ActionSkipped
		}
		return resp, err

	case intentPlayback:
		return e.playback(ctx, sess)

	case intentTranslate:
		return e.setTranslation(ctx, sess, in.arg)
	}

	return e.respond(sess, Response{
		Text:   "You can say confirm, skip, play, \"speaker: name\", or \"translation: text\".",
		Action: ActionGuidance,
	}), nil
}

func (e *Engine) processConfirming(ctx context.Context, sess *record.ConversationSession, text string) (Response, error) {
	in := parseIntent(text)
	switch in.kind {
	case intentYes:
		return e.applyPending(ctx, sess)
	case intentNo:
		clearPending(sess)
		sess.State = record.StateReviewingEntry
		return e.respond(sess, Response{Text: "Alright, not changed.", Action: ActionGuidance}), nil
	}
	return e.respond(sess, Response{Text: "Please answer yes or no.", Action: ActionAwaitConfirm}), nil
}

// applyPending executes the action staged in the context map, then advances.
func (e *Engine) applyPending(ctx context.Context, sess *record.ConversationSession) (Response, error) {
	entryID := sess.Context[record.CtxPendingConfirmEntry]
	action := sess.Context[record.CtxLastAction]
	pendingSpeaker := sess.Context[record.CtxPendingSpeaker]
	clearPending(sess)

	switch action {
	case "confirm":
		if err := e.store.ConfirmEntry(ctx, entryID); err != nil {
			sess.State = record.StateReviewingEntry
			e.log.Warn("confirm failed", "user", sess.UserID, "entry", entryID, "err", err)
			return e.respond(sess, Response{Text: failureText(err), Action: ActionFailure}), nil
		}
		e.appendTurn(sess, record.RoleEngine, "Confirmed.")
		resp, err := e.AdvanceToNextEntry(ctx, sess)
		if err == nil && resp.Action == ActionReviewEntry {
			resp.Action = ActionConfirmed
		}
		return resp, err

	case "reassign":
		if err := e.reassignSpeaker(ctx, entryID, pendingSpeaker); err != nil {
			sess.State = record.StateReviewingEntry
			e.log.Warn("speaker reassign failed", "user", sess.UserID, "entry", entryID, "err", err)
			return e.respond(sess, Response{Text: failureText(err), Action: ActionFailure}), nil
		}
		sess.State = record.StateReviewingEntry
		return e.respond(sess, Response{
			Text:   fmt.Sprintf("Segment assigned to %q.", pendingSpeaker),
			Action: ActionSpeakerSet,
		}), nil
	}

	sess.State = record.StateReviewingEntry
	return e.respond(sess, Response{Text: "Nothing was pending.", Action: ActionGuidance}), nil
}

// reassignSpeaker points the entry at the named confirmed speaker, creating
// the speaker when no confirmed speaker with that exact name exists yet.
func (e *Engine) reassignSpeaker(ctx context.Context, entryID, name string) error {
	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}

	confirmed := false
	speakers, err := e.store.ListSpeakers(ctx, record.SpeakerFilter{Provisional: &confirmed})
	if err != nil {
		return err
	}
	var target record.Speaker
	for _, sp := range speakers {
		if strings.EqualFold(sp.Name, name) {
			target = sp
			break
		}
	}
	if target.ID == "" {
		target, err = e.store.CreateSpeaker(ctx, record.Speaker{Name: name})
		if err != nil {
			return err
		}
	}

	entry.SpeakerID = target.ID
	return e.store.UpdateEntry(ctx, entry)
}

// playback synthesizes the current entry's translation (or transcription
// when no translation exists) and returns the audio path as the response's
// audio URL.
func (e *Engine) playback(ctx context.Context, sess *record.ConversationSession) (Response, error) {
	entry, err := e.store.GetEntry(ctx, sess.EntryID)
	if err != nil {
		return e.respond(sess, Response{Text: failureText(err), Action: ActionFailure}), nil
	}

	text := entry.Translation
	if text == "" {
		text = entry.Transcription
	}
	path, err := e.gateway.SynthesizeToFile(ctx, text)
	if err != nil {
		e.log.Warn("playback synthesis failed", "user", sess.UserID, "entry", entry.ID, "err", err)
		return e.respond(sess, Response{Text: failureText(err), Action: ActionFailure}), nil
	}
	setContext(sess, record.CtxLastAudioPath, path)

	return e.respond(sess, Response{
		Text:     "Here is the segment.",
		AudioURL: path,
		Action:   ActionPlayback,
		Data:     entryData(entry),
	}), nil
}

func (e *Engine) setTranslation(ctx context.Context, sess *record.ConversationSession, translation string) (Response, error) {
	entry, err := e.store.GetEntry(ctx, sess.EntryID)
	if err != nil {
		return e.respond(sess, Response{Text: failureText(err), Action: ActionFailure}), nil
	}
	entry.Translation = translation
	if err := e.store.UpdateEntry(ctx, entry); err != nil {
		return e.respond(sess, Response{Text: failureText(err), Action: ActionFailure}), nil
	}
	return e.respond(sess, Response{
		Text:   fmt.Sprintf("Translation noted: %q.", translation),
		Action: ActionTranslationSet,
		Data:   entryData(entry),
	}), nil
}

// AdvanceToNextEntry asks the review queue for the next entry in the active
// recording. When the recording is exhausted the session falls back to
// recording_selected if other recordings still need review, or to idle when
// nothing remains anywhere.
func (e *Engine) AdvanceToNextEntry(ctx context.Context, sess *record.ConversationSession) (Response, error) {
	entry, ok, err := e.queue.Next(ctx, sess.RecordingID)
	if err != nil {
		return Response{}, fmt.Errorf("conversation: advance: %w", err)
	}
	if ok {
		return e.reviewEntry(sess, entry), nil
	}

	sess.EntryID = ""
	pending, err := e.queue.PendingRecordings(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("conversation: advance: %w", err)
	}
	if len(pending) > 0 {
		sess.State = record.StateRecordingSelected
		return e.respond(sess, Response{
			Text:   fmt.Sprintf("This recording is fully reviewed. %d other recording(s) still need attention — say \"random\" to continue.", len(pending)),
			Action: ActionNothingToReview,
		}), nil
	}

	sess.RecordingID = ""
	sess.State = record.StateIdle
	return e.respond(sess, Response{
		Text:   "Everything is reviewed. There is nothing more to do.",
		Action: ActionNothingToReview,
	}), nil
}

// Reset clears all transient session fields and returns to idle. History is
// truncated; this is the only operation that drops it.
func (e *Engine) Reset(ctx context.Context, sess *record.ConversationSession) (Response, error) {
	sess.RecordingID = ""
	sess.EntryID = ""
	sess.History = nil
	sess.Context = nil
	sess.State = record.StateIdle
	return e.respond(sess, Response{Text: "Session reset. Tosaímis arís.", Action: ActionReset}), nil
}

// reviewEntry moves the session onto entry and produces the review prompt.
func (e *Engine) reviewEntry(sess *record.ConversationSession, entry record.DictionaryEntry) Response {
	sess.RecordingID = entry.RecordingID
	sess.EntryID = entry.ID
	sess.State = record.StateReviewingEntry
	clearPending(sess)

	text := fmt.Sprintf("Segment %.1fs–%.1fs: %q. Confirm, skip, play, or correct it.",
		entry.Start, entry.End, entry.Transcription)
	return e.respond(sess, Response{
		Text:   text,
		Action: ActionReviewEntry,
		Data:   entryData(entry),
	})
}

// respond appends the engine turn to history and stamps the response with
// the session's current state.
func (e *Engine) respond(sess *record.ConversationSession, resp Response) Response {
	e.appendTurn(sess, record.RoleEngine, resp.Text)
	resp.State = sess.State
	resp.EntryID = sess.EntryID
	return resp
}

func (e *Engine) appendTurn(sess *record.ConversationSession, role record.TurnRole, text string) {
	sess.History = append(sess.History, record.Turn{Role: role, Text: text, At: time.Now().UTC()})
	sess.UpdatedAt = time.Now().UTC()
}

func entryData(entry record.DictionaryEntry) map[string]any {
	return map[string]any{
		"entry_id":      entry.ID,
		"recording_id":  entry.RecordingID,
		"start":         entry.Start,
		"end":           entry.End,
		"transcription": entry.Transcription,
		"translation":   entry.Translation,
		"accuracy":      string(entry.Accuracy),
	}
}

func setContext(sess *record.ConversationSession, key, value string) {
	if sess.Context == nil {
		sess.Context = make(map[string]string)
	}
	sess.Context[key] = value
}

func clearPending(sess *record.ConversationSession) {
	delete(sess.Context, record.CtxPendingConfirmEntry)
	delete(sess.Context, record.CtxPendingSpeaker)
	delete(sess.Context, record.CtxLastAction)
}

// failureText folds a structured error into user-facing phrasing. Raw
// provider bodies never reach the user.
func failureText(err error) string {
	switch {
	case errors.Is(err, speech.ErrRateLimited):
		return "The speech service is busy right now. Give it a moment and try again."
	case errors.Is(err, speech.ErrServiceUnavailable):
		return "The speech service is unavailable. Try again shortly."
	case errors.Is(err, speech.ErrInvalidInput):
		return "There was nothing there to work with."
	case errors.Is(err, record.ErrNotFound):
		return "I could not find that one."
	}
	return "Something went wrong on our side. Try again."
}

// isLocalFile reports whether input names an existing regular file, which
// the engine treats as recorded audio rather than text.
func isLocalFile(input string) bool {
	if input == "" || strings.ContainsAny(input, "\n\r") {
		return false
	}
	fi, err := os.Stat(input)
	return err == nil && fi.Mode().IsRegular()
}
