package conversation

import "strings"

// Action tags returned to clients alongside the response text. The HTTP
// layer uses them as presentation hints; the engine never branches on them.
// ActionConfirmed and ActionSkipped tag the review prompt that follows a
// completed confirm or skip, so clients can acknowledge the previous entry
// while presenting the next one.
const (
	ActionGuidance        = "guidance"
	ActionReviewEntry     = "review_entry"
	ActionAwaitConfirm    = "await_confirm"
	ActionConfirmed       = "confirmed"
	ActionSkipped         = "skipped"
	ActionPlayback        = "playback"
	ActionSpeakerSet      = "speaker_set"
	ActionTranslationSet  = "translation_set"
	ActionNothingToReview = "nothing_to_review"
	ActionReset           = "reset"
	ActionFailure         = "failure"
)

// intent is the engine's interpretation of one free-text input while an
// entry is under review.
type intent struct {
	kind intentKind
	arg  string
}

type intentKind int

const (
	intentUnknown intentKind = iota
	intentConfirm
	intentSkip
	intentPlayback
	intentReassign
	intentTranslate
	intentYes
	intentNo
)

// parseIntent maps free text onto the review-time command set. Matching is
// case-insensitive and tolerant of trailing chatter so recognised speech
// like "Confirm, please" still lands on the right command.
func parseIntent(text string) intent {
	orig := strings.Trim(strings.TrimSpace(text), ".!?,")
	t := strings.ToLower(orig)

	switch {
	case t == "yes" || t == "yeah" || t == "tá" || t == "sea":
		return intent{kind: intentYes}
	case t == "no" || t == "níl" || t == "ní hea":
		return intent{kind: intentNo}
	case t == "confirm" || strings.HasPrefix(t, "confirm"):
		return intent{kind: intentConfirm}
	case t == "skip" || t == "next" || strings.HasPrefix(t, "skip"):
		return intent{kind: intentSkip}
	case t == "play" || t == "playback" || t == "listen" || strings.HasPrefix(t, "play"):
		return intent{kind: intentPlayback}
	}

	if arg, ok := commandArg(t, orig, "speaker"); ok {
		return intent{kind: intentReassign, arg: arg}
	}
	if arg, ok := commandArg(t, orig, "translation"); ok {
		return intent{kind: intentTranslate, arg: arg}
	}
	if arg, ok := commandArg(t, orig, "translate"); ok {
		return intent{kind: intentTranslate, arg: arg}
	}
	return intent{kind: intentUnknown}
}

// commandArg extracts the argument of a "command: argument" or
// "command argument" input. The argument keeps the original casing.
func commandArg(lowered, original, command string) (string, bool) {
	if !strings.HasPrefix(lowered, command) {
		return "", false
	}
	rest := strings.TrimSpace(original[len(command):])
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
	if rest == "" {
		return "", false
	}
	return rest, true
}
