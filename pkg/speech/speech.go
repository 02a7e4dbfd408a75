// Package speech defines the domain-facing interface to the remote Irish
// speech provider: text-to-speech synthesis and speech-to-text recognition.
// It holds the dialect/gender voice table and the error taxonomy shared by
// all implementations. The HTTP-backed implementation lives in
// [github.com/teangalab/beal/pkg/speech/abair].
package speech

import "context"

// Dialect selects one of the regional Irish varieties the provider offers.
type Dialect string

const (
	DialectConnacht Dialect = "connacht"
	DialectMunster  Dialect = "munster"
	DialectUlster   Dialect = "ulster"
)

// IsValid reports whether d is a recognised dialect.
func (d Dialect) IsValid() bool {
	switch d {
	case DialectConnacht, DialectMunster, DialectUlster:
		return true
	}
	return false
}

// DefaultDialect is used when no dialect is configured.
const DefaultDialect = DialectConnacht

// Gender selects a synthetic voice gender.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// IsValid reports whether g is a recognised gender.
func (g Gender) IsValid() bool {
	return g == GenderFemale || g == GenderMale
}

// voiceKey identifies one entry in the voice table.
type voiceKey struct {
	dialect Dialect
	gender  Gender
}

// voices maps each supported (dialect, gender) pair to the provider's fixed
// voice name. Pairs absent from this table are not offered by the provider;
// requesting one is a configuration error, not a runtime one.
var voices = map[voiceKey]string{
	{DialectConnacht, GenderFemale}: "ga_CO_snc_nnmnkwii",
	{DialectConnacht, GenderMale}:   "ga_CO_pmg_nnmnkwii",
	{DialectMunster, GenderFemale}:  "ga_MU_nnc_nnmnkwii",
	{DialectMunster, GenderMale}:    "ga_MU_dms_nnmnkwii",
	{DialectUlster, GenderFemale}:   "ga_UL_anb_nnmnkwii",
}

// VoiceFor resolves the fixed voice name for a (dialect, gender) pair.
// It returns a [*ConfigError] when the pair is not in the supported set.
func VoiceFor(d Dialect, g Gender) (string, error) {
	if d == "" {
		d = DefaultDialect
	}
	if !d.IsValid() {
		return "", &ConfigError{Field: "dialect", Value: string(d)}
	}
	if !g.IsValid() {
		return "", &ConfigError{Field: "gender", Value: string(g)}
	}
	name, ok := voices[voiceKey{d, g}]
	if !ok {
		return "", &ConfigError{Field: "dialect/gender", Value: string(d) + "/" + string(g)}
	}
	return name, nil
}

// Synthesizer converts Irish text into encoded audio.
type Synthesizer interface {
	// Synthesize returns the encoded audio for text.
	// Blank text fails with [ErrInvalidInput] before any network call.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// SynthesizeToFile synthesizes text and writes the decoded audio to a
	// generated temporary path, returning that path. The file is fully
	// written before the call returns, or not created at all.
	SynthesizeToFile(ctx context.Context, text string) (string, error)
}

// Recognizer converts recorded audio into Irish text.
type Recognizer interface {
	// Transcribe accepts either a path to a local audio file or an
	// already-encoded audio payload. It returns the first recognised
	// utterance, or "" with a nil error when the provider recognised
	// nothing — an empty transcription is a valid negative result.
	Transcribe(ctx context.Context, audio string) (string, error)
}

// Gateway is the full bidirectional speech service used by the conversation
// engine and the scheduled health probe.
type Gateway interface {
	Synthesizer
	Recognizer

	// Probe reports whether the provider endpoint is reachable.
	Probe(ctx context.Context) bool
}
