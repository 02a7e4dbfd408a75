// Package abair provides the HTTP-backed speech gateway for the ABAIR Irish
// speech services. It implements [speech.Gateway]: JSON synthesis and
// recognition requests with the provider's status codes normalised into the
// speech error taxonomy. The gateway never retries; retry policy belongs to
// callers.
package abair

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/teangalab/beal/pkg/audio"
	"github.com/teangalab/beal/pkg/speech"
)

const (
	defaultBaseURL = "https://api.abair.ie/v2"
	synthesisPath  = "/synthesise"
	recognisePath  = "/recognise"

	// Recognition uploads are far larger than synthesis requests, so the
	// recognition client gets its own, longer timeout.
	defaultSynthesisTimeout   = 15 * time.Second
	defaultRecognitionTimeout = 90 * time.Second

	languageCode  = "ga-IE"
	audioEncoding = "LINEAR16"

	// recognitionMethod is the fixed recognition-method selector the
	// provider expects with every request.
	recognitionMethod = "dnn"
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithBaseURL overrides the provider endpoint, e.g. for a staging deployment
// or an httptest server.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTimeouts overrides the synthesis and recognition request timeouts.
func WithTimeouts(synthesis, recognition time.Duration) Option {
	return func(c *Client) {
		c.synthesisTimeout = synthesis
		c.recognitionTimeout = recognition
	}
}

// WithInsecureTLS disables certificate validation on connections to the
// provider. The public ABAIR endpoint has historically served a certificate
// chain that some trust stores reject, so deployments may need this for
// compatibility. It is off unless explicitly requested, and should be
// tightened per deployment.
func WithInsecureTLS() Option {
	return func(c *Client) {
		c.insecureTLS = true
	}
}

// WithTempDir sets the directory used for synthesized files and transcode
// output. Defaults to the system temp directory.
func WithTempDir(dir string) Option {
	return func(c *Client) {
		c.tmpDir = dir
	}
}

// Client implements [speech.Gateway] against the ABAIR HTTP API.
type Client struct {
	baseURL            string
	voiceName          string
	gender             speech.Gender
	synthesisTimeout   time.Duration
	recognitionTimeout time.Duration
	insecureTLS        bool
	tmpDir             string

	synth *http.Client
	recog *http.Client
}

// Compile-time assertion that Client satisfies the gateway interface.
var _ speech.Gateway = (*Client)(nil)

// New creates a Client for the given dialect and gender. Unsupported
// pairings fail here with a [*speech.ConfigError]; no network call is ever
// attempted for a misconfigured client.
func New(dialect speech.Dialect, gender speech.Gender, opts ...Option) (*Client, error) {
	voice, err := speech.VoiceFor(dialect, gender)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:            defaultBaseURL,
		voiceName:          voice,
		gender:             gender,
		synthesisTimeout:   defaultSynthesisTimeout,
		recognitionTimeout: defaultRecognitionTimeout,
	}
	for _, o := range opts {
		o(c)
	}

	transport := http.DefaultTransport
	if c.insecureTLS {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	c.synth = &http.Client{Timeout: c.synthesisTimeout, Transport: transport}
	c.recog = &http.Client{Timeout: c.recognitionTimeout, Transport: transport}
	return c, nil
}

// ---- wire types ----

// synthesisRequest is the JSON body for a synthesis call.
type synthesisRequest struct {
	Input       synthesisInput  `json:"input"`
	Voice       synthesisVoice  `json:"voice"`
	AudioConfig synthesisConfig `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type synthesisVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	Gender       string `json:"ssmlGender"`
}

type synthesisConfig struct {
	Encoding        string  `json:"audioEncoding"`
	SampleRateHertz int     `json:"sampleRateHertz"`
	VolumeGainDb    float64 `json:"volumeGainDb"`
}

// synthesisResponse carries the base64-encoded audio returned on success.
type synthesisResponse struct {
	AudioContent string `json:"audioContent"`
}

// recognitionRequest is the JSON body for a recognition call. The audio blob
// must be base64-encoded mono 16 kHz 16-bit PCM.
type recognitionRequest struct {
	RecogniseBlob string `json:"recogniseBlob"`
	Method        string `json:"method"`
}

// recognitionResponse lists the provider's transcription hypotheses. Only
// the first utterance is consumed.
type recognitionResponse struct {
	Transcriptions []struct {
		Utterance string `json:"utterance"`
	} `json:"transcriptions"`
}

// ---- speech.Gateway ----

// Synthesize implements [speech.Synthesizer]. It returns the decoded audio
// bytes for text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("abair: synthesize: blank text: %w", speech.ErrInvalidInput)
	}

	body := synthesisRequest{
		Input: synthesisInput{Text: text},
		Voice: synthesisVoice{
			LanguageCode: languageCode,
			Name:         c.voiceName,
			Gender:       strings.ToUpper(string(c.gender)),
		},
		AudioConfig: synthesisConfig{
			Encoding:        audioEncoding,
			SampleRateHertz: audio.RecognitionSampleRate,
			VolumeGainDb:    0,
		},
	}

	data, err := c.post(ctx, c.synth, synthesisPath, body)
	if err != nil {
		return nil, fmt.Errorf("abair: synthesize: %w", err)
	}

	pcm, err := parseSynthesisResponse(data)
	if err != nil {
		return nil, fmt.Errorf("abair: synthesize: %w", err)
	}
	return pcm, nil
}

// SynthesizeToFile implements [speech.Synthesizer]. The audio is written to
// a hidden temporary name first and renamed into place, so the returned path
// never refers to a partially written file.
func (c *Client) SynthesizeToFile(ctx context.Context, text string) (string, error) {
	pcm, err := c.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}

	dir := c.tmpDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "abair-*.wav.partial")
	if err != nil {
		return "", fmt.Errorf("abair: synthesize to file: %w", err)
	}
	if _, err := f.Write(pcm); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("abair: synthesize to file: write: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("abair: synthesize to file: close: %w", err)
	}

	final := strings.TrimSuffix(f.Name(), ".partial")
	if err := os.Rename(f.Name(), final); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("abair: synthesize to file: rename: %w", err)
	}
	return final, nil
}

// Transcribe implements [speech.Recognizer]. When audio names an existing
// local file it is transcoded to the fixed recognition format and
// base64-encoded; any other string is treated as an already-encoded payload
// and sent as-is.
func (c *Client) Transcribe(ctx context.Context, audioRef string) (string, error) {
	if strings.TrimSpace(audioRef) == "" {
		return "", fmt.Errorf("abair: transcribe: empty audio reference: %w", speech.ErrInvalidInput)
	}

	blob := audioRef
	if _, err := os.Stat(audioRef); err == nil {
		converted, err := audio.TranscodeForRecognition(ctx, audioRef, c.tmpDir)
		if err != nil {
			return "", fmt.Errorf("abair: transcribe: %w", err)
		}
		raw, err := os.ReadFile(converted)
		if err != nil {
			return "", fmt.Errorf("abair: transcribe: read transcoded audio: %w", err)
		}
		blob = base64.StdEncoding.EncodeToString(raw)
	}

	body := recognitionRequest{RecogniseBlob: blob, Method: recognitionMethod}
	data, err := c.post(ctx, c.recog, recognisePath, body)
	if err != nil {
		return "", fmt.Errorf("abair: transcribe: %w", err)
	}

	utterance, err := parseRecognitionResponse(data)
	if err != nil {
		return "", fmt.Errorf("abair: transcribe: %w", err)
	}
	return utterance, nil
}

// Probe implements [speech.Gateway]. The provider is considered reachable
// when it answers anything below 500.
func (c *Client) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+synthesisPath, nil)
	if err != nil {
		return false
	}
	resp, err := c.synth.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// ---- helpers ----

// post issues a JSON POST and returns the response body on HTTP 200. Other
// statuses are mapped through [mapStatus].
func (c *Client) post(ctx context.Context, client *http.Client, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapStatus(resp.StatusCode, data)
	}
	return data, nil
}

// mapStatus translates a non-200 provider status into the speech error
// taxonomy so callers can distinguish transient conditions.
func mapStatus(status int, body []byte) error {
	switch status {
	case http.StatusTooManyRequests:
		return speech.ErrRateLimited
	case http.StatusServiceUnavailable:
		return speech.ErrServiceUnavailable
	default:
		return &speech.ServiceError{Status: status, Body: string(body)}
	}
}

// parseSynthesisResponse extracts and decodes the base64 audio field from a
// successful synthesis response.
func parseSynthesisResponse(data []byte) ([]byte, error) {
	var sr synthesisResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if sr.AudioContent == "" {
		return nil, errors.New("response has no audio content")
	}
	pcm, err := base64.StdEncoding.DecodeString(sr.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return pcm, nil
}

// parseRecognitionResponse extracts the first utterance from a successful
// recognition response. An empty transcription list is a valid negative
// result ("", nil); a body that does not decode is an error.
func parseRecognitionResponse(data []byte) (string, error) {
	var rr recognitionResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return "", fmt.Errorf("decode recognition response: %w", err)
	}
	if len(rr.Transcriptions) == 0 {
		return "", nil
	}
	return rr.Transcriptions[0].Utterance, nil
}
