package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultJobTimeout = 30 * time.Second
	jobsPath          = "/v1/jobs"
)

// ClientConfig holds configuration for the diarization job client.
type ClientConfig struct {
	// BaseURL is the provider endpoint.
	BaseURL string

	// APIKey authenticates job submissions.
	APIKey string

	// CallbackBaseURL is this service's public base URL; the provider
	// appends nothing — the full per-recording callback path is built here.
	CallbackBaseURL string

	// Timeout bounds the job-submission request. Defaults to 30s.
	Timeout time.Duration
}

// Client starts diarization jobs with the external provider. Results arrive
// later via webhook; see [Reconciler].
type Client struct {
	cfg ClientConfig
	hc  *http.Client
}

// NewClient creates a Client. BaseURL must be non-empty.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("diarize: base url must not be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultJobTimeout
	}
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// jobRequest is the JSON body submitted to the provider.
type jobRequest struct {
	AudioURL    string `json:"audio_url"`
	CallbackURL string `json:"callback_url"`
}

// jobResponse carries the provider-assigned job id.
type jobResponse struct {
	JobID string `json:"job_id"`
}

// StartJob submits the media at mediaURL for diarization and returns the
// provider's job id. Callbacks for the job are delivered to this service's
// per-recording webhook path.
func (c *Client) StartJob(ctx context.Context, recordingID, mediaURL string) (string, error) {
	body, err := json.Marshal(jobRequest{
		AudioURL:    mediaURL,
		CallbackURL: fmt.Sprintf("%s/api/recordings/%s/diarization", c.cfg.CallbackBaseURL, recordingID),
	})
	if err != nil {
		return "", fmt.Errorf("diarize: start job: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+jobsPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("diarize: start job: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("diarize: start job: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("diarize: start job: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("diarize: start job: provider returned status %d: %s", resp.StatusCode, data)
	}

	var jr jobResponse
	if err := json.Unmarshal(data, &jr); err != nil {
		return "", fmt.Errorf("diarize: start job: decode response: %w", err)
	}
	if jr.JobID == "" {
		return "", errors.New("diarize: start job: provider returned no job id")
	}
	return jr.JobID, nil
}
