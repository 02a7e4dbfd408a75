// Package config provides the configuration schema and loader for the béal
// voice-review service.
package config

import (
	"github.com/teangalab/beal/pkg/speech"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Speech      SpeechConfig      `yaml:"speech"`
	Diarization DiarizationConfig `yaml:"diarization"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// PublicBaseURL is the externally reachable base URL of this service,
	// used to build diarization callback URLs.
	PublicBaseURL string `yaml:"public_base_url"`
}

// DatabaseConfig selects the entity store backend.
type DatabaseConfig struct {
	// PostgresDSN is the Postgres connection string. When empty the service
	// runs on the in-memory store, which does not survive restarts.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// SpeechConfig configures the speech synthesis/recognition gateway.
type SpeechConfig struct {
	// Dialect selects the voice's regional variety. Default: connacht.
	Dialect speech.Dialect `yaml:"dialect"`

	// Gender selects the voice gender. Default: female.
	Gender speech.Gender `yaml:"gender"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// InsecureTLS accepts the provider's certificate without validation.
	// A compatibility accommodation for the provider's endpoint; tighten
	// per deployment.
	InsecureTLS bool `yaml:"insecure_tls"`

	// SynthesisTimeout bounds synthesis requests.
	SynthesisTimeout Duration `yaml:"synthesis_timeout"`

	// RecognitionTimeout bounds transcription requests. Audio uploads are
	// larger, so this defaults higher than SynthesisTimeout.
	RecognitionTimeout Duration `yaml:"recognition_timeout"`

	// TempDir is where synthesized and transcoded audio files are written.
	// Empty means the system temp directory.
	TempDir string `yaml:"temp_dir"`
}

// DiarizationConfig configures the external diarization job provider.
type DiarizationConfig struct {
	// BaseURL is the provider endpoint. Empty disables job submission;
	// webhook ingestion still works.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates job submissions.
	APIKey string `yaml:"api_key"`

	// Timeout bounds job-submission requests.
	Timeout Duration `yaml:"timeout"`
}

// ScheduleConfig configures the maintenance job runner.
type ScheduleConfig struct {
	// ProbeSpec is the cron spec for the speech provider health probe.
	// Default: hourly.
	ProbeSpec string `yaml:"probe_spec"`

	// AutoDiarizeSpec is the cron spec for picking one recording without a
	// diarization job and submitting it. Default: nightly.
	AutoDiarizeSpec string `yaml:"auto_diarize_spec"`

	// Disabled turns off all scheduled jobs.
	Disabled bool `yaml:"disabled"`
}
