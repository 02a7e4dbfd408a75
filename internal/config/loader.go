package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teangalab/beal/pkg/speech"
)

// Defaults applied by [Validate] when fields are left empty.
const (
	DefaultListenAddr         = ":8080"
	DefaultSynthesisTimeout   = Duration(15 * time.Second)
	DefaultRecognitionTimeout = Duration(90 * time.Second)
	DefaultProbeSpec          = "0 * * * *"
	DefaultAutoDiarizeSpec    = "30 3 * * *"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown YAML fields are rejected so typos surface at startup. Useful in
// tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for empty fields. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Speech.Dialect == "" {
		cfg.Speech.Dialect = speech.DefaultDialect
	} else if !cfg.Speech.Dialect.IsValid() {
		errs = append(errs, fmt.Errorf("speech.dialect %q is invalid; valid values: connacht, munster, ulster", cfg.Speech.Dialect))
	}
	if cfg.Speech.Gender == "" {
		cfg.Speech.Gender = speech.GenderFemale
	} else if !cfg.Speech.Gender.IsValid() {
		errs = append(errs, fmt.Errorf("speech.gender %q is invalid; valid values: female, male", cfg.Speech.Gender))
	}
	// Unsupported dialect/gender pairings fail here rather than at the
	// first synthesis call.
	if cfg.Speech.Dialect.IsValid() && cfg.Speech.Gender.IsValid() {
		if _, err := speech.VoiceFor(cfg.Speech.Dialect, cfg.Speech.Gender); err != nil {
			errs = append(errs, fmt.Errorf("speech: %w", err))
		}
	}
	if cfg.Speech.SynthesisTimeout == 0 {
		cfg.Speech.SynthesisTimeout = DefaultSynthesisTimeout
	}
	if cfg.Speech.RecognitionTimeout == 0 {
		cfg.Speech.RecognitionTimeout = DefaultRecognitionTimeout
	}
	if cfg.Speech.SynthesisTimeout < 0 || cfg.Speech.RecognitionTimeout < 0 {
		errs = append(errs, errors.New("speech timeouts must not be negative"))
	}

	if cfg.Diarization.BaseURL != "" && cfg.Server.PublicBaseURL == "" {
		errs = append(errs, errors.New("server.public_base_url is required when diarization.base_url is set; the provider needs a callback target"))
	}

	if cfg.Schedule.ProbeSpec == "" {
		cfg.Schedule.ProbeSpec = DefaultProbeSpec
	}
	if cfg.Schedule.AutoDiarizeSpec == "" {
		cfg.Schedule.AutoDiarizeSpec = DefaultAutoDiarizeSpec
	}

	return errors.Join(errs...)
}
