package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that unmarshals from YAML strings like
// "90s" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements [yaml.Marshaler].
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
