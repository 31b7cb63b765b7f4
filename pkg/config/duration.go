package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML's human-readable
// duration strings ("90m", "5s") instead of requiring raw nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler (yaml.v3 node-based form).
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library time.Duration equivalent.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
