package jsontime

import (
	"time"

	"github.com/goccy/go-yaml"
)

// MarshalYAML implements yaml.BytesMarshaler for goccy/go-yaml.
func (d Duration) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(time.Duration(d).String())
}

// UnmarshalYAML implements yaml.BytesUnmarshaler. Like the JSON form it
// accepts a duration string ("10m") or an int64 nanosecond count.
func (d *Duration) UnmarshalYAML(b []byte) error {
	var n int64
	if err := yaml.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var s string
	if err := yaml.Unmarshal(b, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
