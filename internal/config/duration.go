package config

import (
	"fmt"
	"time"

	"github.com/titanous/json5"
)

// Duration reads either a Go duration string ("750ms", "2s") or a number of
// milliseconds from a config file.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json5.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(time.Duration(v * float64(time.Millisecond)))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

func (d Duration) std() time.Duration {
	return time.Duration(d)
}
