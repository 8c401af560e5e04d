package mode

import (
	"fmt"
	"strings"
)

// Mode selects whether dynamic lights are tracked and how often a single
// source may be recomputed.
type Mode int

const (
	Off Mode = iota
	Fastest
	Fast
	Fancy
)

func (m Mode) Enabled() bool { return m != Off }

func (m Mode) HasDelay() bool { return m.DelayMillis() > 0 }

// DelayMillis is the minimum time between two recomputations of one source (0 = no throttle).
func (m Mode) DelayMillis() int64 {
	switch m {
	case Fastest:
		return 500
	case Fast:
		return 250
	}
	return 0
}

func (m Mode) String() string {
	switch m {
	case Off:
		return "off"
	case Fastest:
		return "fastest"
	case Fast:
		return "fast"
	case Fancy:
		return "fancy"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "disabled", "none":
		return Off, nil
	case "fastest":
		return Fastest, nil
	case "fast":
		return Fast, nil
	case "fancy", "":
		return Fancy, nil
	}
	return Off, fmt.Errorf("unknown lighting mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
