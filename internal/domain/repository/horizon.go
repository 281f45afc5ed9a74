package repository

// Horizon is the forward window a forecast covers.
type Horizon string

const (
	HorizonShort  Horizon = "short"
	HorizonMedium Horizon = "medium"
	HorizonLong   Horizon = "long"
)

// Steps returns the number of projected steps for the horizon.
func (h Horizon) Steps() int {
	switch h {
	case HorizonShort:
		return 7
	case HorizonMedium:
		return 30
	case HorizonLong:
		return 90
	default:
		return 7
	}
}

// IsValidHorizon returns true if h is a supported horizon.
func IsValidHorizon(h Horizon) bool {
	switch h {
	case HorizonShort, HorizonMedium, HorizonLong:
		return true
	default:
		return false
	}
}

// DefaultHorizon returns the default horizon.
func DefaultHorizon() Horizon { return HorizonShort }

// NormalizeHorizon converts raw string to a valid horizon (or default).
func NormalizeHorizon(s string) Horizon {
	if s == "" {
		return DefaultHorizon()
	}
	h := Horizon(s)
	if IsValidHorizon(h) {
		return h
	}
	return DefaultHorizon()
}
