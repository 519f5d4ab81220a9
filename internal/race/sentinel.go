package race

// Default sentinel values observed from OmniSport consoles.
const (
	DefaultResetSentinel  = "0.0"
	DefaultNoTimeSentinel = "0.00"
)

// Sentinels are clock/time values that trigger special handling instead of
// being displayed. They are configurable because consoles disagree on them.
type Sentinels struct {
	// Reset, seen as a clock tick, starts a new race.
	Reset string `json:"reset" toml:"reset"`
	// NoTime means "no time recorded yet".
	NoTime string `json:"no_time" toml:"no_time"`
}

// DefaultSentinels returns the "0.0" reset and "0.00" no-time pair.
func DefaultSentinels() Sentinels {
	return Sentinels{Reset: DefaultResetSentinel, NoTime: DefaultNoTimeSentinel}
}

func (s Sentinels) orDefault() Sentinels {
	if s.Reset == "" && s.NoTime == "" {
		return DefaultSentinels()
	}
	return s
}

// IsReset reports whether clock text is the reset sentinel.
func (s Sentinels) IsReset(text string) bool {
	return s.Reset != "" && text == s.Reset
}

// IsNoTime reports whether text means "no time yet": the configured sentinel,
// or any time text that parses to zero ("00.00", "0:00.00"). Callers that
// care about resets must test IsReset first.
func (s Sentinels) IsNoTime(text string) bool {
	if s.NoTime != "" && text == s.NoTime {
		return true
	}
	d, ok := ParseTime(text)
	return ok && d == 0
}
