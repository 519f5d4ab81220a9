package race

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseTime reads console time text: "M:SS.ff", "SS.ff" or a bare number of
// seconds. It reports false for anything else, including negative values.
func ParseTime(text string) (time.Duration, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}

	var seconds float64
	if mins, secs, found := strings.Cut(s, ":"); found {
		if strings.Contains(secs, ":") {
			return 0, false
		}
		m, err := strconv.Atoi(mins)
		if err != nil || m < 0 {
			return 0, false
		}
		sec, err := strconv.ParseFloat(secs, 64)
		if err != nil {
			return 0, false
		}
		seconds = float64(m)*60 + sec
	} else {
		sec, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		seconds = sec
	}

	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, false
	}
	return time.Duration(math.Round(seconds*1000)) * time.Millisecond, true
}

// FormatTime renders d as "M:SS.CC", or "SS.CC" under a minute.
func FormatTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	totalSeconds, milli := ms/1000, ms%1000
	mins, secs := totalSeconds/60, totalSeconds%60
	centis := milli / 10
	if mins == 0 {
		return fmt.Sprintf("%02d.%02d", secs, centis)
	}
	return fmt.Sprintf("%d:%02d.%02d", mins, secs, centis)
}

// SplitNameAndTime splits a combined lane string such as "Liam Smith 54.32"
// into the name and the trailing time token. The last token that parses as a
// time wins; timeText is empty when none does.
func SplitNameAndTime(raw string) (name, timeText string) {
	tokens := strings.Fields(raw)
	for i := len(tokens) - 1; i >= 0; i-- {
		if _, ok := ParseTime(tokens[i]); ok {
			return strings.Join(tokens[:i], " "), tokens[i]
		}
	}
	return strings.Join(tokens, " "), ""
}
