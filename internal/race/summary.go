package race

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// HeatSummary describes the times recorded so far in the current heat.
// Seconds fields are zero when fewer than the needed samples exist.
type HeatSummary struct {
	EventNumber   string  `json:"event_number"`
	HeatNumber    string  `json:"heat_number"`
	Recorded      int     `json:"recorded"`
	FastestLane   int     `json:"fastest_lane,omitempty"`
	FastestTime   string  `json:"fastest_time,omitempty"`
	MeanSeconds   float64 `json:"mean_seconds"`
	StdDevSeconds float64 `json:"stddev_seconds"`
	SpreadSeconds float64 `json:"spread_seconds"`
}

// Summarize computes a HeatSummary from lanes whose time parses. Lane times
// that do not parse are ignored.
func Summarize(s RaceState) HeatSummary {
	sum := HeatSummary{EventNumber: s.EventNumber, HeatNumber: s.HeatNumber}

	var (
		secs    []float64
		fastest time.Duration
		slowest time.Duration
	)
	for _, lane := range s.Lanes {
		if lane.Time == nil {
			continue
		}
		d, ok := ParseTime(*lane.Time)
		if !ok || d == 0 {
			continue
		}
		if len(secs) == 0 || d < fastest {
			fastest = d
			sum.FastestLane = lane.Number
			sum.FastestTime = *lane.Time
		}
		if d > slowest {
			slowest = d
		}
		secs = append(secs, d.Seconds())
	}

	sum.Recorded = len(secs)
	switch len(secs) {
	case 0:
	case 1:
		sum.MeanSeconds = secs[0]
	default:
		sum.MeanSeconds, sum.StdDevSeconds = stat.MeanStdDev(secs, nil)
		sum.SpreadSeconds = (slowest - fastest).Seconds()
	}
	return sum
}
