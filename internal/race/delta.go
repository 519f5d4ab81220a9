package race

import (
	"fmt"
	"strings"
)

// LaneDelta is a partial update for one lane. Nil fields are left untouched;
// ClearTime removes any recorded time.
type LaneDelta struct {
	Name      *string `json:"name,omitempty"`
	Team      *string `json:"team,omitempty"`
	Place     *string `json:"place,omitempty"`
	Time      *string `json:"time,omitempty"`
	ClearTime bool    `json:"clear_time,omitempty"`
}

func (ld LaneDelta) empty() bool {
	return ld.Name == nil && ld.Team == nil && ld.Place == nil && ld.Time == nil && !ld.ClearTime
}

// Delta is a field-level change set for a RaceState. Reset is applied before
// any other field in the same delta.
type Delta struct {
	Reset bool `json:"reset,omitempty"`

	EventNumber   *string `json:"event_number,omitempty"`
	HeatNumber    *string `json:"heat_number,omitempty"`
	EventTitle    *string `json:"event_title,omitempty"`
	TitleIfBlank  bool    `json:"title_if_blank,omitempty"`
	EventSubtitle *string `json:"event_subtitle,omitempty"`
	RunningTime   *string `json:"running_time,omitempty"`
	ClockIfBlank  bool    `json:"clock_if_blank,omitempty"`

	Lanes map[int]LaneDelta `json:"lanes,omitempty"`
}

// Empty reports whether applying d would change nothing.
func (d Delta) Empty() bool {
	if d.Reset || d.EventNumber != nil || d.HeatNumber != nil || d.EventTitle != nil ||
		d.EventSubtitle != nil || d.RunningTime != nil {
		return false
	}
	for _, ld := range d.Lanes {
		if !ld.empty() {
			return false
		}
	}
	return true
}

func (d *Delta) lane(n int) LaneDelta {
	if d.Lanes == nil {
		d.Lanes = make(map[int]LaneDelta)
	}
	return d.Lanes[n]
}

func (d *Delta) setLane(n int, ld LaneDelta) {
	if ld.empty() {
		return
	}
	d.Lanes[n] = ld
}

func strPtr(s string) *string { return &s }

// DeltaFor derives the state change a record implies. It reports false for
// records that carry nothing displayable.
func DeltaFor(rec Record, s Sentinels) (Delta, bool) {
	s = s.orDefault()
	var d Delta

	switch r := rec.(type) {
	case ClockTick:
		switch {
		case s.IsReset(r.Text):
			d.Reset = true
		case s.IsNoTime(r.Text):
			d.RunningTime = strPtr(r.Text)
			d.ClockIfBlank = true
		default:
			d.RunningTime = strPtr(r.Text)
		}

	case EventHeatHeader:
		d.EventNumber = strPtr(r.Event)
		d.HeatNumber = strPtr(r.Heat)

	case EventNameUpdate:
		d.EventTitle = strPtr(r.Title)
		d.TitleIfBlank = true

	case LaneUpdate:
		ld := d.lane(r.Lane)
		ld.Name = strPtr(r.Name)
		ld.Team = strPtr(r.Team)
		ld.Place = strPtr(r.Place)
		if r.Time != nil {
			ld.Time = strPtr(*r.Time)
		} else {
			ld.ClearTime = true
		}
		d.setLane(r.Lane, ld)

	case FullRecord:
		fullRecordDelta(&d, r.Fields, s)

	default:
		return Delta{}, false
	}

	if d.Empty() {
		return Delta{}, false
	}
	return d, true
}

// Field names used by the OmniSport swimming ITF and by the RTD layout.
const (
	itfEventNumber    = "Event Number"
	itfHeatNumber     = "Heat Number"
	itfTitleLine1     = "Event Title Line 1"
	itfTitleLines12   = "Event Title Lines 1 & 2"
	itfTitleLine2     = "Event Title Line 2"
	itfRunningTime    = "Running Time"
	itfSingleLineName = "Single Line Swimmer Name"

	rtdEventNumber = "event_number"
	rtdHeatNumber  = "heat_number"
	rtdTitle1      = "event_title_1"
	rtdTitle2      = "event_title_2"
	rtdRunningTime = "running_time"
)

func firstNonBlank(fields map[string]string, keys ...string) (string, bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			return v, true
		}
	}
	return "", false
}

func fullRecordDelta(d *Delta, fields map[string]string, s Sentinels) {
	if v, ok := firstNonBlank(fields, itfEventNumber, rtdEventNumber); ok {
		d.EventNumber = strPtr(v)
	}
	if v, ok := firstNonBlank(fields, itfHeatNumber, rtdHeatNumber); ok {
		d.HeatNumber = strPtr(v)
	}
	if v, ok := firstNonBlank(fields, itfTitleLine1, itfTitleLines12, rtdTitle1); ok {
		d.EventTitle = strPtr(v)
	}
	if v, ok := firstNonBlank(fields, itfTitleLine2, rtdTitle2); ok {
		d.EventSubtitle = strPtr(v)
	}
	if v, ok := firstNonBlank(fields, itfRunningTime, rtdRunningTime); ok {
		d.RunningTime = strPtr(v)
		d.ClockIfBlank = s.IsNoTime(v)
	}

	single, _ := firstNonBlank(fields, itfSingleLineName)
	for n := 1; n <= LaneCount; n++ {
		ld := d.lane(n)
		if v, ok := fields[fmt.Sprintf("Line %d Swimmer Name", n)]; ok && strings.TrimSpace(v) != "" {
			ld.Name = strPtr(v)
		} else if single != "" {
			// single-swimmer templates carry one name for every blank lane
			ld.Name = strPtr(single)
		} else if ok {
			ld.Name = strPtr(v)
		}
		if v, ok := lookupAny(fields, fmt.Sprintf("Line %d Team", n), fmt.Sprintf("Line %d Team Name", n)); ok {
			ld.Team = strPtr(v)
		}
		if v, ok := lookupAny(fields, fmt.Sprintf("Line %d Place Number", n), fmt.Sprintf("Line %d Place", n)); ok {
			ld.Place = strPtr(v)
		}
		if v, ok := fields[fmt.Sprintf("Line %d Split/Finish Time", n)]; ok {
			setLaneTime(&ld, v, s)
		}
		if raw, ok := fields[fmt.Sprintf("lane_%d", n)]; ok {
			name, t := SplitNameAndTime(raw)
			ld.Name = strPtr(name)
			setLaneTime(&ld, t, s)
		}
		d.setLane(n, ld)
	}
}

func lookupAny(fields map[string]string, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v, true
		}
	}
	return "", false
}

func setLaneTime(ld *LaneDelta, text string, s Sentinels) {
	if text == "" || s.IsNoTime(text) {
		ld.Time = nil
		ld.ClearTime = true
		return
	}
	ld.Time = strPtr(text)
	ld.ClearTime = false
}
