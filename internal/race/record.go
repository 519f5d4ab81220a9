// Package race classifies timing-console frames into typed records and
// folds them into the race state shown on a scoreboard.
package race

import "fmt"

// LaneCount is the number of lanes the console reports.
const LaneCount = 8

// Fixed payload lengths of the ad-hoc frames the console interleaves with
// full records.
const (
	ClockTickLength       = 9
	EventHeatHeaderLength = 29
	EventNameLength       = 30
	LaneUpdateLength      = 36
)

// Kind names a Record variant.
type Kind string

const (
	KindFullRecord      Kind = "full_record"
	KindClockTick       Kind = "clock_tick"
	KindEventHeatHeader Kind = "event_heat_header"
	KindEventNameUpdate Kind = "event_name_update"
	KindLaneUpdate      Kind = "lane_update"
	KindUnrecognized    Kind = "unrecognized"
)

// Record is a classified frame. The concrete types below are the only
// implementations.
type Record interface {
	Kind() Kind
	isRecord()
}

// FullRecord is a frame whose length matches the configured layout, decoded
// into field name → trimmed text.
type FullRecord struct {
	Fields map[string]string `json:"fields"`
}

// ClockTick carries the running clock text.
type ClockTick struct {
	Text string `json:"text"`
}

// EventHeatHeader announces the event and heat numbers.
type EventHeatHeader struct {
	Event string `json:"event"`
	Heat  string `json:"heat"`
}

// EventNameUpdate carries the event title.
type EventNameUpdate struct {
	Title string `json:"title"`
}

// LaneUpdate is one lane's swimmer line. Time is nil when the console has not
// recorded a time yet.
type LaneUpdate struct {
	Lane  int     `json:"lane"`
	Name  string  `json:"name"`
	Team  string  `json:"team"`
	Place string  `json:"place"`
	Time  *string `json:"time,omitempty"`
}

// Unrecognized keeps the raw payload of a frame of unknown length for
// diagnostics only.
type Unrecognized struct {
	Raw []byte `json:"raw"`
}

func (FullRecord) Kind() Kind      { return KindFullRecord }
func (ClockTick) Kind() Kind       { return KindClockTick }
func (EventHeatHeader) Kind() Kind { return KindEventHeatHeader }
func (EventNameUpdate) Kind() Kind { return KindEventNameUpdate }
func (LaneUpdate) Kind() Kind      { return KindLaneUpdate }
func (Unrecognized) Kind() Kind    { return KindUnrecognized }

func (FullRecord) isRecord()      {}
func (ClockTick) isRecord()       {}
func (EventHeatHeader) isRecord() {}
func (EventNameUpdate) isRecord() {}
func (LaneUpdate) isRecord()      {}
func (Unrecognized) isRecord()    {}

func (r LaneUpdate) String() string {
	t := "-"
	if r.Time != nil {
		t = *r.Time
	}
	return fmt.Sprintf("lane %d: %q %q place=%q time=%s", r.Lane, r.Name, r.Team, r.Place, t)
}
