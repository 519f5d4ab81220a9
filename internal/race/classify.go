package race

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/swim.report/internal/layout"
)

var (
	// ErrMalformedLane is returned for a lane update whose lane field is not
	// a number.
	ErrMalformedLane = errors.New("malformed lane number")
	// ErrLaneOutOfRange is returned for a lane update outside 1..LaneCount.
	ErrLaneOutOfRange = errors.New("lane number out of range")
)

// Classifier maps a frame payload to a Record by its length.
type Classifier struct {
	layout    layout.FrameLayout
	total     int
	sentinels Sentinels
}

// NewClassifier builds a classifier for the given full-record layout. A zero
// Sentinels value selects DefaultSentinels.
func NewClassifier(l layout.FrameLayout, s Sentinels) *Classifier {
	return &Classifier{layout: l, total: l.TotalLength(), sentinels: s.orDefault()}
}

// Layout returns the full-record layout.
func (c *Classifier) Layout() layout.FrameLayout { return c.layout }

// Sentinels returns the sentinel values in effect.
func (c *Classifier) Sentinels() Sentinels { return c.sentinels }

// Classify maps a frame payload to a record. The full-record length is checked
// before the fixed ad-hoc lengths, so a layout whose total happens to equal
// one of them always decodes as a FullRecord. Unknown lengths yield
// Unrecognized with a nil error; only malformed lane updates return an error.
func (c *Classifier) Classify(frame []byte) (Record, error) {
	switch n := len(frame); {
	case c.total > 0 && n == c.total:
		return FullRecord{Fields: layout.Decode(frame, c.layout)}, nil
	case n == ClockTickLength:
		return ClockTick{Text: layout.Text(frame)}, nil
	case n == EventHeatHeaderLength:
		return EventHeatHeader{
			Event: layout.Slice(frame, 0, 4),
			Heat:  layout.Slice(frame, 4, 6),
		}, nil
	case n == EventNameLength:
		return EventNameUpdate{Title: layout.Text(frame)}, nil
	case n == LaneUpdateLength:
		return c.laneUpdate(frame)
	default:
		raw := make([]byte, n)
		copy(raw, frame)
		return Unrecognized{Raw: raw}, nil
	}
}

func (c *Classifier) laneUpdate(frame []byte) (Record, error) {
	laneText := layout.Slice(frame, 20, 22)
	lane, err := strconv.Atoi(strings.TrimSpace(laneText))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedLane, laneText)
	}
	if lane < 1 || lane > LaneCount {
		return nil, fmt.Errorf("%w: %d", ErrLaneOutOfRange, lane)
	}

	rec := LaneUpdate{
		Lane:  lane,
		Name:  layout.Slice(frame, 0, 15),
		Team:  layout.Slice(frame, 15, 20),
		Place: layout.Slice(frame, 22, 25),
	}
	if t := layout.Slice(frame, 25, 34); t != "" && !c.sentinels.IsNoTime(t) {
		rec.Time = &t
	}
	return rec, nil
}
