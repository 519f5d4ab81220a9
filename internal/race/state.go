package race

// Lane is one row of the scoreboard. Time is nil until a time is recorded.
type Lane struct {
	Number int     `json:"lane"`
	Name   string  `json:"name"`
	Team   string  `json:"team"`
	Place  string  `json:"place"`
	Time   *string `json:"time"`
}

// RaceState is the scoreboard contents. It is not safe for concurrent use;
// one consumer owns it and applies deltas in arrival order.
type RaceState struct {
	EventNumber   string          `json:"event_number"`
	HeatNumber    string          `json:"heat_number"`
	EventTitle    string          `json:"event_title"`
	EventSubtitle string          `json:"event_subtitle"`
	RunningTime   string          `json:"running_time"`
	Lanes         [LaneCount]Lane `json:"lanes"`
}

// NewRaceState returns a blank state with lanes numbered 1..LaneCount.
func NewRaceState() *RaceState {
	s := &RaceState{}
	s.clearLanes()
	return s
}

func (s *RaceState) clearLanes() {
	for i := range s.Lanes {
		s.Lanes[i] = Lane{Number: i + 1}
	}
}

// ResetRace blanks the event, heat, titles and every lane. The running clock
// is left as is.
func (s *RaceState) ResetRace() {
	s.EventNumber = ""
	s.HeatNumber = ""
	s.EventTitle = ""
	s.EventSubtitle = ""
	s.clearLanes()
}

// Lane returns lane n (1-based).
func (s *RaceState) Lane(n int) (Lane, bool) {
	if n < 1 || n > LaneCount {
		return Lane{}, false
	}
	return s.Lanes[n-1], true
}

// Apply folds d into the state.
func (s *RaceState) Apply(d Delta) {
	if d.Reset {
		s.ResetRace()
	}
	if d.EventNumber != nil {
		s.EventNumber = *d.EventNumber
	}
	if d.HeatNumber != nil {
		s.HeatNumber = *d.HeatNumber
	}
	if d.EventTitle != nil && (!d.TitleIfBlank || s.EventTitle == "") {
		s.EventTitle = *d.EventTitle
	}
	if d.EventSubtitle != nil {
		s.EventSubtitle = *d.EventSubtitle
	}
	if d.RunningTime != nil && (!d.ClockIfBlank || s.RunningTime == "") {
		s.RunningTime = *d.RunningTime
	}

	for n, ld := range d.Lanes {
		if n < 1 || n > LaneCount {
			continue
		}
		lane := &s.Lanes[n-1]
		if ld.Name != nil {
			lane.Name = *ld.Name
		}
		if ld.Team != nil {
			lane.Team = *ld.Team
		}
		if ld.Place != nil {
			lane.Place = *ld.Place
		}
		switch {
		case ld.Time != nil:
			t := *ld.Time
			lane.Time = &t
		case ld.ClearTime:
			lane.Time = nil
		}
	}
}

// Clone returns a deep copy.
func (s *RaceState) Clone() RaceState {
	c := *s
	for i := range c.Lanes {
		if t := c.Lanes[i].Time; t != nil {
			v := *t
			c.Lanes[i].Time = &v
		}
	}
	return c
}
