package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swim.report/internal/race"
)

func TestStateKeeper_AppliesInOrder(t *testing.T) {
	d := New(Options{})
	k := NewStateKeeper()
	sub := d.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- k.Run(ctx, sub) }()

	changed := k.Changed()
	tm := "31.04"
	d.Dispatch("serial", race.EventHeatHeader{Event: "9", Heat: "1"})
	d.Dispatch("serial", race.EventNameUpdate{Title: "Girls 50 Free"})
	d.Dispatch("serial", race.LaneUpdate{Lane: 4, Name: "KIM", Team: "ORCA", Place: "1", Time: &tm})
	u, _ := d.Dispatch("serial", race.ClockTick{Text: "31.9"})

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
	require.Eventually(t, func() bool {
		_, seq := k.Snapshot()
		return seq == u.Seq
	}, 2*time.Second, 5*time.Millisecond)

	s, _ := k.Snapshot()
	assert.Equal(t, "9", s.EventNumber)
	assert.Equal(t, "Girls 50 Free", s.EventTitle)
	assert.Equal(t, "31.9", s.RunningTime)
	lane, _ := s.Lane(4)
	require.NotNil(t, lane.Time)
	assert.Equal(t, "31.04", *lane.Time)

	d.Dispatch("serial", race.ClockTick{Text: "0.0"})
	require.Eventually(t, func() bool {
		s, _ := k.Snapshot()
		return s.EventTitle == ""
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestStateKeeper_SnapshotIsACopy(t *testing.T) {
	k := NewStateKeeper()
	tm := "40.00"
	k.Apply(Update{Seq: 1, HasDelta: true, Delta: race.Delta{
		Lanes: map[int]race.LaneDelta{2: {Time: &tm}},
	}})

	s, seq := k.Snapshot()
	assert.Equal(t, uint64(1), seq)
	*s.Lanes[1].Time = "00.01"

	again, _ := k.Snapshot()
	assert.Equal(t, "40.00", *again.Lanes[1].Time)
}

func TestStateKeeper_IgnoresUpdatesWithoutDelta(t *testing.T) {
	k := NewStateKeeper()
	ch := k.Changed()
	k.Apply(Update{Seq: 7})

	select {
	case <-ch:
		t.Fatal("unexpected change notification")
	default:
	}
	_, seq := k.Snapshot()
	assert.Equal(t, uint64(0), seq)
}

func TestStateKeeper_RunEndsWhenDispatcherCloses(t *testing.T) {
	d := New(Options{})
	k := NewStateKeeper()
	sub := d.Subscribe()
	d.Close()
	assert.NoError(t, k.Run(context.Background(), sub))
}
