package dispatch

import (
	"context"
	"sync"

	"github.com/banshee-data/swim.report/internal/race"
)

// StateKeeper owns a RaceState and applies dispatched deltas to it in arrival
// order. Readers get copies through Snapshot; only the keeper mutates.
type StateKeeper struct {
	working *race.RaceState

	mu       sync.RWMutex
	snapshot race.RaceState
	lastSeq  uint64
	changed  chan struct{}
}

// NewStateKeeper returns a keeper holding a blank state.
func NewStateKeeper() *StateKeeper {
	k := &StateKeeper{
		working: race.NewRaceState(),
		changed: make(chan struct{}),
	}
	k.snapshot = k.working.Clone()
	return k
}

// Run drains sub until ctx is done or the subscription closes.
func (k *StateKeeper) Run(ctx context.Context, sub *Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			k.Apply(u)
		}
	}
}

// Apply folds one update into the state. It must only be called from the
// goroutine running Run, or in tests.
func (k *StateKeeper) Apply(u Update) {
	if !u.HasDelta {
		return
	}
	k.working.Apply(u.Delta)
	next := k.working.Clone()

	k.mu.Lock()
	k.snapshot = next
	k.lastSeq = u.Seq
	ch := k.changed
	k.changed = make(chan struct{})
	k.mu.Unlock()

	close(ch)
}

// Snapshot returns a copy of the current state and the sequence number of the
// last applied update.
func (k *StateKeeper) Snapshot() (race.RaceState, uint64) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.snapshot.Clone(), k.lastSeq
}

// Changed returns a channel that is closed at the next state change.
func (k *StateKeeper) Changed() <-chan struct{} {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.changed
}
