// Package dispatch hands classified records to consumers without ever
// blocking the producer loops that feed it.
package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/swim.report/internal/race"
	"github.com/banshee-data/swim.report/internal/timeutil"
)

// Update is one dispatched record together with the state change it implies.
// HasDelta is false for records that carry nothing displayable, such as a
// full record whose field names are unknown.
type Update struct {
	Seq      uint64      `json:"seq"`
	Source   string      `json:"source"`
	At       time.Time   `json:"at"`
	Kind     race.Kind   `json:"kind"`
	Record   race.Record `json:"record"`
	Delta    race.Delta  `json:"delta"`
	HasDelta bool        `json:"has_delta"`
}

// Options configures a Dispatcher.
type Options struct {
	Sentinels race.Sentinels
	Clock     timeutil.Clock
}

// Dispatcher fans records out to subscriptions. Every subscription sees the
// same sequence in the same order.
type Dispatcher struct {
	sentinels race.Sentinels
	clock     timeutil.Clock

	mu     sync.Mutex
	seq    uint64
	subs   map[string]*Subscription
	closed bool
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Sentinels == (race.Sentinels{}) {
		opts.Sentinels = race.DefaultSentinels()
	}
	return &Dispatcher{
		sentinels: opts.Sentinels,
		clock:     opts.Clock,
		subs:      make(map[string]*Subscription),
	}
}

// Sentinels returns the sentinel values used to derive deltas.
func (d *Dispatcher) Sentinels() race.Sentinels { return d.sentinels }

// Subscribe registers a new subscription. Subscribing to a closed dispatcher
// returns a subscription whose channel is already closed.
func (d *Dispatcher) Subscribe() *Subscription {
	sub := newSubscription(uuid.NewString())
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		sub.close()
		return sub
	}
	d.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes and closes a subscription. Undelivered updates are
// discarded.
func (d *Dispatcher) Unsubscribe(id string) {
	d.mu.Lock()
	sub, ok := d.subs[id]
	delete(d.subs, id)
	d.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Subscribers returns the number of live subscriptions.
func (d *Dispatcher) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Dispatch enqueues rec on every subscription and returns the update. It never
// blocks on consumers. Unrecognized records are not surfaced and report false.
func (d *Dispatcher) Dispatch(source string, rec race.Record) (Update, bool) {
	if rec == nil || rec.Kind() == race.KindUnrecognized {
		return Update{}, false
	}
	delta, hasDelta := race.DeltaFor(rec, d.sentinels)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Update{}, false
	}
	d.seq++
	u := Update{
		Seq:      d.seq,
		Source:   source,
		At:       d.clock.Now(),
		Kind:     rec.Kind(),
		Record:   rec,
		Delta:    delta,
		HasDelta: hasDelta,
	}
	for _, sub := range d.subs {
		sub.enqueue(u)
	}
	return u, true
}

// Close closes every subscription. Later Dispatch calls are ignored.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := d.subs
	d.subs = make(map[string]*Subscription)
	d.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
