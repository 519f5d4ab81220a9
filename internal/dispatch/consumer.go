package dispatch

import (
	"context"

	"github.com/banshee-data/swim.report/internal/race"
)

// Consumer receives records in dispatch order. Calls come from a single
// goroutine per attached consumer and should return promptly.
type Consumer interface {
	// OnFullRecord receives the decoded fields of a full record.
	OnFullRecord(fields map[string]string)
	// OnAdHoc receives clock, header, event name and lane updates.
	OnAdHoc(rec race.Record)
}

// Attach subscribes c to d and delivers on a new goroutine until ctx is done
// or the dispatcher closes. The returned channel closes when delivery stops.
func Attach(ctx context.Context, d *Dispatcher, c Consumer) <-chan struct{} {
	sub := d.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer d.Unsubscribe(sub.ID)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-sub.Updates():
				if !ok {
					return
				}
				deliver(c, u)
			}
		}
	}()
	return done
}

func deliver(c Consumer, u Update) {
	switch r := u.Record.(type) {
	case race.FullRecord:
		c.OnFullRecord(r.Fields)
	case race.Unrecognized:
	default:
		c.OnAdHoc(r)
	}
}
