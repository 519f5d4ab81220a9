package db

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/swim.report/internal/monitoring"
	"github.com/banshee-data/swim.report/internal/timeutil"
)

// JournalOptions configures a Journal.
type JournalOptions struct {
	// Buffer is the number of diagnostics held while the writer catches up.
	Buffer int
	// Retention, when positive, prunes older entries every PruneInterval.
	Retention     time.Duration
	PruneInterval time.Duration
	Clock         timeutil.Clock
}

// Journal is a DiagnosticSink that never blocks the caller. Entries are
// written by Run; when its buffer is full new entries are counted and
// dropped.
type Journal struct {
	db    *DB
	opts  JournalOptions
	queue chan Diagnostic

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewJournal wraps db.
func NewJournal(db *DB, opts JournalOptions) *Journal {
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Journal{db: db, opts: opts, queue: make(chan Diagnostic, opts.Buffer)}
}

// RecordDiagnostic queues d for writing.
func (j *Journal) RecordDiagnostic(d Diagnostic) error {
	if d.At.IsZero() {
		d.At = j.opts.Clock.Now()
	}
	select {
	case j.queue <- d:
	default:
		if j.dropped.Add(1) == 1 {
			monitoring.Warnf("diagnostics journal is behind; dropping entries")
		}
	}
	return nil
}

// Run writes queued diagnostics until ctx is done, then flushes what is left.
func (j *Journal) Run(ctx context.Context) {
	var prune <-chan time.Time
	if j.opts.Retention > 0 {
		ticker := j.opts.Clock.NewTicker(j.opts.PruneInterval)
		defer ticker.Stop()
		prune = ticker.C()
	}

	for {
		select {
		case <-ctx.Done():
			j.flush()
			return
		case d := <-j.queue:
			j.write(d)
		case now := <-prune:
			n, err := j.db.Prune(now.Add(-j.opts.Retention))
			if err != nil {
				monitoring.Warnf("%v", err)
			} else if n > 0 {
				monitoring.Infof("pruned %d diagnostics older than %s", n, j.opts.Retention)
			}
		}
	}
}

func (j *Journal) flush() {
	for {
		select {
		case d := <-j.queue:
			j.write(d)
		default:
			return
		}
	}
}

func (j *Journal) write(d Diagnostic) {
	if err := j.db.RecordDiagnostic(d); err != nil {
		monitoring.Warnf("%v", err)
		return
	}
	j.written.Add(1)
}

// Stats returns the number of entries written and dropped.
func (j *Journal) Stats() (written, dropped uint64) {
	return j.written.Load(), j.dropped.Load()
}
