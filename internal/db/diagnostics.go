package db

import (
	"fmt"
	"time"
)

// DiagnosticKind classifies a journal entry.
type DiagnosticKind string

const (
	DiagnosticUnrecognized DiagnosticKind = "unrecognized"
	DiagnosticMalformed    DiagnosticKind = "malformed"
	DiagnosticOverflow     DiagnosticKind = "overflow"
	DiagnosticOversize     DiagnosticKind = "oversize"
	DiagnosticShort        DiagnosticKind = "short"
)

// Diagnostic is one journal entry. Payload holds the offending frame or
// datagram when there is one.
type Diagnostic struct {
	ID      int64          `json:"id"`
	At      time.Time      `json:"at"`
	Source  string         `json:"source"`
	Kind    DiagnosticKind `json:"kind"`
	Length  int            `json:"length"`
	Detail  string         `json:"detail,omitempty"`
	Payload []byte         `json:"payload,omitempty"`
}

// DiagnosticSink accepts diagnostics from the ingestion loops.
type DiagnosticSink interface {
	RecordDiagnostic(Diagnostic) error
}

// RecordDiagnostic inserts d. A zero At is stamped with the current time.
func (db *DB) RecordDiagnostic(d Diagnostic) error {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	_, err := db.Exec(
		`INSERT INTO diagnostics (recorded_at, source, kind, length, detail, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.At.UTC().UnixNano(), d.Source, string(d.Kind), d.Length, d.Detail, d.Payload,
	)
	if err != nil {
		return fmt.Errorf("insert diagnostic: %w", err)
	}
	return nil
}

// RecentDiagnostics returns up to limit entries, newest first.
func (db *DB) RecentDiagnostics(limit int) ([]Diagnostic, error) {
	rows, err := db.Query(
		`SELECT diagnostic_id, recorded_at, source, kind, length, detail, payload
		 FROM diagnostics ORDER BY recorded_at DESC, diagnostic_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var diags []Diagnostic
	for rows.Next() {
		var (
			d    Diagnostic
			at   int64
			kind string
		)
		if err := rows.Scan(&d.ID, &at, &d.Source, &kind, &d.Length, &d.Detail, &d.Payload); err != nil {
			return nil, err
		}
		d.At = time.Unix(0, at).UTC()
		d.Kind = DiagnosticKind(kind)
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

// DiagnosticCounts returns the number of entries per kind.
func (db *DB) DiagnosticCounts() (map[DiagnosticKind]int, error) {
	rows, err := db.Query(`SELECT kind, COUNT(*) FROM diagnostics GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[DiagnosticKind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[DiagnosticKind(kind)] = n
	}
	return counts, rows.Err()
}

// Prune deletes entries recorded before cutoff and returns how many went.
func (db *DB) Prune(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM diagnostics WHERE recorded_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune diagnostics: %w", err)
	}
	return res.RowsAffected()
}
