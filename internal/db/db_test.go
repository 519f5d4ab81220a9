package db

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swim.report/internal/timeutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "diagnostics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2024, 6, 8, 9, 30, 0, 0, time.UTC)

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestMigrateDown(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.MigrateDown())

	_, err := db.RecentDiagnostics(1)
	assert.Error(t, err, "table should be gone after rolling back")

	require.NoError(t, db.MigrateUp())
	_, err = db.RecentDiagnostics(1)
	assert.NoError(t, err)
}

func TestDiagnosticsRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.RecordDiagnostic(Diagnostic{
		At: t0, Source: "serial", Kind: DiagnosticUnrecognized, Length: 3, Payload: []byte{1, 2, 3},
	}))
	require.NoError(t, db.RecordDiagnostic(Diagnostic{
		At: t0.Add(time.Second), Source: "udp", Kind: DiagnosticOversize, Length: 5000, Detail: "truncated",
	}))
	require.NoError(t, db.RecordDiagnostic(Diagnostic{
		At: t0.Add(2 * time.Second), Source: "serial", Kind: DiagnosticUnrecognized, Length: 1,
	}))

	diags, err := db.RecentDiagnostics(2)
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, t0.Add(2*time.Second), diags[0].At)
	assert.Equal(t, DiagnosticOversize, diags[1].Kind)
	assert.Equal(t, "truncated", diags[1].Detail)
	assert.Equal(t, 5000, diags[1].Length)

	all, err := db.RecentDiagnostics(10)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, all[2].Payload)

	counts, err := db.DiagnosticCounts()
	require.NoError(t, err)
	assert.Equal(t, map[DiagnosticKind]int{DiagnosticUnrecognized: 2, DiagnosticOversize: 1}, counts)
}

func TestPrune(t *testing.T) {
	db := setupTestDB(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, db.RecordDiagnostic(Diagnostic{
			At: t0.Add(time.Duration(i) * time.Hour), Source: "serial", Kind: DiagnosticMalformed,
		}))
	}

	n, err := db.Prune(t0.Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := db.RecentDiagnostics(10)
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestJournal_WritesAndFlushes(t *testing.T) {
	db := setupTestDB(t)
	j := NewJournal(db, JournalOptions{Clock: timeutil.NewMockClock(t0)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Run(ctx)
	}()

	for i := 0; i < 5; i++ {
		require.NoError(t, j.RecordDiagnostic(Diagnostic{Source: "serial", Kind: DiagnosticOverflow}))
	}
	cancel()
	<-done

	written, dropped := j.Stats()
	assert.Equal(t, uint64(5), written)
	assert.Equal(t, uint64(0), dropped)

	diags, err := db.RecentDiagnostics(10)
	require.NoError(t, err)
	require.Len(t, diags, 5)
	assert.Equal(t, t0, diags[0].At, "zero timestamps take the journal clock")
}

func TestJournal_DropsWhenFull(t *testing.T) {
	db := setupTestDB(t)
	j := NewJournal(db, JournalOptions{Buffer: 2})

	for i := 0; i < 5; i++ {
		assert.NoError(t, j.RecordDiagnostic(Diagnostic{Source: "udp", Kind: DiagnosticShort}))
	}
	_, dropped := j.Stats()
	assert.Equal(t, uint64(3), dropped)
}

func TestJournal_PrunesOnInterval(t *testing.T) {
	db := setupTestDB(t)
	clock := timeutil.NewMockClock(t0)
	require.NoError(t, db.RecordDiagnostic(Diagnostic{At: t0.Add(-48 * time.Hour), Source: "serial", Kind: DiagnosticMalformed}))

	j := NewJournal(db, JournalOptions{Retention: 24 * time.Hour, PruneInterval: time.Minute, Clock: clock})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go j.Run(ctx)

	require.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		diags, err := db.RecentDiagnostics(10)
		return err == nil && len(diags) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAttachAdminRoutes_Diagnostics(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.RecordDiagnostic(Diagnostic{At: t0, Source: "serial", Kind: DiagnosticMalformed, Detail: "lane number out of range: 12"}))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/diagnostics?limit=5", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Counts      map[string]int `json:"counts"`
		Diagnostics []Diagnostic   `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Counts["malformed"])
	require.Len(t, body.Diagnostics, 1)
	assert.Equal(t, "lane number out of range: 12", body.Diagnostics[0].Detail)

	req = httptest.NewRequest(http.MethodGet, "/debug/diagnostics?limit=abc", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
