// Package testutil holds helpers shared by the HTTP and pipeline tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// Serve runs one request through h and returns the recorder.
func Serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// DecodeJSON fails the test unless rec holds a JSON body that decodes into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode body %q: %v", rec.Body.String(), err)
	}
}

// Pad left-aligns s in an n-byte field, truncating if needed.
func Pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// LaneFrame builds a 36-byte lane update body: name 15, team 5, lane 2,
// place 3, time 9, then two spare bytes.
func LaneFrame(name, team, lane, place, tm string) []byte {
	return []byte(Pad(name, 15) + Pad(team, 5) + Pad(lane, 2) + Pad(place, 3) + Pad(tm, 9) + "  ")
}

// Frame wraps body in the STX/ETX control bytes.
func Frame(body []byte) []byte {
	out := make([]byte, 0, len(body)+2)
	out = append(out, 0x02)
	out = append(out, body...)
	return append(out, 0x04)
}
