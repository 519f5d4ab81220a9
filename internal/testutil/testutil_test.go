package testutil

import (
	"net/http"
	"testing"

	"github.com/banshee-data/swim.report/internal/httputil"
)

func TestLaneFrame(t *testing.T) {
	got := LaneFrame("SMITH", "AQUA", "3", "1", "1:02.50")
	if len(got) != 36 {
		t.Fatalf("len = %d, want 36", len(got))
	}
	if string(got[20:22]) != "3 " {
		t.Errorf("lane field = %q", got[20:22])
	}
	if string(got[25:34]) != "1:02.50  " {
		t.Errorf("time field = %q", got[25:34])
	}
}

func TestFrame(t *testing.T) {
	got := Frame([]byte("0.0"))
	if got[0] != 0x02 || got[len(got)-1] != 0x04 || string(got[1:4]) != "0.0" {
		t.Errorf("Frame() = %q", got)
	}
}

func TestPadTruncates(t *testing.T) {
	if got := Pad("Girls 200 Medley", 9); got != "Girls 200" {
		t.Errorf("Pad() = %q", got)
	}
}

func TestServeAndDecode(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string]string{"path": r.URL.Path})
	})
	rec := Serve(h, http.MethodGet, "/api/state")
	AssertStatusCode(t, rec.Code, http.StatusOK)

	var body map[string]string
	DecodeJSON(t, rec, &body)
	if body["path"] != "/api/state" {
		t.Errorf("path = %q", body["path"])
	}
}
