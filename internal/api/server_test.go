package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swim.report/internal/dispatch"
	"github.com/banshee-data/swim.report/internal/race"
	"github.com/banshee-data/swim.report/internal/testutil"
)

func strp(s string) *string { return &s }

type fixture struct {
	d      *dispatch.Dispatcher
	keeper *dispatch.StateKeeper
	srv    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := dispatch.New(dispatch.Options{})
	t.Cleanup(d.Close)
	k := dispatch.NewStateKeeper()
	cfg := RuntimeConfig{
		Sources:      []string{"serial", "udp"},
		SerialPort:   "/dev/ttyUSB0",
		PortSettings: "9600 8N1",
		UDPPort:      21003,
		Layout:       "OS2-Swimming.itf",
		LayoutLength: 147,
		Sentinels:    race.DefaultSentinels(),
		Version:      "test",
	}
	return &fixture{d: d, keeper: k, srv: NewServer(k, d, cfg, Options{Heartbeat: 20 * time.Millisecond})}
}

// apply dispatches rec and folds it into the keeper synchronously.
func (f *fixture) apply(rec race.Record) {
	u, ok := f.d.Dispatch("serial", rec)
	if ok {
		f.keeper.Apply(u)
	}
}

func (f *fixture) seedHeat() {
	f.apply(race.EventHeatHeader{Event: "5", Heat: "2"})
	f.apply(race.EventNameUpdate{Title: "Boys 100 Free"})
	f.apply(race.LaneUpdate{Lane: 3, Name: "SMITH", Team: "AQUA", Place: "2", Time: strp("1:02.50")})
	f.apply(race.LaneUpdate{Lane: 5, Name: "JONES", Team: "ORCA", Place: "1", Time: strp("1:01.10")})
	f.apply(race.ClockTick{Text: "1:03.0"})
}

func TestShowState(t *testing.T) {
	f := newFixture(t)
	f.seedHeat()

	rec := testutil.Serve(f.srv.ServeMux(), http.MethodGet, "/api/state")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var body StateResponse
	testutil.DecodeJSON(t, rec, &body)
	assert.Equal(t, uint64(5), body.Seq)
	assert.Equal(t, "5", body.State.EventNumber)
	assert.Equal(t, "Boys 100 Free", body.State.EventTitle)
	assert.Equal(t, "1:03.0", body.State.RunningTime)
	require.NotNil(t, body.State.Lanes[2].Time)
	assert.Equal(t, "1:02.50", *body.State.Lanes[2].Time)
	assert.Nil(t, body.State.Lanes[0].Time)
}

func TestShowState_Lane(t *testing.T) {
	f := newFixture(t)
	f.seedHeat()
	mux := f.srv.ServeMux()

	rec := testutil.Serve(mux, http.MethodGet, "/api/state?lane=5")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var lane race.Lane
	testutil.DecodeJSON(t, rec, &lane)
	assert.Equal(t, 5, lane.Number)
	assert.Equal(t, "JONES", lane.Name)

	testutil.AssertStatusCode(t, testutil.Serve(mux, http.MethodGet, "/api/state?lane=9").Code, http.StatusBadRequest)
	testutil.AssertStatusCode(t, testutil.Serve(mux, http.MethodGet, "/api/state?lane=x").Code, http.StatusBadRequest)
}

func TestShowSummary(t *testing.T) {
	f := newFixture(t)
	f.seedHeat()

	rec := testutil.Serve(f.srv.ServeMux(), http.MethodGet, "/api/summary")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var sum race.HeatSummary
	testutil.DecodeJSON(t, rec, &sum)
	assert.Equal(t, 2, sum.Recorded)
	assert.Equal(t, 5, sum.FastestLane)
	assert.Equal(t, "1:01.10", sum.FastestTime)
	assert.InDelta(t, 61.8, sum.MeanSeconds, 1e-9)
	assert.InDelta(t, 1.4, sum.SpreadSeconds, 1e-9)
}

func TestShowConfig(t *testing.T) {
	f := newFixture(t)
	f.d.Subscribe()

	rec := testutil.Serve(f.srv.ServeMux(), http.MethodGet, "/api/config")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var body struct {
		Config      RuntimeConfig `json:"config"`
		Subscribers int           `json:"subscribers"`
	}
	testutil.DecodeJSON(t, rec, &body)
	assert.Equal(t, []string{"serial", "udp"}, body.Config.Sources)
	assert.Equal(t, "9600 8N1", body.Config.PortSettings)
	assert.Equal(t, race.DefaultSentinels(), body.Config.Sentinels)
	assert.Equal(t, 1, body.Subscribers)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	mux := f.srv.ServeMux()
	for _, path := range []string{"/api/state", "/api/summary", "/api/events", "/api/chart", "/api/config"} {
		rec := testutil.Serve(mux, http.MethodPost, path)
		testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestShowChart(t *testing.T) {
	f := newFixture(t)
	f.seedHeat()

	rec := testutil.Serve(f.srv.ServeMux(), http.MethodGet, "/api/chart")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Boys 100 Free")
	assert.Contains(t, body, "fastest lane 5")
	assert.Contains(t, body, "SMITH")
}

func TestLoggingMiddleware(t *testing.T) {
	var logged []string
	restore := captureLog(&logged)
	defer restore()

	f := newFixture(t)
	h := LoggingMiddleware(f.srv.ServeMux())
	testutil.Serve(h, http.MethodGet, "/api/state")
	testutil.Serve(h, http.MethodDelete, "/api/state")

	require.Len(t, logged, 2)
	assert.Contains(t, logged[0], "/api/state")
	assert.Contains(t, logged[0], statusCodeColor(http.StatusOK))
	assert.Contains(t, logged[1], statusCodeColor(http.StatusMethodNotAllowed))
}

type sseEvent struct {
	id, name, data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamEvents(t *testing.T) {
	f := newFixture(t)
	f.apply(race.EventNameUpdate{Title: "Girls 50 Fly"})

	ts := httptest.NewServer(f.srv.ServeMux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?kinds=lane_update,clock_tick", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	first := readEvent(t, r)
	assert.Equal(t, "state", first.name)
	var state StateResponse
	require.NoError(t, json.Unmarshal([]byte(first.data), &state))
	assert.Equal(t, "Girls 50 Fly", state.State.EventTitle)

	// The state event is written after subscribing, so these are seen.
	f.d.Dispatch("serial", race.EventHeatHeader{Event: "7", Heat: "1"})
	f.d.Dispatch("serial", race.LaneUpdate{Lane: 2, Name: "LEE", Time: strp("29.87")})

	ev := readEvent(t, r)
	assert.Equal(t, "lane_update", ev.name, "header is filtered out")
	assert.Equal(t, "3", ev.id)

	var u struct {
		Seq   uint64     `json:"seq"`
		Kind  race.Kind  `json:"kind"`
		Delta race.Delta `json:"delta"`
	}
	require.NoError(t, json.Unmarshal([]byte(ev.data), &u))
	assert.Equal(t, race.KindLaneUpdate, u.Kind)
	require.NotNil(t, u.Delta.Lanes[2].Time)
	assert.Equal(t, "29.87", *u.Delta.Lanes[2].Time)

	cancel()
	require.Eventually(t, func() bool { return f.d.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}
