package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swim.report/internal/api"
	"github.com/banshee-data/swim.report/internal/config"
	"github.com/banshee-data/swim.report/internal/httputil"
	"github.com/banshee-data/swim.report/internal/testutil"
)

func parseFlags(t *testing.T, args ...string) (*cobra.Command, flagValues) {
	t.Helper()
	var v flagValues
	cmd := &cobra.Command{Use: "test"}
	bindFlags(cmd.Flags(), &v)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd, v
}

func TestApplyFlags_OnlyChangedFlagsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoreboard.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen = ":9000"
[serial]
port = "/dev/ttyS1"
baud_rate = 19200
[udp]
port = 21010
`), 0o644))

	cmd, v := parseFlags(t, "--config", path, "--baud", "9600", "--no-udp")
	cfg, err := loadConfig(cmd.Flags(), v)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.GetListen(), "file value kept when flag left at default")
	assert.Equal(t, "/dev/ttyS1", cfg.GetSerialPort())
	assert.Equal(t, 9600, cfg.GetPortOptions().BaudRate, "explicit flag wins")
	assert.Equal(t, 21010, cfg.GetUDPPort())
	assert.False(t, cfg.GetUDPEnabled())
}

func TestLoadConfig_Errors(t *testing.T) {
	cmd, v := parseFlags(t, "--config", filepath.Join(t.TempDir(), "missing.toml"))
	_, err := loadConfig(cmd.Flags(), v)
	assert.Error(t, err)

	cmd, v = parseFlags(t, "--udp-port", "0")
	_, err = loadConfig(cmd.Flags(), v)
	assert.ErrorContains(t, err, "udp.port")
}

func TestPlanSources(t *testing.T) {
	str := func(s string) *string { return &s }
	yes := func(b bool) *bool { return &b }

	tests := []struct {
		name string
		cfg  config.Config
		want []string
	}{
		{"udp only by default", config.Config{}, []string{"udp"}},
		{"serial and udp together", config.Config{Serial: config.SerialConfig{Port: str("/dev/ttyUSB0")}}, []string{"serial", "udp"}},
		{"udp disabled", config.Config{UDP: config.UDPConfig{Enabled: yes(false)}}, nil},
		{"replay beats serial", config.Config{
			Serial: config.SerialConfig{Port: str("/dev/ttyUSB0")},
			Replay: config.ReplayConfig{Path: str("serial_log.bin")},
		}, []string{"replay"}},
		{"replay and pcap together", config.Config{
			Replay: config.ReplayConfig{Path: str("serial_log.bin")},
			PCAP:   config.PCAPConfig{Path: str("meet.pcap")},
		}, []string{"replay", "pcap"}},
		{"demo beats everything", config.Config{
			Demo:   yes(true),
			Replay: config.ReplayConfig{Path: str("serial_log.bin")},
			Serial: config.SerialConfig{Port: str("/dev/ttyUSB0")},
		}, []string{"demo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			assert.Equal(t, tt.want, planSources(&cfg).Names())
		})
	}
}

func TestNewPipeline_NoSource(t *testing.T) {
	no := false
	_, err := newPipeline(&config.Config{UDP: config.UDPConfig{Enabled: &no}})
	assert.ErrorContains(t, err, "no source configured")
}

func TestNewPipeline_MissingITF(t *testing.T) {
	replay := filepath.Join(t.TempDir(), "serial_log.bin")
	require.NoError(t, os.WriteFile(replay, nil, 0o644))
	itf := filepath.Join(t.TempDir(), "missing.itf")
	_, err := newPipeline(&config.Config{
		ITF:    &itf,
		Replay: config.ReplayConfig{Path: &replay},
	})
	assert.Error(t, err)
}

func waitForState(t *testing.T, h http.Handler, ok func(api.StateResponse) bool) api.StateResponse {
	t.Helper()
	var last api.StateResponse
	require.Eventually(t, func() bool {
		rec := testutil.Serve(h, http.MethodGet, "/api/state")
		if rec.Code != http.StatusOK {
			return false
		}
		last = api.StateResponse{}
		testutil.DecodeJSON(t, rec, &last)
		return ok(last)
	}, 5*time.Second, 20*time.Millisecond)
	return last
}

func TestPipeline_Demo(t *testing.T) {
	yes := true
	dbPath := filepath.Join(t.TempDir(), "diag.db")
	p, err := newPipeline(&config.Config{Demo: &yes, Diagnostics: config.DiagnosticsConfig{DBPath: &dbPath}})
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	state := waitForState(t, p.Handler(), func(s api.StateResponse) bool { return s.State.RunningTime != "" })
	assert.Equal(t, "005", state.State.EventNumber)
	assert.Equal(t, "Demo Men's 100 Free", state.State.EventTitle)
	assert.Equal(t, "LS", state.State.Lanes[0].Name)

	rec := testutil.Serve(p.Handler(), http.MethodGet, "/api/config")
	assert.Contains(t, rec.Body.String(), `"demo"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}

func TestPipeline_Replay(t *testing.T) {
	dir := t.TempDir()
	itf := filepath.Join(dir, "OS2-Swimming.itf")
	require.NoError(t, os.WriteFile(itf, []byte("NAME=Event Number\nLENGTH=3\nNAME=Heat Number\nLENGTH=3\nNAME=Event Title Line 1\nLENGTH=40\n"), 0o644))

	var stream []byte
	stream = append(stream, testutil.Frame([]byte(testutil.Pad("  9  1Girls 50 Free", 46)))...)
	stream = append(stream, testutil.Frame(testutil.LaneFrame("KIM", "ORCA", "4", "1", "31.04"))...)
	replay := filepath.Join(dir, "serial_log.bin")
	require.NoError(t, os.WriteFile(replay, stream, 0o644))

	delay := "0s"
	p, err := newPipeline(&config.Config{
		ITF:    &itf,
		Replay: config.ReplayConfig{Path: &replay, ByteDelay: &delay},
	})
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	state := waitForState(t, p.Handler(), func(s api.StateResponse) bool { return s.Seq == 2 })
	assert.Equal(t, "9", state.State.EventNumber)
	assert.Equal(t, "Girls 50 Free", state.State.EventTitle)
	assert.Equal(t, "KIM", state.State.Lanes[3].Name)
	require.NotNil(t, state.State.Lanes[3].Time)
	assert.Equal(t, "31.04", *state.State.Lanes[3].Time)
}

func TestPrintStatus(t *testing.T) {
	tm := "1:01.10"
	client := httputil.NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"seq":12,"state":{"event_number":"5","heat_number":"2","event_title":"Boys 100 Free","running_time":"1:03.0","lanes":[{"lane":1,"name":"JONES","team":"ORCA","place":"1","time":"`+tm+`"},{"lane":2}]}}`).
		AddResponse(http.StatusOK, `{"recorded":1,"fastest_lane":1,"fastest_time":"1:01.10","mean_seconds":61.1}`)

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, printStatus(cmd, client, "http://scoreboard"))
	got := out.String()
	assert.Contains(t, got, "Event 5  Heat 2  Boys 100 Free")
	assert.Contains(t, got, "Clock 1:03.0  (update 12)")
	assert.Contains(t, got, "JONES")
	assert.Contains(t, got, "fastest lane 1 in 1:01.10")

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/api/state", reqs[0].URL.Path)
	assert.Equal(t, "/api/summary", reqs[1].URL.Path)
}

func TestPrintStatus_AgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.ServiceUnavailable(w, "no source running")
	}))
	defer srv.Close()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	err := printStatus(cmd, srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "no source running")
}

func TestRootCommand_Version(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "swim.report")
}
