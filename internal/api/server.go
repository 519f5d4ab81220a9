// Package api serves the scoreboard state to display clients over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/swim.report/internal/dispatch"
	"github.com/banshee-data/swim.report/internal/httputil"
	"github.com/banshee-data/swim.report/internal/monitoring"
	"github.com/banshee-data/swim.report/internal/race"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultHeartbeat is how often an idle event stream sends a keep-alive.
const DefaultHeartbeat = 15 * time.Second

// RuntimeConfig is the non-secret configuration reported by /api/config.
type RuntimeConfig struct {
	Sources      []string       `json:"sources"`
	SerialPort   string         `json:"serial_port,omitempty"`
	PortSettings string         `json:"port_settings,omitempty"`
	UDPPort      int            `json:"udp_port,omitempty"`
	Layout       string         `json:"layout"`
	LayoutLength int            `json:"layout_length"`
	Sentinels    race.Sentinels `json:"sentinels"`
	Version      string         `json:"version"`
}

type Options struct {
	Heartbeat time.Duration
	// AssetsHost overrides where chart pages load echarts from.
	AssetsHost string
}

type Server struct {
	keeper     *dispatch.StateKeeper
	dispatcher *dispatch.Dispatcher
	config     RuntimeConfig
	opts       Options
}

func NewServer(keeper *dispatch.StateKeeper, d *dispatch.Dispatcher, cfg RuntimeConfig, opts Options) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	return &Server{keeper: keeper, dispatcher: d, config: cfg, opts: opts}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Flush keeps the event stream working behind the middleware.
func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/summary", s.showSummary)
	mux.HandleFunc("/api/events", s.streamEvents)
	mux.HandleFunc("/api/chart", s.showChart)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

// StateResponse is the body of /api/state.
type StateResponse struct {
	Seq   uint64         `json:"seq"`
	State race.RaceState `json:"state"`
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	state, seq := s.keeper.Snapshot()

	// ?lane=N narrows the response to one lane.
	if l := r.URL.Query().Get("lane"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			httputil.BadRequest(w, "invalid 'lane' parameter")
			return
		}
		lane, ok := state.Lane(n)
		if !ok {
			httputil.BadRequest(w, "lane out of range")
			return
		}
		httputil.WriteJSONOK(w, lane)
		return
	}
	httputil.WriteJSONOK(w, StateResponse{Seq: seq, State: state})
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	state, _ := s.keeper.Snapshot()
	httputil.WriteJSONOK(w, race.Summarize(state))
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	cfg := s.config
	httputil.WriteJSONOK(w, map[string]interface{}{
		"config":      cfg,
		"subscribers": s.dispatcher.Subscribers(),
	})
}
