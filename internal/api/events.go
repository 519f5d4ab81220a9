package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/swim.report/internal/httputil"
	"github.com/banshee-data/swim.report/internal/monitoring"
	"github.com/banshee-data/swim.report/internal/race"
)

// streamEvents sends the current state as a "state" event, then every
// dispatched update as an event named after its record kind. ?kinds=a,b
// limits which kinds are sent.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	var kinds map[race.Kind]bool
	if q := r.URL.Query().Get("kinds"); q != "" {
		kinds = make(map[race.Kind]bool)
		for _, k := range strings.Split(q, ",") {
			kinds[race.Kind(strings.TrimSpace(k))] = true
		}
	}

	sub := s.dispatcher.Subscribe()
	defer s.dispatcher.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	state, seq := s.keeper.Snapshot()
	if err := writeEvent(w, seq, "state", StateResponse{Seq: seq, State: state}); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case u, ok := <-sub.Updates():
			if !ok {
				return
			}
			if kinds != nil && !kinds[u.Kind] {
				continue
			}
			if err := writeEvent(w, u.Seq, string(u.Kind), u); err != nil {
				monitoring.Debugf("event stream closed: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, id uint64, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, name, data)
	return err
}
