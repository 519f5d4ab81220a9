package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"
	"tailscale.com/tsweb"

	"github.com/banshee-data/swim.report/internal/api"
	"github.com/banshee-data/swim.report/internal/config"
	"github.com/banshee-data/swim.report/internal/db"
	"github.com/banshee-data/swim.report/internal/dispatch"
	"github.com/banshee-data/swim.report/internal/layout"
	"github.com/banshee-data/swim.report/internal/monitoring"
	"github.com/banshee-data/swim.report/internal/network"
	"github.com/banshee-data/swim.report/internal/race"
	"github.com/banshee-data/swim.report/internal/serialmux"
	"github.com/banshee-data/swim.report/internal/version"
)

// sourcePlan is the set of sources that will run. A demo excludes everything
// else; replay and pcap exclude the live sources; serial and UDP can run
// together.
type sourcePlan struct {
	Demo   bool
	Replay string
	PCAP   string
	Serial string
	UDP    bool
}

func planSources(cfg *config.Config) sourcePlan {
	if cfg.GetDemo() {
		return sourcePlan{Demo: true}
	}
	if cfg.GetReplayPath() != "" || cfg.GetPCAPPath() != "" {
		return sourcePlan{Replay: cfg.GetReplayPath(), PCAP: cfg.GetPCAPPath()}
	}
	return sourcePlan{Serial: cfg.GetSerialPort(), UDP: cfg.GetUDPEnabled()}
}

// Names lists the dispatch source labels in priority order.
func (p sourcePlan) Names() []string {
	var names []string
	if p.Demo {
		names = append(names, "demo")
	}
	if p.Replay != "" {
		names = append(names, "replay")
	}
	if p.PCAP != "" {
		names = append(names, "pcap")
	}
	if p.Serial != "" {
		names = append(names, "serial")
	}
	if p.UDP {
		names = append(names, "udp")
	}
	return names
}

func (p sourcePlan) streams() bool { return p.Replay != "" || p.Serial != "" }

type runner struct {
	name string
	run  func(ctx context.Context) error
}

// pipeline is every long-running part of the scoreboard except the HTTP
// listener.
type pipeline struct {
	cfg        *config.Config
	plan       sourcePlan
	dispatcher *dispatch.Dispatcher
	keeper     *dispatch.StateKeeper
	mux        *http.ServeMux

	runners []runner
	closers []io.Closer
}

func newPipeline(cfg *config.Config) (_ *pipeline, err error) {
	plan := planSources(cfg)
	if len(plan.Names()) == 0 {
		return nil, errors.New("no source configured: set --serial-port, --replay, --pcap or --demo, or enable UDP")
	}

	sentinels := cfg.GetSentinels()
	p := &pipeline{
		cfg:        cfg,
		plan:       plan,
		dispatcher: dispatch.New(dispatch.Options{Sentinels: sentinels}),
		keeper:     dispatch.NewStateKeeper(),
		mux:        http.NewServeMux(),
	}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	sub := p.dispatcher.Subscribe()
	p.add("state", func(ctx context.Context) error { return p.keeper.Run(ctx, sub) })

	var sink db.DiagnosticSink
	if path := cfg.GetDBPath(); path != "" {
		database, err := db.NewDB(path)
		if err != nil {
			return nil, fmt.Errorf("open diagnostics journal: %w", err)
		}
		p.closers = append(p.closers, database)
		if err := database.AttachAdminRoutes(p.mux); err != nil {
			return nil, err
		}
		journal := db.NewJournal(database, db.JournalOptions{Retention: cfg.GetRetention()})
		p.add("journal", func(ctx context.Context) error { journal.Run(ctx); return nil })
		sink = journal
	}

	rc := api.RuntimeConfig{
		Sources:   plan.Names(),
		UDPPort:   cfg.GetUDPPort(),
		Sentinels: sentinels,
		Version:   version.Version,
	}

	if plan.streams() {
		itf, err := layout.Load(cfg.GetITF())
		if err != nil {
			return nil, err
		}
		rc.Layout, rc.LayoutLength = cfg.GetITF(), itf.TotalLength()
		classifier := race.NewClassifier(itf, sentinels)
		if err := p.addStreams(classifier, sink, &rc); err != nil {
			return nil, err
		}
	}
	if plan.Demo || plan.PCAP != "" || plan.UDP {
		if err := p.addDatagrams(sink, &rc); err != nil {
			return nil, err
		}
	}

	apiServer := api.NewServer(p.keeper, p.dispatcher, rc, api.Options{})
	p.mux.Handle("/api/", apiServer.ServeMux())
	return p, nil
}

func (p *pipeline) add(name string, run func(ctx context.Context) error) {
	p.runners = append(p.runners, runner{name: name, run: run})
}

func (p *pipeline) addStreams(classifier *race.Classifier, sink db.DiagnosticSink, rc *api.RuntimeConfig) error {
	base := serialmux.Config{
		Classifier:  classifier,
		Dispatcher:  p.dispatcher,
		Diagnostics: sink,
		ReadTimeout: p.cfg.GetReadTimeout(),
	}

	if path := p.plan.Replay; path != "" {
		port, err := serialmux.OpenReplay(path, serialmux.ReplayOptions{
			ByteDelay: p.cfg.GetByteDelay(),
			Follow:    p.cfg.GetFollow(),
		})
		if err != nil {
			return err
		}
		cfg := base
		cfg.Source = "replay"
		m := serialmux.NewSerialMux(port, cfg)
		p.closers = append(p.closers, m)
		m.AttachAdminRoutes(p.mux)
		p.add("replay", m.Monitor)
	}

	if path := p.plan.Serial; path != "" {
		opts, err := p.cfg.GetPortOptions().Normalize()
		if err != nil {
			return err
		}
		port, err := serialmux.OpenPort(path, opts)
		if err != nil {
			return fmt.Errorf("open serial port %s: %w", path, err)
		}
		cfg := base
		cfg.Source = "serial"
		if capPath := p.cfg.GetCapturePath(); capPath != "" {
			capture, err := serialmux.OpenCapture(capPath)
			if err != nil {
				port.Close()
				return err
			}
			p.closers = append(p.closers, capture)
			cfg.Capture = capture
		}
		m := serialmux.NewSerialMux(port, cfg)
		p.closers = append(p.closers, m)
		m.AttachAdminRoutes(p.mux)
		p.add("serial", m.Monitor)
		rc.SerialPort, rc.PortSettings = path, opts.String()
	}
	return nil
}

func (p *pipeline) addDatagrams(sink db.DiagnosticSink, rc *api.RuntimeConfig) error {
	dgLayout := layout.RTDLayout()
	if path := p.cfg.GetUDPLayout(); path != "" {
		l, err := layout.Load(path)
		if err != nil {
			return err
		}
		dgLayout = l
	}
	if rc.Layout == "" {
		rc.Layout, rc.LayoutLength = "rtd", dgLayout.TotalLength()
	}

	debug := tsweb.Debugger(p.mux)
	listener := func(source string, factory network.UDPSocketFactory) *network.UDPListener {
		l := network.NewUDPListener(network.UDPListenerConfig{
			Address:       fmt.Sprintf(":%d", p.cfg.GetUDPPort()),
			RcvBuf:        p.cfg.GetRcvBuf(),
			Source:        source,
			Layout:        dgLayout,
			Dispatcher:    p.dispatcher,
			Diagnostics:   sink,
			SocketFactory: factory,
		})
		debug.HandleFunc(source+"-stats", "datagram counters", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(l.Stats().Peek())
		})
		return l
	}

	switch {
	case p.plan.Demo:
		demo := network.NewDemoSocket(network.DemoOptions{Layout: dgLayout})
		p.add("demo", listener("demo", demo.Factory()).Start)
	case p.plan.PCAP != "":
		l := listener("pcap", nil)
		path := p.plan.PCAP
		opts := network.PCAPOptions{
			Port:     p.cfg.GetUDPPort(),
			Realtime: p.cfg.GetPCAPRealtime(),
			Speed:    p.cfg.GetPCAPSpeed(),
		}
		p.add("pcap", func(ctx context.Context) error {
			_, err := network.ReplayPCAP(ctx, path, opts, l.HandleDatagram)
			return err
		})
	case p.plan.UDP:
		p.add("udp", listener("udp", nil).Start)
	}
	return nil
}

// Handler serves the API and the debug routes.
func (p *pipeline) Handler() http.Handler { return p.mux }

// Run starts every runner and waits for them. A runner that fails stops the
// rest; finished sources (an exhausted replay) do not.
func (p *pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range p.runners {
		g.Go(func() error {
			err := r.run(gctx)
			if err == nil || errors.Is(err, context.Canceled) {
				monitoring.Infof("%s routine terminated", r.name)
				return nil
			}
			return fmt.Errorf("%s: %w", r.name, err)
		})
	}
	return g.Wait()
}

// Close releases ports, captures and the journal. Safe to call more than once.
func (p *pipeline) Close() {
	p.dispatcher.Close()
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			monitoring.Warnf("close: %v", err)
		}
	}
	p.closers = nil
}
