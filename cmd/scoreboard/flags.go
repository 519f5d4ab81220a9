package main

import (
	"github.com/spf13/pflag"

	"github.com/banshee-data/swim.report/internal/config"
)

// flagValues holds the root command's flags before they are merged over the
// config file.
type flagValues struct {
	configPath string
	serialPort string
	baud       int
	itf        string
	udpPort    int
	noUDP      bool
	replay     string
	follow     bool
	pcap       string
	demo       bool
	listen     string
	dbPath     string
	capture    string
	logLevel   string
}

func bindFlags(fs *pflag.FlagSet, v *flagValues) {
	fs.StringVar(&v.configPath, "config", "", "path to a TOML config file")
	fs.StringVar(&v.serialPort, "serial-port", "", "serial device the timing console is attached to")
	fs.IntVar(&v.baud, "baud", config.DefaultBaudRate, "serial baud rate")
	fs.StringVar(&v.itf, "itf", config.DefaultITFPath, "ITF layout describing full-record frames")
	fs.IntVar(&v.udpPort, "udp-port", config.DefaultUDPPort, "UDP port for RTD datagrams")
	fs.BoolVar(&v.noUDP, "no-udp", false, "do not listen for UDP datagrams")
	fs.StringVar(&v.replay, "replay", "", "replay a raw serial capture instead of a live port")
	fs.BoolVar(&v.follow, "follow", false, "keep replaying data appended to the capture file")
	fs.StringVar(&v.pcap, "pcap", "", "replay RTD datagrams from a pcap or pcapng capture")
	fs.BoolVar(&v.demo, "demo", false, "run a synthetic heat instead of any real source")
	fs.StringVar(&v.listen, "listen", config.DefaultListen, "HTTP listen address")
	fs.StringVar(&v.dbPath, "db", "", "sqlite diagnostics journal (disabled when empty)")
	fs.StringVar(&v.capture, "capture", "", "append every serial byte read to this file")
	fs.StringVar(&v.logLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn or error")
}

// applyFlags copies explicitly set flags over cfg. Flags left at their
// defaults never override the config file.
func applyFlags(cfg *config.Config, v flagValues, changed func(name string) bool) {
	str := func(s string) *string { return &s }
	num := func(n int) *int { return &n }
	yes := func(b bool) *bool { return &b }

	if changed("serial-port") {
		cfg.Serial.Port = str(v.serialPort)
	}
	if changed("baud") {
		cfg.Serial.BaudRate = num(v.baud)
	}
	if changed("itf") {
		cfg.ITF = str(v.itf)
	}
	if changed("udp-port") {
		cfg.UDP.Port = num(v.udpPort)
	}
	if changed("no-udp") {
		cfg.UDP.Enabled = yes(!v.noUDP)
	}
	if changed("replay") {
		cfg.Replay.Path = str(v.replay)
	}
	if changed("follow") {
		cfg.Replay.Follow = yes(v.follow)
	}
	if changed("pcap") {
		cfg.PCAP.Path = str(v.pcap)
	}
	if changed("demo") {
		cfg.Demo = yes(v.demo)
	}
	if changed("listen") {
		cfg.Listen = str(v.listen)
	}
	if changed("db") {
		cfg.Diagnostics.DBPath = str(v.dbPath)
	}
	if changed("capture") {
		cfg.Serial.Capture = str(v.capture)
	}
	if changed("log-level") {
		cfg.LogLevel = str(v.logLevel)
	}
}
