// Package config loads the scoreboard's TOML configuration. Every field is
// optional; the Get* methods supply defaults for whatever the file omits.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/banshee-data/swim.report/internal/race"
	"github.com/banshee-data/swim.report/internal/serialmux"
)

const (
	DefaultITFPath     = "OS2-Swimming.itf"
	DefaultListen      = ":8080"
	DefaultBaudRate    = serialmux.DefaultBaudRate
	DefaultUDPPort     = 21003
	DefaultReadTimeout = time.Second
	DefaultByteDelay   = 2 * time.Millisecond
	DefaultLogLevel    = "info"
	DefaultRetention   = 7 * 24 * time.Hour
	DefaultPCAPSpeed   = 1.0

	maxFileSize = 1 << 20
)

// Config is the root of the TOML file.
type Config struct {
	LogLevel *string `toml:"log_level,omitempty" json:"log_level,omitempty"`
	Listen   *string `toml:"listen,omitempty" json:"listen,omitempty"`
	ITF      *string `toml:"itf,omitempty" json:"itf,omitempty"`
	Demo     *bool   `toml:"demo,omitempty" json:"demo,omitempty"`

	Serial      SerialConfig      `toml:"serial" json:"serial"`
	Replay      ReplayConfig      `toml:"replay" json:"replay"`
	UDP         UDPConfig         `toml:"udp" json:"udp"`
	PCAP        PCAPConfig        `toml:"pcap" json:"pcap"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics" json:"diagnostics"`
	Sentinels   SentinelConfig    `toml:"sentinels" json:"sentinels"`
}

type SerialConfig struct {
	Port        *string `toml:"port,omitempty" json:"port,omitempty"`
	BaudRate    *int    `toml:"baud_rate,omitempty" json:"baud_rate,omitempty"`
	DataBits    *int    `toml:"data_bits,omitempty" json:"data_bits,omitempty"`
	StopBits    *int    `toml:"stop_bits,omitempty" json:"stop_bits,omitempty"`
	Parity      *string `toml:"parity,omitempty" json:"parity,omitempty"`
	ReadTimeout *string `toml:"read_timeout,omitempty" json:"read_timeout,omitempty"`

	// Capture appends every byte read to this file.
	Capture *string `toml:"capture,omitempty" json:"capture,omitempty"`
}

type ReplayConfig struct {
	Path      *string `toml:"path,omitempty" json:"path,omitempty"`
	ByteDelay *string `toml:"byte_delay,omitempty" json:"byte_delay,omitempty"`
	Follow    *bool   `toml:"follow,omitempty" json:"follow,omitempty"`
}

type UDPConfig struct {
	Enabled *bool `toml:"enabled,omitempty" json:"enabled,omitempty"`
	Port    *int  `toml:"port,omitempty" json:"port,omitempty"`
	RcvBuf  *int  `toml:"rcv_buf,omitempty" json:"rcv_buf,omitempty"`

	// Layout is an ITF file describing the datagrams. Empty means RTD.
	Layout *string `toml:"layout,omitempty" json:"layout,omitempty"`
}

type PCAPConfig struct {
	Path     *string  `toml:"path,omitempty" json:"path,omitempty"`
	Realtime *bool    `toml:"realtime,omitempty" json:"realtime,omitempty"`
	Speed    *float64 `toml:"speed,omitempty" json:"speed,omitempty"`
}

type DiagnosticsConfig struct {
	// DBPath is the sqlite journal. Empty disables the journal.
	DBPath    *string `toml:"db_path,omitempty" json:"db_path,omitempty"`
	Retention *string `toml:"retention,omitempty" json:"retention,omitempty"`
}

type SentinelConfig struct {
	Reset  *string `toml:"reset,omitempty" json:"reset,omitempty"`
	NoTime *string `toml:"no_time,omitempty" json:"no_time,omitempty"`
}

// Load reads and validates a TOML config. Unknown keys are rejected so typos
// surface at startup.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".toml" {
		return nil, fmt.Errorf("config file must have .toml extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML data and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var decErr *toml.DecodeError
		if errors.As(err, &decErr) {
			row, col := decErr.Position()
			return nil, fmt.Errorf("failed to parse config TOML at line %d column %d: %w", row, col, err)
		}
		var strictErr *toml.StrictMissingError
		if errors.As(err, &strictErr) {
			return nil, fmt.Errorf("unknown config keys: %s", strictErr.String())
		}
		return nil, fmt.Errorf("failed to parse config TOML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	for name, d := range map[string]*string{
		"serial.read_timeout":   c.Serial.ReadTimeout,
		"replay.byte_delay":     c.Replay.ByteDelay,
		"diagnostics.retention": c.Diagnostics.Retention,
	} {
		if d == nil || *d == "" {
			continue
		}
		v, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, *d, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *d)
		}
	}
	if c.UDP.Port != nil && (*c.UDP.Port <= 0 || *c.UDP.Port > 65535) {
		return fmt.Errorf("udp.port must be between 1 and 65535, got %d", *c.UDP.Port)
	}
	if c.UDP.RcvBuf != nil && *c.UDP.RcvBuf < 0 {
		return fmt.Errorf("udp.rcv_buf must be non-negative, got %d", *c.UDP.RcvBuf)
	}
	if c.PCAP.Speed != nil && *c.PCAP.Speed <= 0 {
		return fmt.Errorf("pcap.speed must be positive, got %g", *c.PCAP.Speed)
	}
	if _, err := c.GetPortOptions().Normalize(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	s := c.GetSentinels()
	if s.Reset == s.NoTime {
		return fmt.Errorf("sentinels.reset and sentinels.no_time must differ, both are %q", s.Reset)
	}
	return nil
}

func (c *Config) GetLogLevel() string {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return DefaultLogLevel
	}
	return *c.LogLevel
}

func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

func (c *Config) GetITF() string {
	if c.ITF == nil || *c.ITF == "" {
		return DefaultITFPath
	}
	return *c.ITF
}

func (c *Config) GetDemo() bool {
	return c.Demo != nil && *c.Demo
}

// GetSerialPort returns the device path, or "" when no serial source is set.
func (c *Config) GetSerialPort() string {
	if c.Serial.Port == nil {
		return ""
	}
	return *c.Serial.Port
}

// GetPortOptions returns the serial parameters; unset values are left zero
// for PortOptions.Normalize to fill.
func (c *Config) GetPortOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial.BaudRate != nil {
		opts.BaudRate = *c.Serial.BaudRate
	}
	if c.Serial.DataBits != nil {
		opts.DataBits = *c.Serial.DataBits
	}
	if c.Serial.StopBits != nil {
		opts.StopBits = *c.Serial.StopBits
	}
	if c.Serial.Parity != nil {
		opts.Parity = *c.Serial.Parity
	}
	return opts
}

func (c *Config) GetReadTimeout() time.Duration {
	return parseDurationOr(c.Serial.ReadTimeout, DefaultReadTimeout)
}

func (c *Config) GetCapturePath() string {
	if c.Serial.Capture == nil {
		return ""
	}
	return *c.Serial.Capture
}

func (c *Config) GetReplayPath() string {
	if c.Replay.Path == nil {
		return ""
	}
	return *c.Replay.Path
}

func (c *Config) GetByteDelay() time.Duration {
	return parseDurationOr(c.Replay.ByteDelay, DefaultByteDelay)
}

func (c *Config) GetFollow() bool {
	return c.Replay.Follow != nil && *c.Replay.Follow
}

// GetUDPEnabled defaults to true: the listener runs unless disabled.
func (c *Config) GetUDPEnabled() bool {
	return c.UDP.Enabled == nil || *c.UDP.Enabled
}

func (c *Config) GetUDPPort() int {
	if c.UDP.Port == nil {
		return DefaultUDPPort
	}
	return *c.UDP.Port
}

func (c *Config) GetRcvBuf() int {
	if c.UDP.RcvBuf == nil {
		return 0
	}
	return *c.UDP.RcvBuf
}

func (c *Config) GetUDPLayout() string {
	if c.UDP.Layout == nil {
		return ""
	}
	return *c.UDP.Layout
}

func (c *Config) GetPCAPPath() string {
	if c.PCAP.Path == nil {
		return ""
	}
	return *c.PCAP.Path
}

// GetPCAPRealtime defaults to true so a capture replays at its recorded pace.
func (c *Config) GetPCAPRealtime() bool {
	return c.PCAP.Realtime == nil || *c.PCAP.Realtime
}

func (c *Config) GetPCAPSpeed() float64 {
	if c.PCAP.Speed == nil || *c.PCAP.Speed <= 0 {
		return DefaultPCAPSpeed
	}
	return *c.PCAP.Speed
}

func (c *Config) GetDBPath() string {
	if c.Diagnostics.DBPath == nil {
		return ""
	}
	return *c.Diagnostics.DBPath
}

func (c *Config) GetRetention() time.Duration {
	return parseDurationOr(c.Diagnostics.Retention, DefaultRetention)
}

// GetSentinels returns the configured sentinels, each falling back to its
// default independently.
func (c *Config) GetSentinels() race.Sentinels {
	s := race.DefaultSentinels()
	if c.Sentinels.Reset != nil && *c.Sentinels.Reset != "" {
		s.Reset = *c.Sentinels.Reset
	}
	if c.Sentinels.NoTime != nil && *c.Sentinels.NoTime != "" {
		s.NoTime = *c.Sentinels.NoTime
	}
	return s
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
