package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/mocap-bridge/internal/mavlink"
	"github.com/roman-kulish/mocap-bridge/internal/mocap"
)

const (
	SourceProcess SourceKind = "process"
	SourceSim     SourceKind = "sim"
)

// serverPlaceholder in source.args is replaced with source.server
const serverPlaceholder = "{server}"

type SourceKind string

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings" json:"settings"`
	Source   SourceConfig   `yaml:"source" json:"source"`
	Output   OutputConfig   `yaml:"output" json:"output"`
	Loop     LoopConfig     `yaml:"loop" json:"loop"`
	Recorder RecorderConfig `yaml:"recorder" json:"recorder"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      string `yaml:"logLevel" json:"logLevel"`
	LogFile       string `yaml:"logFile" json:"logFile,omitempty"`
	LogMaxSize    int    `yaml:"logMaxSize" json:"logMaxSize,omitempty"` // megabytes
	LogMaxBackups int    `yaml:"logMaxBackups" json:"logMaxBackups,omitempty"`
}

// SourceConfig selects and configures the motion capture frame source
type SourceConfig struct {
	Kind                 SourceKind   `yaml:"kind" json:"kind"`
	Server               string       `yaml:"server" json:"server"`   // capture server, host:port
	Command              string       `yaml:"command" json:"command"` // helper executable, process source only
	Args                 []string     `yaml:"args" json:"args,omitempty"`
	ParseErrorsThreshold uint8        `yaml:"parseErrorsThreshold" json:"parseErrorsThreshold"`
	StallTimeout         TimeDuration `yaml:"stallTimeout" json:"stallTimeout"`
	Sim                  SimConfig    `yaml:"sim" json:"sim"`
}

// SimConfig configures the synthetic figure-8 source
type SimConfig struct {
	Rate         float64      `yaml:"rate" json:"rate"`
	Radius       float64      `yaml:"radius" json:"radius"`
	Period       TimeDuration `yaml:"period" json:"period"`
	Height       float64      `yaml:"height" json:"height"`
	OccludeEvery uint64       `yaml:"occludeEvery" json:"occludeEvery"`
}

// OutputConfig describes the MAVLink link to the autopilot
type OutputConfig struct {
	Kind        mavlink.EndpointKind `yaml:"kind" json:"kind"`
	Address     string               `yaml:"address" json:"address"`
	Port        int                  `yaml:"port" json:"port"`
	Device      string               `yaml:"device" json:"device,omitempty"`
	Baud        int                  `yaml:"baud" json:"baud,omitempty"`
	SystemID    byte                 `yaml:"systemId" json:"systemId"`
	ComponentID byte                 `yaml:"componentId" json:"componentId"`
}

// LoopConfig sets the cadences of the bridge
type LoopConfig struct {
	UpdatePeriod    TimeDuration `yaml:"updatePeriod" json:"updatePeriod"`
	HeartbeatPeriod TimeDuration `yaml:"heartbeatPeriod" json:"heartbeatPeriod"`
	PendingBackoff  TimeDuration `yaml:"pendingBackoff" json:"pendingBackoff"`
	StatsInterval   TimeDuration `yaml:"statsInterval" json:"statsInterval"`
}

// RecorderConfig represents flight recorder settings
type RecorderConfig struct {
	Enabled       bool         `yaml:"enabled" json:"enabled"`
	DataDirectory string       `yaml:"dataDirectory" json:"dataDirectory"`
	MaxBatchSize  int          `yaml:"maxBatchSize" json:"maxBatchSize"`
	QueueSize     int          `yaml:"queueSize" json:"queueSize"`
	FlushInterval TimeDuration `yaml:"flushInterval" json:"flushInterval"`
}

// NewConfig returns the configuration with every default applied
func NewConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:      "info",
			LogMaxSize:    100,
			LogMaxBackups: 3,
		},
		Source: SourceConfig{
			Kind:                 SourceProcess,
			Server:               "localhost:801",
			ParseErrorsThreshold: mocap.ParseErrorsThreshold,
		},
		Output: OutputConfig{
			Kind:        mavlink.EndpointUDP,
			Address:     "192.168.1.230",
			Port:        14550,
			Baud:        57600,
			SystemID:    mavlink.DefaultSystemID,
			ComponentID: mavlink.DefaultComponentID,
		},
		Loop: LoopConfig{
			UpdatePeriod:    TimeDuration(20 * time.Millisecond),
			HeartbeatPeriod: TimeDuration(time.Second),
			PendingBackoff:  TimeDuration(10 * time.Millisecond),
			StatsInterval:   TimeDuration(30 * time.Second),
		},
		Recorder: RecorderConfig{
			DataDirectory: "data",
			MaxBatchSize:  100,
			QueueSize:     256,
			FlushInterval: TimeDuration(time.Second),
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults and validates
// the result
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	config := NewConfig()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err = decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Settings.Level(); err != nil {
		errs = append(errs, err)
	}

	switch c.Source.Kind {
	case SourceProcess:
		if c.Source.Command == "" {
			errs = append(errs, errors.New("source.command is required for the process source"))
		}
		if c.Source.ParseErrorsThreshold == 0 {
			errs = append(errs, errors.New("source.parseErrorsThreshold must be at least 1"))
		}
	case SourceSim:
		if c.Source.Sim.Rate < 0 || c.Source.Sim.Radius < 0 {
			errs = append(errs, errors.New("source.sim rate and radius must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind: unknown kind '%s'", c.Source.Kind))
	}
	if c.Source.StallTimeout < 0 {
		errs = append(errs, errors.New("source.stallTimeout must not be negative"))
	}

	switch c.Output.Kind {
	case mavlink.EndpointUDP:
		if c.Output.Address == "" {
			errs = append(errs, errors.New("output.address is required"))
		}
		if c.Output.Port <= 0 || c.Output.Port > 65535 {
			errs = append(errs, fmt.Errorf("output.port: invalid port %d", c.Output.Port))
		}
	case mavlink.EndpointSerial:
		if c.Output.Device == "" {
			errs = append(errs, errors.New("output.device is required for a serial link"))
		}
	default:
		errs = append(errs, fmt.Errorf("output.kind: unknown kind '%s'", c.Output.Kind))
	}

	if c.Loop.UpdatePeriod <= 0 {
		errs = append(errs, errors.New("loop.updatePeriod must be positive"))
	}
	if c.Loop.HeartbeatPeriod <= 0 {
		errs = append(errs, errors.New("loop.heartbeatPeriod must be positive"))
	}
	if c.Loop.PendingBackoff <= 0 {
		errs = append(errs, errors.New("loop.pendingBackoff must be positive"))
	}

	if c.Recorder.Enabled {
		if c.Recorder.MaxBatchSize <= 0 {
			errs = append(errs, errors.New("recorder.maxBatchSize must be positive"))
		}
		if c.Recorder.QueueSize <= 0 {
			errs = append(errs, errors.New("recorder.queueSize must be positive"))
		}
		if c.Recorder.FlushInterval <= 0 {
			errs = append(errs, errors.New("recorder.flushInterval must be positive"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Level parses the configured log level
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return level, fmt.Errorf("settings.logLevel: %w", err)
	}
	return level, nil
}

// ProcessArgs returns the helper arguments with the capture server filled in
func (s *SourceConfig) ProcessArgs() []string {
	args := make([]string, len(s.Args))
	for i, arg := range s.Args {
		args[i] = strings.ReplaceAll(arg, serverPlaceholder, s.Server)
	}
	return args
}

// LinkConfig converts the output settings for the MAVLink link
func (o *OutputConfig) LinkConfig() mavlink.LinkConfig {
	return mavlink.LinkConfig{
		Kind:        o.Kind,
		Address:     net.JoinHostPort(o.Address, strconv.Itoa(o.Port)),
		Device:      o.Device,
		Baud:        o.Baud,
		SystemID:    o.SystemID,
		ComponentID: o.ComponentID,
	}
}

// TimeDuration is a time.Duration written as a Go duration string, e.g. 20ms
type TimeDuration time.Duration

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *TimeDuration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
