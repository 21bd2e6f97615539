// Package config loads the YAML configuration of an OSC server process.
//
// A minimal file:
//
//	listen: 0.0.0.0:9000
//	log_level: info
//	routes:
//	  - address: /synth/freq
//	    action: log
//	  - address: /mixer/fader/1
//	    action: forward
//	    target: 192.168.1.40:10023
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pion/logging"
	"gopkg.in/yaml.v3"

	"github.com/chabad360/osckit/osc"
)

// Route actions.
const (
	ActionLog     = "log"
	ActionForward = "forward"
)

// DefaultListen is the default listen address.
const DefaultListen = "0.0.0.0:9000"

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the process configuration.
type Config struct {
	Listen         string   `yaml:"listen"`
	ReadTimeout    Duration `yaml:"read_timeout,omitempty"`
	MaxBundleDepth int      `yaml:"max_bundle_depth,omitempty"`
	LateThreshold  Duration `yaml:"late_threshold,omitempty"`
	SendQueue      int      `yaml:"send_queue,omitempty"`
	LogLevel       string   `yaml:"log_level,omitempty"`

	Capture   Capture   `yaml:"capture,omitempty"`
	Advertise Advertise `yaml:"advertise,omitempty"`
	Routes    []Route   `yaml:"routes,omitempty"`
}

// Capture configures packet capture. An empty Path disables it.
type Capture struct {
	Path string `yaml:"path,omitempty"`
}

// Advertise configures mDNS advertisement.
type Advertise struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	Instance string `yaml:"instance,omitempty"`
}

// Route registers an action at a literal address. Incoming patterns are
// matched against it like any other method.
type Route struct {
	Address string `yaml:"address"`
	Action  string `yaml:"action"`
	// Target is the host:port messages are forwarded to.
	Target string `yaml:"target,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:         DefaultListen,
		MaxBundleDepth: osc.DefaultMaxBundleDepth,
		LateThreshold:  Duration(osc.DefaultLateThreshold),
		SendQueue:      osc.DefaultSendQueue,
		LogLevel:       "info",
	}
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ValidationError lists every problem found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "config: " + strings.Join(e.Problems, "; ")
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		add("listen %q: %v", c.Listen, err)
	}
	if c.ReadTimeout < 0 {
		add("read_timeout must not be negative")
	}
	if c.LateThreshold < 0 {
		add("late_threshold must not be negative")
	}
	if c.MaxBundleDepth < 0 {
		add("max_bundle_depth must not be negative")
	}
	if c.SendQueue < 0 {
		add("send_queue must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		add("%v", err)
	}
	for i, r := range c.Routes {
		if err := osc.ValidateAddress(r.Address); err != nil {
			add("routes[%d]: %v", i, err)
		}
		switch r.Action {
		case ActionLog:
		case ActionForward:
			if _, _, err := net.SplitHostPort(r.Target); err != nil {
				add("routes[%d]: target %q: %v", i, r.Target, err)
			}
		default:
			add("routes[%d]: unknown action %q", i, r.Action)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Level returns the pion log level for LogLevel.
func (c *Config) Level() logging.LogLevel {
	l, err := ParseLevel(c.LogLevel)
	if err != nil {
		return logging.LogLevelInfo
	}
	return l
}

// Apply copies the server settings onto s.
func (c *Config) Apply(s *osc.Server) {
	s.Addr = c.Listen
	s.ReadTimeout = time.Duration(c.ReadTimeout)
	s.MaxBundleDepth = c.MaxBundleDepth
	s.LateThreshold = time.Duration(c.LateThreshold)
	s.SendQueue = c.SendQueue
}

// ParseLevel maps a level name to a pion log level. An empty name is info.
func ParseLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return logging.LogLevelInfo, nil
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelInfo, fmt.Errorf("unknown log_level %q", s)
}
