// Package discovery advertises and finds OSC servers over DNS-SD (mDNS).
//
// Servers are published as "_osc._udp" with TXT records describing the
// protocol version and the argument types the server understands.
package discovery

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"

	"github.com/chabad360/osckit/osc"
)

const (
	// ServiceType is the DNS-SD service type of OSC over UDP.
	ServiceType = "_osc._udp"

	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
)

var (
	// ErrClosed is returned when an Advertiser is closed twice.
	ErrClosed = errors.New("discovery: closed")

	// ErrInvalidPort is returned for ports outside 1-65535.
	ErrInvalidPort = errors.New("discovery: invalid port (must be 1-65535)")
)

// MDNSServer is a running mDNS registration.
type MDNSServer interface {
	Shutdown()
}

// Registrar publishes a service. The default uses grandcat/zeroconf; tests
// substitute their own.
type Registrar interface {
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

type zeroconfRegistrar struct{}

func (zeroconfRegistrar) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig configures Advertise.
type AdvertiserConfig struct {
	// Instance is the service instance name. Default: "osckit on <hostname>".
	Instance string

	// Port is the UDP port the server listens on.
	Port int

	// Types is the list of supported type tags. Default: osc.SupportedTypeTags.
	Types string

	// Interfaces limits the interfaces to advertise on. Nil means all.
	Interfaces []net.Interface

	// Registrar defaults to zeroconf.
	Registrar Registrar

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Advertiser keeps a service published until Close.
type Advertiser struct {
	instance string
	log      logging.LeveledLogger

	mu     sync.Mutex
	server MDNSServer
}

// Advertise publishes an OSC server.
func Advertise(config AdvertiserConfig) (*Advertiser, error) {
	if config.Port <= 0 || config.Port > 65535 {
		return nil, ErrInvalidPort
	}
	if config.Instance == "" {
		config.Instance = defaultInstance()
	}
	if config.Types == "" {
		config.Types = osc.SupportedTypeTags
	}
	registrar := config.Registrar
	if registrar == nil {
		registrar = zeroconfRegistrar{}
	}
	log := newLogger(config.LoggerFactory)

	txt := TXT(config.Types)
	log.Debugf("registering %s instance=%q port=%d txt=%v", ServiceType, config.Instance, config.Port, txt)

	server, err := registrar.Register(config.Instance, ServiceType, DefaultDomain, config.Port, txt, config.Interfaces)
	if err != nil {
		return nil, fmt.Errorf("discovery: register %s: %w", ServiceType, err)
	}
	log.Infof("advertising %q on port %d", config.Instance, config.Port)

	return &Advertiser{instance: config.Instance, log: log, server: server}, nil
}

// Instance returns the advertised instance name.
func (a *Advertiser) Instance() string { return a.instance }

// Close withdraws the advertisement.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrClosed
	}
	a.server.Shutdown()
	a.server = nil
	a.log.Infof("stopped advertising %q", a.instance)
	return nil
}

func defaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "osckit"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return "osckit on " + host
}

func newLogger(f logging.LoggerFactory) logging.LeveledLogger {
	if f == nil {
		f = &logging.DefaultLoggerFactory{DefaultLogLevel: logging.LogLevelDisabled, Writer: io.Discard}
	}
	return f.NewLogger("osc-discovery")
}
