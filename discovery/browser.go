package discovery

import (
	"context"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultBrowseTimeout bounds Browse when the context has no deadline.
const DefaultBrowseTimeout = 3 * time.Second

// MDNSResolver browses for services. Browse sends entries until ctx is done or
// no more are expected, then returns. It never closes entries.
type MDNSResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver adapts zeroconf, which closes its entry channel itself, to
// MDNSResolver.
type zeroconfResolver struct{}

func (zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	r, err := zeroconf.NewResolver()
	if err != nil {
		return err
	}
	found := make(chan *zeroconf.ServiceEntry)
	if err := r.Browse(ctx, service, domain, found); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-found:
			if !ok {
				return nil
			}
			select {
			case entries <- e:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Service is a discovered OSC server.
type Service struct {
	Instance string
	HostName string
	Port     int
	IPs      []net.IP
	Text     map[string]string
}

// Addr returns host:port for the first IPv4 address, else the first IPv6
// address, else the host name.
func (s Service) Addr() string {
	port := strconv.Itoa(s.Port)
	for _, ip := range s.IPs {
		if ip.To4() != nil {
			return net.JoinHostPort(ip.String(), port)
		}
	}
	if len(s.IPs) > 0 {
		return net.JoinHostPort(s.IPs[0].String(), port)
	}
	return net.JoinHostPort(strings.TrimSuffix(s.HostName, "."), port)
}

// Types returns the advertised type tags, or "" if none were advertised.
func (s Service) Types() string { return s.Text[TXTKeyTypes] }

// BrowserConfig configures Browse.
type BrowserConfig struct {
	// Timeout applies when the context has no deadline.
	// Default: DefaultBrowseTimeout
	Timeout time.Duration

	// Resolver defaults to zeroconf.
	Resolver MDNSResolver

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Browse collects the OSC servers that answer before the context ends.
// Services are returned sorted by instance name; an instance seen twice keeps
// its latest entry.
func Browse(ctx context.Context, config BrowserConfig) ([]Service, error) {
	resolver := config.Resolver
	if resolver == nil {
		resolver = zeroconfResolver{}
	}
	if _, ok := ctx.Deadline(); !ok {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultBrowseTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	log := newLogger(config.LoggerFactory)

	entries := make(chan *zeroconf.ServiceEntry)
	errc := make(chan error, 1)
	go func() { errc <- resolver.Browse(ctx, ServiceType, DefaultDomain, entries) }()

	byInstance := make(map[string]Service)
	for {
		select {
		case e := <-entries:
			if e == nil {
				continue
			}
			svc := entryToService(e)
			log.Debugf("found %q at %s", svc.Instance, svc.Addr())
			byInstance[svc.Instance] = svc
		case err := <-errc:
			services := make([]Service, 0, len(byInstance))
			for _, svc := range byInstance {
				services = append(services, svc)
			}
			slices.SortFunc(services, func(a, b Service) int { return strings.Compare(a.Instance, b.Instance) })
			if err != nil && ctx.Err() == nil {
				return services, err
			}
			return services, nil
		}
	}
}

func entryToService(e *zeroconf.ServiceEntry) Service {
	ips := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	ips = append(ips, e.AddrIPv4...)
	ips = append(ips, e.AddrIPv6...)
	return Service{
		Instance: e.Instance,
		HostName: e.HostName,
		Port:     e.Port,
		IPs:      ips,
		Text:     ParseTXT(e.Text),
	}
}
