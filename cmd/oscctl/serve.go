package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chabad360/osckit/capture"
	"github.com/chabad360/osckit/config"
	"github.com/chabad360/osckit/discovery"
	"github.com/chabad360/osckit/osc"
)

var (
	serveConfig    string
	serveListen    string
	serveCapture   string
	serveAdvertise bool
	serveInstance  string
	servePrint     bool
)

func init() {
	cmd := newServeCmd()
	cmd.Flags().StringVarP(&serveConfig, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVarP(&serveListen, "listen", "l", "", "UDP listen address (default "+config.DefaultListen+")")
	cmd.Flags().StringVar(&serveCapture, "capture", "", "Append every datagram to this capture file")
	cmd.Flags().BoolVar(&serveAdvertise, "advertise", false, "Advertise the server over mDNS")
	cmd.Flags().StringVar(&serveInstance, "instance", "", "mDNS instance name")
	cmd.Flags().BoolVarP(&servePrint, "print", "p", false, "Print every received packet")
	rootCmd.AddCommand(cmd)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run an OSC server",
		Long: `The serve command runs an OSC server until interrupted. Routes from the
configuration file log or forward the messages sent to their address.

Example:
  oscctl serve --listen :9000 --print
  oscctl serve --config stage.yaml --capture stage.osccap --advertise`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serveSettings(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd.OutOrStdout(), cfg)
		},
	}
}

// serveSettings loads the configuration and applies the flags on top.
func serveSettings(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if serveConfig != "" {
		var err error
		if cfg, err = config.Load(serveConfig); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = serveListen
	}
	if cmd.Flags().Changed("capture") {
		cfg.Capture.Path = serveCapture
	}
	if cmd.Flags().Changed("advertise") {
		cfg.Advertise.Enabled = serveAdvertise
	}
	if cmd.Flags().Changed("instance") {
		cfg.Advertise.Instance = serveInstance
	}
	return cfg, cfg.Validate()
}

// runServe serves until ctx is done.
func runServe(ctx context.Context, out io.Writer, cfg *config.Config) error {
	lf := loggerFactory(cfg.Level())
	log := lf.NewLogger("oscctl")

	d, closeRoutes, err := buildAddressSpace(cfg.Routes, out)
	if err != nil {
		return err
	}
	defer closeRoutes()

	s := &osc.Server{
		Dispatcher:    d,
		LoggerFactory: lf,
		ErrorHandler:  func(err error) { log.Debugf("%v", err) },
	}
	cfg.Apply(s)

	var taps multiTap
	if servePrint {
		taps = append(taps, &printTap{w: out})
	}
	if cfg.Capture.Path != "" {
		w, err := capture.Create(cfg.Capture.Path)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		defer w.Close()
		log.Infof("capturing session %s to %s", w.Session(), cfg.Capture.Path)
		taps = append(taps, w)
	}
	if len(taps) > 0 {
		s.Tap = taps
	}

	conn, err := net.ListenPacket("udp", cfg.Listen)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Infof("listening on %s", conn.LocalAddr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.Serve(conn)
		if errors.Is(err, osc.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		if err := s.Close(); err != nil && !errors.Is(err, osc.ErrServerClosed) {
			log.Warnf("close: %v", err)
		}
		return nil
	})
	if cfg.Advertise.Enabled {
		g.Go(func() error {
			return advertise(ctx, lf, cfg.Advertise.Instance, conn.LocalAddr())
		})
	}

	err = g.Wait()
	st := s.Stats()
	log.Infof("received %d, dropped %d, dispatched %d, sent %d", st.Received, st.Dropped, st.Dispatched, st.Sent)
	return err
}

func advertise(ctx context.Context, lf logging.LoggerFactory, instance string, addr net.Addr) error {
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("advertise: unexpected address %v", addr)
	}
	adv, err := discovery.Advertise(discovery.AdvertiserConfig{
		Instance:      instance,
		Port:          udp.Port,
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return adv.Close()
}

// buildAddressSpace registers a method per route. The returned func closes the
// forwarding clients.
func buildAddressSpace(routes []config.Route, out io.Writer) (*osc.AddressSpace, func(), error) {
	d := osc.NewAddressSpace()
	clients := make(map[string]*osc.Client)
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	for _, r := range routes {
		var m osc.MethodFunc
		switch r.Action {
		case config.ActionLog:
			m = logMethod(out)
		case config.ActionForward:
			c, ok := clients[r.Target]
			if !ok {
				var err error
				if c, err = osc.Dial(r.Target); err != nil {
					closeAll()
					return nil, nil, fmt.Errorf("route %s: %w", r.Address, err)
				}
				clients[r.Target] = c
			}
			m = forwardMethod(c)
		default:
			closeAll()
			return nil, nil, fmt.Errorf("route %s: unknown action %q", r.Address, r.Action)
		}
		if err := d.AddMethodFunc(r.Address, m); err != nil {
			closeAll()
			return nil, nil, err
		}
	}
	return d, closeAll, nil
}

func logMethod(out io.Writer) osc.MethodFunc {
	return func(msg *osc.Message, from *osc.Sender) error {
		_, err := fmt.Fprintf(out, "%s %s %s\n", from.Received.Format(time.TimeOnly), from.Addr, msg)
		return err
	}
}

// forwardMethod resends each message. Methods run on the server's dispatch
// goroutine, so the client is never used concurrently.
func forwardMethod(c *osc.Client) osc.MethodFunc {
	return func(msg *osc.Message, _ *osc.Sender) error {
		return c.Send(msg)
	}
}

// multiTap fans datagrams out to several taps.
type multiTap []osc.Tap

func (m multiTap) Datagram(dir osc.Direction, peer net.Addr, at time.Time, data []byte, err error) {
	for _, t := range m {
		t.Datagram(dir, peer, at, data, err)
	}
}

// printTap prints inbound packets. It is called from the dispatch and writer
// goroutines.
type printTap struct {
	mu sync.Mutex
	w  io.Writer
}

func (t *printTap) Datagram(dir osc.Direction, peer net.Addr, at time.Time, data []byte, err error) {
	if dir != osc.DirectionIn {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.w, "%s %s %d bytes\n", at.Format(time.TimeOnly), peer, len(data))
	if err != nil {
		fmt.Fprintf(t.w, "  error: %v\n", err)
		return
	}
	p, perr := osc.ParsePacket(data)
	if perr != nil {
		fmt.Fprintf(t.w, "  error: %v\n", perr)
		return
	}
	writePacket(t.w, p, "  ")
}
