package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/chabad360/osckit/discovery"
)

var browseTimeout time.Duration

func init() {
	cmd := newBrowseCmd()
	cmd.Flags().DurationVarP(&browseTimeout, "timeout", "t", discovery.DefaultBrowseTimeout, "How long to listen for answers")
	rootCmd.AddCommand(cmd)
}

func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "List OSC servers advertised over mDNS",
		Long: `The browse command lists the _osc._udp services that answer within the timeout.

Example:
  oscctl browse
  oscctl browse --timeout 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd.Context(), cmd.OutOrStdout(), discovery.BrowserConfig{
				Timeout:       browseTimeout,
				LoggerFactory: loggerFactory(logging.LogLevelWarn),
			})
		},
	}
}

func runBrowse(ctx context.Context, out io.Writer, cfg discovery.BrowserConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	services, err := discovery.Browse(ctx, cfg)
	if err != nil {
		return err
	}
	if len(services) == 0 {
		if !quiet {
			fmt.Fprintln(out, "no OSC services found")
		}
		return nil
	}
	for _, s := range services {
		types := s.Types()
		if types == "" {
			types = "-"
		}
		fmt.Fprintf(out, "%-32s %-24s %s\n", s.Instance, s.Addr(), types)
	}
	return nil
}
