package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chabad360/osckit/capture"
	"github.com/chabad360/osckit/osc"
)

var (
	dumpSession   string
	dumpDirection string
	dumpPeer      string
	dumpRaw       bool
)

func init() {
	cmd := newDumpCmd()
	cmd.Flags().StringVar(&dumpSession, "session", "", "Show only this session")
	cmd.Flags().StringVar(&dumpDirection, "direction", "", "Show only in or out")
	cmd.Flags().StringVar(&dumpPeer, "peer", "", "Show only this peer address")
	cmd.Flags().BoolVar(&dumpRaw, "raw", false, "Print the raw bytes instead of decoding")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Print a capture file",
		Long: `The dump command prints the datagrams recorded by serve --capture.

Example:
  oscctl dump stage.osccap
  oscctl dump --direction in --peer 192.168.1.40:53000 stage.osccap`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := dumpFilter()
			if err != nil {
				return err
			}
			return runDump(cmd.OutOrStdout(), args[0], filter, dumpRaw)
		},
	}
}

func dumpFilter() (capture.Filter, error) {
	f := capture.Filter{Session: dumpSession, Peer: dumpPeer}
	switch strings.ToLower(dumpDirection) {
	case "":
	case "in":
		f.Direction = osc.DirectionIn
	case "out":
		f.Direction = osc.DirectionOut
	default:
		return f, fmt.Errorf("direction %q: want in or out", dumpDirection)
	}
	return f, nil
}

func runDump(out io.Writer, path string, filter capture.Filter, raw bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	events, err := capture.NewFilteredReader(f, filter).All()
	for _, e := range events {
		writeEvent(out, e, raw)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func writeEvent(out io.Writer, e capture.Event, raw bool) {
	session := e.Session
	if len(session) > 8 {
		session = session[:8]
	}
	fmt.Fprintf(out, "%s %s %-3s %s %d bytes\n",
		e.Timestamp.Format(time.RFC3339Nano), session, e.Direction, e.Peer, len(e.Data))
	if e.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", e.Error)
	}
	if raw {
		fmt.Fprintf(out, "  % x\n", e.Data)
		return
	}
	p, err := e.Packet()
	if err != nil {
		if e.Error == "" {
			fmt.Fprintf(out, "  error: %v\n", err)
		}
		return
	}
	writePacket(out, p, "  ")
}
