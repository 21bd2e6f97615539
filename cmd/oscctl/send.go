package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/chabad360/osckit/osc"
)

var (
	sendAt   time.Duration
	sendWait time.Duration
)

func init() {
	cmd := newSendCmd()
	cmd.Flags().DurationVar(&sendAt, "at", 0, "Wrap the message in a bundle due this far in the future")
	cmd.Flags().DurationVar(&sendWait, "wait", 0, "Wait this long for replies and print them")
	rootCmd.AddCommand(cmd)
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <host:port> <address> [argument...]",
		Short: "Send an OSC message",
		Long: `The send command sends one message. Arguments are typed literals such as
i:42, f:2.5, s:text, b:deadbeef, t:+1s or the bare T, F, N and I. Untyped
literals are sent as int32, float32 or string.

Example:
  oscctl send 127.0.0.1:9000 /synth/freq f:440
  oscctl send --at 500ms 127.0.0.1:9000 /synth/gate T
  oscctl send --wait 1s 127.0.0.1:9000 /status`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPacket(args[1], args[2:], sendAt, time.Now())
			if err != nil {
				return err
			}
			return runSend(cmd.OutOrStdout(), args[0], p, sendWait)
		},
	}
}

func runSend(out io.Writer, target string, p osc.Packet, wait time.Duration) error {
	c, err := osc.Dial(target)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Send(p); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(out, "sent to %s:\n", target)
		writePacket(out, p, "  ")
	}
	if wait <= 0 {
		return nil
	}
	return readReplies(out, c, wait)
}

// readReplies prints every packet that arrives on c before the wait is over.
func readReplies(out io.Writer, c *osc.Client, wait time.Duration) error {
	conn, ok := c.Conn()
	if !ok {
		return nil
	}
	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	buf := make([]byte, osc.MaxPacketSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				return nil
			}
			return err
		}
		p, err := osc.ParsePacket(buf[:n])
		if err != nil {
			fmt.Fprintf(out, "reply from %s: %v\n", from, err)
			continue
		}
		fmt.Fprintf(out, "reply from %s:\n", from)
		writePacket(out, p, "  ")
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
