package main

import (
	"fmt"
	"os"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/chabad360/osckit/config"
)

var (
	// Global flags
	logLevel string
	quiet    bool
)

var rootCmd = &cobra.Command{
	Use:   "oscctl",
	Short: "Serve, send, record and discover Open Sound Control traffic",
	Long: `oscctl is a tool for working with Open Sound Control over UDP. It runs
servers that log or forward messages, sends typed messages and timed bundles,
records traffic to capture files and finds servers advertised over mDNS.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return checkLogLevel()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error, disabled")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func checkLogLevel() error {
	if logLevel == "" {
		return nil
	}
	if _, err := config.ParseLevel(logLevel); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	return nil
}

// loggerFactory returns a factory writing to stderr at level, unless the
// --log-level flag overrides it. The flag is checked before any command runs.
func loggerFactory(level logging.LogLevel) logging.LoggerFactory {
	if logLevel != "" {
		if l, err := config.ParseLevel(logLevel); err == nil {
			level = l
		}
	}
	return &logging.DefaultLoggerFactory{
		Writer:          os.Stderr,
		DefaultLogLevel: level,
		ScopeLevels:     map[string]logging.LogLevel{},
	}
}

// printInfo prints to the command's output unless --quiet is set.
func printInfo(cmd *cobra.Command, format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}
