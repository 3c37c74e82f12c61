// Command realtime is a command-line client for realtime servers: it sends
// requests and events, and streams watched events and feed publishes to
// stdout or an MQTT broker.
//
// Usage:
//
//	REALTIME_URL=wss://rt.example.com/socket realtime feed --ns market --topic /prices
//	realtime --config realtime.yaml request --ns users --path /me --data '{"id":1}'
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "realtime",
		Short: "Talk to a realtime server from the command line",
		Long: `realtime connects to a realtime server over WebSocket and exposes
its interaction modes:

  connect  hold a connection open and report its status
  request  one-shot request/response
  event    send an event, optionally waiting for the acknowledgement
  watch    stream incoming events
  feed     stream topic publishes, optionally relaying them to MQTT

Connection settings come from --config, then REALTIME_URL and
REALTIME_PROTOCOL, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVarP(&g.configPath, "config", "c", "", "YAML configuration file")
	f.StringVar(&g.url, "url", "", "server URL (ws:// or wss://)")
	f.StringSliceVar(&g.protocols, "protocol", nil, "WebSocket subprotocols to offer")
	f.StringVar(&g.credential, "credential", "", "authentication credential: JSON or a plain token")
	f.BoolVar(&g.skipAuth, "skip-auth", false, "connect without authenticating")
	f.DurationVar(&g.renew, "renew", 0, "feed renewal interval (0 disables)")
	f.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.StringVar(&g.logFormat, "log-format", "text", "log format: text or json")
	f.StringVar(&g.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")

	root.AddCommand(
		connectCmd(g),
		requestCmd(g),
		eventCmd(g),
		watchCmd(g),
		feedCmd(g),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
