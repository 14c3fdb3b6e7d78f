// Package main provides the demo satellite CLI: a minimal satellite with
// no device-specific behavior, useful for testing discovery, control, and
// heartbeat plumbing end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/constellation-daq/constellation-go/satellite"
)

var (
	flagName      string
	flagGroup     string
	flagInterface string
	flagCmdPort   int
	flagHBPort    int
	flagMonPort   int
	flagChirpPort int
	flagHBInterval time.Duration
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "satellite",
	Short: "Run a Constellation demo satellite",
	Long: `satellite starts a demo Constellation satellite: a controllable endpoint
that advertises itself via CHIRP, answers CSCP commands, and publishes
heartbeats, without any device-specific acquisition behavior.`,
	RunE: runSatellite,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagName, "name", "satellite_demo", "canonical satellite name")
	flags.StringVar(&flagGroup, "group", "constellation", "discovery group")
	flags.StringVar(&flagInterface, "interface", "0.0.0.0", "interface/address to bind and broadcast on")
	flags.IntVar(&flagCmdPort, "cmd-port", 23999, "CSCP command port (0 for ephemeral)")
	flags.IntVar(&flagHBPort, "hb-port", 61234, "CHP heartbeat publish port (0 for ephemeral)")
	flags.IntVar(&flagMonPort, "mon-port", 55556, "reserved CMDP monitoring port (0 to disable the offer)")
	flags.IntVar(&flagChirpPort, "chirp-port", 0, "CHIRP UDP port (0 for the protocol default)")
	flags.DurationVar(&flagHBInterval, "hb-interval", satellite.DefaultHeartbeatInterval, "heartbeat publish interval")
	flags.StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func runSatellite(cmd *cobra.Command, _ []string) error {
	opts := []satellite.Option{
		satellite.WithCommandPort(flagCmdPort),
		satellite.WithHeartbeatPort(flagHBPort),
		satellite.WithMonitoringPort(flagMonPort),
		satellite.WithCHIRPPort(flagChirpPort),
		satellite.WithHeartbeatInterval(flagHBInterval),
		satellite.WithLogLevel(flagLogLevel),
	}

	sat, err := satellite.New(flagName, flagGroup, flagInterface, satellite.DefaultHooks{}, opts...)
	if err != nil {
		return fmt.Errorf("start satellite: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sat.Run()
	}()

	select {
	case <-ctx.Done():
		sat.Shutdown()
		<-done
	case <-done:
	}
	return nil
}

// Execute runs the CLI, exiting the process with status 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
