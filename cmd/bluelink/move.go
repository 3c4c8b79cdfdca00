package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/openblinds/bluelink/internal/blue"
	"github.com/openblinds/bluelink/internal/device"
	"github.com/openblinds/bluelink/internal/device/goble"
	"github.com/openblinds/bluelink/internal/session"
	"github.com/openblinds/bluelink/scanner"
)

// moveCmd represents the move command
var moveCmd = &cobra.Command{
	Use:   "move <device-address> <position>",
	Short: "Move a blind to a position",
	Long: `Move a blind to an absolute position.

Position uses the device scale: 0 is fully open, 100 is fully closed.
The blind must be advertising as connectable; a short passive scan is run
first to confirm reachability before any connection is attempted.`,
	Args: cobra.ExactArgs(2),
	RunE: runMoveCmd,
}

var (
	cmdDiscoveryTimeout time.Duration
	cmdConnectTimeout   time.Duration
	cmdVerbose          bool
)

func init() {
	for _, c := range []*cobra.Command{moveCmd, openCmd, closeCmd, stopCmd} {
		c.Flags().DurationVar(&cmdDiscoveryTimeout, "discovery-timeout", 10*time.Second, "How long to wait for the blind to appear as connectable")
		c.Flags().DurationVar(&cmdConnectTimeout, "connect-timeout", session.DefaultConnectTimeout, "Connection timeout")
		c.Flags().BoolVar(&cmdVerbose, "verbose", false, "Verbose output")
	}
}

func runMoveCmd(cmd *cobra.Command, args []string) error {
	position, err := strconv.Atoi(args[1])
	if err != nil || position < 0 || position > 100 {
		return fmt.Errorf("invalid position %q: must be an integer in [0,100]", args[1])
	}
	return deliverCommand(cmd, args[0], blue.MoveToPosition{Percent: position})
}

// deliverCommand runs the shared command pipeline: a short passive scan to
// establish reachability, then a single command session. The scan keeps
// running while the session executes so presence data stays fresh.
func deliverCommand(cmd *cobra.Command, address string, command blue.Command) error {
	logger, err := configureLogger(cmd, "verbose", "")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ble, err := goble.NewScanner()
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	registry := scanner.NewRegistry(0)
	monitor := scanner.NewMonitor(ble, registry, logger)

	ctx, cancel := interruptibleContext(context.Background())
	defer cancel()

	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()
	go func() {
		// Presence scan; errors surface through the reachability pre-check.
		_ = monitor.Run(scanCtx, &scanner.Options{Addresses: []string{address}})
	}()

	fmt.Printf("Looking for %s...\n", address)
	if err := waitConnectable(ctx, registry, address, cmdDiscoveryTimeout); err != nil {
		return err
	}

	commander := session.NewCommander(registry,
		func() device.Client { return goble.NewClient(logger) },
		logger, cmdConnectTimeout)

	fmt.Printf("Sending %s to %s...\n", command.String(), address)
	if err := commander.Send(ctx, address, command); err != nil {
		return err
	}

	fmt.Println("Command delivered")
	return nil
}

// waitConnectable polls the registry until the device advertises as
// connectable or the timeout expires. The pre-check itself runs again
// inside the session; this only avoids a guaranteed fail-fast.
func waitConnectable(ctx context.Context, registry *scanner.Registry, address string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if registry.Connectable(address) {
			return nil
		}
		if time.Now().After(deadline) {
			return device.ErrDeviceUnreachable
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
