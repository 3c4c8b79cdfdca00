package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openblinds/bluelink/internal/blue"
	"github.com/openblinds/bluelink/internal/device/goble"
	"github.com/openblinds/bluelink/scanner"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor [device-address...]",
	Short: "Passively monitor blind status from advertisements",
	Long: `Stream decoded status updates for Neo Smart Blue blinds.

Every advertisement carries a full status snapshot (battery, position,
target, motor state, limits); this command decodes and prints each one as
it arrives. No connection is made. Without addresses, all Neo blinds in
range are monitored. Runs until interrupted unless --duration is set.`,
	RunE: runMonitorCmd,
}

var (
	monitorDuration time.Duration
	monitorVerbose  bool
)

func init() {
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "Monitoring duration (0 for indefinite)")
	monitorCmd.Flags().BoolVar(&monitorVerbose, "verbose", false, "Verbose output")
}

func runMonitorCmd(cmd *cobra.Command, args []string) error {
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

	scanErrCh := make(chan error, 1)
	go func() {
		scanErrCh <- monitor.Run(ctx, &scanner.Options{
			Duration:  monitorDuration,
			Addresses: args,
		})
	}()

	fmt.Println("Monitoring blind advertisements (Ctrl+C to stop)...")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErrCh:
			return err
		case ev := <-monitor.Events():
			printEvent(ev)
		}
	}
}

func printEvent(ev scanner.Event) {
	name := ev.Name
	if name == "" {
		name = ev.Address
	}
	s := ev.Snapshot

	flags := ""
	if s.Charging {
		flags += " charging"
	}
	if s.TouchControl {
		flags += " touch"
	}
	if s.ChannelSetting {
		flags += " channel-setting"
	}
	if s.ReverseRotation {
		flags += " reversed"
	}

	fmt.Printf("%s  %s  batt=%3d%%  pos=%3d%%  target=%3d%%  motor=%s  rssi=%d dBm%s\n",
		ev.Timestamp.Format("15:04:05"),
		color.New(color.Bold).Sprint(name),
		s.BatteryPercent, s.PositionPercent, s.TargetPercent,
		motorLabel(s), s.RSSI, flags)
}

func motorLabel(s blue.StatusSnapshot) string {
	if !s.MotorRunning {
		return "stopped"
	}
	switch {
	case s.IsOpening():
		return color.GreenString("opening")
	case s.IsClosing():
		return color.YellowString("closing")
	default:
		return "running"
	}
}
