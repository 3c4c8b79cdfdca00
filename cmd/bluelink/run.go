package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openblinds/bluelink/internal/config"
	"github.com/openblinds/bluelink/internal/device"
	"github.com/openblinds/bluelink/internal/device/goble"
	"github.com/openblinds/bluelink/internal/schedule"
	"github.com/openblinds/bluelink/internal/session"
	"github.com/openblinds/bluelink/scanner"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bluelink daemon",
	Long: `Run bluelink as a long-lived daemon.

The daemon scans passively for the configured blinds, keeps their latest
status in memory, and executes the cron schedules from the configuration
file (for example, opening bedroom blinds every morning). Scheduled moves
use the same short-lived command sessions as the CLI verbs.`,
	RunE: runDaemonCmd,
}

var runConfigPath string

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "bluelink.yaml", "Path to configuration file")
}

func runDaemonCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}

	// Level falls back to the config file; --log-level overrides it and is
	// validated like every other verb.
	logger, err := configureLogger(cmd, "", cfg.LogLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ble, err := goble.NewScanner()
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	registry := scanner.NewRegistry(cfg.PresenceTTL)
	monitor := scanner.NewMonitor(ble, registry, logger)
	commander := session.NewCommander(registry,
		func() device.Client { return goble.NewClient(logger) },
		logger, cfg.ConnectTimeout)

	scheduler := schedule.NewScheduler(commander, logger)
	for _, entry := range cfg.Schedules {
		if err := scheduler.Add(entry); err != nil {
			return fmt.Errorf("failed to register schedule: %w", err)
		}
	}

	ctx, cancel := interruptibleContext(context.Background())
	defer cancel()

	scheduler.Start()
	defer scheduler.Stop()

	scanErrCh := make(chan error, 1)
	go func() {
		// Indefinite passive scan restricted to the configured roster;
		// an empty roster monitors every Neo blind in range.
		scanErrCh <- monitor.Run(ctx, &scanner.Options{Addresses: cfg.Addresses()})
	}()

	logger.WithField("devices", len(cfg.Devices)).Info("bluelink daemon started")
	fmt.Printf("bluelink daemon running: %d device(s), %d schedule(s) (Ctrl+C to stop)\n",
		len(cfg.Devices), scheduler.Jobs())

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return nil
		case err := <-scanErrCh:
			if err != nil {
				return fmt.Errorf("passive scan terminated: %w", err)
			}
			return nil
		case ev := <-monitor.Events():
			printEvent(ev)
		}
	}
}
