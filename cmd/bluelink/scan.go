package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openblinds/bluelink/internal/device/goble"
	"github.com/openblinds/bluelink/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Neo Smart Blue blinds",
	Long: `Scan for Neo Smart Blue blinds in the vicinity.

Blinds are recognized by their manufacturer identifier (2407) or by the
NEO-/NMB- name prefixes. Status broadcast in the advertisements (battery,
position, motor state) is decoded and shown without connecting.`,
	RunE: runScanCmd,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanVerbose  bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanVerbose, "verbose", false, "Verbose output")
}

func runScanCmd(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	logger, err := configureLogger(cmd, "verbose", "")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ble, err := goble.NewScanner()
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	registry := scanner.NewRegistry(0)
	monitor := scanner.NewMonitor(ble, registry, logger)

	ctx, cancel := interruptibleContext(context.Background())
	defer cancel()

	fmt.Printf("Scanning for Neo Smart Blue blinds (%s)...\n", scanDuration)
	if err := monitor.Run(ctx, &scanner.Options{Duration: scanDuration}); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	entries := registry.Devices()
	if scanFormat == "json" {
		return displayEntriesJSON(entries)
	}
	return displayEntriesTable(entries)
}

// interruptibleContext returns a context cancelled by Ctrl+C / SIGTERM.
func interruptibleContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func displayEntriesTable(entries []scanner.DeviceEntry) error {
	if len(entries) == 0 {
		fmt.Println("No blinds discovered")
		return nil
	}

	var base io.Writer = os.Stdout
	w := tabwriter.NewWriter(base, 0, 0, 2, ' ', 0)
	header := color.New(color.Bold)
	fmt.Fprintln(w, header.Sprint("NAME\tADDRESS\tRSSI\tBATT\tPOS\tMOTOR\tCONNECTABLE\tLAST SEEN"))
	fmt.Fprintln(w, strings.Repeat("-", 90))

	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "(unnamed)"
		}
		batt, pos, motor := "-", "-", "-"
		if s := e.Snapshot; s != nil {
			batt = fmt.Sprintf("%d%%", s.BatteryPercent)
			pos = fmt.Sprintf("%d%%", s.PositionPercent)
			motor = motorLabel(*s)
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s\t%s\t%t\t%s ago\n",
			name, e.Address, e.RSSI, batt, pos, motor, e.Connectable,
			time.Since(e.LastSeen).Truncate(time.Second))
	}

	return w.Flush()
}

func displayEntriesJSON(entries []scanner.DeviceEntry) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}
