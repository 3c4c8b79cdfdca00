// Package scanner provides passive monitoring of Neo Smart Blue blinds:
// a continuous BLE scan that decodes status advertisements into the device
// registry and fans them out as events. No connection is ever made from
// this package; status flows from advertisements alone.
package scanner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openblinds/bluelink/internal/blue"
	"github.com/openblinds/bluelink/internal/device"
)

// Neo blinds advertise under these local-name prefixes; devices that have
// not yet broadcast manufacturer data can still be recognized by name.
var neoNamePrefixes = []string{"NEO-", "NMB-"}

const eventBuffer = 100

// Event is a successfully decoded status advertisement.
type Event struct {
	Address   string
	Name      string
	Snapshot  blue.StatusSnapshot
	Timestamp time.Time
}

// Options configures a monitor run.
type Options struct {
	// Duration bounds the scan; 0 scans until the context ends.
	Duration time.Duration
	// Addresses restricts monitoring to specific devices; empty means all
	// Neo devices in range.
	Addresses []string
}

// Monitor drives the passive scan loop. Advertisements from Neo devices are
// decoded synchronously on the scan loop (pure computation, non-blocking)
// and pushed to the registry and the event channel.
type Monitor struct {
	scanner  device.Scanner
	registry *Registry
	logger   *logrus.Logger
	events   chan Event
}

// NewMonitor creates a monitor writing into registry.
func NewMonitor(scanner device.Scanner, registry *Registry, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{
		scanner:  scanner,
		registry: registry,
		logger:   logger,
		events:   make(chan Event, eventBuffer),
	}
}

// Events returns the decoded snapshot stream. Events are dropped, not
// blocked on, when the consumer falls behind.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Registry returns the registry this monitor writes to.
func (m *Monitor) Registry() *Registry {
	return m.registry
}

// Run scans until the context ends or the configured duration elapses.
// Context cancellation and deadline expiry are normal termination, not
// errors.
func (m *Monitor) Run(ctx context.Context, opts *Options) error {
	if opts == nil {
		opts = &Options{}
	}

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	m.logger.WithField("duration", opts.Duration).Info("Starting passive BLE scan...")

	allow := make(map[string]struct{}, len(opts.Addresses))
	for _, a := range opts.Addresses {
		allow[a] = struct{}{}
	}

	err := m.scanner.Scan(scanCtx, true, func(adv device.Advertisement) {
		m.handleAdvertisement(adv, allow)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	m.logger.WithField("devices", m.registry.entries.Len()).Info("Passive scan finished")
	return nil
}

// handleAdvertisement decodes one advertisement. A failed decode is logged
// and skipped; the registry keeps the previous snapshot (decoding is
// all-or-nothing, so there is no partial state to corrupt it with).
func (m *Monitor) handleAdvertisement(adv device.Advertisement, allow map[string]struct{}) {
	if !IsNeoDevice(adv) {
		return
	}
	if len(allow) > 0 {
		if _, ok := allow[adv.Addr()]; !ok {
			return
		}
	}

	payload, err := blue.ExtractStatusPayload(adv.ManufacturerData())
	if err != nil {
		// Name-matched advertisement without a status payload; presence only.
		m.logger.WithFields(logrus.Fields{
			"address": adv.Addr(),
			"error":   err,
		}).Debug("Advertisement without decodable status payload")
		m.registry.Observe(adv, nil)
		return
	}

	snap, err := blue.DecodeStatus(payload)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"address": adv.Addr(),
			"error":   err,
		}).Warn("Failed to decode status payload, keeping previous snapshot")
		m.registry.Observe(adv, nil)
		return
	}
	snap.RSSI = adv.RSSI()

	entry := m.registry.Observe(adv, &snap)

	m.logger.WithFields(logrus.Fields{
		"address":  entry.Address,
		"battery":  snap.BatteryPercent,
		"position": snap.PositionPercent,
		"motor":    snap.MotorRunning,
		"rssi":     snap.RSSI,
	}).Debug("Decoded status advertisement")

	ev := Event{
		Address:   entry.Address,
		Name:      entry.Name,
		Snapshot:  snap,
		Timestamp: entry.LastSeen,
	}
	select {
	case m.events <- ev:
	default:
		m.logger.WithField("address", entry.Address).Debug("Event channel full, dropping event")
	}
}

// IsNeoDevice reports whether an advertisement belongs to a Neo Smart Blue
// blind, either by manufacturer ID or by local-name prefix.
func IsNeoDevice(adv device.Advertisement) bool {
	if blue.IsNeoAdvertisement(adv.ManufacturerData()) {
		return true
	}
	name := adv.LocalName()
	for _, prefix := range neoNamePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
