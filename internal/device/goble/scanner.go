package goble

import (
	"context"

	"github.com/go-ble/ble"

	"github.com/openblinds/bluelink/internal/device"
)

// bleScanner wraps ble.Device to implement the device.Scanner interface
type bleScanner struct {
	dev ble.Device
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the
// device.Advertisement the rest of the repository consumes.
func (s *bleScanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewAdvertisement(adv))
	}
	return s.dev.Scan(ctx, allowDup, bleHandler)
}

// NewScanner creates a device.Scanner instance for passive BLE scanning.
// Scanners share the process-wide device with command clients.
func NewScanner() (device.Scanner, error) {
	dev, err := sharedDevice()
	if err != nil {
		return nil, err
	}
	return &bleScanner{dev: dev}, nil
}
