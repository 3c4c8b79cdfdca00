package goble

import (
	"sync"

	"github.com/go-ble/ble"
)

var (
	deviceMu  sync.Mutex
	sharedDev ble.Device
)

// sharedDevice returns the process-wide BLE device, opening it on first use.
// go-ble routes Dial and Scan through one HCI handle; opening a handle per
// command session would leak sockets in daemon mode, and re-setting the
// package default device would race concurrent sessions. A failed open is
// not cached; the next call retries.
func sharedDevice() (ble.Device, error) {
	deviceMu.Lock()
	defer deviceMu.Unlock()

	if sharedDev != nil {
		return sharedDev, nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	ble.SetDefaultDevice(dev)
	sharedDev = dev
	return dev, nil
}

// resetSharedDevice drops the cached device so tests can swap factories.
func resetSharedDevice() {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	sharedDev = nil
}
