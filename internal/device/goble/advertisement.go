package goble

import (
	"github.com/go-ble/ble"

	"github.com/openblinds/bluelink/internal/device"
)

// bleAdvertisement wraps ble.Advertisement to implement device.Advertisement
type bleAdvertisement struct {
	adv ble.Advertisement
}

// NewAdvertisement creates a device.Advertisement wrapper around a raw
// go-ble advertisement.
func NewAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &bleAdvertisement{adv: adv}
}

func (a *bleAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *bleAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *bleAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *bleAdvertisement) RSSI() int                { return a.adv.RSSI() }
func (a *bleAdvertisement) Addr() string             { return a.adv.Addr().String() }
