// Package testutils provides fakes and builders for exercising the BLE
// surfaces without hardware: scripted advertisements, a scripted command
// client, and a replaying scanner.
package testutils

import (
	"context"
	"encoding/binary"

	"github.com/openblinds/bluelink/internal/blue"
	"github.com/openblinds/bluelink/internal/device"
)

// FakeAdvertisement is a scripted device.Advertisement.
type FakeAdvertisement struct {
	Name       string
	Address    string
	Rssi       int
	Connect    bool
	ManufBytes []byte
}

func (a *FakeAdvertisement) LocalName() string        { return a.Name }
func (a *FakeAdvertisement) ManufacturerData() []byte { return a.ManufBytes }
func (a *FakeAdvertisement) Connectable() bool        { return a.Connect }
func (a *FakeAdvertisement) RSSI() int                { return a.Rssi }
func (a *FakeAdvertisement) Addr() string             { return a.Address }

// AdvertisementBuilder builds fake advertisements with a fluent API.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder starts a connectable advertisement with a default
// address and RSSI.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{
		Address: "AA:BB:CC:DD:EE:FF",
		Rssi:    -60,
		Connect: true,
	}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.Connect = c
	return b
}

// WithManufacturerData sets the raw manufacturer data block verbatim.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.ManufBytes = data
	return b
}

// WithStatusPayload wraps a status payload in a Neo manufacturer data block
// (little-endian company ID prefix).
func (b *AdvertisementBuilder) WithStatusPayload(payload ...byte) *AdvertisementBuilder {
	data := make([]byte, 2, 2+len(payload))
	binary.LittleEndian.PutUint16(data, blue.ManufacturerID)
	b.adv.ManufBytes = append(data, payload...)
	return b
}

func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	return &adv
}

// FakeScanner replays scripted advertisements to the handler, then blocks
// until the context ends, mimicking a live scan.
type FakeScanner struct {
	Advertisements []device.Advertisement
}

func (s *FakeScanner) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	for _, adv := range s.Advertisements {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}
