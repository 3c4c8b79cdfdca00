package goble

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openblinds/bluelink/internal/blue"
	"github.com/openblinds/bluelink/internal/device"
)

// fakeBLEDevice implements ble.Device for testing
type fakeBLEDevice struct {
	client  ble.Client
	dialErr error
}

func (d *fakeBLEDevice) AddService(svc *ble.Service) error                          { return nil }
func (d *fakeBLEDevice) RemoveAllServices() error                                   { return nil }
func (d *fakeBLEDevice) SetServices(svcs []*ble.Service) error                      { return nil }
func (d *fakeBLEDevice) Stop() error                                                { return nil }
func (d *fakeBLEDevice) Advertise(ctx context.Context, adv ble.Advertisement) error { return nil }
func (d *fakeBLEDevice) AdvertiseNameAndServices(ctx context.Context, name string, ss ...ble.UUID) error {
	return nil
}
func (d *fakeBLEDevice) AdvertiseIBeacon(ctx context.Context, u ble.UUID, major, minor uint16, pwr int8) error {
	return nil
}
func (d *fakeBLEDevice) AdvertiseIBeaconData(ctx context.Context, b []byte) error        { return nil }
func (d *fakeBLEDevice) AdvertiseMfgData(ctx context.Context, id uint16, b []byte) error { return nil }
func (d *fakeBLEDevice) AdvertiseServiceData16(ctx context.Context, id uint16, b []byte) error {
	return nil
}
func (d *fakeBLEDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return nil
}
func (d *fakeBLEDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.client, nil
}

// fakeBLEClient implements ble.Client for testing. When discoverGate is
// non-nil, DiscoverProfile blocks until the gate closes; CancelConnection
// closes it, mirroring how cancelling the connection unblocks a stalled
// discovery on real transports.
type fakeBLEClient struct {
	profile      *ble.Profile
	discoverErr  error
	discoverGate chan struct{}

	mu          sync.Mutex
	writes      [][]byte
	noRsp       []bool
	cancelCalls int
}

func (c *fakeBLEClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	if c.discoverGate != nil {
		<-c.discoverGate
	}
	if c.discoverErr != nil {
		return nil, c.discoverErr
	}
	return c.profile, nil
}

func (c *fakeBLEClient) CancelConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelCalls++
	if c.discoverGate != nil {
		select {
		case <-c.discoverGate:
		default:
			close(c.discoverGate)
		}
	}
	return nil
}

func (c *fakeBLEClient) WriteCharacteristic(char *ble.Characteristic, value []byte, noRsp bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), value...))
	c.noRsp = append(c.noRsp, noRsp)
	return nil
}

func (c *fakeBLEClient) Addr() ble.Addr        { return ble.NewAddr("AA:BB:CC:DD:EE:FF") }
func (c *fakeBLEClient) Name() string          { return "" }
func (c *fakeBLEClient) Profile() *ble.Profile { return c.profile }
func (c *fakeBLEClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	return nil, nil
}
func (c *fakeBLEClient) DiscoverIncludedServices(filter []ble.UUID, s *ble.Service) ([]*ble.Service, error) {
	return nil, nil
}
func (c *fakeBLEClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	return nil, nil
}
func (c *fakeBLEClient) DiscoverDescriptors(filter []ble.UUID, ch *ble.Characteristic) ([]*ble.Descriptor, error) {
	return nil, nil
}
func (c *fakeBLEClient) ReadCharacteristic(ch *ble.Characteristic) ([]byte, error) {
	return nil, nil
}
func (c *fakeBLEClient) ReadLongCharacteristic(ch *ble.Characteristic) ([]byte, error) {
	return nil, nil
}
func (c *fakeBLEClient) ReadDescriptor(d *ble.Descriptor) ([]byte, error)  { return nil, nil }
func (c *fakeBLEClient) WriteDescriptor(d *ble.Descriptor, v []byte) error { return nil }
func (c *fakeBLEClient) ReadRSSI() int                                     { return 0 }
func (c *fakeBLEClient) ExchangeMTU(rxMTU int) (int, error)                { return rxMTU, nil }
func (c *fakeBLEClient) Subscribe(ch *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return nil
}
func (c *fakeBLEClient) Unsubscribe(ch *ble.Characteristic, ind bool) error { return nil }
func (c *fakeBLEClient) ClearSubscriptions() error                          { return nil }
func (c *fakeBLEClient) Disconnected() <-chan struct{}                      { return nil }
func (c *fakeBLEClient) Conn() ble.Conn                                     { return nil }

// withDeviceFactory swaps the factory and the cached shared device for one
// test, restoring both afterwards.
func withDeviceFactory(t *testing.T, factory func() (ble.Device, error)) {
	t.Helper()
	orig := DeviceFactory
	DeviceFactory = factory
	resetSharedDevice()
	t.Cleanup(func() {
		DeviceFactory = orig
		resetSharedDevice()
	})
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func controlProfile() *ble.Profile {
	return &ble.Profile{Services: []*ble.Service{{
		UUID: ble.MustParse(blue.ControlServiceUUID),
		Characteristics: []*ble.Characteristic{{
			UUID: ble.MustParse(blue.ControlCharacteristicUUID),
		}},
	}}}
}

func TestSharedDeviceOpensOnce(t *testing.T) {
	// GOAL: Verify the HCI handle is opened once per process
	//
	// TEST SCENARIO: Repeated device lookups and scanner creation -> one factory call

	var opens int32
	withDeviceFactory(t, func() (ble.Device, error) {
		atomic.AddInt32(&opens, 1)
		return &fakeBLEDevice{}, nil
	})

	first, err := sharedDevice()
	require.NoError(t, err)
	second, err := sharedDevice()
	require.NoError(t, err)
	_, err = NewScanner()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, opens, "repeat sessions MUST NOT open new HCI handles")
}

func TestSharedDeviceRetriesFailedOpen(t *testing.T) {
	var opens int32
	openErr := errors.New("hci device down")
	withDeviceFactory(t, func() (ble.Device, error) {
		atomic.AddInt32(&opens, 1)
		return nil, openErr
	})

	_, err := sharedDevice()
	assert.ErrorIs(t, err, openErr)
	_, err = sharedDevice()
	assert.ErrorIs(t, err, openErr)
	assert.EqualValues(t, 2, opens, "a failed open MUST NOT be cached")
}

func TestClientConnectWriteDisconnect(t *testing.T) {
	// GOAL: Verify the command session lifecycle against the go-ble surface
	//
	// TEST SCENARIO: Connect, write-with-response, disconnect -> payload and
	// response flag reach the transport, connection cancelled once

	fc := &fakeBLEClient{profile: controlProfile()}
	withDeviceFactory(t, func() (ble.Device, error) {
		return &fakeBLEDevice{client: fc}, nil
	})

	c := NewClient(quietLogger())
	require.NoError(t, c.Connect(context.Background(), "AA:BB:CC:DD:EE:FF", time.Second))

	err := c.WriteCharacteristic(blue.ControlServiceUUID, blue.ControlCharacteristicUUID, []byte{0x01, 25}, true)
	require.NoError(t, err)

	fc.mu.Lock()
	assert.Equal(t, [][]byte{{0x01, 25}}, fc.writes)
	assert.Equal(t, []bool{false}, fc.noRsp, "write-with-response maps to noRsp=false")
	fc.mu.Unlock()

	require.NoError(t, c.Disconnect())
	fc.mu.Lock()
	assert.Equal(t, 1, fc.cancelCalls)
	fc.mu.Unlock()

	require.NoError(t, c.Disconnect(), "second disconnect is a no-op")
	fc.mu.Lock()
	assert.Equal(t, 1, fc.cancelCalls)
	fc.mu.Unlock()
}

func TestClientConnectBoundsProfileDiscovery(t *testing.T) {
	// GOAL: Verify the connect timeout covers profile discovery
	//
	// TEST SCENARIO: DiscoverProfile stalls -> ConnectTimeout within budget,
	// connection cancelled to unblock the stalled discovery

	fc := &fakeBLEClient{
		profile:      controlProfile(),
		discoverGate: make(chan struct{}),
	}
	withDeviceFactory(t, func() (ble.Device, error) {
		return &fakeBLEDevice{client: fc}, nil
	})

	c := NewClient(quietLogger())
	start := time.Now()
	err := c.Connect(context.Background(), "AA:BB:CC:DD:EE:FF", 50*time.Millisecond)

	assert.ErrorIs(t, err, device.ErrConnectTimeout)
	assert.Less(t, time.Since(start), 2*time.Second, "stalled discovery MUST NOT block past the timeout")

	fc.mu.Lock()
	assert.Equal(t, 1, fc.cancelCalls, "timeout MUST cancel the half-open connection")
	fc.mu.Unlock()
}

func TestClientConnectDiscoveryFailureCancels(t *testing.T) {
	fc := &fakeBLEClient{discoverErr: errors.New("att timeout")}
	withDeviceFactory(t, func() (ble.Device, error) {
		return &fakeBLEDevice{client: fc}, nil
	})

	c := NewClient(quietLogger())
	err := c.Connect(context.Background(), "AA:BB:CC:DD:EE:FF", time.Second)

	assert.ErrorIs(t, err, device.ErrConnectTimeout)
	fc.mu.Lock()
	assert.Equal(t, 1, fc.cancelCalls, "failed discovery MUST NOT leave a half-open connection")
	fc.mu.Unlock()
}

func TestClientWriteUnknownCharacteristic(t *testing.T) {
	fc := &fakeBLEClient{profile: &ble.Profile{}}
	withDeviceFactory(t, func() (ble.Device, error) {
		return &fakeBLEDevice{client: fc}, nil
	})

	c := NewClient(quietLogger())
	require.NoError(t, c.Connect(context.Background(), "AA:BB:CC:DD:EE:FF", time.Second))

	err := c.WriteCharacteristic(blue.ControlServiceUUID, blue.ControlCharacteristicUUID, []byte{0x03}, true)
	assert.ErrorIs(t, err, device.ErrWriteFailed)
}
