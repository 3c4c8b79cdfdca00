package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/openblinds/bluelink/internal/device"
)

// Client is a transient go-ble backed connection. It dials, discovers the
// GATT profile, serves characteristic writes, and is torn down again by
// Disconnect. One Client serves at most one connection at a time.
type Client struct {
	logger *logrus.Logger

	mu        sync.Mutex
	client    ble.Client
	profile   *ble.Profile
	connected bool
}

// NewClient creates an unconnected Client.
func NewClient(logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{logger: logger}
}

// Connect dials the device and discovers its GATT profile. The whole
// sequence, including service discovery, is bounded by timeout.
func (c *Client) Connect(ctx context.Context, address string, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("device address is empty")
	}
	if c.connected {
		return fmt.Errorf("already connected")
	}

	if _, err := sharedDevice(); err != nil {
		c.logger.WithField("error", err).Error("Failed to init BLE device")
		return fmt.Errorf("failed to init BLE device: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Info("Connecting to BLE device...")

	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return device.NormalizeConnectError(err)
	}

	// DiscoverProfile has no context of its own, so it runs on a goroutine
	// watched against connCtx; CancelConnection unblocks a stalled discovery.
	type discovery struct {
		profile *ble.Profile
		err     error
	}
	discCh := make(chan discovery, 1)
	go func() {
		p, err := client.DiscoverProfile(true)
		discCh <- discovery{profile: p, err: err}
	}()

	var profile *ble.Profile
	select {
	case d := <-discCh:
		if d.err != nil {
			c.logger.WithFields(logrus.Fields{
				"address": address,
				"error":   d.err,
			}).Error("Failed to discover profile")
			if cancelErr := client.CancelConnection(); cancelErr != nil {
				c.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection after discovery failure")
			}
			return device.NormalizeConnectError(fmt.Errorf("failed to discover profile: %w", d.err))
		}
		profile = d.profile
	case <-connCtx.Done():
		c.logger.WithField("address", address).Error("Profile discovery did not finish in time")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			c.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection after discovery timeout")
		}
		return device.NormalizeConnectError(fmt.Errorf("profile discovery aborted: %w", connCtx.Err()))
	}

	c.client = client
	c.profile = profile
	c.connected = true

	c.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(profile.Services),
	}).Info("BLE device connected")
	return nil
}

// WriteCharacteristic writes data to the named characteristic. With
// withResponse set the call blocks until the platform acknowledges the
// write; this is the platform ACK, not a protocol-level reply from the
// device.
func (c *Client) WriteCharacteristic(serviceUUID, charUUID string, data []byte, withResponse bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return device.ErrUnexpectedDisconnect
	}

	char, err := c.findCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}

	if err := c.client.WriteCharacteristic(char, data, !withResponse); err != nil {
		c.logger.WithFields(logrus.Fields{
			"service": serviceUUID,
			"char":    charUUID,
			"error":   err,
		}).Error("Characteristic write failed")
		return device.NormalizeWriteError(err)
	}

	c.logger.WithFields(logrus.Fields{
		"service": serviceUUID,
		"char":    charUUID,
		"bytes":   len(data),
	}).Debug("Characteristic written")
	return nil
}

// Disconnect tears the connection down. Safe to call in any state; calling
// it on an unconnected client is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}

	client := c.client
	c.client = nil
	c.profile = nil
	c.connected = false

	err := client.CancelConnection()
	if err != nil {
		c.logger.WithField("error", err).Warn("BLE device disconnected with errors")
	} else {
		c.logger.Info("BLE device disconnected")
	}
	return err
}

// findCharacteristic locates a characteristic in the discovered profile.
// UUIDs are compared in normalized form. Caller holds c.mu.
func (c *Client) findCharacteristic(serviceUUID, charUUID string) (*ble.Characteristic, error) {
	wantSvc := device.NormalizeUUID(serviceUUID)
	wantChar := device.NormalizeUUID(charUUID)

	for _, svc := range c.profile.Services {
		if device.NormalizeUUID(svc.UUID.String()) != wantSvc {
			continue
		}
		for _, char := range svc.Characteristics {
			if device.NormalizeUUID(char.UUID.String()) == wantChar {
				return char, nil
			}
		}
		return nil, fmt.Errorf("%w: characteristic %q not found in service %q",
			device.ErrWriteFailed, charUUID, serviceUUID)
	}
	return nil, fmt.Errorf("%w: service %q not found", device.ErrWriteFailed, serviceUUID)
}
