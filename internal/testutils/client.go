package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/openblinds/bluelink/internal/device"
)

// FakeClient is a scripted device.Client that records its call history.
type FakeClient struct {
	// Scripted behavior
	ConnectErr   error
	WriteErr     error
	ConnectDelay time.Duration
	WriteDelay   time.Duration

	mu              sync.Mutex
	connected       bool
	ConnectCalls    int
	WriteCalls      int
	DisconnectCalls int
	Writes          [][]byte
}

func (c *FakeClient) Connect(ctx context.Context, _ string, _ time.Duration) error {
	c.mu.Lock()
	c.ConnectCalls++
	delay := c.ConnectDelay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if c.ConnectErr != nil {
		return c.ConnectErr
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *FakeClient) WriteCharacteristic(_, _ string, data []byte, _ bool) error {
	c.mu.Lock()
	c.WriteCalls++
	connected := c.connected
	delay := c.WriteDelay
	c.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if !connected {
		return device.ErrUnexpectedDisconnect
	}
	if c.WriteErr != nil {
		return c.WriteErr
	}

	c.mu.Lock()
	c.Writes = append(c.Writes, append([]byte(nil), data...))
	c.mu.Unlock()
	return nil
}

func (c *FakeClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DisconnectCalls++
	c.connected = false
	return nil
}

// IsConnected reports the fake's current connection flag.
func (c *FakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// FakeReachability is a scripted connectability check.
type FakeReachability struct {
	mu        sync.Mutex
	reachable map[string]bool
}

func NewFakeReachability(addresses ...string) *FakeReachability {
	r := &FakeReachability{reachable: make(map[string]bool)}
	for _, a := range addresses {
		r.reachable[a] = true
	}
	return r
}

func (r *FakeReachability) Set(address string, reachable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reachable[address] = reachable
}

func (r *FakeReachability) Connectable(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reachable[address]
}
