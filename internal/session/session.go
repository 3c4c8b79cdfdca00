// Package session implements the command session: a short-lived connection
// that delivers one control command to a blind and is torn down again.
//
// A session walks Idle -> Connecting -> Connected -> Writing ->
// Disconnecting -> Idle, detouring through Failed on any error. The
// disconnect step is unconditional: every session that attempted a
// connection disconnects exactly once, on success, write failure, timeout,
// and cancellation alike. Sessions to the same address are serialized so
// concurrent commands never compete for the shared BLE connection slots;
// sessions to different addresses proceed independently. There is no retry
// or backoff here, callers may re-issue a failed command.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openblinds/bluelink/internal/blue"
	"github.com/openblinds/bluelink/internal/device"
)

// DefaultConnectTimeout bounds the connect phase. BLE service discovery on
// battery-powered blinds is slow, so this is deliberately generous.
const DefaultConnectTimeout = 15 * time.Second

// State is a command session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateWriting
	StateDisconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateWriting:
		return "writing"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reachability is the externally supplied connectability check, consulted
// before every command attempt. The scanner registry implements it.
type Reachability interface {
	Connectable(address string) bool
}

// ClientFactory produces a fresh transient client per session.
type ClientFactory func() device.Client

// StateObserver is notified of every session state transition.
type StateObserver func(address string, state State)

// Commander issues control commands over short-lived connections.
type Commander struct {
	reach          Reachability
	newClient      ClientFactory
	logger         *logrus.Logger
	connectTimeout time.Duration
	observer       StateObserver

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCommander creates a Commander. A connectTimeout of 0 selects
// DefaultConnectTimeout.
func NewCommander(reach Reachability, factory ClientFactory, logger *logrus.Logger, connectTimeout time.Duration) *Commander {
	if logger == nil {
		logger = logrus.New()
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Commander{
		reach:          reach,
		newClient:      factory,
		logger:         logger,
		connectTimeout: connectTimeout,
		locks:          make(map[string]*sync.Mutex),
	}
}

// SetStateObserver installs a transition observer. Must be called before
// the first Send.
func (c *Commander) SetStateObserver(fn StateObserver) {
	c.observer = fn
}

// Send delivers one command to the device at address.
//
// The reachability pre-check runs first: an unreachable device fails fast
// with ErrDeviceUnreachable and no connect is ever attempted. Once a
// connect has been attempted, the disconnect step runs on every exit path.
// Cancelling ctx aborts the session; the disconnect still runs.
func (c *Commander) Send(ctx context.Context, address string, cmd blue.Command) error {
	payload, err := cmd.Marshal()
	if err != nil {
		return err
	}

	lock := c.addressLock(address)
	lock.Lock()
	defer lock.Unlock()

	log := c.logger.WithFields(logrus.Fields{
		"address": address,
		"command": cmd.String(),
	})

	// The pre-check refuses before any session starts, so no state
	// transitions are emitted here.
	if !c.reach.Connectable(address) {
		log.Warn("Device not present or not connectable, refusing command")
		return device.ErrDeviceUnreachable
	}

	client := c.newClient()

	// Unconditional teardown: exactly one disconnect per attempted session,
	// on every exit path including panics and context cancellation.
	defer func() {
		c.transition(address, StateDisconnecting)
		if err := client.Disconnect(); err != nil {
			log.WithField("error", err).Warn("Error during disconnect")
		}
		c.transition(address, StateIdle)
	}()

	c.transition(address, StateConnecting)
	if err := client.Connect(ctx, address, c.connectTimeout); err != nil {
		c.transition(address, StateFailed)
		log.WithField("error", err).Error("Failed to connect for command")
		return device.NormalizeConnectError(err)
	}
	c.transition(address, StateConnected)

	c.transition(address, StateWriting)
	err = client.WriteCharacteristic(blue.ControlServiceUUID, blue.ControlCharacteristicUUID, payload, true)
	if err != nil {
		c.transition(address, StateFailed)
		log.WithField("error", err).Error("Failed to write command")
		return device.NormalizeWriteError(err)
	}

	log.Info("Command delivered")
	return nil
}

// MoveToPosition is a convenience wrapper for Send with a move command.
func (c *Commander) MoveToPosition(ctx context.Context, address string, percent int) error {
	return c.Send(ctx, address, blue.MoveToPosition{Percent: percent})
}

// Stop is a convenience wrapper for Send with a stop command.
func (c *Commander) Stop(ctx context.Context, address string) error {
	return c.Send(ctx, address, blue.Stop{})
}

func (c *Commander) transition(address string, state State) {
	if c.observer != nil {
		c.observer(address, state)
	}
	c.logger.WithFields(logrus.Fields{
		"address": address,
		"state":   state.String(),
	}).Debug("Session state transition")
}

// addressLock returns the serialization lock for one device address.
func (c *Commander) addressLock(address string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[address]
	if !ok {
		l = &sync.Mutex{}
		c.locks[address] = l
	}
	return l
}
