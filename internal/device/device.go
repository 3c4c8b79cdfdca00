package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FailureKind classifies a command session failure.
type FailureKind string

const (
	DeviceUnreachable    FailureKind = "device_unreachable"
	ConnectTimeout       FailureKind = "connect_timeout"
	WriteFailed          FailureKind = "write_failed"
	UnexpectedDisconnect FailureKind = "unexpected_disconnect"
)

// CommandError represents a command session failure. Sessions surface every
// failure to the caller; nothing in this taxonomy is retried internally.
type CommandError struct {
	Kind FailureKind
	Msg  string
}

func (e *CommandError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare CommandError values by Kind.
func (e *CommandError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*CommandError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for the command failure taxonomy.
var (
	ErrDeviceUnreachable    = &CommandError{Kind: DeviceUnreachable}
	ErrConnectTimeout       = &CommandError{Kind: ConnectTimeout}
	ErrWriteFailed          = &CommandError{Kind: WriteFailed}
	ErrUnexpectedDisconnect = &CommandError{Kind: UnexpectedDisconnect}
)

// IsFailureKind reports whether err is a CommandError of the given kind.
func IsFailureKind(err error, kind FailureKind) bool {
	var cerr *CommandError
	if errors.As(err, &cerr) {
		return cerr.Kind == kind
	}
	return false
}

// NormalizeConnectError maps transport-level connect failures onto the
// command taxonomy. A connect that does not succeed within its bounded
// timeout is a ConnectTimeout regardless of how the transport phrased it;
// the original error is preserved in the wrap.
func NormalizeConnectError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *CommandError
	if errors.As(err, &cerr) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
}

// NormalizeWriteError maps transport-level write failures onto the command
// taxonomy, distinguishing a dropped connection from a rejected write.
func NormalizeWriteError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *CommandError
	if errors.As(err, &cerr) {
		return err
	}
	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "not connected"),
		containsIgnoreCase(msg, "connection is not initialized"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrUnexpectedDisconnect, err)
	default:
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Advertisement is a single received BLE advertisement.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Connectable() bool
	RSSI() int
	Addr() string
}

// Scanner delivers advertisements to a handler until the context ends.
// Handlers run on the scan loop and must not block.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Client is a transient BLE connection used for a single command session.
// Connect and WriteCharacteristic block; Disconnect is safe to call in any
// state, including after a failed Connect, and is a no-op when nothing is
// connected.
type Client interface {
	Connect(ctx context.Context, address string, timeout time.Duration) error
	WriteCharacteristic(serviceUUID, charUUID string, data []byte, withResponse bool) error
	Disconnect() error
}

// NormalizeUUID converts a UUID string to the transport's internal format
// (lowercase, no dashes) so lookups behave the same for short and full forms.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}
