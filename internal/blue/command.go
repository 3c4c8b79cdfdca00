package blue

import "fmt"

// GATT addresses of the BlueLink control surface. The control characteristic
// accepts opcode-prefixed write-with-response payloads.
const (
	ControlServiceUUID        = "0000ff00-0000-1000-8000-00805f9b34fb"
	ControlCharacteristicUUID = "0000ff01-0000-1000-8000-00805f9b34fb"
)

// Control opcodes.
const (
	opMoveToPosition byte = 0x01
	opStop           byte = 0x03
)

// Command is a control operation encodable for the BlueLink control
// characteristic.
type Command interface {
	// Marshal returns the characteristic write payload.
	Marshal() ([]byte, error)
	// String names the command for logging.
	String() string
}

// MoveToPosition drives the blind to an absolute position on the device
// scale (0 = fully open, 100 = fully closed).
type MoveToPosition struct {
	Percent int
}

func (c MoveToPosition) Marshal() ([]byte, error) {
	if c.Percent < 0 || c.Percent > maxPercent {
		return nil, fmt.Errorf("%w: position=%d outside [0,%d]",
			ErrInvalidFieldValue, c.Percent, maxPercent)
	}
	return []byte{opMoveToPosition, byte(c.Percent)}, nil
}

func (c MoveToPosition) String() string {
	return fmt.Sprintf("move-to-position(%d%%)", c.Percent)
}

// Stop halts the motor wherever it currently is.
type Stop struct{}

func (Stop) Marshal() ([]byte, error) { return []byte{opStop}, nil }

func (Stop) String() string { return "stop" }

// Open and Closed are the device-scale endpoints, used by the open/close
// verbs and schedule presets.
const (
	FullyOpenPosition   = 0
	FullyClosedPosition = 100
)
