package blue

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// ManufacturerID is the Bluetooth SIG company identifier Neo Smart Blue
	// blinds advertise under (0x0967).
	ManufacturerID uint16 = 2407

	// StatusPayloadLength is the exact size of the status payload carried in
	// the manufacturer-specific data block.
	StatusPayloadLength = 5

	maxPercent = 100
)

// Decode errors. Decoding is all-or-nothing: a payload that trips either
// error never yields a partial StatusSnapshot.
var (
	ErrMalformedPayload  = errors.New("malformed status payload")
	ErrInvalidFieldValue = errors.New("status field out of range")
)

// MotorDirection reports which way the motor is driving the blind.
type MotorDirection int

const (
	MotorNone MotorDirection = iota
	MotorUp
	MotorDown
)

func (d MotorDirection) String() string {
	switch d {
	case MotorUp:
		return "up"
	case MotorDown:
		return "down"
	default:
		return "none"
	}
}

// Byte 3 carries the limit configuration.
const (
	upLimitSetMask   = 0x01
	downLimitSetMask = 0x02
	limitRangeShift  = 2
	limitRangeMask   = 0x3F // bits 2-7 after shift
)

// Byte 4 carries the motor/state flags.
const (
	motorRunningMask    = 0x01
	motorDownMask       = 0x02
	chargingMask        = 0x04
	touchControlMask    = 0x08
	channelSettingMask  = 0x10
	reverseRotationMask = 0x20
)

// StatusSnapshot is the decoded state of a blind as broadcast in a single
// advertisement. Each advertisement produces a complete replacement snapshot;
// snapshots are never merged with earlier ones.
type StatusSnapshot struct {
	BatteryPercent  int            `json:"battery_percent"`
	PositionPercent int            `json:"position_percent"`
	TargetPercent   int            `json:"target_percent"`
	MotorRunning    bool           `json:"motor_running"`
	MotorDirection  MotorDirection `json:"-"`
	Charging        bool           `json:"charging"`
	UpLimitSet      bool           `json:"up_limit_set"`
	DownLimitSet    bool           `json:"down_limit_set"`
	LimitRangeTurns int            `json:"limit_range_turns"`
	TouchControl    bool           `json:"touch_control"`
	ChannelSetting  bool           `json:"channel_setting_mode"`
	ReverseRotation bool           `json:"reverse_rotation"`

	// RSSI comes from the advertisement carrier, not from the payload.
	RSSI int `json:"rssi"`
}

// IsOpening reports whether the blind is moving toward fully open.
// The device counts position 0 as fully open, so the motor driving "down"
// in wire terms is the blind opening in user terms.
func (s StatusSnapshot) IsOpening() bool {
	return s.MotorRunning && s.MotorDirection == MotorDown
}

// IsClosing reports whether the blind is moving toward fully closed.
func (s StatusSnapshot) IsClosing() bool {
	return s.MotorRunning && s.MotorDirection == MotorUp
}

// IsClosed reports whether the blind sits at the fully closed position.
func (s StatusSnapshot) IsClosed() bool {
	return s.PositionPercent == maxPercent
}

// UserPosition returns the position on the user-facing scale where 100 is
// fully open, inverting the device scale where 0 is fully open.
func (s StatusSnapshot) UserPosition() int {
	return maxPercent - s.PositionPercent
}

// DecodeStatus decodes the 5-byte status payload of a Neo Smart Blue
// advertisement.
//
// Layout:
//
//	byte 0: battery level, percent
//	byte 1: current position, percent (0 = open, 100 = closed)
//	byte 2: target position, percent
//	byte 3: bit0 up limit set, bit1 down limit set, bits2-7 limit range (turns)
//	byte 4: bit0 motor running, bit1 motor direction down, bit2 charging,
//	        bit3 touch control, bit4 channel setting mode, bit5 reverse rotation
//
// The payload must be exactly StatusPayloadLength bytes; any other length
// fails with ErrMalformedPayload. A percent field above 100 fails the whole
// decode with ErrInvalidFieldValue.
func DecodeStatus(payload []byte) (StatusSnapshot, error) {
	if len(payload) != StatusPayloadLength {
		return StatusSnapshot{}, fmt.Errorf("%w: got %d bytes, expected %d",
			ErrMalformedPayload, len(payload), StatusPayloadLength)
	}

	battery := int(payload[0])
	position := int(payload[1])
	target := int(payload[2])

	for _, f := range []struct {
		name  string
		value int
	}{
		{"battery", battery},
		{"position", position},
		{"target", target},
	} {
		if f.value > maxPercent {
			return StatusSnapshot{}, fmt.Errorf("%w: %s=%d exceeds %d",
				ErrInvalidFieldValue, f.name, f.value, maxPercent)
		}
	}

	limits := payload[3]
	flags := payload[4]

	snap := StatusSnapshot{
		BatteryPercent:  battery,
		PositionPercent: position,
		TargetPercent:   target,
		UpLimitSet:      limits&upLimitSetMask != 0,
		DownLimitSet:    limits&downLimitSetMask != 0,
		LimitRangeTurns: int(limits>>limitRangeShift) & limitRangeMask,
		MotorRunning:    flags&motorRunningMask != 0,
		Charging:        flags&chargingMask != 0,
		TouchControl:    flags&touchControlMask != 0,
		ChannelSetting:  flags&channelSettingMask != 0,
		ReverseRotation: flags&reverseRotationMask != 0,
	}

	if snap.MotorRunning {
		if flags&motorDownMask != 0 {
			snap.MotorDirection = MotorDown
		} else {
			snap.MotorDirection = MotorUp
		}
	}

	return snap, nil
}

// ExtractStatusPayload pulls the status payload out of a raw BLE
// manufacturer-specific data block. Per BLE convention the block starts with
// the little-endian company identifier; the block is only accepted when that
// identifier is ManufacturerID. Blinds may append trailing bytes after the
// status payload, so only the first StatusPayloadLength bytes are returned.
func ExtractStatusPayload(manufacturerData []byte) ([]byte, error) {
	if len(manufacturerData) < 2 {
		return nil, fmt.Errorf("%w: manufacturer data too short: %d bytes",
			ErrMalformedPayload, len(manufacturerData))
	}

	companyID := binary.LittleEndian.Uint16(manufacturerData[0:2])
	if companyID != ManufacturerID {
		return nil, fmt.Errorf("%w: manufacturer ID 0x%04X is not Neo Smart Blue (0x%04X)",
			ErrMalformedPayload, companyID, ManufacturerID)
	}

	payload := manufacturerData[2:]
	if len(payload) < StatusPayloadLength {
		return nil, fmt.Errorf("%w: status payload too short: %d bytes, expected %d",
			ErrMalformedPayload, len(payload), StatusPayloadLength)
	}

	return payload[:StatusPayloadLength], nil
}

// IsNeoAdvertisement reports whether a raw manufacturer data block belongs to
// a Neo Smart Blue blind, without decoding it.
func IsNeoAdvertisement(manufacturerData []byte) bool {
	return len(manufacturerData) >= 2 &&
		binary.LittleEndian.Uint16(manufacturerData[0:2]) == ManufacturerID
}
