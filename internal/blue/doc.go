// Package blue implements the Neo Smart Blue (BlueLink) wire protocol:
//   - Decoding the 5-byte status payload that blinds broadcast in their
//     manufacturer-specific advertisement data (manufacturer ID 2407)
//   - Encoding the control commands (move-to-position, stop) written to the
//     BlueLink control characteristic over a transient connection
//
// Everything in this package is pure computation over bytes; BLE transport
// lives in internal/device.
package blue
