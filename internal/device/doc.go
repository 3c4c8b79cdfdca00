// Package device defines the narrow BLE surface the rest of the repository
// consumes: passive scanning, transient client connections, and the command
// failure taxonomy. The go-ble backed implementation lives in the goble
// subpackage; everything else depends only on the interfaces here so tests
// can substitute fakes.
package device
