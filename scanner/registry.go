package scanner

import (
	"sort"
	"time"

	"github.com/cornelk/hashmap"

	"github.com/openblinds/bluelink/internal/blue"
	"github.com/openblinds/bluelink/internal/device"
)

// DefaultPresenceTTL is how long after the last advertisement a device is
// still considered present. Blinds advertise every few seconds; a device
// silent for this long has gone out of range or to sleep.
const DefaultPresenceTTL = 90 * time.Second

// DeviceEntry is the registry's view of one blind: identity from the last
// advertisement plus the latest successfully decoded snapshot. Entries are
// immutable values, replaced wholesale on every advertisement.
type DeviceEntry struct {
	Address     string
	Name        string
	RSSI        int
	Connectable bool
	LastSeen    time.Time

	// Snapshot is the latest successfully decoded status, nil until the
	// first good decode. A failed decode never clears it.
	Snapshot *blue.StatusSnapshot
}

// Registry tracks known blinds by address. The scan loop writes, everything
// else reads; it doubles as the connectability pre-check consulted before
// every command attempt.
type Registry struct {
	entries     *hashmap.Map[string, DeviceEntry]
	presenceTTL time.Duration
	now         func() time.Time
}

// NewRegistry creates an empty registry. A presenceTTL of 0 selects
// DefaultPresenceTTL.
func NewRegistry(presenceTTL time.Duration) *Registry {
	if presenceTTL <= 0 {
		presenceTTL = DefaultPresenceTTL
	}
	return &Registry{
		entries:     hashmap.New[string, DeviceEntry](),
		presenceTTL: presenceTTL,
		now:         time.Now,
	}
}

// Observe records an advertisement. When snap is non-nil it becomes the
// device's latest snapshot; when nil (advertisement without a decodable
// payload) presence data is refreshed and the previous snapshot stays in
// effect.
func (r *Registry) Observe(adv device.Advertisement, snap *blue.StatusSnapshot) DeviceEntry {
	entry := DeviceEntry{
		Address:     adv.Addr(),
		Name:        adv.LocalName(),
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
		LastSeen:    r.now(),
		Snapshot:    snap,
	}

	if prev, ok := r.entries.Get(entry.Address); ok {
		if entry.Name == "" {
			entry.Name = prev.Name
		}
		if entry.Snapshot == nil {
			entry.Snapshot = prev.Snapshot
		}
	}

	r.entries.Set(entry.Address, entry)
	return entry
}

// Get returns the entry for an address.
func (r *Registry) Get(address string) (DeviceEntry, bool) {
	return r.entries.Get(address)
}

// Devices returns a snapshot of all entries, sorted by address.
func (r *Registry) Devices() []DeviceEntry {
	result := make([]DeviceEntry, 0, r.entries.Len())
	r.entries.Range(func(_ string, e DeviceEntry) bool {
		result = append(result, e)
		return true
	})
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result
}

// Connectable reports whether the device advertised as connectable within
// the presence TTL. Commands consult this before dialing so unreachable
// devices fail fast without consuming a connection slot.
func (r *Registry) Connectable(address string) bool {
	entry, ok := r.entries.Get(address)
	if !ok || !entry.Connectable {
		return false
	}
	return r.now().Sub(entry.LastSeen) <= r.presenceTTL
}
