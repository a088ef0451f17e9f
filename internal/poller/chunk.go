// internal/poller/chunk.go
package poller

import "github.com/tamzrod/modbus-master/internal/registry"

// chunkLength returns how many registers to read starting at start out of size.
// A result <= 0 means there is nothing left to read.
func chunkLength(size, start, limit int) int {
	if start+limit >= size {
		return size - start
	}
	return limit
}

// nextCursor computes where the scan continues after reading up to next.
// count reports how many registers a device has in an address space.
func nextCursor(t registry.RegisterType, next, size int, count func(registry.RegisterType) int) registry.Cursor {
	if next < size {
		return registry.Cursor{Type: t, Address: uint16(next)}
	}

	if later, ok := firstNonEmpty(t, count); ok {
		return registry.Cursor{Type: later, Address: 0}
	}
	return registry.Cursor{}
}

// firstNonEmpty finds the first address space in scan order after `after`
// that has registers. RegisterTypeNone starts from the beginning.
func firstNonEmpty(after registry.RegisterType, count func(registry.RegisterType) int) (registry.RegisterType, bool) {
	passed := after == registry.RegisterTypeNone

	for _, t := range registry.ScanOrder {
		if !passed {
			passed = t == after
			continue
		}
		if count(t) > 0 {
			return t, true
		}
	}
	return registry.RegisterTypeNone, false
}
