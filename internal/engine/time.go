package engine

import "time"

// nowMillis returns the current instant as epoch-milliseconds, the unit
// every timestamp field in store.MemoryRecord is defined over.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
