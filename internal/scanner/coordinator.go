package scanner

import (
	"sync"
	"time"
)

// Coordinator owns the single-flight scan lock and the shared last-run
// timestamp. Exactly one scan cycle may run per process; acquisition is
// non-blocking, so a second attempt fails fast instead of queueing. Manual
// and scheduled scans share one timestamp: a manual scan pushes the next
// automatic one back.
type Coordinator struct {
	lock sync.Mutex // held for the whole scan cycle

	mu       sync.Mutex
	scanning bool
	lastScan time.Time
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// TryBegin attempts to claim the scan slot without blocking.
func (c *Coordinator) TryBegin() bool {
	if !c.lock.TryLock() {
		return false
	}
	c.mu.Lock()
	c.scanning = true
	c.mu.Unlock()
	return true
}

// End releases the scan slot. Must be paired with a successful TryBegin.
func (c *Coordinator) End() {
	c.mu.Lock()
	c.scanning = false
	c.mu.Unlock()
	c.lock.Unlock()
}

// Scanning reports whether a scan cycle is in flight.
func (c *Coordinator) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// MarkScanned records the shared last-run timestamp.
func (c *Coordinator) MarkScanned(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastScan = t
}

// LastScan returns the shared last-run timestamp; zero when no scan has
// succeeded yet.
func (c *Coordinator) LastScan() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastScan
}
