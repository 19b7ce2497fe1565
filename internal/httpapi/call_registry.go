package httpapi

import (
	"sync"
	"sync/atomic"
)

// CallRegistry tracks active media streams and supports graceful draining.
// When draining is enabled, new streams are rejected while in-flight calls
// finish naturally and run their post-call extraction.
//
// The mutex makes the draining check and wg.Add atomic in Add(), closing the
// window where StartDraining+Wait could run between the check and the
// increment.
type CallRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64
}

// NewCallRegistry creates a new CallRegistry.
func NewCallRegistry() *CallRegistry {
	return &CallRegistry{}
}

// Add registers a new active media stream. Returns false if the registry is
// draining, meaning no new calls should be accepted.
func (cr *CallRegistry) Add() bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if cr.draining {
		return false
	}
	cr.wg.Add(1)
	cr.count.Add(1)
	return true
}

// Done marks a stream as finished. Must be called exactly once per
// successful Add, after post-call processing completes.
func (cr *CallRegistry) Done() {
	cr.count.Add(-1)
	cr.wg.Done()
}

// StartDraining sets the draining flag so that future Add calls return false.
func (cr *CallRegistry) StartDraining() {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (cr *CallRegistry) IsDraining() bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.draining
}

// ActiveCount returns the number of currently active media streams.
func (cr *CallRegistry) ActiveCount() int64 {
	return cr.count.Load()
}

// Wait blocks until all active streams have finished.
func (cr *CallRegistry) Wait() {
	cr.wg.Wait()
}
