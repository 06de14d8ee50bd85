// Package watch implements a latest-value broadcast primitive standing in
// for tokio::sync::watch, which Go has no direct equivalent of. A Value[T]
// holds the most recently sent value; any number of receivers can wait for
// the next change via Changed, always observing the newest value rather
// than a queued history, matching log_index_rx's "missed intermediate
// updates are acceptable" semantics from spec.md §5.
package watch

import "sync"

// Value is a single-slot, latest-wins broadcast channel.
type Value[T any] struct {
	mu      sync.Mutex
	val     T
	version uint64
	changed chan struct{}
}

// NewValue seeds a Value with an initial value.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{val: initial, changed: make(chan struct{})}
}

// Send stores val and wakes every receiver currently blocked in Changed.
func (v *Value[T]) Send(val T) {
	v.mu.Lock()
	v.val = val
	v.version++
	closed := v.changed
	v.changed = make(chan struct{})
	v.mu.Unlock()
	close(closed)
}

// Get returns the current value and its version.
func (v *Value[T]) Get() (T, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.version
}

// Changed blocks until a Send has occurred with a version newer than
// lastSeen, or ctxDone fires. It returns the new value and version; pass
// the returned version back in as lastSeen on the next call. A nil
// ctxDone means block indefinitely, until the next Send.
func (v *Value[T]) Changed(lastSeen uint64, ctxDone <-chan struct{}) (T, uint64, bool) {
	for {
		v.mu.Lock()
		if v.version != lastSeen {
			val, ver := v.val, v.version
			v.mu.Unlock()
			return val, ver, true
		}
		ch := v.changed
		v.mu.Unlock()

		if ctxDone == nil {
			<-ch
			continue
		}
		select {
		case <-ch:
		case <-ctxDone:
			var zero T
			return zero, lastSeen, false
		}
	}
}
