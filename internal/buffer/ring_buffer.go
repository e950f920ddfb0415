// Package buffer provides a bounded output buffer for command execution.
package buffer

import (
	"sync"
)

// RingBuffer is a thread-safe buffer that keeps only the most recent
// capacity bytes written to it. It implements io.Writer so it can sit
// directly behind a command's stdout and stderr.
type RingBuffer struct {
	data     []byte
	capacity int
	dropped  int64
	mu       sync.RWMutex
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		data:     make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// Write appends p, discarding the oldest bytes once capacity is exceeded.
// It never fails and always reports len(p) written.
func (rb *RingBuffer) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(p) >= rb.capacity {
		rb.dropped += int64(len(rb.data) + len(p) - rb.capacity)
		rb.data = append(rb.data[:0], p[len(p)-rb.capacity:]...)
		return len(p), nil
	}

	if overflow := len(rb.data) + len(p) - rb.capacity; overflow > 0 {
		rb.dropped += int64(overflow)
		// Shift the surviving tail to the front and reuse the backing array.
		kept := copy(rb.data, rb.data[overflow:])
		rb.data = rb.data[:kept]
	}
	rb.data = append(rb.data, p...)

	return len(p), nil
}

// ReadAll returns a copy of all data currently in the buffer.
func (rb *RingBuffer) ReadAll() []byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if len(rb.data) == 0 {
		return nil
	}

	result := make([]byte, len(rb.data))
	copy(result, rb.data)
	return result
}

// String returns the buffered data as a string.
func (rb *RingBuffer) String() string {
	return string(rb.ReadAll())
}

// Dropped returns how many bytes have been discarded to stay within capacity.
func (rb *RingBuffer) Dropped() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.dropped
}

// Truncated reports whether any output was discarded.
func (rb *RingBuffer) Truncated() bool {
	return rb.Dropped() > 0
}

// Len returns the current number of bytes in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return len(rb.data)
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return rb.capacity
}
