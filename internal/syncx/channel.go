package syncx

import (
	"sync"
	"sync/atomic"
)

// UnboundedChan is a FIFO whose senders never wait on the receiver. Values
// sent are delivered on Out in order; after Close the remaining values are
// flushed and Out is closed.
type UnboundedChan[T any] struct {
	in  chan T
	out chan T

	mu     sync.RWMutex
	closed bool
	queued atomic.Int64 // accepted but not yet received
}

func NewUnboundedChan[T any](capacity int) *UnboundedChan[T] {
	if capacity < 1 {
		capacity = 1
	}
	c := &UnboundedChan[T]{
		in:  make(chan T, capacity),
		out: make(chan T),
	}
	go c.forward(capacity)
	return c
}

func (c *UnboundedChan[T]) Out() <-chan T {
	return c.out
}

// Send enqueues v and reports false if the channel is already closed.
func (c *UnboundedChan[T]) Send(v T) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	c.queued.Add(1)
	c.in <- v
	return true
}

// Close stops accepting values. It is safe to call more than once.
func (c *UnboundedChan[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.in)
	}
}

// Len is the number of values sent but not yet received.
func (c *UnboundedChan[T]) Len() int {
	return int(c.queued.Load())
}

func (c *UnboundedChan[T]) push(v T) {
	c.out <- v
	c.queued.Add(-1)
}

func (c *UnboundedChan[T]) forward(capacity int) {
	defer close(c.out)
	buffer := make([]T, 0, capacity)

forward:
	for {
		val, ok := <-c.in
		if !ok {
			break forward
		}

		select {
		case c.out <- val:
			c.queued.Add(-1)
			continue
		default:
		}

		// out is full, buffer until the receiver catches up
		buffer = append(buffer, val)
		for len(buffer) > 0 {
			select {
			case val, ok := <-c.in:
				if !ok {
					break forward
				}
				buffer = append(buffer, val)
			case c.out <- buffer[0]:
				c.queued.Add(-1)
				buffer = buffer[1:]
				if len(buffer) == 0 {
					buffer = make([]T, 0, capacity)
				}
			}
		}
	}

	for _, v := range buffer {
		c.push(v)
	}
}
