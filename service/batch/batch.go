package batch

import (
	"sync"
	"time"
)

// DefaultDelay is the debounce window applied when a batcher is created with a
// non-positive delay.
const DefaultDelay = 100 * time.Millisecond

// ListBatcher coalesces bursts of events into a single ordered flush. Every Add
// restarts the debounce timer, so a steady stream of events defers the flush
// until the stream pauses for at least the configured delay. A non-zero maxDelay
// bounds that deferral: the batch is flushed once maxDelay has elapsed since the
// first buffered event, even if events keep arriving.
type ListBatcher[T any] struct {
	mu        sync.Mutex
	delay     time.Duration
	maxDelay  time.Duration
	process   func([]T)
	buffer    []T
	timer     *time.Timer
	deadline  time.Time
	destroyed bool
}

// NewListBatcher creates a batcher that flushes the ordered event buffer to
// process after delay of quiet time. maxDelay of 0 disables the latency bound.
func NewListBatcher[T any](delay, maxDelay time.Duration, process func([]T)) *ListBatcher[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &ListBatcher[T]{delay: delay, maxDelay: maxDelay, process: process}
}

// Add buffers an event and (re)starts the debounce timer. Never blocks; a no-op
// after Destroy.
func (b *ListBatcher[T]) Add(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}

	if len(b.buffer) == 0 && b.maxDelay > 0 {
		b.deadline = time.Now().Add(b.maxDelay)
	}
	b.buffer = append(b.buffer, event)
	b.restartTimer()
}

// Flush synchronously delivers any buffered events and cancels the pending timer.
func (b *ListBatcher[T]) Flush() {
	b.mu.Lock()
	events := b.take()
	b.mu.Unlock()

	if len(events) > 0 {
		b.process(events)
	}
}

// Destroy cancels any pending timer and drops buffered events without flushing.
// Safe to call multiple times and from any state.
func (b *ListBatcher[T]) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.destroyed = true
	b.buffer = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *ListBatcher[T]) restartTimer() {
	wait := b.delay
	if b.maxDelay > 0 {
		if remaining := time.Until(b.deadline); remaining < wait {
			wait = remaining
			if wait < 0 {
				wait = 0
			}
		}
	}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(wait, b.onTimer)
}

func (b *ListBatcher[T]) onTimer() {
	b.mu.Lock()
	events := b.take()
	b.mu.Unlock()

	if len(events) > 0 {
		b.process(events)
	}
}

// take must be called with the mutex held.
func (b *ListBatcher[T]) take() []T {
	events := b.buffer
	b.buffer = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return events
}

// KeyedBatcher coalesces events per key: only the latest event stored under a
// key survives to the flush. Use it where only the final state matters (reaction
// and edit events); it is unsafe anywhere every intermediate event must be
// observed. Timer behavior matches ListBatcher.
type KeyedBatcher[K comparable, T any] struct {
	mu        sync.Mutex
	delay     time.Duration
	maxDelay  time.Duration
	getKey    func(T) K
	process   func(map[K]T)
	buffer    map[K]T
	timer     *time.Timer
	deadline  time.Time
	destroyed bool
}

// NewKeyedBatcher creates a latest-wins batcher keyed by getKey.
func NewKeyedBatcher[K comparable, T any](delay, maxDelay time.Duration, getKey func(T) K, process func(map[K]T)) *KeyedBatcher[K, T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &KeyedBatcher[K, T]{delay: delay, maxDelay: maxDelay, getKey: getKey, process: process}
}

// Add stores the event under its key, overwriting any prior event for that key,
// and (re)starts the debounce timer.
func (b *KeyedBatcher[K, T]) Add(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}

	if len(b.buffer) == 0 && b.maxDelay > 0 {
		b.deadline = time.Now().Add(b.maxDelay)
	}
	if b.buffer == nil {
		b.buffer = map[K]T{}
	}
	b.buffer[b.getKey(event)] = event
	b.restartTimer()
}

// Flush synchronously delivers any buffered events and cancels the pending timer.
func (b *KeyedBatcher[K, T]) Flush() {
	b.mu.Lock()
	events := b.take()
	b.mu.Unlock()

	if len(events) > 0 {
		b.process(events)
	}
}

// Destroy cancels any pending timer and drops buffered events without flushing.
// Safe to call multiple times and from any state.
func (b *KeyedBatcher[K, T]) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.destroyed = true
	b.buffer = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *KeyedBatcher[K, T]) restartTimer() {
	wait := b.delay
	if b.maxDelay > 0 {
		if remaining := time.Until(b.deadline); remaining < wait {
			wait = remaining
			if wait < 0 {
				wait = 0
			}
		}
	}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(wait, b.onTimer)
}

func (b *KeyedBatcher[K, T]) onTimer() {
	b.mu.Lock()
	events := b.take()
	b.mu.Unlock()

	if len(events) > 0 {
		b.process(events)
	}
}

// take must be called with the mutex held.
func (b *KeyedBatcher[K, T]) take() map[K]T {
	events := b.buffer
	b.buffer = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return events
}
