package socket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultPollInterval is how often the bridge polls for a transport handle.
	DefaultPollInterval = 750 * time.Millisecond
	// DefaultMaxRetries bounds the poll loop at roughly 15 seconds.
	DefaultMaxRetries = 20
	// DefaultAckTimeout applies when EmitWithAck is called with a non-positive timeout.
	DefaultAckTimeout = 5 * time.Second
)

var (
	ErrNoTransport = errors.New("no socket transport available")
	ErrAckTimeout  = errors.New("timed out waiting for ack")
)

// Transport is the push-event transport handle the bridge adapts. The concrete
// implementation is the websocket Client in this package; tests use fakes.
type Transport interface {
	// Connected reports whether the transport currently has a live connection.
	Connected() bool
	// OnConnect registers a hook invoked once, on the next successful connect.
	// Invoked immediately if already connected.
	OnConnect(hook func())
	// Listen subscribes a handler to a named event and returns its remove func.
	Listen(event string, handler func(payload []byte)) func()
	// Request sends an event expecting a single acknowledgment and returns the
	// channel the ack payload will be delivered on.
	Request(ctx context.Context, event string, data interface{}) (<-chan []byte, error)
}

// Bridge provides retry-until-ready access to a transport that may not exist yet.
// The provider is polled until it returns a non-nil handle, the way a browser
// client polls for a socket global that another subsystem installs.
type Bridge struct {
	provider     func() Transport
	pollInterval time.Duration
	maxRetries   int
}

func NewBridge(provider func() Transport) *Bridge {
	return &Bridge{
		provider:     provider,
		pollInterval: DefaultPollInterval,
		maxRetries:   DefaultMaxRetries,
	}
}

// NewBridgeWithPolicy creates a bridge with a custom poll interval and retry cap.
func NewBridgeWithPolicy(provider func() Transport, pollInterval time.Duration, maxRetries int) *Bridge {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Bridge{provider: provider, pollInterval: pollInterval, maxRetries: maxRetries}
}

// WaitForTransport polls for the transport handle and runs setup exactly once as
// soon as the transport is connected. If the handle never appears within the
// retry budget, onTimeout (if non-nil) is invoked and the wait stops.
//
// The returned cancel func halts pending retries and prevents any further
// callback invocation. It is safe to call at any point, any number of times,
// including after setup already ran (a no-op then, not an error).
func (b *Bridge) WaitForTransport(setup func(Transport), onTimeout func()) func() {
	var cancelled atomic.Bool
	var once sync.Once

	runSetup := func(t Transport) {
		if cancelled.Load() {
			return
		}
		once.Do(func() { setup(t) })
	}

	go func() {
		for attempt := 0; attempt < b.maxRetries; attempt++ {
			if cancelled.Load() {
				return
			}

			if t := b.provider(); t != nil {
				if t.Connected() {
					runSetup(t)
					return
				}
				// found but disconnected: set up exactly once when the
				// connection completes
				t.OnConnect(func() { runSetup(t) })
				return
			}

			time.Sleep(b.pollInterval)
		}

		if !cancelled.Load() && onTimeout != nil {
			onTimeout()
		}
	}()

	return func() { cancelled.Store(true) }
}

// EmitWithAck sends an event expecting a single acknowledgment from the remote
// side. It fails immediately with ErrNoTransport when no transport is available
// and with ErrAckTimeout when no ack arrives within the timeout.
func (b *Bridge) EmitWithAck(ctx context.Context, event string, data interface{}, timeout time.Duration) ([]byte, error) {
	t := b.provider()
	if t == nil {
		return nil, ErrNoTransport
	}

	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}

	ack, err := t.Request(ctx, event, data)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload, ok := <-ack:
		if !ok {
			return nil, ErrNoTransport
		}
		return payload, nil
	case <-timer.C:
		return nil, ErrAckTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
