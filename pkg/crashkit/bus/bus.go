// Package bus delivers client state changes to registered listeners.
//
// Publishers never block: messages go into a bounded buffer drained by a
// single dispatcher goroutine, and a full buffer drops the message. Listeners
// run on the dispatcher goroutine in registration order and must not block.
package bus

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/strongdm/ai-crashkit/pkg/crashkit/metrics"
)

// Publisher accepts messages. *Bus satisfies it.
type Publisher interface {
	// Publish enqueues msg, reporting false if it was dropped.
	Publish(msg Message) bool
}

// Listener handles one message.
type Listener func(msg Message)

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(b *Bus) { b.metrics = m }
}

type subscription struct {
	id int
	fn Listener
}

// Bus is a bounded message channel with listener registration.
type Bus struct {
	queue   chan Message
	logger  zerolog.Logger
	metrics metrics.Recorder

	mu        sync.RWMutex
	listeners []subscription
	nextID    int

	// closeMu guards closed and the queue against send-after-close.
	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts a bus with room for bufferSize undelivered messages.
func New(bufferSize int, opts ...Option) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	b := &Bus{
		queue:   make(chan Message, bufferSize),
		logger:  zerolog.Nop(),
		metrics: metrics.Noop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With().Str("component", "bus").Logger()

	b.wg.Add(1)
	go b.dispatchLoop()
	return b
}

// Subscribe registers fn and returns a func that unregisters it.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners = append(b.listeners, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.listeners {
				if sub.id == id {
					b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish implements Publisher.
func (b *Bus) Publish(msg Message) bool {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return false
	}

	select {
	case b.queue <- msg:
		return true
	default:
		b.metrics.IncBusDropped()
		b.logger.Debug().Str("message", msg.Kind()).Msg("bus buffer full, dropping message")
		return false
	}
}

// Close stops accepting messages, delivers what is buffered and waits for
// the dispatcher to exit.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.closeMu.Lock()
		b.closed = true
		close(b.queue)
		b.closeMu.Unlock()
		b.wg.Wait()
	})
	return nil
}

func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	for msg := range b.queue {
		b.mu.RLock()
		listeners := append([]subscription(nil), b.listeners...)
		b.mu.RUnlock()

		for _, sub := range listeners {
			b.dispatch(sub.fn, msg)
		}
	}
}

func (b *Bus) dispatch(fn Listener, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn().Str("message", msg.Kind()).Str("panic", fmt.Sprint(r)).Msg("bus listener panicked")
		}
	}()
	fn(msg)
}

type discard struct{}

// Discard returns a Publisher that drops everything.
func Discard() Publisher { return discard{} }

func (discard) Publish(Message) bool { return true }
