// callbacks.go runs user hooks that may inspect, modify or drop payloads.

package crashkit

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// OnErrorFunc runs before an event is captured. Returning false drops it.
type OnErrorFunc func(event *Event) bool

// OnSendFunc runs before a handled event is sent. Returning false drops it.
type OnSendFunc func(event *Event) bool

// OnBreadcrumbFunc runs before a breadcrumb is recorded. Returning false drops it.
type OnBreadcrumbFunc func(crumb *Breadcrumb) bool

// OnSessionFunc runs before a session is tracked. Returning false skips delivery.
type OnSessionFunc func(session *Session) bool

// Callbacks holds registered hooks. Safe for concurrent use.
//
// Each hook runs under recover(): a panicking hook is logged and treated as
// if it returned true, and the remaining hooks still run.
type Callbacks struct {
	mu           sync.RWMutex
	onError      []OnErrorFunc
	onSend       []OnSendFunc
	onBreadcrumb []OnBreadcrumbFunc
	onSession    []OnSessionFunc
}

func (c *Callbacks) AddOnError(fn OnErrorFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = append(c.onError, fn)
}

func (c *Callbacks) AddOnSend(fn OnSendFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSend = append(c.onSend, fn)
}

func (c *Callbacks) AddOnBreadcrumb(fn OnBreadcrumbFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBreadcrumb = append(c.onBreadcrumb, fn)
}

func (c *Callbacks) AddOnSession(fn OnSessionFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSession = append(c.onSession, fn)
}

// RunOnError runs the registered OnError hooks followed by extra.
func (c *Callbacks) RunOnError(event *Event, logger zerolog.Logger, extra ...OnErrorFunc) bool {
	c.mu.RLock()
	hooks := append(append([]OnErrorFunc(nil), c.onError...), extra...)
	c.mu.RUnlock()

	keep := true
	for _, fn := range hooks {
		if !runHook(logger, "OnError", func() bool { return fn(event) }) {
			keep = false
		}
	}
	return keep
}

// RunOnSend runs the registered OnSend hooks.
func (c *Callbacks) RunOnSend(event *Event, logger zerolog.Logger) bool {
	c.mu.RLock()
	hooks := append([]OnSendFunc(nil), c.onSend...)
	c.mu.RUnlock()

	keep := true
	for _, fn := range hooks {
		if !runHook(logger, "OnSend", func() bool { return fn(event) }) {
			keep = false
		}
	}
	return keep
}

// RunOnBreadcrumb runs the registered OnBreadcrumb hooks.
func (c *Callbacks) RunOnBreadcrumb(crumb *Breadcrumb, logger zerolog.Logger) bool {
	c.mu.RLock()
	hooks := append([]OnBreadcrumbFunc(nil), c.onBreadcrumb...)
	c.mu.RUnlock()

	keep := true
	for _, fn := range hooks {
		if !runHook(logger, "OnBreadcrumb", func() bool { return fn(crumb) }) {
			keep = false
		}
	}
	return keep
}

// RunOnSession runs the registered OnSession hooks.
func (c *Callbacks) RunOnSession(session *Session, logger zerolog.Logger) bool {
	c.mu.RLock()
	hooks := append([]OnSessionFunc(nil), c.onSession...)
	c.mu.RUnlock()

	keep := true
	for _, fn := range hooks {
		if !runHook(logger, "OnSession", func() bool { return fn(session) }) {
			keep = false
		}
	}
	return keep
}

// runHook calls fn, converting a panic into a logged "keep".
func runHook(logger zerolog.Logger, kind string, fn func() bool) (keep bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Str("callback", kind).Str("panic", fmt.Sprint(r)).Msg("callback panicked, continuing")
			keep = true
		}
	}()
	return fn()
}
