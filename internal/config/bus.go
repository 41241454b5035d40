package config

import (
	"reflect"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"media-dedup/internal/logging"
	"media-dedup/internal/metrics"
)

// UpdateEvent describes a committed configuration change. Observers receive the
// changed keys only and re-read current values from the Store.
type UpdateEvent struct {
	// ChangedKeys are the sorted dotted leaf keys whose value changed.
	ChangedKeys []string
	// Version is the store version after the change.
	Version int64
	// Source names what caused the change ("load", "update", "watch", "api").
	Source string
}

// Has reports whether any changed key equals one of keys or lies beneath it.
// Has("threading") matches "threading.database_threads".
func (e UpdateEvent) Has(keys ...string) bool {
	for _, changed := range e.ChangedKeys {
		for _, k := range keys {
			if changed == k || strings.HasPrefix(changed, k+".") {
				return true
			}
		}
	}
	return false
}

// Observer receives configuration change notifications.
type Observer interface {
	OnConfigUpdate(event UpdateEvent)
}

// ObserverFunc adapts a function to Observer. Functions are not comparable, so
// register them with Bus.SubscribeFunc, which returns a removable handle.
type ObserverFunc func(event UpdateEvent)

// Subscription is the handle returned by SubscribeFunc. Its identity is the
// pointer itself.
type Subscription struct {
	id uint64
	fn ObserverFunc
}

// ID returns the numeric identity of the subscription.
func (s *Subscription) ID() uint64 { return s.id }

// OnConfigUpdate implements Observer.
func (s *Subscription) OnConfigUpdate(event UpdateEvent) { s.fn(event) }

// Bus fans configuration changes out to registered observers. Delivery is
// synchronous, in registration order, on the publishing goroutine.
type Bus struct {
	mu        sync.Mutex
	observers []Observer
	nextID    atomic.Uint64
	inFlight  atomic.Int32
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers o. Registering the same observer twice has no effect.
// It returns false when o was already registered or cannot be identified.
func (b *Bus) Subscribe(o Observer) bool {
	if o == nil {
		return false
	}
	if !reflect.TypeOf(o).Comparable() {
		logging.Error("config bus: observer of type %T is not comparable; use SubscribeFunc", o)
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.observers {
		if existing == o {
			return false
		}
	}
	b.observers = append(b.observers, o)
	metrics.ConfigObservers.Set(float64(len(b.observers)))
	return true
}

// SubscribeFunc registers fn and returns a handle that can be passed to
// Unsubscribe.
func (b *Bus) SubscribeFunc(fn ObserverFunc) *Subscription {
	sub := &Subscription{id: b.nextID.Add(1), fn: fn}
	b.Subscribe(sub)
	return sub
}

// Unsubscribe removes o. Removing an observer that is not registered has no
// effect. It is safe to call from inside a notification.
func (b *Bus) Unsubscribe(o Observer) bool {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.observers {
		if existing == o {
			next := make([]Observer, 0, len(b.observers)-1)
			next = append(next, b.observers[:i]...)
			next = append(next, b.observers[i+1:]...)
			b.observers = next
			metrics.ConfigObservers.Set(float64(len(b.observers)))
			return true
		}
	}
	return false
}

// Len returns the number of registered observers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

// Publish delivers event to every observer registered at the time of the call.
// An observer that panics is logged and skipped.
func (b *Bus) Publish(event UpdateEvent) {
	b.mu.Lock()
	targets := b.observers
	b.mu.Unlock()

	if b.inFlight.Add(1) > 1 {
		logging.Debug("config bus: publish of version %d overlaps another delivery", event.Version)
	}
	defer b.inFlight.Add(-1)

	for _, o := range targets {
		deliver(o, event)
	}
}

func deliver(o Observer, event UpdateEvent) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ConfigObserverPanics.Inc()
			logging.Error("config observer %T panicked on version %d: %v\n%s", o, event.Version, r, debug.Stack())
		}
	}()
	o.OnConfigUpdate(event)
}
