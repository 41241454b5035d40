package config

import (
	"testing"
)

func TestBusSubscribeTwiceNotifiedOnce(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	obs := &recordingObserver{}

	if !bus.Subscribe(obs) {
		t.Fatal("first Subscribe() = false")
	}
	if bus.Subscribe(obs) {
		t.Error("second Subscribe() = true, want false")
	}
	bus.Publish(UpdateEvent{ChangedKeys: []string{"a"}, Version: 1})
	if obs.count() != 1 {
		t.Fatalf("notifications = %d, want 1", obs.count())
	}

	if !bus.Unsubscribe(obs) {
		t.Error("Unsubscribe() = false")
	}
	bus.Publish(UpdateEvent{ChangedKeys: []string{"a"}, Version: 2})
	if obs.count() != 1 {
		t.Errorf("notifications after unsubscribe = %d, want 1", obs.count())
	}
	if bus.Unsubscribe(obs) {
		t.Error("second Unsubscribe() = true, want false")
	}
}

func TestBusRegistrationOrder(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	var order []int
	for i := 1; i <= 3; i++ {
		bus.SubscribeFunc(func(UpdateEvent) { order = append(order, i) })
	}
	bus.Publish(UpdateEvent{Version: 1})
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("delivery order = %v, want [1 2 3]", order)
	}
}

func TestBusPanickingObserver(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	bus.SubscribeFunc(func(UpdateEvent) { panic("boom") })
	obs := &recordingObserver{}
	bus.Subscribe(obs)

	bus.Publish(UpdateEvent{Version: 1})
	if obs.count() != 1 {
		t.Errorf("observer after panicking one got %d events, want 1", obs.count())
	}
}

func TestBusUnsubscribeDuringDelivery(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	second := &recordingObserver{}
	var self *Subscription
	calls := 0
	self = bus.SubscribeFunc(func(UpdateEvent) {
		calls++
		bus.Unsubscribe(self)
	})
	bus.Subscribe(second)

	bus.Publish(UpdateEvent{Version: 1})
	bus.Publish(UpdateEvent{Version: 2})

	if calls != 1 {
		t.Errorf("self-removing observer called %d times, want 1", calls)
	}
	if second.count() != 2 {
		t.Errorf("second observer got %d events, want 2", second.count())
	}
	if bus.Len() != 1 {
		t.Errorf("Len() = %d, want 1", bus.Len())
	}
}

func TestBusSubscribeFuncDistinctHandles(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	fn := func(UpdateEvent) {}
	a := bus.SubscribeFunc(fn)
	b := bus.SubscribeFunc(fn)
	if a.ID() == b.ID() {
		t.Error("SubscribeFunc returned handles with the same ID")
	}
	if bus.Len() != 2 {
		t.Errorf("Len() = %d, want 2", bus.Len())
	}
}

type valueObserver struct{ hits *int }

func (v valueObserver) OnConfigUpdate(UpdateEvent) { *v.hits++ }

func TestBusValueObserverIdentity(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	hits := 0
	obs := valueObserver{hits: &hits}
	bus.Subscribe(obs)
	bus.Subscribe(valueObserver{hits: &hits})
	bus.Publish(UpdateEvent{Version: 1})
	if hits != 1 {
		t.Errorf("hits = %d, want 1 for equal observer values", hits)
	}
}
