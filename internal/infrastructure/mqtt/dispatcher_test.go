package mqtt

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherOrder(t *testing.T) {
	d := NewDispatcher(nil)
	var order []int
	for i := 1; i <= 3; i++ {
		d.Register(func(Event) error {
			order = append(order, i)
			return nil
		})
	}

	d.Dispatch(ConnectedEvent())

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("delivery order = %v, want [1 2 3]", order)
	}
}

func TestDispatcherIsolatesFaults(t *testing.T) {
	d := NewDispatcher(nil)
	var reached atomic.Int32

	d.Register(func(Event) error { panic("boom") })
	d.Register(func(Event) error { return errors.New("listener failed") })
	d.Register(func(Event) error {
		reached.Add(1)
		return nil
	})

	d.Dispatch(DisconnectedEvent())

	if reached.Load() != 1 {
		t.Errorf("last listener calls = %d, want 1", reached.Load())
	}
}

func TestDispatcherRegisterDuringDelivery(t *testing.T) {
	d := NewDispatcher(nil)
	late := &eventRecorder{}

	var registered atomic.Bool
	d.Register(func(Event) error {
		if registered.CompareAndSwap(false, true) {
			d.Register(late.handle)
		}
		return nil
	})

	d.Dispatch(ConnectedEvent())
	if n := len(late.types()); n != 0 {
		t.Fatalf("late listener got %d in-flight events, want 0", n)
	}

	d.Dispatch(DisconnectedEvent())
	if got := late.types(); len(got) != 1 || got[0] != EventDisconnected {
		t.Errorf("late listener events = %v, want [disconnected]", got)
	}
}

func TestDispatcherRemoveSelfDuringDelivery(t *testing.T) {
	d := NewDispatcher(nil)
	var calls atomic.Int32

	var id ListenerID
	id = d.Register(func(Event) error {
		calls.Add(1)
		d.Remove(id)
		return nil
	})
	other := &eventRecorder{}
	d.Register(other.handle)

	done := make(chan struct{})
	go func() {
		d.Dispatch(ConnectedEvent())
		d.Dispatch(DisconnectedEvent())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("removing a listener from its own callback deadlocked")
	}

	if calls.Load() != 1 {
		t.Errorf("self-removing listener calls = %d, want 1", calls.Load())
	}
	if len(other.types()) != 2 {
		t.Errorf("other listener events = %v, want 2", other.types())
	}
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1", d.Len())
	}
}

func TestDispatcherRemoveOtherDuringDelivery(t *testing.T) {
	d := NewDispatcher(nil)
	second := &eventRecorder{}

	var secondID ListenerID
	d.Register(func(Event) error {
		d.Remove(secondID)
		return nil
	})
	secondID = d.Register(second.handle)

	// The in-flight event still reaches the snapshot taken at dispatch.
	d.Dispatch(ConnectedEvent())
	d.Dispatch(ConnectedEvent())

	if n := len(second.types()); n != 1 {
		t.Errorf("removed listener events = %d, want 1", n)
	}
}

func TestDispatcherRemoveUnknown(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(func(Event) error { return nil })

	d.Remove(ListenerID(999))

	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1", d.Len())
	}
}

func TestDispatcherChannel(t *testing.T) {
	d := NewDispatcher(nil)
	ch, cancel := d.Channel(2)

	d.Dispatch(ConnectedEvent())
	d.Dispatch(MessageEvent("huzzah/1/msg", []byte("1,2,3")))
	// Buffer is full; this one is dropped without blocking.
	d.Dispatch(DisconnectedEvent())

	if ev := <-ch; ev.Type != EventConnected {
		t.Errorf("first = %v, want connected", ev.Type)
	}
	if ev := <-ch; ev.Type != EventMessage || ev.Topic != "huzzah/1/msg" {
		t.Errorf("second = %+v, want message", ev)
	}

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	if d.Len() != 0 {
		t.Errorf("Len() = %d after cancel, want 0", d.Len())
	}

	// Dispatch after cancel must not panic on the closed channel.
	d.Dispatch(ConnectedEvent())
}
