package mqtt

import (
	"errors"
	"fmt"
	"sync"
)

// Subscriber is the part of a Transport the Registry needs to apply itself.
type Subscriber interface {
	Subscribe(name string, qos byte) error
	Unsubscribe(name string) error
}

// Registry is the ordered set of topics this process wants active on the
// broker. Entries are unique by name and keep their insertion order so that
// re-subscription after a reconnect is deterministic.
//
// Thread Safety:
//   - All methods are safe for concurrent use, including Add/Remove while
//     Apply is running.
type Registry struct {
	mu      sync.Mutex
	topics  []Topic
	applied []string // names last subscribed on the transport
}

// NewRegistry returns a registry seeded with topics. Later duplicates of a
// name replace earlier ones in place.
func NewRegistry(topics ...Topic) *Registry {
	r := &Registry{}
	for _, t := range topics {
		r.Add(t)
	}
	return r
}

// Add tracks t. It reports whether the registry changed: false when a topic
// with the same name and QoS is already tracked. A topic with the same name
// but a different QoS replaces the existing entry without moving it.
func (r *Registry) Add(t Topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.topics {
		if existing.Same(t) {
			if existing.QoS == t.QoS {
				return false
			}
			r.topics[i] = t
			return true
		}
	}
	r.topics = append(r.topics, t)
	return true
}

// Remove stops tracking name. It reports whether name was tracked.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.topics {
		if existing.Name == name {
			r.topics = append(r.topics[:i:i], r.topics[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether name is tracked.
func (r *Registry) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.topics {
		if existing.Name == name {
			return true
		}
	}
	return false
}

// Topics returns a copy of the tracked topics in insertion order.
func (r *Registry) Topics() []Topic {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Topic, len(r.topics))
	copy(out, r.topics)
	return out
}

// Len returns the number of tracked topics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

// Apply makes the transport's subscription set equal to the tracked set.
//
// It first unsubscribes every topic that may be active on the transport
// (the previously applied names plus the tracked ones), then subscribes
// every tracked topic in insertion order. This repairs any inconsistency
// left by earlier partial failures.
//
// Every step is attempted even when an earlier one fails; the failures are
// joined into the returned error.
func (r *Registry) Apply(s Subscriber) error {
	r.mu.Lock()
	topics := make([]Topic, len(r.topics))
	copy(topics, r.topics)
	stale := r.activeLocked()
	r.mu.Unlock()

	var errs []error
	for _, name := range stale {
		if err := s.Unsubscribe(name); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %q: %w", name, err))
		}
	}

	applied := make([]string, 0, len(topics))
	for _, t := range topics {
		if err := s.Subscribe(t.Name, t.QoS); err != nil {
			errs = append(errs, fmt.Errorf("subscribe %q: %w", t.Name, err))
			continue
		}
		applied = append(applied, t.Name)
	}

	r.mu.Lock()
	r.applied = applied
	r.mu.Unlock()

	return errors.Join(errs...)
}

// Clear unsubscribes every topic that may be active on the transport
// without forgetting the tracked ones. It runs before an intentional
// disconnect so the broker-side set is empty while the local intent survives.
func (r *Registry) Clear(s Subscriber) error {
	r.mu.Lock()
	names := r.activeLocked()
	r.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := s.Unsubscribe(name); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %q: %w", name, err))
		}
	}

	r.mu.Lock()
	r.applied = nil
	r.mu.Unlock()

	return errors.Join(errs...)
}

// activeLocked returns every name that may be subscribed on the transport:
// the last applied names followed by any tracked names not among them.
// Caller must hold r.mu.
func (r *Registry) activeLocked() []string {
	names := make([]string, 0, len(r.applied)+len(r.topics))
	seen := make(map[string]struct{}, cap(names))
	for _, name := range r.applied {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for _, t := range r.topics {
		if _, ok := seen[t.Name]; !ok {
			seen[t.Name] = struct{}{}
			names = append(names, t.Name)
		}
	}
	return names
}

// markApplied records a live subscribe issued outside Apply.
func (r *Registry) markApplied(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.applied {
		if n == name {
			return
		}
	}
	r.applied = append(r.applied, name)
}

// markRemoved records a live unsubscribe issued outside Apply.
func (r *Registry) markRemoved(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.applied {
		if n == name {
			r.applied = append(r.applied[:i:i], r.applied[i+1:]...)
			return
		}
	}
}
