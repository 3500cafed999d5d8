// Package notify fans accepted fixes out to in-process subscribers.
package notify

import (
	"reflect"
	"sync"

	"nmea-bridge/internal/fix"
)

// Subscriber receives location updates. Speed is always 0: no velocity source
// is bound to the correlated fix.
//
// Implementations are called synchronously on the pipeline goroutine and must
// not block.
type Subscriber interface {
	OnLocationUpdate(lat, lon, speed float64)
}

// SubscriberFunc adapts a function to Subscriber. Use a pointer to it
// (&fn) when the identity matters for Unsubscribe.
type SubscriberFunc func(lat, lon, speed float64)

func (f *SubscriberFunc) OnLocationUpdate(lat, lon, speed float64) { (*f)(lat, lon, speed) }

// Notifier keeps an ordered set of subscribers. Duplicates (by identity) are
// ignored. Subscribers whose dynamic value is not comparable (a struct value
// holding a slice, say) never match each other; subscribe a pointer to them
// if they must be removable.
type Notifier struct {
	mu   sync.Mutex
	subs []Subscriber
}

func New() *Notifier {
	return &Notifier{}
}

// Subscribe adds s and reports whether it was not already present.
func (n *Notifier) Subscribe(s Subscriber) bool {
	if s == nil {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, have := range n.subs {
		if sameSubscriber(have, s) {
			return false
		}
	}
	n.subs = append(n.subs, s)
	return true
}

// Unsubscribe removes s and reports whether it was present.
func (n *Notifier) Unsubscribe(s Subscriber) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, have := range n.subs {
		if sameSubscriber(have, s) {
			// Copy so an in-flight Notify keeps iterating its own snapshot.
			out := make([]Subscriber, 0, len(n.subs)-1)
			out = append(out, n.subs[:i]...)
			out = append(out, n.subs[i+1:]...)
			n.subs = out
			return true
		}
	}
	return false
}

// sameSubscriber compares by interface identity without panicking on
// non-comparable dynamic values.
func sameSubscriber(a, b Subscriber) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	return a == b
}

func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Notify invokes every subscriber in subscription order.
func (n *Notifier) Notify(f fix.Fix) {
	n.mu.Lock()
	subs := n.subs
	n.mu.Unlock()

	for _, s := range subs {
		s.OnLocationUpdate(f.Lat, f.Lon, 0)
	}
}
