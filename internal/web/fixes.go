package web

import (
	"sync"
	"time"
)

// Location is one subscriber update as streamed on /ws/fixes.
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Speed   float64 `json:"speed"`
	TimeUTC string  `json:"time_utc"`
}

// FixBroadcaster is a location subscriber that fans updates out to any
// number of listeners. Slow listeners miss updates instead of blocking the
// pipeline. The latest update is replayed to new listeners.
type FixBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan Location
	nextID   int
	last     Location
	haveLast bool
}

func NewFixBroadcaster() *FixBroadcaster {
	return &FixBroadcaster{subs: make(map[int]chan Location)}
}

// OnLocationUpdate implements notify.Subscriber.
func (b *FixBroadcaster) OnLocationUpdate(lat, lon, speed float64) {
	loc := Location{
		Lat:     lat,
		Lon:     lon,
		Speed:   speed,
		TimeUTC: time.Now().UTC().Format(time.RFC3339Nano),
	}

	b.mu.Lock()
	b.last = loc
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- loc:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *FixBroadcaster) Subscribe(buffer int) (int, <-chan Location) {
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan Location, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.haveLast {
		ch <- b.last
	}
	return id, ch
}

// Unsubscribe closes the listener's channel.
func (b *FixBroadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *FixBroadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *FixBroadcaster) Last() (Location, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.haveLast
}
