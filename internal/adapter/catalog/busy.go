package catalog

import "sync"

// BusyTracker reports whether any request issued through one Client is in
// flight. It counts requests, so overlapping requests keep it busy until
// the last one settles.
type BusyTracker struct {
	mu       sync.Mutex
	inFlight int
	nextID   int
	watchers map[int]chan bool
}

func NewBusyTracker() *BusyTracker {
	return &BusyTracker{watchers: make(map[int]chan bool)}
}

// Begin marks a request as started. The returned func marks it settled and
// is safe to call more than once.
func (b *BusyTracker) Begin() func() {
	b.mu.Lock()
	b.inFlight++
	if b.inFlight == 1 {
		b.notifyLocked(true)
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.inFlight--
			if b.inFlight == 0 {
				b.notifyLocked(false)
			}
			b.mu.Unlock()
		})
	}
}

func (b *BusyTracker) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight > 0
}

// Watch returns a channel receiving busy/idle transitions. A slow reader
// only ever sees the latest state. The cancel func closes the channel.
func (b *BusyTracker) Watch() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.watchers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.watchers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *BusyTracker) notifyLocked(busy bool) {
	for _, ch := range b.watchers {
		select {
		case ch <- busy:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- busy
		}
	}
}
