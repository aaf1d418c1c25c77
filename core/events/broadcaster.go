package events

import "sync"

// Broadcaster fans events out to dynamically registered subscribers. Slow
// subscribers drop events instead of blocking the ledger.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]chan *Envelope
	buffer int
}

// NewBroadcaster returns a broadcaster whose subscriber channels hold buffer
// events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{subs: make(map[uint64]chan *Envelope), buffer: buffer}
}

// Subscribe registers a subscriber. The returned cancel func must be called to
// release it; the channel is closed on cancel.
func (b *Broadcaster) Subscribe() (<-chan *Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan *Envelope, b.buffer)
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Broadcaster) Emit(evt Event) {
	if evt == nil {
		return
	}
	env := evt.Event()
	if env == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
		}
	}
}
