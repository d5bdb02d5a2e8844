package client

import (
	"sync"

	"futarchy_wallet/internal/domain/entity"
)

const eventQueueSize = 64

type handlerEntry struct {
	id uint64
	fn func(payload any)
}

type queuedEvent struct {
	event   entity.ProviderEvent
	payload any
}

// eventBus delivers provider events on a single goroutine, in the order they were emitted.
// Emitting never runs handlers on the caller's goroutine, so handlers may call back into the provider.
type eventBus struct {
	mu       sync.Mutex
	handlers map[entity.ProviderEvent][]handlerEntry
	nextID   uint64

	queue     chan queuedEvent
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newEventBus() *eventBus {
	b := &eventBus{
		handlers: make(map[entity.ProviderEvent][]handlerEntry),
		queue:    make(chan queuedEvent, eventQueueSize),
		done:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

func (b *eventBus) on(event entity.ProviderEvent, fn func(payload any)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[event] = append(b.handlers[event], handlerEntry{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[event]
		for i, e := range entries {
			if e.id == id {
				b.handlers[event] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

func (b *eventBus) emit(event entity.ProviderEvent, payload any) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.queue <- queuedEvent{event: event, payload: payload}:
	case <-b.done:
	}
}

func (b *eventBus) run() {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-b.done:
			return
		}
	}
}

func (b *eventBus) deliver(ev queuedEvent) {
	b.mu.Lock()
	entries := append([]handlerEntry(nil), b.handlers[ev.event]...)
	b.mu.Unlock()
	for _, e := range entries {
		e.fn(ev.payload)
	}
}

func (b *eventBus) close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
	})
}
