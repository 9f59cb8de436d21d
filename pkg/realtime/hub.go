package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"darna/pkg/logger"

	"github.com/google/uuid"
)

var ErrHubClosed = errors.New("realtime hub is closed")

// Handler receives events for one subscription. ctx is cancelled when the
// subscription is released.
type Handler func(ctx context.Context, ev ChangeEvent)

// Sink accepts change events from a feed source.
type Sink interface {
	Emit(ctx context.Context, ev ChangeEvent) error
}

// Hub fans change events out to subscribers. Each subscription owns a
// goroutine and a bounded queue so one slow handler never blocks Publish or
// other subscribers. When a queue overflows the subscriber gets an OpResync
// event once it catches up.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	closed bool
	log    *logger.Logger
}

func NewHub(buffer int, log *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		log:    log,
	}
}

func (h *Hub) Subscribe(filter Filter, handler Handler) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		id:      uuid.New().String(),
		hub:     h,
		filter:  filter,
		handler: handler,
		queue:   make(chan ChangeEvent, h.buffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	h.subs[sub.id] = sub
	go sub.run()

	return sub, nil
}

// Publish never blocks.
func (h *Hub) Publish(ev ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.queue <- ev:
		default:
			if sub.overflow.CompareAndSwap(false, true) {
				h.log.Warn("Subscriber queue full, scheduling resync",
					"subscription", sub.id,
					"table", sub.filter.Table,
				)
			}
		}
	}
}

func (h *Hub) Emit(_ context.Context, ev ChangeEvent) error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrHubClosed
	}
	h.Publish(ev)
	return nil
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close releases every subscription. Subscribe fails afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

type Subscription struct {
	id       string
	hub      *Hub
	filter   Filter
	handler  Handler
	queue    chan ChangeEvent
	overflow atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (s *Subscription) ID() string {
	return s.id
}

// Context is cancelled when the subscription is released.
func (s *Subscription) Context() context.Context {
	return s.ctx
}

// Unsubscribe stops delivery and cancels the subscription context. It is safe
// to call more than once and from inside the handler.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		s.cancel()
	})
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) run() {
	defer close(s.done)
	defer s.hub.remove(s.id)

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.queue:
			s.deliver(ev)
		}
		if s.overflow.CompareAndSwap(true, false) {
			s.drain()
			s.deliver(resyncEvent(s.filter.Table))
		}
	}
}

// drain drops queued events that the resync supersedes.
func (s *Subscription) drain() {
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}

func (s *Subscription) deliver(ev ChangeEvent) {
	if s.ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.hub.log.Error("Subscription handler panicked",
				"subscription", s.id,
				"table", ev.Table,
				"panic", r,
			)
		}
	}()
	s.handler(s.ctx, ev)
}
