package event

import (
	"context"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Event is a marker interface all published events implement.
type Event[T any] interface {
	Event()
}

type Handler[T any] func(context.Context, T)

type Filter[T any] func(T) bool

// Bus is a typed in-process event bus. Handler delivery is asynchronous
// over a fixed worker pool; channel subscriptions are fed in publish order
// through a per-subscriber queue. Slow consumers never stall publishers.
type Bus struct {
	ctx         context.Context
	cancel      context.CancelFunc
	subscribers map[reflect.Type][]subscriber
	mu          sync.RWMutex
	wg          sync.WaitGroup
	closed      atomic.Bool

	queue   chan delivery
	metrics *busMetrics
}

type delivery struct {
	event     any
	eventType string
	invoke    func(context.Context, any)
}

type subscriber struct {
	id     uuid.UUID
	invoke func(context.Context, any)
	// direct subscribers are invoked on the publishing goroutine so one
	// publisher's events keep their publish order.
	direct bool
	stop   func()
}

type Subscription struct {
	bus       *Bus
	eventType reflect.Type
	id        uuid.UUID
	once      sync.Once
}

func NewBus(registry *prometheus.Registry) *Bus {
	ctx, cancel := context.WithCancel(context.Background())

	bus := &Bus{
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[reflect.Type][]subscriber),
		queue:       make(chan delivery, 1024),
		metrics:     newBusMetrics(registry),
	}

	for range 16 {
		bus.wg.Add(1)
		go bus.worker()
	}

	return bus
}

func (bus *Bus) worker() {
	defer bus.wg.Done()

	for {
		select {
		case <-bus.ctx.Done():
			return
		case d := <-bus.queue:
			bus.deliver(d)
		}
	}
}

func (bus *Bus) deliver(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(bus.ctx, "panic in event handler",
				"error", r,
				"event_type", d.eventType,
				"stack", string(debug.Stack()),
			)
		}
	}()

	d.invoke(bus.ctx, d.event)
	bus.metrics.delivered(d.eventType)
}

// Subscribe registers a handler for events of type T, optionally filtered.
// Handlers run asynchronously on the bus worker pool.
func Subscribe[T Event[T]](bus *Bus, handler Handler[T], filter Filter[T]) *Subscription {
	if bus.closed.Load() {
		return &Subscription{bus: bus}
	}

	var zero T
	eventType := reflect.TypeOf(zero)
	id := uuid.New()

	sub := subscriber{
		id: id,
		invoke: func(ctx context.Context, event any) {
			typed, ok := event.(T)
			if !ok || (filter != nil && !filter(typed)) {
				return
			}
			handler(ctx, typed)
		},
	}

	bus.mu.Lock()
	bus.subscribers[eventType] = append(bus.subscribers[eventType], sub)
	bus.mu.Unlock()

	return &Subscription{bus: bus, eventType: eventType, id: id}
}

// SubscribeChannel returns a buffered receive channel for events of type T.
// Each channel subscriber has its own unbounded pending queue appended to
// in publish order, so a single publisher's events are delivered in the
// order they were published and are never dropped; a slow receiver delays
// its own delivery only, never the bus or other subscribers. Unsubscribe
// discards anything still pending and closes the channel.
func SubscribeChannel[T Event[T]](bus *Bus, bufferSize int, filter Filter[T]) (<-chan T, *Subscription) {
	if bus.closed.Load() {
		ch := make(chan T)
		close(ch)
		return ch, &Subscription{bus: bus}
	}

	var zero T
	eventType := reflect.TypeOf(zero)

	ch := make(chan T, bufferSize)
	queue := newPending[T]()
	stopped := make(chan struct{})

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			queue.close()
			close(stopped)
		})
	}

	go func() {
		defer close(ch)
		for {
			item, ok := queue.pop()
			if !ok {
				return
			}
			select {
			case ch <- item:
			case <-stopped:
				return
			}
		}
	}()

	id := uuid.New()
	sub := subscriber{
		id:     id,
		direct: true,
		stop:   stop,
		invoke: func(ctx context.Context, event any) {
			typed, ok := event.(T)
			if !ok || (filter != nil && !filter(typed)) {
				return
			}
			queue.push(typed)
		},
	}

	bus.mu.Lock()
	bus.subscribers[eventType] = append(bus.subscribers[eventType], sub)
	bus.mu.Unlock()

	return ch, &Subscription{bus: bus, eventType: eventType, id: id}
}

// pending is the unbounded FIFO between the bus and one channel
// subscriber. push never blocks the publisher; the subscriber's drain
// goroutine forwards items to the channel one at a time.
type pending[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

func newPending[T any]() *pending[T] {
	p := &pending[T]{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pending[T]) push(item T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.items = append(p.items, item)
	p.cond.Signal()
}

func (p *pending[T]) pop() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.items) == 0 && !p.closed {
		p.cond.Wait()
	}
	var zero T
	if p.closed {
		return zero, false
	}
	item := p.items[0]
	p.items = p.items[1:]
	return item, true
}

func (p *pending[T]) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.items = nil
	p.cond.Broadcast()
}

// Unsubscribe removes the subscription and closes its channel if it has
// one. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		subs := s.bus.subscribers[s.eventType]
		for i, sub := range subs {
			if sub.id != s.id {
				continue
			}
			s.bus.subscribers[s.eventType] = append(subs[:i], subs[i+1:]...)
			if sub.stop != nil {
				sub.stop()
			}
			break
		}
	})
}

// Publish queues an event for asynchronous delivery to all subscribers of
// its type.
func Publish[T Event[T]](bus *Bus, event T) {
	if bus.closed.Load() {
		return
	}

	eventType := reflect.TypeOf(event)
	eventTypeName := eventType.String()

	bus.mu.RLock()
	subs := make([]subscriber, len(bus.subscribers[eventType]))
	copy(subs, bus.subscribers[eventType])
	bus.mu.RUnlock()

	for _, sub := range subs {
		if sub.direct {
			sub.invoke(bus.ctx, event)
			bus.metrics.delivered(eventTypeName)
			continue
		}
		select {
		case bus.queue <- delivery{event: event, eventType: eventTypeName, invoke: sub.invoke}:
		case <-bus.ctx.Done():
			return
		default:
			bus.metrics.dropped(eventTypeName)
			slog.DebugContext(bus.ctx, "dropped event, full work queue",
				"event_type", eventTypeName,
			)
		}
	}

	bus.metrics.published(eventTypeName)
}

// Close drains the worker pool and closes every channel subscription.
// Safe to call more than once.
func (bus *Bus) Close() {
	if !bus.closed.CompareAndSwap(false, true) {
		return
	}

	bus.cancel()
	bus.wg.Wait()

	bus.mu.Lock()
	defer bus.mu.Unlock()
	for eventType, subs := range bus.subscribers {
		for _, sub := range subs {
			if sub.stop != nil {
				sub.stop()
			}
		}
		delete(bus.subscribers, eventType)
	}
}

func (bus *Bus) IsClosed() bool {
	return bus.closed.Load()
}

// SubscriberCount reports subscribers for T. Useful in tests.
func SubscriberCount[T Event[T]](bus *Bus) int {
	var zero T
	eventType := reflect.TypeOf(zero)

	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.subscribers[eventType])
}
