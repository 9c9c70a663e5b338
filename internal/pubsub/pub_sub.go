package pubsub

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// EventType is the type of event subscribers are listening for. This is a base type.
type EventType int

// SubscriptionOptions configures the behavior of a subscription.
type SubscriptionOptions struct {
	// If true, the broker blocks until the event fits in the subscriber's channel. This guarantees delivery but a
	// slow subscriber stalls the whole bus, so it should generally be false.
	IsBlocking bool
}

// SubscriberID is a unique identifier for a single subscription instance, required to unsubscribe.
type SubscriberID uint64

// Event is a generic event with compile-time type safety for payloads.
type Event[T any] struct {
	Type    EventType
	Payload T
}

func NewEvent[T any](eventType EventType, payload T) *Event[T] {
	return &Event[T]{
		Type:    eventType,
		Payload: payload,
	}
}

// subscriber is the type-erased form of a typed subscription. sendFunc and closeFunc close over the caller's
// chan *Event[T], which lets channels of different payload types share one registry.
type subscriber struct {
	sendFunc  func(eventType EventType, payload any) bool
	closeFunc func()

	options    SubscriptionOptions
	numDropped atomic.Uint64
}

type message struct {
	eventType EventType
	payload   any
}

// PubSubClient is a thread-safe event bus. Nodes publish state transitions on it; harnesses and commands
// subscribe to observe them without reaching into node internals.
type PubSubClient struct {
	mu sync.RWMutex
	// Used to wait for the run() goroutine to finish
	wg sync.WaitGroup

	logger *zap.Logger

	nextID   atomic.Uint64
	registry map[EventType]map[SubscriberID]*subscriber

	// Buffered so that Publish does not wait on the broadcast of a previous event, and so in-flight events can be
	// drained by GracefulShutdown.
	publishChan chan message

	shuttingDown atomic.Bool
}

// Option configures a PubSubClient
type Option func(*PubSubClient)

// WithLogger sets the logger used to report dropped events
func WithLogger(logger *zap.Logger) Option {
	return func(p *PubSubClient) {
		p.logger = logger
	}
}

// WithBufferSize sets the capacity of the publish queue
func WithBufferSize(size int) Option {
	return func(p *PubSubClient) {
		p.publishChan = make(chan message, size)
	}
}

// Subscribe registers ch to receive every event of eventType. The caller owns ch and chooses its buffer size;
// it is closed by Unsubscribe.
//
// Subscribe is a free function because Go methods cannot declare their own type parameters.
func Subscribe[T any](p *PubSubClient, eventType EventType, ch chan *Event[T], opts SubscriptionOptions) SubscriberID {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := SubscriberID(p.nextID.Add(1))

	sub := &subscriber{options: opts}
	sub.sendFunc = func(evType EventType, payload any) bool {
		typedPayload, ok := payload.(T)
		if !ok {
			p.logger.Warn("Event payload type mismatch",
				zap.Int("event_type", int(evType)),
				zap.String("expected", fmt.Sprintf("%T", *new(T))),
			)
			return false
		}

		event := &Event[T]{Type: evType, Payload: typedPayload}
		if opts.IsBlocking {
			ch <- event
			return true
		}

		select {
		case ch <- event:
			return true
		default:
			return false
		}
	}
	sub.closeFunc = func() { close(ch) }

	if _, ok := p.registry[eventType]; !ok {
		p.registry[eventType] = make(map[SubscriberID]*subscriber)
	}
	p.registry[eventType][id] = sub
	return id
}

// Unsubscribe removes a subscriber and closes its channel.
func (p *PubSubClient) Unsubscribe(eventType EventType, id SubscriberID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subscribers, ok := p.registry[eventType]
	if !ok {
		return
	}
	sub, ok := subscribers[id]
	if !ok {
		return
	}

	delete(subscribers, id)
	sub.closeFunc()
	if len(subscribers) == 0 {
		delete(p.registry, eventType)
	}
}

// Publish queues an event for broadcast. Events published after shutdown has begun are dropped.
func Publish[T any](p *PubSubClient, event *Event[T]) {
	// Holding the read lock keeps a concurrent shutdown from closing publishChan between the check and the send.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.shuttingDown.Load() {
		p.logger.Debug("Dropping event published during shutdown", zap.Int("event_type", int(event.Type)))
		return
	}

	p.publishChan <- message{eventType: event.Type, payload: event.Payload}
}

// Dropped returns how many events were dropped for a non-blocking subscriber because its channel was full.
func (p *PubSubClient) Dropped(eventType EventType, id SubscriberID) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if sub, ok := p.registry[eventType][id]; ok {
		return sub.numDropped.Load()
	}
	return 0
}

// ForceShutdown stops accepting new publishes and returns without waiting for the queue to drain.
func (p *PubSubClient) ForceShutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shuttingDown.Swap(true) {
		return
	}
	close(p.publishChan)
}

// GracefulShutdown stops accepting new publishes and blocks until every queued event has been broadcast.
func (p *PubSubClient) GracefulShutdown() {
	p.mu.Lock()
	if !p.shuttingDown.Swap(true) {
		close(p.publishChan)
	}
	// Unlock before waiting: run() needs the read lock to drain.
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *PubSubClient) run() {
	defer p.wg.Done()

	for msg := range p.publishChan {
		p.mu.RLock()
		for id, sub := range p.registry[msg.eventType] {
			if sent := sub.sendFunc(msg.eventType, msg.payload); !sent && !sub.options.IsBlocking {
				dropped := sub.numDropped.Add(1)
				p.logger.Debug("Dropped event for slow subscriber",
					zap.Int("event_type", int(msg.eventType)),
					zap.Uint64("subscriber", uint64(id)),
					zap.Uint64("total_dropped", dropped),
				)
			}
		}
		p.mu.RUnlock()
	}
}

func NewPubSub(opts ...Option) *PubSubClient {
	p := &PubSubClient{
		logger:      zap.NewNop(),
		registry:    make(map[EventType]map[SubscriberID]*subscriber),
		publishChan: make(chan message, 100),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.run()

	return p
}
