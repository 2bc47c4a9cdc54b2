// Package eventbus is a worker-pool-backed pub/sub bus carrying signal,
// watchlist, and optimisation transition notifications for observability
// (spec §5: cross-task communication is only through Persistence and the
// Parameter Store — this bus is a side-channel logging/metrics sink, never a
// required path between components). Adapted from the teacher's
// internal/events/event_bus.go, narrowed from a generic trading-event
// taxonomy to this repo's own transition events, and correcting the
// teacher's EventBusConfig/DefaultEventBusConfig declaration embedded inside
// the EventBus struct body.
package eventbus

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/pkg/utils"
)

// EventType categorizes a notification on the bus.
type EventType string

const (
	EventTypeCandle              EventType = "candle"
	EventTypeSignalCreated       EventType = "signal_created"
	EventTypeSignalClosed        EventType = "signal_closed"
	EventTypeWatchlistCreated    EventType = "watchlist_created"
	EventTypeWatchlistPromoted   EventType = "watchlist_promoted"
	EventTypeWatchlistExpired    EventType = "watchlist_expired"
	EventTypeOptimisationApplied EventType = "optimisation_applied"
)

// Event is the base interface every notification on the bus satisfies.
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetID() string
}

// BaseEvent supplies the common Event fields by embedding.
type BaseEvent struct {
	ID        string
	Type      EventType
	Timestamp time.Time
}

func (e BaseEvent) GetType() EventType      { return e.Type }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetID() string           { return e.ID }

func newBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{ID: utils.GenerateID("evt"), Type: eventType, Timestamp: time.Now()}
}

// SignalEvent notifies that a Signal was created or transitioned terminal.
type SignalEvent struct {
	BaseEvent
	Signal domain.Signal
}

// NewSignalCreatedEvent builds a SignalEvent for a freshly-activated signal.
func NewSignalCreatedEvent(sig domain.Signal) SignalEvent {
	return SignalEvent{BaseEvent: newBaseEvent(EventTypeSignalCreated), Signal: sig}
}

// NewSignalClosedEvent builds a SignalEvent for a terminal transition.
func NewSignalClosedEvent(sig domain.Signal) SignalEvent {
	return SignalEvent{BaseEvent: newBaseEvent(EventTypeSignalClosed), Signal: sig}
}

// WatchlistEvent notifies a watchlist entry lifecycle transition.
type WatchlistEvent struct {
	BaseEvent
	Entry domain.WatchlistEntry
}

// NewWatchlistCreatedEvent builds a WatchlistEvent for a new WATCHING entry.
func NewWatchlistCreatedEvent(entry domain.WatchlistEntry) WatchlistEvent {
	return WatchlistEvent{BaseEvent: newBaseEvent(EventTypeWatchlistCreated), Entry: entry}
}

// NewWatchlistPromotedEvent builds a WatchlistEvent for a PROMOTED transition.
func NewWatchlistPromotedEvent(entry domain.WatchlistEntry) WatchlistEvent {
	return WatchlistEvent{BaseEvent: newBaseEvent(EventTypeWatchlistPromoted), Entry: entry}
}

// NewWatchlistExpiredEvent builds a WatchlistEvent for an EXPIRED transition.
func NewWatchlistExpiredEvent(entry domain.WatchlistEntry) WatchlistEvent {
	return WatchlistEvent{BaseEvent: newBaseEvent(EventTypeWatchlistExpired), Entry: entry}
}

// OptimisationEvent notifies that the Self-Optimiser changed a parameter.
type OptimisationEvent struct {
	BaseEvent
	LogEntry domain.OptimisationLogEntry
}

// NewOptimisationAppliedEvent builds an OptimisationEvent for a logged change.
func NewOptimisationAppliedEvent(entry domain.OptimisationLogEntry) OptimisationEvent {
	return OptimisationEvent{BaseEvent: newBaseEvent(EventTypeOptimisationApplied), LogEntry: entry}
}

// EventHandler processes one event off the bus.
type EventHandler func(event Event) error

// EventFilter selectively accepts events for a subscription.
type EventFilter func(event Event) bool

// SubscriptionOptions configures how a subscription's handler runs.
type SubscriptionOptions struct {
	Filter EventFilter
	Async  bool
}

// Subscription is an active registration on the bus.
type Subscription struct {
	ID        string
	EventType EventType
	Handler   EventHandler
	Options   SubscriptionOptions
	active    atomic.Bool
}

// IsActive reports whether the subscription still receives events.
func (s *Subscription) IsActive() bool { return s.active.Load() }

// Config sets worker-pool sizing for the bus.
type Config struct {
	NumWorkers int
	BufferSize int
}

// DefaultConfig mirrors the teacher's defaults: enough workers and buffer
// depth that a slow subscriber never blocks the scan tick publishing to it.
func DefaultConfig() Config {
	return Config{NumWorkers: 8, BufferSize: 4096}
}

// Stats reports bus throughput and latency.
type Stats struct {
	EventsPublished   int64
	EventsProcessed   int64
	EventsDropped     int64
	ProcessingErrors  int64
	P99LatencyNs      int64
	ActiveSubscribers int64
}

// Bus is the central pub/sub router.
type Bus struct {
	logger *zap.Logger

	mu             sync.RWMutex
	subscribers    map[EventType][]*Subscription
	allSubscribers []*Subscription

	eventChan   chan Event
	workerCount int

	eventsPublished   atomic.Int64
	eventsProcessed   atomic.Int64
	eventsDropped     atomic.Int64
	processingErrors  atomic.Int64
	activeSubscribers atomic.Int64

	latencyMu  sync.Mutex
	latencies  []int64
	subCounter atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds and starts a Bus with its worker pool running.
func New(logger *zap.Logger, cfg Config) *Bus {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = DefaultConfig().NumWorkers
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		logger:      logger.Named("eventbus"),
		subscribers: make(map[EventType][]*Subscription),
		eventChan:   make(chan Event, cfg.BufferSize),
		workerCount: cfg.NumWorkers,
		latencies:   make([]int64, 0, 1024),
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		b.wg.Add(1)
		go b.worker()
	}

	b.logger.Info("event bus started", zap.Int("workers", cfg.NumWorkers), zap.Int("buffer_size", cfg.BufferSize))
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.eventChan:
			start := time.Now()
			b.processEvent(event)
			b.trackLatency(time.Since(start).Nanoseconds())
		}
	}
}

func (b *Bus) processEvent(event Event) {
	b.mu.RLock()
	subs := b.subscribers[event.GetType()]
	all := b.allSubscribers
	b.mu.RUnlock()

	for _, sub := range subs {
		b.dispatch(sub, event)
	}
	for _, sub := range all {
		b.dispatch(sub, event)
	}
	b.eventsProcessed.Add(1)
}

func (b *Bus) dispatch(sub *Subscription, event Event) {
	if !sub.active.Load() {
		return
	}
	if sub.Options.Filter != nil && !sub.Options.Filter(event) {
		return
	}
	if sub.Options.Async {
		go b.executeHandler(sub, event)
	} else {
		b.executeHandler(sub, event)
	}
}

func (b *Bus) executeHandler(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.processingErrors.Add(1)
			b.logger.Error("event handler panicked",
				zap.String("subscription_id", sub.ID),
				zap.String("event_type", string(event.GetType())),
				zap.Any("panic", r))
		}
	}()
	if err := sub.Handler(event); err != nil {
		b.processingErrors.Add(1)
		b.logger.Warn("event handler error",
			zap.String("subscription_id", sub.ID),
			zap.String("event_type", string(event.GetType())),
			zap.Error(err))
	}
}

func (b *Bus) trackLatency(latencyNs int64) {
	b.latencyMu.Lock()
	defer b.latencyMu.Unlock()
	b.latencies = append(b.latencies, latencyNs)
	if len(b.latencies) > 10000 {
		b.latencies = b.latencies[5000:]
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	options := SubscriptionOptions{Async: true}
	if len(opts) > 0 {
		options = opts[0]
	}
	sub := &Subscription{ID: b.nextSubID(), EventType: eventType, Handler: handler, Options: options}
	sub.active.Store(true)

	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	b.mu.Unlock()
	b.activeSubscribers.Add(1)
	return sub
}

// SubscribeAll registers a handler invoked for every event type.
func (b *Bus) SubscribeAll(handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	options := SubscriptionOptions{Async: true}
	if len(opts) > 0 {
		options = opts[0]
	}
	sub := &Subscription{ID: b.nextSubID(), EventType: "*", Handler: handler, Options: options}
	sub.active.Store(true)

	b.mu.Lock()
	b.allSubscribers = append(b.allSubscribers, sub)
	b.mu.Unlock()
	b.activeSubscribers.Add(1)
	return sub
}

func (b *Bus) nextSubID() string {
	id := b.subCounter.Add(1)
	return "sub_" + strconv.FormatInt(id, 10)
}

// Unsubscribe deactivates a subscription; already-queued events it would have
// received are simply skipped.
func (b *Bus) Unsubscribe(sub *Subscription) {
	sub.active.Store(false)
	b.activeSubscribers.Add(-1)
}

// Publish sends an event to subscribers asynchronously; if the buffer is
// full the event is dropped and counted rather than blocking the caller.
func (b *Bus) Publish(event Event) {
	select {
	case b.eventChan <- event:
		b.eventsPublished.Add(1)
	default:
		b.eventsDropped.Add(1)
		b.logger.Warn("event dropped, buffer full", zap.String("event_type", string(event.GetType())))
	}
}

// PublishSync delivers an event to every subscriber before returning.
func (b *Bus) PublishSync(event Event) {
	b.eventsPublished.Add(1)
	b.processEvent(event)
}

// Stats reports current throughput and latency counters.
func (b *Bus) Stats() Stats {
	return Stats{
		EventsPublished:   b.eventsPublished.Load(),
		EventsProcessed:   b.eventsProcessed.Load(),
		EventsDropped:     b.eventsDropped.Load(),
		ProcessingErrors:  b.processingErrors.Load(),
		P99LatencyNs:      b.p99LatencyNs(),
		ActiveSubscribers: b.activeSubscribers.Load(),
	}
}

func (b *Bus) p99LatencyNs() int64 {
	b.latencyMu.Lock()
	defer b.latencyMu.Unlock()
	if len(b.latencies) == 0 {
		return 0
	}
	sorted := make([]int64, len(b.latencies))
	copy(sorted, b.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Stop cancels the workers and waits up to 5s for them to exit; events still
// queued are not processed.
func (b *Bus) Stop() {
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("event bus stopped", zap.Int64("events_processed", b.eventsProcessed.Load()))
	case <-time.After(5 * time.Second):
		b.logger.Warn("event bus stop timed out")
	}
}
