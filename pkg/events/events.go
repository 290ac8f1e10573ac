package events

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventJobCreated        EventType = "job.created"
	EventJobStarted        EventType = "job.started"
	EventJobPaused         EventType = "job.paused"
	EventJobResumed        EventType = "job.resumed"
	EventJobCompleted      EventType = "job.completed"
	EventJobFailed         EventType = "job.failed"
	EventJobCancelled      EventType = "job.cancelled"
	EventPipelineStarted   EventType = "pipeline.started"
	EventPipelineStageDone EventType = "pipeline.stage.completed"
	EventPipelineCompleted EventType = "pipeline.completed"
	EventPipelineFailed    EventType = "pipeline.failed"
	EventPipelineCancelled EventType = "pipeline.cancelled"
	EventStageStarted      EventType = "pipeline.stage.started"
	EventStageFailed       EventType = "pipeline.stage.failed"
	EventStageCancelled    EventType = "pipeline.stage.cancelled"
	EventStageRetried      EventType = "pipeline.stage.retried"
	EventContainerCreated  EventType = "container.created"
	EventContainerStarted  EventType = "container.started"
	EventContainerPaused   EventType = "container.paused"
	EventContainerExited   EventType = "container.exited"
	EventContainerRemoved  EventType = "container.removed"
	EventContainerUnhealthy EventType = "container.unhealthy"
	EventContainerFailed   EventType = "container.failed"
	EventNodeJoined        EventType = "node.joined"
	EventNodeLeft          EventType = "node.left"
	EventNodeDown          EventType = "node.down"
	EventClusterMasterElected EventType = "cluster.master.elected"
	EventClusterHealthChanged EventType = "cluster.health.changed"
	EventImagePulled       EventType = "image.pulled"
	EventImagePushed       EventType = "image.pushed"
	EventImageTagged       EventType = "image.tagged"
	EventImageImported     EventType = "image.imported"
	EventImageCommitted    EventType = "image.committed"
	EventVolumeCreated     EventType = "volume.created"
	EventVolumeDeleted     EventType = "volume.deleted"
	EventDaemonStart       EventType = "daemon.start"
	EventDaemonReady       EventType = "daemon.ready"
	EventDaemonStop        EventType = "daemon.stop"
	EventDaemonConfigReload EventType = "daemon.config_reload"
)

// Event represents a daemon or job-engine event delivered to webhook and
// websocket subscribers alike.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// defaultHistorySize bounds the ring buffer §4.8 describes ("an in-memory
// event bus with a bounded ring buffer"), giving a late HTTP /events caller
// a backlog without retaining unbounded history.
const defaultHistorySize = 256

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}

	histMu  sync.Mutex
	history []*Event
	histCap int
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
		histCap:     defaultHistorySize,
	}
}

// Recent returns up to the broker's history capacity of the
// most-recently-published events, oldest first.
func (b *Broker) Recent() []*Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	out := make([]*Event, len(b.history))
	copy(out, b.history)
	return out
}

func (b *Broker) recordHistory(event *Event) {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history = append(b.history, event)
	if len(b.history) > b.histCap {
		b.history = b.history[len(b.history)-b.histCap:]
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.recordHistory(event)
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
