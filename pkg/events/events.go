// Package events is the cluster coordinator's internal event bus: leader
// replication drivers and the RPC layer publish onto it; the coordinator
// subscribes to react (advance a commit index, step down, mark a peer
// online/offline). Mechanics (Broker, Subscriber, buffered fan-out) kept
// from the teacher's pkg/events almost unchanged; only EventType and
// Event's payload fields are specific to replication (spec.md §6's
// "Cluster event channel").
package events

import (
	"sync"
	"time"

	"github.com/cuemby/shardmail/pkg/types"
)

// EventType represents the type of event flowing from a driver to the
// coordinator.
type EventType string

const (
	// EventStoreChanged signals that a local ORM merge produced a log
	// entry the leader should replicate.
	EventStoreChanged EventType = "store.changed"
	// EventAdvanceCommitIndex reports a follower has caught up to
	// CommitIndex, a candidate point for raising the cluster commit
	// index.
	EventAdvanceCommitIndex EventType = "commit.advance"
	// EventStepDown reports a peer observed a higher term and this node
	// must give up leadership.
	EventStepDown EventType = "raft.step_down"
	// EventPeerOnline/EventPeerOffline track reachability transitions
	// used to gate election eligibility and driver recovery.
	EventPeerOnline  EventType = "peer.online"
	EventPeerOffline EventType = "peer.offline"
)

// Event is one message on the cluster event bus. Only the fields
// relevant to Type are meaningful.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time

	PeerID      types.PeerID
	CommitIndex types.LogIndex
	Term        types.TermID
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker manages event subscriptions and distribution.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
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

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
