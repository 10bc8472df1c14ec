// Package broker is the in-process publish/subscribe fabric pushing
// thread events to connected clients. Delivery is at-least-once with
// per-subscriber FIFO ordering; clients deduplicate by message id and
// correlation id and catch up via a REST re-fetch after any gap.
package broker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mindwell-dev/mindwell/internal/domain"
	"github.com/mindwell-dev/mindwell/internal/logger"
)

type EventType string

const (
	EventMessageNew    EventType = "message:new"
	EventThreadUpdated EventType = "thread:updated"
)

// MessagePayload deliberately omits the sender reference: subscribers
// include counselors who must never learn a student's identity from a
// push. Identity is resolved per viewer on the REST surface only.
type MessagePayload struct {
	Id                  domain.MsgId `json:"id"`
	Role                domain.Role  `json:"role"`
	Text                string       `json:"text"`
	CreatedAt           time.Time    `json:"created_at"`
	ClientCorrelationId string       `json:"client_correlation_id,omitempty"`
}

type ThreadPayload struct {
	Status        domain.ThreadStatus `json:"status"`
	Claimed       bool                `json:"claimed"`
	LastMessageAt *time.Time          `json:"last_message_at,omitempty"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type Event struct {
	Type     EventType       `json:"type"`
	ThreadId domain.ThreadId `json:"thread_id"`
	Message  *MessagePayload `json:"message,omitempty"`
	Thread   *ThreadPayload  `json:"thread,omitempty"`

	// senderRef scopes correlation-id delivery to its sender. Never
	// serialized.
	senderRef domain.ParticipantRef
}

// Authorizer re-checks view rights. It runs at subscribe time and
// again for every delivered event, because ownership and status can
// change while a subscription is live.
type Authorizer interface {
	CanView(caller *domain.Caller, threadId domain.ThreadId) bool
}

var subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "broker_subscribers",
	Help: "Number of live event subscriptions",
})

var droppedEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "broker_dropped_events_total",
	Help: "Events dropped because a subscriber channel was full",
})

type Subscription struct {
	caller   *domain.Caller
	threadId domain.ThreadId // empty = per-user channel: all viewable threads
	ch       chan Event

	closeOnce sync.Once
	broker    *Broker
}

// Events is the subscriber's receive channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.broker.remove(s)
		close(s.ch)
	})
}

type Broker struct {
	mu         sync.RWMutex
	threadSubs map[domain.ThreadId]map[*Subscription]struct{}
	userSubs   map[*Subscription]struct{}

	authorizer Authorizer
	buffer     int
}

func New(authorizer Authorizer, buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		threadSubs: make(map[domain.ThreadId]map[*Subscription]struct{}),
		userSubs:   make(map[*Subscription]struct{}),
		authorizer: authorizer,
		buffer:     buffer,
	}
}

// SetAuthorizer breaks the construction cycle between the broker and
// the thread service. Must be called before the broker serves
// subscribers.
func (b *Broker) SetAuthorizer(authorizer Authorizer) {
	b.authorizer = authorizer
}

// Subscribe attaches the caller to a single thread channel. View
// rights are checked now and re-checked on every delivery.
func (b *Broker) Subscribe(caller *domain.Caller, threadId domain.ThreadId) (*Subscription, bool) {
	if !b.authorizer.CanView(caller, threadId) {
		return nil, false
	}
	sub := &Subscription{caller: caller, threadId: threadId, ch: make(chan Event, b.buffer), broker: b}

	b.mu.Lock()
	if b.threadSubs[threadId] == nil {
		b.threadSubs[threadId] = make(map[*Subscription]struct{})
	}
	b.threadSubs[threadId][sub] = struct{}{}
	b.mu.Unlock()

	subscribersGauge.Inc()
	return sub, true
}

// SubscribeUser attaches the caller's notification channel: it
// receives events for every thread the caller is allowed to view at
// the moment each event is published.
func (b *Broker) SubscribeUser(caller *domain.Caller) *Subscription {
	sub := &Subscription{caller: caller, ch: make(chan Event, b.buffer), broker: b}

	b.mu.Lock()
	b.userSubs[sub] = struct{}{}
	b.mu.Unlock()

	subscribersGauge.Inc()
	return sub
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.threadId != "" {
		if subs, ok := b.threadSubs[sub.threadId]; ok {
			if _, member := subs[sub]; member {
				delete(subs, sub)
				subscribersGauge.Dec()
				if len(subs) == 0 {
					delete(b.threadSubs, sub.threadId)
				}
			}
		}
		return
	}
	if _, member := b.userSubs[sub]; member {
		delete(b.userSubs, sub)
		subscribersGauge.Dec()
	}
}

// Publish fans an event out to the thread's subscribers and to every
// per-user channel whose caller may view the thread. Sends never
// block: a subscriber that cannot keep up loses events and is expected
// to catch up through a REST re-fetch, which the at-least-once
// contract allows.
func (b *Broker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.threadSubs[event.ThreadId] {
		b.deliver(sub, event)
	}
	for sub := range b.userSubs {
		b.deliver(sub, event)
	}
}

func (b *Broker) deliver(sub *Subscription, event Event) {
	if !b.authorizer.CanView(sub.caller, event.ThreadId) {
		return
	}
	// Correlation ids are only meaningful to their sender; everyone
	// else gets the payload without one.
	if event.Message != nil && event.Message.ClientCorrelationId != "" && sub.caller.Ref != event.senderRef {
		scrubbed := *event.Message
		scrubbed.ClientCorrelationId = ""
		event.Message = &scrubbed
	}
	select {
	case sub.ch <- event:
	default:
		droppedEventsTotal.Inc()
		logger.Log.Warn("dropping event for slow subscriber", "thread", event.ThreadId, "type", event.Type)
	}
}

// PublishMessageNew and PublishThreadUpdated adapt domain records into
// identity-free event payloads. They implement the services'
// EventPublisher dependency.

func (b *Broker) PublishMessageNew(msg domain.Message) {
	b.Publish(Event{
		Type:      EventMessageNew,
		ThreadId:  msg.ThreadId,
		senderRef: msg.SenderRef,
		Message: &MessagePayload{
			Id:                  msg.Id,
			Role:                msg.Role,
			Text:                msg.Text,
			CreatedAt:           msg.CreatedAt,
			ClientCorrelationId: msg.ClientCorrelationId,
		},
	})
}

func (b *Broker) PublishThreadUpdated(metadata domain.ThreadMetadata) {
	b.Publish(Event{
		Type:     EventThreadUpdated,
		ThreadId: metadata.Id,
		Thread: &ThreadPayload{
			Status:        metadata.Status,
			Claimed:       metadata.Claimed(),
			LastMessageAt: metadata.LastMessageAt,
			UpdatedAt:     metadata.UpdatedAt,
		},
	})
}
