package mindwell

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindwell-dev/mindwell/internal/broker"
	"github.com/mindwell-dev/mindwell/internal/domain"
)

type EntryState string

const (
	StatePending   EntryState = "pending"
	StateConfirmed EntryState = "confirmed"
	StateFailed    EntryState = "failed"
)

// Entry is one message in the local timeline: either an optimistic
// send awaiting its server record, a server-confirmed message, or a
// failed send whose draft text the UI should hand back to the user.
type Entry struct {
	State         EntryState
	CorrelationId string
	Role          domain.Role
	Text          string
	SentAt        time.Time

	// Set once the entry is confirmed.
	Message *domain.Message
}

// Reconciler merges optimistic local sends with server pushes and
// fetches into one consistent timeline. Pushes are at-least-once, so
// every apply path is idempotent: replays are dropped by message id,
// own sends are matched by correlation id with a content fallback for
// streams where correlation ids were stripped.
type Reconciler struct {
	mu sync.Mutex

	// Fallback-match window around the optimistic send time.
	window time.Duration

	entries       []*Entry
	byCorrelation map[string]*Entry
	seen          map[domain.MsgId]struct{}
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		window:        30 * time.Second,
		byCorrelation: make(map[string]*Entry),
		seen:          make(map[domain.MsgId]struct{}),
	}
}

// StageSend records an optimistic pending entry and returns the
// correlation id to attach to the actual send (and its retries).
func (r *Reconciler) StageSend(role domain.Role, text string) string {
	correlationId := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &Entry{
		State:         StatePending,
		CorrelationId: correlationId,
		Role:          role,
		Text:          text,
		SentAt:        time.Now(),
	}
	r.entries = append(r.entries, entry)
	r.byCorrelation[correlationId] = entry
	return correlationId
}

// Confirm settles a pending entry with the server's message record,
// normally from the send response. Idempotent.
func (r *Reconciler) Confirm(correlationId string, msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirm(r.byCorrelation[correlationId], msg)
}

// Fail marks a pending entry failed and returns its draft text so the
// UI can restore it to the composer. The second return is false if no
// pending entry carries that correlation id.
func (r *Reconciler) Fail(correlationId string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byCorrelation[correlationId]
	if !ok || entry.State != StatePending {
		return "", false
	}
	entry.State = StateFailed
	return entry.Text, true
}

// Apply folds a pushed event into the timeline. Non-message events
// and replays are no-ops.
func (r *Reconciler) Apply(event broker.Event) {
	if event.Type != broker.EventMessageNew || event.Message == nil {
		return
	}
	payload := event.Message

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.seen[payload.Id]; dup {
		return
	}

	msg := domain.Message{
		Id:                  payload.Id,
		ThreadId:            event.ThreadId,
		Role:                payload.Role,
		Text:                payload.Text,
		CreatedAt:           payload.CreatedAt,
		ClientCorrelationId: payload.ClientCorrelationId,
	}

	if payload.ClientCorrelationId != "" {
		if entry, ok := r.byCorrelation[payload.ClientCorrelationId]; ok {
			r.confirm(entry, msg)
			return
		}
	}
	if entry := r.fallbackMatch(&msg); entry != nil {
		r.confirm(entry, msg)
		return
	}

	r.seen[msg.Id] = struct{}{}
	r.entries = append(r.entries, &Entry{
		State:   StateConfirmed,
		Role:    msg.Role,
		Text:    msg.Text,
		SentAt:  msg.CreatedAt,
		Message: &msg,
	})
}

// fallbackMatch pairs a pushed message with a pending send when the
// correlation id was stripped in transit: same role, same text, and a
// server timestamp close to the optimistic send time.
func (r *Reconciler) fallbackMatch(msg *domain.Message) *Entry {
	for _, entry := range r.entries {
		if entry.State != StatePending {
			continue
		}
		if entry.Role != msg.Role || entry.Text != msg.Text {
			continue
		}
		delta := msg.CreatedAt.Sub(entry.SentAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= r.window {
			return entry
		}
	}
	return nil
}

func (r *Reconciler) confirm(entry *Entry, msg domain.Message) {
	if _, dup := r.seen[msg.Id]; dup {
		return
	}
	r.seen[msg.Id] = struct{}{}

	if entry == nil || entry.State == StateConfirmed {
		// No pending entry to settle; record the message on its own.
		r.entries = append(r.entries, &Entry{
			State:   StateConfirmed,
			Role:    msg.Role,
			Text:    msg.Text,
			SentAt:  msg.CreatedAt,
			Message: &msg,
		})
		return
	}
	entry.State = StateConfirmed
	entry.Message = &msg
}

// Entries returns a snapshot of the timeline in insertion order.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		snapshot = append(snapshot, *entry)
	}
	return snapshot
}
