package service

import (
	"sync"

	"github.com/mindwell-dev/mindwell/internal/domain"
	internal_errors "github.com/mindwell-dev/mindwell/internal/errors"
	"github.com/mindwell-dev/mindwell/internal/logger"
)

type MessageService interface {
	Send(caller *domain.Caller, threadId domain.ThreadId, text domain.MsgText, clientCorrelationId string) (*domain.Message, error)
}

type MessageStorage interface {
	GetThreadMetadata(id domain.ThreadId) (domain.ThreadMetadata, error)
	AppendMessage(creationData domain.MessageCreationData, observedUnclaimed bool) (domain.Message, error)
}

type MessageValidator interface {
	Text(text domain.MsgText) (domain.MsgText, error)
}

type Message struct {
	storage   MessageStorage
	validator MessageValidator
	events    EventPublisher
	retries   int
	locks     *publishLocks
}

func NewMessage(storage MessageStorage, validator MessageValidator, events EventPublisher, retries int) *Message {
	if retries < 0 {
		retries = 0
	}
	return &Message{storage, validator, events, retries, newPublishLocks()}
}

// publishLocks serialize the append-and-publish window per thread:
// without them two sends could commit in one order and fan out in the
// other, and subscribers would see the timeline misordered. Locks are
// refcounted so idle threads hold no entry.
type publishLocks struct {
	mu    sync.Mutex
	locks map[domain.ThreadId]*publishLock
}

type publishLock struct {
	sync.Mutex
	refs int
}

func newPublishLocks() *publishLocks {
	return &publishLocks{locks: make(map[domain.ThreadId]*publishLock)}
}

func (l *publishLocks) acquire(id domain.ThreadId) *publishLock {
	l.mu.Lock()
	lock := l.locks[id]
	if lock == nil {
		lock = &publishLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()
	return lock
}

func (l *publishLocks) release(id domain.ThreadId, lock *publishLock) {
	lock.Unlock()

	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}

// Send validates and appends a message, performing the claim
// transition for a counselor's first reply. The ownership pre-read is
// lock-free; the append itself is the atomic serialization point, so
// a lost race surfaces as a transient conflict and is retried within
// the budget before escalating.
func (m *Message) Send(caller *domain.Caller, threadId domain.ThreadId, text domain.MsgText, clientCorrelationId string) (*domain.Message, error) {
	cleaned, err := m.validator.Text(text)
	if err != nil {
		return nil, err
	}

	// Events must fan out in commit order per thread, so append and
	// publish happen under one per-thread lock.
	lock := m.locks.acquire(threadId)
	defer m.locks.release(threadId, lock)

	var msg domain.Message
	for attempt := 0; ; attempt++ {
		metadata, err := m.storage.GetThreadMetadata(threadId)
		if err != nil {
			return nil, err
		}
		if metadata.Status == domain.StatusClosed {
			return nil, internal_errors.ThreadClosed()
		}

		observedUnclaimed := false
		switch {
		case caller.IsStudent():
			if metadata.StudentRef != caller.Ref {
				return nil, internal_errors.NotAuthorized()
			}
		case caller.IsCounselor():
			if metadata.Claimed() && !metadata.OwnedBy(caller.Ref) {
				return nil, internal_errors.NotOwner()
			}
			observedUnclaimed = !metadata.Claimed()
		}

		msg, err = m.storage.AppendMessage(domain.MessageCreationData{
			ThreadId:            threadId,
			Role:                caller.Role,
			SenderRef:           caller.Ref,
			Text:                cleaned,
			ClientCorrelationId: clientCorrelationId,
		}, observedUnclaimed)
		if err == nil {
			break
		}
		if !internal_errors.IsTransientConflict(err) {
			return nil, err
		}
		if attempt >= m.retries {
			logger.Log.Warn("send retries exhausted", "thread", threadId)
			return nil, internal_errors.ServiceUnavailable()
		}
	}

	m.events.PublishMessageNew(msg)
	if updated, err := m.storage.GetThreadMetadata(threadId); err == nil {
		m.events.PublishThreadUpdated(updated)
	}
	return &msg, nil
}
