package service

import (
	"github.com/mindwell-dev/mindwell/internal/domain"
	internal_errors "github.com/mindwell-dev/mindwell/internal/errors"
	"github.com/mindwell-dev/mindwell/internal/logger"
)

type ThreadService interface {
	Ensure(caller *domain.Caller, anonymous bool) (*domain.ThreadView, error)
	List(caller *domain.Caller, scope domain.ListScope) ([]*domain.ThreadView, error)
	Get(caller *domain.Caller, id domain.ThreadId, page int) (*domain.ThreadView, error)
	Close(caller *domain.Caller, id domain.ThreadId) error
	MarkRead(caller *domain.Caller, id domain.ThreadId) error
	CanView(caller *domain.Caller, id domain.ThreadId) bool
}

type ThreadStorage interface {
	EnsureThread(creationData domain.ThreadCreationData) (domain.ThreadMetadata, bool, error)
	GetThreadMetadata(id domain.ThreadId) (domain.ThreadMetadata, error)
	GetThreadMessages(id domain.ThreadId, page int) ([]*domain.Message, error)
	ListThreads(studentRef domain.ParticipantRef) ([]domain.ThreadMetadata, error)
	CloseThread(id domain.ThreadId) error
	MarkRead(id domain.ThreadId, participant domain.ParticipantRef, mustOwn bool) error
}

// EventPublisher is the broker seam: services publish after commit.
type EventPublisher interface {
	PublishMessageNew(msg domain.Message)
	PublishThreadUpdated(metadata domain.ThreadMetadata)
}

type Thread struct {
	storage  ThreadStorage
	resolver *IdentityResolver
	events   EventPublisher
	retries  int
}

func NewThread(storage ThreadStorage, resolver *IdentityResolver, events EventPublisher, retries int) *Thread {
	if retries < 0 {
		retries = 0
	}
	return &Thread{storage, resolver, events, retries}
}

// Ensure returns the caller's single open thread, creating one if none
// exists. Idempotent under concurrent calls from the same student
// context; a lost creation race is retried by re-reading, bounded by
// the retry budget.
func (t *Thread) Ensure(caller *domain.Caller, anonymous bool) (*domain.ThreadView, error) {
	if !caller.IsStudent() {
		return nil, internal_errors.NotAuthorized()
	}

	var metadata domain.ThreadMetadata
	var created bool
	var err error
	for attempt := 0; attempt <= t.retries; attempt++ {
		metadata, created, err = t.storage.EnsureThread(domain.ThreadCreationData{
			StudentRef: caller.Ref,
			Anonymous:  anonymous,
		})
		if !internal_errors.IsTransientConflict(err) {
			break
		}
	}
	if internal_errors.IsTransientConflict(err) {
		return nil, internal_errors.ServiceUnavailable()
	}
	if err != nil {
		return nil, err
	}
	if created {
		logger.Log.Info("thread created", "thread", metadata.Id, "anonymous", metadata.Anonymous)
		t.events.PublishThreadUpdated(metadata)
	}
	return t.resolver.View(metadata, nil, caller)
}

// List returns the threads visible to the caller: students their own,
// counselors the whole system (identity hidden per thread as the
// resolver dictates).
func (t *Thread) List(caller *domain.Caller, scope domain.ListScope) ([]*domain.ThreadView, error) {
	var studentRef domain.ParticipantRef
	switch {
	case caller.IsStudent():
		studentRef = caller.Ref
	case caller.IsCounselor() && scope == domain.ScopeSystem:
		studentRef = "" // system-wide
	default:
		return nil, internal_errors.NotAuthorized()
	}

	threads, err := t.storage.ListThreads(studentRef)
	if err != nil {
		return nil, err
	}

	views := make([]*domain.ThreadView, 0, len(threads))
	for _, metadata := range threads {
		view, err := t.resolver.View(metadata, nil, caller)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (t *Thread) Get(caller *domain.Caller, id domain.ThreadId, page int) (*domain.ThreadView, error) {
	metadata, err := t.storage.GetThreadMetadata(id)
	if err != nil {
		return nil, err
	}
	if !canView(caller, &metadata) {
		return nil, internal_errors.NotAuthorized()
	}
	messages, err := t.storage.GetThreadMessages(id, page)
	if err != nil {
		return nil, err
	}
	return t.resolver.View(metadata, messages, caller)
}

// Close transitions a thread to its terminal state. Only the thread's
// student or its current owner may close it; the last owner is kept
// for audit.
func (t *Thread) Close(caller *domain.Caller, id domain.ThreadId) error {
	metadata, err := t.storage.GetThreadMetadata(id)
	if err != nil {
		return err
	}
	if metadata.Status == domain.StatusClosed {
		return nil // terminal already; closing again changes nothing
	}

	allowed := (caller.IsStudent() && metadata.StudentRef == caller.Ref) ||
		(caller.IsCounselor() && metadata.OwnedBy(caller.Ref))
	if !allowed {
		return internal_errors.NotAuthorized()
	}

	if err := t.storage.CloseThread(id); err != nil {
		return err
	}
	logger.Log.Info("thread closed", "thread", id, "by", caller.Role)

	updated, err := t.storage.GetThreadMetadata(id)
	if err == nil {
		t.events.PublishThreadUpdated(updated)
	}
	return nil
}

// MarkRead zeroes the caller's unread counter. Always succeeds: a
// caller the ledger does not track (a non-owner counselor, a student
// on someone else's thread) acks into the void, which makes
// speculative retries safe.
func (t *Thread) MarkRead(caller *domain.Caller, id domain.ThreadId) error {
	metadata, err := t.storage.GetThreadMetadata(id)
	if err != nil {
		return err
	}
	if caller.IsStudent() && metadata.StudentRef != caller.Ref {
		return nil
	}

	mustOwn := caller.IsCounselor()
	if err := t.storage.MarkRead(id, caller.Ref, mustOwn); err != nil {
		return err
	}

	updated, err := t.storage.GetThreadMetadata(id)
	if err == nil {
		t.events.PublishThreadUpdated(updated)
	}
	return nil
}

// CanView is the broker's per-event authorization re-check.
func (t *Thread) CanView(caller *domain.Caller, id domain.ThreadId) bool {
	metadata, err := t.storage.GetThreadMetadata(id)
	if err != nil {
		return false
	}
	return canView(caller, &metadata)
}

func canView(caller *domain.Caller, metadata *domain.ThreadMetadata) bool {
	if caller.IsCounselor() {
		return true // system-wide visibility, identity hidden elsewhere
	}
	return metadata.StudentRef == caller.Ref
}
