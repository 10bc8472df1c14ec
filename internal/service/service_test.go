package service

import (
	"sync"

	"github.com/mindwell-dev/mindwell/internal/domain"
)

// --- Mocks shared by the service tests ---

// MockStorage mocks ThreadStorage and MessageStorage.
type MockStorage struct {
	ensureThreadFunc      func(creationData domain.ThreadCreationData) (domain.ThreadMetadata, bool, error)
	getThreadMetadataFunc func(id domain.ThreadId) (domain.ThreadMetadata, error)
	getThreadMessagesFunc func(id domain.ThreadId, page int) ([]*domain.Message, error)
	listThreadsFunc       func(studentRef domain.ParticipantRef) ([]domain.ThreadMetadata, error)
	closeThreadFunc       func(id domain.ThreadId) error
	markReadFunc          func(id domain.ThreadId, participant domain.ParticipantRef, mustOwn bool) error
	appendMessageFunc     func(creationData domain.MessageCreationData, observedUnclaimed bool) (domain.Message, error)

	mu                      sync.Mutex
	ensureCalls             int
	appendCalls             int
	closeCalled             bool
	markReadCalled          bool
	markReadMustOwn         bool
	listStudentRef          domain.ParticipantRef
	appendObservedUnclaimed bool
}

func (m *MockStorage) EnsureThread(creationData domain.ThreadCreationData) (domain.ThreadMetadata, bool, error) {
	m.mu.Lock()
	m.ensureCalls++
	m.mu.Unlock()

	if m.ensureThreadFunc != nil {
		return m.ensureThreadFunc(creationData)
	}
	return domain.ThreadMetadata{Id: "t-1", StudentRef: creationData.StudentRef, Anonymous: creationData.Anonymous, Status: domain.StatusOpen}, true, nil
}

func (m *MockStorage) GetThreadMetadata(id domain.ThreadId) (domain.ThreadMetadata, error) {
	if m.getThreadMetadataFunc != nil {
		return m.getThreadMetadataFunc(id)
	}
	return domain.ThreadMetadata{Id: id, StudentRef: "stu-1", Status: domain.StatusOpen}, nil
}

func (m *MockStorage) GetThreadMessages(id domain.ThreadId, page int) ([]*domain.Message, error) {
	if m.getThreadMessagesFunc != nil {
		return m.getThreadMessagesFunc(id, page)
	}
	return nil, nil
}

func (m *MockStorage) ListThreads(studentRef domain.ParticipantRef) ([]domain.ThreadMetadata, error) {
	m.mu.Lock()
	m.listStudentRef = studentRef
	m.mu.Unlock()

	if m.listThreadsFunc != nil {
		return m.listThreadsFunc(studentRef)
	}
	return nil, nil
}

func (m *MockStorage) CloseThread(id domain.ThreadId) error {
	m.mu.Lock()
	m.closeCalled = true
	m.mu.Unlock()

	if m.closeThreadFunc != nil {
		return m.closeThreadFunc(id)
	}
	return nil
}

func (m *MockStorage) MarkRead(id domain.ThreadId, participant domain.ParticipantRef, mustOwn bool) error {
	m.mu.Lock()
	m.markReadCalled = true
	m.markReadMustOwn = mustOwn
	m.mu.Unlock()

	if m.markReadFunc != nil {
		return m.markReadFunc(id, participant, mustOwn)
	}
	return nil
}

func (m *MockStorage) AppendMessage(creationData domain.MessageCreationData, observedUnclaimed bool) (domain.Message, error) {
	m.mu.Lock()
	m.appendCalls++
	m.appendObservedUnclaimed = observedUnclaimed
	m.mu.Unlock()

	if m.appendMessageFunc != nil {
		return m.appendMessageFunc(creationData, observedUnclaimed)
	}
	return domain.Message{Id: 1, ThreadId: creationData.ThreadId, Role: creationData.Role, SenderRef: creationData.SenderRef, Text: creationData.Text}, nil
}

// MockPublisher records published events.
type MockPublisher struct {
	mu            sync.Mutex
	messageEvents []domain.Message
	threadEvents  []domain.ThreadMetadata
}

func (p *MockPublisher) PublishMessageNew(msg domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messageEvents = append(p.messageEvents, msg)
}

func (p *MockPublisher) PublishThreadUpdated(metadata domain.ThreadMetadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threadEvents = append(p.threadEvents, metadata)
}

func (p *MockPublisher) MessageEvents() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Message(nil), p.messageEvents...)
}

func (p *MockPublisher) ThreadEvents() []domain.ThreadMetadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ThreadMetadata(nil), p.threadEvents...)
}

// MockValidator passes text through unless failWith is set.
type MockValidator struct {
	failWith error
}

func (v *MockValidator) Text(text domain.MsgText) (domain.MsgText, error) {
	if v.failWith != nil {
		return "", v.failWith
	}
	return text, nil
}

func owned(ref domain.ParticipantRef) *domain.ParticipantRef {
	return &ref
}

func student(ref domain.ParticipantRef) *domain.Caller {
	return &domain.Caller{Role: domain.RoleStudent, Ref: ref}
}

func counselor(ref domain.ParticipantRef) *domain.Caller {
	return &domain.Caller{Role: domain.RoleCounselor, Ref: ref}
}

func newTestResolver() *IdentityResolver {
	return NewIdentityResolver(&StaticDirectory{Students: map[domain.ParticipantRef]domain.StudentIdentity{
		"stu-1": {Ref: "stu-1", DisplayName: "Jordan Rivera", StudentNumber: "S-2023-1001"},
	}})
}
