package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindwell-dev/mindwell/internal/api"
	"github.com/mindwell-dev/mindwell/internal/config"
	"github.com/mindwell-dev/mindwell/internal/domain"
	internal_errors "github.com/mindwell-dev/mindwell/internal/errors"
	"github.com/mindwell-dev/mindwell/internal/jwt"
	mw "github.com/mindwell-dev/mindwell/internal/middleware"
)

// --- Mocks ---

type MockThreadService struct {
	ensureFunc   func(caller *domain.Caller, anonymous bool) (*domain.ThreadView, error)
	listFunc     func(caller *domain.Caller, scope domain.ListScope) ([]*domain.ThreadView, error)
	getFunc      func(caller *domain.Caller, id domain.ThreadId, page int) (*domain.ThreadView, error)
	closeFunc    func(caller *domain.Caller, id domain.ThreadId) error
	markReadFunc func(caller *domain.Caller, id domain.ThreadId) error

	mu        sync.Mutex
	lastScope domain.ListScope
	lastPage  int
}

func (m *MockThreadService) Ensure(caller *domain.Caller, anonymous bool) (*domain.ThreadView, error) {
	if m.ensureFunc != nil {
		return m.ensureFunc(caller, anonymous)
	}
	return &domain.ThreadView{ThreadMetadata: domain.ThreadMetadata{Id: "t-1", Anonymous: anonymous, Status: domain.StatusOpen}}, nil
}

func (m *MockThreadService) List(caller *domain.Caller, scope domain.ListScope) ([]*domain.ThreadView, error) {
	m.mu.Lock()
	m.lastScope = scope
	m.mu.Unlock()

	if m.listFunc != nil {
		return m.listFunc(caller, scope)
	}
	return nil, nil
}

func (m *MockThreadService) Get(caller *domain.Caller, id domain.ThreadId, page int) (*domain.ThreadView, error) {
	m.mu.Lock()
	m.lastPage = page
	m.mu.Unlock()

	if m.getFunc != nil {
		return m.getFunc(caller, id, page)
	}
	return &domain.ThreadView{ThreadMetadata: domain.ThreadMetadata{Id: id, Status: domain.StatusOpen}}, nil
}

func (m *MockThreadService) Close(caller *domain.Caller, id domain.ThreadId) error {
	if m.closeFunc != nil {
		return m.closeFunc(caller, id)
	}
	return nil
}

func (m *MockThreadService) MarkRead(caller *domain.Caller, id domain.ThreadId) error {
	if m.markReadFunc != nil {
		return m.markReadFunc(caller, id)
	}
	return nil
}

func (m *MockThreadService) CanView(caller *domain.Caller, id domain.ThreadId) bool {
	return true
}

type MockMessageService struct {
	sendFunc func(caller *domain.Caller, threadId domain.ThreadId, text domain.MsgText, clientCorrelationId string) (*domain.Message, error)
}

func (m *MockMessageService) Send(caller *domain.Caller, threadId domain.ThreadId, text domain.MsgText, clientCorrelationId string) (*domain.Message, error) {
	if m.sendFunc != nil {
		return m.sendFunc(caller, threadId, text, clientCorrelationId)
	}
	return &domain.Message{Id: 1, ThreadId: threadId, Text: text, ClientCorrelationId: clientCorrelationId}, nil
}

type MockHealth struct {
	pingErr error
}

func (m *MockHealth) Ping(ctx context.Context) error { return m.pingErr }

// --- Helpers ---

func testConfig() *config.Config {
	return &config.Config{Public: config.Public{AnonSessionTTL: time.Hour}}
}

func newTestHandler(thread *MockThreadService, message *MockMessageService, health *MockHealth) *Handler {
	if thread == nil {
		thread = &MockThreadService{}
	}
	if message == nil {
		message = &MockMessageService{}
	}
	if health == nil {
		health = &MockHealth{}
	}
	jwtService := jwt.New("test-secret", time.Hour)
	return New(thread, message, nil, jwtService, health, testConfig())
}

func testRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/session/anonymous", h.AnonymousSession).Methods("POST")
	r.HandleFunc("/v1/threads/ensure", h.EnsureThread).Methods("POST")
	r.HandleFunc("/v1/threads", h.ListThreads).Methods("GET")
	r.HandleFunc("/v1/threads/{thread}", h.GetThread).Methods("GET")
	r.HandleFunc("/v1/threads/{thread}/messages", h.SendMessage).Methods("POST")
	r.HandleFunc("/v1/threads/{thread}/read", h.MarkRead).Methods("POST")
	r.HandleFunc("/v1/threads/{thread}/close", h.CloseThread).Methods("POST")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/ready", h.Ready).Methods("GET")
	return r
}

func withCaller(r *http.Request, caller *domain.Caller) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), mw.CallerKey, caller))
}

func studentCaller() *domain.Caller {
	return &domain.Caller{Role: domain.RoleStudent, Ref: "stu-1"}
}

func counselorCaller() *domain.Caller {
	return &domain.Caller{Role: domain.RoleCounselor, Ref: "c-1"}
}

// --- Tests ---

func TestEnsureThreadHandler(t *testing.T) {
	h := newTestHandler(nil, nil, nil)
	router := testRouter(h)

	t.Run("empty body defaults to non-anonymous", func(t *testing.T) {
		req := withCaller(httptest.NewRequest("POST", "/v1/threads/ensure", nil), studentCaller())
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.ThreadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Anonymous)
	})

	t.Run("anonymous flag honored", func(t *testing.T) {
		body := strings.NewReader(`{"anonymous": true}`)
		req := withCaller(httptest.NewRequest("POST", "/v1/threads/ensure", body), studentCaller())
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.ThreadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Anonymous)
	})

	t.Run("missing caller unauthorized", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/threads/ensure", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestListThreadsHandler(t *testing.T) {
	t.Run("scope defaults by role", func(t *testing.T) {
		thread := &MockThreadService{}
		router := testRouter(newTestHandler(thread, nil, nil))

		req := withCaller(httptest.NewRequest("GET", "/v1/threads", nil), counselorCaller())
		router.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, domain.ScopeSystem, thread.lastScope)

		req = withCaller(httptest.NewRequest("GET", "/v1/threads", nil), studentCaller())
		router.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, domain.ScopeOwn, thread.lastScope)
	})

	t.Run("service error maps to status", func(t *testing.T) {
		thread := &MockThreadService{
			listFunc: func(caller *domain.Caller, scope domain.ListScope) ([]*domain.ThreadView, error) {
				return nil, internal_errors.NotAuthorized()
			},
		}
		router := testRouter(newTestHandler(thread, nil, nil))

		req := withCaller(httptest.NewRequest("GET", "/v1/threads?scope=own", nil), counselorCaller())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestGetThreadHandler(t *testing.T) {
	thread := &MockThreadService{}
	router := testRouter(newTestHandler(thread, nil, nil))

	t.Run("page parsed with default", func(t *testing.T) {
		req := withCaller(httptest.NewRequest("GET", "/v1/threads/t-1?page=3", nil), studentCaller())
		router.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, 3, thread.lastPage)

		req = withCaller(httptest.NewRequest("GET", "/v1/threads/t-1", nil), studentCaller())
		router.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, 1, thread.lastPage)
	})

	t.Run("not found maps to 404", func(t *testing.T) {
		missing := &MockThreadService{
			getFunc: func(caller *domain.Caller, id domain.ThreadId, page int) (*domain.ThreadView, error) {
				return nil, internal_errors.ThreadNotFound()
			},
		}
		router := testRouter(newTestHandler(missing, nil, nil))

		req := withCaller(httptest.NewRequest("GET", "/v1/threads/t-404", nil), studentCaller())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSendMessageHandler(t *testing.T) {
	t.Run("created with echoed correlation id", func(t *testing.T) {
		router := testRouter(newTestHandler(nil, nil, nil))

		body := strings.NewReader(`{"text": "hello", "client_correlation_id": "corr-1"}`)
		req := withCaller(httptest.NewRequest("POST", "/v1/threads/t-1/messages", body), studentCaller())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp api.MessageResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "corr-1", resp.ClientCorrelationId)
	})

	t.Run("missing text rejected", func(t *testing.T) {
		router := testRouter(newTestHandler(nil, nil, nil))

		body := strings.NewReader(`{}`)
		req := withCaller(httptest.NewRequest("POST", "/v1/threads/t-1/messages", body), studentCaller())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("claimed thread conflict surfaces 403", func(t *testing.T) {
		message := &MockMessageService{
			sendFunc: func(caller *domain.Caller, threadId domain.ThreadId, text domain.MsgText, clientCorrelationId string) (*domain.Message, error) {
				return nil, internal_errors.NotOwner()
			},
		}
		router := testRouter(newTestHandler(nil, message, nil))

		body := strings.NewReader(`{"text": "hello"}`)
		req := withCaller(httptest.NewRequest("POST", "/v1/threads/t-1/messages", body), counselorCaller())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAnonymousSessionHandler(t *testing.T) {
	router := testRouter(newTestHandler(nil, nil, nil))

	req := httptest.NewRequest("POST", "/v1/session/anonymous", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp api.AnonymousSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.True(t, strings.HasPrefix(resp.SessionKey, "anon-"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "accessToken", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestHealthHandlers(t *testing.T) {
	t.Run("ready ok", func(t *testing.T) {
		router := testRouter(newTestHandler(nil, nil, nil))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ready degrades when db is down", func(t *testing.T) {
		router := testRouter(newTestHandler(nil, nil, &MockHealth{pingErr: context.DeadlineExceeded}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("health always ok", func(t *testing.T) {
		router := testRouter(newTestHandler(nil, nil, nil))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
