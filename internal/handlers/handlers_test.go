package handlers_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"taskSync/internal/handlers"
	"taskSync/internal/handlers/dto"
	"taskSync/internal/models/task"
	"taskSync/internal/models/user"
	"taskSync/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAuth - мок состояния аутентификации
type MockAuth struct {
	mock.Mock
}

func (m *MockAuth) User() *user.Identity {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*user.Identity)
}

func (m *MockAuth) LogIn(ctx context.Context, email, password string) error {
	args := m.Called(ctx, email, password)
	return args.Error(0)
}

func (m *MockAuth) LogOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var _ handlers.Auth = (*MockAuth)(nil)

// MockTaskList - мок смонтированного списка задач
type MockTaskList struct {
	mock.Mock

	mtx    sync.Mutex
	subs   []func([]task.Task)
	done   chan struct{}
	closed bool
}

func (m *MockTaskList) Partition() string {
	return "My Project"
}

func (m *MockTaskList) Phase() service.Phase {
	return service.PhaseOpen
}

func (m *MockTaskList) Tasks() []task.Task {
	args := m.Called()
	return args.Get(0).([]task.Task)
}

func (m *MockTaskList) Task(id uuid.UUID) (task.Task, bool) {
	args := m.Called(id)
	return args.Get(0).(task.Task), args.Bool(1)
}

func (m *MockTaskList) Subscribe(fn func([]task.Task)) func() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.subs = append(m.subs, fn)
	return func() {}
}

// publish рассылает снимок всем подписчикам
func (m *MockTaskList) publish(tasks []task.Task) {
	m.mtx.Lock()
	subs := append([]func([]task.Task){}, m.subs...)
	m.mtx.Unlock()
	for _, fn := range subs {
		fn(tasks)
	}
}

func (m *MockTaskList) subscribers() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.subs)
}

func (m *MockTaskList) CreateTask(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockTaskList) SetTaskStatus(ctx context.Context, t task.Task, status task.Status) error {
	args := m.Called(ctx, t, status)
	return args.Error(0)
}

func (m *MockTaskList) DeleteTask(ctx context.Context, t task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskList) Done() <-chan struct{} {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.done == nil {
		m.done = make(chan struct{})
	}
	return m.done
}

// close имитирует демонтаж списка
func (m *MockTaskList) close() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.done == nil {
		m.done = make(chan struct{})
	}
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

var _ handlers.TaskList = (*MockTaskList)(nil)

// staticSource всегда отдаёт один и тот же список или ничего
type staticSource struct {
	mtx  sync.Mutex
	list handlers.TaskList
}

func (s *staticSource) Current() (handlers.TaskList, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.list, s.list != nil
}

func (s *staticSource) unmount() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if list, ok := s.list.(*MockTaskList); ok {
		list.close()
	}
	s.list = nil
}

type MockHealth struct {
	mock.Mock
}

func (m *MockHealth) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type staticAlerts []service.Alert

func (a staticAlerts) Recent() []service.Alert {
	return a
}

func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func newTaskHandler(list handlers.TaskList) handlers.TaskHandler {
	source := &staticSource{}
	if list != nil {
		source.list = list
	}
	return handlers.NewTaskHandler(source, staticAlerts{}, new(MockHealth))
}

func sampleTask() task.Task {
	t := task.New("My Project", task.WithName("Buy milk"))
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.Version = 1
	return *t
}

// TestAuthHandler_LogIn тестирует вход
func TestAuthHandler_LogIn(t *testing.T) {
	identity := &user.Identity{ID: user.IdentityFor("a@x.com"), Email: "a@x.com"}

	tests := []struct {
		name           string
		requestBody    string
		contentType    string
		setupMock      func(*MockAuth)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:        "success - logged in",
			requestBody: `{"email": "a@x.com", "password": "pw1"}`,
			contentType: "application/json",
			setupMock: func(m *MockAuth) {
				m.On("LogIn", mock.Anything, "a@x.com", "pw1").Return(nil)
				m.On("User").Return(identity)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "error - invalid content type",
			requestBody:    `{}`,
			contentType:    "text/plain",
			setupMock:      func(m *MockAuth) {},
			expectedStatus: http.StatusUnsupportedMediaType,
		},
		{
			name:           "error - invalid JSON",
			requestBody:    `{invalid json}`,
			contentType:    "application/json",
			setupMock:      func(m *MockAuth) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "error - missing email",
			requestBody:    `{"password": "pw1"}`,
			contentType:    "application/json",
			setupMock:      func(m *MockAuth) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   service.CodeValidationError,
		},
		{
			name:        "error - wrong password",
			requestBody: `{"email": "a@x.com", "password": "nope"}`,
			contentType: "application/json; charset=utf-8",
			setupMock: func(m *MockAuth) {
				m.On("LogIn", mock.Anything, "a@x.com", "nope").
					Return(service.NewAuthError("a@x.com", errors.New("invalid credentials")))
			},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   service.CodeAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := new(MockAuth)
			tt.setupMock(auth)
			handler := handlers.NewAuthHandler(auth)

			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.requestBody))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()

			handler.LogIn(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeBody(t, w)["error"])
			}
			if tt.expectedStatus == http.StatusOK {
				var resp dto.IdentityResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, identity.ID, resp.Identity)
				assert.Equal(t, "a@x.com", resp.Email)
			}
			auth.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_LogOut(t *testing.T) {
	tests := []struct {
		name           string
		setupMock      func(*MockAuth)
		expectedStatus int
	}{
		{
			name: "success - no content",
			setupMock: func(m *MockAuth) {
				m.On("LogOut", mock.Anything).Return(nil)
			},
			expectedStatus: http.StatusNoContent,
		},
		{
			name: "error - store failure",
			setupMock: func(m *MockAuth) {
				m.On("LogOut", mock.Anything).Return(errors.New("db down"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := new(MockAuth)
			tt.setupMock(auth)
			handler := handlers.NewAuthHandler(auth)

			req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
			w := httptest.NewRecorder()

			handler.LogOut(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			auth.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_Me(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		auth := new(MockAuth)
		auth.On("User").Return(nil)
		handler := handlers.NewAuthHandler(auth)

		w := httptest.NewRecorder()
		handler.Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		auth := new(MockAuth)
		auth.On("User").Return(&user.Identity{ID: "id-1", Email: "a@x.com"})
		handler := handlers.NewAuthHandler(auth)

		w := httptest.NewRecorder()
		handler.Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "id-1", decodeBody(t, w)["identity"])
	})
}

// TestTaskHandler_GetTasks тестирует получение снимка
func TestTaskHandler_GetTasks(t *testing.T) {
	t.Run("error - not mounted", func(t *testing.T) {
		handler := newTaskHandler(nil)

		w := httptest.NewRecorder()
		handler.GetTasks(w, httptest.NewRequest(http.MethodGet, "/tasks", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("success - snapshot", func(t *testing.T) {
		list := new(MockTaskList)
		list.On("Tasks").Return([]task.Task{sampleTask()})
		handler := newTaskHandler(list)

		w := httptest.NewRecorder()
		handler.GetTasks(w, httptest.NewRequest(http.MethodGet, "/tasks", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.TaskListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "My Project", resp.Partition)
		assert.Equal(t, string(service.PhaseOpen), resp.Phase)
		require.Len(t, resp.Tasks, 1)
		assert.Equal(t, "Buy milk", resp.Tasks[0].Name)
		assert.Equal(t, "Open", resp.Tasks[0].Status)
	})
}

// TestTaskHandler_PostTask тестирует создание задачи
func TestTaskHandler_PostTask(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    string
		setupMock      func(*MockTaskList)
		expectedStatus int
	}{
		{
			name:        "success - named task",
			requestBody: `{"name": "Buy milk"}`,
			setupMock: func(m *MockTaskList) {
				m.On("CreateTask", mock.Anything, "Buy milk").Return(nil)
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:        "success - empty body uses default name",
			requestBody: ``,
			setupMock: func(m *MockTaskList) {
				m.On("CreateTask", mock.Anything, "").Return(nil)
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "error - invalid JSON",
			requestBody:    `{invalid json}`,
			setupMock:      func(m *MockTaskList) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "error - collection not open",
			requestBody: `{"name": "Buy milk"}`,
			setupMock: func(m *MockTaskList) {
				m.On("CreateTask", mock.Anything, "Buy milk").Return(service.NewNotOpen("My Project"))
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:        "error - storage failure",
			requestBody: `{"name": "Buy milk"}`,
			setupMock: func(m *MockTaskList) {
				m.On("CreateTask", mock.Anything, "Buy milk").Return(errors.New("disk full"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := new(MockTaskList)
			tt.setupMock(list)
			handler := newTaskHandler(list)

			req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(tt.requestBody))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.PostTask(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			list.AssertExpectations(t)
		})
	}
}

// TestTaskHandler_UpdateTaskStatus тестирует смену статуса
func TestTaskHandler_UpdateTaskStatus(t *testing.T) {
	existing := sampleTask()

	tests := []struct {
		name           string
		id             string
		requestBody    string
		setupMock      func(*MockTaskList)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:        "success - status updated",
			id:          existing.ID.String(),
			requestBody: `{"status": "InProgress"}`,
			setupMock: func(m *MockTaskList) {
				m.On("Task", existing.ID).Return(existing, true)
				m.On("SetTaskStatus", mock.Anything, existing, task.StatusInProgress).Return(nil)
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "error - invalid status",
			id:             existing.ID.String(),
			requestBody:    `{"status": "Done"}`,
			setupMock:      func(m *MockTaskList) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   service.CodeInvalidStatus,
		},
		{
			name:        "error - unknown task",
			id:          uuid.New().String(),
			requestBody: `{"status": "Complete"}`,
			setupMock: func(m *MockTaskList) {
				m.On("Task", mock.Anything).Return(task.Task{}, false)
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   service.CodeNotFound,
		},
		{
			name:           "error - bad id",
			id:             "not-a-uuid",
			requestBody:    `{"status": "Complete"}`,
			setupMock:      func(m *MockTaskList) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "error - nil id",
			id:             uuid.Nil.String(),
			requestBody:    `{"status": "Complete"}`,
			setupMock:      func(m *MockTaskList) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := new(MockTaskList)
			tt.setupMock(list)
			handler := newTaskHandler(list)

			req := httptest.NewRequest(http.MethodPut, "/tasks/"+tt.id+"/status", strings.NewReader(tt.requestBody))
			req.Header.Set("Content-Type", "application/json")
			req = withID(req, tt.id)
			w := httptest.NewRecorder()

			handler.UpdateTaskStatus(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeBody(t, w)["error"])
			}
			list.AssertExpectations(t)
			if tt.expectedStatus != http.StatusAccepted {
				list.AssertNotCalled(t, "SetTaskStatus", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

// TestTaskHandler_DeleteTask тестирует удаление
func TestTaskHandler_DeleteTask(t *testing.T) {
	existing := sampleTask()

	t.Run("success - accepted", func(t *testing.T) {
		list := new(MockTaskList)
		list.On("Task", existing.ID).Return(existing, true)
		list.On("DeleteTask", mock.Anything, existing).Return(nil)
		handler := newTaskHandler(list)

		req := withID(httptest.NewRequest(http.MethodDelete, "/tasks/"+existing.ID.String(), nil), existing.ID.String())
		w := httptest.NewRecorder()

		handler.DeleteTask(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)
		list.AssertExpectations(t)
	})

	t.Run("error - unknown task", func(t *testing.T) {
		list := new(MockTaskList)
		list.On("Task", mock.Anything).Return(task.Task{}, false)
		handler := newTaskHandler(list)

		id := uuid.New().String()
		req := withID(httptest.NewRequest(http.MethodDelete, "/tasks/"+id, nil), id)
		w := httptest.NewRecorder()

		handler.DeleteTask(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		list.AssertNotCalled(t, "DeleteTask", mock.Anything, mock.Anything)
	})
}

func TestTaskHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		setupMock      func(*MockHealth)
		expectedStatus int
	}{
		{
			name: "success - healthy",
			setupMock: func(m *MockHealth) {
				m.On("HealthCheck", mock.Anything).Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "error - unhealthy",
			setupMock: func(m *MockHealth) {
				m.On("HealthCheck", mock.Anything).Return(errors.New("db connection failed"))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			health := new(MockHealth)
			tt.setupMock(health)
			handler := handlers.NewTaskHandler(&staticSource{}, staticAlerts{}, health)

			w := httptest.NewRecorder()
			handler.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			health.AssertExpectations(t)
		})
	}
}

func TestTaskHandler_GetAlerts(t *testing.T) {
	alerts := staticAlerts{{Title: service.AlertTitleOpenFailed, Message: "Failed to open collection:{}"}}
	handler := handlers.NewTaskHandler(&staticSource{}, alerts, new(MockHealth))

	w := httptest.NewRecorder()
	handler.GetAlerts(w, httptest.NewRequest(http.MethodGet, "/alerts", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), service.AlertTitleOpenFailed)
}

// TestTaskHandler_Events проверяет поток снимков и его закрытие после демонтажа
func TestTaskHandler_Events(t *testing.T) {
	list := new(MockTaskList)
	source := &staticSource{list: list}
	handler := handlers.NewTaskHandler(source, staticAlerts{}, new(MockHealth))
	// пинг не должен успеть сработать, closed приходит сразу по демонтажу
	handler.Heartbeat = time.Hour

	r := chi.NewRouter()
	r.Get("/tasks/events", handler.Events)
	server := httptest.NewServer(r)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/tasks/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return list.subscribers() == 1
	}, time.Second, 5*time.Millisecond)
	list.publish([]task.Task{sampleTask()})

	reader := bufio.NewReader(resp.Body)
	var dataLine string
	for dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
		}
	}

	var snapshot dto.TaskListResponse
	require.NoError(t, json.Unmarshal([]byte(dataLine), &snapshot))
	require.Len(t, snapshot.Tasks, 1)
	assert.Equal(t, "Buy milk", snapshot.Tasks[0].Name)

	unmountedAt := time.Now()
	source.unmount()

	sawClosed := false
	for !sawClosed {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		sawClosed = strings.TrimSpace(line) == "event: closed"
	}
	assert.True(t, sawClosed)
	assert.Less(t, time.Since(unmountedAt), time.Second)
}
