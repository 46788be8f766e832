package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"taskSync/internal/handlers/dto"
	"taskSync/internal/logger"
	"taskSync/internal/models/task"
	"taskSync/internal/service"

	"go.uber.org/zap"
)

const defaultHeartbeat = 15 * time.Second

type TaskHandler struct {
	Tasks  TaskListSource
	Alerts AlertSource
	Health HealthChecker

	// как часто поток событий проверяет, что список ещё смонтирован
	Heartbeat time.Duration
}

func NewTaskHandler(tasks TaskListSource, alerts AlertSource, health HealthChecker) TaskHandler {
	return TaskHandler{
		Tasks:     tasks,
		Alerts:    alerts,
		Health:    health,
		Heartbeat: defaultHeartbeat,
	}
}

// mounted отвечает 401, пока пользователь не вошёл
func (h *TaskHandler) mounted(w http.ResponseWriter, r *http.Request) (TaskList, bool) {
	list, ok := h.Tasks.Current()
	if !ok {
		logger.Warn("HTTP: Список задач не смонтирован, нужен вход",
			zap.String("client_ip", r.RemoteAddr))

		responseWithError(w, http.StatusUnauthorized, "вход не выполнен")
		return nil, false
	}
	return list, true
}

func (h *TaskHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	list, ok := h.mounted(w, r)
	if !ok {
		return
	}

	tasks := list.Tasks()

	logger.Info("HTTP_OUT: Задачи получены",
		zap.Int("count", len(tasks)),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	writeJSON(w, http.StatusOK, dto.TaskListResponse{
		Partition: list.Partition(),
		Phase:     string(list.Phase()),
		Tasks:     dto.FromTaskList(tasks),
	})
}

func (h *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	list, ok := h.mounted(w, r)
	if !ok {
		return
	}

	var request dto.CreateTaskRequest
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
			logger.Warn("HTTP: ошибка чтения JSON",
				zap.Error(err),
				zap.String("client_ip", r.RemoteAddr))

			responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
			return
		}
	}

	logger.Info("HTTP: Вызов сервиса создания задачи")
	if err := list.CreateTask(r.Context(), request.Name); err != nil {
		respondServiceError(w, r, "create_task", err)
		return
	}

	logger.Info("HTTP_OUT: Задача отправлена на создание",
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusAccepted))

	accepted(w)
}

func (h *TaskHandler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	list, ok := h.mounted(w, r)
	if !ok {
		return
	}

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var request dto.UpdateStatusRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.Warn("HTTP: ошибка чтения JSON",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))

		responseWithError(w, http.StatusBadRequest, "неверно передан статус: "+err.Error())
		return
	}

	status, err := task.ParseStatus(request.Status)
	if err != nil {
		logger.Warn("HTTP: Недопустимый статус", zap.Error(err))
		handleBusinessError(w, service.NewInvalidStatus(request.Status))
		return
	}

	current, found := list.Task(id)
	if !found {
		handleBusinessError(w, service.NewNotFound("задача", id.String()))
		return
	}

	logger.Info("HTTP: Запрос к сервису смены статуса")
	if err := list.SetTaskStatus(r.Context(), current, status); err != nil {
		respondServiceError(w, r, "update_status", err)
		return
	}

	logger.Info("HTTP_OUT: Статус отправлен на обновление",
		zap.String("task_id", id.String()),
		zap.String("status", string(status)),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusAccepted))

	accepted(w)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	list, ok := h.mounted(w, r)
	if !ok {
		return
	}

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	current, found := list.Task(id)
	if !found {
		handleBusinessError(w, service.NewNotFound("задача", id.String()))
		return
	}

	logger.Info("HTTP: Обращение к сервису для удаления задачи")
	if err := list.DeleteTask(r.Context(), current); err != nil {
		respondServiceError(w, r, "delete_task", err)
		return
	}

	logger.Info("HTTP_OUT: Задача отправлена на удаление",
		zap.String("task_id", id.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusAccepted))

	accepted(w)
}

func (h *TaskHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	alerts := h.Alerts.Recent()
	responseWithJSON(w, http.StatusOK, toPayload("alerts", alerts))
}

func (h *TaskHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP: Health check")

	if err := h.Health.HealthCheck(r.Context()); err != nil {
		logger.Error("HTTP: Хранилище недоступно", err)
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("status", "unavailable"),
			toPayload("error", err.Error()))
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("status", "ok"))
}
