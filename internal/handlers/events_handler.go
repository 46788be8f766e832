package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"taskSync/internal/handlers/dto"
	"taskSync/internal/logger"
	"taskSync/internal/models/task"

	"go.uber.org/zap"
)

// Events - поток полных снимков в формате text/event-stream.
// Медленный клиент получает только последний снимок, промежуточные теряются.
// Поток закрывается событием closed, когда список демонтирован.
func (h *TaskHandler) Events(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN: Подписка на события")

	list, ok := h.mounted(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		responseWithError(w, http.StatusInternalServerError, "потоковая передача не поддерживается")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	snapshots := make(chan []task.Task, 1)
	unsubscribe := list.Subscribe(func(tasks []task.Task) {
		select {
		case <-snapshots:
		default:
		}
		select {
		case snapshots <- tasks:
		default:
		}
	})
	defer unsubscribe()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-r.Context().Done():
			logger.Info("HTTP_OUT: Клиент отключился от событий", zap.Int("sent", sent))
			return

		case tasks := <-snapshots:
			body, err := json.Marshal(dto.TaskListResponse{
				Partition: list.Partition(),
				Phase:     string(list.Phase()),
				Tasks:     dto.FromTaskList(tasks),
			})
			if err != nil {
				logger.Error("HTTP: Не удалось сериализовать снимок", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: tasks\ndata: %s\n\n", body); err != nil {
				logger.Warn("HTTP: Ошибка записи события", zap.Error(err))
				return
			}
			flusher.Flush()
			sent++

		case <-list.Done():
			fmt.Fprint(w, "event: closed\ndata: {}\n\n")
			flusher.Flush()
			logger.Info("HTTP_OUT: Список демонтирован, поток закрыт", zap.Int("sent", sent))
			return

		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
