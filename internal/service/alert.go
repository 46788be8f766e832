package service

import (
	"sync"
	"time"

	"taskSync/internal/logger"

	"go.uber.org/zap"
)

type Alert struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// AlertLog пишет алерт в лог и держит последние limit штук для показа клиенту
type AlertLog struct {
	mtx    sync.Mutex
	limit  int
	alerts []Alert
}

func NewAlertLog(limit int) *AlertLog {
	if limit <= 0 {
		limit = 20
	}
	return &AlertLog{limit: limit}
}

func (a *AlertLog) Alert(title, message string) {
	logger.Error("Alert: "+title, nil, zap.String("message", message))

	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.alerts = append(a.alerts, Alert{Title: title, Message: message, At: time.Now()})
	if len(a.alerts) > a.limit {
		a.alerts = a.alerts[len(a.alerts)-a.limit:]
	}
}

func (a *AlertLog) Recent() []Alert {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	res := make([]Alert, len(a.alerts))
	copy(res, a.alerts)
	return res
}
