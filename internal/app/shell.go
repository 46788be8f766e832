package app

import (
	"sync"

	"taskSync/internal/handlers"
	"taskSync/internal/logger"
	"taskSync/internal/models/user"
	"taskSync/internal/repository"
	"taskSync/internal/service"

	"go.uber.org/zap"
)

// Shell монтирует список задач проекта, пока пользователь вошёл,
// и демонтирует его при выходе. Без входа задачи недоступны.
type Shell struct {
	auth      *service.AuthState
	opener    repository.Opener
	projectID string
	options   []service.Option

	mtx   sync.RWMutex
	list  *service.TaskListState
	unsub func()
}

func NewShell(auth *service.AuthState, opener repository.Opener, projectID string, options ...service.Option) *Shell {
	s := &Shell{
		auth:      auth,
		opener:    opener,
		projectID: projectID,
		options:   options,
	}
	s.unsub = auth.Subscribe(s.onIdentity)
	s.onIdentity(auth.User())
	return s
}

func (s *Shell) onIdentity(id *user.Identity) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	switch {
	case id != nil && s.list == nil:
		list, err := service.NewTaskListState(s.auth, s.opener, s.projectID, s.options...)
		if err != nil {
			logger.Error("Shell: Не удалось смонтировать список задач", err)
			return
		}
		s.list = list
		logger.Info("Shell: Список задач смонтирован",
			zap.String("identity", id.ID),
			zap.String("project", s.projectID))

	case id == nil && s.list != nil:
		s.list.Close()
		s.list = nil
		logger.Info("Shell: Показан экран входа")
	}
}

// Current реализует handlers.TaskListSource
func (s *Shell) Current() (handlers.TaskList, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.list == nil {
		return nil, false
	}
	return s.list, true
}

func (s *Shell) Close() {
	if s.unsub != nil {
		s.unsub()
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.list != nil {
		s.list.Close()
		s.list = nil
	}
}
