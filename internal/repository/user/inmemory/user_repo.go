package inmemory

import (
	"context"
	"sync"
	"time"

	"taskSync/internal/models/user"
	repo "taskSync/internal/repository"

	"github.com/google/uuid"
)

type UserStorage struct {
	users    map[string]*user.User
	sessions map[uuid.UUID]*user.Session
	mtx      *sync.RWMutex
}

func NewUserStorage() *UserStorage {
	return &UserStorage{
		users:    make(map[string]*user.User),
		sessions: make(map[uuid.UUID]*user.Session),
		mtx:      &sync.RWMutex{},
	}
}

func (s *UserStorage) CreateUser(ctx context.Context, u *user.User) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.users[u.Email]; ok {
		return repo.ErrAlreadyExists
	}
	stored := *u
	s.users[u.Email] = &stored
	return nil
}

func (s *UserStorage) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	u, ok := s.users[email]
	if !ok {
		return nil, repo.ErrNotFound
	}
	res := *u
	return &res, nil
}

func (s *UserStorage) CreateSession(ctx context.Context, session *user.Session) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return repo.ErrAlreadyExists
	}
	stored := *session
	s.sessions[session.ID] = &stored
	return nil
}

func (s *UserStorage) GetSession(ctx context.Context, id uuid.UUID) (*user.Session, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	res := *session
	return &res, nil
}

func (s *UserStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *UserStorage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
