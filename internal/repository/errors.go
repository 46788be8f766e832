package repository

import "errors"

var (
	ErrNotFound      = errors.New("запись не найдена")
	ErrAlreadyExists = errors.New("запись уже существует")
	ErrClosed        = errors.New("коллекция закрыта")
	ErrNoUser        = errors.New("не задан пользователь синхронизации")
	ErrSchema        = errors.New("схема не содержит Task")
	ErrInvalidTask   = errors.New("некорректная задача")
)
