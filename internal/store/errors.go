package store

import "errors"

var (
	// ErrUnavailable возвращается, когда хранилище недоступно
	ErrUnavailable = errors.New("хранилище аккаунтов недоступно")
	// ErrNotFound возвращается, когда аккаунт не найден
	ErrNotFound = errors.New("аккаунт не найден")
)
