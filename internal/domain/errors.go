package domain

import "errors"

var (
	// ErrUnauthorized — ключ API отсутствует или не принадлежит активному ридеру.
	ErrUnauthorized = errors.New("ключ API недействителен")
	// ErrReaderMismatch — readerId запроса не совпадает с ридером ключа.
	ErrReaderMismatch = errors.New("readerId не совпадает с ключом API")
	// ErrInvalidStamp — запрос на отметку не прошёл проверку.
	ErrInvalidStamp = errors.New("некорректная отметка")

	ErrReaderNotFound = errors.New("ридер не найден")
	ErrUserNotFound   = errors.New("пользователь не найден")
	ErrStampNotFound  = errors.New("отметка не найдена")

	// ErrCacheMiss возвращается кэшем, если ключа нет.
	ErrCacheMiss = errors.New("нет значения в кэше")
)
