package erlc

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind — класс ошибки обращения к API.
type Kind string

const (
	// KindTransient — сеть, таймаут, 5xx, 429, битый ответ. Поток пропускается до следующего цикла.
	KindTransient Kind = "transient"
	// KindAuth — ключ сервера отклонён (401/403). Опрос останавливается.
	KindAuth Kind = "auth"
	// KindRejected — API отклонил запрос (прочие 4xx), повтор бессмыслен.
	KindRejected Kind = "rejected"
)

var (
	// ErrTransientFetch — временная ошибка обращения к API.
	ErrTransientFetch = errors.New("временная ошибка PRC API")
	// ErrAuth — ключ сервера отклонён.
	ErrAuth = errors.New("PRC API отклонил ключ сервера")
	// ErrRejected — запрос отклонён API.
	ErrRejected = errors.New("PRC API отклонил запрос")
)

// FetchError — ошибка обращения к PRC API.
type FetchError struct {
	Kind Kind
	// Op — операция (players, joinlogs, killlogs, command)
	Op string
	// StatusCode — HTTP-статус (0 для сетевых ошибок)
	StatusCode int
	// Body — начало тела ответа для диагностики
	Body string
	Err  error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("PRC API %s: статус %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("PRC API %s: %v", e.Op, e.Err)
}

// Unwrap возвращает исходную ошибку.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с sentinel по классу.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransientFetch:
		return e.Kind == KindTransient
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrRejected:
		return e.Kind == KindRejected
	}
	return false
}

// IsTransient сообщает, что ошибка временная.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientFetch)
}

// IsAuth сообщает, что ключ сервера отклонён.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// kindForStatus классифицирует HTTP-статус ответа.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests, status >= 500:
		return KindTransient
	default:
		return KindRejected
	}
}
