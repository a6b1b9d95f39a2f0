package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrTransient — временная ошибка доставки (сеть, 5xx, 429). Повтор имеет смысл.
	ErrTransient = errors.New("временная ошибка Discord")
	// ErrPermanent — Discord отклонил запрос (4xx). Повтор не поможет.
	ErrPermanent = errors.New("Discord отклонил запрос")
	// ErrMemberNotFound — пользователь не состоит в гильдии.
	ErrMemberNotFound = errors.New("пользователь не найден в гильдии")
)

// APIError — ошибка обращения к Discord с классом.
type APIError struct {
	Op string
	// StatusCode — HTTP-статус (0 для сетевых ошибок)
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Discord %s: статус %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("Discord %s: %v", e.Op, e.Err)
}

// Unwrap возвращает исходную ошибку.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is сопоставляет с ErrTransient/ErrPermanent.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return !e.Permanent
	case ErrPermanent:
		return e.Permanent
	}
	return false
}

// IsTransient сообщает, что доставку стоит повторить.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// classify оборачивает ошибку discordgo в APIError.
// REST 4xx (кроме 429) — постоянная ошибка, остальное — временная.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		status := restErr.Response.StatusCode
		permanent := status >= 400 && status < 500 && status != http.StatusTooManyRequests
		return &APIError{Op: op, StatusCode: status, Permanent: permanent, Err: err}
	}

	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return &APIError{Op: op, StatusCode: http.StatusTooManyRequests, Err: err}
	}

	// Сеть, таймаут контекста, неизвестные ответы
	return &APIError{Op: op, Err: err}
}
