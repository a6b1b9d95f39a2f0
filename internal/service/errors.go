// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrUnavailable — внешний сервис (Roblox, Discord, PostgreSQL) временно недоступен.
	// Пользователю сообщается, что команду можно повторить.
	ErrUnavailable = errors.New("сервис временно недоступен")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)
