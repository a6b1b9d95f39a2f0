package model

import "time"

// ShiftSession — одна смена пользователя.
// Не более одной открытой смены (EndedAt == nil) на пользователя.
// Записи не удаляются — история только дополняется.
type ShiftSession struct {
	// ID — UUID смены
	ID string
	// DiscordUserID — владелец смены
	DiscordUserID string
	// StartedAt — время начала (время получения команды)
	StartedAt time.Time
	// EndedAt — время окончания, nil пока смена активна
	EndedAt *time.Time
}

// Active сообщает, что смена ещё не завершена.
func (s *ShiftSession) Active() bool {
	return s.EndedAt == nil
}

// Duration возвращает длительность смены; для активной — до момента now.
func (s *ShiftSession) Duration(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// ShiftFilter — фильтры выборки смен для dashboard.
type ShiftFilter struct {
	// DiscordUserID — только смены пользователя (пусто — все)
	DiscordUserID string
	// Active — только активные (true) или только завершённые (false); nil — все
	Active *bool
	// Since — только смены, начатые не раньше указанного времени
	Since *time.Time
}

// ShiftSummary — агрегированные данные смен одного пользователя.
type ShiftSummary struct {
	DiscordUserID string
	// Sessions — количество смен
	Sessions int
	// TotalDuration — суммарная длительность завершённых смен
	TotalDuration time.Duration
	// OnShift — есть ли активная смена
	OnShift bool
	// LastStartedAt — время начала последней смены
	LastStartedAt time.Time
}
