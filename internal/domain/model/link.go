package model

import "time"

// LinkRecord — связь пользователя Discord с аккаунтом Roblox.
// Одна активная связь на пользователя Discord, повторная привязка перезаписывает.
type LinkRecord struct {
	// DiscordUserID — идентификатор пользователя Discord
	DiscordUserID string
	// RobloxUserID — Roblox user ID
	RobloxUserID string
	// RobloxUsername — имя пользователя Roblox на момент привязки
	RobloxUsername string
	// CreatedAt — время первой привязки
	CreatedAt time.Time
	// UpdatedAt — время последней перепривязки
	UpdatedAt time.Time
}

// RobloxUser — результат разрешения имени пользователя Roblox.
type RobloxUser struct {
	ID          int64
	Name        string
	DisplayName string
}

// GroupRole — роль пользователя в группе Roblox.
type GroupRole struct {
	GroupID   int64
	GroupName string
	RoleName  string
	Rank      int
}
