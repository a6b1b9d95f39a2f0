package model

// RosterEntry — присутствие игрока на сервере в момент снимка.
type RosterEntry struct {
	// PlayerID — Roblox user ID
	PlayerID string
	// Name — отображаемое имя
	Name string
	// Team — текущая команда (категория) на сервере
	Team string
	// Permission — уровень прав на сервере (Normal, Server Moderator, ...)
	Permission string
	// Callsign — позывной (может быть пустым)
	Callsign string
}
