// Пакет model — доменные модели erlc-bridge.
package model

import "time"

// StreamKind — тип лог-потока игрового сервера.
type StreamKind string

const (
	// StreamJoin — журнал входов/выходов игроков.
	StreamJoin StreamKind = "join"
	// StreamKill — журнал убийств.
	StreamKill StreamKind = "kill"
)

// Streams — все лог-потоки в порядке обработки.
var Streams = []StreamKind{StreamJoin, StreamKill}

// EventType — тип отдельного события лог-потока.
type EventType string

const (
	EventJoin  EventType = "join"
	EventLeave EventType = "leave"
	EventKill  EventType = "kill"
)

// PlayerRef — ссылка на игрока: Roblox user ID и отображаемое имя.
type PlayerRef struct {
	// ID — Roblox user ID (строкой, как приходит от API)
	ID string
	// Name — имя пользователя Roblox
	Name string
}

// IsZero сообщает, что ссылка пустая.
func (p PlayerRef) IsZero() bool {
	return p.ID == "" && p.Name == ""
}

// LogEntry — одно событие лог-потока. Неизменяемо после выборки.
type LogEntry struct {
	// Stream — поток, из которого получено событие
	Stream StreamKind
	// Type — join, leave или kill
	Type EventType
	// Key — ключ упорядочивания (Unix-время события, монотонно в пределах потока)
	Key int64
	// Player — игрок (для join/leave) или жертва (для kill)
	Player PlayerRef
	// Killer — нападающий (только для kill)
	Killer PlayerRef
}

// Time возвращает время события в UTC.
func (e LogEntry) Time() time.Time {
	return time.Unix(e.Key, 0).UTC()
}
