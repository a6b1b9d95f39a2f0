// Пакет erlc — HTTP-клиент к PRC API приватного сервера ER:LC.
// models.go — модели ответов API и их преобразование в доменные типы.
package erlc

import (
	"strings"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

// playerDTO — элемент ответа GET /server/players.
type playerDTO struct {
	// Player — "Имя:UserID"
	Player     string `json:"Player"`
	Permission string `json:"Permission"`
	Team       string `json:"Team"`
	Callsign   string `json:"Callsign"`
}

// joinLogDTO — элемент ответа GET /server/joinlogs.
type joinLogDTO struct {
	Join      bool   `json:"Join"`
	Timestamp int64  `json:"Timestamp"`
	Player    string `json:"Player"`
}

// killLogDTO — элемент ответа GET /server/killlogs.
type killLogDTO struct {
	Killed    string `json:"Killed"`
	Killer    string `json:"Killer"`
	Timestamp int64  `json:"Timestamp"`
}

// commandRequest — тело POST /server/command.
type commandRequest struct {
	Command string `json:"command"`
}

// parsePlayer разбирает строку "Имя:UserID". Без разделителя строка считается именем.
func parsePlayer(s string) model.PlayerRef {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return model.PlayerRef{Name: s}
	}
	return model.PlayerRef{Name: s[:idx], ID: s[idx+1:]}
}

func (d playerDTO) toRosterEntry() model.RosterEntry {
	ref := parsePlayer(d.Player)
	return model.RosterEntry{
		PlayerID:   ref.ID,
		Name:       ref.Name,
		Team:       d.Team,
		Permission: d.Permission,
		Callsign:   d.Callsign,
	}
}

func (d joinLogDTO) toLogEntry() model.LogEntry {
	typ := model.EventLeave
	if d.Join {
		typ = model.EventJoin
	}
	return model.LogEntry{
		Stream: model.StreamJoin,
		Type:   typ,
		Key:    d.Timestamp,
		Player: parsePlayer(d.Player),
	}
}

func (d killLogDTO) toLogEntry() model.LogEntry {
	return model.LogEntry{
		Stream: model.StreamKill,
		Type:   model.EventKill,
		Key:    d.Timestamp,
		Player: parsePlayer(d.Killed),
		Killer: parsePlayer(d.Killer),
	}
}

// TeamCommand формирует команду перевода игрока в команду team.
func TeamCommand(playerName, team string) string {
	return ":team " + playerName + " " + team
}
