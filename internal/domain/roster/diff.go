// Пакет roster — сравнение последовательных снимков списка игроков.
//
// Игрок идентифицируется Roblox user ID. Diff — чистая функция,
// состояние (предыдущий снимок) хранит вызывающий код.
package roster

import (
	"sort"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

// Snapshot — список игроков на сервере, индексированный по PlayerID.
type Snapshot map[string]model.RosterEntry

// NewSnapshot строит снимок из ответа API. Повтор PlayerID — побеждает последний.
func NewSnapshot(entries []model.RosterEntry) Snapshot {
	s := make(Snapshot, len(entries))
	for _, e := range entries {
		if e.PlayerID == "" {
			continue
		}
		s[e.PlayerID] = e
	}
	return s
}

// TeamChange — смена команды игроком между снимками.
type TeamChange struct {
	Entry    model.RosterEntry
	FromTeam string
}

// Result — разница двух снимков. Срезы отсортированы по PlayerID.
type Result struct {
	// Joins — игроки, появившиеся в текущем снимке
	Joins []model.RosterEntry
	// Leaves — игроки, отсутствующие в текущем снимке (данные из предыдущего)
	Leaves []model.RosterEntry
	// StillPresent — игроки, присутствующие в обоих (данные из текущего)
	StillPresent []model.RosterEntry
	// TeamChanges — подмножество StillPresent, сменившие команду
	TeamChanges []TeamChange
}

// Empty сообщает, что состав и команды не изменились.
func (r *Result) Empty() bool {
	return len(r.Joins) == 0 && len(r.Leaves) == 0 && len(r.TeamChanges) == 0
}

// Diff сравнивает previous и current. previous == nil (первый цикл) —
// все игроки current считаются вошедшими.
func Diff(previous, current Snapshot) Result {
	var r Result

	for id, cur := range current {
		prev, ok := previous[id]
		if !ok {
			r.Joins = append(r.Joins, cur)
			continue
		}
		r.StillPresent = append(r.StillPresent, cur)
		if prev.Team != cur.Team {
			r.TeamChanges = append(r.TeamChanges, TeamChange{Entry: cur, FromTeam: prev.Team})
		}
	}
	for id, prev := range previous {
		if _, ok := current[id]; !ok {
			r.Leaves = append(r.Leaves, prev)
		}
	}

	sortEntries(r.Joins)
	sortEntries(r.Leaves)
	sortEntries(r.StillPresent)
	sort.Slice(r.TeamChanges, func(i, j int) bool {
		return r.TeamChanges[i].Entry.PlayerID < r.TeamChanges[j].Entry.PlayerID
	})
	return r
}

func sortEntries(entries []model.RosterEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PlayerID < entries[j].PlayerID
	})
}
