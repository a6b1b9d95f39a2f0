// Пакет policy — правила доступа к командам сервера по ролям Discord.
//
// Команда ограничена, если она входит в Restricted. Игрок в ограниченной
// команде должен иметь хотя бы одну роль, разрешающую эту команду.
// Неограниченные команды разрешены всем. Сравнение команд — без учёта регистра,
// ключи ролей (ID или имя роли) сравниваются точно.
package policy

import (
	"sort"
	"strings"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

// Policy — неизменяемый набор правил. Строится один раз при старте.
type Policy struct {
	// roleTeams — ключ роли → множество разрешённых команд (нижний регистр)
	roleTeams map[string]map[string]bool
	// teamRoles — команда (нижний регистр) → роли, дающие доступ
	teamRoles  map[string][]string
	restricted map[string]bool
	// teamNames — исходное написание команд для сообщений
	teamNames   map[string]string
	defaultTeam string
}

// New создаёт политику. mapping — роль → разрешённые команды,
// restricted — ограниченные команды, defaultTeam — безопасная команда.
func New(mapping map[string][]string, restricted []string, defaultTeam string) *Policy {
	p := &Policy{
		roleTeams:   make(map[string]map[string]bool, len(mapping)),
		teamRoles:   make(map[string][]string),
		restricted:  make(map[string]bool, len(restricted)),
		teamNames:   make(map[string]string),
		defaultTeam: defaultTeam,
	}

	for role, teams := range mapping {
		set := make(map[string]bool, len(teams))
		for _, team := range teams {
			key := normalize(team)
			if key == "" {
				continue
			}
			set[key] = true
			p.teamRoles[key] = append(p.teamRoles[key], role)
			if _, ok := p.teamNames[key]; !ok {
				p.teamNames[key] = team
			}
		}
		p.roleTeams[role] = set
	}
	for key := range p.teamRoles {
		sort.Strings(p.teamRoles[key])
	}

	for _, team := range restricted {
		key := normalize(team)
		if key == "" {
			continue
		}
		p.restricted[key] = true
		p.teamNames[key] = team
	}
	return p
}

// DefaultTeam возвращает безопасную команду для перевода нарушителей.
func (p *Policy) DefaultTeam() string {
	return p.defaultTeam
}

// IsRestricted сообщает, что команда требует разрешающей роли.
// Только для таких команд нужен поиск ролей пользователя.
func (p *Policy) IsRestricted(team string) bool {
	return p.restricted[normalize(team)]
}

// RequiredRoles возвращает роли, дающие доступ к команде.
func (p *Policy) RequiredRoles(team string) []string {
	roles := p.teamRoles[normalize(team)]
	result := make([]string, len(roles))
	copy(result, roles)
	return result
}

// PermittedTeams возвращает команды, разрешённые набором ролей (отсортированы).
func (p *Policy) PermittedTeams(roles []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, role := range roles {
		for key := range p.roleTeams[role] {
			if seen[key] {
				continue
			}
			seen[key] = true
			result = append(result, p.teamNames[key])
		}
	}
	sort.Strings(result)
	return result
}

// Check проверяет игрока entry с ролями Discord roles.
// Возвращает нарушение и true, если команда ограничена и ни одна роль её не разрешает.
func (p *Policy) Check(entry model.RosterEntry, roles []string) (*model.Violation, bool) {
	key := normalize(entry.Team)
	if !p.restricted[key] {
		return nil, false
	}

	for _, role := range roles {
		if p.roleTeams[role][key] {
			return nil, false
		}
	}

	return &model.Violation{
		Player:         entry,
		Team:           entry.Team,
		Roles:          append([]string(nil), roles...),
		RequiredRoles:  p.RequiredRoles(entry.Team),
		PermittedTeams: p.PermittedTeams(roles),
	}, true
}

func normalize(team string) string {
	return strings.ToLower(strings.TrimSpace(team))
}
