// enforcement.go — проверка политики команд и вмешательство.
//
// Evaluator для игрока в ограниченной команде проходит цепочку
// Roblox user ID → связь (links) → роли участника гильдии Discord → политика.
// Игроки в неограниченных командах разрешены без обращения к внешним сервисам.
//
// Enforcer по нарушению:
//  1. Переводит игрока в безопасную команду (команда сервера :team)
//  2. Уведомляет модераторов (игрок, команда, требуемые роли, результат перевода)
//
// CycleGuard гарантирует не более одного вмешательства на игрока за цикл.
//
// Prometheus-метрики:
//   - eb_policy_evaluations_total{outcome} — результаты проверок
//   - eb_enforcement_actions_total{result} — вмешательства
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/erlc-bridge/internal/discord"
	"github.com/bigkaa/erlc-bridge/internal/domain/model"
	"github.com/bigkaa/erlc-bridge/internal/domain/policy"
	"github.com/bigkaa/erlc-bridge/internal/erlc"
	"github.com/bigkaa/erlc-bridge/internal/repository"
)

var (
	policyEvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eb_policy_evaluations_total",
		Help: "Проверки политики команд по результату.",
	}, []string{"outcome"})
	enforcementActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eb_enforcement_actions_total",
		Help: "Вмешательства по нарушениям: reassigned, reassign_failed, skipped.",
	}, []string{"result"})
)

// LinkLookup — поиск связи по Roblox user ID.
// Реализуется repository.LinkRepository.
type LinkLookup interface {
	GetByRobloxID(ctx context.Context, robloxUserID string) (*model.LinkRecord, error)
}

// RoleLookup — роли участника гильдии.
// Реализуется *discord.Client.
type RoleLookup interface {
	MemberRoles(ctx context.Context, userID string) ([]string, error)
}

// CommandRunner — выполнение команды на игровом сервере.
// Реализуется *erlc.Client.
type CommandRunner interface {
	RunCommand(ctx context.Context, command string) error
}

// ViolationNotifier — уведомление модераторов.
// Реализуется *Notifier.
type ViolationNotifier interface {
	Violation(ctx context.Context, v *model.Violation, reassignTo string, reassignErr error) bool
}

// --- Evaluator ---

// Evaluator — проверка игрока на соответствие политике команд.
type Evaluator struct {
	policy *policy.Policy
	links  LinkLookup
	roles  RoleLookup
	logger *slog.Logger
}

// NewEvaluator создаёт проверку политики.
func NewEvaluator(p *policy.Policy, links LinkLookup, roles RoleLookup, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		policy: p,
		links:  links,
		roles:  roles,
		logger: logger.With(slog.String("component", "evaluator")),
	}
}

// Evaluate проверяет игрока. Для EvaluationViolation возвращает нарушение,
// для EvaluationError — причину.
func (e *Evaluator) Evaluate(ctx context.Context, entry model.RosterEntry) (model.EvaluationOutcome, *model.Violation, error) {
	outcome, v, err := e.evaluate(ctx, entry)
	policyEvaluationsTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, v, err
}

func (e *Evaluator) evaluate(ctx context.Context, entry model.RosterEntry) (model.EvaluationOutcome, *model.Violation, error) {
	if !e.policy.IsRestricted(entry.Team) {
		return model.EvaluationAllowed, nil, nil
	}

	link, err := e.links.GetByRobloxID(ctx, entry.PlayerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			e.logger.Debug("Игрок в ограниченной команде без привязанного аккаунта",
				slog.String("player", entry.Name),
				slog.String("player_id", entry.PlayerID),
				slog.String("team", entry.Team),
			)
			return model.EvaluationUnresolved, nil, nil
		}
		return model.EvaluationError, nil, fmt.Errorf("поиск связи игрока %s: %w", entry.PlayerID, err)
	}

	roles, err := e.roles.MemberRoles(ctx, link.DiscordUserID)
	if err != nil {
		if errors.Is(err, discord.ErrMemberNotFound) {
			e.logger.Debug("Привязанный пользователь не состоит в гильдии",
				slog.String("player", entry.Name),
				slog.String("discord_user_id", link.DiscordUserID),
			)
			return model.EvaluationUnresolved, nil, nil
		}
		return model.EvaluationError, nil, fmt.Errorf("роли пользователя %s: %w", link.DiscordUserID, err)
	}

	v, violated := e.policy.Check(entry, roles)
	if !violated {
		return model.EvaluationAllowed, nil, nil
	}
	v.DiscordUserID = link.DiscordUserID
	return model.EvaluationViolation, v, nil
}

// --- CycleGuard ---

// CycleGuard — множество игроков, по которым уже было вмешательство в текущем цикле.
// Создаётся заново в каждом цикле, используется только горутиной цикла.
type CycleGuard struct {
	acted map[string]bool
}

// NewCycleGuard создаёт пустой guard.
func NewCycleGuard() *CycleGuard {
	return &CycleGuard{acted: make(map[string]bool)}
}

// TryAcquire отмечает игрока и возвращает false, если он уже отмечен.
func (g *CycleGuard) TryAcquire(playerID string) bool {
	if g.acted[playerID] {
		return false
	}
	g.acted[playerID] = true
	return true
}

// --- Enforcer ---

// Enforcer — вмешательство по нарушениям.
type Enforcer struct {
	runner      CommandRunner
	notifier    ViolationNotifier
	defaultTeam string
	logger      *slog.Logger
}

// NewEnforcer создаёт исполнителя. defaultTeam — безопасная команда.
func NewEnforcer(runner CommandRunner, notifier ViolationNotifier, defaultTeam string, logger *slog.Logger) *Enforcer {
	return &Enforcer{
		runner:      runner,
		notifier:    notifier,
		defaultTeam: defaultTeam,
		logger:      logger.With(slog.String("component", "enforcer")),
	}
}

// Enforce переводит нарушителя в безопасную команду и уведомляет модераторов.
// Ошибка перевода не мешает уведомлению, ошибка уведомления только логируется.
func (e *Enforcer) Enforce(ctx context.Context, guard *CycleGuard, v *model.Violation) model.ActionResult {
	result := model.ActionResult{PlayerID: v.Player.PlayerID}
	if !guard.TryAcquire(v.Player.PlayerID) {
		result.Skipped = true
		enforcementActionsTotal.WithLabelValues("skipped").Inc()
		return result
	}

	err := e.runner.RunCommand(ctx, erlc.TeamCommand(v.Player.Name, e.defaultTeam))
	if err != nil {
		result.ReassignError = err
		enforcementActionsTotal.WithLabelValues("reassign_failed").Inc()
		e.logger.Error("Ошибка перевода нарушителя",
			slog.String("player", v.Player.Name),
			slog.String("player_id", v.Player.PlayerID),
			slog.String("team", v.Team),
			slog.String("error", err.Error()),
		)
	} else {
		result.Reassigned = true
		enforcementActionsTotal.WithLabelValues("reassigned").Inc()
		e.logger.Info("Нарушитель переведён в безопасную команду",
			slog.String("player", v.Player.Name),
			slog.String("player_id", v.Player.PlayerID),
			slog.String("from_team", v.Team),
			slog.String("to_team", e.defaultTeam),
			slog.String("discord_user_id", v.DiscordUserID),
		)
	}

	result.Notified = e.notifier.Violation(ctx, v, e.defaultTeam, err)
	return result
}
