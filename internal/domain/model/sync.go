package model

import "time"

// Violation — игрок занимает ограниченную команду без разрешающей роли.
// Существует только в пределах одного цикла опроса.
type Violation struct {
	// Player — нарушитель
	Player RosterEntry
	// DiscordUserID — связанный пользователь Discord
	DiscordUserID string
	// Team — текущая (запрещённая) команда
	Team string
	// Roles — роли пользователя Discord
	Roles []string
	// RequiredRoles — роли, дающие доступ к команде
	RequiredRoles []string
	// PermittedTeams — команды, разрешённые ролями пользователя
	PermittedTeams []string
}

// EvaluationOutcome — итог проверки политики для одного игрока.
type EvaluationOutcome string

const (
	// EvaluationAllowed — игрок находится в разрешённой команде.
	EvaluationAllowed EvaluationOutcome = "allowed"
	// EvaluationViolation — нарушение, требуется вмешательство.
	EvaluationViolation EvaluationOutcome = "violation"
	// EvaluationUnresolved — нет связанного аккаунта Discord, проверка невозможна.
	EvaluationUnresolved EvaluationOutcome = "unresolved"
	// EvaluationError — ошибка при проверке (внешний сервис недоступен).
	EvaluationError EvaluationOutcome = "error"
)

// ActionResult — результат вмешательства по одному нарушению.
type ActionResult struct {
	PlayerID string
	// Skipped — игрок уже обработан в этом цикле
	Skipped bool
	// Reassigned — команда перевода выполнена успешно
	Reassigned bool
	// ReassignError — ошибка команды перевода (если была)
	ReassignError error
	// Notified — уведомление модераторам доставлено
	Notified bool
}

// StreamResult — результат обработки одного лог-потока за цикл.
type StreamResult struct {
	Stream StreamKind
	// Fetched — записей получено от API
	Fetched int
	// Emitted — новых записей передано дальше
	Emitted int
	// Watermark — значение watermark после цикла
	Watermark int64
	// Committed — watermark продвинут в этом цикле
	Committed bool
	// Error — ошибка выборки или обработки
	Error string
}

// CycleResult — итог одного цикла опроса.
type CycleResult struct {
	// CycleID — UUID цикла (для корреляции логов)
	CycleID     string
	StartedAt   time.Time
	CompletedAt time.Time

	Streams []StreamResult

	// RosterSize — игроков на сервере
	RosterSize int
	// RosterError — ошибка выборки списка игроков
	RosterError string
	Joins       int
	Leaves      int
	TeamChanges int

	Violations   int
	Unresolved   int
	EvalErrors   int
	Actions      int
	ActionErrors int
}
