// poller.go — цикл опроса игрового сервера.
//
// PollerService запускает фоновую горутину с ticker (EB_POLL_INTERVAL).
// Первый цикл выполняется сразу после Start. Циклы не перекрываются:
// следующий начинается только после завершения предыдущего.
//
// Цикл:
//  1. Снимок: список игроков и журналы (параллельно)
//  2. Журналы: новые записи по watermark → уведомления → продвижение watermark
//     (при временной ошибке доставки watermark не двигается дальше непереданной записи)
//  3. Список игроков: разница с предыдущим снимком
//  4. Проверка политики для всех присутствующих игроков, вмешательство по нарушениям
//
// Ошибка авторизации (ключ сервера отклонён) останавливает опрос:
// модераторы получают уведомление, ошибка передаётся в канал Fatal().
//
// Состояние между циклами (дедупликатор с watermark, предыдущий снимок игроков)
// хранится в CycleState и передаётся в RunCycle явно.
//
// Prometheus-метрики:
//   - eb_poll_cycles_total{result} — циклы опроса (ok, partial, auth_error)
//   - eb_poll_cycle_duration_seconds — длительность цикла
//   - eb_log_entries_emitted_total{stream} — переданные записи журналов
//   - eb_stream_watermark{stream} — текущий watermark потока
//   - eb_roster_players — игроков на сервере
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
	"github.com/bigkaa/erlc-bridge/internal/domain/roster"
	"github.com/bigkaa/erlc-bridge/internal/domain/watermark"
	"github.com/bigkaa/erlc-bridge/internal/erlc"
)

var (
	pollCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eb_poll_cycles_total",
		Help: "Циклы опроса игрового сервера по результату.",
	}, []string{"result"})
	pollCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eb_poll_cycle_duration_seconds",
		Help:    "Длительность цикла опроса.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms … ~25s
	})
	logEntriesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eb_log_entries_emitted_total",
		Help: "Записи журналов, переданные в уведомления.",
	}, []string{"stream"})
	streamWatermark = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eb_stream_watermark",
		Help: "Текущий watermark лог-потока (Unix-время последней обработанной записи).",
	}, []string{"stream"})
	rosterPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eb_roster_players",
		Help: "Игроков на сервере по последнему снимку.",
	})
)

// SnapshotSource — выборка снимка сервера.
// Реализуется *erlc.Client.
type SnapshotSource interface {
	Snapshot(ctx context.Context) *erlc.Snapshot
}

// LogEntrySink — получатель новых записей журналов.
// Ошибка означает, что запись нужно передать повторно.
// Реализуется *Notifier.
type LogEntrySink interface {
	LogEntry(ctx context.Context, e model.LogEntry) error
}

// PlayerEvaluator — проверка игрока. Реализуется *Evaluator.
type PlayerEvaluator interface {
	Evaluate(ctx context.Context, entry model.RosterEntry) (model.EvaluationOutcome, *model.Violation, error)
}

// ViolationEnforcer — вмешательство по нарушению. Реализуется *Enforcer.
type ViolationEnforcer interface {
	Enforce(ctx context.Context, guard *CycleGuard, v *model.Violation) model.ActionResult
}

// HaltNotifier — уведомление об остановке опроса. Реализуется *Notifier.
type HaltNotifier interface {
	AuthHalt(ctx context.Context, cause error)
}

// CycleState — состояние, переходящее между циклами.
// Изменяется только горутиной опроса.
type CycleState struct {
	Dedup *watermark.Deduplicator
	// PrevRoster — снимок игроков последнего успешного цикла (nil до первого)
	PrevRoster roster.Snapshot
}

// NewCycleState создаёт начальное состояние.
func NewCycleState(dedup *watermark.Deduplicator) *CycleState {
	return &CycleState{Dedup: dedup}
}

// PollerStatus — состояние опроса для dashboard.
type PollerStatus struct {
	Running    bool
	Halted     bool
	HaltReason string
	Interval   time.Duration
	Cycles     int64
	LastCycle  *model.CycleResult
	Watermarks map[model.StreamKind]int64
}

// PollerDeps — зависимости цикла опроса.
type PollerDeps struct {
	Source    SnapshotSource
	Sink      LogEntrySink
	Evaluator PlayerEvaluator
	Enforcer  ViolationEnforcer
	Halt      HaltNotifier
}

// PollerService — фоновый опрос игрового сервера.
type PollerService struct {
	deps     PollerDeps
	state    *CycleState
	interval time.Duration
	logger   *slog.Logger

	// cycleMu исключает перекрытие циклов
	cycleMu sync.Mutex

	mu         sync.RWMutex
	running    bool
	halted     bool
	haltReason string
	cycles     int64
	last       *model.CycleResult

	fatal  chan error
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPollerService создаёт сервис опроса с начальным состоянием state.
func NewPollerService(deps PollerDeps, state *CycleState, interval time.Duration, logger *slog.Logger) *PollerService {
	return &PollerService{
		deps:     deps,
		state:    state,
		interval: interval,
		logger:   logger.With(slog.String("component", "poller")),
		fatal:    make(chan error, 1),
	}
}

// Fatal возвращает канал, в который передаётся ошибка, требующая остановки процесса.
func (p *PollerService) Fatal() <-chan error {
	return p.fatal
}

// Start запускает фоновую горутину: первый цикл сразу, далее по ticker.
func (p *PollerService) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		defer func() {
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
		}()

		p.logger.Info("Опрос игрового сервера запущен",
			slog.String("interval", p.interval.String()),
		)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			if ctx.Err() != nil {
				p.logger.Info("Опрос игрового сервера остановлен")
				return
			}
			if !p.tick(ctx) {
				return
			}

			select {
			case <-ctx.Done():
				p.logger.Info("Опрос игрового сервера остановлен")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop останавливает опрос и ждёт завершения текущего цикла.
func (p *PollerService) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
}

// tick выполняет один цикл. false — опрос остановлен из-за ошибки авторизации.
func (p *PollerService) tick(ctx context.Context) bool {
	// Начатый цикл доводится до конца: сетевые вызовы ограничены своими таймаутами
	result, err := p.RunCycle(context.WithoutCancel(ctx), p.state)
	if err != nil && erlc.IsAuth(err) {
		p.halt(context.WithoutCancel(ctx), err)
		return false
	}
	if err != nil {
		p.logger.Error("Ошибка цикла опроса", slog.String("error", err.Error()))
	}
	p.logCycle(result)
	return true
}

// halt останавливает опрос после ошибки авторизации.
func (p *PollerService) halt(ctx context.Context, cause error) {
	p.mu.Lock()
	p.halted = true
	p.haltReason = cause.Error()
	p.mu.Unlock()

	p.logger.Error("Ключ сервера отклонён, опрос остановлен",
		slog.String("error", cause.Error()),
	)
	if p.deps.Halt != nil {
		p.deps.Halt.AuthHalt(ctx, cause)
	}

	select {
	case p.fatal <- cause:
	default:
	}
}

// RunCycle выполняет один цикл опроса над state.
// Возвращает ошибку только при отказе в авторизации; остальные сбои
// изолируются по потокам и игрокам и отражаются в результате.
func (p *PollerService) RunCycle(ctx context.Context, state *CycleState) (*model.CycleResult, error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	result := &model.CycleResult{
		CycleID:   uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		result.CompletedAt = time.Now().UTC()
		pollCycleDuration.Observe(result.CompletedAt.Sub(result.StartedAt).Seconds())

		p.mu.Lock()
		p.cycles++
		p.last = result
		p.mu.Unlock()
	}()

	snap := p.deps.Source.Snapshot(ctx)
	if authErr := snap.AuthError(); authErr != nil {
		pollCyclesTotal.WithLabelValues("auth_error").Inc()
		return result, authErr
	}

	partial := false
	for _, stream := range model.Streams {
		sr := p.processStream(ctx, state, stream, snap.Logs[stream], snap.LogErrs[stream])
		if sr.Error != "" {
			partial = true
		}
		result.Streams = append(result.Streams, sr)
	}

	if snap.RosterErr != nil {
		partial = true
		result.RosterError = snap.RosterErr.Error()
		p.logger.Warn("Список игроков не получен, проверка команд пропущена",
			slog.String("cycle_id", result.CycleID),
			slog.String("error", snap.RosterErr.Error()),
		)
	} else {
		p.processRoster(ctx, state, snap.Roster, result)
	}

	if result.EvalErrors > 0 || result.ActionErrors > 0 {
		partial = true
	}
	if partial {
		pollCyclesTotal.WithLabelValues("partial").Inc()
	} else {
		pollCyclesTotal.WithLabelValues("ok").Inc()
	}
	return result, nil
}

// processStream передаёт новые записи одного потока и продвигает его watermark.
func (p *PollerService) processStream(
	ctx context.Context,
	state *CycleState,
	stream model.StreamKind,
	batch []model.LogEntry,
	fetchErr error,
) model.StreamResult {
	sr := model.StreamResult{Stream: stream}
	if fetchErr != nil {
		sr.Watermark, _ = state.Dedup.Store().Get(stream)
		sr.Error = fetchErr.Error()
		p.logger.Warn("Журнал не получен, поток пропущен до следующего цикла",
			slog.String("stream", string(stream)),
			slog.String("error", fetchErr.Error()),
		)
		return sr
	}

	sr.Fetched = len(batch)
	pending := state.Dedup.EmitNew(stream, batch)
	if pending.Seeded {
		p.logger.Info("Первая выборка потока: история до запуска не публикуется",
			slog.String("stream", string(stream)),
			slog.Int("skipped", len(batch)),
			slog.Int64("watermark", pending.MaxKey),
		)
	}

	delivered := 0
	var handoffErr error
	for _, e := range pending.Entries {
		if err := p.deps.Sink.LogEntry(ctx, e); err != nil {
			handoffErr = err
			break
		}
		delivered++
	}
	sr.Emitted = delivered
	logEntriesEmitted.WithLabelValues(string(stream)).Add(float64(delivered))

	wm, commitErr := state.Dedup.CommitDelivered(ctx, pending, delivered)
	sr.Watermark = wm
	sr.Committed = handoffErr == nil && commitErr == nil
	streamWatermark.WithLabelValues(string(stream)).Set(float64(wm))

	switch {
	case handoffErr != nil:
		sr.Error = fmt.Sprintf("передано %d из %d: %v", delivered, len(pending.Entries), handoffErr)
		p.logger.Warn("Записи журнала будут переданы повторно",
			slog.String("stream", string(stream)),
			slog.Int("delivered", delivered),
			slog.Int("pending", len(pending.Entries)),
			slog.String("error", handoffErr.Error()),
		)
	case commitErr != nil:
		sr.Error = commitErr.Error()
		p.logger.Warn("Watermark не сохранён в БД",
			slog.String("stream", string(stream)),
			slog.Int64("watermark", wm),
			slog.String("error", commitErr.Error()),
		)
	}
	return sr
}

// processRoster сравнивает снимок игроков с предыдущим и проверяет присутствующих.
func (p *PollerService) processRoster(ctx context.Context, state *CycleState, entries []model.RosterEntry, result *model.CycleResult) {
	current := roster.NewSnapshot(entries)
	diff := roster.Diff(state.PrevRoster, current)
	state.PrevRoster = current

	result.RosterSize = len(current)
	result.Joins = len(diff.Joins)
	result.Leaves = len(diff.Leaves)
	result.TeamChanges = len(diff.TeamChanges)
	rosterPlayers.Set(float64(len(current)))

	for _, tc := range diff.TeamChanges {
		p.logger.Debug("Игрок сменил команду",
			slog.String("player", tc.Entry.Name),
			slog.String("from_team", tc.FromTeam),
			slog.String("to_team", tc.Entry.Team),
		)
	}

	guard := NewCycleGuard()
	present := make([]model.RosterEntry, 0, len(diff.Joins)+len(diff.StillPresent))
	present = append(present, diff.Joins...)
	present = append(present, diff.StillPresent...)

	for _, entry := range present {
		outcome, v, err := p.deps.Evaluator.Evaluate(ctx, entry)
		switch outcome {
		case model.EvaluationViolation:
			result.Violations++
			action := p.deps.Enforcer.Enforce(ctx, guard, v)
			if action.Skipped {
				continue
			}
			result.Actions++
			if action.ReassignError != nil {
				result.ActionErrors++
			}
		case model.EvaluationUnresolved:
			result.Unresolved++
		case model.EvaluationError:
			result.EvalErrors++
			p.logger.Warn("Ошибка проверки игрока",
				slog.String("player", entry.Name),
				slog.String("player_id", entry.PlayerID),
				slog.String("error", errString(err)),
			)
		}
	}
}

func (p *PollerService) logCycle(r *model.CycleResult) {
	attrs := []any{
		slog.String("cycle_id", r.CycleID),
		slog.Int("roster", r.RosterSize),
		slog.Int("joins", r.Joins),
		slog.Int("leaves", r.Leaves),
		slog.Int("violations", r.Violations),
		slog.Int("actions", r.Actions),
		slog.Int("unresolved", r.Unresolved),
		slog.String("duration", r.CompletedAt.Sub(r.StartedAt).String()),
	}
	emitted := 0
	for _, s := range r.Streams {
		emitted += s.Emitted
	}
	attrs = append(attrs, slog.Int("emitted", emitted))

	if emitted == 0 && r.Joins == 0 && r.Leaves == 0 && r.Actions == 0 {
		p.logger.Debug("Цикл опроса завершён", attrs...)
		return
	}
	p.logger.Info("Цикл опроса завершён", attrs...)
}

// Status возвращает состояние опроса.
func (p *PollerService) Status() PollerStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := PollerStatus{
		Running:    p.running,
		Halted:     p.halted,
		HaltReason: p.haltReason,
		Interval:   p.interval,
		Cycles:     p.cycles,
		LastCycle:  p.last,
	}
	if p.state != nil && p.state.Dedup != nil {
		st.Watermarks = p.state.Dedup.Store().Snapshot()
	}
	return st
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
