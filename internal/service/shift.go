// shift.go — учёт смен модераторов.
//
// Активные смены хранятся в памяти (map по Discord user ID) и в PostgreSQL.
// Порядок изменения: сначала запись в БД, затем память. Если БД отказала,
// состояние в памяти не меняется. Частичный уникальный индекс
// shift_sessions(discord_user_id) WHERE ended_at IS NULL гарантирует
// не более одной открытой смены даже после рестарта.
//
// Команды одного пользователя выполняются последовательно (блокировка на
// пользователя), s.mu защищает только map и не удерживается во время запросов к БД.
//
// Prometheus-метрики:
//   - eb_shifts_active — количество открытых смен
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
	"github.com/bigkaa/erlc-bridge/internal/domain/shift"
	"github.com/bigkaa/erlc-bridge/internal/repository"
)

var shiftsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "eb_shifts_active",
	Help: "Количество открытых смен.",
})

// ShiftService — начало, завершение и статус смен.
type ShiftService struct {
	repo   repository.ShiftRepository
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	active map[string]*model.ShiftSession
	users  map[string]*sync.Mutex
}

// NewShiftService создаёт сервис смен. Перед использованием вызвать LoadActive.
func NewShiftService(repo repository.ShiftRepository, logger *slog.Logger) *ShiftService {
	return &ShiftService{
		repo:   repo,
		logger: logger.With(slog.String("component", "shift_service")),
		now:    func() time.Time { return time.Now().UTC() },
		active: make(map[string]*model.ShiftSession),
		users:  make(map[string]*sync.Mutex),
	}
}

// lockUser захватывает блокировку пользователя и возвращает функцию освобождения.
func (s *ShiftService) lockUser(discordUserID string) func() {
	s.mu.Lock()
	l, ok := s.users[discordUserID]
	if !ok {
		l = &sync.Mutex{}
		s.users[discordUserID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *ShiftService) lookup(discordUserID string) (*model.ShiftSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.active[discordUserID]
	return sess, ok
}

func (s *ShiftService) setActive(discordUserID string, sess *model.ShiftSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess == nil {
		delete(s.active, discordUserID)
	} else {
		s.active[discordUserID] = sess
	}
	shiftsActive.Set(float64(len(s.active)))
}

// LoadActive восстанавливает открытые смены из БД.
func (s *ShiftService) LoadActive(ctx context.Context) error {
	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("загрузка открытых смен: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[string]*model.ShiftSession, len(open))
	for _, sess := range open {
		s.active[sess.DiscordUserID] = sess
	}
	shiftsActive.Set(float64(len(s.active)))

	s.logger.Info("Открытые смены восстановлены", slog.Int("count", len(open)))
	return nil
}

// Start открывает смену пользователя.
// Ошибки: shift.ErrAlreadyOnShift (через *shift.TransitionError), ErrUnavailable.
func (s *ShiftService) Start(ctx context.Context, discordUserID string) (*model.ShiftSession, error) {
	defer s.lockUser(discordUserID)()

	_, current := s.lookup(discordUserID)
	if _, err := shift.Transition(shift.StateOf(current), shift.CommandStart); err != nil {
		return nil, err
	}

	sess := &model.ShiftSession{
		ID:            uuid.New().String(),
		DiscordUserID: discordUserID,
		StartedAt:     s.now(),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Память отстала от БД: открытая смена создана в обход этого процесса
			s.resync(ctx, discordUserID)
			_, transErr := shift.Transition(shift.StateOnShift, shift.CommandStart)
			return nil, transErr
		}
		return nil, fmt.Errorf("%w: создание смены: %w", ErrUnavailable, err)
	}

	s.setActive(discordUserID, sess)

	s.logger.Info("Смена начата",
		slog.String("discord_user_id", discordUserID),
		slog.String("shift_id", sess.ID),
	)
	return copySession(sess), nil
}

// End завершает смену пользователя и возвращает закрытую смену.
// Время окончания не раньше времени начала.
// Ошибки: shift.ErrNotOnShift (через *shift.TransitionError), ErrUnavailable.
func (s *ShiftService) End(ctx context.Context, discordUserID string) (*model.ShiftSession, error) {
	defer s.lockUser(discordUserID)()

	sess, current := s.lookup(discordUserID)
	if _, err := shift.Transition(shift.StateOf(current), shift.CommandEnd); err != nil {
		return nil, err
	}

	endedAt := shift.ClampEnd(sess.StartedAt, s.now())
	if err := s.repo.End(ctx, sess.ID, endedAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Смена уже закрыта в БД
			s.setActive(discordUserID, nil)
			_, transErr := shift.Transition(shift.StateIdle, shift.CommandEnd)
			return nil, transErr
		}
		return nil, fmt.Errorf("%w: завершение смены: %w", ErrUnavailable, err)
	}

	s.setActive(discordUserID, nil)

	ended := copySession(sess)
	ended.EndedAt = &endedAt

	s.logger.Info("Смена завершена",
		slog.String("discord_user_id", discordUserID),
		slog.String("shift_id", sess.ID),
		slog.String("duration", ended.Duration(endedAt).String()),
	)
	return ended, nil
}

// Status возвращает открытую смену пользователя (false — смены нет).
func (s *ShiftService) Status(discordUserID string) (*model.ShiftSession, bool) {
	sess, ok := s.lookup(discordUserID)
	if !ok {
		return nil, false
	}
	return copySession(sess), true
}

// Elapsed возвращает длительность смены на текущий момент.
func (s *ShiftService) Elapsed(sess *model.ShiftSession) time.Duration {
	return sess.Duration(s.now())
}

// ActiveCount возвращает количество открытых смен.
func (s *ShiftService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// List возвращает страницу смен и общее количество по фильтру.
func (s *ShiftService) List(ctx context.Context, filter model.ShiftFilter, limit, offset int) ([]*model.ShiftSession, int, error) {
	items, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение смен: %w", err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт смен: %w", err)
	}
	return items, total, nil
}

// Summary возвращает сводку смен по пользователям.
func (s *ShiftService) Summary(ctx context.Context, since *time.Time) ([]*model.ShiftSummary, error) {
	summary, err := s.repo.Summary(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("сводка смен: %w", err)
	}
	return summary, nil
}

// resync перечитывает открытую смену пользователя из БД.
// Вызывается под блокировкой пользователя.
func (s *ShiftService) resync(ctx context.Context, discordUserID string) {
	sess, err := s.repo.GetOpen(ctx, discordUserID)
	if err != nil {
		s.logger.Warn("Не удалось перечитать открытую смену",
			slog.String("discord_user_id", discordUserID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.setActive(discordUserID, sess)
}

func copySession(sess *model.ShiftSession) *model.ShiftSession {
	c := *sess
	if sess.EndedAt != nil {
		t := *sess.EndedAt
		c.EndedAt = &t
	}
	return &c
}
