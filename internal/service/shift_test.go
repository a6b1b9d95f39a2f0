package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
	"github.com/bigkaa/erlc-bridge/internal/domain/shift"
	"github.com/bigkaa/erlc-bridge/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memShiftRepo — ShiftRepository в памяти с частичным уникальным индексом
// по открытым сменам и управляемыми ошибками.
type memShiftRepo struct {
	mu        sync.Mutex
	sessions  []*model.ShiftSession
	createErr error
	endErr    error
}

func (m *memShiftRepo) Create(_ context.Context, s *model.ShiftSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.sessions {
		if existing.DiscordUserID == s.DiscordUserID && existing.EndedAt == nil {
			return repository.ErrConflict
		}
	}
	m.sessions = append(m.sessions, copySession(s))
	return nil
}

func (m *memShiftRepo) End(_ context.Context, id string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.endErr != nil {
		return m.endErr
	}
	for _, s := range m.sessions {
		if s.ID == id && s.EndedAt == nil {
			end := endedAt
			if end.Before(s.StartedAt) {
				end = s.StartedAt
			}
			s.EndedAt = &end
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memShiftRepo) GetOpen(_ context.Context, discordUserID string) (*model.ShiftSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.DiscordUserID == discordUserID && s.EndedAt == nil {
			return copySession(s), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memShiftRepo) ListOpen(_ context.Context) ([]*model.ShiftSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.ShiftSession
	for _, s := range m.sessions {
		if s.EndedAt == nil {
			result = append(result, copySession(s))
		}
	}
	return result, nil
}

func (m *memShiftRepo) List(_ context.Context, filter model.ShiftFilter, limit, offset int) ([]*model.ShiftSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.ShiftSession
	for _, s := range m.sessions {
		if filter.DiscordUserID != "" && s.DiscordUserID != filter.DiscordUserID {
			continue
		}
		result = append(result, copySession(s))
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *memShiftRepo) Count(_ context.Context, filter model.ShiftFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if filter.DiscordUserID == "" || s.DiscordUserID == filter.DiscordUserID {
			n++
		}
	}
	return n, nil
}

func (m *memShiftRepo) Summary(_ context.Context, _ *time.Time) ([]*model.ShiftSummary, error) {
	return nil, nil
}

func (m *memShiftRepo) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.EndedAt == nil {
			n++
		}
	}
	return n
}

// newTestShiftService создаёт сервис с управляемыми часами.
func newTestShiftService(repo repository.ShiftRepository, now *time.Time) *ShiftService {
	svc := NewShiftService(repo, testLogger())
	svc.now = func() time.Time { return *now }
	return svc
}

func TestShiftService_StartEnd(t *testing.T) {
	ctx := context.Background()
	repo := &memShiftRepo{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestShiftService(repo, &now)

	started, err := svc.Start(ctx, "u1")
	if err != nil {
		t.Fatalf("Start() ошибка: %v", err)
	}
	if !started.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, ожидается %v", started.StartedAt, now)
	}
	if _, ok := svc.Status("u1"); !ok {
		t.Error("после Start пользователь должен быть на смене")
	}

	now = now.Add(90 * time.Minute)
	ended, err := svc.End(ctx, "u1")
	if err != nil {
		t.Fatalf("End() ошибка: %v", err)
	}
	if ended.EndedAt == nil {
		t.Fatal("EndedAt не задан")
	}
	if d := ended.Duration(*ended.EndedAt); d != 90*time.Minute {
		t.Errorf("длительность = %v, ожидается 1h30m", d)
	}
	if _, ok := svc.Status("u1"); ok {
		t.Error("после End пользователь не должен быть на смене")
	}
}

func TestShiftService_StartTwice(t *testing.T) {
	ctx := context.Background()
	repo := &memShiftRepo{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestShiftService(repo, &now)

	first, err := svc.Start(ctx, "u1")
	if err != nil {
		t.Fatalf("Start() ошибка: %v", err)
	}

	now = now.Add(time.Hour)
	_, err = svc.Start(ctx, "u1")
	if !errors.Is(err, shift.ErrAlreadyOnShift) {
		t.Fatalf("повторный Start() = %v, ожидается ErrAlreadyOnShift", err)
	}
	var te *shift.TransitionError
	if !errors.As(err, &te) || te.Code != shift.CodeAlreadyOnShift {
		t.Errorf("ожидается TransitionError с кодом %s, получено %v", shift.CodeAlreadyOnShift, err)
	}

	// Время начала открытой смены не изменилось
	sess, _ := svc.Status("u1")
	if !sess.StartedAt.Equal(first.StartedAt) {
		t.Errorf("StartedAt изменился: %v → %v", first.StartedAt, sess.StartedAt)
	}
	if repo.openCount() != 1 {
		t.Errorf("открытых смен в БД = %d, ожидается 1", repo.openCount())
	}
}

func TestShiftService_EndWithoutStart(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestShiftService(&memShiftRepo{}, &now)

	_, err := svc.End(context.Background(), "u1")
	if !errors.Is(err, shift.ErrNotOnShift) {
		t.Fatalf("End() = %v, ожидается ErrNotOnShift", err)
	}
}

func TestShiftService_SecondEnd(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	svc := newTestShiftService(&memShiftRepo{}, &now)

	if _, err := svc.Start(ctx, "u1"); err != nil {
		t.Fatalf("Start() ошибка: %v", err)
	}
	if _, err := svc.End(ctx, "u1"); err != nil {
		t.Fatalf("End() ошибка: %v", err)
	}
	if _, err := svc.End(ctx, "u1"); !errors.Is(err, shift.ErrNotOnShift) {
		t.Errorf("второй End() = %v, ожидается ErrNotOnShift", err)
	}
}

func TestShiftService_EndClampedToStart(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestShiftService(&memShiftRepo{}, &now)

	started, err := svc.Start(ctx, "u1")
	if err != nil {
		t.Fatalf("Start() ошибка: %v", err)
	}

	// Часы сдвинулись назад
	now = now.Add(-10 * time.Minute)
	ended, err := svc.End(ctx, "u1")
	if err != nil {
		t.Fatalf("End() ошибка: %v", err)
	}
	if ended.EndedAt.Before(started.StartedAt) {
		t.Errorf("EndedAt %v раньше StartedAt %v", ended.EndedAt, started.StartedAt)
	}
}

func TestShiftService_StoreFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	repo := &memShiftRepo{createErr: errors.New("connection refused")}
	now := time.Now().UTC()
	svc := newTestShiftService(repo, &now)

	_, err := svc.Start(ctx, "u1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Start() = %v, ожидается ErrUnavailable", err)
	}
	if _, ok := svc.Status("u1"); ok {
		t.Error("при ошибке БД смена не должна появиться в памяти")
	}

	repo.createErr = nil
	if _, err := svc.Start(ctx, "u1"); err != nil {
		t.Fatalf("Start() ошибка: %v", err)
	}
	repo.endErr = errors.New("connection refused")
	if _, err := svc.End(ctx, "u1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("End() = %v, ожидается ErrUnavailable", err)
	}
	if _, ok := svc.Status("u1"); !ok {
		t.Error("при ошибке БД смена должна остаться открытой")
	}
}

func TestShiftService_ConflictResyncs(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &memShiftRepo{sessions: []*model.ShiftSession{
		{ID: "s-other", DiscordUserID: "u1", StartedAt: now.Add(-time.Hour)},
	}}
	svc := newTestShiftService(repo, &now)

	// Память пуста, в БД открытая смена — индекс отклоняет вставку
	_, err := svc.Start(ctx, "u1")
	if !errors.Is(err, shift.ErrAlreadyOnShift) {
		t.Fatalf("Start() = %v, ожидается ErrAlreadyOnShift", err)
	}
	sess, ok := svc.Status("u1")
	if !ok || sess.ID != "s-other" {
		t.Errorf("после конфликта ожидается смена s-other в памяти, получено %+v", sess)
	}
}

func TestShiftService_LoadActive(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := now.Add(-time.Hour)
	repo := &memShiftRepo{sessions: []*model.ShiftSession{
		{ID: "s1", DiscordUserID: "u1", StartedAt: now.Add(-2 * time.Hour)},
		{ID: "s2", DiscordUserID: "u2", StartedAt: now.Add(-3 * time.Hour), EndedAt: &ended},
	}}
	svc := newTestShiftService(repo, &now)

	if err := svc.LoadActive(ctx); err != nil {
		t.Fatalf("LoadActive() ошибка: %v", err)
	}
	if svc.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, ожидается 1", svc.ActiveCount())
	}
	sess, ok := svc.Status("u1")
	if !ok {
		t.Fatal("смена u1 не восстановлена")
	}
	if got := svc.Elapsed(sess); got != 2*time.Hour {
		t.Errorf("Elapsed() = %v, ожидается 2h", got)
	}

	// Восстановленную смену можно завершить
	if _, err := svc.End(ctx, "u1"); err != nil {
		t.Errorf("End() восстановленной смены ошибка: %v", err)
	}
}

func TestShiftService_List(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	svc := newTestShiftService(&memShiftRepo{}, &now)

	for _, u := range []string{"u1", "u2", "u3"} {
		if _, err := svc.Start(ctx, u); err != nil {
			t.Fatalf("Start(%s) ошибка: %v", u, err)
		}
	}

	items, total, err := svc.List(ctx, model.ShiftFilter{}, 2, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(items) != 2 || total != 3 {
		t.Errorf("List() = %d записей, total %d; ожидается 2 и 3", len(items), total)
	}
}

// slowShiftRepo задерживает Create для одного пользователя до закрытия release.
type slowShiftRepo struct {
	*memShiftRepo
	slowUser string
	entered  chan struct{}
	release  chan struct{}
}

func (r *slowShiftRepo) Create(ctx context.Context, s *model.ShiftSession) error {
	if s.DiscordUserID == r.slowUser {
		r.entered <- struct{}{}
		<-r.release
	}
	return r.memShiftRepo.Create(ctx, s)
}

func TestShiftService_SlowStoreBlocksOnlySameUser(t *testing.T) {
	ctx := context.Background()
	repo := &slowShiftRepo{
		memShiftRepo: &memShiftRepo{},
		slowUser:     "u1",
		entered:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestShiftService(repo, &now)

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Start(ctx, "u1")
		firstDone <- err
	}()
	<-repo.entered

	// Другой пользователь и статус не ждут медленного запроса u1
	otherDone := make(chan error, 1)
	go func() {
		if _, ok := svc.Status("u1"); ok {
			otherDone <- errors.New("u1 на смене до завершения записи в БД")
			return
		}
		_, err := svc.Start(ctx, "u2")
		otherDone <- err
	}()
	select {
	case err := <-otherDone:
		if err != nil {
			t.Fatalf("u2: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("команды u2 заблокированы запросом u1")
	}

	// Повторный Start u1 ждёт первого и получает ErrAlreadyOnShift
	secondDone := make(chan error, 1)
	go func() {
		_, err := svc.Start(ctx, "u1")
		secondDone <- err
	}()
	select {
	case err := <-secondDone:
		t.Fatalf("второй Start u1 завершился до первого: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(repo.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("первый Start u1: %v", err)
	}
	if err := <-secondDone; !errors.Is(err, shift.ErrAlreadyOnShift) {
		t.Errorf("второй Start u1 = %v, ожидается ErrAlreadyOnShift", err)
	}
	if n := repo.openCount(); n != 2 {
		t.Errorf("открытых смен в БД = %d, ожидается 2", n)
	}
}
