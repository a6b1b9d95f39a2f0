package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

// ShiftRepository — таблица shift_sessions.
type ShiftRepository interface {
	// Create создаёт открытую смену. ErrConflict — у пользователя уже есть открытая смена.
	Create(ctx context.Context, s *model.ShiftSession) error
	// End закрывает смену id. ErrNotFound — смена не найдена или уже закрыта.
	End(ctx context.Context, id string, endedAt time.Time) error
	// GetOpen возвращает открытую смену пользователя.
	GetOpen(ctx context.Context, discordUserID string) (*model.ShiftSession, error)
	// ListOpen возвращает все открытые смены (восстановление состояния при старте).
	ListOpen(ctx context.Context) ([]*model.ShiftSession, error)
	// List возвращает смены с фильтрацией, новые первыми.
	List(ctx context.Context, filter model.ShiftFilter, limit, offset int) ([]*model.ShiftSession, error)
	// Count возвращает количество смен по фильтру.
	Count(ctx context.Context, filter model.ShiftFilter) (int, error)
	// Summary возвращает агрегаты по пользователям (начатые не раньше since, если задан).
	Summary(ctx context.Context, since *time.Time) ([]*model.ShiftSummary, error)
}

type shiftRepo struct {
	db DBTX
}

// NewShiftRepository создаёт репозиторий смен.
func NewShiftRepository(db DBTX) ShiftRepository {
	return &shiftRepo{db: db}
}

const shiftColumns = `id, discord_user_id, started_at, ended_at`

func (r *shiftRepo) Create(ctx context.Context, s *model.ShiftSession) error {
	query := `
		INSERT INTO shift_sessions (id, discord_user_id, started_at)
		VALUES ($1, $2, $3)`

	if _, err := r.db.Exec(ctx, query, s.ID, s.DiscordUserID, s.StartedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания смены: %w", err)
	}
	return nil
}

func (r *shiftRepo) End(ctx context.Context, id string, endedAt time.Time) error {
	// GREATEST — конец не раньше начала даже при сдвиге часов
	query := `
		UPDATE shift_sessions
		SET ended_at = GREATEST($2, started_at)
		WHERE id = $1 AND ended_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, endedAt)
	if err != nil {
		return fmt.Errorf("ошибка завершения смены: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *shiftRepo) GetOpen(ctx context.Context, discordUserID string) (*model.ShiftSession, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM shift_sessions
		WHERE discord_user_id = $1 AND ended_at IS NULL`, shiftColumns)

	s := &model.ShiftSession{}
	err := r.db.QueryRow(ctx, query, discordUserID).Scan(&s.ID, &s.DiscordUserID, &s.StartedAt, &s.EndedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения открытой смены: %w", err)
	}
	return s, nil
}

func (r *shiftRepo) ListOpen(ctx context.Context) ([]*model.ShiftSession, error) {
	active := true
	return r.list(ctx, model.ShiftFilter{Active: &active}, "", nil)
}

func (r *shiftRepo) List(ctx context.Context, filter model.ShiftFilter, limit, offset int) ([]*model.ShiftSession, error) {
	return r.list(ctx, filter, "LIMIT $%d OFFSET $%d", []any{limit, offset})
}

// list выполняет выборку смен; paging — шаблон LIMIT/OFFSET с номерами параметров.
func (r *shiftRepo) list(ctx context.Context, filter model.ShiftFilter, paging string, pagingArgs []any) ([]*model.ShiftSession, error) {
	where, args := buildShiftWhere(filter, 1)
	if paging != "" {
		argNum := len(args) + 1
		paging = fmt.Sprintf(paging, argNum, argNum+1)
		args = append(args, pagingArgs...)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM shift_sessions
		%s
		ORDER BY started_at DESC
		%s`, shiftColumns, where, paging)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка смен: %w", err)
	}
	defer rows.Close()

	var result []*model.ShiftSession
	for rows.Next() {
		s := &model.ShiftSession{}
		if err := rows.Scan(&s.ID, &s.DiscordUserID, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования смены: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *shiftRepo) Count(ctx context.Context, filter model.ShiftFilter) (int, error) {
	where, args := buildShiftWhere(filter, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM shift_sessions %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта смен: %w", err)
	}
	return count, nil
}

func (r *shiftRepo) Summary(ctx context.Context, since *time.Time) ([]*model.ShiftSummary, error) {
	where, args := buildShiftWhere(model.ShiftFilter{Since: since}, 1)
	query := fmt.Sprintf(`
		SELECT discord_user_id,
			COUNT(*),
			COALESCE(SUM(EXTRACT(EPOCH FROM (ended_at - started_at))) FILTER (WHERE ended_at IS NOT NULL), 0)::float8,
			BOOL_OR(ended_at IS NULL),
			MAX(started_at)
		FROM shift_sessions
		%s
		GROUP BY discord_user_id
		ORDER BY 3 DESC, discord_user_id`, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сводки смен: %w", err)
	}
	defer rows.Close()

	var result []*model.ShiftSummary
	for rows.Next() {
		var (
			s       model.ShiftSummary
			seconds float64
		)
		if err := rows.Scan(&s.DiscordUserID, &s.Sessions, &seconds, &s.OnShift, &s.LastStartedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сводки смен: %w", err)
		}
		s.TotalDuration = time.Duration(seconds * float64(time.Second))
		result = append(result, &s)
	}
	return result, rows.Err()
}

// buildShiftWhere строит WHERE-условие и аргументы для фильтрации смен.
func buildShiftWhere(filter model.ShiftFilter, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filter.DiscordUserID != "" {
		conditions = append(conditions, fmt.Sprintf("discord_user_id = $%d", argNum))
		args = append(args, filter.DiscordUserID)
		argNum++
	}
	if filter.Active != nil {
		if *filter.Active {
			conditions = append(conditions, "ended_at IS NULL")
		} else {
			conditions = append(conditions, "ended_at IS NOT NULL")
		}
	}
	if filter.Since != nil {
		conditions = append(conditions, fmt.Sprintf("started_at >= $%d", argNum))
		args = append(args, *filter.Since)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
