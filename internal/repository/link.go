package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

// LinkRepository — таблица links (связь Discord ↔ Roblox).
type LinkRepository interface {
	// Upsert создаёт или перезаписывает связь пользователя Discord.
	Upsert(ctx context.Context, link *model.LinkRecord) error
	// GetByDiscordID возвращает связь пользователя Discord.
	GetByDiscordID(ctx context.Context, discordUserID string) (*model.LinkRecord, error)
	// GetByRobloxID возвращает последнюю по времени связь с аккаунтом Roblox.
	GetByRobloxID(ctx context.Context, robloxUserID string) (*model.LinkRecord, error)
}

type linkRepo struct {
	db DBTX
}

// NewLinkRepository создаёт репозиторий связей.
func NewLinkRepository(db DBTX) LinkRepository {
	return &linkRepo{db: db}
}

const linkColumns = `discord_user_id, roblox_user_id, roblox_username, created_at, updated_at`

func (r *linkRepo) Upsert(ctx context.Context, link *model.LinkRecord) error {
	query := `
		INSERT INTO links (discord_user_id, roblox_user_id, roblox_username)
		VALUES ($1, $2, $3)
		ON CONFLICT (discord_user_id) DO UPDATE SET
			roblox_user_id = EXCLUDED.roblox_user_id,
			roblox_username = EXCLUDED.roblox_username,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		link.DiscordUserID, link.RobloxUserID, link.RobloxUsername,
	).Scan(&link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка upsert связи: %w", err)
	}
	return nil
}

func (r *linkRepo) GetByDiscordID(ctx context.Context, discordUserID string) (*model.LinkRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE discord_user_id = $1`, linkColumns)
	return r.getOne(ctx, query, discordUserID)
}

func (r *linkRepo) GetByRobloxID(ctx context.Context, robloxUserID string) (*model.LinkRecord, error) {
	// Один аккаунт Roblox может быть привязан несколькими пользователями Discord —
	// действует последняя привязка
	query := fmt.Sprintf(`
		SELECT %s FROM links
		WHERE roblox_user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`, linkColumns)
	return r.getOne(ctx, query, robloxUserID)
}

func (r *linkRepo) getOne(ctx context.Context, query string, arg string) (*model.LinkRecord, error) {
	l := &model.LinkRecord{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&l.DiscordUserID, &l.RobloxUserID, &l.RobloxUsername, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения связи: %w", err)
	}
	return l, nil
}
