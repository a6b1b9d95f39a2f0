// link.go — привязка пользователя Discord к аккаунту Roblox.
//
// Link:
//  1. Проверяет формат имени (3–20 символов: буквы, цифры, подчёркивание)
//  2. Разрешает имя через users API Roblox
//  3. Сохраняет связь (повторная привязка перезаписывает предыдущую)
//  4. Если задана группа Roblox — получает роль пользователя в ней
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
	"github.com/bigkaa/erlc-bridge/internal/repository"
	"github.com/bigkaa/erlc-bridge/internal/roblox"
)

var robloxUsernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// RobloxResolver — разрешение имени и ролей в группе.
// Реализуется *roblox.Client.
type RobloxResolver interface {
	ResolveUsername(ctx context.Context, username string) (*model.RobloxUser, error)
	GroupRole(ctx context.Context, userID, groupID int64) (*model.GroupRole, error)
}

// MemberInvalidator — сброс кэша ролей участника.
// Реализуется *discord.Client.
type MemberInvalidator interface {
	InvalidateMember(userID string)
}

// LinkResult — результат привязки.
type LinkResult struct {
	Link *model.LinkRecord
	// Relinked — у пользователя была связь с другим аккаунтом
	Relinked bool
	// GroupRole — роль в группе Roblox (nil, если группа не задана или пользователь не в ней)
	GroupRole *model.GroupRole
}

// LinkService — привязка аккаунтов.
type LinkService struct {
	resolver    RobloxResolver
	links       repository.LinkRepository
	invalidator MemberInvalidator
	groupID     int64
	logger      *slog.Logger
}

// NewLinkService создаёт сервис привязки. groupID <= 0 — группа не используется,
// invalidator может быть nil.
func NewLinkService(
	resolver RobloxResolver,
	links repository.LinkRepository,
	invalidator MemberInvalidator,
	groupID int64,
	logger *slog.Logger,
) *LinkService {
	return &LinkService{
		resolver:    resolver,
		links:       links,
		invalidator: invalidator,
		groupID:     groupID,
		logger:      logger.With(slog.String("component", "link_service")),
	}
}

// Link привязывает пользователя Discord к аккаунту Roblox username.
// Ошибки: ErrValidation, ErrNotFound, ErrUnavailable.
func (s *LinkService) Link(ctx context.Context, discordUserID, username string) (*LinkResult, error) {
	username = strings.TrimSpace(username)
	if !robloxUsernameRe.MatchString(username) {
		return nil, fmt.Errorf("%w: некорректное имя пользователя Roblox %q", ErrValidation, username)
	}

	user, err := s.resolver.ResolveUsername(ctx, username)
	if err != nil {
		if errors.Is(err, roblox.ErrNotFound) {
			return nil, fmt.Errorf("%w: пользователь Roblox %q", ErrNotFound, username)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	result := &LinkResult{}
	if prev, err := s.links.GetByDiscordID(ctx, discordUserID); err == nil {
		result.Relinked = prev.RobloxUserID != strconv.FormatInt(user.ID, 10)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	link := &model.LinkRecord{
		DiscordUserID:  discordUserID,
		RobloxUserID:   strconv.FormatInt(user.ID, 10),
		RobloxUsername: user.Name,
	}
	if err := s.links.Upsert(ctx, link); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	result.Link = link

	if s.invalidator != nil {
		s.invalidator.InvalidateMember(discordUserID)
	}

	s.logger.Info("Аккаунт привязан",
		slog.String("discord_user_id", discordUserID),
		slog.String("roblox_user_id", link.RobloxUserID),
		slog.String("roblox_username", link.RobloxUsername),
		slog.Bool("relinked", result.Relinked),
	)

	if s.groupID > 0 {
		role, err := s.resolver.GroupRole(ctx, user.ID, s.groupID)
		switch {
		case err == nil:
			result.GroupRole = role
		case errors.Is(err, roblox.ErrNotFound):
		default:
			// Роль в группе необязательна, привязка уже сохранена
			s.logger.Warn("Не удалось получить роль в группе Roblox",
				slog.Int64("roblox_user_id", user.ID),
				slog.Int64("group_id", s.groupID),
				slog.String("error", err.Error()),
			)
		}
	}
	return result, nil
}
