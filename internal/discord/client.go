// Пакет discord — доступ к Discord через discordgo.
// Отправка сообщений в каналы, роли участников гильдии (с LRU-кэшем),
// регистрация и обработка slash-команд.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/bigkaa/erlc-bridge/internal/cache"
)

// session — используемое подмножество *discordgo.Session.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
}

// Config — параметры клиента.
type Config struct {
	Token   string
	GuildID string
	// Timeout — ограничение на один вызов API
	Timeout   time.Duration
	CacheSize int
	// RoleTTL — время жизни кэша ролей участников
	RoleTTL time.Duration
}

// Client — клиент Discord: сообщения и роли участников.
type Client struct {
	dg      *discordgo.Session
	api     session
	guildID string
	timeout time.Duration

	members    *cache.LRU[string, []string]
	absent     *cache.LRU[string, struct{}]
	guildRoles *cache.LRU[string, map[string]string]
	logger     *slog.Logger
}

// New создаёт клиент. Соединение с gateway открывается в Bot.Open.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("создание сессии Discord: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds
	dg.Client = &http.Client{Timeout: cfg.Timeout}

	c := newClient(dg, cfg, logger)
	c.dg = dg
	return c, nil
}

// absentMemberTTL — верхняя граница TTL для участников вне гильдии.
const absentMemberTTL = time.Minute

func newClient(api session, cfg Config, logger *slog.Logger) *Client {
	absentTTL := absentMemberTTL
	if cfg.RoleTTL > 0 && cfg.RoleTTL < absentTTL {
		absentTTL = cfg.RoleTTL
	}
	return &Client{
		api:        api,
		guildID:    cfg.GuildID,
		timeout:    cfg.Timeout,
		members:    cache.New[string, []string]("discord_member_roles", cfg.CacheSize, cfg.RoleTTL),
		absent:     cache.New[string, struct{}]("discord_member_absent", cfg.CacheSize, absentTTL),
		guildRoles: cache.New[string, map[string]string]("discord_guild_roles", 1, cfg.RoleTTL),
		logger:     logger.With(slog.String("component", "discord_client")),
	}
}

// GatewayURL — публичный endpoint Discord API без авторизации (мониторинг доступности).
var GatewayURL = discordgo.EndpointGateway

// GuildID возвращает ID гильдии.
func (c *Client) GuildID() string {
	return c.guildID
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Send отправляет текст в канал. Пустой channelID — назначение не настроено, no-op.
// Ошибки классифицированы: IsTransient(err) — стоит повторить.
func (c *Client) Send(ctx context.Context, channelID, text string) error {
	if channelID == "" {
		return nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.api.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return classify("send", err)
	}
	return nil
}

// MemberRoles возвращает роли участника гильдии: ID ролей и их имена.
// Маппинг ролей может ссылаться на роль по ID или по имени.
// ErrMemberNotFound — пользователь не состоит в гильдии.
func (c *Client) MemberRoles(ctx context.Context, userID string) ([]string, error) {
	if roles, ok := c.members.Get(userID); ok {
		return roles, nil
	}
	if _, ok := c.absent.Get(userID); ok {
		return nil, ErrMemberNotFound
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	member, err := c.api.GuildMember(c.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
			c.absent.Set(userID, struct{}{})
			return nil, ErrMemberNotFound
		}
		return nil, classify("guild member", err)
	}

	names, err := c.roleNames(ctx)
	if err != nil {
		return nil, err
	}

	roles := make([]string, 0, 2*len(member.Roles))
	for _, id := range member.Roles {
		roles = append(roles, id)
		if name, ok := names[id]; ok {
			roles = append(roles, name)
		}
	}
	sort.Strings(roles)

	c.members.Set(userID, roles)
	return roles, nil
}

// roleNames возвращает ID → имя для ролей гильдии.
func (c *Client) roleNames(ctx context.Context) (map[string]string, error) {
	if names, ok := c.guildRoles.Get(c.guildID); ok {
		return names, nil
	}

	roles, err := c.api.GuildRoles(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("guild roles", err)
	}

	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}
	c.guildRoles.Set(c.guildID, names)
	return names, nil
}

// InvalidateMember сбрасывает кэш ролей участника.
func (c *Client) InvalidateMember(userID string) {
	c.members.Delete(userID)
	c.absent.Delete(userID)
}
