// Пакет roblox — HTTP-клиент к публичным API Roblox.
// Операции: ResolveUsername (users API), GroupRole (groups API).
// Ответы кэшируются в LRU с TTL, отрицательные результаты не кэшируются.
package roblox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bigkaa/erlc-bridge/internal/cache"
	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

var (
	// ErrNotFound — пользователь не найден или не состоит в группе.
	ErrNotFound = errors.New("не найдено в Roblox")
	// ErrUnavailable — API Roblox недоступен, повторите позже.
	ErrUnavailable = errors.New("API Roblox недоступен")
)

// Config — параметры клиента.
type Config struct {
	UsersURL  string
	GroupsURL string
	Timeout   time.Duration
	// RequestsPerSecond — ограничение частоты запросов (<= 0 — без ограничения)
	RequestsPerSecond float64
	CacheSize         int
	CacheTTL          time.Duration
}

// Client — клиент к API Roblox.
type Client struct {
	usersURL  string
	groupsURL string

	httpClient *http.Client
	limiter    *rate.Limiter
	users      *cache.LRU[string, model.RobloxUser]
	groups     *cache.LRU[int64, []model.GroupRole]
	logger     *slog.Logger
}

// New создаёт клиент. httpClient может быть nil.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		usersURL:   strings.TrimRight(cfg.UsersURL, "/"),
		groupsURL:  strings.TrimRight(cfg.GroupsURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		users:      cache.New[string, model.RobloxUser]("roblox_users", cfg.CacheSize, cfg.CacheTTL),
		groups:     cache.New[int64, []model.GroupRole]("roblox_groups", cfg.CacheSize, cfg.CacheTTL),
		logger:     logger.With(slog.String("component", "roblox_client")),
	}
}

// --- Модели API ---

type usernamesRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

type usernamesResponse struct {
	Data []struct {
		ID                int64  `json:"id"`
		Name              string `json:"name"`
		DisplayName       string `json:"displayName"`
		RequestedUsername string `json:"requestedUsername"`
	} `json:"data"`
}

type groupRolesResponse struct {
	Data []struct {
		Group struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"group"`
		Role struct {
			Name string `json:"name"`
			Rank int    `json:"rank"`
		} `json:"role"`
	} `json:"data"`
}

// --- HTTP helpers ---

func (c *Client) doJSON(ctx context.Context, method, reqURL string, body, target any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: статус %d: %s", ErrUnavailable, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: декодирование ответа: %v", ErrUnavailable, err)
	}
	return nil
}

// --- Users API ---

// ResolveUsername возвращает пользователя Roblox по имени (без учёта регистра).
// Ошибки: ErrNotFound, ErrUnavailable.
func (c *Client) ResolveUsername(ctx context.Context, username string) (*model.RobloxUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrNotFound
	}

	key := strings.ToLower(username)
	if u, ok := c.users.Get(key); ok {
		return &u, nil
	}

	var resp usernamesResponse
	err := c.doJSON(ctx, http.MethodPost, c.usersURL+"/v1/usernames/users",
		usernamesRequest{Usernames: []string{username}}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, ErrNotFound
	}

	d := resp.Data[0]
	u := model.RobloxUser{ID: d.ID, Name: d.Name, DisplayName: d.DisplayName}
	c.users.Set(key, u)

	c.logger.Debug("Имя пользователя Roblox разрешено",
		slog.String("username", username),
		slog.Int64("user_id", u.ID),
	)
	return &u, nil
}

// --- Groups API ---

// GroupRoles возвращает роли пользователя во всех его группах.
func (c *Client) GroupRoles(ctx context.Context, userID int64) ([]model.GroupRole, error) {
	if roles, ok := c.groups.Get(userID); ok {
		return roles, nil
	}

	var resp groupRolesResponse
	reqURL := fmt.Sprintf("%s/v2/users/%d/groups/roles", c.groupsURL, userID)
	if err := c.doJSON(ctx, http.MethodGet, reqURL, nil, &resp); err != nil {
		return nil, err
	}

	roles := make([]model.GroupRole, 0, len(resp.Data))
	for _, d := range resp.Data {
		roles = append(roles, model.GroupRole{
			GroupID:   d.Group.ID,
			GroupName: d.Group.Name,
			RoleName:  d.Role.Name,
			Rank:      d.Role.Rank,
		})
	}
	c.groups.Set(userID, roles)
	return roles, nil
}

// GroupRole возвращает роль пользователя в группе groupID.
// ErrNotFound — пользователь не состоит в группе.
func (c *Client) GroupRole(ctx context.Context, userID, groupID int64) (*model.GroupRole, error) {
	roles, err := c.GroupRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if roles[i].GroupID == groupID {
			return &roles[i], nil
		}
	}
	return nil, ErrNotFound
}
