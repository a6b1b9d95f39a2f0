// client.go — HTTP-клиент к PRC API.
// Авторизация заголовком Server-Key, ограничение частоты запросов (x/time/rate).
// Операции: Players, JoinLogs, KillLogs, RunCommand, Snapshot.
// API не поддерживает курсоры: журналы возвращаются целиком, фильтрация — на стороне вызывающего.
package erlc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

// maxErrorBody — сколько байт тела ответа сохранять в ошибке.
const maxErrorBody = 512

// Client — HTTP-клиент к PRC API. Состояния, кроме лимитера, не хранит.
type Client struct {
	baseURL   string // Базовый URL API (без trailing slash)
	serverKey string

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New создаёт клиент к PRC API.
// baseURL — например, https://api.policeroleplay.community/v1.
// serverKey — ключ приватного сервера (заголовок Server-Key).
// requestsPerSecond — ограничение частоты запросов (<= 0 — без ограничения).
// httpClient может быть nil — будет создан клиент с timeout.
func New(baseURL, serverKey string, timeout time.Duration, requestsPerSecond float64, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serverKey:  serverKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With(slog.String("component", "erlc_client")),
	}
}

// --- HTTP helpers ---

// do выполняет запрос с ключом сервера после ожидания лимитера.
func (c *Client) do(ctx context.Context, op, method, path string, body any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: KindTransient, Op: op, Err: err}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Server-Key", c.serverKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Op: op, Err: err}
	}
	return resp, nil
}

// decodeResponse проверяет статус и декодирует JSON в target.
func decodeResponse(op string, resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &FetchError{
			Kind:       kindForStatus(resp.StatusCode),
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return &FetchError{
				Kind: KindTransient,
				Op:   op,
				Err:  fmt.Errorf("декодирование ответа: %w", err),
			}
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, op, path string, target any) error {
	resp, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeResponse(op, resp, target)
}

// --- Server API ---

// Players возвращает текущий список игроков.
func (c *Client) Players(ctx context.Context) ([]model.RosterEntry, error) {
	var dtos []playerDTO
	if err := c.get(ctx, "players", "/server/players", &dtos); err != nil {
		return nil, err
	}

	result := make([]model.RosterEntry, 0, len(dtos))
	for _, d := range dtos {
		entry := d.toRosterEntry()
		if entry.PlayerID == "" {
			c.logger.Warn("Игрок без user ID в ответе API пропущен",
				slog.String("player", d.Player),
			)
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

// JoinLogs возвращает журнал входов и выходов.
func (c *Client) JoinLogs(ctx context.Context) ([]model.LogEntry, error) {
	var dtos []joinLogDTO
	if err := c.get(ctx, "joinlogs", "/server/joinlogs", &dtos); err != nil {
		return nil, err
	}

	result := make([]model.LogEntry, 0, len(dtos))
	for _, d := range dtos {
		result = append(result, d.toLogEntry())
	}
	return result, nil
}

// KillLogs возвращает журнал убийств.
func (c *Client) KillLogs(ctx context.Context) ([]model.LogEntry, error) {
	var dtos []killLogDTO
	if err := c.get(ctx, "killlogs", "/server/killlogs", &dtos); err != nil {
		return nil, err
	}

	result := make([]model.LogEntry, 0, len(dtos))
	for _, d := range dtos {
		result = append(result, d.toLogEntry())
	}
	return result, nil
}

// Logs возвращает журнал указанного потока.
func (c *Client) Logs(ctx context.Context, stream model.StreamKind) ([]model.LogEntry, error) {
	switch stream {
	case model.StreamJoin:
		return c.JoinLogs(ctx)
	case model.StreamKill:
		return c.KillLogs(ctx)
	default:
		return nil, fmt.Errorf("неизвестный поток: %q", stream)
	}
}

// RunCommand выполняет команду сервера (например, ":team Name Civilian").
func (c *Client) RunCommand(ctx context.Context, command string) error {
	resp, err := c.do(ctx, "command", http.MethodPost, "/server/command", commandRequest{Command: command})
	if err != nil {
		return err
	}
	if err := decodeResponse("command", resp, nil); err != nil {
		return err
	}

	c.logger.Debug("Команда сервера выполнена", slog.String("command", command))
	return nil
}

// --- Snapshot ---

// Snapshot — результат одновременной выборки игроков и журналов.
// Ошибка одного набора не отменяет остальные.
type Snapshot struct {
	Roster    []model.RosterEntry
	RosterErr error
	Logs      map[model.StreamKind][]model.LogEntry
	LogErrs   map[model.StreamKind]error
}

// AuthError возвращает первую ошибку авторизации среди наборов (или nil).
func (s *Snapshot) AuthError() error {
	if IsAuth(s.RosterErr) {
		return s.RosterErr
	}
	for _, stream := range model.Streams {
		if err := s.LogErrs[stream]; IsAuth(err) {
			return err
		}
	}
	return nil
}

// Snapshot выбирает список игроков и все журналы параллельно.
func (c *Client) Snapshot(ctx context.Context) *Snapshot {
	snap := &Snapshot{
		Logs:    make(map[model.StreamKind][]model.LogEntry, len(model.Streams)),
		LogErrs: make(map[model.StreamKind]error, len(model.Streams)),
	}

	logs := make([][]model.LogEntry, len(model.Streams))
	logErrs := make([]error, len(model.Streams))

	// Ошибки собираются по наборам, поэтому горутины всегда возвращают nil
	var g errgroup.Group
	g.Go(func() error {
		snap.Roster, snap.RosterErr = c.Players(ctx)
		return nil
	})
	for i, stream := range model.Streams {
		g.Go(func() error {
			logs[i], logErrs[i] = c.Logs(ctx, stream)
			return nil
		})
	}
	_ = g.Wait()

	for i, stream := range model.Streams {
		if logErrs[i] != nil {
			snap.LogErrs[stream] = logErrs[i]
			continue
		}
		snap.Logs[stream] = logs[i]
	}
	return snap
}
