// Пакет config — загрузка и валидация конфигурации erlc-bridge
// из переменных окружения. Конфигурация загружается один раз при старте
// и после этого не изменяется.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Политики первой выборки лог-потока (когда watermark ещё нет).
const (
	// FirstFetchSeed — запомнить watermark по первой выборке, ничего не отправлять.
	FirstFetchSeed = "seed"
	// FirstFetchReplay — считать все записи первой выборки новыми.
	FirstFetchReplay = "replay"
)

// Config содержит все параметры конфигурации erlc-bridge.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (dashboard API, health, metrics)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- ER:LC API ---

	// Базовый URL PRC API (без trailing slash)
	ERLCAPIURL string
	// Ключ сервера (заголовок Server-Key)
	ERLCServerKey string
	// Таймаут одного запроса к API
	ERLCTimeout time.Duration
	// Ограничение частоты запросов (запросов в секунду)
	ERLCRateLimit float64

	// --- Опрос ---

	// Интервал цикла опроса
	PollInterval time.Duration
	// Политика первой выборки: seed или replay
	FirstFetchPolicy string

	// --- Discord ---

	DiscordToken   string
	DiscordGuildID string
	// Таймаут одного запроса к Discord REST API
	DiscordTimeout time.Duration

	// Каналы уведомлений (пустое значение — уведомления отключены)
	JoinLogChannelID  string
	LeaveLogChannelID string
	KillLogChannelID  string
	ModLogChannelID   string

	// --- Политика команд ---

	// Роль Discord (ID или имя) → разрешённые команды сервера
	RoleTeamMap map[string][]string
	// Команды, требующие роли
	RestrictedTeams []string
	// Безопасная команда, куда переводится нарушитель
	DefaultTeam string

	// --- Roblox ---

	RobloxUsersURL  string
	RobloxGroupsURL string
	// ID группы Roblox (0 — не используется)
	RobloxGroupID int64
	// Лимит запросов к Roblox в секунду
	RobloxRateLimit float64

	// --- Кэши ---

	CacheSize        int
	RoleCacheTTL     time.Duration
	IdentityCacheTTL time.Duration

	// --- Команды пользователей ---

	// Дедлайн обработки одной команды
	CommandTimeout time.Duration

	// --- JWT для dashboard (опционально) ---

	DashboardJWKSURL   string
	DashboardJWTIssuer string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// EB_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("EB_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("EB_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("EB_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("EB_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("EB_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("EB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("EB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("EB_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("EB_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("EB_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("EB_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("EB_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("EB_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("EB_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("EB_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- ER:LC API ---

	cfg.ERLCAPIURL = strings.TrimRight(getEnvDefault("EB_ERLC_API_URL", "https://api.policeroleplay.community/v1"), "/")
	if _, err := url.ParseRequestURI(cfg.ERLCAPIURL); err != nil {
		return nil, fmt.Errorf("EB_ERLC_API_URL: некорректный URL %q", cfg.ERLCAPIURL)
	}
	if cfg.ERLCServerKey, err = getEnvRequired("EB_ERLC_SERVER_KEY"); err != nil {
		return nil, err
	}
	cfg.ERLCTimeout, err = getEnvDuration("EB_ERLC_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EB_ERLC_TIMEOUT: %w", err)
	}
	cfg.ERLCRateLimit, err = getEnvFloat("EB_ERLC_RATE_LIMIT", 2)
	if err != nil {
		return nil, fmt.Errorf("EB_ERLC_RATE_LIMIT: %w", err)
	}
	if cfg.ERLCRateLimit <= 0 {
		return nil, fmt.Errorf("EB_ERLC_RATE_LIMIT: значение должно быть больше 0")
	}

	// --- Опрос ---

	// EB_POLL_INTERVAL — интервал цикла опроса (по умолчанию 15s, диапазон 5s-5m)
	cfg.PollInterval, err = getEnvDuration("EB_POLL_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EB_POLL_INTERVAL: %w", err)
	}
	if cfg.PollInterval < 5*time.Second || cfg.PollInterval > 5*time.Minute {
		return nil, fmt.Errorf("EB_POLL_INTERVAL: значение %s вне допустимого диапазона 5s-5m", cfg.PollInterval)
	}
	if cfg.PollInterval <= cfg.ERLCTimeout {
		return nil, fmt.Errorf("EB_POLL_INTERVAL: значение %s должно превышать EB_ERLC_TIMEOUT (%s)", cfg.PollInterval, cfg.ERLCTimeout)
	}

	cfg.FirstFetchPolicy = strings.ToLower(getEnvDefault("EB_FIRST_FETCH_POLICY", FirstFetchSeed))
	if cfg.FirstFetchPolicy != FirstFetchSeed && cfg.FirstFetchPolicy != FirstFetchReplay {
		return nil, fmt.Errorf("EB_FIRST_FETCH_POLICY: недопустимое значение %q, допустимые: seed, replay", cfg.FirstFetchPolicy)
	}

	// --- Discord ---

	if cfg.DiscordToken, err = getEnvRequired("EB_DISCORD_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.DiscordGuildID, err = getEnvRequired("EB_DISCORD_GUILD_ID"); err != nil {
		return nil, err
	}
	cfg.DiscordTimeout, err = getEnvDuration("EB_DISCORD_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EB_DISCORD_TIMEOUT: %w", err)
	}

	cfg.JoinLogChannelID = getEnvDefault("EB_JOIN_LOG_CHANNEL_ID", "")
	cfg.LeaveLogChannelID = getEnvDefault("EB_LEAVE_LOG_CHANNEL_ID", "")
	cfg.KillLogChannelID = getEnvDefault("EB_KILL_LOG_CHANNEL_ID", "")
	cfg.ModLogChannelID = getEnvDefault("EB_MOD_LOG_CHANNEL_ID", "")

	// --- Политика команд ---

	cfg.RoleTeamMap, err = parseRoleTeamMap(getEnvDefault("EB_ROLE_TEAM_MAP", "{}"))
	if err != nil {
		return nil, fmt.Errorf("EB_ROLE_TEAM_MAP: %w", err)
	}

	// EB_RESTRICTED_TEAMS — по умолчанию все команды, упомянутые в EB_ROLE_TEAM_MAP
	cfg.RestrictedTeams = parseCSV(getEnvDefault("EB_RESTRICTED_TEAMS", ""))
	if len(cfg.RestrictedTeams) == 0 {
		cfg.RestrictedTeams = mappedTeams(cfg.RoleTeamMap)
	}

	cfg.DefaultTeam = getEnvDefault("EB_DEFAULT_TEAM", "Civilian")
	for _, team := range cfg.RestrictedTeams {
		if strings.EqualFold(team, cfg.DefaultTeam) {
			return nil, fmt.Errorf("EB_DEFAULT_TEAM: команда %q не может быть ограниченной", cfg.DefaultTeam)
		}
	}

	// --- Roblox ---

	cfg.RobloxUsersURL = strings.TrimRight(getEnvDefault("EB_ROBLOX_USERS_URL", "https://users.roblox.com"), "/")
	cfg.RobloxGroupsURL = strings.TrimRight(getEnvDefault("EB_ROBLOX_GROUPS_URL", "https://groups.roblox.com"), "/")
	groupID, err := getEnvInt("EB_ROBLOX_GROUP_ID", 0)
	if err != nil {
		return nil, fmt.Errorf("EB_ROBLOX_GROUP_ID: %w", err)
	}
	cfg.RobloxGroupID = int64(groupID)
	cfg.RobloxRateLimit, err = getEnvFloat("EB_ROBLOX_RATE_LIMIT", 5)
	if err != nil {
		return nil, fmt.Errorf("EB_ROBLOX_RATE_LIMIT: %w", err)
	}
	if cfg.RobloxRateLimit <= 0 {
		return nil, fmt.Errorf("EB_ROBLOX_RATE_LIMIT: значение должно быть больше 0")
	}

	// --- Кэши ---

	cfg.CacheSize, err = getEnvInt("EB_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("EB_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("EB_CACHE_SIZE: значение должно быть больше 0")
	}
	cfg.RoleCacheTTL, err = getEnvDuration("EB_ROLE_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("EB_ROLE_CACHE_TTL: %w", err)
	}
	cfg.IdentityCacheTTL, err = getEnvDuration("EB_IDENTITY_CACHE_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("EB_IDENTITY_CACHE_TTL: %w", err)
	}

	cfg.CommandTimeout, err = getEnvDuration("EB_COMMAND_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EB_COMMAND_TIMEOUT: %w", err)
	}

	// --- JWT для dashboard ---

	cfg.DashboardJWKSURL = getEnvDefault("EB_DASHBOARD_JWKS_URL", "")
	cfg.DashboardJWTIssuer = getEnvDefault("EB_DASHBOARD_JWT_ISSUER", "")

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("EB_DEPHEALTH_GROUP", "erlc-bridge")
	cfg.DephealthCheckInterval, err = getEnvDuration("EB_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EB_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("EB_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EB_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseRoleTeamMap разбирает JSON-маппинг роль → команда.
// Значение может быть строкой ("Police") или массивом (["Police", "Sheriff"]).
func parseRoleTeamMap(s string) (map[string][]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("некорректный JSON: %w", err)
	}

	result := make(map[string][]string, len(raw))
	for role, value := range raw {
		role = strings.TrimSpace(role)
		if role == "" {
			return nil, fmt.Errorf("пустое имя роли")
		}

		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			if single == "" {
				return nil, fmt.Errorf("роль %q: пустая команда", role)
			}
			result[role] = []string{single}
			continue
		}

		var list []string
		if err := json.Unmarshal(value, &list); err != nil {
			return nil, fmt.Errorf("роль %q: ожидается строка или массив строк", role)
		}
		teams := make([]string, 0, len(list))
		for _, t := range list {
			if t = strings.TrimSpace(t); t != "" {
				teams = append(teams, t)
			}
		}
		if len(teams) == 0 {
			return nil, fmt.Errorf("роль %q: пустой список команд", role)
		}
		result[role] = teams
	}
	return result, nil
}

// mappedTeams возвращает уникальные команды из маппинга (без учёта регистра).
func mappedTeams(m map[string][]string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, teams := range m {
		for _, t := range teams {
			key := strings.ToLower(t)
			if seen[key] {
				continue
			}
			seen[key] = true
			result = append(result, t)
		}
	}
	sort.Strings(result)
	return result
}
