package config

import (
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"EB_DB_HOST":          "localhost",
		"EB_DB_NAME":          "erlc",
		"EB_DB_USER":          "erlc",
		"EB_DB_PASSWORD":      "secret",
		"EB_ERLC_SERVER_KEY":  "server-key",
		"EB_DISCORD_TOKEN":    "discord-token",
		"EB_DISCORD_GUILD_ID": "100200300",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.ERLCAPIURL != "https://api.policeroleplay.community/v1" {
		t.Errorf("ERLCAPIURL = %q", cfg.ERLCAPIURL)
	}
	if cfg.PollInterval != 15*time.Second {
		t.Errorf("PollInterval = %v, ожидается 15s", cfg.PollInterval)
	}
	if cfg.FirstFetchPolicy != FirstFetchSeed {
		t.Errorf("FirstFetchPolicy = %q, ожидается seed", cfg.FirstFetchPolicy)
	}
	if cfg.DefaultTeam != "Civilian" {
		t.Errorf("DefaultTeam = %q, ожидается Civilian", cfg.DefaultTeam)
	}
	if len(cfg.RoleTeamMap) != 0 {
		t.Errorf("RoleTeamMap = %v, ожидается пустой", cfg.RoleTeamMap)
	}
	if len(cfg.RestrictedTeams) != 0 {
		t.Errorf("RestrictedTeams = %v, ожидается пустой", cfg.RestrictedTeams)
	}
	if cfg.CommandTimeout != 10*time.Second {
		t.Errorf("CommandTimeout = %v, ожидается 10s", cfg.CommandTimeout)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	required := []string{
		"EB_DB_HOST", "EB_DB_NAME", "EB_DB_USER", "EB_DB_PASSWORD",
		"EB_ERLC_SERVER_KEY", "EB_DISCORD_TOKEN", "EB_DISCORD_GUILD_ID",
	}

	for _, key := range required {
		t.Run(key, func(t *testing.T) {
			envs := minimalEnvs()
			envs[key] = ""
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() без %s должен вернуть ошибку", key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("ошибка %q не упоминает %s", err.Error(), key)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"некорректный уровень логов", "EB_LOG_LEVEL", "verbose"},
		{"некорректный формат логов", "EB_LOG_FORMAT", "xml"},
		{"некорректный SSL-режим", "EB_DB_SSL_MODE", "maybe"},
		{"слишком короткий интервал опроса", "EB_POLL_INTERVAL", "1s"},
		{"слишком длинный интервал опроса", "EB_POLL_INTERVAL", "1h"},
		{"неизвестная политика первой выборки", "EB_FIRST_FETCH_POLICY", "sometimes"},
		{"битый JSON маппинга ролей", "EB_ROLE_TEAM_MAP", "{not json"},
		{"пустая команда в маппинге", "EB_ROLE_TEAM_MAP", `{"Police": ""}`},
		{"нулевой rate limit", "EB_ERLC_RATE_LIMIT", "0"},
		{"некорректная длительность", "EB_COMMAND_TIMEOUT", "ten seconds"},
		{"порт вне диапазона", "EB_PORT", "70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			if _, err := Load(); err == nil {
				t.Errorf("Load() с %s=%q должен вернуть ошибку", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_PollIntervalMustExceedTimeout(t *testing.T) {
	envs := minimalEnvs()
	envs["EB_POLL_INTERVAL"] = "10s"
	envs["EB_ERLC_TIMEOUT"] = "10s"
	setEnvs(t, envs)

	if _, err := Load(); err == nil {
		t.Fatal("интервал опроса, равный таймауту, должен отклоняться")
	}
}

func TestLoad_RoleTeamMap(t *testing.T) {
	envs := minimalEnvs()
	envs["EB_ROLE_TEAM_MAP"] = `{"Police": "Police", "123456": ["Sheriff", "Police"], "Fire": ["Fire"]}`
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	want := map[string][]string{
		"Police": {"Police"},
		"123456": {"Sheriff", "Police"},
		"Fire":   {"Fire"},
	}
	if !reflect.DeepEqual(cfg.RoleTeamMap, want) {
		t.Errorf("RoleTeamMap = %v, ожидается %v", cfg.RoleTeamMap, want)
	}

	// Ограниченные команды по умолчанию — уникальные команды из маппинга
	wantRestricted := []string{"Fire", "Police", "Sheriff"}
	if !reflect.DeepEqual(cfg.RestrictedTeams, wantRestricted) {
		t.Errorf("RestrictedTeams = %v, ожидается %v", cfg.RestrictedTeams, wantRestricted)
	}
}

func TestLoad_ExplicitRestrictedTeams(t *testing.T) {
	envs := minimalEnvs()
	envs["EB_ROLE_TEAM_MAP"] = `{"Police": "Police"}`
	envs["EB_RESTRICTED_TEAMS"] = "Police, DOT ,"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if !reflect.DeepEqual(cfg.RestrictedTeams, []string{"Police", "DOT"}) {
		t.Errorf("RestrictedTeams = %v", cfg.RestrictedTeams)
	}
}

func TestLoad_DefaultTeamCannotBeRestricted(t *testing.T) {
	envs := minimalEnvs()
	envs["EB_RESTRICTED_TEAMS"] = "Police,civilian"
	setEnvs(t, envs)

	if _, err := Load(); err == nil {
		t.Fatal("ожидалась ошибка: безопасная команда не может быть ограниченной")
	}
}

func TestLoad_TrimsTrailingSlash(t *testing.T) {
	envs := minimalEnvs()
	envs["EB_ERLC_API_URL"] = "http://localhost:9000/v1/"
	envs["EB_ROBLOX_USERS_URL"] = "http://localhost:9001/"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.ERLCAPIURL != "http://localhost:9000/v1" {
		t.Errorf("ERLCAPIURL = %q", cfg.ERLCAPIURL)
	}
	if cfg.RobloxUsersURL != "http://localhost:9001" {
		t.Errorf("RobloxUsersURL = %q", cfg.RobloxUsersURL)
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: 5433, DBName: "erlc", DBUser: "u", DBPassword: "p", DBSSLMode: "require",
	}
	want := "host=db port=5433 dbname=erlc user=u password=p sslmode=require"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", got, want)
	}
	if got := cfg.DatabaseURL(); strings.Contains(got, "p@") || got != "postgres://db:5433/erlc" {
		t.Errorf("DatabaseURL() = %q", got)
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{" a , b ,, c ", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		got := parseCSV(tt.input)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseCSV(%q) = %v, ожидается %v", tt.input, got, tt.want)
		}
	}
}
