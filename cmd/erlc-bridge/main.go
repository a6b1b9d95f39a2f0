// Точка входа erlc-bridge — мост между приватным сервером ER:LC и Discord.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт клиенты PRC API, Roblox и Discord, запускает бота slash-команд,
// цикл опроса игрового сервера, topologymetrics и HTTP-сервер dashboard.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/erlc-bridge/internal/api/handlers"
	"github.com/bigkaa/erlc-bridge/internal/api/middleware"
	"github.com/bigkaa/erlc-bridge/internal/config"
	"github.com/bigkaa/erlc-bridge/internal/database"
	"github.com/bigkaa/erlc-bridge/internal/discord"
	"github.com/bigkaa/erlc-bridge/internal/domain/policy"
	"github.com/bigkaa/erlc-bridge/internal/domain/watermark"
	"github.com/bigkaa/erlc-bridge/internal/erlc"
	"github.com/bigkaa/erlc-bridge/internal/repository"
	"github.com/bigkaa/erlc-bridge/internal/roblox"
	"github.com/bigkaa/erlc-bridge/internal/server"
	"github.com/bigkaa/erlc-bridge/internal/service"
)

func main() {
	os.Exit(run())
}

// run возвращает код завершения процесса. Отдельная функция нужна,
// чтобы defer-ы отработали до os.Exit.
func run() int {
	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		return 1
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("erlc-bridge запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("poll_interval", cfg.PollInterval.String()),
	)

	if len(cfg.RoleTeamMap) == 0 {
		logger.Warn("EB_ROLE_TEAM_MAP пуст: ограниченные команды недоступны никому",
			slog.Any("restricted_teams", cfg.RestrictedTeams),
		)
	}

	// 3. Миграции и пул соединений
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		return 1
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		return 1
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт через тот же пул.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 4. Репозитории
	linkRepo := repository.NewLinkRepository(pool)
	shiftRepo := repository.NewShiftRepository(pool)
	watermarks := watermark.NewStore(repository.NewWatermarkRepository(pool))
	if err := watermarks.Load(ctx); err != nil {
		logger.Error("Ошибка загрузки watermark", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("Watermark загружены", slog.Any("watermarks", watermarks.Snapshot()))

	// 5. Внешние клиенты
	erlcClient := erlc.New(cfg.ERLCAPIURL, cfg.ERLCServerKey, cfg.ERLCTimeout, cfg.ERLCRateLimit, nil, logger)
	robloxClient := roblox.New(roblox.Config{
		UsersURL:          cfg.RobloxUsersURL,
		GroupsURL:         cfg.RobloxGroupsURL,
		Timeout:           cfg.ERLCTimeout,
		RequestsPerSecond: cfg.RobloxRateLimit,
		CacheSize:         cfg.CacheSize,
		CacheTTL:          cfg.IdentityCacheTTL,
	}, nil, logger)
	discordClient, err := discord.New(discord.Config{
		Token:     cfg.DiscordToken,
		GuildID:   cfg.DiscordGuildID,
		Timeout:   cfg.DiscordTimeout,
		CacheSize: cfg.CacheSize,
		RoleTTL:   cfg.RoleCacheTTL,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента Discord", slog.String("error", err.Error()))
		return 1
	}

	// 6. Сервисы
	notifier := service.NewNotifier(discordClient, service.NotificationChannels{
		Join:  cfg.JoinLogChannelID,
		Leave: cfg.LeaveLogChannelID,
		Kill:  cfg.KillLogChannelID,
		Mod:   cfg.ModLogChannelID,
	}, logger)
	teamPolicy := policy.New(cfg.RoleTeamMap, cfg.RestrictedTeams, cfg.DefaultTeam)
	evaluator := service.NewEvaluator(teamPolicy, linkRepo, discordClient, logger)
	enforcer := service.NewEnforcer(erlcClient, notifier, cfg.DefaultTeam, logger)

	shiftSvc := service.NewShiftService(shiftRepo, logger)
	if err := shiftSvc.LoadActive(ctx); err != nil {
		logger.Error("Ошибка загрузки активных смен", slog.String("error", err.Error()))
		return 1
	}
	linkSvc := service.NewLinkService(robloxClient, linkRepo, discordClient, cfg.RobloxGroupID, logger)
	commands := service.NewCommands(linkSvc, shiftSvc, logger)

	firstFetch := watermark.SeedOnFirstFetch
	if cfg.FirstFetchPolicy == config.FirstFetchReplay {
		firstFetch = watermark.ReplayOnFirstFetch
	}
	poller := service.NewPollerService(service.PollerDeps{
		Source:    erlcClient,
		Sink:      notifier,
		Evaluator: evaluator,
		Enforcer:  enforcer,
		Halt:      notifier,
	}, service.NewCycleState(watermark.NewDeduplicator(watermarks, firstFetch)), cfg.PollInterval, logger)

	// 7. Бот slash-команд
	bot := discord.NewBot(discordClient, commands.Definitions(), cfg.CommandTimeout, logger)
	if err := bot.Open(); err != nil {
		logger.Error("Ошибка подключения к Discord", slog.String("error", err.Error()))
		return 1
	}
	defer bot.Close()

	// 8. Фоновые задачи
	poller.Start(ctx)
	defer poller.Stop()

	// topologymetrics — мониторинг PostgreSQL, Discord API, Roblox
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:      "erlc-bridge",
		Group:          cfg.DephealthGroup,
		DB:             pgDB,
		PostgresURL:    cfg.DatabaseURL(),
		DiscordURL:     discord.GatewayURL,
		RobloxUsersURL: cfg.RobloxUsersURL,
		CheckInterval:  cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	} else {
		defer dephealthSvc.Stop()
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 9. Dashboard API
	checks := []handlers.NamedChecker{
		{Name: "postgresql", Checker: database.NewReadinessChecker(pool)},
		{Name: "poller", Checker: handlers.NewPollerReadinessChecker(poller)},
	}
	var jwtAuth *middleware.JWTAuth
	if cfg.DashboardJWKSURL != "" {
		jwtAuth, err = middleware.NewJWTAuth(cfg.DashboardJWKSURL, cfg.DashboardJWTIssuer, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			return 1
		}
		checks = append(checks, handlers.NamedChecker{
			Name:    "jwks",
			Checker: middleware.NewJWKSReadinessChecker(cfg.DashboardJWKSURL, cfg.ERLCTimeout),
		})
		logger.Info("JWT для dashboard включён",
			slog.String("jwks_url", cfg.DashboardJWKSURL),
			slog.String("issuer", cfg.DashboardJWTIssuer),
		)
	} else {
		logger.Warn("EB_DASHBOARD_JWKS_URL не задан, dashboard API доступен без аутентификации")
	}

	apiHandler := handlers.NewAPIHandler(shiftSvc, poller, logger)
	srv := server.New(cfg, logger, apiHandler, handlers.NewHealthHandler(checks...), jwtAuth)

	// 10. Работа до сигнала или фатальной ошибки опроса
	runErr := srv.Run(poller.Fatal())

	logger.Info("Останавливаем фоновые задачи...")
	if runErr != nil {
		if errors.Is(runErr, server.ErrFatal) {
			logger.Error("erlc-bridge остановлен из-за фатальной ошибки", slog.String("error", runErr.Error()))
		} else {
			logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		}
		return 1
	}

	logger.Info("erlc-bridge остановлен")
	return 0
}
