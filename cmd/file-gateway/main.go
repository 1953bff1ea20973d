// Точка входа File Gateway — шлюз между клиентами и хранилищем файлов.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт backend'ы хранения и blob gateway, сервисный слой и API handlers,
// запускает фоновые задачи (sweeper, topologymetrics),
// HTTP-сервер с auth middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/file-gateway/internal/api/handlers"
	"github.com/bigkaa/goartstore/file-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-gateway/internal/config"
	"github.com/bigkaa/goartstore/file-gateway/internal/database"
	"github.com/bigkaa/goartstore/file-gateway/internal/repository"
	"github.com/bigkaa/goartstore/file-gateway/internal/server"
	"github.com/bigkaa/goartstore/file-gateway/internal/service"
	"github.com/bigkaa/goartstore/file-gateway/internal/storage/backend"
	"github.com/bigkaa/goartstore/file-gateway/internal/storage/gateway"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("File Gateway запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("FG_DEPHEALTH_GROUP") == "" {
		logger.Warn("FG_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Backend'ы хранения
	local, err := backend.NewLocalBackend(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации локального backend'а",
			slog.String("data_dir", cfg.DataDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var object *backend.ObjectBackend
	objectHealthURL := ""
	if cfg.ObjectEnabled {
		object, err = backend.NewObjectBackend(backend.ObjectBackendConfig{
			Endpoint:  cfg.ObjectEndpoint,
			AccessKey: cfg.ObjectAccessKey,
			SecretKey: cfg.ObjectSecretKey,
			Bucket:    cfg.ObjectBucket,
			Region:    cfg.ObjectRegion,
			UseSSL:    cfg.ObjectUseSSL,
		})
		if err != nil {
			logger.Error("Ошибка инициализации объектного backend'а",
				slog.String("endpoint", cfg.ObjectEndpoint),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		objectHealthURL = object.HealthURL(cfg.ObjectUseSSL, cfg.ObjectEndpoint)
		logger.Info("Объектное хранилище включено",
			slog.String("endpoint", cfg.ObjectEndpoint),
			slog.String("bucket", cfg.ObjectBucket),
		)
	}

	// 6. Blob gateway
	var gw *gateway.Gateway
	if object != nil {
		gw = gateway.New(local, object, cfg.ObjectBucket, logger)
	} else {
		gw = gateway.New(local, nil, "", logger)
	}

	// 7. Repository и кэш метаданных
	fileRepo := repository.NewFileRepository(pool)
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)

	// 8. Сервисный слой
	filesSvc := service.NewFileService(fileRepo, gw, cache, cfg.MaxFileSize, logger)
	sweeper := service.NewSweeper(fileRepo, gw, cache, cfg.SweepInterval, logger)

	// 9. Auth middleware (JWKS + статические ключи)
	auth, err := middleware.NewAuth(middleware.AuthConfig{
		JWKSURL:         cfg.JWKSUrl,
		CACertPath:      cfg.JWKSCACert,
		APIKeys:         cfg.APIKeys,
		ClientTimeout:   10 * time.Second,
		RefreshInterval: time.Hour,
		JWTLeeway:       30 * time.Second,
	}, logger)
	if err != nil {
		logger.Error("Ошибка инициализации auth middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Мониторинг зависимостей (topologymetrics)
	serviceID := cfg.DephealthName
	if serviceID == "" {
		serviceID = "file-gateway"
	}
	dephealthSvc, err := service.NewDephealthService(service.DephealthParams{
		ServiceID:       serviceID,
		Group:           cfg.DephealthGroup,
		DB:              pgDB,
		PGConnURL:       cfg.DatabaseDSN(),
		JWKSURL:         cfg.JWKSUrl,
		ObjectHealthURL: objectHealthURL,
		CheckInterval:   cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Error("Ошибка инициализации мониторинга зависимостей", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		logger.Error("Ошибка запуска мониторинга зависимостей", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dephealthSvc.Stop()

	// 11. Фоновый sweeper истёкших файлов
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 12. HTTP handlers
	var objChecker handlers.ReadinessChecker
	if object != nil {
		objChecker = object
	}
	h := server.Handlers{
		Files:    handlers.NewFilesHandler(filesSvc, logger),
		Metadata: handlers.NewMetadataHandler(filesSvc, logger),
		Health:   handlers.NewHealthHandler(database.NewReadinessChecker(pool), objChecker),
	}

	// 13. Запуск сервера (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, h, auth)
	if err := srv.Run(); err != nil {
		logger.Error("Сервер завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("File Gateway остановлен")
}
