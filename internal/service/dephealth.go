// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// File Gateway мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - JWKS endpoint — HTTP checker (critical: без него новые токены не валидируются)
//   - Объектное хранилище — HTTP checker к /minio/health/live (если включено)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthParams — параметры мониторинга зависимостей.
type DephealthParams struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (FG_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool()
	DB *sql.DB
	// PGConnURL — URL подключения к PostgreSQL (для лейблов, не для подключения)
	PGConnURL string
	// JWKSURL — URL JWKS endpoint
	JWKSURL string
	// ObjectHealthURL — URL health endpoint объектного хранилища; "" — не мониторить
	ObjectHealthURL string
	// CheckInterval — интервал проверки зависимостей
	CheckInterval time.Duration
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(params DephealthParams, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(params, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	params DephealthParams,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(params, logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(
	params DephealthParams,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	// PostgreSQL — connection pool mode через существующий pgxpool.
	// Проверка идёт через *sql.DB (адаптер pgxpool), что отражает реальное
	// состояние пула соединений и может обнаружить его исчерпание.
	pgDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(params.PGConnURL),
		dephealth.CheckInterval(params.CheckInterval),
		dephealth.Critical(true),
	}

	jwksDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(params.JWKSURL),
		dephealth.CheckInterval(params.CheckInterval),
		dephealth.Critical(true),
	}
	if parsed, err := url.Parse(params.JWKSURL); err == nil {
		if parsed.Path != "" {
			jwksDepOpts = append(jwksDepOpts, dephealth.WithHTTPHealthPath(parsed.Path))
		}
		if parsed.Scheme == "https" {
			jwksDepOpts = append(jwksDepOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
	}

	opts := make([]dephealth.Option, 0, 4+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(params.DB)), pgDepOpts...),
		dephealth.HTTP("jwks", jwksDepOpts...),
	)

	// Объектное хранилище — некритичная зависимость: gateway продолжает
	// обслуживать локальные файлы при его недоступности.
	if params.ObjectHealthURL != "" {
		objDepOpts := []dephealth.DependencyOption{
			dephealth.FromURL(params.ObjectHealthURL),
			dephealth.WithHTTPHealthPath("/minio/health/live"),
			dephealth.CheckInterval(params.CheckInterval),
			dephealth.Critical(false),
		}
		opts = append(opts, dephealth.HTTP("object-store", objDepOpts...))
	}

	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(params.ServiceID, params.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
