// sweeper.go — фоновая очистка файлов с истёкшим сроком хранения.
//
// Sweeper периодически находит записи с expires_at в прошлом и удаляет
// сначала blob, затем запись метаданных. Между проходами истёкшие файлы
// остаются видимыми и скачиваемыми (soft expiration).
//
// Запускается как горутина с периодическим тикером (FG_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/file-gateway/internal/repository"
	"github.com/bigkaa/goartstore/file-gateway/internal/storage/gateway"
)

// Prometheus метрики sweeper'а
var (
	// sweepRunsTotal — количество проходов sweeper'а.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fg_sweep_runs_total",
		Help: "Общее количество проходов sweeper'а",
	})

	// sweepFilesDeletedTotal — количество удалённых истёкших файлов.
	sweepFilesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fg_sweep_files_deleted_total",
		Help: "Общее количество файлов, удалённых sweeper'ом",
	})

	// sweepErrorsTotal — количество ошибок при обработке файлов.
	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fg_sweep_errors_total",
		Help: "Общее количество ошибок sweeper'а",
	})

	// sweepDurationSeconds — длительность прохода sweeper'а.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fg_sweep_duration_seconds",
		Help:    "Длительность прохода sweeper'а в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult — результат одного прохода sweeper'а.
type SweepResult struct {
	// DeletedCount — количество удалённых файлов (blob + запись)
	DeletedCount int
	// Errors — количество файлов, обработка которых завершилась ошибкой
	Errors int
	// Duration — длительность прохода
	Duration time.Duration
}

// Sweeper — сервис фоновой очистки истёкших файлов.
type Sweeper struct {
	repo     repository.FileRepository
	gw       *gateway.Gateway
	cache    *CacheService
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	// now подменяется в тестах
	now func() time.Time
}

// NewSweeper создаёт sweeper.
func NewSweeper(
	repo repository.FileRepository,
	gw *gateway.Gateway,
	cache *CacheService,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		repo:     repo,
		gw:       gw,
		cache:    cache,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweeper")),
		now:      time.Now,
	}
}

// Start запускает фоновую горутину sweeper'а с периодическим тикером.
// Вызывается один раз при старте приложения.
func (s *Sweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(sweepCtx)

	s.logger.Info("Sweeper запущен",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый процесс sweeper'а.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Sweeper остановлен")
}

// run — основной цикл фоновой горутины.
func (s *Sweeper) run(ctx context.Context) {
	// Первый проход — сразу после старта
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход очистки.
// Потокобезопасен: mutex защищает от параллельного запуска.
//
// Для каждой истёкшей записи сначала удаляется blob, затем запись.
// Ошибка удаления blob'а оставляет запись на месте — файл будет
// повторно обработан следующим проходом. Ошибка одной записи
// не прерывает обработку остальных.
func (s *Sweeper) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	s.logger.Debug("Проход sweeper'а начат")

	expired, err := s.repo.FindExpired(ctx, s.now().UTC())
	if err != nil {
		s.logger.Error("Ошибка выборки истёкших записей",
			slog.String("error", err.Error()),
		)
		result.Errors++
		sweepRunsTotal.Inc()
		sweepErrorsTotal.Inc()
		return result
	}

	for _, record := range expired {
		if err := s.gw.Delete(ctx, record.Location); err != nil {
			s.logger.Error("Ошибка удаления истёкшего blob'а",
				slog.String("file_id", record.ID),
				slog.String("location", record.Location),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}

		if err := s.repo.DeleteByID(ctx, record.ID); err != nil {
			s.logger.Error("Ошибка удаления истёкшей записи",
				slog.String("file_id", record.ID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}

		s.cache.Delete(record.ID)

		s.logger.Debug("Истёкший файл удалён",
			slog.String("file_id", record.ID),
			slog.String("original_name", record.OriginalName),
		)
		result.DeletedCount++
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepFilesDeletedTotal.Add(float64(result.DeletedCount))
	sweepErrorsTotal.Add(float64(result.Errors))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Проход sweeper'а завершён",
		slog.Int("deleted", result.DeletedCount),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}
