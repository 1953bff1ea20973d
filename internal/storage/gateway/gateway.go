// Пакет gateway — маршрутизация операций с blob'ами между backend'ами.
//
// При загрузке gateway выбирает backend (объектное хранилище, если включено,
// иначе локальный диск) и фиксирует выбор в возвращаемой строке расположения.
// Download/Delete/Exists всегда диспетчеризуются по схеме из строки
// расположения, а не по текущей конфигурации: объект навсегда привязан
// к backend'у, в который был записан.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/file-gateway/internal/storage/backend"
	"github.com/bigkaa/goartstore/file-gateway/internal/storage/location"
)

// Prometheus метрики gateway.
var (
	// blobOperationsTotal — количество операций с blob'ами по backend'ам.
	blobOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fg_blob_operations_total",
		Help: "Общее количество операций с blob'ами",
	}, []string{"backend", "operation", "result"})
)

// Gateway — маршрутизатор операций с blob'ами.
// Backend'ы создаются один раз при старте; после конструирования
// состояние неизменно, конкурентное использование безопасно.
type Gateway struct {
	local  backend.Backend
	object backend.Backend
	// bucket — bucket объектного хранилища, кодируется в location
	bucket string
	logger *slog.Logger
}

// New создаёт gateway. object может быть nil — тогда все загрузки
// идут в локальный backend.
func New(local backend.Backend, object backend.Backend, bucket string, logger *slog.Logger) *Gateway {
	return &Gateway{
		local:  local,
		object: object,
		bucket: bucket,
		logger: logger.With(slog.String("component", "blob_gateway")),
	}
}

// ObjectEnabled — объектное хранилище сконфигурировано как предпочтительное.
func (g *Gateway) ObjectEnabled() bool {
	return g.object != nil
}

// Upload записывает поток в предпочтительный backend и возвращает строку
// расположения. Содержимое передаётся потоком; если объектное хранилище
// требует известную длину, а size < 0, backend вернёт ErrSizeUnknown.
func (g *Gateway) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	if g.object != nil {
		if err := g.object.Put(ctx, key, reader, size, contentType); err != nil {
			blobOperationsTotal.WithLabelValues("object", "put", "error").Inc()
			return "", fmt.Errorf("запись в объектное хранилище: %w", err)
		}
		blobOperationsTotal.WithLabelValues("object", "put", "success").Inc()
		return location.EncodeObject(g.bucket, key), nil
	}

	if err := g.local.Put(ctx, key, reader, size, contentType); err != nil {
		blobOperationsTotal.WithLabelValues("local", "put", "error").Inc()
		return "", fmt.Errorf("запись в локальное хранилище: %w", err)
	}
	blobOperationsTotal.WithLabelValues("local", "put", "success").Inc()
	return location.EncodeLocal(key), nil
}

// Download открывает поток содержимого по строке расположения.
// Вызывающий код обязан закрыть ReadCloser на всех путях выхода,
// включая отмену запроса клиентом.
func (g *Gateway) Download(ctx context.Context, loc string) (io.ReadCloser, error) {
	bk, parsed, err := g.dispatch(loc)
	if err != nil {
		return nil, err
	}

	rc, err := bk.Get(ctx, parsed.Key)
	if err != nil {
		blobOperationsTotal.WithLabelValues(string(parsed.Kind), "get", "error").Inc()
		return nil, err
	}
	blobOperationsTotal.WithLabelValues(string(parsed.Kind), "get", "success").Inc()
	return rc, nil
}

// Delete удаляет blob по строке расположения. Идемпотентен:
// удаление уже отсутствующего объекта — не ошибка.
func (g *Gateway) Delete(ctx context.Context, loc string) error {
	bk, parsed, err := g.dispatch(loc)
	if err != nil {
		return err
	}

	if err := bk.Delete(ctx, parsed.Key); err != nil {
		blobOperationsTotal.WithLabelValues(string(parsed.Kind), "delete", "error").Inc()
		return err
	}
	blobOperationsTotal.WithLabelValues(string(parsed.Kind), "delete", "success").Inc()
	return nil
}

// Exists проверяет наличие blob'а. Best-effort: некорректное расположение
// и ошибки backend'а маппятся в false — результат используется только
// для advisory-проверок.
func (g *Gateway) Exists(ctx context.Context, loc string) bool {
	bk, parsed, err := g.dispatch(loc)
	if err != nil {
		return false
	}
	return bk.Exists(ctx, parsed.Key)
}

// dispatch декодирует строку расположения и возвращает соответствующий
// backend. Неизвестная схема — ошибка, никогда не backend по умолчанию:
// ошибочный выбор backend'а для get/delete — угроза сохранности данных.
func (g *Gateway) dispatch(loc string) (backend.Backend, location.Location, error) {
	parsed, err := location.Decode(loc)
	if err != nil {
		return nil, location.Location{}, err
	}

	switch parsed.Kind {
	case location.KindLocal:
		return g.local, parsed, nil
	case location.KindObject:
		if g.object == nil {
			// Объект был записан, когда объектное хранилище было включено.
			// Отсутствие клиента сейчас — ошибка доступности, не маршрутизации.
			return nil, location.Location{}, fmt.Errorf(
				"%w: объектное хранилище отключено, но расположение %q указывает на него",
				backend.ErrBackendUnreachable, loc)
		}
		return g.object, parsed, nil
	default:
		return nil, location.Location{}, fmt.Errorf("%w: схема %q", location.ErrMalformedLocation, parsed.Kind)
	}
}
