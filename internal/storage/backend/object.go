// object.go — backend S3-совместимого объектного хранилища (MinIO SDK).
// Ключ — имя объекта внутри сконфигурированного bucket'а.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectBackendConfig — параметры подключения к объектному хранилищу.
type ObjectBackendConfig struct {
	// Endpoint — адрес S3-совместимого API (host:port, без схемы)
	Endpoint string
	// AccessKey, SecretKey — статические учётные данные
	AccessKey string
	SecretKey string
	// Bucket — bucket для всех объектов gateway
	Bucket string
	// Region — регион (опционально)
	Region string
	// UseSSL — использовать TLS
	UseSSL bool
}

// ObjectBackend — хранение байтов в S3-совместимом объектном хранилище.
type ObjectBackend struct {
	client *minio.Client
	bucket string
}

// NewObjectBackend создаёт backend поверх MinIO-клиента.
// Клиент создаётся один раз при старте и безопасен для конкурентного
// использования; сетевой доступности на этом этапе не требуется.
func NewObjectBackend(cfg ObjectBackendConfig) (*ObjectBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("создание клиента объектного хранилища: %w", err)
	}

	return &ObjectBackend{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// NewObjectBackendWithClient создаёт backend с готовым клиентом.
// Используется в тестах.
func NewObjectBackendWithClient(client *minio.Client, bucket string) *ObjectBackend {
	return &ObjectBackend{client: client, bucket: bucket}
}

// Bucket возвращает имя сконфигурированного bucket'а.
func (b *ObjectBackend) Bucket() string {
	return b.bucket
}

// Put записывает содержимое reader как объект с ключом key.
// Объектное хранилище требует известную длину до начала записи:
// при size < 0 возвращается ErrSizeUnknown, без обращения к сети.
func (b *ObjectBackend) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if key == "" {
		return fmt.Errorf("%w: пустой ключ", ErrInvalidKey)
	}
	if size < 0 {
		return fmt.Errorf("%w: объектное хранилище требует Content-Length", ErrSizeUnknown)
	}

	_, err := b.client.PutObject(ctx, b.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	return nil
}

// Get открывает объект по ключу. Stat выполняется сразу, чтобы отличить
// отсутствующий объект от сетевой ошибки до передачи потока вызывающему.
func (b *ObjectBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}

	// GetObject ленивый: ошибка отсутствия объекта проявляется на Stat
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}

	return obj, nil
}

// Delete удаляет объект. RemoveObject отсутствующего объекта не считает
// ошибкой — идемпотентность обеспечивается самим хранилищем.
func (b *ObjectBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	return nil
}

// Exists проверяет наличие объекта через StatObject.
// Любая ошибка, включая сетевую, — false (best-effort).
func (b *ObjectBackend) Exists(ctx context.Context, key string) bool {
	_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	return err == nil
}

// HealthURL возвращает URL liveness-проверки хранилища для dephealth.
func (b *ObjectBackend) HealthURL(useSSL bool, endpoint string) string {
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/minio/health/live", scheme, endpoint)
}

// CheckReady проверяет доступность хранилища через BucketExists.
// Используется readiness probe.
func (b *ObjectBackend) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ok, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return "fail", fmt.Sprintf("объектное хранилище недоступно: %v", err)
	}
	if !ok {
		return "fail", fmt.Sprintf("bucket %s не существует", b.bucket)
	}
	return "ok", ""
}

// isNotFound распознаёт ответ хранилища «объект/bucket не найден».
func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound ||
		resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}

// Проверка на этапе компиляции
var _ Backend = (*ObjectBackend)(nil)
