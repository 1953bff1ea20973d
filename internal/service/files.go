// Пакет service — бизнес-логика File Gateway.
// files.go — сервис файловых операций: загрузка, скачивание, удаление,
// метаданные, списки и статистика.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/goartstore/file-gateway/internal/api/errors"
	"github.com/bigkaa/goartstore/file-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/file-gateway/internal/repository"
	"github.com/bigkaa/goartstore/file-gateway/internal/storage/backend"
	"github.com/bigkaa/goartstore/file-gateway/internal/storage/gateway"
)

// operationsTotal — бизнес-метрика файловых операций.
var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fg_operations_total",
	Help: "Общее количество файловых операций File Gateway",
}, []string{"operation", "result"})

// OpError — ошибка файловой операции с HTTP-кодом.
type OpError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalName — оригинальное имя файла
	OriginalName string
	// ContentType — MIME-тип файла
	ContentType string
	// Size — размер файла (из multipart part)
	Size int64
	// Description — описание файла (опционально)
	Description string
	// Tags — теги файла (опционально)
	Tags []string
	// IsPublic — сделать файл публичным
	IsPublic bool
	// TTLDays — срок хранения в днях; 0 — бессрочно
	TTLDays int
}

// FileService — сервис файловых операций.
type FileService struct {
	repo        repository.FileRepository
	gw          *gateway.Gateway
	cache       *CacheService
	maxFileSize int64
	logger      *slog.Logger
	// now подменяется в тестах
	now func() time.Time
}

// NewFileService создаёт сервис файловых операций.
func NewFileService(
	repo repository.FileRepository,
	gw *gateway.Gateway,
	cache *CacheService,
	maxFileSize int64,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		repo:        repo,
		gw:          gw,
		cache:       cache,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "file_service")),
		now:         time.Now,
	}
}

// Upload загружает файл: записывает байты в backend, затем создаёт
// запись метаданных. Запись создаётся сразу после записи blob'а —
// окно, в котором blob существует без записи, минимально.
// При ошибке вставки выполняется компенсирующее удаление blob'а.
func (s *FileService) Upload(ctx context.Context, principal *middleware.Principal, params UploadParams) (*model.FileRecord, *OpError) {
	if !principal.HasScope(middleware.ScopeFileWrite) {
		return nil, &OpError{
			StatusCode: 403,
			Code:       apierrors.CodeForbidden,
			Message:    "Для загрузки требуется scope " + middleware.ScopeFileWrite,
		}
	}

	if params.OriginalName == "" {
		return nil, &OpError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Не указано имя файла",
		}
	}

	if params.Size > s.maxFileSize {
		operationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, &OpError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", params.Size, s.maxFileSize),
		}
	}

	fileID := uuid.New().String()
	storedName := model.StoredName(fileID, params.OriginalName)

	// SHA-256 подсчитывается на лету, без буферизации содержимого
	hasher := sha256.New()
	tee := io.TeeReader(params.Reader, hasher)

	loc, err := s.gw.Upload(ctx, storedName, tee, params.Size, params.ContentType)
	if err != nil {
		operationsTotal.WithLabelValues("upload", "error").Inc()
		s.logger.Error("Ошибка записи blob'а",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, s.backendError(err, "Не удалось записать файл в хранилище")
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))

	var expiresAt *time.Time
	if params.TTLDays > 0 {
		exp := s.now().UTC().AddDate(0, 0, params.TTLDays)
		expiresAt = &exp
	}

	record := model.NewFileRecord(model.NewFileRecordParams{
		ID:           fileID,
		OriginalName: params.OriginalName,
		MimeType:     params.ContentType,
		SizeBytes:    params.Size,
		Checksum:     checksum,
		Location:     loc,
		OwnerID:      principal.Name,
		UploadedAt:   s.now().UTC(),
		ExpiresAt:    expiresAt,
		Description:  params.Description,
		Tags:         params.Tags,
		IsPublic:     params.IsPublic,
	})

	if err := s.repo.Insert(ctx, record); err != nil {
		// Компенсация: blob без записи метаданных недостижим для клиентов
		if delErr := s.gw.Delete(ctx, loc); delErr != nil {
			s.logger.Error("Компенсирующее удаление blob'а не удалось, blob осиротел",
				slog.String("file_id", fileID),
				slog.String("location", loc),
				slog.String("error", delErr.Error()),
			)
		}
		operationsTotal.WithLabelValues("upload", "error").Inc()
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &OpError{
				StatusCode: 409,
				Code:       apierrors.CodeConflict,
				Message:    "Файл с таким идентификатором уже существует",
			}
		}
		s.logger.Error("Ошибка вставки записи метаданных",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, &OpError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Не удалось сохранить метаданные файла",
		}
	}

	s.cache.Set(fileID, record)
	operationsTotal.WithLabelValues("upload", "success").Inc()

	s.logger.Info("Файл загружен",
		slog.String("file_id", fileID),
		slog.String("original_name", params.OriginalName),
		slog.Int64("size_bytes", params.Size),
		slog.String("owner_id", principal.Name),
		slog.String("location", loc),
	)

	return record, nil
}

// Download возвращает запись метаданных и открытый поток содержимого.
// Вызывающий код обязан закрыть поток. Время последнего доступа
// обновляется best-effort: его сбой не срывает скачивание.
func (s *FileService) Download(ctx context.Context, principal *middleware.Principal, fileID string) (*model.FileRecord, io.ReadCloser, *OpError) {
	record, opErr := s.findReadable(ctx, principal, fileID)
	if opErr != nil {
		return nil, nil, opErr
	}

	rc, err := s.gw.Download(ctx, record.Location)
	if err != nil {
		operationsTotal.WithLabelValues("download", "error").Inc()
		if errors.Is(err, backend.ErrObjectNotFound) {
			// Запись есть, blob'а нет: индекс и хранилище рассинхронизированы
			s.logger.Error("Blob отсутствует при живой записи метаданных",
				slog.String("file_id", fileID),
				slog.String("location", record.Location),
			)
			return nil, nil, &OpError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    "Содержимое файла не найдено в хранилище",
			}
		}
		return nil, nil, s.backendError(err, "Не удалось прочитать файл из хранилища")
	}

	if err := s.repo.UpdateLastAccessed(ctx, fileID, s.now().UTC()); err != nil {
		s.logger.Debug("Не удалось обновить время последнего доступа",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}

	operationsTotal.WithLabelValues("download", "success").Inc()
	return record, rc, nil
}

// Delete удаляет файл: сначала blob, затем запись метаданных.
// Если blob удалить не удалось, запись остаётся — повторная попытка
// удаления возможна, осиротевших записей без blob'а не появляется.
func (s *FileService) Delete(ctx context.Context, principal *middleware.Principal, fileID string) *OpError {
	record, opErr := s.findWritable(ctx, principal, fileID)
	if opErr != nil {
		return opErr
	}

	if err := s.gw.Delete(ctx, record.Location); err != nil {
		operationsTotal.WithLabelValues("delete", "error").Inc()
		s.logger.Error("Ошибка удаления blob'а",
			slog.String("file_id", fileID),
			slog.String("location", record.Location),
			slog.String("error", err.Error()),
		)
		return s.backendError(err, "Не удалось удалить файл из хранилища")
	}

	if err := s.repo.DeleteByID(ctx, fileID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		operationsTotal.WithLabelValues("delete", "error").Inc()
		return &OpError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Не удалось удалить запись метаданных",
		}
	}

	s.cache.Delete(fileID)
	operationsTotal.WithLabelValues("delete", "success").Inc()

	s.logger.Info("Файл удалён",
		slog.String("file_id", fileID),
		slog.String("owner_id", record.OwnerID),
	)
	return nil
}

// GetMetadata возвращает запись метаданных файла.
func (s *FileService) GetMetadata(ctx context.Context, principal *middleware.Principal, fileID string) (*model.FileRecord, *OpError) {
	return s.findReadable(ctx, principal, fileID)
}

// UpdateMetadata применяет изменения к изменяемым полям записи.
// Write-once поля (id, владелец, расположение, размер, checksum)
// изменению не подлежат на уровне модели.
func (s *FileService) UpdateMetadata(ctx context.Context, principal *middleware.Principal, fileID string, update model.FileUpdate) (*model.FileRecord, *OpError) {
	record, opErr := s.findWritable(ctx, principal, fileID)
	if opErr != nil {
		return nil, opErr
	}

	updated := record.WithUpdate(update)
	if err := s.repo.Update(ctx, updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.notFound(fileID)
		}
		s.logger.Error("Ошибка обновления метаданных",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, &OpError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Не удалось обновить метаданные",
		}
	}

	s.cache.Set(fileID, updated)
	return updated, nil
}

// ListOwn возвращает страницу файлов principal'а, от новых к старым.
func (s *FileService) ListOwn(ctx context.Context, principal *middleware.Principal, page, size int) ([]*model.FileRecord, *OpError) {
	limit, offset := repository.PageOffset(page, size)
	records, err := s.repo.ListByOwner(ctx, principal.Name, limit, offset)
	if err != nil {
		return nil, s.listError(err)
	}
	return records, nil
}

// ListPublic возвращает страницу публичных файлов всех владельцев.
func (s *FileService) ListPublic(ctx context.Context, page, size int) ([]*model.FileRecord, *OpError) {
	limit, offset := repository.PageOffset(page, size)
	records, err := s.repo.ListPublic(ctx, limit, offset)
	if err != nil {
		return nil, s.listError(err)
	}
	return records, nil
}

// SearchByName возвращает файлы, имя которых содержит подстроку
// (без учёта регистра).
func (s *FileService) SearchByName(ctx context.Context, name string, page, size int) ([]*model.FileRecord, *OpError) {
	limit, offset := repository.PageOffset(page, size)
	records, err := s.repo.SearchByName(ctx, name, limit, offset)
	if err != nil {
		return nil, s.listError(err)
	}
	return records, nil
}

// SearchByTag возвращает файлы, хотя бы один тег которых содержит
// подстроку (без учёта регистра).
func (s *FileService) SearchByTag(ctx context.Context, tag string, page, size int) ([]*model.FileRecord, *OpError) {
	limit, offset := repository.PageOffset(page, size)
	records, err := s.repo.SearchByTag(ctx, tag, limit, offset)
	if err != nil {
		return nil, s.listError(err)
	}
	return records, nil
}

// ListByMimeType возвращает файлы с точным совпадением MIME-типа.
func (s *FileService) ListByMimeType(ctx context.Context, mimeType string, page, size int) ([]*model.FileRecord, *OpError) {
	limit, offset := repository.PageOffset(page, size)
	records, err := s.repo.ListByMimeType(ctx, mimeType, limit, offset)
	if err != nil {
		return nil, s.listError(err)
	}
	return records, nil
}

// ListBySizeRange возвращает файлы с размером в диапазоне
// [minSize, maxSize] байт включительно.
func (s *FileService) ListBySizeRange(ctx context.Context, minSize, maxSize int64, page, size int) ([]*model.FileRecord, *OpError) {
	limit, offset := repository.PageOffset(page, size)
	records, err := s.repo.ListBySizeRange(ctx, minSize, maxSize, limit, offset)
	if err != nil {
		return nil, s.listError(err)
	}
	return records, nil
}

// StatsResult — агрегаты по файлам principal'а и по всему хранилищу.
type StatsResult struct {
	Owner  repository.OwnerStats  `json:"owner"`
	Global repository.GlobalStats `json:"global"`
	// PublicFiles — количество публичных файлов во всём хранилище
	PublicFiles int64 `json:"public_files"`
}

// Stats возвращает агрегаты: по файлам principal'а и глобальные.
func (s *FileService) Stats(ctx context.Context, principal *middleware.Principal) (*StatsResult, *OpError) {
	owner, err := s.repo.OwnerStats(ctx, principal.Name)
	if err != nil {
		return nil, s.listError(err)
	}
	global, err := s.repo.GlobalStats(ctx)
	if err != nil {
		return nil, s.listError(err)
	}
	public, err := s.repo.CountPublic(ctx)
	if err != nil {
		return nil, s.listError(err)
	}
	return &StatsResult{Owner: owner, Global: global, PublicFiles: public}, nil
}

// findReadable находит запись и проверяет право чтения:
// владелец либо публичный файл.
func (s *FileService) findReadable(ctx context.Context, principal *middleware.Principal, fileID string) (*model.FileRecord, *OpError) {
	record, opErr := s.find(ctx, fileID)
	if opErr != nil {
		return nil, opErr
	}
	if !record.ReadableBy(principal.Name) {
		// Чужой приватный файл неотличим от несуществующего
		return nil, s.notFound(fileID)
	}
	return record, nil
}

// findWritable находит запись и проверяет право записи: только владелец.
// Публичность файла права записи не расширяет.
func (s *FileService) findWritable(ctx context.Context, principal *middleware.Principal, fileID string) (*model.FileRecord, *OpError) {
	record, opErr := s.find(ctx, fileID)
	if opErr != nil {
		return nil, opErr
	}
	if !record.WritableBy(principal.Name) {
		if record.ReadableBy(principal.Name) {
			return nil, &OpError{
				StatusCode: 403,
				Code:       apierrors.CodeForbidden,
				Message:    "Изменение доступно только владельцу файла",
			}
		}
		return nil, s.notFound(fileID)
	}
	return record, nil
}

// find возвращает запись из кэша либо из репозитория.
func (s *FileService) find(ctx context.Context, fileID string) (*model.FileRecord, *OpError) {
	if record, ok := s.cache.Get(fileID); ok {
		return record, nil
	}

	record, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.notFound(fileID)
		}
		s.logger.Error("Ошибка чтения записи метаданных",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, &OpError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Не удалось прочитать метаданные файла",
		}
	}

	s.cache.Set(fileID, record)
	return record, nil
}

func (s *FileService) notFound(fileID string) *OpError {
	return &OpError{
		StatusCode: 404,
		Code:       apierrors.CodeNotFound,
		Message:    fmt.Sprintf("Файл %s не найден", fileID),
	}
}

func (s *FileService) listError(err error) *OpError {
	s.logger.Error("Ошибка запроса к индексу метаданных",
		slog.String("error", err.Error()),
	)
	return &OpError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    "Не удалось выполнить запрос к индексу метаданных",
	}
}

// backendError маппит ошибки слоя хранения в OpError.
func (s *FileService) backendError(err error, message string) *OpError {
	switch {
	case errors.Is(err, backend.ErrSizeUnknown):
		return &OpError{
			StatusCode: 411,
			Code:       apierrors.CodeLengthRequired,
			Message:    "Объектное хранилище требует известный размер файла",
		}
	case errors.Is(err, backend.ErrBackendUnreachable):
		return &OpError{
			StatusCode: 502,
			Code:       apierrors.CodeBackendUnreachable,
			Message:    message,
		}
	default:
		return &OpError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    message,
		}
	}
}
