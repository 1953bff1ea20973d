// metadata.go — HTTP-обработчики метаданных File Gateway.
// Получение и обновление метаданных, списки, поиск, статистика.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/file-gateway/internal/api/errors"
	"github.com/bigkaa/goartstore/file-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/file-gateway/internal/service"
)

// MetadataHandler — обработчик endpoints метаданных.
type MetadataHandler struct {
	files  *service.FileService
	logger *slog.Logger
}

// NewMetadataHandler создаёт обработчик endpoints метаданных.
func NewMetadataHandler(files *service.FileService, logger *slog.Logger) *MetadataHandler {
	return &MetadataHandler{
		files:  files,
		logger: logger.With(slog.String("component", "metadata_handler")),
	}
}

// listResponse — ответ списочных endpoints.
type listResponse struct {
	Items []*model.FileRecord `json:"items"`
	Page  int                 `json:"page"`
	Size  int                 `json:"size"`
}

// Get обрабатывает GET /api/v1/metadata/{file_id}.
func (h *MetadataHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	fileID := chi.URLParam(r, "file_id")

	record, opErr := h.files.GetMetadata(r.Context(), principal, fileID)
	if opErr != nil {
		writeOpError(w, opErr)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// Update обрабатывает PUT /api/v1/metadata/{file_id}.
// Тело — JSON с изменяемыми полями; отсутствующее поле не меняется.
func (h *MetadataHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	fileID := chi.URLParam(r, "file_id")

	var update model.FileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		errors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	record, opErr := h.files.UpdateMetadata(r.Context(), principal, fileID, update)
	if opErr != nil {
		writeOpError(w, opErr)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// ListOwn обрабатывает GET /api/v1/metadata.
// Возвращает страницу файлов principal'а, от новых к старым.
func (h *MetadataHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	page, size := pageParams(r)

	records, opErr := h.files.ListOwn(r.Context(), principal, page, size)
	if opErr != nil {
		writeOpError(w, opErr)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Items: emptyIfNil(records), Page: page, Size: size})
}

// ListPublic обрабатывает GET /api/v1/metadata/public.
// Публичные файлы всех владельцев.
func (h *MetadataHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)

	records, opErr := h.files.ListPublic(r.Context(), page, size)
	if opErr != nil {
		writeOpError(w, opErr)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Items: emptyIfNil(records), Page: page, Size: size})
}

// Search обрабатывает GET /api/v1/metadata/search.
// Ровно один критерий: name (подстрока), tag (подстрока),
// mime (точное совпадение) или диапазон размера min_size/max_size.
func (h *MetadataHandler) Search(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	q := r.URL.Query()

	name := q.Get("name")
	tag := q.Get("tag")
	mimeType := q.Get("mime")
	minRaw := q.Get("min_size")
	maxRaw := q.Get("max_size")

	set := 0
	for _, v := range []string{name, tag, mimeType} {
		if v != "" {
			set++
		}
	}
	if minRaw != "" || maxRaw != "" {
		set++
	}
	if set != 1 {
		errors.ValidationError(w, "Укажите ровно один критерий поиска: name, tag, mime или min_size/max_size")
		return
	}

	var (
		records []*model.FileRecord
		opErr   *service.OpError
	)
	switch {
	case name != "":
		records, opErr = h.files.SearchByName(r.Context(), name, page, size)
	case tag != "":
		records, opErr = h.files.SearchByTag(r.Context(), tag, page, size)
	case mimeType != "":
		records, opErr = h.files.ListByMimeType(r.Context(), mimeType, page, size)
	default:
		minSize, maxSize, err := sizeRange(minRaw, maxRaw)
		if err != nil {
			errors.ValidationError(w, err.Error())
			return
		}
		records, opErr = h.files.ListBySizeRange(r.Context(), minSize, maxSize, page, size)
	}
	if opErr != nil {
		writeOpError(w, opErr)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Items: emptyIfNil(records), Page: page, Size: size})
}

// sizeRange разбирает границы диапазона размера. Отсутствующая граница
// не ограничивает диапазон с соответствующей стороны.
func sizeRange(minRaw, maxRaw string) (int64, int64, error) {
	minSize := int64(0)
	maxSize := int64(math.MaxInt64)

	if minRaw != "" {
		n, err := strconv.ParseInt(minRaw, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("некорректное значение min_size: %q", minRaw)
		}
		minSize = n
	}
	if maxRaw != "" {
		n, err := strconv.ParseInt(maxRaw, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("некорректное значение max_size: %q", maxRaw)
		}
		maxSize = n
	}
	if minSize > maxSize {
		return 0, 0, fmt.Errorf("min_size %d больше max_size %d", minSize, maxSize)
	}
	return minSize, maxSize, nil
}

// Stats обрабатывает GET /api/v1/stats.
// Агрегаты по файлам principal'а и по всему хранилищу.
func (h *MetadataHandler) Stats(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	stats, opErr := h.files.Stats(r.Context(), principal)
	if opErr != nil {
		writeOpError(w, opErr)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// emptyIfNil заменяет nil на пустой slice: в JSON уходит [], а не null.
func emptyIfNil(records []*model.FileRecord) []*model.FileRecord {
	if records == nil {
		return []*model.FileRecord{}
	}
	return records
}
