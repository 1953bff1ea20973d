// files.go — HTTP-обработчики файловых операций File Gateway.
// Upload, Download, Delete.
package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/file-gateway/internal/api/errors"
	"github.com/bigkaa/goartstore/file-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-gateway/internal/service"
)

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	files  *service.FileService
	logger *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(files *service.FileService, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		files:  files,
		logger: logger.With(slog.String("component", "files_handler")),
	}
}

// Upload обрабатывает POST /api/v1/files.
// Multipart form: file (обязательно), description, tags (через запятую),
// public (bool), ttl_days (int) — опционально.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MB buffer
		errors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	params := service.UploadParams{
		Reader:       file,
		OriginalName: header.Filename,
		ContentType:  contentType,
		Size:         header.Size,
		Description:  r.FormValue("description"),
		Tags:         splitTags(r.FormValue("tags")),
		IsPublic:     r.FormValue("public") == "true",
	}

	if raw := r.FormValue("ttl_days"); raw != "" {
		ttl, err := strconv.Atoi(raw)
		if err != nil || ttl < 0 {
			errors.ValidationError(w, fmt.Sprintf("Некорректное значение ttl_days: %q", raw))
			return
		}
		params.TTLDays = ttl
	}

	record, opErr := h.files.Upload(r.Context(), principal, params)
	if opErr != nil {
		writeOpError(w, opErr)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// Download обрабатывает GET /api/v1/files/{file_id}.
// Стримит содержимое с Content-Type, Content-Length, ETag (checksum)
// и Content-Disposition с оригинальным именем файла.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	fileID := chi.URLParam(r, "file_id")

	record, rc, opErr := h.files.Download(r.Context(), principal, fileID)
	if opErr != nil {
		writeOpError(w, opErr)
		return
	}
	defer rc.Close()

	// If-None-Match → 304: содержимое write-once, checksum стабилен
	etag := `"` + record.Checksum + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	contentType := record.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(record.SizeBytes, 10))
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment",
		map[string]string{"filename": record.OriginalName}))
	if record.ContentEncoding != "" {
		w.Header().Set("Content-Encoding", record.ContentEncoding)
	}
	if record.ContentLanguage != "" {
		w.Header().Set("Content-Language", record.ContentLanguage)
	}

	if _, err := io.Copy(w, rc); err != nil {
		// Заголовки уже отправлены, остаётся только залогировать
		h.logger.Debug("Стриминг содержимого прерван",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}
}

// Delete обрабатывает DELETE /api/v1/files/{file_id}.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	fileID := chi.URLParam(r, "file_id")

	if opErr := h.files.Delete(r.Context(), principal, fileID); opErr != nil {
		writeOpError(w, opErr)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
