// Пакет handlers — HTTP-обработчики File Gateway.
// handler.go — общие вспомогательные функции.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/bigkaa/goartstore/file-gateway/internal/api/errors"
	"github.com/bigkaa/goartstore/file-gateway/internal/service"
)

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeOpError записывает ошибку сервисного слоя в стандартном формате.
func writeOpError(w http.ResponseWriter, opErr *service.OpError) {
	errors.WriteError(w, opErr.StatusCode, opErr.Code, opErr.Message)
}

// pageParams извлекает параметры пагинации page и size из query string.
// Значения по умолчанию: page=1, size=50. size ограничен 1000.
func pageParams(r *http.Request) (page, size int) {
	page = 1
	size = 50

	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			size = n
			if size > 1000 {
				size = 1000
			}
		}
	}
	return page, size
}

// splitTags разбирает список тегов через запятую, отбрасывая пустые.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
