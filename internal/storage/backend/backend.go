// Пакет backend — конкретные реализации хранения байтов за единым
// набором операций {Put, Get, Delete, Exists}.
//
// Два backend'а: локальная файловая система (local.go) и S3-совместимое
// объектное хранилище (object.go). Юнит выбора между ними — gateway,
// backend'ы о существовании друг друга не знают.
package backend

import (
	"context"
	"errors"
	"io"
)

// Ошибки слоя backend'ов.
var (
	// ErrObjectNotFound — объект с указанным ключом отсутствует.
	ErrObjectNotFound = errors.New("объект не найден")
	// ErrBackendUnreachable — сетевая или I/O ошибка при обращении к backend'у.
	ErrBackendUnreachable = errors.New("backend недоступен")
	// ErrSizeUnknown — backend требует известную длину содержимого, а она не передана.
	ErrSizeUnknown = errors.New("размер содержимого неизвестен")
	// ErrInvalidKey — ключ некорректен (пустой или выходит за пределы хранилища).
	ErrInvalidKey = errors.New("некорректный ключ")
)

// Backend — единый набор операций хранения байтов.
// Реализации безопасны для конкурентного использования: клиенты
// создаются один раз при старте и далее не изменяются.
type Backend interface {
	// Put записывает содержимое reader под указанным ключом.
	// size — длина содержимого в байтах; -1, если неизвестна.
	// Содержимое передаётся потоком, целиком в памяти не буферизуется.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get открывает содержимое по ключу. Вызывающий код обязан закрыть
	// ReadCloser на всех путях выхода, включая отмену контекста.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete удаляет объект. Идемпотентен: удаление отсутствующего
	// объекта — не ошибка.
	Delete(ctx context.Context, key string) error

	// Exists проверяет наличие объекта. Best-effort: сетевые и I/O ошибки
	// маппятся в false, наружу не распространяются.
	Exists(ctx context.Context, key string) bool
}
