// Пакет repository — слой доступа к данным PostgreSQL для File Gateway.
// Таблица file_records — индекс метаданных загруженных файлов; байты файлов
// хранятся отдельно, в backend'ах за BlobGateway.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrDuplicate — запись с таким id уже существует.
	ErrDuplicate = errors.New("запись уже существует")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PageOffset конвертирует 1-based номер страницы в offset.
// Тонкая обёртка над offset-примитивом: сам контракт репозитория
// оперирует (limit, offset). Значения меньше допустимых поднимаются
// до минимума, чтобы некорректный ввод не давал отрицательный offset.
func PageOffset(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	return size, (page - 1) * size
}
