package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/goartstore/file-gateway/internal/domain/model"
)

// fileColumns — список столбцов таблицы file_records для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `id, original_name, stored_name, mime_type, size_bytes, checksum,
	location, owner_id, uploaded_at, last_accessed_at, expires_at,
	description, tags, is_public, content_encoding, content_language, schema_version`

// listOrder — порядок выдачи всех пагинированных списков.
// Общий тотальный порядок (tie-break по id) — требование корректности
// пагинации: одинаковые uploaded_at не должны дублировать/терять записи
// между страницами.
const listOrder = `ORDER BY uploaded_at DESC, id ASC`

// OwnerStats — агрегаты по владельцу.
type OwnerStats struct {
	// Files — количество записей владельца
	Files int64
	// Bytes — суммарный размер файлов владельца
	Bytes int64
}

// GlobalStats — агрегаты по всему хранилищу.
type GlobalStats struct {
	// Files — общее количество записей
	Files int64
	// Bytes — суммарный размер всех файлов
	Bytes int64
}

// FileRepository — контракт персистентности метаданных файлов.
// Update изменяет только mutable-поля (имя, тип, описание, теги,
// публичность); идентификатор, владелец, расположение и размер
// в SET-список не входят вовсе.
type FileRepository interface {
	// Insert сохраняет новую запись. ErrDuplicate при конфликте id.
	Insert(ctx context.Context, rec *model.FileRecord) error
	// Update сохраняет mutable-поля записи. ErrNotFound, если записи нет.
	Update(ctx context.Context, rec *model.FileRecord) error
	// FindByID возвращает запись по id или ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.FileRecord, error)
	// DeleteByID удаляет запись. ErrNotFound, если записи нет.
	DeleteByID(ctx context.Context, id string) error

	// ListByOwner возвращает записи владельца, uploaded_at DESC.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.FileRecord, error)
	// ListByMimeType возвращает записи с указанным MIME-типом.
	ListByMimeType(ctx context.Context, mimeType string, limit, offset int) ([]*model.FileRecord, error)
	// SearchByName возвращает записи, имя которых содержит подстроку (без учёта регистра).
	SearchByName(ctx context.Context, pattern string, limit, offset int) ([]*model.FileRecord, error)
	// SearchByTag возвращает записи, хотя бы один тег которых содержит подстроку.
	SearchByTag(ctx context.Context, pattern string, limit, offset int) ([]*model.FileRecord, error)
	// ListPublic возвращает публичные записи.
	ListPublic(ctx context.Context, limit, offset int) ([]*model.FileRecord, error)
	// ListBySizeRange возвращает записи с размером в диапазоне [minBytes, maxBytes].
	ListBySizeRange(ctx context.Context, minBytes, maxBytes int64, limit, offset int) ([]*model.FileRecord, error)

	// FindExpired возвращает записи с expires_at раньше asOf.
	FindExpired(ctx context.Context, asOf time.Time) ([]*model.FileRecord, error)

	// OwnerStats возвращает количество и суммарный объём файлов владельца.
	OwnerStats(ctx context.Context, ownerID string) (OwnerStats, error)
	// CountByMimeType возвращает количество записей с указанным MIME-типом.
	CountByMimeType(ctx context.Context, mimeType string) (int64, error)
	// CountPublic возвращает количество публичных записей.
	CountPublic(ctx context.Context) (int64, error)
	// GlobalStats возвращает глобальные количество и объём.
	GlobalStats(ctx context.Context) (GlobalStats, error)

	// UpdateLastAccessed выставляет время последнего доступа.
	// Fire-and-forget: ошибка не должна проваливать чтение, вызывающий
	// код её только логирует.
	UpdateLastAccessed(ctx context.Context, id string, ts time.Time) error
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий метаданных файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Insert сохраняет новую запись метаданных.
func (r *fileRepo) Insert(ctx context.Context, rec *model.FileRecord) error {
	query := `
		INSERT INTO file_records (id, original_name, stored_name, mime_type, size_bytes,
			checksum, location, owner_id, uploaded_at, last_accessed_at, expires_at,
			description, tags, is_public, content_encoding, content_language, schema_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.OriginalName, rec.StoredName, rec.MimeType, rec.SizeBytes,
		rec.Checksum, rec.Location, rec.OwnerID, rec.UploadedAt, rec.LastAccessedAt,
		rec.ExpiresAt, rec.Description, rec.Tags, rec.IsPublic,
		rec.ContentEncoding, rec.ContentLanguage, rec.SchemaVersion,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: id %s", ErrDuplicate, rec.ID)
		}
		return fmt.Errorf("ошибка сохранения записи: %w", err)
	}
	return nil
}

// Update сохраняет mutable-поля записи. Write-once поля (id, owner_id,
// location, size_bytes, checksum, stored_name) в SET-списке отсутствуют.
func (r *fileRepo) Update(ctx context.Context, rec *model.FileRecord) error {
	query := `
		UPDATE file_records
		SET original_name = $2, mime_type = $3, description = $4, tags = $5, is_public = $6
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		rec.ID, rec.OriginalName, rec.MimeType, rec.Description, rec.Tags, rec.IsPublic)
	if err != nil {
		return fmt.Errorf("ошибка обновления записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID возвращает запись по id или ErrNotFound.
func (r *fileRepo) FindByID(ctx context.Context, id string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE id = $1`, fileColumns)

	rec, err := scanFileRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return rec, nil
}

// DeleteByID удаляет запись по id.
func (r *fileRepo) DeleteByID(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM file_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner возвращает пагинированный список записей владельца.
func (r *fileRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE owner_id = $1 %s LIMIT $2 OFFSET $3`,
		fileColumns, listOrder)
	return r.queryList(ctx, query, ownerID, limit, offset)
}

// ListByMimeType возвращает пагинированный список записей по MIME-типу.
func (r *fileRepo) ListByMimeType(ctx context.Context, mimeType string, limit, offset int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE mime_type = $1 %s LIMIT $2 OFFSET $3`,
		fileColumns, listOrder)
	return r.queryList(ctx, query, mimeType, limit, offset)
}

// SearchByName ищет записи по подстроке имени (ILIKE, без учёта регистра).
func (r *fileRepo) SearchByName(ctx context.Context, pattern string, limit, offset int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE original_name ILIKE $1 %s LIMIT $2 OFFSET $3`,
		fileColumns, listOrder)
	return r.queryList(ctx, query, substringPattern(pattern), limit, offset)
}

// SearchByTag ищет записи, хотя бы один тег которых содержит подстроку.
func (r *fileRepo) SearchByTag(ctx context.Context, pattern string, limit, offset int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records
		WHERE EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE $1)
		%s LIMIT $2 OFFSET $3`, fileColumns, listOrder)
	return r.queryList(ctx, query, substringPattern(pattern), limit, offset)
}

// ListPublic возвращает пагинированный список публичных записей.
func (r *fileRepo) ListPublic(ctx context.Context, limit, offset int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE is_public %s LIMIT $1 OFFSET $2`,
		fileColumns, listOrder)
	return r.queryList(ctx, query, limit, offset)
}

// ListBySizeRange возвращает пагинированный список записей с размером
// в диапазоне [minBytes, maxBytes] включительно.
func (r *fileRepo) ListBySizeRange(ctx context.Context, minBytes, maxBytes int64, limit, offset int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE size_bytes BETWEEN $1 AND $2 %s LIMIT $3 OFFSET $4`,
		fileColumns, listOrder)
	return r.queryList(ctx, query, minBytes, maxBytes, limit, offset)
}

// FindExpired возвращает записи с истёкшим на asOf сроком хранения.
// Записи с expires_at IS NULL не истекают никогда.
func (r *fileRepo) FindExpired(ctx context.Context, asOf time.Time) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE expires_at IS NOT NULL AND expires_at < $1 %s`,
		fileColumns, listOrder)
	return r.queryList(ctx, query, asOf)
}

// OwnerStats возвращает агрегаты по владельцу.
func (r *fileRepo) OwnerStats(ctx context.Context, ownerID string) (OwnerStats, error) {
	var stats OwnerStats
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM file_records WHERE owner_id = $1`,
		ownerID,
	).Scan(&stats.Files, &stats.Bytes)
	if err != nil {
		return OwnerStats{}, fmt.Errorf("ошибка подсчёта агрегатов владельца: %w", err)
	}
	return stats, nil
}

// CountByMimeType возвращает количество записей с указанным MIME-типом.
func (r *fileRepo) CountByMimeType(ctx context.Context, mimeType string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM file_records WHERE mime_type = $1`, mimeType,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта по MIME-типу: %w", err)
	}
	return count, nil
}

// CountPublic возвращает количество публичных записей.
func (r *fileRepo) CountPublic(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM file_records WHERE is_public`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта публичных записей: %w", err)
	}
	return count, nil
}

// GlobalStats возвращает глобальные агрегаты.
func (r *fileRepo) GlobalStats(ctx context.Context) (GlobalStats, error) {
	var stats GlobalStats
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM file_records`,
	).Scan(&stats.Files, &stats.Bytes)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("ошибка подсчёта глобальных агрегатов: %w", err)
	}
	return stats, nil
}

// UpdateLastAccessed выставляет время последнего доступа.
// Отсутствие записи не считается ошибкой: файл мог быть удалён
// между чтением и advisory-обновлением.
func (r *fileRepo) UpdateLastAccessed(ctx context.Context, id string, ts time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE file_records SET last_accessed_at = $2 WHERE id = $1`, id, ts)
	if err != nil {
		return fmt.Errorf("ошибка обновления времени доступа: %w", err)
	}
	return nil
}

// queryList выполняет SELECT со списком записей.
func (r *fileRepo) queryList(ctx context.Context, query string, args ...any) ([]*model.FileRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки записей: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// scanFileRecord сканирует одну строку в FileRecord.
// Порядок полей соответствует fileColumns.
func scanFileRecord(row pgx.Row) (*model.FileRecord, error) {
	rec := &model.FileRecord{}
	err := row.Scan(
		&rec.ID, &rec.OriginalName, &rec.StoredName, &rec.MimeType, &rec.SizeBytes,
		&rec.Checksum, &rec.Location, &rec.OwnerID, &rec.UploadedAt, &rec.LastAccessedAt,
		&rec.ExpiresAt, &rec.Description, &rec.Tags, &rec.IsPublic,
		&rec.ContentEncoding, &rec.ContentLanguage, &rec.SchemaVersion,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// substringPattern оборачивает подстроку в ILIKE-шаблон %...%,
// экранируя спецсимволы LIKE во входе пользователя.
func substringPattern(s string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + escaped + "%"
}
