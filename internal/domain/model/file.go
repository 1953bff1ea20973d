// Пакет model — доменные модели File Gateway.
// FileRecord — запись метаданных файла в индексе (PostgreSQL).
// Байты файла хранятся отдельно, в backend'е, на который указывает Location.
package model

import (
	"fmt"
	"time"
)

// SchemaVersion — текущая версия схемы записи метаданных.
const SchemaVersion = 1

// FileRecord — метаданные загруженного файла.
//
// Поля Id, OwnerID, Location, StoredName, SizeBytes и Checksum — write-once:
// задаются один раз при создании через NewFileRecord и никогда не изменяются.
// Изменяемые поля обновляются только через WithUpdate (copy-with-changes),
// чтобы неизменность write-once полей обеспечивалась конструкцией, а не соглашением.
type FileRecord struct {
	// ID — уникальный идентификатор файла (UUID v4), первичный ключ
	ID string `json:"id"`

	// OriginalName — имя файла, указанное клиентом при загрузке
	OriginalName string `json:"original_name"`

	// StoredName — ключ файла в backend'е: {id}_{original_name}.
	// Префикс id исключает коллизии ключей между загрузками.
	StoredName string `json:"stored_name"`

	// MimeType — MIME-тип файла
	MimeType string `json:"mime_type"`

	// SizeBytes — размер файла в байтах
	SizeBytes int64 `json:"size_bytes"`

	// Checksum — SHA-256 хэш содержимого (подсчитан при загрузке)
	Checksum string `json:"checksum"`

	// Location — непрозрачная строка расположения blob'а (local:// или object://).
	// Единственная ссылка из индекса в слой хранения байтов.
	Location string `json:"location"`

	// OwnerID — идентификатор загрузившего (sub из JWT или "api-user")
	OwnerID string `json:"owner_id"`

	// UploadedAt — дата и время загрузки (UTC)
	UploadedAt time.Time `json:"uploaded_at"`

	// LastAccessedAt — время последнего скачивания (advisory, best-effort)
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	// ExpiresAt — дата истечения срока хранения. nil — хранить бессрочно.
	// Истёкшая запись остаётся видимой до прохода sweeper'а (soft expiration).
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Description — описание файла (опционально)
	Description string `json:"description,omitempty"`

	// Tags — теги файла, поиск по подстроке
	Tags []string `json:"tags,omitempty"`

	// IsPublic — публичный файл: чтение доступно любому аутентифицированному
	// принципалу, запись — только владельцу
	IsPublic bool `json:"is_public"`

	// ContentEncoding — Content-Encoding файла (опционально)
	ContentEncoding string `json:"content_encoding,omitempty"`

	// ContentLanguage — Content-Language файла (опционально)
	ContentLanguage string `json:"content_language,omitempty"`

	// SchemaVersion — версия схемы записи
	SchemaVersion int `json:"schema_version"`
}

// NewFileRecordParams — параметры создания записи метаданных.
type NewFileRecordParams struct {
	ID           string
	OriginalName string
	MimeType     string
	SizeBytes    int64
	Checksum     string
	Location     string
	OwnerID      string
	UploadedAt   time.Time
	ExpiresAt    *time.Time
	Description  string
	Tags         []string
	IsPublic     bool
}

// NewFileRecord создаёт запись метаданных. Единственная точка, где
// задаются write-once поля. StoredName выводится из ID и OriginalName.
func NewFileRecord(p NewFileRecordParams) *FileRecord {
	return &FileRecord{
		ID:            p.ID,
		OriginalName:  p.OriginalName,
		StoredName:    StoredName(p.ID, p.OriginalName),
		MimeType:      p.MimeType,
		SizeBytes:     p.SizeBytes,
		Checksum:      p.Checksum,
		Location:      p.Location,
		OwnerID:       p.OwnerID,
		UploadedAt:    p.UploadedAt,
		ExpiresAt:     p.ExpiresAt,
		Description:   p.Description,
		Tags:          normalizeTags(p.Tags),
		IsPublic:      p.IsPublic,
		SchemaVersion: SchemaVersion,
	}
}

// StoredName возвращает ключ файла в backend'е: {id}_{original_name}.
func StoredName(id, originalName string) string {
	return fmt.Sprintf("%s_%s", id, originalName)
}

// normalizeTags заменяет nil на пустой срез. Колонка tags в БД
// объявлена NOT NULL, а nil-срез кодируется драйвером как SQL NULL.
func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// FileUpdate — изменяемые поля записи. nil-поле — оставить без изменений.
// Идентификатор, владелец, расположение, размер и checksum изменению не подлежат.
type FileUpdate struct {
	OriginalName *string  `json:"original_name,omitempty"`
	MimeType     *string  `json:"mime_type,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	IsPublic     *bool    `json:"is_public,omitempty"`
}

// WithUpdate возвращает копию записи с применёнными изменениями.
// Исходная запись не модифицируется. Write-once поля копируются как есть:
// структура FileUpdate не содержит способов их затронуть.
func (r *FileRecord) WithUpdate(u FileUpdate) *FileRecord {
	updated := *r
	if u.OriginalName != nil {
		updated.OriginalName = *u.OriginalName
	}
	if u.MimeType != nil {
		updated.MimeType = *u.MimeType
	}
	if u.Description != nil {
		updated.Description = *u.Description
	}
	if u.Tags != nil {
		updated.Tags = u.Tags
	}
	if u.IsPublic != nil {
		updated.IsPublic = *u.IsPublic
	}
	return &updated
}

// IsExpired проверяет, истёк ли срок хранения на момент now.
// Запись без ExpiresAt не истекает никогда.
func (r *FileRecord) IsExpired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return now.After(*r.ExpiresAt)
}

// ReadableBy проверяет право на чтение: владелец либо публичный файл.
func (r *FileRecord) ReadableBy(principalName string) bool {
	return r.IsPublic || r.OwnerID == principalName
}

// WritableBy проверяет право на изменение/удаление: только владелец.
// Публичность байпасит только чтение.
func (r *FileRecord) WritableBy(principalName string) bool {
	return r.OwnerID == principalName
}
