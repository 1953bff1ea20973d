// Пакет location — кодек непрозрачной строки расположения blob'а.
//
// Формат: {scheme}://{backend-specific key}
//   - local://{key}           — файл в локальном хранилище (ключ относительно FG_DATA_DIR)
//   - object://{bucket}/{key} — объект в S3-совместимом хранилище
//
// Строка расположения — единственный указатель из записи метаданных в слой
// хранения байтов. Выбор backend'а фиксируется в ней при загрузке и никогда
// не пересматривается: download/delete всегда идут в backend из строки,
// а не в текущий сконфигурированный по умолчанию.
package location

import (
	"errors"
	"fmt"
	"strings"
)

// Kind — вид backend'а хранения байтов.
type Kind string

const (
	// KindLocal — локальная файловая система
	KindLocal Kind = "local"
	// KindObject — S3-совместимое объектное хранилище
	KindObject Kind = "object"
)

const (
	schemeLocal  = "local://"
	schemeObject = "object://"
)

// ErrMalformedLocation — строка расположения не распознана.
// Неизвестная схема никогда не трактуется как backend по умолчанию:
// ошибочный выбор backend'а для delete/get — угроза сохранности данных.
var ErrMalformedLocation = errors.New("некорректная строка расположения")

// Location — разобранная строка расположения.
type Location struct {
	// Kind — вид backend'а
	Kind Kind
	// Bucket — имя bucket'а (только для KindObject)
	Bucket string
	// Key — ключ внутри backend'а
	Key string
}

// EncodeLocal кодирует расположение в локальном хранилище.
func EncodeLocal(key string) string {
	return schemeLocal + key
}

// EncodeObject кодирует расположение в объектном хранилище.
func EncodeObject(bucket, key string) string {
	return schemeObject + bucket + "/" + key
}

// Decode разбирает строку расположения. Round-trip с Encode* без потерь.
// Возвращает ErrMalformedLocation при неизвестной схеме или пустом ключе.
func Decode(raw string) (Location, error) {
	switch {
	case strings.HasPrefix(raw, schemeLocal):
		key := raw[len(schemeLocal):]
		if key == "" {
			return Location{}, fmt.Errorf("%w: пустой ключ в %q", ErrMalformedLocation, raw)
		}
		return Location{Kind: KindLocal, Key: key}, nil

	case strings.HasPrefix(raw, schemeObject):
		rest := raw[len(schemeObject):]
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return Location{}, fmt.Errorf("%w: ожидается object://{bucket}/{key}, получено %q",
				ErrMalformedLocation, raw)
		}
		return Location{Kind: KindObject, Bucket: bucket, Key: key}, nil

	default:
		return Location{}, fmt.Errorf("%w: неизвестная схема в %q", ErrMalformedLocation, raw)
	}
}

// String возвращает каноническую строку расположения.
func (l Location) String() string {
	if l.Kind == KindObject {
		return EncodeObject(l.Bucket, l.Key)
	}
	return EncodeLocal(l.Key)
}
