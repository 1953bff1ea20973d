// local.go — backend локальной файловой системы.
// Ключ — путь относительно корневой директории (FG_DATA_DIR).
// Запись потоковая: temp файл → fsync → атомарный rename.
package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend — хранение байтов в локальной файловой системе.
type LocalBackend struct {
	// root — корневая директория хранения (FG_DATA_DIR)
	root string
}

// NewLocalBackend создаёт backend с указанным корнем.
// Директория создаётся, если не существует.
func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", root, err)
	}
	return &LocalBackend{root: root}, nil
}

// resolve превращает ключ в абсолютный путь внутри корня.
// Отклоняет пустые и абсолютные ключи, а также ключи, выходящие
// за пределы корня после нормализации (защита от path traversal).
func (b *LocalBackend) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: пустой ключ", ErrInvalidKey)
	}
	if filepath.IsAbs(key) {
		return "", fmt.Errorf("%w: абсолютный путь %q", ErrInvalidKey, key)
	}

	cleaned := filepath.Clean(key)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: ключ %q выходит за пределы хранилища", ErrInvalidKey, key)
	}

	return filepath.Join(b.root, cleaned), nil
}

// Put записывает содержимое reader в файл под ключом key.
// Паттерн: temp файл → запись → fsync → атомарный rename.
// При ошибке temp файл удаляется. Параметр size не требуется:
// локальная запись работает с потоком неизвестной длины.
func (b *LocalBackend) Put(ctx context.Context, key string, reader io.Reader, _ int64, _ string) error {
	fullPath, err := b.resolve(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: ошибка создания временного файла: %v", ErrBackendUnreachable, err)
	}

	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск до rename
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// Get открывает файл по ключу. Вызывающий код обязан закрыть ReadCloser.
func (b *LocalBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := b.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	return f, nil
}

// Delete удаляет файл. Отсутствие файла — не ошибка (идемпотентность).
func (b *LocalBackend) Delete(_ context.Context, key string) error {
	fullPath, err := b.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	return nil
}

// Exists проверяет наличие файла. Любая ошибка — false (best-effort).
func (b *LocalBackend) Exists(_ context.Context, key string) bool {
	fullPath, err := b.resolve(key)
	if err != nil {
		return false
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Проверка на этапе компиляции
var _ Backend = (*LocalBackend)(nil)
