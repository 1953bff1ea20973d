package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/file-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/file-gateway/internal/repository"
	"github.com/bigkaa/goartstore/file-gateway/internal/storage/backend"
	"github.com/bigkaa/goartstore/file-gateway/internal/storage/gateway"
)

// memRepo — in-memory реализация FileRepository для тестов.
// Списки возвращаются в порядке uploaded_at DESC, id ASC.
type memRepo struct {
	mu      sync.Mutex
	records map[string]*model.FileRecord
	// insertErr подменяет результат Insert для проверки компенсации
	insertErr error
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[string]*model.FileRecord{}}
}

func (m *memRepo) Insert(_ context.Context, rec *model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.records[rec.ID]; ok {
		return repository.ErrDuplicate
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memRepo) Update(_ context.Context, rec *model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memRepo) FindByID(_ context.Context, id string) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// sorted возвращает все записи в порядке uploaded_at DESC, id ASC.
func (m *memRepo) sorted() []*model.FileRecord {
	out := make([]*model.FileRecord, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func page(records []*model.FileRecord, limit, offset int) []*model.FileRecord {
	if offset >= len(records) {
		return nil
	}
	records = records[offset:]
	if limit < len(records) {
		records = records[:limit]
	}
	return records
}

func (m *memRepo) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FileRecord
	for _, rec := range m.sorted() {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return page(out, limit, offset), nil
}

func (m *memRepo) ListByMimeType(_ context.Context, mimeType string, limit, offset int) ([]*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FileRecord
	for _, rec := range m.sorted() {
		if rec.MimeType == mimeType {
			out = append(out, rec)
		}
	}
	return page(out, limit, offset), nil
}

func (m *memRepo) SearchByName(_ context.Context, pattern string, limit, offset int) ([]*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FileRecord
	for _, rec := range m.sorted() {
		if strings.Contains(strings.ToLower(rec.OriginalName), strings.ToLower(pattern)) {
			out = append(out, rec)
		}
	}
	return page(out, limit, offset), nil
}

func (m *memRepo) SearchByTag(_ context.Context, pattern string, limit, offset int) ([]*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FileRecord
	for _, rec := range m.sorted() {
		for _, tag := range rec.Tags {
			if strings.Contains(strings.ToLower(tag), strings.ToLower(pattern)) {
				out = append(out, rec)
				break
			}
		}
	}
	return page(out, limit, offset), nil
}

func (m *memRepo) ListPublic(_ context.Context, limit, offset int) ([]*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FileRecord
	for _, rec := range m.sorted() {
		if rec.IsPublic {
			out = append(out, rec)
		}
	}
	return page(out, limit, offset), nil
}

func (m *memRepo) ListBySizeRange(_ context.Context, minBytes, maxBytes int64, limit, offset int) ([]*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FileRecord
	for _, rec := range m.sorted() {
		if rec.SizeBytes >= minBytes && rec.SizeBytes <= maxBytes {
			out = append(out, rec)
		}
	}
	return page(out, limit, offset), nil
}

func (m *memRepo) CountPublic(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.records {
		if rec.IsPublic {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) FindExpired(_ context.Context, asOf time.Time) ([]*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FileRecord
	for _, rec := range m.sorted() {
		if rec.ExpiresAt != nil && rec.ExpiresAt.Before(asOf) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memRepo) OwnerStats(_ context.Context, ownerID string) (repository.OwnerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats repository.OwnerStats
	for _, rec := range m.records {
		if rec.OwnerID == ownerID {
			stats.Files++
			stats.Bytes += rec.SizeBytes
		}
	}
	return stats, nil
}

func (m *memRepo) CountByMimeType(_ context.Context, mimeType string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.records {
		if rec.MimeType == mimeType {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) GlobalStats(_ context.Context) (repository.GlobalStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats repository.GlobalStats
	for _, rec := range m.records {
		stats.Files++
		stats.Bytes += rec.SizeBytes
	}
	return stats, nil
}

func (m *memRepo) UpdateLastAccessed(_ context.Context, id string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		rec.LastAccessedAt = &ts
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestService создаёт FileService с in-memory репозиторием
// и настоящим локальным backend'ом во временной директории.
func newTestService(t *testing.T) (*FileService, *memRepo, *gateway.Gateway) {
	svc, repo, gw, _ := newTestServiceDir(t)
	return svc, repo, gw
}

func newTestServiceDir(t *testing.T) (*FileService, *memRepo, *gateway.Gateway, string) {
	t.Helper()

	dataDir := t.TempDir()
	repo := newMemRepo()
	local, err := backend.NewLocalBackend(dataDir)
	if err != nil {
		t.Fatalf("создание локального backend'а: %v", err)
	}
	gw := gateway.New(local, nil, "", testLogger())
	cache := NewCacheService(64, time.Minute)
	svc := NewFileService(repo, gw, cache, 1<<20, testLogger())
	return svc, repo, gw, dataDir
}

func writer(name string) *middleware.Principal {
	return &middleware.Principal{
		Name:   name,
		Scopes: []string{middleware.ScopeFileRead, middleware.ScopeFileWrite},
	}
}

func reader(name string) *middleware.Principal {
	return &middleware.Principal{
		Name:   name,
		Scopes: []string{middleware.ScopeFileRead},
	}
}

// TestUploadDownload — сквозной сценарий: загрузка, метаданные, скачивание.
func TestUploadDownload(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	content := []byte("0123456789")

	record, opErr := svc.Upload(ctx, writer("alice"), UploadParams{
		Reader:       strings.NewReader(string(content)),
		OriginalName: "report.txt",
		ContentType:  "text/plain",
		Size:         int64(len(content)),
		Tags:         []string{"reports"},
	})
	if opErr != nil {
		t.Fatalf("Upload вернул ошибку: %v", opErr)
	}

	if record.OwnerID != "alice" {
		t.Errorf("OwnerID = %q, ожидалось alice", record.OwnerID)
	}
	if record.SizeBytes != 10 {
		t.Errorf("SizeBytes = %d, ожидалось 10", record.SizeBytes)
	}
	wantSum := sha256.Sum256(content)
	if record.Checksum != hex.EncodeToString(wantSum[:]) {
		t.Errorf("Checksum = %q, ожидался SHA-256 содержимого", record.Checksum)
	}
	wantStored := record.ID + "_report.txt"
	if record.StoredName != wantStored {
		t.Errorf("StoredName = %q, ожидалось %q", record.StoredName, wantStored)
	}
	if !strings.HasPrefix(record.Location, "local://") {
		t.Errorf("Location = %q, ожидалась схема local://", record.Location)
	}

	got, rc, opErr := svc.Download(ctx, writer("alice"), record.ID)
	if opErr != nil {
		t.Fatalf("Download вернул ошибку: %v", opErr)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("чтение потока: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("содержимое = %q, ожидалось %q", data, content)
	}
	if got.ID != record.ID {
		t.Errorf("ID записи = %q, ожидалось %q", got.ID, record.ID)
	}
}

// TestUploadRequiresWriteScope — без file:write загрузка запрещена.
func TestUploadRequiresWriteScope(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, opErr := svc.Upload(context.Background(), reader("alice"), UploadParams{
		Reader:       strings.NewReader("x"),
		OriginalName: "a.txt",
		Size:         1,
	})
	if opErr == nil {
		t.Fatal("Upload без file:write должен вернуть ошибку")
	}
	if opErr.StatusCode != 403 {
		t.Errorf("StatusCode = %d, ожидалось 403", opErr.StatusCode)
	}
}

// TestUploadSizeLimit — превышение лимита отклоняется до записи байтов.
func TestUploadSizeLimit(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, opErr := svc.Upload(context.Background(), writer("alice"), UploadParams{
		Reader:       strings.NewReader("x"),
		OriginalName: "big.bin",
		Size:         2 << 20,
	})
	if opErr == nil {
		t.Fatal("Upload сверх лимита должен вернуть ошибку")
	}
	if opErr.StatusCode != 413 {
		t.Errorf("StatusCode = %d, ожидалось 413", opErr.StatusCode)
	}
	if len(repo.records) != 0 {
		t.Error("запись не должна была появиться в репозитории")
	}
}

// TestUploadCompensation — при сбое вставки blob удаляется.
func TestUploadCompensation(t *testing.T) {
	svc, repo, _, dataDir := newTestServiceDir(t)
	repo.insertErr = fmt.Errorf("БД недоступна")

	_, opErr := svc.Upload(context.Background(), writer("alice"), UploadParams{
		Reader:       strings.NewReader("data"),
		OriginalName: "a.txt",
		Size:         4,
	})
	if opErr == nil {
		t.Fatal("Upload при сбое вставки должен вернуть ошибку")
	}
	if opErr.StatusCode != 500 {
		t.Errorf("StatusCode = %d, ожидалось 500", opErr.StatusCode)
	}

	// Осиротевших blob'ов не остаётся: компенсирующее удаление
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		t.Fatalf("чтение директории данных: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("в директории данных остались файлы: %v", entries)
	}
	for id := range repo.records {
		t.Errorf("неожиданная запись в репозитории: %s", id)
	}
}

// TestUploadTTL — ttl_days выставляет expires_at.
func TestUploadTTL(t *testing.T) {
	svc, _, _ := newTestService(t)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	record, opErr := svc.Upload(context.Background(), writer("alice"), UploadParams{
		Reader:       strings.NewReader("x"),
		OriginalName: "tmp.txt",
		Size:         1,
		TTLDays:      7,
	})
	if opErr != nil {
		t.Fatalf("Upload вернул ошибку: %v", opErr)
	}
	if record.ExpiresAt == nil {
		t.Fatal("ExpiresAt должен быть задан")
	}
	want := now.AddDate(0, 0, 7)
	if !record.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, ожидалось %v", record.ExpiresAt, want)
	}
	// Загрузка без тегов несёт пустой срез, пригодный для NOT NULL колонки
	if record.Tags == nil {
		t.Error("Tags = nil, ожидался пустой срез")
	}
}

// TestOwnershipIsolation — чужой приватный файл неотличим от несуществующего,
// публичный файл читается любым, но изменяется только владельцем.
func TestOwnershipIsolation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	private, opErr := svc.Upload(ctx, writer("alice"), UploadParams{
		Reader:       strings.NewReader("secret"),
		OriginalName: "private.txt",
		Size:         6,
	})
	if opErr != nil {
		t.Fatalf("Upload вернул ошибку: %v", opErr)
	}

	public, opErr := svc.Upload(ctx, writer("alice"), UploadParams{
		Reader:       strings.NewReader("open"),
		OriginalName: "public.txt",
		Size:         4,
		IsPublic:     true,
	})
	if opErr != nil {
		t.Fatalf("Upload вернул ошибку: %v", opErr)
	}

	// Чужой приватный файл — 404, не 403
	if _, opErr := svc.GetMetadata(ctx, writer("bob"), private.ID); opErr == nil || opErr.StatusCode != 404 {
		t.Errorf("чтение чужого приватного файла: ожидался 404, получено %v", opErr)
	}
	if _, _, opErr := svc.Download(ctx, writer("bob"), private.ID); opErr == nil || opErr.StatusCode != 404 {
		t.Errorf("скачивание чужого приватного файла: ожидался 404, получено %v", opErr)
	}

	// Публичный файл читается не-владельцем
	if _, rc, opErr := svc.Download(ctx, reader("bob"), public.ID); opErr != nil {
		t.Errorf("скачивание публичного файла: %v", opErr)
	} else {
		rc.Close()
	}

	// Но изменение публичного файла не-владельцем — 403
	desc := "new"
	if _, opErr := svc.UpdateMetadata(ctx, writer("bob"), public.ID, model.FileUpdate{Description: &desc}); opErr == nil || opErr.StatusCode != 403 {
		t.Errorf("изменение чужого публичного файла: ожидался 403, получено %v", opErr)
	}
	if opErr := svc.Delete(ctx, writer("bob"), public.ID); opErr == nil || opErr.StatusCode != 403 {
		t.Errorf("удаление чужого публичного файла: ожидался 403, получено %v", opErr)
	}
}

// TestUpdateMetadata — изменяемые поля меняются, write-once сохраняются.
func TestUpdateMetadata(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	record, opErr := svc.Upload(ctx, writer("alice"), UploadParams{
		Reader:       strings.NewReader("data"),
		OriginalName: "doc.txt",
		ContentType:  "text/plain",
		Size:         4,
	})
	if opErr != nil {
		t.Fatalf("Upload вернул ошибку: %v", opErr)
	}

	desc := "квартальный отчёт"
	pub := true
	updated, opErr := svc.UpdateMetadata(ctx, writer("alice"), record.ID, model.FileUpdate{
		Description: &desc,
		IsPublic:    &pub,
		Tags:        []string{"q1", "reports"},
	})
	if opErr != nil {
		t.Fatalf("UpdateMetadata вернул ошибку: %v", opErr)
	}

	if updated.Description != desc {
		t.Errorf("Description = %q, ожидалось %q", updated.Description, desc)
	}
	if !updated.IsPublic {
		t.Error("IsPublic должен быть true")
	}
	if updated.Checksum != record.Checksum || updated.Location != record.Location ||
		updated.OwnerID != record.OwnerID || updated.SizeBytes != record.SizeBytes {
		t.Error("write-once поля изменились при обновлении метаданных")
	}
}

// TestDelete — удаление убирает и blob, и запись; повторное удаление — 404.
func TestDelete(t *testing.T) {
	svc, _, gw := newTestService(t)
	ctx := context.Background()

	record, opErr := svc.Upload(ctx, writer("alice"), UploadParams{
		Reader:       strings.NewReader("bye"),
		OriginalName: "gone.txt",
		Size:         3,
	})
	if opErr != nil {
		t.Fatalf("Upload вернул ошибку: %v", opErr)
	}

	if opErr := svc.Delete(ctx, writer("alice"), record.ID); opErr != nil {
		t.Fatalf("Delete вернул ошибку: %v", opErr)
	}

	if gw.Exists(ctx, record.Location) {
		t.Error("blob должен быть удалён")
	}
	if _, opErr := svc.GetMetadata(ctx, writer("alice"), record.ID); opErr == nil || opErr.StatusCode != 404 {
		t.Errorf("метаданные удалённого файла: ожидался 404, получено %v", opErr)
	}
	if opErr := svc.Delete(ctx, writer("alice"), record.ID); opErr == nil || opErr.StatusCode != 404 {
		t.Errorf("повторное удаление: ожидался 404, получено %v", opErr)
	}
}

// TestListPagination — страницы стабильны и не пересекаются.
func TestListPagination(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return ts }
		_, opErr := svc.Upload(ctx, writer("alice"), UploadParams{
			Reader:       strings.NewReader("x"),
			OriginalName: fmt.Sprintf("f%d.txt", i),
			Size:         1,
		})
		if opErr != nil {
			t.Fatalf("Upload вернул ошибку: %v", opErr)
		}
	}

	seen := map[string]bool{}
	for p := 1; p <= 3; p++ {
		records, opErr := svc.ListOwn(ctx, writer("alice"), p, 3)
		if opErr != nil {
			t.Fatalf("ListOwn(страница %d) вернул ошибку: %v", p, opErr)
		}
		for _, rec := range records {
			if seen[rec.ID] {
				t.Errorf("запись %s встретилась на двух страницах", rec.ID)
			}
			seen[rec.ID] = true
		}
	}
	if len(seen) != 7 {
		t.Errorf("через страницы прошло %d записей, ожидалось 7", len(seen))
	}

	// Первая страница — самые свежие записи
	first, _ := svc.ListOwn(ctx, writer("alice"), 1, 3)
	if len(first) != 3 || first[0].OriginalName != "f6.txt" {
		t.Errorf("первая страница должна начинаться с самой свежей записи, получено %+v", first)
	}
}

// TestStats — агрегаты по владельцу и глобально.
func TestStats(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i, owner := range []string{"alice", "alice", "bob"} {
		_, opErr := svc.Upload(ctx, writer(owner), UploadParams{
			Reader:       strings.NewReader(strings.Repeat("x", 10)),
			OriginalName: fmt.Sprintf("s%d.txt", i),
			Size:         10,
			IsPublic:     owner == "bob",
		})
		if opErr != nil {
			t.Fatalf("Upload вернул ошибку: %v", opErr)
		}
	}

	stats, opErr := svc.Stats(ctx, writer("alice"))
	if opErr != nil {
		t.Fatalf("Stats вернул ошибку: %v", opErr)
	}
	if stats.Owner.Files != 2 || stats.Owner.Bytes != 20 {
		t.Errorf("агрегаты владельца = %+v, ожидалось 2 файла / 20 байт", stats.Owner)
	}
	if stats.Global.Files != 3 || stats.Global.Bytes != 30 {
		t.Errorf("глобальные агрегаты = %+v, ожидалось 3 файла / 30 байт", stats.Global)
	}
	if stats.PublicFiles != 1 {
		t.Errorf("PublicFiles = %d, ожидался 1", stats.PublicFiles)
	}
}

// TestSearch — поиск по имени и тегу без учёта регистра.
func TestSearch(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, opErr := svc.Upload(ctx, writer("alice"), UploadParams{
		Reader:       strings.NewReader("x"),
		OriginalName: "Annual-Report.pdf",
		ContentType:  "application/pdf",
		Size:         1,
		Tags:         []string{"Finance", "2026"},
	})
	if opErr != nil {
		t.Fatalf("Upload вернул ошибку: %v", opErr)
	}

	byName, opErr := svc.SearchByName(ctx, "report", 1, 10)
	if opErr != nil || len(byName) != 1 {
		t.Errorf("SearchByName(report) = %d записей (%v), ожидалась 1", len(byName), opErr)
	}
	byTag, opErr := svc.SearchByTag(ctx, "fin", 1, 10)
	if opErr != nil || len(byTag) != 1 {
		t.Errorf("SearchByTag(fin) = %d записей (%v), ожидалась 1", len(byTag), opErr)
	}
	byMime, opErr := svc.ListByMimeType(ctx, "application/pdf", 1, 10)
	if opErr != nil || len(byMime) != 1 {
		t.Errorf("ListByMimeType(application/pdf) = %d записей (%v), ожидалась 1", len(byMime), opErr)
	}
}

// TestListBySizeRange — границы диапазона включительны.
func TestListBySizeRange(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i, n := range []int{5, 10, 50} {
		_, opErr := svc.Upload(ctx, writer("alice"), UploadParams{
			Reader:       strings.NewReader(strings.Repeat("x", n)),
			OriginalName: fmt.Sprintf("r%d.bin", i),
			Size:         int64(n),
		})
		if opErr != nil {
			t.Fatalf("Upload вернул ошибку: %v", opErr)
		}
	}

	records, opErr := svc.ListBySizeRange(ctx, 5, 10, 1, 10)
	if opErr != nil {
		t.Fatalf("ListBySizeRange вернул ошибку: %v", opErr)
	}
	if len(records) != 2 {
		t.Errorf("ListBySizeRange(5, 10) = %d записей, ожидались 2", len(records))
	}
	for _, rec := range records {
		if rec.SizeBytes < 5 || rec.SizeBytes > 10 {
			t.Errorf("запись %s размером %d вне диапазона [5, 10]", rec.ID, rec.SizeBytes)
		}
	}
}
