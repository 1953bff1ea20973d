// Пакет service — бизнес-логика File Gateway.
// CacheService снимает с PostgreSQL повторные чтения метаданных по id:
// записи живут в LRU с TTL (hashicorp/golang-lru/v2/expirable).
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/file-gateway/internal/domain/model"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fg_cache_hits_total",
		Help: "Количество попаданий в кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fg_cache_misses_total",
		Help: "Количество промахов кэша метаданных.",
	})
)

// CacheService — LRU-кэш записей метаданных по file_id.
// Кэш per-instance: при нескольких экземплярах gateway инвалидация
// на соседях происходит только по истечении TTL.
type CacheService struct {
	cache *expirable.LRU[string, *model.FileRecord]
}

// NewCacheService создаёт кэш на maxSize записей с указанным TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{
		cache: expirable.NewLRU[string, *model.FileRecord](maxSize, nil, ttl),
	}
}

// Get возвращает запись по fileID. false — промах.
func (c *CacheService) Get(fileID string) (*model.FileRecord, bool) {
	val, ok := c.cache.Get(fileID)
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return val, true
}

// Set добавляет или обновляет запись.
func (c *CacheService) Set(fileID string, record *model.FileRecord) {
	c.cache.Add(fileID, record)
}

// Delete инвалидирует запись при update/delete файла.
func (c *CacheService) Delete(fileID string) {
	c.cache.Remove(fileID)
}
