// Пакет cache — LRU-кэш с TTL для ответов внешних сервисов.
// Обёртка над hashicorp/golang-lru/v2/expirable с метриками hit/miss.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэшей. Метка cache — имя кэша.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eb_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш.",
	}, []string{"cache"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eb_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша.",
	}, []string{"cache"})
)

// LRU — кэш с ограничением размера и временем жизни записи.
// Потокобезопасен.
type LRU[K comparable, V any] struct {
	lru    *expirable.LRU[K, V]
	hits   prometheus.Counter
	misses prometheus.Counter
}

// New создаёт кэш name на maxSize записей с временем жизни ttl.
func New[K comparable, V any](name string, maxSize int, ttl time.Duration) *LRU[K, V] {
	return &LRU[K, V]{
		lru:    expirable.NewLRU[K, V](maxSize, nil, ttl),
		hits:   cacheHitsTotal.WithLabelValues(name),
		misses: cacheMissesTotal.WithLabelValues(name),
	}
}

// Get возвращает значение по ключу. (значение, true) при hit.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	val, ok := c.lru.Get(key)
	if ok {
		c.hits.Inc()
		return val, true
	}
	c.misses.Inc()
	return val, false
}

// Set добавляет или обновляет запись.
func (c *LRU[K, V]) Set(key K, val V) {
	c.lru.Add(key, val)
}

// Delete удаляет запись (инвалидация).
func (c *LRU[K, V]) Delete(key K) {
	c.lru.Remove(key)
}

// Len возвращает число записей.
func (c *LRU[K, V]) Len() int {
	return c.lru.Len()
}
