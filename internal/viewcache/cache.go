// Package viewcache は読み取りビューの短期キャッシュを提供する。
// エントリは依存する無効化キーとともに保存され、Bus経由の通知で破棄される。
package viewcache

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/metrics"
)

type entry struct {
	value     any
	deps      []invalidation.Key
	expiresAt time.Time
}

// Cache はTTL付きのビューキャッシュ。
// 同一キーの同時ロードはsingleflightで1回にまとめる。
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	metrics metrics.MetricsCollector

	mu      sync.Mutex
	entries map[string]entry
	// epoch は無効化のたびに増加する。ロード中に無効化が起きた結果は保存しない。
	epoch uint64

	group singleflight.Group
}

// New はCacheを生成する。ttlが0以下の場合はキャッシュせず毎回ロードする。
func New(ttl time.Duration, m metrics.MetricsCollector) *Cache {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
		entries: make(map[string]entry),
	}
}

// LoadFunc は値と、その値が依存する無効化キーを返す。
type LoadFunc[T any] func() (T, []invalidation.Key, error)

// Get はキャッシュ済みの値を返す。未キャッシュまたは期限切れの場合はloadで取得して保存する。
func Get[T any](c *Cache, key string, load LoadFunc[T]) (T, error) {
	if v, ok := c.lookup(key); ok {
		c.metrics.RecordCacheLookup(true)
		return v.(T), nil
	}
	c.metrics.RecordCacheLookup(false)

	c.mu.Lock()
	startEpoch := c.epoch
	c.mu.Unlock()

	// 無効化後に始まった読み取りが、無効化前に始まったロードに合流しないようepochをフライトキーに含める。
	flight := key + "@" + strconv.FormatUint(startEpoch, 10)
	v, err, _ := c.group.Do(flight, func() (any, error) {
		value, deps, err := load()
		if err != nil {
			return nil, err
		}
		c.store(key, value, deps, startEpoch)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(key string, value any, deps []invalidation.Key, startEpoch uint64) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != startEpoch {
		return
	}
	c.entries[key] = entry{value: value, deps: deps, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate はkeysのいずれかに依存するエントリを破棄する。
// invalidation.Busの購読者として登録する。
func (c *Cache) Invalidate(keys []invalidation.Key) {
	if len(keys) == 0 {
		return
	}
	set := make(map[invalidation.Key]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for name, e := range c.entries {
		for _, d := range e.deps {
			if _, ok := set[d]; ok {
				delete(c.entries, name)
				break
			}
		}
	}
}

// Len はキャッシュ中のエントリ数を返す。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
