// Package invalidation はコミット後のキャッシュ無効化通知を配信する。
package invalidation

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/eventkeeper/internal/metrics"
)

// Key は無効化対象を表すキー。"event:<id>" または "user:<id>" の形式。
type Key string

// EventKey はイベント単位の無効化キーを返す。
func EventKey(eventID string) Key {
	return Key("event:" + eventID)
}

// UserKey はユーザー単位の無効化キーを返す。
func UserKey(userID string) Key {
	return Key("user:" + userID)
}

// Kind はキーの種別（event / user）を返す。
func (k Key) Kind() string {
	kind, _, _ := strings.Cut(string(k), ":")
	return kind
}

// Subscriber は無効化キーを受け取るコールバック。
type Subscriber func(keys []Key)

// Publisher は無効化キーの発行インターフェース。
type Publisher interface {
	Publish(keys ...Key)
}

// Bus はプロセス内の無効化通知バス。
// Publishは購読者を同期的に呼び出す。
type Bus struct {
	mu      sync.RWMutex
	subs    []Subscriber
	metrics metrics.MetricsCollector
}

// NewBus はBusを生成する。mがnilの場合はメトリクスを記録しない。
func NewBus(m metrics.MetricsCollector) *Bus {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Bus{metrics: m}
}

// Subscribe は購読者を登録する。
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish は重複を除いたキーを全購読者に配信する。
func (b *Bus) Publish(keys ...Key) {
	keys = dedupe(keys)
	if len(keys) == 0 {
		return
	}

	for _, k := range keys {
		b.metrics.RecordInvalidation(k.Kind())
	}
	slog.Debug("invalidation published", slog.Int("keys", len(keys)))

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(keys)
	}
}

func dedupe(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Batch はトランザクション中に無効化キーを蓄積する。
// トランザクションの再実行時はResetで破棄し、コミット後にのみFlushする。
type Batch struct {
	keys []Key
}

// Add はキーを追加する。
func (b *Batch) Add(keys ...Key) {
	b.keys = append(b.keys, keys...)
}

// Reset は蓄積したキーを破棄する。
func (b *Batch) Reset() {
	b.keys = b.keys[:0]
}

// Keys は蓄積したキーを返す。
func (b *Batch) Keys() []Key {
	return dedupe(b.keys)
}

// Flush は蓄積したキーをpに発行する。pがnilの場合は何もしない。
func (b *Batch) Flush(p Publisher) {
	if p == nil {
		return
	}
	p.Publish(b.keys...)
}

// compile-time interface check
var _ Publisher = (*Bus)(nil)
