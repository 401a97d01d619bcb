package invalidation

import (
	"context"

	"github.com/hitoshi/eventkeeper/internal/repository"
)

// WithinTx はstoreのトランザクション内でfnを実行する。
// fnがbに追加したキーはコミット成功後にのみpへ発行される。
// 直列化失敗で再実行される場合、前回試行のキーは破棄する。
func WithinTx(ctx context.Context, store repository.Store, p Publisher, fn func(r *repository.Repos, b *Batch) error) error {
	var batch Batch
	err := store.WithinTx(ctx, func(r *repository.Repos) error {
		batch.Reset()
		return fn(r, &batch)
	})
	if err != nil {
		return err
	}
	batch.Flush(p)
	return nil
}
