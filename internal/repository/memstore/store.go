// Package memstore はrepository.Storeのインメモリ実装を提供する。
// DATA_STOREにmemoryを指定した単一プロセス構成とテストで使用する。
package memstore

import (
	"context"
	"maps"
	"sync"

	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

// state は全テーブルの内容を保持する。
type state struct {
	users      map[string]model.User
	identities map[string]model.Identity
	sessions   map[string]model.Session
	events     map[string]model.Event
	owners     map[string]model.Owner
	timers     map[string]model.Timer
	speakers   map[string]model.Speaker
	articles   map[string]model.Article
}

func newState() *state {
	return &state{
		users:      make(map[string]model.User),
		identities: make(map[string]model.Identity),
		sessions:   make(map[string]model.Session),
		events:     make(map[string]model.Event),
		owners:     make(map[string]model.Owner),
		timers:     make(map[string]model.Timer),
		speakers:   make(map[string]model.Speaker),
		articles:   make(map[string]model.Article),
	}
}

func (s *state) clone() *state {
	return &state{
		users:      maps.Clone(s.users),
		identities: maps.Clone(s.identities),
		sessions:   maps.Clone(s.sessions),
		events:     maps.Clone(s.events),
		owners:     maps.Clone(s.owners),
		timers:     maps.Clone(s.timers),
		speakers:   maps.Clone(s.speakers),
		articles:   maps.Clone(s.articles),
	}
}

// Store はインメモリのStore実装。
// トランザクションは単一のミューテックスで直列化し、
// fnがエラーを返した場合は開始時点のスナップショットに戻す。
type Store struct {
	mu    sync.Mutex
	data  *state
	repos *repository.Repos
}

// New は空のStoreを生成する。
func New() *Store {
	s := &Store{data: newState()}
	s.repos = s.bind(false)
	return s
}

// bind はStoreに束縛されたリポジトリ群を生成する。
// inTxがtrueの場合、呼び出し側がすでにロックを保持している。
func (s *Store) bind(inTx bool) *repository.Repos {
	b := &binding{store: s, inTx: inTx}
	return &repository.Repos{
		Users:      &userRepo{b},
		Identities: &identityRepo{b},
		Sessions:   &sessionRepo{b},
		Events:     &eventRepo{b},
		Owners:     &ownerRepo{b},
		Timers:     &timerRepo{b},
		Speakers:   &speakerRepo{b},
		Articles:   &articleRepo{b},
	}
}

// Repos はトランザクション外で使用するリポジトリ群を返す。
// 各操作は個別にロックを取得する。
func (s *Store) Repos() *repository.Repos {
	return s.repos
}

// WithinTx はfnを排他的に実行する。fnがエラーを返した場合は変更を破棄する。
func (s *Store) WithinTx(ctx context.Context, fn func(r *repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(s.bind(true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// binding はリポジトリ群が共有するロック状態。
type binding struct {
	store *Store
	inTx  bool
}

// enter はデータへの排他アクセスを開始し、終了用の関数を返す。
func (b *binding) enter() (*state, func()) {
	if b.inTx {
		return b.store.data, func() {}
	}
	b.store.mu.Lock()
	return b.store.data, b.store.mu.Unlock
}

// compile-time interface check
var _ repository.Store = (*Store)(nil)
