package handler

import (
	"github.com/hitoshi/eventkeeper/internal/article"
	"github.com/hitoshi/eventkeeper/internal/auth"
	"github.com/hitoshi/eventkeeper/internal/event"
	"github.com/hitoshi/eventkeeper/internal/owner"
	"github.com/hitoshi/eventkeeper/internal/speaker"
	"github.com/hitoshi/eventkeeper/internal/timer"
	"github.com/hitoshi/eventkeeper/internal/user"
)

// ドメインサービスはハンドラーのインターフェースをアダプタなしで満たす。

// compile-time interface checks
var (
	_ AuthServiceInterface    = (*auth.Service)(nil)
	_ EventServiceInterface   = (*event.Service)(nil)
	_ OwnerServiceInterface   = (*owner.Service)(nil)
	_ TimerServiceInterface   = (*timer.Service)(nil)
	_ SpeakerServiceInterface = (*speaker.Service)(nil)
	_ ArticleServiceInterface = (*article.Service)(nil)
	_ UserServiceInterface    = (*user.Service)(nil)
)
