package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/eventkeeper/internal/metrics"
	"github.com/hitoshi/eventkeeper/internal/middleware"
)

// HealthChecker はヘルスチェックでデータストアの疎通を確認するインターフェース。
// *sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Metrics           metrics.MetricsCollector

	// HealthChecker がnilの場合、/health は常に200を返す。
	HealthChecker HealthChecker
	// MetricsHandler がnilの場合、/metrics は登録しない。
	MetricsHandler http.Handler

	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	EventService   EventServiceInterface
	OwnerService   OwnerServiceInterface
	TimerService   TimerServiceInterface
	SpeakerService SpeakerServiceInterface
	ArticleService ArticleServiceInterface
	UserService    UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Metrics → Recovery → SecurityHeaders → CORS
//	  /api/*: Session → RateLimit(General) → RateLimit(Mutation) → CSRF
//
// /health, /metrics, /auth/* はセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(m))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, routeNotFoundError())
	})

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	eventHandler := NewEventHandler(deps.EventService)
	ownerHandler := NewOwnerHandler(deps.OwnerService)
	timerHandler := NewTimerHandler(deps.TimerService)
	speakerHandler := NewSpeakerHandler(deps.SpeakerService)
	articleHandler := NewArticleHandler(deps.ArticleService)
	userHandler := NewUserHandler(deps.UserService)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(deps.RateLimiter.MutationMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		r.Route("/events", func(r chi.Router) {
			r.Get("/", eventHandler.ListEvents)
			r.Post("/", eventHandler.CreateEvent)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", eventHandler.GetEvent)
				r.Patch("/", eventHandler.UpdateEvent)
				r.Delete("/", eventHandler.DeleteEvent)

				r.Put("/attendance", eventHandler.SetAttendance)
				r.Post("/attendance/increment", eventHandler.IncrementAttendance)

				r.Get("/owners", ownerHandler.ListOwners)
				r.Post("/owners", ownerHandler.AddOwner)
				r.Delete("/owners/{userID}", ownerHandler.RemoveOwner)
				r.Put("/owners/{ownerID}/role", ownerHandler.ChangeRole)

				r.Get("/timers", timerHandler.ListTimers)
				r.Post("/timers", timerHandler.AddTimer)
				r.Put("/timers/order", timerHandler.ReorderTimers)
				r.Get("/schedule", timerHandler.Schedule)

				r.Get("/speakers", speakerHandler.ListSpeakers)
				r.Post("/speakers", speakerHandler.AddSpeaker)
				r.Patch("/speakers/{userID}", speakerHandler.UpdateSpeaker)
				r.Delete("/speakers/{userID}", speakerHandler.RemoveSpeaker)
			})
		})

		r.Route("/timers/{id}", func(r chi.Router) {
			r.Patch("/", timerHandler.UpdateTimer)
			r.Delete("/", timerHandler.DeleteTimer)
		})

		r.Route("/articles", func(r chi.Router) {
			r.Post("/", articleHandler.CreateArticle)
			r.Get("/{id}", articleHandler.GetArticle)
			r.Patch("/{id}", articleHandler.UpdateArticle)
		})

		r.Delete("/users/me", userHandler.Withdraw)
	})

	return r
}

// healthHandler はGET /health のハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}
