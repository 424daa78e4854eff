package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/roster/internal/metrics"
	"github.com/hitoshi/roster/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェック・メトリクス（nilの場合はそれぞれ生存確認のみ・公開なし）
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer

	// アカウント
	AccountService AccountServiceInterface

	// キャラクター
	CharacterService CharacterServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → BearerAuth → RateLimit(General)
//
// ヘルスチェック・メトリクス・アカウント登録/ログインは認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))

	accountHandler := NewAccountHandler(deps.AccountService)
	characterHandler := NewCharacterHandler(deps.CharacterService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Route("/api/accounts", func(r chi.Router) {
		r.Post("/", accountHandler.Register)
		r.Post("/login", accountHandler.Login)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/characters", func(r chi.Router) {
			r.Get("/", characterHandler.ListCharacters)
			// POST /api/characters - キャラクター作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.CharacterCreateMiddleware()).Post("/", characterHandler.CreateCharacter)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", characterHandler.GetCharacter)
				r.Delete("/", characterHandler.MarkForDeletion)
				r.Put("/comment", characterHandler.AnnotateComment)
			})
		})
	})

	return r
}
