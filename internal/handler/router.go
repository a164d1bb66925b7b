package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/roamjs/backend/internal/edge"
	"github.com/roamjs/backend/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver middleware.SessionResolver
	RateLimiter     *middleware.RateLimiter
	Alerter         middleware.OperatorAlerter
	OperatorEmail   string

	// 認証
	AuthService AuthServiceInterface

	// サブスクリプション
	SubscriptionService SubscriptionServiceInterface

	// サイト
	WebsiteService WebsiteServiceInterface

	// 公開
	PublishService PublishServiceInterface

	// ソーシャル・スポンサー・Issue
	ScheduleService ScheduleServiceInterface
	SponsorService  SponsorServiceInterface
	IssueCreator    IssueCreator

	// Webhook
	WebhookWorkflow  WorkflowCompleter
	ServiceFinalizer CheckoutFinalizer
	SponsorFinalizer SponsorFinalizer
	ListSubscriber   ListSubscriber
	WebhookConfig    WebhookHandlerConfig

	// ヘルスチェック・メトリクス
	DB             *sql.DB
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	EdgeMiddleware → CORSMiddleware → RecoveryMiddleware
//	→ (認証ルートのみ) SessionMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// Webhookルートとセッションリクエストの照会はセッション認証の外に配置する。
func NewRouter(deps *RouterDeps, logging func(next http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	// エッジルールとCORSは全ルートに効く
	r.Use(edge.NewMiddleware(edge.DefaultRedirectRules(), edge.DefaultHeaderRules()))
	r.Use(middleware.NewCORSMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(deps.Alerter, deps.OperatorEmail))
	if logging != nil {
		r.Use(logging)
	}

	authHandler := NewAuthHandler(deps.AuthService)
	serviceHandler := NewServiceHandler(deps.SubscriptionService)
	websiteHandler := NewWebsiteHandler(deps.WebsiteService)
	publishHandler := NewPublishHandler(deps.PublishService)
	socialHandler := NewSocialHandler(deps.ScheduleService, deps.SponsorService, deps.IssueCreator)
	webhookHandler := NewWebhookHandler(deps.WebhookWorkflow, deps.ServiceFinalizer,
		deps.SponsorFinalizer, deps.ListSubscriber, deps.WebhookConfig)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Webhook（署名・トークンでそれぞれ独自に認可する）
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookHandler.HandlePayments)
		r.Post("/identity", webhookHandler.HandleIdentity)
	})

	// セッションリクエストの照会（拡張機能がポーリングする）
	r.Get("/api/session/{id}", authHandler.GetSessionRequest)

	// サイトプロビジョニングの完了コールバック（コールバックトークンで認可する）
	r.Post("/api/websites/complete", websiteHandler.Complete)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/session", authHandler.CreateSessionRequest)

		// 有料サービス
		r.Route("/api/services", func(r chi.Router) {
			r.Post("/start", serviceHandler.StartService)
			r.Post("/end", serviceHandler.EndService)
		})

		// サイトプロビジョニング
		r.Route("/api/websites", func(r chi.Router) {
			r.Post("/launch", websiteHandler.Launch)
			r.Post("/update", websiteHandler.Update)
			r.Post("/shutdown", websiteHandler.Shutdown)
			r.Get("/status", websiteHandler.GetStatus)
		})

		// 拡張機能リリース
		r.Route("/api/extensions/{id}", func(r chi.Router) {
			r.Get("/versions", publishHandler.ListVersions)
			// 公開は専用レート制限を追加
			r.With(deps.RateLimiter.PublishMiddleware()).Put("/", publishHandler.PublishRelease)
		})

		// ドキュメント公開
		r.With(deps.RateLimiter.PublishMiddleware()).Put("/api/publish", publishHandler.PublishMarkdown)

		// パス予約
		r.Route("/api/paths", func(r chi.Router) {
			r.Post("/", publishHandler.ReservePath)
			r.Get("/", publishHandler.ListPaths)
		})

		// スポンサー
		r.Post("/api/sponsor", socialHandler.Sponsor)

		// 予約投稿
		r.Route("/api/social/schedule", func(r chi.Router) {
			r.Post("/", socialHandler.SchedulePost)
			r.Get("/", socialHandler.ListScheduledPosts)
		})

		// Issue作成の代理
		r.Post("/api/issues", socialHandler.CreateIssue)
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
