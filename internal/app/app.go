// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/roamjs/backend/internal/auth"
	"github.com/roamjs/backend/internal/config"
	"github.com/roamjs/backend/internal/database"
	"github.com/roamjs/backend/internal/gitapi"
	"github.com/roamjs/backend/internal/handler"
	"github.com/roamjs/backend/internal/identity"
	"github.com/roamjs/backend/internal/jobinvoker"
	"github.com/roamjs/backend/internal/logger"
	"github.com/roamjs/backend/internal/mailer"
	"github.com/roamjs/backend/internal/metrics"
	"github.com/roamjs/backend/internal/middleware"
	"github.com/roamjs/backend/internal/payments"
	"github.com/roamjs/backend/internal/publish"
	"github.com/roamjs/backend/internal/repository"
	"github.com/roamjs/backend/internal/schedule"
	"github.com/roamjs/backend/internal/security"
	"github.com/roamjs/backend/internal/social"
	"github.com/roamjs/backend/internal/sponsor"
	"github.com/roamjs/backend/internal/storage"
	"github.com/roamjs/backend/internal/subscription"
	"github.com/roamjs/backend/internal/website"
	"github.com/roamjs/backend/internal/worker/publisher"
	"github.com/roamjs/backend/internal/worker/reaper"
	"github.com/roamjs/backend/internal/workflow"
)

// outboundTimeout は外部プロバイダー呼び出しのHTTPクライアントタイムアウト。
const outboundTimeout = 10 * time.Second

// outboundClient は外部プロバイダー用のHTTPクライアントを生成する。
// 呼び出しレイテンシはプロバイダー名つきでメトリクスに記録される。
func outboundClient(provider string, rec metrics.UpstreamRecorder) *http.Client {
	return &http.Client{
		Timeout:   outboundTimeout,
		Transport: metrics.InstrumentTransport(provider, rec, nil),
	}
}

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	workflowRepo := repository.NewPostgresWorkflowStateRepo(db)
	statusRepo := repository.NewPostgresStatusRepo(db)
	jobRepo := repository.NewPostgresJobRepo(db)
	sessionReqRepo := repository.NewPostgresSessionRequestRepo(db)
	pathRepo := repository.NewPostgresPathReservationRepo(db)
	postRepo := repository.NewPostgresScheduledPostRepo(db)

	// 3. メトリクスの初期化
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// 4. 外部プロバイダークライアントの初期化
	// プロバイダーごとに計装されたクライアントでレイテンシを記録する
	log := slog.Default()

	identityClient := identity.NewClient(outboundClient("identity", collector), log, cfg.IdentityAPIURL, cfg.IdentityAPIToken)
	paymentsClient := payments.NewClient(outboundClient("payments", collector), log, cfg.PaymentsAPIURL, cfg.PaymentsSecretKey)
	gitClient := gitapi.NewClient(outboundClient("gitapi", collector), log, cfg.GitAPIToken)
	mailerClient := mailer.NewClient(outboundClient("mailer", collector), log, cfg.EmailAPIKey)
	invoker := jobinvoker.NewInvoker(outboundClient("jobrunner", collector), log, cfg.JobRunnerURL, cfg.JobRunnerToken, jobRepo, collector)

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		UseSSL:    cfg.StorageUseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage client: %w", err)
	}

	// 5. ドメインサービスの初期化
	workflowSvc := workflow.NewService(workflowRepo, collector, workflow.ServiceConfig{
		TTL: cfg.WorkflowTTL,
	})
	authSvc := auth.NewService(identityClient, sessionReqRepo, auth.ServiceConfig{
		SessionRequestTTL: cfg.SessionRequestTTL,
	})
	subscriptionSvc := subscription.NewService(paymentsClient, identityClient, workflowSvc, subscription.ServiceConfig{
		BaseURL: cfg.BaseURL,
	})
	websiteSvc := website.NewService(invoker, identityClient, workflowSvc, statusRepo, security.NewDomainGuard())
	publishSvc := publish.NewService(storageClient, identityClient, pathRepo)
	sponsorSvc := sponsor.NewService(paymentsClient, gitClient, identityClient, workflowSvc, sponsor.ServiceConfig{
		BaseURL: cfg.BaseURL,
	})
	scheduleSvc := schedule.NewService(postRepo)

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.PublishRate = rate.Limit(float64(cfg.RateLimitPublish) / 60.0)
	rateLimiterCfg.PublishBurst = cfg.RateLimitPublish
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionResolver: authSvc,
		RateLimiter:     rateLimiter,
		Alerter:         mailerClient,
		OperatorEmail:   cfg.OperatorEmail,

		AuthService:         authSvc,
		SubscriptionService: subscriptionSvc,
		WebsiteService:      websiteSvc,
		PublishService:      publishSvc,
		ScheduleService:     scheduleSvc,
		SponsorService:      sponsorSvc,
		IssueCreator:        gitClient,

		WebhookWorkflow:  workflowSvc,
		ServiceFinalizer: subscriptionSvc,
		SponsorFinalizer: sponsorSvc,
		ListSubscriber:   mailerClient,
		WebhookConfig: handler.WebhookHandlerConfig{
			PaymentsWebhookSecret: cfg.PaymentsWebhookSecret,
			IdentityWebhookToken:  cfg.IdentityAPIToken,
			MailingListID:         cfg.EmailListID,
		},

		DB:             db,
		MetricsHandler: metrics.Handler(prometheus.DefaultGatherer),
	}

	router := handler.NewRouter(deps, middleware.NewLoggingMiddleware(log, collector))

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// リーパーと予約投稿ワーカーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	workflowRepo := repository.NewPostgresWorkflowStateRepo(db)
	jobRepo := repository.NewPostgresJobRepo(db)
	sessionReqRepo := repository.NewPostgresSessionRequestRepo(db)
	postRepo := repository.NewPostgresScheduledPostRepo(db)

	// 3. メトリクスとクライアントの初期化
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	log := slog.Default()
	socialClient := social.NewClient(outboundClient("social", collector), log, cfg.SocialAPIToken)

	// 4. ワーカーの初期化
	reaperJob := reaper.NewReaper(workflowRepo, jobRepo, sessionReqRepo, collector, log, reaper.Config{
		Interval:          cfg.ReaperInterval,
		JobTimeout:        cfg.JobTimeout,
		SessionRequestTTL: cfg.SessionRequestTTL,
	})
	publisherJob := publisher.NewPublisher(postRepo, socialClient, collector, log, cfg.PublishInterval)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("reaper_interval", cfg.ReaperInterval),
		slog.Duration("publish_interval", cfg.PublishInterval),
	)

	// 予約投稿ワーカーをバックグラウンドで起動
	go publisherJob.Start(ctx)

	// リーパーをメインgoroutineで実行（ブロッキング）
	reaperJob.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
