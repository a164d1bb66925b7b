// Package reaper は滞留レコードの自動回収ジョブを提供する。
// コールバックが来ないまま期限切れになったワークフロー、
// 受理通知のないジョブレコード、古いセッションリクエストを定期的に処理する。
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/roamjs/backend/internal/repository"
)

// ReapedRecorder は回収件数のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type ReapedRecorder interface {
	RecordReapedWorkflows(count int64)
}

// Config はリーパーの設定。
type Config struct {
	Interval          time.Duration // 実行間隔
	JobTimeout        time.Duration // ジョブがTIMED_OUT扱いになるまでの時間
	SessionRequestTTL time.Duration // セッションリクエストの保持期間
}

// Reaper は滞留レコードの回収ジョブ。
// 冪等な処理のみを行い、多重起動しても安全なように設計されている。
type Reaper struct {
	workflowRepo repository.WorkflowStateRepository
	jobRepo      repository.JobRepository
	sessionRepo  repository.SessionRequestRepository
	metrics      ReapedRecorder
	logger       *slog.Logger
	config       Config
}

// NewReaper はReaperの新しいインスタンスを生成する。
func NewReaper(
	workflowRepo repository.WorkflowStateRepository,
	jobRepo repository.JobRepository,
	sessionRepo repository.SessionRequestRepository,
	metrics ReapedRecorder,
	logger *slog.Logger,
	config Config,
) *Reaper {
	return &Reaper{
		workflowRepo: workflowRepo,
		jobRepo:      jobRepo,
		sessionRepo:  sessionRepo,
		metrics:      metrics,
		logger:       logger,
		config:       config,
	}
}

// Start は設定された間隔でリーパーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("リーパーを開始しました",
		slog.Duration("interval", r.config.Interval),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("回収サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("リーパーを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("回収サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は滞留レコードの回収を1回実行する。
// 各処理は独立しており、途中で失敗しても残りの処理を継続する。
func (r *Reaper) RunOnce(ctx context.Context) error {
	start := time.Now()
	now := time.Now()

	// 1. 期限切れの外部確認待ちワークフローをEXPIREDに遷移
	expired, err := r.workflowRepo.ExpireStale(ctx, now)
	if err != nil {
		return err
	}
	if expired > 0 {
		r.metrics.RecordReapedWorkflows(expired)
	}

	// 2. 受理通知がないまま放置されたジョブをTIMED_OUTに遷移
	timedOut, err := r.jobRepo.MarkTimedOut(ctx, now.Add(-r.config.JobTimeout))
	if err != nil {
		return err
	}

	// 3. 保持期間を超過したセッションリクエストを削除
	deleted, err := r.sessionRepo.DeleteOlderThan(ctx, now.Add(-r.config.SessionRequestTTL))
	if err != nil {
		return err
	}

	r.logger.Info("回収サイクルが完了しました",
		slog.Int64("expired_workflows", expired),
		slog.Int64("timed_out_jobs", timedOut),
		slog.Int64("deleted_session_requests", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
