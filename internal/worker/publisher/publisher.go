// Package publisher は予約投稿のバックグラウンド公開処理を提供する。
// 投稿予定時刻を過ぎた予約をポーリングし、ソーシャルネットワークAPIで公開する。
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/repository"
)

// defaultBatchSize は1サイクルで処理する予約投稿の最大件数。
const defaultBatchSize = 20

// SocialPublisher は投稿の公開インターフェース。
// social.Clientの部分集合として定義する。
type SocialPublisher interface {
	Publish(ctx context.Context, content string) (string, error)
}

// PostRecorder は公開結果のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type PostRecorder interface {
	RecordPostPublished()
	RecordPostFailed()
}

// Publisher は予約投稿の公開ワーカー。
// 対象の取得はListDueが単一文で行を要求（statusをpublishingに遷移）するため、
// 多重起動しても同じ投稿が二重に公開されることはない。
type Publisher struct {
	postRepo repository.ScheduledPostRepository
	social   SocialPublisher
	metrics  PostRecorder
	logger   *slog.Logger
	interval time.Duration
}

// NewPublisher はPublisherの新しいインスタンスを生成する。
func NewPublisher(
	postRepo repository.ScheduledPostRepository,
	social SocialPublisher,
	metrics PostRecorder,
	logger *slog.Logger,
	interval time.Duration,
) *Publisher {
	return &Publisher{
		postRepo: postRepo,
		social:   social,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
	}
}

// Start は設定された間隔でワーカーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (p *Publisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("予約投稿ワーカーを開始しました",
		slog.Duration("interval", p.interval),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("予約投稿ワーカーを停止しました")
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.logger.Error("公開サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は投稿予定時刻を過ぎた予約を1回分処理する。
// 個別の投稿の失敗は記録のみ行い、残りの投稿の処理を継続する。
func (p *Publisher) RunOnce(ctx context.Context) error {
	due, err := p.postRepo.ListDue(ctx, time.Now(), defaultBatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	p.logger.Info("公開サイクルを開始します",
		slog.Int("post_count", len(due)),
	)

	for _, post := range due {
		p.publishOne(ctx, post)
	}

	return nil
}

// publishOne は1件の予約投稿を公開し、結果を記録する。
func (p *Publisher) publishOne(ctx context.Context, post *model.ScheduledPost) {
	externalID, err := p.social.Publish(ctx, post.Content)
	if err != nil {
		p.logger.Error("予約投稿の公開に失敗しました",
			slog.String("post_id", post.ID),
			slog.String("user_id", post.UserID),
			slog.String("error", err.Error()),
		)
		if err := p.postRepo.MarkFailed(ctx, post.ID); err != nil {
			p.logger.Error("投稿失敗の記録に失敗しました",
				slog.String("post_id", post.ID),
				slog.String("error", err.Error()),
			)
		}
		p.metrics.RecordPostFailed()
		return
	}

	if err := p.postRepo.MarkPosted(ctx, post.ID, time.Now()); err != nil {
		p.logger.Error("投稿完了の記録に失敗しました",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	p.metrics.RecordPostPublished()
	p.logger.Info("予約投稿を公開しました",
		slog.String("post_id", post.ID),
		slog.String("external_id", externalID),
	)
}
