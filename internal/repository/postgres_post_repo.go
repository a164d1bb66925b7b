package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roamjs/backend/internal/model"
)

// PostgresScheduledPostRepo はPostgreSQLを使用した予約投稿リポジトリ。
type PostgresScheduledPostRepo struct {
	db *sql.DB
}

// NewPostgresScheduledPostRepo はPostgresScheduledPostRepoを生成する。
func NewPostgresScheduledPostRepo(db *sql.DB) *PostgresScheduledPostRepo {
	return &PostgresScheduledPostRepo{db: db}
}

// Create は予約投稿を作成する。
func (r *PostgresScheduledPostRepo) Create(ctx context.Context, post *model.ScheduledPost) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scheduled_posts (id, user_id, channel, content, scheduled_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		post.ID, post.UserID, post.Channel, post.Content, post.ScheduledAt, post.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduled post: %w", err)
	}
	return nil
}

// ListByUser はユーザーの予約投稿一覧を予定時刻順に返す。
func (r *PostgresScheduledPostRepo) ListByUser(ctx context.Context, userID string) ([]*model.ScheduledPost, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, channel, content, scheduled_at, status, posted_at
		 FROM scheduled_posts
		 WHERE user_id = $1
		 ORDER BY scheduled_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled posts: %w", err)
	}
	defer rows.Close()

	return scanScheduledPosts(rows)
}

// ListDue は投稿予定時刻を過ぎた未投稿の予約をpublishing状態に遷移させながら取得する。
// 選択と状態遷移を単一文で行うため、複数ワーカーが同じ行を取得することはない。
// FOR UPDATE SKIP LOCKEDにより同時実行中の他ワーカーが選択中の行はスキップされる。
func (r *PostgresScheduledPostRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledPost, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE scheduled_posts
		 SET status = 'publishing'
		 WHERE id IN (
		     SELECT id FROM scheduled_posts
		     WHERE status = 'scheduled' AND scheduled_at <= $1
		     ORDER BY scheduled_at
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, user_id, channel, content, scheduled_at, status, posted_at`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due posts: %w", err)
	}
	defer rows.Close()

	return scanScheduledPosts(rows)
}

// MarkPosted は投稿完了を記録する。
func (r *PostgresScheduledPostRepo) MarkPosted(ctx context.Context, id string, postedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET status = 'posted', posted_at = $1 WHERE id = $2`,
		postedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark post as posted: %w", err)
	}
	return nil
}

// MarkFailed は投稿失敗を記録する。
func (r *PostgresScheduledPostRepo) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET status = 'failed' WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark post as failed: %w", err)
	}
	return nil
}

// scanScheduledPosts は複数行のスキャン結果をScheduledPostのスライスに変換する。
func scanScheduledPosts(rows *sql.Rows) ([]*model.ScheduledPost, error) {
	var posts []*model.ScheduledPost
	for rows.Next() {
		post := &model.ScheduledPost{}
		if err := rows.Scan(&post.ID, &post.UserID, &post.Channel, &post.Content, &post.ScheduledAt, &post.Status, &post.PostedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scheduled posts: %w", err)
	}
	return posts, nil
}

// compile-time interface check
var _ ScheduledPostRepository = (*PostgresScheduledPostRepo)(nil)
