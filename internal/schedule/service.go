// Package schedule はソーシャル投稿の予約管理を提供する。
// 実際の投稿は予約投稿ワーカーが行う。
package schedule

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/repository"
)

// maxContentLength は投稿本文の最大長。ソーシャルネットワーク側の制限に合わせる。
const maxContentLength = 280

// Service は予約投稿の作成・一覧を提供する。
type Service struct {
	repo repository.ScheduledPostRepository
}

// NewService はServiceを生成する。
func NewService(repo repository.ScheduledPostRepository) *Service {
	return &Service{repo: repo}
}

// Schedule は投稿を予約する。予約時刻は現在より後である必要がある。
func (s *Service) Schedule(ctx context.Context, userID, channel, content string, scheduledAt time.Time) (*model.ScheduledPost, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, model.NewValidationError(model.ErrCodeInvalidRequest, "content must not be empty")
	}
	if len(content) > maxContentLength {
		return nil, model.NewValidationError(model.ErrCodeInvalidRequest, "content exceeds maximum length")
	}
	if !scheduledAt.After(time.Now()) {
		return nil, model.NewValidationError(model.ErrCodeInvalidRequest, "scheduled time must be in the future")
	}

	post := &model.ScheduledPost{
		ID:          uuid.New().String(),
		UserID:      userID,
		Channel:     channel,
		Content:     content,
		ScheduledAt: scheduledAt,
		Status:      "scheduled",
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, err
	}

	slog.Info("post scheduled",
		slog.String("post_id", post.ID),
		slog.String("user_id", userID),
		slog.Time("scheduled_at", scheduledAt),
	)
	return post, nil
}

// ListByUser はユーザーの予約投稿一覧を予定時刻順に返す。
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*model.ScheduledPost, error) {
	return s.repo.ListByUser(ctx, userID)
}
