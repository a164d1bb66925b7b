// Package auth はセッション解決と拡張機能ログインフローを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/repository"
)

// SessionResolver はセッショントークンをユーザーに解決するインターフェース。
// identity.Clientの部分集合として定義する。
type SessionResolver interface {
	// ResolveSession はセッショントークンをユーザーに交換する。
	// トークンが無効な場合はnilを返す。
	ResolveSession(ctx context.Context, sessionToken string) (*model.User, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionRequestTTL time.Duration // セッションリクエストの有効期間
}

// Service はセッション解決と一時的なセッションリクエストの管理を提供する。
type Service struct {
	resolver SessionResolver
	reqRepo  repository.SessionRequestRepository
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(resolver SessionResolver, reqRepo repository.SessionRequestRepository, config ServiceConfig) *Service {
	return &Service{
		resolver: resolver,
		reqRepo:  reqRepo,
		config:   config,
	}
}

// ResolveSession はセッショントークンをユーザーに解決する。
// トークンが空または無効な場合は「No Active Session」エラーを返す。
func (s *Service) ResolveSession(ctx context.Context, sessionToken string) (*model.User, error) {
	if sessionToken == "" {
		return nil, model.NewNoActiveSessionError()
	}

	user, err := s.resolver.ResolveSession(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	if user == nil {
		return nil, model.NewNoActiveSessionError()
	}

	return user, nil
}

// CreateSessionRequest は拡張機能ログインフローの一時レコードを作成する。
// レコードには照合用のワンタイムコードが含まれる。
func (s *Service) CreateSessionRequest(ctx context.Context, userID string) (*model.SessionRequest, error) {
	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session request code: %w", err)
	}

	req := &model.SessionRequest{
		ID:        uuid.New().String(),
		Code:      code,
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	if err := s.reqRepo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}

	slog.Info("session request created",
		slog.String("request_id", req.ID),
		slog.String("user_id", userID),
	)

	return req, nil
}

// LookupSessionRequest は指定IDのセッションリクエストを取得する。
// 作成からTTLを超過したレコードは削除し、存在しないものとして扱う。
// 削除は冪等であり、繰り返し参照してもエラーにならない。
func (s *Service) LookupSessionRequest(ctx context.Context, id string) (*model.SessionRequest, error) {
	req, err := s.reqRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find session request: %w", err)
	}
	if req == nil {
		return nil, nil
	}

	if time.Since(req.CreatedAt) > s.config.SessionRequestTTL {
		if err := s.reqRepo.DeleteByID(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to delete expired session request: %w", err)
		}
		return nil, nil
	}

	return req, nil
}

// generateCode は照合用の6桁のワンタイムコードを生成する。
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
