// Package workflow はプロビジョニングワークフローの状態機械を提供する。
//
// 各ワークフローインスタンスは以下の状態を辿る:
//
//	IDLE -> AWAITING_EXTERNAL_CONFIRMATION -> COMPLETING -> DONE
//	                                        -> FAILED
//
// 開始時にコールバックトークンを生成して専用テーブルに保存し、
// バックグラウンドジョブまたはチェックアウトプロバイダーのコールバックで
// トークンを検証・消費して完了させる。
package workflow

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/repository"
)

// TransitionRecorder はワークフロー状態遷移のメトリクス記録インターフェース。
type TransitionRecorder interface {
	RecordWorkflowTransition(wfType, status string)
}

// ServiceConfig はワークフローサービスの設定。
type ServiceConfig struct {
	TTL time.Duration // 外部確認待ち状態の有効期間。超過分はリーパーが回収する
}

// Service はワークフローの開始・検証・完了を提供する。
type Service struct {
	repo    repository.WorkflowStateRepository
	metrics TransitionRecorder
	config  ServiceConfig
}

// NewService はServiceを生成する。
func NewService(repo repository.WorkflowStateRepository, metrics TransitionRecorder, config ServiceConfig) *Service {
	return &Service{
		repo:    repo,
		metrics: metrics,
		config:  config,
	}
}

// StartOptions はワークフロー開始時のオプション。
type StartOptions struct {
	// CheckoutSessionID はチェックアウト経由のワークフローの場合に設定する。
	CheckoutSessionID string
}

// Start はワークフローを開始し、外部確認待ち状態のレコードを作成する。
// 生成されたコールバックトークンは呼び出しごとに異なり、再利用されない。
func (s *Service) Start(ctx context.Context, wfType model.WorkflowType, userID, target string, opts StartOptions) (*model.WorkflowState, error) {
	token, err := generateCallbackToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate callback token: %w", err)
	}

	now := time.Now()
	state := &model.WorkflowState{
		ID:                uuid.New().String(),
		Type:              wfType,
		UserID:            userID,
		Target:            target,
		Status:            model.WorkflowAwaiting,
		CallbackToken:     token,
		CheckoutSessionID: opts.CheckoutSessionID,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(s.config.TTL),
	}

	if err := s.repo.Create(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to persist workflow state: %w", err)
	}

	s.metrics.RecordWorkflowTransition(string(wfType), string(model.WorkflowAwaiting))
	slog.Info("workflow started",
		slog.String("workflow_id", state.ID),
		slog.String("workflow_type", string(wfType)),
		slog.String("user_id", userID),
		slog.String("target", target),
	)

	return state, nil
}

// VerifyAndComplete は提示されたコールバックトークンを検証し、ワークフローを完了させる。
// トークンは定数時間比較で照合し、不一致の場合は状態を一切変更せずに401相当のエラーを返す。
// 一致した場合はトークンをクリアする（単回使用）ため、同じトークンで再度完了することはできない。
func (s *Service) VerifyAndComplete(ctx context.Context, wfType model.WorkflowType, userID, target, token string) (*model.WorkflowState, error) {
	state, err := s.repo.FindAwaiting(ctx, wfType, userID, target)
	if err != nil {
		return nil, fmt.Errorf("failed to find workflow state: %w", err)
	}
	if state == nil {
		return nil, model.NewWorkflowNotFoundError()
	}

	if subtle.ConstantTimeCompare([]byte(state.CallbackToken), []byte(token)) != 1 {
		s.metrics.RecordWorkflowTransition(string(wfType), string(model.WorkflowFailed))
		slog.Warn("callback token mismatch",
			slog.String("workflow_id", state.ID),
			slog.String("workflow_type", string(wfType)),
		)
		return nil, model.NewUnauthorizedError()
	}

	if err := s.repo.Complete(ctx, state.ID); err != nil {
		return nil, fmt.Errorf("failed to complete workflow: %w", err)
	}

	s.metrics.RecordWorkflowTransition(string(wfType), string(model.WorkflowDone))
	slog.Info("workflow completed",
		slog.String("workflow_id", state.ID),
		slog.String("workflow_type", string(wfType)),
	)

	state.Status = model.WorkflowDone
	state.CallbackToken = ""
	return state, nil
}

// CompleteByCheckoutSession はチェックアウトセッションIDでワークフローを完了させる。
// Webhook署名の検証済みであることが前提のため、トークン照合は行わない。
// 対象が存在しない場合はnilを返す。
func (s *Service) CompleteByCheckoutSession(ctx context.Context, checkoutSessionID string) (*model.WorkflowState, error) {
	state, err := s.repo.FindByCheckoutSession(ctx, checkoutSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find workflow by checkout session: %w", err)
	}
	if state == nil {
		return nil, nil
	}

	if err := s.repo.Complete(ctx, state.ID); err != nil {
		return nil, fmt.Errorf("failed to complete workflow: %w", err)
	}

	s.metrics.RecordWorkflowTransition(string(state.Type), string(model.WorkflowDone))
	slog.Info("workflow completed via checkout",
		slog.String("workflow_id", state.ID),
		slog.String("workflow_type", string(state.Type)),
	)

	state.Status = model.WorkflowDone
	state.CallbackToken = ""
	return state, nil
}

// MarkDone は外部確認を伴わない同期ワークフローを完了させる。
// 外部アクションの成功を確認した直後に呼び出す。
func (s *Service) MarkDone(ctx context.Context, state *model.WorkflowState) error {
	if err := s.repo.Complete(ctx, state.ID); err != nil {
		return fmt.Errorf("failed to complete workflow: %w", err)
	}
	s.metrics.RecordWorkflowTransition(string(state.Type), string(model.WorkflowDone))
	return nil
}

// Fail はワークフローをFAILED状態に遷移させる。
// 呼び出し元はIDLEからの再試行を期待される。
func (s *Service) Fail(ctx context.Context, id string, wfType model.WorkflowType) error {
	if err := s.repo.UpdateStatus(ctx, id, model.WorkflowFailed); err != nil {
		return fmt.Errorf("failed to fail workflow: %w", err)
	}
	s.metrics.RecordWorkflowTransition(string(wfType), string(model.WorkflowFailed))
	return nil
}

// generateCallbackToken は暗号的に安全なコールバックトークンを生成する。
func generateCallbackToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
