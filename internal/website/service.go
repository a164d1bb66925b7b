// Package website はホスト型サイトのプロビジョニングを提供する。
//
// 起動・デプロイ・停止はいずれも長時間処理のため、バックグラウンドジョブに
// 委譲するワークフローとして実行される。ジョブはコールバックトークンを提示して
// 完了を報告し、進捗はステータスレコードへの追記で公開される。
package website

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/repository"
	"github.com/roamjs/backend/internal/workflow"
)

// probeTimeout は起動完了後の疎通確認のタイムアウト。
const probeTimeout = 10 * time.Second

// JobSubmitter はバックグラウンドジョブの投入インターフェース。
// jobinvoker.Invokerの部分集合として定義する。
type JobSubmitter interface {
	Submit(ctx context.Context, name string, payload interface{}) (string, error)
}

// MetadataUpdater はユーザーメタデータの更新インターフェース。
// identity.Clientの部分集合として定義する。
type MetadataUpdater interface {
	UpdateUserMetadata(ctx context.Context, userID string, patch map[string]interface{}) error
}

// DomainGuard はユーザー指定ドメインの検証インターフェース。
// security.DomainGuardServiceの部分集合として定義する。
type DomainGuard interface {
	ValidateDomain(domain string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Service はサイトのプロビジョニング操作を提供する。
type Service struct {
	jobs       JobSubmitter
	identity   MetadataUpdater
	workflow   *workflow.Service
	statusRepo repository.StatusRepository
	guard      DomainGuard
}

// NewService はServiceを生成する。
func NewService(jobs JobSubmitter, identityClient MetadataUpdater, workflowSvc *workflow.Service, statusRepo repository.StatusRepository, guard DomainGuard) *Service {
	return &Service{
		jobs:       jobs,
		identity:   identityClient,
		workflow:   workflowSvc,
		statusRepo: statusRepo,
		guard:      guard,
	}
}

// actionWorkflows はステータスレコードのactionとワークフロー種別の対応表。
var actionWorkflows = map[string]model.WorkflowType{
	"launch":   model.WorkflowWebsiteLaunch,
	"deploy":   model.WorkflowWebsiteDeploy,
	"shutdown": model.WorkflowWebsiteShutdown,
}

// Launch はグラフのサイト起動を開始する。
//
// ドメインの検証後、コールバックトークン付きのワークフローを開始し、
// 起動ジョブを非同期に投入する。ジョブの完了を待たずに戻る。
func (s *Service) Launch(ctx context.Context, user *model.User, graph, domain string) error {
	// 1. ユーザー指定ドメインの検証
	if err := s.guard.ValidateDomain(domain); err != nil {
		return model.NewValidationError(model.ErrCodeInvalidRequest, fmt.Sprintf("invalid domain: %s", domain))
	}

	// 2. ワークフロー開始（コールバックトークンの生成・保存）
	state, err := s.workflow.Start(ctx, model.WorkflowWebsiteLaunch, user.ID, graph, workflow.StartOptions{})
	if err != nil {
		return err
	}

	// 3. 起動ジョブの投入（fire-and-forget）
	if _, err := s.jobs.Submit(ctx, "launch-website", map[string]interface{}{
		"graph":          graph,
		"domain":         domain,
		"user_id":        user.ID,
		"workflow_id":    state.ID,
		"callback_token": state.CallbackToken,
	}); err != nil {
		return err
	}

	// 4. 初期ステータスの記録
	if err := s.appendStatus(ctx, "launch", graph, "INITIALIZING", user.ID); err != nil {
		return err
	}

	slog.Info("website launch requested",
		slog.String("graph", graph),
		slog.String("domain", domain),
		slog.String("user_id", user.ID),
	)
	return nil
}

// Deploy はグラフのサイトを再デプロイする。
func (s *Service) Deploy(ctx context.Context, user *model.User, graph string) error {
	state, err := s.workflow.Start(ctx, model.WorkflowWebsiteDeploy, user.ID, graph, workflow.StartOptions{})
	if err != nil {
		return err
	}

	if _, err := s.jobs.Submit(ctx, "deploy-website", map[string]interface{}{
		"graph":          graph,
		"user_id":        user.ID,
		"workflow_id":    state.ID,
		"callback_token": state.CallbackToken,
	}); err != nil {
		return err
	}

	if err := s.appendStatus(ctx, "deploy", graph, "STARTING DEPLOY", user.ID); err != nil {
		return err
	}

	slog.Info("website deploy requested",
		slog.String("graph", graph),
		slog.String("user_id", user.ID),
	)
	return nil
}

// Shutdown はグラフのサイトを停止する。
func (s *Service) Shutdown(ctx context.Context, user *model.User, graph string) error {
	state, err := s.workflow.Start(ctx, model.WorkflowWebsiteShutdown, user.ID, graph, workflow.StartOptions{})
	if err != nil {
		return err
	}

	if _, err := s.jobs.Submit(ctx, "shutdown-website", map[string]interface{}{
		"graph":          graph,
		"user_id":        user.ID,
		"workflow_id":    state.ID,
		"callback_token": state.CallbackToken,
	}); err != nil {
		return err
	}

	if err := s.appendStatus(ctx, "shutdown", graph, "SHUTTING DOWN", user.ID); err != nil {
		return err
	}

	slog.Info("website shutdown requested",
		slog.String("graph", graph),
		slog.String("user_id", user.ID),
	)
	return nil
}

// Complete はバックグラウンドジョブからのコールバックでプロビジョニングを完了させる。
//
// 提示されたトークンの検証に成功した場合のみ、最終ステータスの記録と
// ユーザーメタデータの更新を行う。トークン不一致時は状態を変更しない。
func (s *Service) Complete(ctx context.Context, userID, graph, action, status, token, domain string) error {
	wfType, ok := actionWorkflows[action]
	if !ok {
		return model.NewValidationError(model.ErrCodeInvalidRequest, fmt.Sprintf("unknown action: %s", action))
	}

	// 1. トークン検証とワークフロー完了（単回使用）
	if _, err := s.workflow.VerifyAndComplete(ctx, wfType, userID, graph, token); err != nil {
		return err
	}

	// 2. 最終ステータスの記録
	if err := s.appendStatus(ctx, action, graph, status, userID); err != nil {
		return err
	}

	// 3. 公開メタデータへの結果反映
	switch action {
	case "launch":
		if err := s.identity.UpdateUserMetadata(ctx, userID, map[string]interface{}{
			"website": map[string]interface{}{"graph": graph, "domain": domain},
		}); err != nil {
			return err
		}

		// 公開直後の疎通確認。結果はログのみで、完了処理には影響しない
		if domain != "" {
			go func() {
				probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
				defer cancel()
				reachable, err := s.ProbeSite(probeCtx, domain)
				if err != nil {
					return
				}
				slog.Info("launched site probed",
					slog.String("graph", graph),
					slog.String("domain", domain),
					slog.Bool("reachable", reachable),
				)
			}()
		}
	case "shutdown":
		if err := s.identity.UpdateUserMetadata(ctx, userID, map[string]interface{}{
			"website": nil,
		}); err != nil {
			return err
		}
	}

	slog.Info("website provisioning completed",
		slog.String("graph", graph),
		slog.String("action", action),
		slog.String("status", status),
	)
	return nil
}

// GetStatus は(action, graph)の最新ステータスレコードを返す。
// 記録が存在しない場合はnilを返す。
func (s *Service) GetStatus(ctx context.Context, action, graph string) (*model.StatusRecord, error) {
	if _, ok := actionWorkflows[action]; !ok {
		return nil, model.NewValidationError(model.ErrCodeInvalidRequest, fmt.Sprintf("unknown action: %s", action))
	}
	return s.statusRepo.Latest(ctx, action, graph)
}

// ProbeSite は公開済みサイトの疎通を確認する。
// ユーザー指定ドメインへのリクエストのため、SSRF防止クライアントを使用する。
func (s *Service) ProbeSite(ctx context.Context, domain string) (bool, error) {
	client := s.guard.NewSafeClient(probeTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+domain, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500, nil
}

// appendStatus はステータスレコードを追記する。
func (s *Service) appendStatus(ctx context.Context, action, graph, status, userID string) error {
	record := &model.StatusRecord{
		ID:         uuid.New().String(),
		Action:     action,
		Graph:      graph,
		Status:     status,
		UserID:     userID,
		RecordedAt: time.Now(),
	}
	if err := s.statusRepo.Append(ctx, record); err != nil {
		return fmt.Errorf("failed to append status record: %w", err)
	}
	return nil
}
