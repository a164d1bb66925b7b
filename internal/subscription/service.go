// Package subscription は有料サービスの開始・終了ワークフローを提供する。
package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/payments"
	"github.com/roamjs/backend/internal/workflow"
)

// PaymentsClient はサービスが必要とする決済プロバイダー操作のインターフェース。
// payments.Clientの部分集合として定義する。
type PaymentsClient interface {
	FindPriceByProduct(ctx context.Context, product string) (*payments.Price, error)
	CreateCustomer(ctx context.Context, email string) (string, error)
	HasPaymentMethod(ctx context.Context, customerID string) (bool, error)
	CreateSubscription(ctx context.Context, customerID, priceID string) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]model.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	CreateCheckoutSession(ctx context.Context, customerID, priceID, mode, successURL, cancelURL string, metadata map[string]string) (*payments.CheckoutSession, error)
}

// MetadataUpdater はユーザーメタデータの更新インターフェース。
// identity.Clientの部分集合として定義する。
type MetadataUpdater interface {
	UpdateUserMetadata(ctx context.Context, userID string, patch map[string]interface{}) error
	UpdateAppMetadata(ctx context.Context, userID string, patch map[string]interface{}) error
}

// ServiceConfig はサブスクリプションサービスの設定。
type ServiceConfig struct {
	BaseURL string // チェックアウト完了後のリダイレクト先の基底URL
}

// Service は有料サービスの開始・終了を提供する。
type Service struct {
	payments PaymentsClient
	identity MetadataUpdater
	workflow *workflow.Service
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(paymentsClient PaymentsClient, identityClient MetadataUpdater, workflowSvc *workflow.Service, config ServiceConfig) *Service {
	return &Service{
		payments: paymentsClient,
		identity: identityClient,
		workflow: workflowSvc,
		config:   config,
	}
}

// StartResult はサービス開始の結果。
// 支払い方法が登録済みの場合はSuccessがtrue、
// チェックアウトへのリダイレクトが必要な場合はSessionIDが設定される。
type StartResult struct {
	Success     bool
	SessionID   string
	CheckoutURL string
}

// StartService は有料サービスを開始する。
//
// 支払い方法が登録済みの顧客は即座にサブスクリプションを作成し、
// ユーザーの公開メタデータに機能フラグを立てる。
// 未登録の顧客はチェックアウトセッションを作成し、
// Webhookによる完了を待つワークフローを開始する。
func (s *Service) StartService(ctx context.Context, user *model.User, service string) (*StartResult, error) {
	// 1. サービスに対応する価格を検索
	price, err := s.payments.FindPriceByProduct(ctx, service)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, model.NewPriceNotFoundError(service)
	}

	// 2. 顧客IDの解決（未登録なら作成してシステム用メタデータに記録）
	customerID := user.CustomerID()
	if customerID == "" {
		customerID, err = s.payments.CreateCustomer(ctx, user.Email)
		if err != nil {
			return nil, err
		}
		if err := s.identity.UpdateAppMetadata(ctx, user.ID, map[string]interface{}{
			"customer_id": customerID,
		}); err != nil {
			return nil, err
		}
	}

	// 3. 支払い方法が登録済みなら即時サブスクリプション作成
	hasMethod, err := s.payments.HasPaymentMethod(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if hasMethod {
		sub, err := s.payments.CreateSubscription(ctx, customerID, price.ID)
		if err != nil {
			return nil, err
		}

		// 外部アクションの成功確認後にのみメタデータを更新する
		if err := s.identity.UpdateUserMetadata(ctx, user.ID, map[string]interface{}{
			service: true,
		}); err != nil {
			return nil, err
		}

		slog.Info("service started",
			slog.String("user_id", user.ID),
			slog.String("service", service),
			slog.String("subscription_id", sub.ID),
		)
		return &StartResult{Success: true}, nil
	}

	// 4. チェックアウト経由: セッションを作成しワークフローを外部確認待ちにする
	session, err := s.payments.CreateCheckoutSession(ctx, customerID, price.ID, "subscription",
		s.config.BaseURL+"/checkout?success=true",
		s.config.BaseURL+"/checkout?cancelled=true",
		map[string]string{"service": service, "user_id": user.ID},
	)
	if err != nil {
		return nil, err
	}

	if _, err := s.workflow.Start(ctx, model.WorkflowServiceStart, user.ID, service, workflow.StartOptions{
		CheckoutSessionID: session.ID,
	}); err != nil {
		return nil, err
	}

	return &StartResult{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// EndService は有料サービスを終了する。
// 対象サービスのアクティブなサブスクリプションが存在しない場合は
// 二重解約として409相当のエラーを返す。
func (s *Service) EndService(ctx context.Context, user *model.User, service string) error {
	price, err := s.payments.FindPriceByProduct(ctx, service)
	if err != nil {
		return err
	}
	if price == nil {
		return model.NewPriceNotFoundError(service)
	}

	customerID := user.CustomerID()
	if customerID == "" {
		return model.NewAlreadyCancelledError()
	}

	subs, err := s.payments.ListSubscriptions(ctx, customerID)
	if err != nil {
		return err
	}

	var target *model.Subscription
	for i := range subs {
		if subs[i].PriceID == price.ID {
			target = &subs[i]
			break
		}
	}
	if target == nil {
		return model.NewAlreadyCancelledError()
	}

	if err := s.payments.CancelSubscription(ctx, target.ID); err != nil {
		return err
	}

	// 解約の成功確認後に機能フラグを落とす
	if err := s.identity.UpdateUserMetadata(ctx, user.ID, map[string]interface{}{
		service: false,
	}); err != nil {
		return err
	}

	slog.Info("service ended",
		slog.String("user_id", user.ID),
		slog.String("service", service),
		slog.String("subscription_id", target.ID),
	)
	return nil
}

// FinalizeServiceStart はチェックアウト完了Webhookからサービス開始を確定する。
// ワークフロー完了後に機能フラグを立てる。
func (s *Service) FinalizeServiceStart(ctx context.Context, state *model.WorkflowState) error {
	if err := s.identity.UpdateUserMetadata(ctx, state.UserID, map[string]interface{}{
		state.Target: true,
	}); err != nil {
		return fmt.Errorf("failed to enable service flag: %w", err)
	}

	slog.Info("service start finalized",
		slog.String("user_id", state.UserID),
		slog.String("service", state.Target),
	)
	return nil
}
