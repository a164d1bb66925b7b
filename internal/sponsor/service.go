// Package sponsor はプロジェクトスポンサーの単発課金フローを提供する。
//
// チェックアウトの完了はWebhook経由で確定され、対象Issueが指定されていれば
// お礼コメントを投稿する。
package sponsor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/payments"
	"github.com/roamjs/backend/internal/workflow"
)

// PaymentsClient はサービスが必要とする決済プロバイダー操作のインターフェース。
// payments.Clientの部分集合として定義する。
type PaymentsClient interface {
	CreateCustomer(ctx context.Context, email string) (string, error)
	CreateDonationSession(ctx context.Context, customerID string, amount int64, successURL, cancelURL string, metadata map[string]string) (*payments.CheckoutSession, error)
}

// GitClient はソースコントロールAPIのインターフェース。
// gitapi.Clientの部分集合として定義する。
type GitClient interface {
	RepositoryExists(ctx context.Context, owner, repo string) (bool, error)
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error
}

// IdentityClient はIDプロバイダー操作のインターフェース。
// identity.Clientの部分集合として定義する。
type IdentityClient interface {
	UpdateAppMetadata(ctx context.Context, userID string, patch map[string]interface{}) error
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// ServiceConfig はスポンサーサービスの設定。
type ServiceConfig struct {
	BaseURL string // チェックアウト完了後のリダイレクト先の基底URL
}

// Service はスポンサーフローを提供する。
type Service struct {
	payments PaymentsClient
	git      GitClient
	identity IdentityClient
	workflow *workflow.Service
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(paymentsClient PaymentsClient, gitClient GitClient, identityClient IdentityClient, workflowSvc *workflow.Service, config ServiceConfig) *Service {
	return &Service{
		payments: paymentsClient,
		git:      gitClient,
		identity: identityClient,
		workflow: workflowSvc,
		config:   config,
	}
}

// Request はスポンサー開始のリクエスト。
type Request struct {
	Amount int64  // セント単位の寄付額
	Owner  string // 対象リポジトリのオーナー（省略可）
	Repo   string // 対象リポジトリ名（省略可）
	Issue  int    // お礼コメントの投稿先Issue番号（省略可）
}

// Result はスポンサー開始の結果。
type Result struct {
	SessionID   string
	CheckoutURL string
}

// Start はスポンサーのチェックアウトセッションを作成し、
// Webhookによる完了待ちのワークフローを開始する。
func (s *Service) Start(ctx context.Context, user *model.User, req Request) (*Result, error) {
	if req.Amount <= 0 {
		return nil, model.NewValidationError(model.ErrCodeInvalidRequest, "amount must be greater than 0")
	}

	// 1. 対象リポジトリの存在確認（指定時のみ）
	if req.Owner != "" && req.Repo != "" {
		exists, err := s.git.RepositoryExists(ctx, req.Owner, req.Repo)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, model.NewValidationError(model.ErrCodeInvalidRequest, fmt.Sprintf("repository not found: %s/%s", req.Owner, req.Repo))
		}
	}

	// 2. 顧客IDの解決
	customerID := user.CustomerID()
	if customerID == "" {
		var err error
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

	// 3. 単発課金のチェックアウトセッション作成
	session, err := s.payments.CreateDonationSession(ctx, customerID, req.Amount,
		s.config.BaseURL+"/sponsor?success=true",
		s.config.BaseURL+"/sponsor?cancelled=true",
		map[string]string{"user_id": user.ID},
	)
	if err != nil {
		return nil, err
	}

	// 4. Webhook完了待ちのワークフロー開始
	if _, err := s.workflow.Start(ctx, model.WorkflowSponsor, user.ID, encodeTarget(req), workflow.StartOptions{
		CheckoutSessionID: session.ID,
	}); err != nil {
		return nil, err
	}

	slog.Info("sponsor checkout created",
		slog.String("user_id", user.ID),
		slog.Int64("amount", req.Amount),
	)
	return &Result{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// Finalize はチェックアウト完了Webhookからスポンサーを確定する。
// 対象Issueが指定されていた場合はお礼コメントを投稿する。
// コメント投稿の失敗はログに記録するのみで、Webhook処理は成功扱いにする。
func (s *Service) Finalize(ctx context.Context, state *model.WorkflowState) error {
	owner, repo, issue, ok := decodeTarget(state.Target)
	if !ok {
		slog.Info("sponsorship finalized",
			slog.String("user_id", state.UserID),
		)
		return nil
	}

	body := "Thanks for sponsoring this work! Your support keeps the project going."
	// スポンサー名が取得できた場合はお礼コメントに含める。失敗してもコメントは投稿する
	if u, err := s.identity.GetUser(ctx, state.UserID); err != nil {
		slog.Warn("failed to look up sponsor user",
			slog.String("user_id", state.UserID),
			slog.String("error", err.Error()),
		)
	} else if u != nil && u.Name != "" {
		body = fmt.Sprintf("Thanks for sponsoring this work, %s! Your support keeps the project going.", u.Name)
	}
	if err := s.git.CreateIssueComment(ctx, owner, repo, issue, body); err != nil {
		slog.Error("failed to post thank-you comment",
			slog.String("repository", owner+"/"+repo),
			slog.Int("issue", issue),
			slog.String("error", err.Error()),
		)
		return nil
	}

	slog.Info("sponsorship finalized",
		slog.String("user_id", state.UserID),
		slog.String("repository", owner+"/"+repo),
		slog.Int("issue", issue),
	)
	return nil
}

// encodeTarget はスポンサー対象を owner/repo#issue 形式に符号化する。
// 対象が未指定の場合は空文字を返す。
func encodeTarget(req Request) string {
	if req.Owner == "" || req.Repo == "" || req.Issue <= 0 {
		return ""
	}
	return fmt.Sprintf("%s/%s#%d", req.Owner, req.Repo, req.Issue)
}

// decodeTarget は owner/repo#issue 形式の文字列を復号する。
func decodeTarget(target string) (owner, repo string, issue int, ok bool) {
	slash := strings.Index(target, "/")
	hash := strings.LastIndex(target, "#")
	if slash <= 0 || hash <= slash+1 || hash == len(target)-1 {
		return "", "", 0, false
	}

	issue, err := strconv.Atoi(target[hash+1:])
	if err != nil || issue <= 0 {
		return "", "", 0, false
	}
	return target[:slash], target[slash+1 : hash], issue, true
}
