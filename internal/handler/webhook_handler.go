package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roamjs/backend/internal/middleware"
	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/payments"
	"github.com/roamjs/backend/internal/workflow"
)

// maxWebhookBodySize はWebhookボディの最大サイズ。
const maxWebhookBodySize = 1 << 20 // 1MB

// paymentsSignatureHeader は決済プロバイダーの署名ヘッダー名。
const paymentsSignatureHeader = "Payments-Signature"

// WorkflowCompleter はWebhookハンドラーが必要とするワークフロー操作のインターフェース。
// workflow.Serviceの部分集合として定義する。
type WorkflowCompleter interface {
	CompleteByCheckoutSession(ctx context.Context, checkoutSessionID string) (*model.WorkflowState, error)
	Start(ctx context.Context, wfType model.WorkflowType, userID, target string, opts workflow.StartOptions) (*model.WorkflowState, error)
	MarkDone(ctx context.Context, state *model.WorkflowState) error
	Fail(ctx context.Context, id string, wfType model.WorkflowType) error
}

// CheckoutFinalizer はチェックアウト完了の確定処理インターフェース。
type CheckoutFinalizer interface {
	FinalizeServiceStart(ctx context.Context, state *model.WorkflowState) error
}

// SponsorFinalizer はスポンサー完了の確定処理インターフェース。
type SponsorFinalizer interface {
	Finalize(ctx context.Context, state *model.WorkflowState) error
}

// ListSubscriber はメーリングリスト登録インターフェース。
// mailer.Clientの部分集合として定義する。
type ListSubscriber interface {
	AddToList(ctx context.Context, listID, email, name string) error
}

// WebhookHandlerConfig はWebhookハンドラーの設定。
type WebhookHandlerConfig struct {
	PaymentsWebhookSecret string // 決済Webhook署名の共有シークレット
	IdentityWebhookToken  string // IDプロバイダーWebhookのBearerトークン
	MailingListID         string // 登録先のメーリングリストID
}

// WebhookHandler は外部プロバイダーからのWebhookのHTTPハンドラー。
type WebhookHandler struct {
	workflow         WorkflowCompleter
	serviceFinalizer CheckoutFinalizer
	sponsorFinalizer SponsorFinalizer
	mailer           ListSubscriber
	config           WebhookHandlerConfig
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(
	workflowSvc WorkflowCompleter,
	serviceFinalizer CheckoutFinalizer,
	sponsorFinalizer SponsorFinalizer,
	mailerClient ListSubscriber,
	config WebhookHandlerConfig,
) *WebhookHandler {
	return &WebhookHandler{
		workflow:         workflowSvc,
		serviceFinalizer: serviceFinalizer,
		sponsorFinalizer: sponsorFinalizer,
		mailer:           mailerClient,
		config:           config,
	}
}

// paymentsEvent は決済プロバイダーのWebhookイベント。
type paymentsEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// HandlePayments は決済プロバイダーのWebhookを処理する。
// 署名の検証後、チェックアウトセッションIDに対応するワークフローを完了させる。
// POST /webhooks/payments
func (h *WebhookHandler) HandlePayments(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError(model.ErrCodeInvalidRequest, "failed to read webhook body"))
		return
	}

	// 1. 署名検証。失敗したWebhookは処理しない
	if err := payments.VerifySignature(payload, r.Header.Get(paymentsSignatureHeader),
		h.config.PaymentsWebhookSecret, payments.DefaultSignatureTolerance, time.Now()); err != nil {
		slog.Warn("payments webhook signature verification failed",
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var event paymentsEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError(model.ErrCodeInvalidRequest, "invalid webhook payload"))
		return
	}

	// 2. チェックアウト完了以外のイベントは受理のみ
	if event.Type != "checkout.session.completed" {
		writeReceived(w)
		return
	}

	// 3. 対応するワークフローの完了と確定処理
	state, err := h.workflow.CompleteByCheckoutSession(r.Context(), event.Data.Object.ID)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}
	if state == nil {
		// 対応するワークフローが存在しない。再送や未知のセッションは受理して終わる
		writeReceived(w)
		return
	}

	switch state.Type {
	case model.WorkflowServiceStart:
		if err := h.serviceFinalizer.FinalizeServiceStart(r.Context(), state); err != nil {
			middleware.HandleServiceError(w, err)
			return
		}
	case model.WorkflowSponsor:
		if err := h.sponsorFinalizer.Finalize(r.Context(), state); err != nil {
			middleware.HandleServiceError(w, err)
			return
		}
	default:
		slog.Warn("unexpected workflow type for checkout completion",
			slog.String("workflow_id", state.ID),
			slog.String("workflow_type", string(state.Type)),
		)
	}

	writeReceived(w)
}

// identityEvent はIDプロバイダーのWebhookイベント。
type identityEvent struct {
	UserID string `json:"userId" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name"`
}

// HandleIdentity はIDプロバイダーのアカウント作成Webhookを処理し、
// ユーザーをメーリングリストに登録する。
// Bearerトークンで認可する。
// POST /webhooks/identity
func (h *WebhookHandler) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.config.IdentityWebhookToken)) != 1 {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var event identityEvent
	if err := decodeAndValidate(r, &event); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	// メーリングリスト登録は同期ワークフローとして記録する
	state, err := h.workflow.Start(r.Context(), model.WorkflowMailingList, event.UserID, event.Email, workflow.StartOptions{})
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	if err := h.mailer.AddToList(r.Context(), h.config.MailingListID, event.Email, event.Name); err != nil {
		if failErr := h.workflow.Fail(r.Context(), state.ID, state.Type); failErr != nil {
			slog.Error("failed to mark mailing list workflow as failed",
				slog.String("workflow_id", state.ID),
				slog.String("error", failErr.Error()),
			)
		}
		middleware.HandleServiceError(w, err)
		return
	}

	if err := h.workflow.MarkDone(r.Context(), state); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	writeReceived(w)
}

// writeReceived はWebhookの受理レスポンスを書き込む。
func writeReceived(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}
