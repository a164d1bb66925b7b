package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/roamjs/backend/internal/middleware"
	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/subscription"
)

// SubscriptionServiceInterface はサービス開始・終了ハンドラーのインターフェース。
type SubscriptionServiceInterface interface {
	StartService(ctx context.Context, user *model.User, service string) (*subscription.StartResult, error)
	EndService(ctx context.Context, user *model.User, service string) error
}

// ServiceHandler は有料サービスの開始・終了のHTTPハンドラー。
type ServiceHandler struct {
	service SubscriptionServiceInterface
}

// NewServiceHandler はServiceHandlerを生成する。
func NewServiceHandler(service SubscriptionServiceInterface) *ServiceHandler {
	return &ServiceHandler{service: service}
}

// serviceRequest はサービス開始・終了リクエストのボディ。
type serviceRequest struct {
	Service string `json:"service" validate:"required"`
}

// startServiceResponse はサービス開始のAPIレスポンス。
// 即時有効化された場合はsuccessのみ、チェックアウトが必要な場合は
// sessionIdとcheckoutUrlを返す。
type startServiceResponse struct {
	Success     bool   `json:"success,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
}

// StartService は有料サービスを開始する。
// POST /api/services/start
func (h *ServiceHandler) StartService(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	var req serviceRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	result, err := h.service.StartService(r.Context(), user, req.Service)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(startServiceResponse{
		Success:     result.Success,
		SessionID:   result.SessionID,
		CheckoutURL: result.CheckoutURL,
	})
}

// EndService は有料サービスを終了する。
// POST /api/services/end
func (h *ServiceHandler) EndService(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	var req serviceRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	if err := h.service.EndService(r.Context(), user, req.Service); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}
