package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/roamjs/backend/internal/middleware"
	"github.com/roamjs/backend/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// CreateSessionRequest は拡張機能ログインフローの一時レコードを作成する。
	CreateSessionRequest(ctx context.Context, userID string) (*model.SessionRequest, error)
	// LookupSessionRequest はセッションリクエストを取得する。期限切れ・不存在はnilを返す。
	LookupSessionRequest(ctx context.Context, id string) (*model.SessionRequest, error)
}

// AuthHandler はセッションリクエストのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// sessionRequestResponse はセッションリクエストのAPIレスポンス。
type sessionRequestResponse struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	UserID string `json:"userId,omitempty"`
}

// CreateSessionRequest は拡張機能ログインフローのセッションリクエストを作成する。
// POST /api/session
func (h *AuthHandler) CreateSessionRequest(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	req, err := h.service.CreateSessionRequest(r.Context(), user.ID)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sessionRequestResponse{
		ID:   req.ID,
		Code: req.Code,
	})
}

// GetSessionRequest はセッションリクエストを照会する。
// 拡張機能がポーリングで呼び出すため、セッション認証は不要。
// 期限切れ（作成から10分超過）のレコードは存在しないものとして404を返す。
// GET /api/session/{id}
func (h *AuthHandler) GetSessionRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.service.LookupSessionRequest(r.Context(), id)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}
	if req == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "SESSION_REQUEST_NOT_FOUND",
			Message:  "Session request not found",
			Category: "validation",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessionRequestResponse{
		ID:     req.ID,
		Code:   req.Code,
		UserID: req.UserID,
	})
}
