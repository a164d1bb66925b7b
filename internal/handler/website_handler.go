package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/roamjs/backend/internal/middleware"
	"github.com/roamjs/backend/internal/model"
)

// WebsiteServiceInterface はサイトプロビジョニングハンドラーのインターフェース。
type WebsiteServiceInterface interface {
	Launch(ctx context.Context, user *model.User, graph, domain string) error
	Deploy(ctx context.Context, user *model.User, graph string) error
	Shutdown(ctx context.Context, user *model.User, graph string) error
	Complete(ctx context.Context, userID, graph, action, status, token, domain string) error
	GetStatus(ctx context.Context, action, graph string) (*model.StatusRecord, error)
}

// WebsiteHandler はサイトプロビジョニングのHTTPハンドラー。
type WebsiteHandler struct {
	service WebsiteServiceInterface
}

// NewWebsiteHandler はWebsiteHandlerを生成する。
func NewWebsiteHandler(service WebsiteServiceInterface) *WebsiteHandler {
	return &WebsiteHandler{service: service}
}

// launchRequest はサイト起動リクエストのボディ。
type launchRequest struct {
	Graph  string `json:"graph" validate:"required"`
	Domain string `json:"domain" validate:"required"`
}

// graphRequest はグラフのみを指定するリクエストのボディ。
type graphRequest struct {
	Graph string `json:"graph" validate:"required"`
}

// completeRequest はバックグラウンドジョブのコールバックのボディ。
type completeRequest struct {
	UserID string `json:"userId" validate:"required"`
	Graph  string `json:"graph" validate:"required"`
	Action string `json:"action" validate:"required"`
	Status string `json:"status" validate:"required"`
	Token  string `json:"token" validate:"required"`
	Domain string `json:"domain"`
}

// Launch はサイト起動を受け付ける。
// POST /api/websites/launch
func (h *WebsiteHandler) Launch(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	var req launchRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	if err := h.service.Launch(r.Context(), user, req.Graph, req.Domain); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// Update はサイトの再デプロイを受け付ける。
// POST /api/websites/update
func (h *WebsiteHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	var req graphRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	if err := h.service.Deploy(r.Context(), user, req.Graph); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// Shutdown はサイトの停止を受け付ける。
// POST /api/websites/shutdown
func (h *WebsiteHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	var req graphRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	if err := h.service.Shutdown(r.Context(), user, req.Graph); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// Complete はバックグラウンドジョブからの完了コールバックを処理する。
// セッション認証の代わりにコールバックトークンで認可する。
// POST /api/websites/complete
func (h *WebsiteHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	if err := h.service.Complete(r.Context(), req.UserID, req.Graph, req.Action, req.Status, req.Token, req.Domain); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// statusResponse はステータス照会のAPIレスポンス。
type statusResponse struct {
	Status     string `json:"status"`
	RecordedAt string `json:"recordedAt"`
}

// GetStatus は(action, graph)の最新ステータスを返す。
// GET /api/websites/status?action=launch&graph=...
func (h *WebsiteHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserFromContext(r.Context()); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	action := r.URL.Query().Get("action")
	if action == "" {
		action = "launch"
	}
	graph := r.URL.Query().Get("graph")
	if graph == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError(model.ErrCodeInvalidRequest, "graph is required"))
		return
	}

	record, err := h.service.GetStatus(r.Context(), action, graph)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if record == nil {
		json.NewEncoder(w).Encode(statusResponse{})
		return
	}
	json.NewEncoder(w).Encode(statusResponse{
		Status:     record.Status,
		RecordedAt: record.RecordedAt.UTC().Format(time.RFC3339),
	})
}
