package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/roamjs/backend/internal/middleware"
	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/publish"
)

// PublishServiceInterface は公開ハンドラーが必要とするサービスインターフェース。
type PublishServiceInterface interface {
	ListVersions(ctx context.Context, extensionID string, limit, page int) (*publish.VersionPage, error)
	PublishRelease(ctx context.Context, user *model.User, extensionID string, files []publish.ReleaseFile) (string, error)
	PublishMarkdown(ctx context.Context, user *model.User, path, content string) error
	ReservePath(ctx context.Context, user *model.User, path string) error
	ListPaths(ctx context.Context, userID string) ([]string, error)
}

// PublishHandler は拡張機能リリース・ドキュメント公開のHTTPハンドラー。
type PublishHandler struct {
	service PublishServiceInterface
}

// NewPublishHandler はPublishHandlerを生成する。
func NewPublishHandler(service PublishServiceInterface) *PublishHandler {
	return &PublishHandler{service: service}
}

// ListVersions は拡張機能のバージョン一覧を返す。
// limitとpageはクエリパラメータで指定する。
// GET /api/extensions/{id}/versions?limit=10&page=0
func (h *PublishHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	extensionID := chi.URLParam(r, "id")

	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidLimitError())
		return
	}
	page, err := queryInt(r, "page", 0)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPageError())
		return
	}

	result, err := h.service.ListVersions(r.Context(), extensionID, limit, page)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// releaseFileRequest はリリースに含まれる1ファイル。
type releaseFileRequest struct {
	Name        string `json:"name" validate:"required"`
	Content     string `json:"content" validate:"required"`
	ContentType string `json:"contentType"`
}

// publishReleaseRequest は拡張機能リリースのリクエストボディ。
type publishReleaseRequest struct {
	Files []releaseFileRequest `json:"files" validate:"required,min=1,dive"`
}

// PublishRelease は拡張機能の新バージョンを公開する。
// PUT /api/extensions/{id}
func (h *PublishHandler) PublishRelease(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	extensionID := chi.URLParam(r, "id")

	var req publishReleaseRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	files := make([]publish.ReleaseFile, 0, len(req.Files))
	for _, f := range req.Files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, publish.ReleaseFile{
			Name:        f.Name,
			Body:        strings.NewReader(f.Content),
			Size:        int64(len(f.Content)),
			ContentType: contentType,
		})
	}

	version, err := h.service.PublishRelease(r.Context(), user, extensionID, files)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"version": version})
}

// publishMarkdownRequest はドキュメント公開のリクエストボディ。
type publishMarkdownRequest struct {
	Path    string `json:"path" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// PublishMarkdown は公開ドキュメントを保存する。
// PUT /api/publish
func (h *PublishHandler) PublishMarkdown(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	var req publishMarkdownRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	if err := h.service.PublishMarkdown(r.Context(), user, req.Path, req.Content); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// reservePathRequest はパス予約のリクエストボディ。
type reservePathRequest struct {
	Path string `json:"path" validate:"required"`
}

// ReservePath はストレージ名前空間のパスを予約する。
// POST /api/paths
func (h *PublishHandler) ReservePath(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	var req reservePathRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	if err := h.service.ReservePath(r.Context(), user, req.Path); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"path": req.Path})
}

// ListPaths はユーザーの予約済みパス一覧を返す。
// GET /api/paths
func (h *PublishHandler) ListPaths(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	paths, err := h.service.ListPaths(r.Context(), user.ID)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]string{"paths": paths})
}

// queryInt はクエリパラメータを整数として取得する。未指定の場合はデフォルト値を返す。
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
