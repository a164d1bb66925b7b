package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/roamjs/backend/internal/gitapi"
	"github.com/roamjs/backend/internal/middleware"
	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/sponsor"
)

// ScheduleServiceInterface は予約投稿ハンドラーのインターフェース。
type ScheduleServiceInterface interface {
	Schedule(ctx context.Context, userID, channel, content string, scheduledAt time.Time) (*model.ScheduledPost, error)
	ListByUser(ctx context.Context, userID string) ([]*model.ScheduledPost, error)
}

// SponsorServiceInterface はスポンサーハンドラーのインターフェース。
type SponsorServiceInterface interface {
	Start(ctx context.Context, user *model.User, req sponsor.Request) (*sponsor.Result, error)
}

// IssueCreator はIssue作成の代理インターフェース。
// gitapi.Clientの部分集合として定義する。
type IssueCreator interface {
	CreateIssue(ctx context.Context, owner, repo, title, body string) (*gitapi.Issue, error)
}

// SocialHandler は予約投稿・スポンサー・Issue代理作成のHTTPハンドラー。
type SocialHandler struct {
	schedule ScheduleServiceInterface
	sponsor  SponsorServiceInterface
	issues   IssueCreator
}

// NewSocialHandler はSocialHandlerを生成する。
func NewSocialHandler(schedule ScheduleServiceInterface, sponsorSvc SponsorServiceInterface, issues IssueCreator) *SocialHandler {
	return &SocialHandler{
		schedule: schedule,
		sponsor:  sponsorSvc,
		issues:   issues,
	}
}

// schedulePostRequest は予約投稿のリクエストボディ。
type schedulePostRequest struct {
	Channel     string    `json:"channel" validate:"required"`
	Content     string    `json:"content" validate:"required"`
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
}

// scheduledPostResponse は予約投稿のAPIレスポンス。
type scheduledPostResponse struct {
	ID          string `json:"id"`
	Channel     string `json:"channel"`
	Content     string `json:"content"`
	ScheduledAt string `json:"scheduledAt"`
	Status      string `json:"status"`
}

// SchedulePost は投稿を予約する。
// POST /api/social/schedule
func (h *SocialHandler) SchedulePost(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	var req schedulePostRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	post, err := h.schedule.Schedule(r.Context(), user.ID, req.Channel, req.Content, req.ScheduledAt)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toScheduledPostResponse(post))
}

// ListScheduledPosts はユーザーの予約投稿一覧を返す。
// GET /api/social/schedule
func (h *SocialHandler) ListScheduledPosts(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	posts, err := h.schedule.ListByUser(r.Context(), user.ID)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	resp := make([]scheduledPostResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toScheduledPostResponse(p))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]scheduledPostResponse{"scheduled": resp})
}

// sponsorRequest はスポンサー開始のリクエストボディ。
type sponsorRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Issue  int    `json:"issue"`
}

// Sponsor はスポンサーのチェックアウトセッションを作成する。
// POST /api/sponsor
func (h *SocialHandler) Sponsor(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	var req sponsorRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	result, err := h.sponsor.Start(r.Context(), user, sponsor.Request{
		Amount: req.Amount,
		Owner:  req.Owner,
		Repo:   req.Repo,
		Issue:  req.Issue,
	})
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"sessionId":   result.SessionID,
		"checkoutUrl": result.CheckoutURL,
	})
}

// createIssueRequest はIssue作成代理のリクエストボディ。
type createIssueRequest struct {
	Owner string `json:"owner" validate:"required"`
	Repo  string `json:"repo" validate:"required"`
	Title string `json:"title" validate:"required"`
	Body  string `json:"body"`
}

// CreateIssue はIssue作成を課題管理APIに代理する。
// POST /api/issues
func (h *SocialHandler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserFromContext(r.Context()); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoActiveSessionError())
		return
	}

	var req createIssueRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	issue, err := h.issues.CreateIssue(r.Context(), req.Owner, req.Repo, req.Title, req.Body)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"number": issue.Number,
		"url":    issue.HTMLURL,
	})
}

// toScheduledPostResponse はScheduledPostをAPIレスポンス形式に変換する。
func toScheduledPostResponse(p *model.ScheduledPost) scheduledPostResponse {
	return scheduledPostResponse{
		ID:          p.ID,
		Channel:     p.Channel,
		Content:     p.Content,
		ScheduledAt: p.ScheduledAt.UTC().Format(time.RFC3339),
		Status:      p.Status,
	}
}
