package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/roamjs/backend/internal/gitapi"
	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/sponsor"
)

// --- モック定義 ---

type mockScheduleService struct {
	scheduleFn   func(ctx context.Context, userID, channel, content string, scheduledAt time.Time) (*model.ScheduledPost, error)
	listByUserFn func(ctx context.Context, userID string) ([]*model.ScheduledPost, error)
}

func (m *mockScheduleService) Schedule(ctx context.Context, userID, channel, content string, scheduledAt time.Time) (*model.ScheduledPost, error) {
	if m.scheduleFn != nil {
		return m.scheduleFn(ctx, userID, channel, content, scheduledAt)
	}
	return nil, nil
}

func (m *mockScheduleService) ListByUser(ctx context.Context, userID string) ([]*model.ScheduledPost, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

type mockSponsorService struct {
	startFn func(ctx context.Context, user *model.User, req sponsor.Request) (*sponsor.Result, error)
}

func (m *mockSponsorService) Start(ctx context.Context, user *model.User, req sponsor.Request) (*sponsor.Result, error) {
	if m.startFn != nil {
		return m.startFn(ctx, user, req)
	}
	return &sponsor.Result{}, nil
}

type mockIssueCreator struct {
	createIssueFn func(ctx context.Context, owner, repo, title, body string) (*gitapi.Issue, error)
}

func (m *mockIssueCreator) CreateIssue(ctx context.Context, owner, repo, title, body string) (*gitapi.Issue, error) {
	if m.createIssueFn != nil {
		return m.createIssueFn(ctx, owner, repo, title, body)
	}
	return nil, nil
}

var _ ScheduleServiceInterface = (*mockScheduleService)(nil)
var _ SponsorServiceInterface = (*mockSponsorService)(nil)
var _ IssueCreator = (*mockIssueCreator)(nil)

func newTestSocialHandler(schedule *mockScheduleService, sponsorSvc *mockSponsorService, issues *mockIssueCreator) *SocialHandler {
	if schedule == nil {
		schedule = &mockScheduleService{}
	}
	if sponsorSvc == nil {
		sponsorSvc = &mockSponsorService{}
	}
	if issues == nil {
		issues = &mockIssueCreator{}
	}
	return NewSocialHandler(schedule, sponsorSvc, issues)
}

// --- テスト ---

func TestSchedulePost_Returns201WithRecord(t *testing.T) {
	scheduledAt := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	schedule := &mockScheduleService{
		scheduleFn: func(_ context.Context, userID, channel, content string, at time.Time) (*model.ScheduledPost, error) {
			if userID != "user-1" || channel != "twitter" || content != "New release!" {
				t.Errorf("schedule called with (%q, %q, %q)", userID, channel, content)
			}
			if !at.Equal(scheduledAt) {
				t.Errorf("scheduledAt = %v, want %v", at, scheduledAt)
			}
			return &model.ScheduledPost{
				ID:          "post-1",
				UserID:      userID,
				Channel:     channel,
				Content:     content,
				ScheduledAt: at,
				Status:      "scheduled",
			}, nil
		},
	}
	h := newTestSocialHandler(schedule, nil, nil)

	rec := httptest.NewRecorder()
	h.SchedulePost(rec, authedJSONRequest(http.MethodPost, "/api/social/schedule",
		`{"channel":"twitter","content":"New release!","scheduledAt":"2024-07-01T09:00:00Z"}`, &model.User{ID: "user-1"}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["id"] != "post-1" || body["status"] != "scheduled" {
		t.Errorf("body = %v", body)
	}
	if body["scheduledAt"] != "2024-07-01T09:00:00Z" {
		t.Errorf("scheduledAt = %q", body["scheduledAt"])
	}
}

func TestSchedulePost_WithMissingContent_Returns400(t *testing.T) {
	h := newTestSocialHandler(&mockScheduleService{
		scheduleFn: func(_ context.Context, _, _, _ string, _ time.Time) (*model.ScheduledPost, error) {
			t.Fatal("service should not be called for an invalid body")
			return nil, nil
		},
	}, nil, nil)

	rec := httptest.NewRecorder()
	h.SchedulePost(rec, authedJSONRequest(http.MethodPost, "/api/social/schedule",
		`{"channel":"twitter","scheduledAt":"2024-07-01T09:00:00Z"}`, &model.User{ID: "user-1"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSchedulePost_WithoutUser_Returns401(t *testing.T) {
	h := newTestSocialHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	h.SchedulePost(rec, authedJSONRequest(http.MethodPost, "/api/social/schedule",
		`{"channel":"twitter","content":"hi","scheduledAt":"2024-07-01T09:00:00Z"}`, nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestListScheduledPosts_ReturnsUserPosts(t *testing.T) {
	schedule := &mockScheduleService{
		listByUserFn: func(_ context.Context, userID string) ([]*model.ScheduledPost, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			return []*model.ScheduledPost{
				{ID: "post-1", Channel: "twitter", Status: "scheduled", ScheduledAt: time.Now()},
				{ID: "post-2", Channel: "twitter", Status: "posted", ScheduledAt: time.Now()},
			}, nil
		},
	}
	h := newTestSocialHandler(schedule, nil, nil)

	rec := httptest.NewRecorder()
	h.ListScheduledPosts(rec, authedRequest(http.MethodGet, "/api/social/schedule", &model.User{ID: "user-1"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string][]scheduledPostResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body["scheduled"]) != 2 {
		t.Fatalf("len(scheduled) = %d, want 2", len(body["scheduled"]))
	}
	if body["scheduled"][1].Status != "posted" {
		t.Errorf("scheduled[1].Status = %q", body["scheduled"][1].Status)
	}
}

func TestSponsor_ReturnsCheckoutSession(t *testing.T) {
	sponsorSvc := &mockSponsorService{
		startFn: func(_ context.Context, user *model.User, req sponsor.Request) (*sponsor.Result, error) {
			if user.ID != "user-1" {
				t.Errorf("user.ID = %q, want user-1", user.ID)
			}
			if req.Amount != 2500 || req.Owner != "octocat" || req.Repo != "roam-tools" || req.Issue != 42 {
				t.Errorf("req = %+v", req)
			}
			return &sponsor.Result{SessionID: "cs_99", CheckoutURL: "https://payments.example.com/c/cs_99"}, nil
		},
	}
	h := newTestSocialHandler(nil, sponsorSvc, nil)

	rec := httptest.NewRecorder()
	h.Sponsor(rec, authedJSONRequest(http.MethodPost, "/api/sponsor",
		`{"amount":2500,"owner":"octocat","repo":"roam-tools","issue":42}`, &model.User{ID: "user-1"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["sessionId"] != "cs_99" {
		t.Errorf("sessionId = %q", body["sessionId"])
	}
}

func TestSponsor_WithNonPositiveAmount_Returns400(t *testing.T) {
	h := newTestSocialHandler(nil, &mockSponsorService{
		startFn: func(_ context.Context, _ *model.User, _ sponsor.Request) (*sponsor.Result, error) {
			t.Fatal("service should not be called for a non-positive amount")
			return nil, nil
		},
	}, nil)

	rec := httptest.NewRecorder()
	h.Sponsor(rec, authedJSONRequest(http.MethodPost, "/api/sponsor",
		`{"amount":0}`, &model.User{ID: "user-1"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateIssue_Returns201WithNumberAndURL(t *testing.T) {
	issues := &mockIssueCreator{
		createIssueFn: func(_ context.Context, owner, repo, title, body string) (*gitapi.Issue, error) {
			if owner != "octocat" || repo != "roam-tools" {
				t.Errorf("called with (%q, %q)", owner, repo)
			}
			if title != "Bug report" || body != "It broke" {
				t.Errorf("called with title=%q body=%q", title, body)
			}
			return &gitapi.Issue{Number: 7, HTMLURL: "https://git.example.com/octocat/roam-tools/issues/7"}, nil
		},
	}
	h := newTestSocialHandler(nil, nil, issues)

	rec := httptest.NewRecorder()
	h.CreateIssue(rec, authedJSONRequest(http.MethodPost, "/api/issues",
		`{"owner":"octocat","repo":"roam-tools","title":"Bug report","body":"It broke"}`, &model.User{ID: "user-1"}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["number"] != float64(7) {
		t.Errorf("number = %v, want 7", body["number"])
	}
}

func TestCreateIssue_WithMissingTitle_Returns400(t *testing.T) {
	h := newTestSocialHandler(nil, nil, &mockIssueCreator{
		createIssueFn: func(_ context.Context, _, _, _, _ string) (*gitapi.Issue, error) {
			t.Fatal("issue creation should not be attempted for an invalid body")
			return nil, nil
		},
	})

	rec := httptest.NewRecorder()
	h.CreateIssue(rec, authedJSONRequest(http.MethodPost, "/api/issues",
		`{"owner":"octocat","repo":"roam-tools"}`, &model.User{ID: "user-1"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
