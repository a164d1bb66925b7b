package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/roamjs/backend/internal/middleware"
	"github.com/roamjs/backend/internal/model"
)

type mockAuthService struct {
	createSessionRequestFn func(ctx context.Context, userID string) (*model.SessionRequest, error)
	lookupSessionRequestFn func(ctx context.Context, id string) (*model.SessionRequest, error)
}

func (m *mockAuthService) CreateSessionRequest(ctx context.Context, userID string) (*model.SessionRequest, error) {
	if m.createSessionRequestFn != nil {
		return m.createSessionRequestFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockAuthService) LookupSessionRequest(ctx context.Context, id string) (*model.SessionRequest, error) {
	if m.lookupSessionRequestFn != nil {
		return m.lookupSessionRequestFn(ctx, id)
	}
	return nil, nil
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func authedRequest(method, target string, user *model.User) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.ContextWithUser(req.Context(), user))
}

func TestCreateSessionRequest_Returns201WithCode(t *testing.T) {
	svc := &mockAuthService{
		createSessionRequestFn: func(_ context.Context, userID string) (*model.SessionRequest, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			return &model.SessionRequest{ID: "req-1", Code: "123456", UserID: userID}, nil
		},
	}
	h := NewAuthHandler(svc)

	rec := httptest.NewRecorder()
	h.CreateSessionRequest(rec, authedRequest(http.MethodPost, "/api/session", &model.User{ID: "user-1"}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["id"] != "req-1" || body["code"] != "123456" {
		t.Errorf("body = %v", body)
	}
	if _, present := body["userId"]; present {
		t.Error("userId should be omitted from the creation response")
	}
}

func TestCreateSessionRequest_WithoutUser_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	rec := httptest.NewRecorder()
	h.CreateSessionRequest(rec, httptest.NewRequest(http.MethodPost, "/api/session", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func requestWithURLParam(method, target, key, value string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestGetSessionRequest_Found_ReturnsRecord(t *testing.T) {
	svc := &mockAuthService{
		lookupSessionRequestFn: func(_ context.Context, id string) (*model.SessionRequest, error) {
			if id != "req-1" {
				t.Errorf("id = %q, want req-1", id)
			}
			return &model.SessionRequest{ID: "req-1", Code: "123456", UserID: "user-1"}, nil
		},
	}
	h := NewAuthHandler(svc)

	rec := httptest.NewRecorder()
	h.GetSessionRequest(rec, requestWithURLParam(http.MethodGet, "/api/session/req-1", "id", "req-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["userId"] != "user-1" {
		t.Errorf("userId = %q, want user-1", body["userId"])
	}
}

func TestGetSessionRequest_NotFound_Returns404(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	rec := httptest.NewRecorder()
	h.GetSessionRequest(rec, requestWithURLParam(http.MethodGet, "/api/session/missing", "id", "missing"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "SESSION_REQUEST_NOT_FOUND" {
		t.Errorf("code = %q", body.Code)
	}
}
