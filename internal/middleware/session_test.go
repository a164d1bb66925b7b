package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/roamjs/backend/internal/model"
)

type mockSessionResolver struct {
	resolveSessionFn func(ctx context.Context, sessionToken string) (*model.User, error)
}

func (m *mockSessionResolver) ResolveSession(ctx context.Context, sessionToken string) (*model.User, error) {
	if m.resolveSessionFn != nil {
		return m.resolveSessionFn(ctx, sessionToken)
	}
	return nil, model.NewNoActiveSessionError()
}

var _ SessionResolver = (*mockSessionResolver)(nil)

func TestSessionMiddleware_WithValidToken_InjectsUser(t *testing.T) {
	resolver := &mockSessionResolver{
		resolveSessionFn: func(_ context.Context, token string) (*model.User, error) {
			if token != "session-token" {
				t.Errorf("token = %q, want session-token", token)
			}
			return &model.User{ID: "user-1"}, nil
		},
	}

	var gotUserID string
	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Fatalf("UserIDFromContext returned error: %v", err)
		}
		gotUserID = id
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/paths", nil)
	req.Header.Set("Authorization", "Bearer session-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUserID != "user-1" {
		t.Errorf("user id = %q, want user-1", gotUserID)
	}
}

func TestSessionMiddleware_WithoutToken_Returns401NoActiveSession(t *testing.T) {
	handler := NewSessionMiddleware(&mockSessionResolver{})(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler should not run without a session")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/paths", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Message != "No Active Session" {
		t.Errorf("message = %q, want No Active Session", body.Message)
	}
}

func TestSessionMiddleware_WithNonBearerHeader_Returns401(t *testing.T) {
	resolver := &mockSessionResolver{
		resolveSessionFn: func(_ context.Context, token string) (*model.User, error) {
			if token != "" {
				t.Errorf("non-Bearer header should yield empty token, got %q", token)
			}
			return nil, model.NewNoActiveSessionError()
		},
	}
	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/paths", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSessionMiddleware_ResolverFailure_Returns401(t *testing.T) {
	resolver := &mockSessionResolver{
		resolveSessionFn: func(_ context.Context, _ string) (*model.User, error) {
			return nil, errors.New("identity provider unreachable")
		},
	}
	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler should not run on resolver failure")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/paths", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestUserFromContext_WithoutUser_ReturnsError(t *testing.T) {
	if _, err := UserFromContext(context.Background()); err == nil {
		t.Fatal("expected error for context without user")
	}
}

func TestContextWithUser_RoundTrips(t *testing.T) {
	ctx := ContextWithUser(context.Background(), &model.User{ID: "user-1"})

	user, err := UserFromContext(ctx)
	if err != nil {
		t.Fatalf("UserFromContext returned error: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want user-1", user.ID)
	}
}
