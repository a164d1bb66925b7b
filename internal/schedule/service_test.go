package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/repository"
)

type mockScheduledPostRepo struct {
	createFn     func(ctx context.Context, post *model.ScheduledPost) error
	listByUserFn func(ctx context.Context, userID string) ([]*model.ScheduledPost, error)
}

func (m *mockScheduledPostRepo) Create(ctx context.Context, post *model.ScheduledPost) error {
	if m.createFn != nil {
		return m.createFn(ctx, post)
	}
	return nil
}

func (m *mockScheduledPostRepo) ListByUser(ctx context.Context, userID string) ([]*model.ScheduledPost, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockScheduledPostRepo) ListDue(_ context.Context, _ time.Time, _ int) ([]*model.ScheduledPost, error) {
	return nil, nil
}

func (m *mockScheduledPostRepo) MarkPosted(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (m *mockScheduledPostRepo) MarkFailed(_ context.Context, _ string) error {
	return nil
}

var _ repository.ScheduledPostRepository = (*mockScheduledPostRepo)(nil)

func TestSchedule_CreatesScheduledPost(t *testing.T) {
	var created *model.ScheduledPost
	repo := &mockScheduledPostRepo{
		createFn: func(_ context.Context, post *model.ScheduledPost) error {
			created = post
			return nil
		},
	}
	svc := NewService(repo)

	future := time.Now().Add(time.Hour)
	post, err := svc.Schedule(context.Background(), "user-1", "twitter", "Hello world", future)
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	if created == nil {
		t.Fatal("expected post to be persisted")
	}
	if post.Status != "scheduled" {
		t.Errorf("Status = %q, want scheduled", post.Status)
	}
	if post.Channel != "twitter" || post.UserID != "user-1" {
		t.Errorf("post = %+v", post)
	}
	if post.ID == "" {
		t.Error("ID should be set")
	}
}

func TestSchedule_TrimsContent(t *testing.T) {
	svc := NewService(&mockScheduledPostRepo{})

	post, err := svc.Schedule(context.Background(), "user-1", "twitter", "  padded  ", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if post.Content != "padded" {
		t.Errorf("Content = %q, want trimmed", post.Content)
	}
}

func TestSchedule_WithEmptyContent_ReturnsValidationError(t *testing.T) {
	svc := NewService(&mockScheduledPostRepo{})

	for _, content := range []string{"", "   "} {
		_, err := svc.Schedule(context.Background(), "user-1", "twitter", content, time.Now().Add(time.Hour))
		if err == nil {
			t.Errorf("content %q: expected error", content)
			continue
		}
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			t.Errorf("content %q: expected APIError, got %T", content, err)
		}
	}
}

func TestSchedule_WithOverlongContent_ReturnsValidationError(t *testing.T) {
	svc := NewService(&mockScheduledPostRepo{})

	long := strings.Repeat("a", maxContentLength+1)
	if _, err := svc.Schedule(context.Background(), "user-1", "twitter", long, time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected error for overlong content")
	}

	exact := strings.Repeat("a", maxContentLength)
	if _, err := svc.Schedule(context.Background(), "user-1", "twitter", exact, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("content at the limit should be accepted, got %v", err)
	}
}

func TestSchedule_WithPastTime_ReturnsValidationError(t *testing.T) {
	svc := NewService(&mockScheduledPostRepo{})

	_, err := svc.Schedule(context.Background(), "user-1", "twitter", "Hello", time.Now().Add(-time.Minute))
	if err == nil {
		t.Fatal("expected error for past scheduled time")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Category != "validation" {
		t.Errorf("Category = %q, want validation", apiErr.Category)
	}
}

func TestListByUser_ReturnsPosts(t *testing.T) {
	repo := &mockScheduledPostRepo{
		listByUserFn: func(_ context.Context, userID string) ([]*model.ScheduledPost, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			return []*model.ScheduledPost{{ID: "post-1"}, {ID: "post-2"}}, nil
		},
	}
	svc := NewService(repo)

	posts, err := svc.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(posts) != 2 {
		t.Errorf("len(posts) = %d, want 2", len(posts))
	}
}
