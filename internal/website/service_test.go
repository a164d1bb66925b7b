package website

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/repository"
	"github.com/roamjs/backend/internal/workflow"
)

// --- モック定義 ---

type mockJobSubmitter struct {
	submitFn func(ctx context.Context, name string, payload interface{}) (string, error)
}

func (m *mockJobSubmitter) Submit(ctx context.Context, name string, payload interface{}) (string, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, name, payload)
	}
	return "job-1", nil
}

type mockIdentityClient struct {
	updateUserMetadataFn func(ctx context.Context, userID string, patch map[string]interface{}) error
}

func (m *mockIdentityClient) UpdateUserMetadata(ctx context.Context, userID string, patch map[string]interface{}) error {
	if m.updateUserMetadataFn != nil {
		return m.updateUserMetadataFn(ctx, userID, patch)
	}
	return nil
}

type mockGuard struct {
	validateDomainFn func(domain string) error
}

func (m *mockGuard) ValidateDomain(domain string) error {
	if m.validateDomainFn != nil {
		return m.validateDomainFn(domain)
	}
	return nil
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

type mockStatusRepo struct {
	appended []*model.StatusRecord
	latestFn func(ctx context.Context, action, graph string) (*model.StatusRecord, error)
}

func (m *mockStatusRepo) Append(_ context.Context, record *model.StatusRecord) error {
	m.appended = append(m.appended, record)
	return nil
}

func (m *mockStatusRepo) Latest(ctx context.Context, action, graph string) (*model.StatusRecord, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, action, graph)
	}
	return nil, nil
}

func (m *mockStatusRepo) ListByUser(_ context.Context, _ string, _ int) ([]*model.StatusRecord, error) {
	return nil, nil
}

type mockWorkflowRepo struct {
	created        []*model.WorkflowState
	findAwaitingFn func(ctx context.Context, wfType model.WorkflowType, userID, target string) (*model.WorkflowState, error)
	completed      []string
}

func (m *mockWorkflowRepo) Create(_ context.Context, state *model.WorkflowState) error {
	m.created = append(m.created, state)
	return nil
}

func (m *mockWorkflowRepo) FindAwaiting(ctx context.Context, wfType model.WorkflowType, userID, target string) (*model.WorkflowState, error) {
	if m.findAwaitingFn != nil {
		return m.findAwaitingFn(ctx, wfType, userID, target)
	}
	return nil, nil
}

func (m *mockWorkflowRepo) FindByCheckoutSession(_ context.Context, _ string) (*model.WorkflowState, error) {
	return nil, nil
}

func (m *mockWorkflowRepo) Complete(_ context.Context, id string) error {
	m.completed = append(m.completed, id)
	return nil
}

func (m *mockWorkflowRepo) UpdateStatus(_ context.Context, _ string, _ model.WorkflowStatus) error {
	return nil
}

func (m *mockWorkflowRepo) ExpireStale(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type noopRecorder struct{}

func (noopRecorder) RecordWorkflowTransition(_, _ string) {}

var _ JobSubmitter = (*mockJobSubmitter)(nil)
var _ MetadataUpdater = (*mockIdentityClient)(nil)
var _ DomainGuard = (*mockGuard)(nil)
var _ repository.StatusRepository = (*mockStatusRepo)(nil)
var _ repository.WorkflowStateRepository = (*mockWorkflowRepo)(nil)

func newTestService(jobs JobSubmitter, ic MetadataUpdater, wfRepo *mockWorkflowRepo, statusRepo *mockStatusRepo, guard DomainGuard) *Service {
	wf := workflow.NewService(wfRepo, noopRecorder{}, workflow.ServiceConfig{TTL: time.Hour})
	return NewService(jobs, ic, wf, statusRepo, guard)
}

// --- テスト ---

func TestLaunch_SubmitsJobWithCallbackToken(t *testing.T) {
	var jobName string
	var jobPayload map[string]interface{}
	jobs := &mockJobSubmitter{
		submitFn: func(_ context.Context, name string, payload interface{}) (string, error) {
			jobName = name
			jobPayload, _ = payload.(map[string]interface{})
			return "job-1", nil
		},
	}
	wfRepo := &mockWorkflowRepo{}
	statusRepo := &mockStatusRepo{}
	svc := newTestService(jobs, &mockIdentityClient{}, wfRepo, statusRepo, &mockGuard{})

	user := &model.User{ID: "user-1"}
	if err := svc.Launch(context.Background(), user, "my-graph", "site.example.com"); err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}

	if jobName != "launch-website" {
		t.Errorf("job name = %q, want launch-website", jobName)
	}
	if len(wfRepo.created) != 1 {
		t.Fatalf("workflow created %d times, want 1", len(wfRepo.created))
	}
	state := wfRepo.created[0]
	if jobPayload["callback_token"] != state.CallbackToken {
		t.Error("job payload should carry the workflow callback token")
	}
	if jobPayload["graph"] != "my-graph" || jobPayload["domain"] != "site.example.com" {
		t.Errorf("payload = %v", jobPayload)
	}

	if len(statusRepo.appended) != 1 {
		t.Fatalf("status appended %d times, want 1", len(statusRepo.appended))
	}
	if statusRepo.appended[0].Status != "INITIALIZING" {
		t.Errorf("initial status = %q, want INITIALIZING", statusRepo.appended[0].Status)
	}
	if statusRepo.appended[0].Action != "launch" {
		t.Errorf("action = %q, want launch", statusRepo.appended[0].Action)
	}
}

func TestLaunch_WithInvalidDomain_ReturnsValidationError(t *testing.T) {
	guard := &mockGuard{
		validateDomainFn: func(_ string) error {
			return errors.New("blocked")
		},
	}
	wfRepo := &mockWorkflowRepo{}
	svc := newTestService(&mockJobSubmitter{}, &mockIdentityClient{}, wfRepo, &mockStatusRepo{}, guard)

	err := svc.Launch(context.Background(), &model.User{ID: "user-1"}, "my-graph", "169.254.169.254")
	if err == nil {
		t.Fatal("expected error for blocked domain")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Category != "validation" {
		t.Errorf("Category = %q, want validation", apiErr.Category)
	}
	if len(wfRepo.created) != 0 {
		t.Error("no workflow should start for an invalid domain")
	}
}

func TestDeploy_AppendsStartingDeployStatus(t *testing.T) {
	statusRepo := &mockStatusRepo{}
	svc := newTestService(&mockJobSubmitter{}, &mockIdentityClient{}, &mockWorkflowRepo{}, statusRepo, &mockGuard{})

	if err := svc.Deploy(context.Background(), &model.User{ID: "user-1"}, "my-graph"); err != nil {
		t.Fatalf("Deploy returned error: %v", err)
	}

	if len(statusRepo.appended) != 1 {
		t.Fatalf("status appended %d times, want 1", len(statusRepo.appended))
	}
	if statusRepo.appended[0].Status != "STARTING DEPLOY" {
		t.Errorf("status = %q, want STARTING DEPLOY", statusRepo.appended[0].Status)
	}
}

func TestShutdown_AppendsShuttingDownStatus(t *testing.T) {
	var jobName string
	jobs := &mockJobSubmitter{
		submitFn: func(_ context.Context, name string, _ interface{}) (string, error) {
			jobName = name
			return "job-1", nil
		},
	}
	statusRepo := &mockStatusRepo{}
	svc := newTestService(jobs, &mockIdentityClient{}, &mockWorkflowRepo{}, statusRepo, &mockGuard{})

	if err := svc.Shutdown(context.Background(), &model.User{ID: "user-1"}, "my-graph"); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	if jobName != "shutdown-website" {
		t.Errorf("job name = %q, want shutdown-website", jobName)
	}
	if len(statusRepo.appended) != 1 || statusRepo.appended[0].Status != "SHUTTING DOWN" {
		t.Errorf("appended = %+v, want one SHUTTING DOWN record", statusRepo.appended)
	}
}

func TestComplete_WithUnknownAction_ReturnsValidationError(t *testing.T) {
	svc := newTestService(&mockJobSubmitter{}, &mockIdentityClient{}, &mockWorkflowRepo{}, &mockStatusRepo{}, &mockGuard{})

	err := svc.Complete(context.Background(), "user-1", "my-graph", "destroy", "DONE", "token", "")
	if err == nil {
		t.Fatal("expected error for unknown action")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Category != "validation" {
		t.Errorf("Category = %q, want validation", apiErr.Category)
	}
}

func TestComplete_Launch_UpdatesWebsiteMetadata(t *testing.T) {
	wfRepo := &mockWorkflowRepo{
		findAwaitingFn: func(_ context.Context, wfType model.WorkflowType, _, _ string) (*model.WorkflowState, error) {
			if wfType != model.WorkflowWebsiteLaunch {
				t.Errorf("workflow type = %q, want %q", wfType, model.WorkflowWebsiteLaunch)
			}
			return &model.WorkflowState{ID: "wf-1", CallbackToken: "token-1", Status: model.WorkflowAwaiting}, nil
		},
	}
	var patch map[string]interface{}
	ic := &mockIdentityClient{
		updateUserMetadataFn: func(_ context.Context, userID string, p map[string]interface{}) error {
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			patch = p
			return nil
		},
	}
	statusRepo := &mockStatusRepo{}
	svc := newTestService(&mockJobSubmitter{}, ic, wfRepo, statusRepo, &mockGuard{})

	err := svc.Complete(context.Background(), "user-1", "my-graph", "launch", "LIVE", "token-1", "")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	website, ok := patch["website"].(map[string]interface{})
	if !ok {
		t.Fatalf("patch website = %T, want map", patch["website"])
	}
	if website["graph"] != "my-graph" {
		t.Errorf("website patch = %v", website)
	}
	if len(statusRepo.appended) != 1 || statusRepo.appended[0].Status != "LIVE" {
		t.Errorf("appended = %+v, want one LIVE record", statusRepo.appended)
	}
	if len(wfRepo.completed) != 1 {
		t.Errorf("workflow completed %d times, want 1", len(wfRepo.completed))
	}
}

func TestComplete_Shutdown_ClearsWebsiteMetadata(t *testing.T) {
	wfRepo := &mockWorkflowRepo{
		findAwaitingFn: func(_ context.Context, _ model.WorkflowType, _, _ string) (*model.WorkflowState, error) {
			return &model.WorkflowState{ID: "wf-1", CallbackToken: "token-1", Status: model.WorkflowAwaiting}, nil
		},
	}
	var patch map[string]interface{}
	ic := &mockIdentityClient{
		updateUserMetadataFn: func(_ context.Context, _ string, p map[string]interface{}) error {
			patch = p
			return nil
		},
	}
	svc := newTestService(&mockJobSubmitter{}, ic, wfRepo, &mockStatusRepo{}, &mockGuard{})

	err := svc.Complete(context.Background(), "user-1", "my-graph", "shutdown", "INACTIVE", "token-1", "")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	v, present := patch["website"]
	if !present {
		t.Fatal("patch should contain website key")
	}
	if v != nil {
		t.Errorf("website = %v, want nil to clear the field", v)
	}
}

func TestComplete_WithWrongToken_MutatesNothing(t *testing.T) {
	wfRepo := &mockWorkflowRepo{
		findAwaitingFn: func(_ context.Context, _ model.WorkflowType, _, _ string) (*model.WorkflowState, error) {
			return &model.WorkflowState{ID: "wf-1", CallbackToken: "real-token", Status: model.WorkflowAwaiting}, nil
		},
	}
	ic := &mockIdentityClient{
		updateUserMetadataFn: func(_ context.Context, _ string, _ map[string]interface{}) error {
			t.Fatal("metadata should not be updated on token mismatch")
			return nil
		},
	}
	statusRepo := &mockStatusRepo{}
	svc := newTestService(&mockJobSubmitter{}, ic, wfRepo, statusRepo, &mockGuard{})

	err := svc.Complete(context.Background(), "user-1", "my-graph", "launch", "LIVE", "forged-token", "")
	if err == nil {
		t.Fatal("expected error for forged token")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Message != "Unauthorized" {
		t.Errorf("Message = %q, want Unauthorized", apiErr.Message)
	}
	if len(statusRepo.appended) != 0 {
		t.Error("no status should be appended on token mismatch")
	}
	if len(wfRepo.completed) != 0 {
		t.Error("workflow should not complete on token mismatch")
	}
}

func TestGetStatus_ReturnsLatestRecord(t *testing.T) {
	statusRepo := &mockStatusRepo{
		latestFn: func(_ context.Context, action, graph string) (*model.StatusRecord, error) {
			if action != "launch" || graph != "my-graph" {
				t.Errorf("Latest(%q, %q), want (launch, my-graph)", action, graph)
			}
			return &model.StatusRecord{Status: "LIVE"}, nil
		},
	}
	svc := newTestService(&mockJobSubmitter{}, &mockIdentityClient{}, &mockWorkflowRepo{}, statusRepo, &mockGuard{})

	record, err := svc.GetStatus(context.Background(), "launch", "my-graph")
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if record.Status != "LIVE" {
		t.Errorf("Status = %q, want LIVE", record.Status)
	}
}

func TestGetStatus_WithUnknownAction_ReturnsValidationError(t *testing.T) {
	svc := newTestService(&mockJobSubmitter{}, &mockIdentityClient{}, &mockWorkflowRepo{}, &mockStatusRepo{}, &mockGuard{})

	if _, err := svc.GetStatus(context.Background(), "restart", "my-graph"); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestProbeSite_UnreachableDomain_ReturnsFalseWithoutError(t *testing.T) {
	svc := newTestService(&mockJobSubmitter{}, &mockIdentityClient{}, &mockWorkflowRepo{}, &mockStatusRepo{}, &mockGuard{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reachable, err := svc.ProbeSite(ctx, "unreachable.invalid")
	if err != nil {
		t.Fatalf("ProbeSite returned error: %v", err)
	}
	if reachable {
		t.Error("unresolvable domain should not be reachable")
	}
}
