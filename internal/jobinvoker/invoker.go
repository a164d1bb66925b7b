// Package jobinvoker はバックグラウンドジョブの投入を提供する。
// 呼び出しはfire-and-forgetだが、投入の度にジョブレコードを残し、
// コールバックが来ないジョブをリーパーが検出できるようにする。
package jobinvoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/repository"
)

// invokeTimeout はジョブ投入HTTPリクエスト自体のタイムアウト。
// ジョブの実行時間ではなく、受理されるまでの時間に対する制限。
const invokeTimeout = 30 * time.Second

// SubmissionRecorder はジョブ投入のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type SubmissionRecorder interface {
	RecordJobSubmission(name string)
}

// Invoker はジョブ実行基盤へのジョブ投入クライアント。
type Invoker struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	token      string
	jobRepo    repository.JobRepository
	metrics    SubmissionRecorder
}

// NewInvoker はInvokerの新しいインスタンスを生成する。
func NewInvoker(httpClient *http.Client, logger *slog.Logger, baseURL, token string, jobRepo repository.JobRepository, metrics SubmissionRecorder) *Invoker {
	return &Invoker{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		token:      token,
		jobRepo:    jobRepo,
		metrics:    metrics,
	}
}

// Submit はジョブを名前で投入し、ジョブレコードIDを返す。
// HTTP呼び出しは非同期に行い、結果を待たない。
// 投入レコードは同期的に作成され、受理・拒否は後から反映される。
func (i *Invoker) Submit(ctx context.Context, name string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	now := time.Now()
	job := &model.JobRecord{
		ID:          uuid.New().String(),
		Name:        name,
		Payload:     data,
		Status:      model.JobSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	if err := i.jobRepo.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to record job submission: %w", err)
	}

	i.metrics.RecordJobSubmission(name)

	// 呼び出し元のリクエストが終了してもジョブ投入は継続する
	go i.invoke(context.WithoutCancel(ctx), job)

	return job.ID, nil
}

// invoke はジョブ実行基盤にHTTPリクエストを送信し、結果をジョブレコードに反映する。
func (i *Invoker) invoke(ctx context.Context, job *model.JobRecord) {
	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	endpoint := i.baseURL + "/jobs/" + url.PathEscape(job.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(job.Payload))
	if err != nil {
		i.markRejected(ctx, job, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Job-Id", job.ID)
	if i.token != "" {
		req.Header.Set("Authorization", "Bearer "+i.token)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		i.markRejected(ctx, job, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		i.markRejected(ctx, job, fmt.Sprintf("job runner returned status %d", resp.StatusCode))
		return
	}

	if err := i.jobRepo.UpdateStatus(ctx, job.ID, model.JobAccepted); err != nil {
		i.logger.Error("failed to mark job as accepted",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

// markRejected はジョブ投入失敗を記録する。
func (i *Invoker) markRejected(ctx context.Context, job *model.JobRecord, reason string) {
	i.logger.Error("job submission failed",
		slog.String("job_id", job.ID),
		slog.String("job_name", job.Name),
		slog.String("error", reason),
	)
	if err := i.jobRepo.UpdateStatus(ctx, job.ID, model.JobRejected); err != nil {
		i.logger.Error("failed to mark job as rejected",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}
